package engine

import (
	"net"

	"github.com/krisarmstrong/netsim-go/pkg/errors"
	"github.com/krisarmstrong/netsim-go/pkg/protocols"
)

// PortState is the RSTP state of a port. Non-switch devices only use
// PortDisabled (unconnected) and PortForwarding (connected).
type PortState uint8

const (
	PortDisabled PortState = iota
	PortBlocking           // discarding in 802.1D-2004 terms
	PortLearning
	PortForwarding
)

// String returns the display name of the state
func (s PortState) String() string {
	switch s {
	case PortDisabled:
		return "disabled"
	case PortBlocking:
		return "blocking"
	case PortLearning:
		return "learning"
	case PortForwarding:
		return "forwarding"
	default:
		return "unknown"
	}
}

// PortRole is the RSTP role of a switch port
type PortRole uint8

const (
	RoleNone PortRole = iota
	RoleRoot
	RoleDesignated
	RoleAlternate
	RoleBackup
)

// String returns the display name of the role
func (r PortRole) String() string {
	switch r {
	case RoleRoot:
		return "root"
	case RoleDesignated:
		return "designated"
	case RoleAlternate:
		return "alternate"
	case RoleBackup:
		return "backup"
	default:
		return "none"
	}
}

// unconnected marks a free peer slot
const unconnected = -1

// Port is a device attachment point: a MAC, an RSTP state, and the frame
// queues the fabric moves between. Ports are owned by their device; only the
// fabric mutates the queues across the device boundary.
type Port struct {
	MAC   net.HardwareAddr
	State PortState
	Role  PortRole

	peerDevice int
	peerPort   int

	outbox []*protocols.Packet
	inbox  []*protocols.Packet

	Counters *errors.Counters
}

// NewPort creates an unconnected port with the given MAC
func NewPort(mac net.HardwareAddr) *Port {
	return &Port{
		MAC:        mac,
		State:      PortDisabled,
		peerDevice: unconnected,
		peerPort:   unconnected,
		Counters:   errors.NewCounters(),
	}
}

// Connected reports whether the port is cabled to a peer
func (p *Port) Connected() bool {
	return p.peerDevice != unconnected
}

// Peer returns the peer device id and port index, or (-1, -1)
func (p *Port) Peer() (int, int) {
	return p.peerDevice, p.peerPort
}

// Send queues a frame for delivery at the next tick
func (p *Port) Send(pkt *protocols.Packet) {
	p.outbox = append(p.outbox, pkt)
	p.Counters.TxFrames++
}

// Receive drains the inbox in FIFO arrival order
func (p *Port) Receive() []*protocols.Packet {
	frames := p.inbox
	p.inbox = nil
	p.Counters.RxFrames += uint64(len(frames))
	return frames
}

// CanForward reports whether data frames may egress this port
func (p *Port) CanForward() bool {
	return p.State == PortForwarding
}

// CanLearn reports whether source addresses may be learned from this port
func (p *Port) CanLearn() bool {
	return p.State == PortLearning || p.State == PortForwarding
}

func (p *Port) drainQueues() {
	p.outbox = nil
	p.inbox = nil
}
