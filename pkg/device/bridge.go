package device

import (
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/krisarmstrong/netsim-go/pkg/engine"
	"github.com/krisarmstrong/netsim-go/pkg/errors"
	"github.com/krisarmstrong/netsim-go/pkg/logging"
	"github.com/krisarmstrong/netsim-go/pkg/protocols"
)

type macEntry struct {
	port   int
	seenAt engine.Tick
}

// MACTableEntry is the snapshot form of one learned address
type MACTableEntry struct {
	MAC  net.HardwareAddr
	Port int
	Age  engine.Tick
}

// Bridge is a learning switch running RSTP. Frames relay between forwarding
// ports only; BPDUs are consumed, never relayed.
type Bridge struct {
	base

	priority uint16
	bridgeID uint64
	macTable map[string]macEntry

	rstp      []rstpPort
	rootID    uint64
	rootCost  uint32
	rootPort  int
	tcUntil   engine.Tick
	nextHello engine.Tick
}

// NewBridge creates a switch with the given port count and bridge priority
func NewBridge(name string, numPorts int, priority uint16, e *engine.Engine) *Bridge {
	if numPorts < 2 {
		numPorts = 2
	}
	b := &Bridge{
		base: base{
			name:  name,
			kind:  KindSwitch,
			debug: e.Debug(),
		},
		priority: priority,
		macTable: make(map[string]macEntry),
		rstp:     make([]rstpPort, numPorts),
		rootPort: -1,
	}
	for i := 0; i < numPorts; i++ {
		b.ports = append(b.ports, engine.NewPort(e.NextMAC()))
	}

	lowest := b.ports[0].MAC
	for _, p := range b.ports[1:] {
		if macLess(p.MAC, lowest) {
			lowest = p.MAC
		}
	}
	b.bridgeID = protocols.MakeBridgeID(priority, lowest)
	b.rootID = b.bridgeID
	return b
}

func macLess(a, b net.HardwareAddr) bool {
	return strings.Compare(string(a), string(b)) < 0
}

// BridgeID returns the 8-byte bridge identifier
func (b *Bridge) BridgeID() uint64 { return b.bridgeID }

// RootID returns the current root bridge identifier
func (b *Bridge) RootID() uint64 { return b.rootID }

// IsRoot reports whether this bridge believes it is the spanning tree root
func (b *Bridge) IsRoot() bool { return b.rootPort == -1 }

// LinkUp starts a fresh port as a blocking designated port
func (b *Bridge) LinkUp(port int) {
	p := b.ports[port]
	p.State = engine.PortBlocking
	p.Role = engine.RoleDesignated
	b.rstp[port] = rstpPort{transitionAt: b.clk.After(ForwardDelaySeconds)}
	b.elect()
}

// LinkDown clears the port's stored claim and re-runs the election. The
// engine has already marked the port disabled.
func (b *Bridge) LinkDown(port int) {
	b.rstp[port] = rstpPort{}
	b.noteTopologyChange()
	b.flushMACsOn(port)
	b.elect()
}

// Poll ages the address table, relays frames and advances RSTP
func (b *Bridge) Poll() {
	b.ageMACTable()

	for i, p := range b.ports {
		if !p.Connected() {
			continue
		}
		for _, pkt := range p.Receive() {
			b.handleFrame(i, pkt)
		}
	}

	b.rstpTick()
}

func (b *Bridge) handleFrame(ingress int, pkt *protocols.Packet) {
	p := b.ports[ingress]

	if pkt.IsBPDU() {
		bpdu, err := protocols.DecodeBPDU(pkt)
		if err != nil {
			p.Counters.Drop(errors.DropCodec)
			b.tracef(logging.ProtocolRSTP, 2, "%v", err)
			return
		}
		b.receiveBPDU(ingress, bpdu)
		return
	}

	if !p.CanLearn() {
		p.Counters.Drop(errors.DropPortBlocked)
		return
	}

	src := pkt.GetSourceMAC()
	if src != nil && src[0]&0x01 == 0 {
		b.macTable[string(src)] = macEntry{port: ingress, seenAt: b.clk.Now()}
	}

	if !p.CanForward() {
		p.Counters.Drop(errors.DropPortBlocked)
		return
	}

	dst := pkt.GetDestMAC()
	if !pkt.IsMulticast() {
		if e, ok := b.macTable[string(dst)]; ok {
			if e.port != ingress && b.ports[e.port].CanForward() {
				b.ports[e.port].Send(pkt)
			} else {
				p.Counters.Drop(errors.DropPortBlocked)
			}
			return
		}
	}

	// Unknown unicast, broadcast and non-BPDU multicast flood
	for i, out := range b.ports {
		if i == ingress || !out.Connected() || !out.CanForward() {
			continue
		}
		out.Send(pkt.Clone())
	}
}

func (b *Bridge) ageMACTable() {
	aging := b.clk.Seconds(MACAgingSeconds)
	if b.tcUntil > b.clk.Now() {
		aging = b.clk.Seconds(ForwardDelaySeconds)
	}
	now := b.clk.Now()
	for mac, e := range b.macTable {
		if now-e.seenAt >= aging {
			delete(b.macTable, mac)
		}
	}
}

func (b *Bridge) flushMACsOn(port int) {
	for mac, e := range b.macTable {
		if e.port == port {
			delete(b.macTable, mac)
		}
	}
}

// MACTable returns learned addresses sorted by MAC for display
func (b *Bridge) MACTable() []MACTableEntry {
	now := b.clk.Now()
	out := make([]MACTableEntry, 0, len(b.macTable))
	for mac, e := range b.macTable {
		out = append(out, MACTableEntry{
			MAC:  net.HardwareAddr(mac),
			Port: e.port,
			Age:  now - e.seenAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return macLess(out[i].MAC, out[j].MAC) })
	return out
}

// Command executes a console line: show mac-address-table, show spanning-tree
func (b *Bridge) Command(line string) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "show" {
		b.consolef("unknown command: %s", line)
		return
	}
	switch fields[1] {
	case "mac-address-table":
		b.consolef("%-17s  %-5s  %s", "mac", "port", "age")
		for _, e := range b.MACTable() {
			b.consolef("%-17s  %-5d  %ds", e.MAC, e.Port, int(e.Age)/engine.DefaultTicksPerSecond)
		}
	case "spanning-tree":
		role := "root bridge"
		if !b.IsRoot() {
			role = fmt.Sprintf("root port %d, cost %d", b.rootPort, b.rootCost)
		}
		b.consolef("bridge %s, root %s (%s)",
			protocols.BridgeIDString(b.bridgeID), protocols.BridgeIDString(b.rootID), role)
		for i, p := range b.ports {
			if !p.Connected() {
				continue
			}
			b.consolef("port %d: role %s state %s", i, p.Role, p.State)
		}
	default:
		b.consolef("unknown show target: %s", fields[1])
	}
}
