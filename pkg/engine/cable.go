package engine

import (
	"github.com/krisarmstrong/netsim-go/pkg/errors"
)

// Endpoint names one end of a cable by device id and port index. Cables never
// hold device references; all traversal goes through the registry.
type Endpoint struct {
	Device int
	Port   int
}

// Cable is an unordered pair of endpoints with unit delivery latency
type Cable struct {
	A Endpoint
	B Endpoint
}

// Connect cables two ports together. It fails if either port is already
// paired or either endpoint does not exist; engine state is unchanged on
// error.
func (e *Engine) Connect(aDev, aPort, bDev, bPort int) error {
	if aDev == bDev && aPort == bPort {
		return errors.Configf("connect", "cannot cable a port to itself")
	}
	pa, err := e.port(aDev, aPort)
	if err != nil {
		return err
	}
	pb, err := e.port(bDev, bPort)
	if err != nil {
		return err
	}
	if pa.Connected() {
		return errors.Configf("connect", "device %d port %d already paired", aDev, aPort)
	}
	if pb.Connected() {
		return errors.Configf("connect", "device %d port %d already paired", bDev, bPort)
	}

	pa.peerDevice, pa.peerPort = bDev, bPort
	pb.peerDevice, pb.peerPort = aDev, aPort
	e.cables = append(e.cables, Cable{
		A: Endpoint{Device: aDev, Port: aPort},
		B: Endpoint{Device: bDev, Port: bPort},
	})

	e.devices[aDev].LinkUp(aPort)
	e.devices[bDev].LinkUp(bPort)
	return nil
}

// Disconnect removes the cable attached to the given port, draining both
// queues and clearing the peer links on both ends
func (e *Engine) Disconnect(dev, portIdx int) error {
	p, err := e.port(dev, portIdx)
	if err != nil {
		return err
	}
	if !p.Connected() {
		return errors.Configf("disconnect", "device %d port %d is not connected", dev, portIdx)
	}
	peerDev, peerPort := p.Peer()
	e.severCable(Endpoint{Device: dev, Port: portIdx}, Endpoint{Device: peerDev, Port: peerPort})
	return nil
}

func (e *Engine) severCable(a, b Endpoint) {
	for i, c := range e.cables {
		if (c.A == a && c.B == b) || (c.A == b && c.B == a) {
			e.cables = append(e.cables[:i], e.cables[i+1:]...)
			break
		}
	}
	for _, ep := range []Endpoint{a, b} {
		if d, ok := e.devices[ep.Device]; ok {
			p := d.Ports()[ep.Port]
			p.peerDevice, p.peerPort = unconnected, unconnected
			p.drainQueues()
			p.State = PortDisabled
			p.Role = RoleNone
			d.LinkDown(ep.Port)
		}
	}
}

// deliver moves every queued frame across each cable. Delivery is atomic per
// tick: frames queued during tick T land in the peer inbox at T+1 and nowhere
// else. Non-BPDU frames are discarded at a discarding or disabled egress.
func (e *Engine) deliver() {
	for _, c := range e.cables {
		e.moveFrames(c.A, c.B)
		e.moveFrames(c.B, c.A)
	}
}

func (e *Engine) moveFrames(from, to Endpoint) {
	src := e.devices[from.Device].Ports()[from.Port]
	dst := e.devices[to.Device].Ports()[to.Port]
	if len(src.outbox) == 0 {
		return
	}
	frames := src.outbox
	src.outbox = nil
	for _, pkt := range frames {
		if (src.State == PortBlocking || src.State == PortDisabled) && !pkt.IsBPDU() {
			src.Counters.Drop(errors.DropPortBlocked)
			continue
		}
		e.framesDelivered++
		pkt.SerialNumber = e.NextSerial()
		if e.trace != nil {
			_ = e.trace.WriteFrame(uint64(e.clock.Now()), pkt.Buffer)
		}
		dst.inbox = append(dst.inbox, pkt)
	}
}
