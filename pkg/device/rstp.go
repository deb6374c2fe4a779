package device

import (
	"github.com/krisarmstrong/netsim-go/pkg/engine"
	"github.com/krisarmstrong/netsim-go/pkg/logging"
	"github.com/krisarmstrong/netsim-go/pkg/protocols"
)

// priorityVector orders RSTP claims: lower root id, then lower root path
// cost, then lower sender bridge id, then lower sender port id. The ordering
// is total, so tie-breaks are deterministic.
type priorityVector struct {
	root   uint64
	cost   uint32
	bridge uint64
	port   uint16
}

func (v priorityVector) better(o priorityVector) bool {
	if v.root != o.root {
		return v.root < o.root
	}
	if v.cost != o.cost {
		return v.cost < o.cost
	}
	if v.bridge != o.bridge {
		return v.bridge < o.bridge
	}
	return v.port < o.port
}

// rstpPort is the per-port protocol state: the best claim heard on the
// segment and the pending state transition deadline
type rstpPort struct {
	vector       *priorityVector
	vectorAt     engine.Tick
	transitionAt engine.Tick // 0 = no transition pending
}

func (b *Bridge) portID(i int) uint16 {
	return protocols.MakePortID(uint16(i + 1))
}

// receiveBPDU folds one BPDU into the port's stored claim and re-runs the
// role election
func (b *Bridge) receiveBPDU(i int, bpdu *protocols.BPDU) {
	v := priorityVector{
		root:   bpdu.RootID,
		cost:   bpdu.RootPathCost,
		bridge: bpdu.BridgeID,
		port:   bpdu.PortID,
	}
	rp := &b.rstp[i]

	sameSender := rp.vector != nil && rp.vector.bridge == v.bridge && rp.vector.port == v.port
	if rp.vector == nil || sameSender || v.better(*rp.vector) {
		rp.vector = &v
		rp.vectorAt = b.clk.Now()
	}

	if bpdu.Flags&protocols.BPDUFlagTopologyChange != 0 {
		b.noteTopologyChange()
	}

	b.elect()
}

// elect assigns port roles from the stored vectors. The bridge assumes root
// until a superior claim is on file.
func (b *Bridge) elect() {
	own := priorityVector{root: b.bridgeID, cost: 0, bridge: b.bridgeID, port: 0}

	best := own
	bestPort := -1
	for i, p := range b.ports {
		if !p.Connected() {
			continue
		}
		rp := b.rstp[i]
		if rp.vector == nil {
			continue
		}
		cand := priorityVector{
			root:   rp.vector.root,
			cost:   rp.vector.cost + PortPathCost,
			bridge: rp.vector.bridge,
			port:   rp.vector.port,
		}
		if cand.better(best) {
			best = cand
			bestPort = i
		}
	}

	b.rootID = best.root
	b.rootCost = best.cost
	b.rootPort = bestPort

	for i, p := range b.ports {
		if !p.Connected() {
			continue
		}
		if i == bestPort {
			b.setRole(i, engine.RoleRoot)
			continue
		}
		ours := priorityVector{root: b.rootID, cost: b.rootCost, bridge: b.bridgeID, port: b.portID(i)}
		rp := b.rstp[i]
		switch {
		case rp.vector == nil || ours.better(*rp.vector):
			b.setRole(i, engine.RoleDesignated)
		case rp.vector.bridge == b.bridgeID:
			// our own claim heard back: two ports on one segment
			b.setRole(i, engine.RoleBackup)
		default:
			b.setRole(i, engine.RoleAlternate)
		}
	}

	if b.level(logging.ProtocolRSTP) >= 2 {
		logging.Trace("RSTP %s: root=%s cost=%d rootPort=%d",
			b.name, protocols.BridgeIDString(b.rootID), b.rootCost, b.rootPort)
	}
}

// setRole applies a role, scheduling the blocking-learning-forwarding walk
// for active roles and discarding for the rest. Losing an active role flags a
// topology change.
func (b *Bridge) setRole(i int, role engine.PortRole) {
	p := b.ports[i]
	old := p.Role
	if old == role {
		return
	}
	p.Role = role
	rp := &b.rstp[i]

	activeOld := old == engine.RoleRoot || old == engine.RoleDesignated
	activeNew := role == engine.RoleRoot || role == engine.RoleDesignated

	switch {
	case activeNew && activeOld:
		// Root <-> Designated: keep whatever transition progress exists
	case activeNew:
		p.State = engine.PortBlocking
		rp.transitionAt = b.clk.After(ForwardDelaySeconds)
	default:
		if activeOld && (p.State == engine.PortForwarding || p.State == engine.PortLearning) {
			b.noteTopologyChange()
		}
		p.State = engine.PortBlocking
		rp.transitionAt = 0
	}

	if b.level(logging.ProtocolRSTP) >= 1 {
		logging.Trace("RSTP %s: port %d role %s -> %s", b.name, i, old, role)
	}
}

// rstpTick ages stored claims, advances state transitions and emits hellos
func (b *Bridge) rstpTick() {
	now := b.clk.Now()
	maxAge := b.clk.Seconds(MaxAgeSeconds)

	aged := false
	for i, p := range b.ports {
		if !p.Connected() {
			continue
		}
		rp := &b.rstp[i]
		if rp.vector != nil && now-rp.vectorAt >= maxAge {
			rp.vector = nil
			aged = true
			if b.level(logging.ProtocolRSTP) >= 1 {
				logging.Trace("RSTP %s: port %d stored claim aged out", b.name, i)
			}
		}
	}
	if aged {
		b.elect()
	}

	for i, p := range b.ports {
		if !p.Connected() {
			continue
		}
		rp := &b.rstp[i]
		if rp.transitionAt == 0 || now < rp.transitionAt {
			continue
		}
		if p.Role != engine.RoleRoot && p.Role != engine.RoleDesignated {
			rp.transitionAt = 0
			continue
		}
		switch p.State {
		case engine.PortBlocking:
			p.State = engine.PortLearning
			rp.transitionAt = b.clk.After(ForwardDelaySeconds)
		case engine.PortLearning:
			p.State = engine.PortForwarding
			rp.transitionAt = 0
		default:
			rp.transitionAt = 0
		}
	}

	if now >= b.nextHello {
		for i, p := range b.ports {
			if p.Connected() && p.Role == engine.RoleDesignated {
				b.sendBPDU(i)
			}
		}
		b.nextHello = now + b.clk.Seconds(HelloTimeSeconds)
	}
}

func (b *Bridge) sendBPDU(i int) {
	p := b.ports[i]
	flags := byte(protocols.BPDURoleDesignated << protocols.BPDUFlagPortRoleShift)
	switch p.State {
	case engine.PortLearning:
		flags |= protocols.BPDUFlagLearning
	case engine.PortForwarding:
		flags |= protocols.BPDUFlagLearning | protocols.BPDUFlagForwarding
	}
	if b.tcUntil > b.clk.Now() {
		flags |= protocols.BPDUFlagTopologyChange
	}

	hops := b.rootCost / PortPathCost
	bpdu := &protocols.BPDU{
		Flags:        flags,
		RootID:       b.rootID,
		RootPathCost: b.rootCost,
		BridgeID:     b.bridgeID,
		PortID:       b.portID(i),
		MessageAge:   protocols.SecondsToWire(int(hops)),
		MaxAge:       protocols.SecondsToWire(MaxAgeSeconds),
		HelloTime:    protocols.SecondsToWire(HelloTimeSeconds),
		ForwardDelay: protocols.SecondsToWire(ForwardDelaySeconds),
	}
	pkt := protocols.EncodeBPDU(p.MAC, bpdu)
	pkt.Tick = uint64(b.clk.Now())
	p.Send(pkt)
}

// noteTopologyChange starts (or extends) the TC window, which shortens MAC
// aging and sets the TC flag on outgoing BPDUs
func (b *Bridge) noteTopologyChange() {
	until := b.clk.After(TCWhileSeconds)
	if until > b.tcUntil {
		b.tcUntil = until
	}
}
