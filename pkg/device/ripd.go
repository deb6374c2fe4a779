package device

import (
	"net"

	"github.com/krisarmstrong/netsim-go/pkg/engine"
	"github.com/krisarmstrong/netsim-go/pkg/logging"
	"github.com/krisarmstrong/netsim-go/pkg/protocols"
)

// ripState carries the router's RIPv2 timers
type ripState struct {
	nextUpdate    engine.Tick
	triggeredAt   engine.Tick // 0 = no triggered update scheduled
	lastTriggered engine.Tick
}

// ripTick runs the periodic advertisement, route aging and triggered-update
// machinery once per engine tick
func (r *Router) ripTick() {
	now := r.clk.Now()

	// Solicit full tables on freshly configured or re-cabled interfaces
	for i, ifc := range r.ifaces {
		if ifc.needsRequest && ifc.Configured() && r.ports[i].Connected() {
			ifc.needsRequest = false
			req := &protocols.RIPMessage{Command: protocols.RIPCommandRequest}
			r.sendFrame(i, protocols.BuildRIP(r.ports[i].MAC, protocols.BroadcastMAC,
				ifc.IP, protocols.LimitedBroadcastIP, req))
			r.tracef(logging.ProtocolRIP, 2, "request on if%d", i)
		}
	}

	r.ageRoutes()

	if r.rip.nextUpdate == 0 {
		r.rip.nextUpdate = r.clk.After(RIPUpdateIntervalSeconds)
	}
	if now >= r.rip.nextUpdate {
		r.sendUpdates()
		r.rip.nextUpdate = r.clk.After(RIPUpdateIntervalSeconds)
	}
	if r.rip.triggeredAt != 0 && now >= r.rip.triggeredAt {
		r.rip.triggeredAt = 0
		r.rip.lastTriggered = now
		r.sendUpdates()
		r.tracef(logging.ProtocolRIP, 2, "triggered update")
	}
}

// ageRoutes expires learned routes: unrefreshed past RIP_TIMEOUT they turn
// unreachable; RIP_GARBAGE later they are removed
func (r *Router) ageRoutes() {
	now := r.clk.Now()
	timeout := r.clk.Seconds(RIPTimeoutSeconds)
	changed := false

	for _, rt := range r.table.All() {
		if rt.Connected() && !rt.Unreachable() {
			continue
		}
		if !rt.Connected() && !rt.Unreachable() && now-rt.UpdatedAt >= timeout {
			rt.Metric = protocols.RIPMetricInfinity
			rt.GarbageAt = r.clk.After(RIPGarbageSeconds)
			changed = true
			r.tracef(logging.ProtocolRIP, 1, "route %s timed out", rt.key())
		}
		if rt.Unreachable() && rt.GarbageAt != 0 && now >= rt.GarbageAt {
			r.table.Remove(rt.Network, rt.Mask)
			r.tracef(logging.ProtocolRIP, 1, "route %s garbage collected", rt.key())
		}
	}
	if changed {
		r.scheduleTriggered()
	}
}

// scheduleTriggered queues an immediate update, held down so bursts of
// changes coalesce into one response
func (r *Router) scheduleTriggered() {
	if r.rip.triggeredAt != 0 {
		return
	}
	at := r.clk.Now() + 1
	if earliest := r.rip.lastTriggered + r.clk.Seconds(RIPHolddownSeconds); earliest > at {
		at = earliest
	}
	r.rip.triggeredAt = at
}

// sendUpdates multicasts a response on every active interface. Multicast is
// not modeled, so responses go to the limited broadcast address.
func (r *Router) sendUpdates() {
	for i, ifc := range r.ifaces {
		if !ifc.Configured() || !r.ports[i].Connected() {
			continue
		}
		for _, msg := range r.buildResponses(i) {
			r.sendFrame(i, protocols.BuildRIP(r.ports[i].MAC, protocols.BroadcastMAC,
				ifc.IP, protocols.LimitedBroadcastIP, msg))
		}
	}
}

// buildResponses assembles the response messages for one interface, applying
// split horizon with poisoned reverse and the 25-entry message limit
func (r *Router) buildResponses(iface int) []*protocols.RIPMessage {
	var routes []protocols.RIPRoute
	for _, rt := range r.table.All() {
		metric := rt.Metric
		if !rt.Connected() && rt.IfIndex == iface {
			metric = protocols.RIPMetricInfinity
		}
		routes = append(routes, protocols.RIPRoute{
			Network: rt.Network,
			Mask:    rt.Mask,
			Metric:  metric,
		})
	}

	var msgs []*protocols.RIPMessage
	for len(routes) > 0 {
		n := len(routes)
		if n > protocols.RIPMaxRoutes {
			n = protocols.RIPMaxRoutes
		}
		msgs = append(msgs, &protocols.RIPMessage{
			Command: protocols.RIPCommandResponse,
			Routes:  routes[:n],
		})
		routes = routes[n:]
	}
	return msgs
}

// receiveRIP processes a request or response arriving on iface from the
// neighbor at srcIP/srcMAC
func (r *Router) receiveRIP(iface int, srcMAC net.HardwareAddr, srcIP net.IP, msg *protocols.RIPMessage) {
	ifc := r.ifaces[iface]

	switch msg.Command {
	case protocols.RIPCommandRequest:
		// Answer with the full table, unicast to the requester
		for _, resp := range r.buildResponses(iface) {
			r.sendFrame(iface, protocols.BuildRIP(r.ports[iface].MAC, srcMAC, ifc.IP, srcIP, resp))
		}

	case protocols.RIPCommandResponse:
		if !protocols.SameSubnet(srcIP, ifc.IP, ifc.Mask) {
			r.tracef(logging.ProtocolRIP, 2, "response from off-link %s ignored", srcIP)
			return
		}
		changed := false
		for _, rte := range msg.Routes {
			if r.applyRTE(iface, srcIP, rte) {
				changed = true
			}
		}
		if changed {
			r.scheduleTriggered()
		}
	}
}

// applyRTE folds one advertised route into the table, returning whether a
// metric changed
func (r *Router) applyRTE(iface int, neighbor net.IP, rte protocols.RIPRoute) bool {
	metric := rte.Metric + 1
	if metric > protocols.RIPMetricInfinity {
		metric = protocols.RIPMetricInfinity
	}
	if _, bits := rte.Mask.Size(); bits != 32 {
		return false
	}

	now := r.clk.Now()
	existing := r.table.Find(rte.Network, rte.Mask)

	if existing == nil {
		// An advertised infinity never creates a route; an advertised 15
		// comes in at 16 and starts its deletion timer immediately
		if rte.Metric >= protocols.RIPMetricInfinity {
			return false
		}
		nr := &Route{
			Network:     rte.Network,
			Mask:        rte.Mask,
			NextHop:     neighbor,
			IfIndex:     iface,
			Metric:      metric,
			LearnedFrom: neighbor,
			UpdatedAt:   now,
		}
		if nr.Unreachable() {
			nr.GarbageAt = r.clk.After(RIPGarbageSeconds)
		}
		r.table.Insert(nr)
		r.tracef(logging.ProtocolRIP, 1, "learned %s [metric %d] via %s", rte.Network, metric, neighbor)
		return true
	}

	if existing.Connected() {
		return false
	}

	sameNeighbor := existing.LearnedFrom != nil && existing.LearnedFrom.Equal(neighbor)
	if sameNeighbor {
		existing.UpdatedAt = now
		if metric != existing.Metric {
			existing.Metric = metric
			if metric >= protocols.RIPMetricInfinity {
				existing.GarbageAt = r.clk.After(RIPGarbageSeconds)
			} else {
				existing.GarbageAt = 0
			}
			return true
		}
		return false
	}

	if metric < existing.Metric {
		r.table.Insert(&Route{
			Network:     rte.Network,
			Mask:        rte.Mask,
			NextHop:     neighbor,
			IfIndex:     iface,
			Metric:      metric,
			LearnedFrom: neighbor,
			UpdatedAt:   now,
		})
		return true
	}
	return false
}
