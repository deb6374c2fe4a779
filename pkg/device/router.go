package device

import (
	"bytes"
	"net"
	"strings"

	"github.com/google/gopacket/layers"
	"github.com/krisarmstrong/netsim-go/pkg/engine"
	"github.com/krisarmstrong/netsim-go/pkg/errors"
	"github.com/krisarmstrong/netsim-go/pkg/logging"
	"github.com/krisarmstrong/netsim-go/pkg/protocols"
)

// Iface is one routed interface: an address, a mask and an ARP resolver of
// its own
type Iface struct {
	IP   net.IP
	Mask net.IPMask
	arp  *ARPCache

	needsRequest bool // RIP request pending on this interface
}

// Configured reports whether the interface has an address
func (i *Iface) Configured() bool { return i.IP != nil }

// Router forwards IPv4 between its interfaces and runs RIPv2
type Router struct {
	base

	ifaces []*Iface
	table  *RouteTable
	rip    ripState
}

// NewRouter creates a router with the given interface count
func NewRouter(name string, numIfaces int, e *engine.Engine) *Router {
	if numIfaces < 1 {
		numIfaces = 1
	}
	r := &Router{
		base: base{
			name:  name,
			kind:  KindRouter,
			debug: e.Debug(),
		},
		table: NewRouteTable(),
	}
	for i := 0; i < numIfaces; i++ {
		r.ports = append(r.ports, engine.NewPort(e.NextMAC()))
		r.ifaces = append(r.ifaces, &Iface{})
	}
	return r
}

// Attach wires the clock-dependent state
func (r *Router) Attach(id int, clk *engine.Clock) {
	r.base.Attach(id, clk)
	for _, ifc := range r.ifaces {
		ifc.arp = NewARPCache(clk)
	}
}

// ConfigureIP assigns an interface address and installs its connected route.
// Reapplying the same address is a no-op; conflicts are rejected with state
// unchanged.
func (r *Router) ConfigureIP(port int, ip net.IP, mask net.IPMask, _ net.IP) error {
	if port < 0 || port >= len(r.ifaces) {
		return errors.Configf("configure_ip", "%s has no interface %d", r.name, port)
	}
	if ip.To4() == nil {
		return errors.Configf("configure_ip", "not an IPv4 address: %s", ip)
	}
	if ones, bits := mask.Size(); bits != 32 || ones == 0 {
		return errors.Configf("configure_ip", "bad mask %s", net.IP(mask))
	}
	ifc := r.ifaces[port]
	if ifc.Configured() && ifc.IP.Equal(ip.To4()) && bytes.Equal(ifc.Mask, mask) {
		return nil
	}
	for i, other := range r.ifaces {
		if i == port || !other.Configured() {
			continue
		}
		if protocols.SameSubnet(other.IP, ip, mask) {
			return errors.Configf("configure_ip", "subnet of %s overlaps interface %d", ip, i)
		}
	}

	ifc.IP = ip.To4()
	ifc.Mask = mask
	ifc.needsRequest = true
	r.table.Insert(&Route{
		Network:   ip.To4().Mask(mask),
		Mask:      mask,
		IfIndex:   port,
		Metric:    0,
		UpdatedAt: r.clk.Now(),
	})
	return nil
}

// Routes returns the routing table for display
func (r *Router) Routes() []*Route { return r.table.All() }

// ARPTable returns interface idx's fresh bindings
func (r *Router) ARPTable(idx int) []ARPCacheEntry { return r.ifaces[idx].arp.Entries() }

// PendingARP returns interface idx's next hops awaiting resolution
func (r *Router) PendingARP(idx int) []PendingEntry { return r.ifaces[idx].arp.Pending() }

// LinkUp reinstalls the connected route and re-solicits neighbors
func (r *Router) LinkUp(port int) {
	r.base.LinkUp(port)
	ifc := r.ifaces[port]
	if ifc.Configured() {
		r.table.Insert(&Route{
			Network:   ifc.IP.Mask(ifc.Mask),
			Mask:      ifc.Mask,
			IfIndex:   port,
			Metric:    0,
			UpdatedAt: r.clk.Now(),
		})
		ifc.needsRequest = true
	}
}

// LinkDown poisons every route through the dead interface
func (r *Router) LinkDown(port int) {
	changed := false
	for _, rt := range r.table.All() {
		if rt.IfIndex == port && !rt.Unreachable() {
			rt.Metric = protocols.RIPMetricInfinity
			rt.GarbageAt = r.clk.After(RIPGarbageSeconds)
			changed = true
		}
	}
	if changed {
		r.scheduleTriggered()
	}
}

// Poll drains every interface, ages caches and runs the RIP timers
func (r *Router) Poll() {
	for i, p := range r.ports {
		if !p.Connected() {
			continue
		}
		for _, pkt := range p.Receive() {
			r.handleFrame(i, pkt)
		}
	}

	for i, ifc := range r.ifaces {
		if dropped := ifc.arp.Expire(); dropped > 0 {
			r.ports[i].Counters.Drops[errors.DropNoArp] += uint64(dropped)
		}
	}

	r.ripTick()
}

func (r *Router) handleFrame(idx int, pkt *protocols.Packet) {
	p := r.ports[idx]
	dst := pkt.GetDestMAC()
	if !bytes.Equal(dst, p.MAC) && !pkt.IsBroadcast() {
		p.Counters.Drop(errors.DropNotForUs)
		return
	}
	if !pkt.IsEthernetII() {
		return
	}

	switch pkt.TypeOrLen() {
	case protocols.EtherTypeARP:
		r.handleARP(idx, pkt)
	case protocols.EtherTypeIPv4:
		r.handleIPv4(idx, pkt)
	default:
		p.Counters.Drop(errors.DropCodec)
	}
}

func (r *Router) handleARP(idx int, pkt *protocols.Packet) {
	p := r.ports[idx]
	ifc := r.ifaces[idx]
	msg, err := protocols.DecodeARP(pkt)
	if err != nil {
		p.Counters.Drop(errors.DropCodec)
		return
	}
	if !ifc.Configured() {
		return
	}

	switch {
	case msg.IsRequest():
		if !msg.TargetIP.Equal(ifc.IP) {
			return
		}
		ifc.arp.Insert(msg.SenderIP, msg.SenderMAC)
		reply := protocols.BuildARPReply(p.MAC, ifc.IP, msg.SenderMAC, msg.SenderIP)
		r.sendFrame(idx, reply)

	case msg.IsReply():
		ifc.arp.Insert(msg.SenderIP, msg.SenderMAC)
		for _, flushed := range ifc.arp.Flush(msg.SenderIP, msg.SenderMAC) {
			r.sendFrame(idx, flushed)
		}
	}
}

func (r *Router) handleIPv4(idx int, pkt *protocols.Packet) {
	p := r.ports[idx]
	ifc := r.ifaces[idx]
	ip, payload, err := protocols.DecodeIPv4(pkt)
	if err != nil {
		p.Counters.Drop(errors.DropCodec)
		return
	}
	if !ifc.Configured() {
		return
	}

	if r.ownIP(ip.DstIP) || protocols.IsBroadcastIP(ip.DstIP, ifc.IP, ifc.Mask) {
		r.consumeLocal(idx, pkt, ip, payload)
		return
	}

	// Transit traffic
	if ip.TTL <= 1 {
		p.Counters.Drop(errors.DropTTLExpired)
		r.sendTimeExceeded(idx, ip, payload)
		return
	}
	r.forward(ip, payload)
}

func (r *Router) ownIP(ip net.IP) bool {
	for _, ifc := range r.ifaces {
		if ifc.Configured() && ifc.IP.Equal(ip.To4()) {
			return true
		}
	}
	return false
}

func (r *Router) consumeLocal(idx int, pkt *protocols.Packet, ip *layers.IPv4, payload []byte) {
	switch ip.Protocol {
	case layers.IPProtocolICMPv4:
		icmp, err := protocols.DecodeICMP(pkt)
		if err != nil {
			r.ports[idx].Counters.Drop(errors.DropCodec)
			return
		}
		if icmp.TypeCode.Type() == protocols.ICMPTypeEchoRequest && r.ownIP(ip.DstIP) {
			src := ip.DstIP.To4()
			dst := ip.SrcIP.To4()
			r.sendRouted(dst, func(egress int, dstMAC net.HardwareAddr) *protocols.Packet {
				return protocols.BuildEcho(r.ports[egress].MAC, dstMAC, src, dst,
					protocols.DefaultTTL, false, icmp.Id, icmp.Seq, icmp.Payload)
			})
		}
	case layers.IPProtocolUDP:
		msg, err := protocols.DecodeRIPFrame(pkt)
		if err != nil {
			r.tracef(logging.ProtocolRIP, 2, "%v", err)
			return
		}
		r.receiveRIP(idx, pkt.GetSourceMAC(), ip.SrcIP.To4(), msg)
	default:
		r.tracef(logging.ProtocolIP, 3, "ignoring local protocol %d from %s", ip.Protocol, ip.SrcIP)
	}
}

// forward relays a transit datagram with a decremented TTL
func (r *Router) forward(ip *layers.IPv4, payload []byte) {
	hdr := *ip
	hdr.TTL--
	dst := ip.DstIP.To4()
	r.sendRouted(dst, func(egress int, dstMAC net.HardwareAddr) *protocols.Packet {
		h := hdr
		return protocols.ReframeIPv4(r.ports[egress].MAC, dstMAC, &h, payload)
	})
}

// sendRouted looks up the egress for dst and transmits, parking on ARP miss.
// The build callback receives the resolved egress interface and MAC.
func (r *Router) sendRouted(dst net.IP, build func(egress int, dstMAC net.HardwareAddr) *protocols.Packet) {
	rt := r.table.Lookup(dst)
	if rt == nil {
		// Counted on interface 0 for want of an egress
		r.ports[0].Counters.Drop(errors.DropNoRoute)
		r.tracef(logging.ProtocolIP, 2, "no route to %s", dst)
		return
	}
	egress := rt.IfIndex
	ifc := r.ifaces[egress]
	if !r.ports[egress].Connected() {
		r.ports[egress].Counters.Drop(errors.DropNoRoute)
		return
	}

	nextHop := dst.To4()
	if !rt.Connected() {
		nextHop = rt.NextHop
	}

	if mac, ok := ifc.arp.Lookup(nextHop); ok {
		if pkt := build(egress, mac); pkt != nil {
			r.sendFrame(egress, pkt)
		}
		return
	}
	if first := ifc.arp.Park(nextHop, func(mac net.HardwareAddr) *protocols.Packet {
		return build(egress, mac)
	}); first {
		r.sendFrame(egress, protocols.BuildARPRequest(r.ports[egress].MAC, ifc.IP, nextHop))
	}
}

func (r *Router) sendTimeExceeded(idx int, ip *layers.IPv4, payload []byte) {
	ifc := r.ifaces[idx]
	src := ifc.IP
	dst := ip.SrcIP.To4()
	quoted := *ip
	r.sendRouted(dst, func(egress int, dstMAC net.HardwareAddr) *protocols.Packet {
		q := quoted
		return protocols.BuildTimeExceeded(r.ports[egress].MAC, dstMAC, src, dst, &q, payload)
	})
}

func (r *Router) sendFrame(idx int, pkt *protocols.Packet) {
	pkt.Tick = uint64(r.clk.Now())
	r.ports[idx].Send(pkt)
}

// Command executes a console line: show ip route, show arp
func (r *Router) Command(line string) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "show" {
		r.consolef("unknown command: %s", line)
		return
	}
	switch {
	case fields[1] == "ip" && len(fields) >= 3 && fields[2] == "route":
		for _, rt := range r.table.All() {
			ones, _ := rt.Mask.Size()
			switch {
			case rt.Connected():
				r.consolef("C  %s/%d is directly connected, if%d", rt.Network, ones, rt.IfIndex)
			case rt.Unreachable():
				r.consolef("R  %s/%d [unreachable] via %s, if%d", rt.Network, ones, rt.NextHop, rt.IfIndex)
			default:
				r.consolef("R  %s/%d [metric %d] via %s, if%d", rt.Network, ones, rt.Metric, rt.NextHop, rt.IfIndex)
			}
		}
	case fields[1] == "arp":
		for i, ifc := range r.ifaces {
			if !ifc.Configured() {
				continue
			}
			for _, e := range ifc.arp.Entries() {
				r.consolef("if%d  %-15s  %s  age %ds", i, e.IP, e.MAC, int(e.Age)/engine.DefaultTicksPerSecond)
			}
		}
	default:
		r.consolef("unknown show target: %s", fields[1])
	}
}
