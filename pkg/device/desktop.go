package device

import (
	"net"
	"strconv"
	"strings"

	"github.com/google/gopacket/layers"
	"github.com/krisarmstrong/netsim-go/pkg/engine"
	"github.com/krisarmstrong/netsim-go/pkg/errors"
	"github.com/krisarmstrong/netsim-go/pkg/logging"
	"github.com/krisarmstrong/netsim-go/pkg/protocols"
)

// Desktop is an end host: one port, one IPv4 address, a default gateway and
// an ARP resolver
type Desktop struct {
	base

	ip      net.IP
	mask    net.IPMask
	gateway net.IP

	arp     *ARPCache
	icmpSeq uint16
	ping    *pingSession
}

type pingSession struct {
	dst       net.IP
	id        uint16
	remaining int
	sent      int
	received  int
	nextAt    engine.Tick
	doneAt    engine.Tick // close deadline once all requests are out
	done      bool
}

// NewDesktop creates an end host with one engine-addressed port
func NewDesktop(name string, e *engine.Engine) *Desktop {
	d := &Desktop{
		base: base{
			name:  name,
			kind:  KindDesktop,
			debug: e.Debug(),
			ports: []*engine.Port{engine.NewPort(e.NextMAC())},
		},
	}
	return d
}

// Attach wires the clock-dependent state
func (d *Desktop) Attach(id int, clk *engine.Clock) {
	d.base.Attach(id, clk)
	d.arp = NewARPCache(clk)
}

// ConfigureIP assigns the host address. Reapplying the same address is a
// no-op; a bad mask or port is rejected with engine state unchanged.
func (d *Desktop) ConfigureIP(port int, ip net.IP, mask net.IPMask, gateway net.IP) error {
	if port != 0 {
		return errors.Configf("configure_ip", "%s has a single port", d.name)
	}
	if ip.To4() == nil {
		return errors.Configf("configure_ip", "not an IPv4 address: %s", ip)
	}
	if ones, bits := mask.Size(); bits != 32 || ones == 0 {
		return errors.Configf("configure_ip", "bad mask %s", net.IP(mask))
	}
	d.ip = ip.To4()
	d.mask = mask
	if gateway != nil {
		d.gateway = gateway.To4()
	}
	return nil
}

// IP returns the configured address
func (d *Desktop) IP() net.IP { return d.ip }

// ARPTable returns the fresh cache entries for display
func (d *Desktop) ARPTable() []ARPCacheEntry { return d.arp.Entries() }

// PendingARP returns the next hops still awaiting resolution
func (d *Desktop) PendingARP() []PendingEntry { return d.arp.Pending() }

// PingStats reports requests sent and replies received for the current or
// last ping session
func (d *Desktop) PingStats() (sent, received int) {
	if d.ping == nil {
		return 0, 0
	}
	return d.ping.sent, d.ping.received
}

// Poll drains the inbox, ages the ARP cache and advances any ping session
func (d *Desktop) Poll() {
	port := d.ports[0]
	for _, pkt := range port.Receive() {
		d.handleFrame(pkt)
	}

	if dropped := d.arp.Expire(); dropped > 0 {
		port.Counters.Drops[errors.DropNoArp] += uint64(dropped)
		d.tracef(logging.ProtocolARP, 2, "dropped %d frames awaiting resolution", dropped)
	}

	d.pollPing()
}

func (d *Desktop) handleFrame(pkt *protocols.Packet) {
	port := d.ports[0]
	if !pkt.DestIsFor(port.MAC) {
		port.Counters.Drop(errors.DropNotForUs)
		return
	}
	if !pkt.IsEthernetII() {
		// LLC traffic (BPDUs) is switch business; hosts ignore it
		d.tracef(logging.ProtocolEthernet, 3, "ignoring 802.3 frame sn=%d", pkt.SerialNumber)
		return
	}

	switch pkt.TypeOrLen() {
	case protocols.EtherTypeARP:
		d.handleARP(pkt)
	case protocols.EtherTypeIPv4:
		d.handleIPv4(pkt)
	default:
		port.Counters.Drop(errors.DropCodec)
		d.tracef(logging.ProtocolEthernet, 2, "unsupported EtherType 0x%04x sn=%d", pkt.TypeOrLen(), pkt.SerialNumber)
	}
}

func (d *Desktop) handleARP(pkt *protocols.Packet) {
	port := d.ports[0]
	msg, err := protocols.DecodeARP(pkt)
	if err != nil {
		port.Counters.Drop(errors.DropCodec)
		d.tracef(logging.ProtocolARP, 2, "%v", err)
		return
	}

	switch {
	case msg.IsRequest():
		if d.ip == nil || !msg.TargetIP.Equal(d.ip) {
			return
		}
		// The request carries the sender binding; keep it so the reply
		// path needs no resolution of its own
		d.arp.Insert(msg.SenderIP, msg.SenderMAC)
		reply := protocols.BuildARPReply(port.MAC, d.ip, msg.SenderMAC, msg.SenderIP)
		d.sendFrame(reply)
		d.tracef(logging.ProtocolARP, 3, "%s is-at %s, telling %s", d.ip, port.MAC, msg.SenderIP)

	case msg.IsReply():
		d.arp.Insert(msg.SenderIP, msg.SenderMAC)
		for _, flushed := range d.arp.Flush(msg.SenderIP, msg.SenderMAC) {
			d.sendFrame(flushed)
		}
		d.tracef(logging.ProtocolARP, 3, "learned %s is-at %s", msg.SenderIP, msg.SenderMAC)
	}
}

func (d *Desktop) handleIPv4(pkt *protocols.Packet) {
	port := d.ports[0]
	ip, _, err := protocols.DecodeIPv4(pkt)
	if err != nil {
		port.Counters.Drop(errors.DropCodec)
		d.tracef(logging.ProtocolIP, 2, "%v", err)
		return
	}
	if d.ip == nil || !ip.DstIP.Equal(d.ip) {
		if !ip.DstIP.Equal(protocols.LimitedBroadcastIP) {
			port.Counters.Drop(errors.DropNotForUs)
		}
		return
	}

	if ip.Protocol != protocols.IPProtocolICMP {
		d.tracef(logging.ProtocolIP, 3, "ignoring protocol %d from %s", ip.Protocol, ip.SrcIP)
		return
	}

	icmp, err := protocols.DecodeICMP(pkt)
	if err != nil {
		port.Counters.Drop(errors.DropCodec)
		return
	}

	switch icmp.TypeCode.Type() {
	case protocols.ICMPTypeEchoRequest:
		d.sendEchoReply(ip.SrcIP, icmp.Id, icmp.Seq, icmp.Payload)
	case protocols.ICMPTypeEchoReply:
		d.recordEchoReply(ip, icmp)
	case protocols.ICMPTypeTimeExceeded:
		d.consolef("From %s: time to live exceeded", ip.SrcIP)
	default:
		d.tracef(logging.ProtocolICMP, 3, "ignoring ICMP type %d", icmp.TypeCode.Type())
	}
}

func (d *Desktop) sendEchoReply(dst net.IP, id, seq uint16, payload []byte) {
	port := d.ports[0]
	d.tracef(logging.ProtocolICMP, 3, "echo request id=%d seq=%d from %s", id, seq, dst)
	d.sendIPv4(dst, func(dstMAC net.HardwareAddr) *protocols.Packet {
		return protocols.BuildEcho(port.MAC, dstMAC, d.ip, dst, protocols.DefaultTTL, false, id, seq, payload)
	})
}

func (d *Desktop) recordEchoReply(ip *layers.IPv4, icmp *layers.ICMPv4) {
	s := d.ping
	if s == nil || icmp.Id != s.id {
		return
	}
	s.received++
	d.consolef("Reply from %s: icmp_seq=%d ttl=%d", ip.SrcIP, icmp.Seq, ip.TTL)
}

// sendIPv4 resolves the next hop for dst and transmits, parking the frame on
// an ARP miss. Off-link destinations go through the default gateway.
func (d *Desktop) sendIPv4(dst net.IP, build func(net.HardwareAddr) *protocols.Packet) {
	port := d.ports[0]
	nextHop := dst.To4()
	if !protocols.SameSubnet(dst, d.ip, d.mask) {
		if d.gateway == nil {
			port.Counters.Drop(errors.DropNoGateway)
			d.consolef("no route to %s: default gateway not set", dst)
			return
		}
		nextHop = d.gateway
	}

	if mac, ok := d.arp.Lookup(nextHop); ok {
		if pkt := build(mac); pkt != nil {
			d.sendFrame(pkt)
		}
		return
	}

	if first := d.arp.Park(nextHop, build); first {
		d.sendFrame(protocols.BuildARPRequest(port.MAC, d.ip, nextHop))
		d.tracef(logging.ProtocolARP, 3, "who-has %s tell %s", nextHop, d.ip)
	}
}

func (d *Desktop) sendFrame(pkt *protocols.Packet) {
	pkt.Tick = uint64(d.clk.Now())
	d.ports[0].Send(pkt)
}

// StartPing begins an echo session toward dst
func (d *Desktop) StartPing(dst net.IP, count int) {
	if count <= 0 {
		count = DefaultPingCount
	}
	d.ping = &pingSession{
		dst:       dst.To4(),
		id:        uint16(d.id + 1),
		remaining: count,
		nextAt:    d.clk.Now(),
	}
	d.consolef("PING %s: %d requests", dst, count)
}

func (d *Desktop) pollPing() {
	s := d.ping
	if s == nil || s.done {
		return
	}
	now := d.clk.Now()

	if s.remaining > 0 && now >= s.nextAt {
		s.remaining--
		s.sent++
		d.icmpSeq++
		seq := d.icmpSeq
		port := d.ports[0]
		d.sendIPv4(s.dst, func(dstMAC net.HardwareAddr) *protocols.Packet {
			return protocols.BuildEcho(port.MAC, dstMAC, d.ip, s.dst, protocols.DefaultTTL, true, s.id, seq, nil)
		})
		s.nextAt = now + d.clk.Seconds(PingIntervalSeconds)
		if s.remaining == 0 {
			s.doneAt = now + d.clk.Seconds(2*PingIntervalSeconds)
		}
	}

	if s.remaining == 0 && (s.received == s.sent || now >= s.doneAt) {
		d.consolef("--- %s ping statistics: %d transmitted, %d received ---", s.dst, s.sent, s.received)
		s.done = true
	}
}

// Command executes a console line: ping, ipconfig, show arp
func (d *Desktop) Command(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "ping":
		if len(fields) < 2 {
			d.consolef("usage: ping <ip> [count N]")
			return
		}
		dst := net.ParseIP(fields[1])
		if dst == nil || dst.To4() == nil {
			d.consolef("bad address: %s", fields[1])
			return
		}
		count := DefaultPingCount
		if len(fields) >= 4 && fields[2] == "count" {
			if n, err := strconv.Atoi(fields[3]); err == nil {
				count = n
			}
		}
		d.StartPing(dst, count)

	case "ipconfig":
		d.consolef("%s: ip %s mask %s gateway %s mac %s",
			d.name, ipString(d.ip), maskString(d.mask), ipString(d.gateway), d.ports[0].MAC)

	case "show":
		if len(fields) >= 2 && fields[1] == "arp" {
			for _, e := range d.arp.Entries() {
				d.consolef("%-15s  %s  age %ds", e.IP, e.MAC, int(e.Age)/engine.DefaultTicksPerSecond)
			}
			return
		}
		d.consolef("unknown show target")

	default:
		d.consolef("unknown command: %s", fields[0])
	}
}

func ipString(ip net.IP) string {
	if ip == nil {
		return "-"
	}
	return ip.String()
}

func maskString(mask net.IPMask) string {
	if mask == nil {
		return "-"
	}
	return net.IP(mask).String()
}
