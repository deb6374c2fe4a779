package protocols

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/krisarmstrong/netsim-go/pkg/errors"
)

// ICMP types used by the simulation
const (
	ICMPTypeEchoReply    = 0
	ICMPTypeEchoRequest  = 8
	ICMPTypeTimeExceeded = 11
)

// BuildEcho constructs an ICMP echo request or reply inside IPv4/Ethernet II
func BuildEcho(srcMAC, dstMAC net.HardwareAddr, srcIP, dstIP net.IP, ttl uint8, request bool, id, seq uint16, payload []byte) *Packet {
	typeCode := layers.CreateICMPv4TypeCode(ICMPTypeEchoReply, 0)
	if request {
		typeCode = layers.CreateICMPv4TypeCode(ICMPTypeEchoRequest, 0)
	}
	icmp := &layers.ICMPv4{
		TypeCode: typeCode,
		Id:       id,
		Seq:      seq,
	}
	return buildICMP(srcMAC, dstMAC, srcIP, dstIP, ttl, icmp, payload)
}

// BuildTimeExceeded constructs an ICMP time-exceeded message quoting the
// offending IPv4 header plus the first eight payload octets, per RFC 792
func BuildTimeExceeded(srcMAC, dstMAC net.HardwareAddr, srcIP, dstIP net.IP, quoted *layers.IPv4, quotedPayload []byte) *Packet {
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(ICMPTypeTimeExceeded, 0),
	}

	// Re-serialize the quoted header as it arrived
	hdr := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true}
	if err := quoted.SerializeTo(hdr, opts); err != nil {
		return nil
	}
	quote := append([]byte(nil), hdr.Bytes()...)
	if len(quotedPayload) > 8 {
		quotedPayload = quotedPayload[:8]
	}
	quote = append(quote, quotedPayload...)

	return buildICMP(srcMAC, dstMAC, srcIP, dstIP, DefaultTTL, icmp, quote)
}

func buildICMP(srcMAC, dstMAC net.HardwareAddr, srcIP, dstIP net.IP, ttl uint8, icmp *layers.ICMPv4, payload []byte) *Packet {
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      ttl,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    srcIP.To4(),
		DstIP:    dstIP.To4(),
	}

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buffer, opts, eth, ip, icmp, gopacket.Payload(payload)); err != nil {
		return nil
	}
	return NewPacket(buffer.Bytes())
}

// DecodeICMP parses the ICMP layer of a frame already known to carry
// IP protocol 1
func DecodeICMP(pkt *Packet) (*layers.ICMPv4, error) {
	packet := gopacket.NewPacket(pkt.Buffer, layers.LayerTypeEthernet, gopacket.Default)
	icmpLayer := packet.Layer(layers.LayerTypeICMPv4)
	if icmpLayer == nil {
		return nil, errors.Truncated("icmp", len(pkt.Buffer), EthernetHeaderLen+20+8)
	}
	icmp, ok := icmpLayer.(*layers.ICMPv4)
	if !ok {
		return nil, errors.Unsupported("icmp", "missing ICMP layer")
	}
	return icmp, nil
}
