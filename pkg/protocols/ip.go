package protocols

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/krisarmstrong/netsim-go/pkg/errors"
)

// IP protocol numbers
const (
	IPProtocolICMP = 1
	IPProtocolUDP  = 17
)

// DefaultTTL is the initial time-to-live for locally originated datagrams
const DefaultTTL = 64

// Limited broadcast destination
var LimitedBroadcastIP = net.IPv4(255, 255, 255, 255).To4()

// BuildIPv4 encapsulates payload in an IPv4 datagram inside an Ethernet II
// frame. IHL is always 5; options are not supported.
func BuildIPv4(srcMAC, dstMAC net.HardwareAddr, srcIP, dstIP net.IP, ttl uint8, proto layers.IPProtocol, payload []byte) *Packet {
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      ttl,
		Protocol: proto,
		SrcIP:    srcIP.To4(),
		DstIP:    dstIP.To4(),
	}

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buffer, opts, eth, ip, gopacket.Payload(payload)); err != nil {
		return nil
	}
	return NewPacket(buffer.Bytes())
}

// ReframeIPv4 re-encapsulates a forwarded datagram on a new link. The IPv4
// header is written as given (the caller decrements the TTL beforehand) and
// the payload is left intact; length and checksum are recomputed.
func ReframeIPv4(srcMAC, dstMAC net.HardwareAddr, ip *layers.IPv4, payload []byte) *Packet {
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buffer, opts, eth, ip, gopacket.Payload(payload)); err != nil {
		return nil
	}
	return NewPacket(buffer.Bytes())
}

// DecodeIPv4 parses an IPv4 datagram out of an Ethernet II frame and returns
// the header layer plus its payload. Checksums are not validated on receive.
func DecodeIPv4(pkt *Packet) (*layers.IPv4, []byte, error) {
	if len(pkt.Buffer) < EthernetHeaderLen+20 {
		return nil, nil, errors.Truncated("ipv4", len(pkt.Buffer), EthernetHeaderLen+20)
	}

	packet := gopacket.NewPacket(pkt.Buffer, layers.LayerTypeEthernet, gopacket.Default)
	ipLayer := packet.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return nil, nil, errors.Unsupported("ipv4", "missing IPv4 layer")
	}
	ip, ok := ipLayer.(*layers.IPv4)
	if !ok {
		return nil, nil, errors.Unsupported("ipv4", "missing IPv4 layer")
	}
	if ip.Version != 4 {
		return nil, nil, errors.Unsupported("ipv4", "bad version")
	}
	if ip.IHL != 5 {
		return nil, nil, errors.Unsupported("ipv4", "options not supported")
	}
	return ip, ip.Payload, nil
}

// SameSubnet reports whether two addresses share a subnet under mask
func SameSubnet(a, b net.IP, mask net.IPMask) bool {
	a4, b4 := a.To4(), b.To4()
	if a4 == nil || b4 == nil {
		return false
	}
	return a4.Mask(mask).Equal(b4.Mask(mask))
}

// DirectedBroadcast returns network | ^mask for the subnet containing ip
func DirectedBroadcast(ip net.IP, mask net.IPMask) net.IP {
	ip4 := ip.To4()
	out := make(net.IP, SizeOfIP)
	for i := 0; i < SizeOfIP; i++ {
		out[i] = ip4[i]&mask[i] | ^mask[i]
	}
	return out
}

// IsBroadcastIP reports whether dst is the limited broadcast address or the
// directed broadcast of the given interface subnet
func IsBroadcastIP(dst, ifIP net.IP, mask net.IPMask) bool {
	d := dst.To4()
	if d == nil {
		return false
	}
	if d.Equal(LimitedBroadcastIP) {
		return true
	}
	return d.Equal(DirectedBroadcast(ifIP, mask))
}
