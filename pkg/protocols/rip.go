package protocols

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/krisarmstrong/netsim-go/pkg/errors"
)

// RIPv2 constants (RFC 2453)
const (
	RIPCommandRequest  = 1
	RIPCommandResponse = 2
	RIPVersion         = 2
	RIPPort            = 520
	RIPMetricInfinity  = 16
	RIPMaxRoutes       = 25

	ripHeaderLen = 4
	ripRTELen    = 20
	ripAFIPv4    = 2
)

// RIPRoute is one route table entry in a RIPv2 message
type RIPRoute struct {
	Tag     uint16
	Network net.IP
	Mask    net.IPMask
	NextHop net.IP
	Metric  uint32
}

// RIPMessage is a decoded RIPv2 payload
type RIPMessage struct {
	Command byte
	Routes  []RIPRoute
}

// EncodeRIP serializes a RIPv2 payload
func EncodeRIP(msg *RIPMessage) []byte {
	buf := make([]byte, ripHeaderLen+ripRTELen*len(msg.Routes))
	buf[0] = msg.Command
	buf[1] = RIPVersion
	// bytes 2..3 must be zero

	off := ripHeaderLen
	for _, rt := range msg.Routes {
		binary.BigEndian.PutUint16(buf[off:], ripAFIPv4)
		binary.BigEndian.PutUint16(buf[off+2:], rt.Tag)
		copy(buf[off+4:], rt.Network.To4())
		copy(buf[off+8:], rt.Mask)
		if rt.NextHop != nil {
			copy(buf[off+12:], rt.NextHop.To4())
		}
		binary.BigEndian.PutUint32(buf[off+16:], rt.Metric)
		off += ripRTELen
	}
	return buf
}

// DecodeRIP parses a RIPv2 payload
func DecodeRIP(payload []byte) (*RIPMessage, error) {
	if len(payload) < ripHeaderLen {
		return nil, errors.Truncated("rip", len(payload), ripHeaderLen)
	}
	command := payload[0]
	if command != RIPCommandRequest && command != RIPCommandResponse {
		return nil, errors.Unsupported("rip", fmt.Sprintf("command %d", command))
	}
	if payload[1] != RIPVersion {
		return nil, errors.Unsupported("rip", fmt.Sprintf("version %d", payload[1]))
	}
	if (len(payload)-ripHeaderLen)%ripRTELen != 0 {
		return nil, errors.LengthMismatch("rip", "partial route entry")
	}

	n := (len(payload) - ripHeaderLen) / ripRTELen
	if n > RIPMaxRoutes {
		return nil, errors.LengthMismatch("rip", "more than 25 route entries")
	}

	msg := &RIPMessage{Command: command}
	off := ripHeaderLen
	for i := 0; i < n; i++ {
		afi := binary.BigEndian.Uint16(payload[off:])
		if afi != ripAFIPv4 {
			return nil, errors.Unsupported("rip", fmt.Sprintf("address family %d", afi))
		}
		rt := RIPRoute{
			Tag:     binary.BigEndian.Uint16(payload[off+2:]),
			Network: append(net.IP(nil), payload[off+4:off+8]...),
			Mask:    append(net.IPMask(nil), payload[off+8:off+12]...),
			NextHop: append(net.IP(nil), payload[off+12:off+16]...),
			Metric:  binary.BigEndian.Uint32(payload[off+16:]),
		}
		msg.Routes = append(msg.Routes, rt)
		off += ripRTELen
	}
	return msg, nil
}

// BuildRIP encapsulates a RIPv2 message in UDP 520/IPv4/Ethernet II. The
// simulation does not model multicast, so periodic responses go to the
// limited broadcast address.
func BuildRIP(srcMAC, dstMAC net.HardwareAddr, srcIP, dstIP net.IP, msg *RIPMessage) *Packet {
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      DefaultTTL,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    srcIP.To4(),
		DstIP:    dstIP.To4(),
	}
	udp := &layers.UDP{
		SrcPort: RIPPort,
		DstPort: RIPPort,
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil
	}

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buffer, opts, eth, ip, udp, gopacket.Payload(EncodeRIP(msg))); err != nil {
		return nil
	}
	return NewPacket(buffer.Bytes())
}

// DecodeRIPFrame extracts a RIPv2 message from a UDP 520 datagram
func DecodeRIPFrame(pkt *Packet) (*RIPMessage, error) {
	packet := gopacket.NewPacket(pkt.Buffer, layers.LayerTypeEthernet, gopacket.Default)
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return nil, errors.Truncated("rip", len(pkt.Buffer), EthernetHeaderLen+20+8)
	}
	udp, ok := udpLayer.(*layers.UDP)
	if !ok {
		return nil, errors.Unsupported("rip", "missing UDP layer")
	}
	if udp.DstPort != RIPPort {
		return nil, errors.Unsupported("rip", fmt.Sprintf("UDP port %d", udp.DstPort))
	}
	return DecodeRIP(udp.Payload)
}
