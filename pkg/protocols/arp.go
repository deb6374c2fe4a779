package protocols

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/krisarmstrong/netsim-go/pkg/errors"
)

// ARP opcodes
const (
	ARPOpRequest = 1
	ARPOpReply   = 2
)

// Minimum ARP frame: Ethernet header + fixed IPv4-over-Ethernet ARP body
const arpMinFrameLen = EthernetHeaderLen + 28

// ARPMessage is a decoded IPv4-over-Ethernet ARP payload
type ARPMessage struct {
	Op        uint16
	SenderMAC net.HardwareAddr
	SenderIP  net.IP
	TargetMAC net.HardwareAddr
	TargetIP  net.IP
}

// IsRequest reports whether the message is a who-has request
func (m *ARPMessage) IsRequest() bool { return m.Op == ARPOpRequest }

// IsReply reports whether the message is an is-at reply
func (m *ARPMessage) IsReply() bool { return m.Op == ARPOpReply }

// BuildARPRequest constructs a broadcast who-has frame
func BuildARPRequest(senderMAC net.HardwareAddr, senderIP, targetIP net.IP) *Packet {
	return buildARP(senderMAC, BroadcastMAC, &layers.ARP{
		Operation:         layers.ARPRequest,
		SourceHwAddress:   senderMAC,
		SourceProtAddress: senderIP.To4(),
		DstHwAddress:      make([]byte, SizeOfMac),
		DstProtAddress:    targetIP.To4(),
	})
}

// BuildARPReply constructs a unicast is-at frame
func BuildARPReply(senderMAC net.HardwareAddr, senderIP net.IP, targetMAC net.HardwareAddr, targetIP net.IP) *Packet {
	return buildARP(senderMAC, targetMAC, &layers.ARP{
		Operation:         layers.ARPReply,
		SourceHwAddress:   senderMAC,
		SourceProtAddress: senderIP.To4(),
		DstHwAddress:      targetMAC,
		DstProtAddress:    targetIP.To4(),
	})
}

func buildARP(srcMAC, dstMAC net.HardwareAddr, arp *layers.ARP) *Packet {
	arp.AddrType = layers.LinkTypeEthernet
	arp.Protocol = layers.EthernetTypeIPv4
	arp.HwAddressSize = SizeOfMac
	arp.ProtAddressSize = SizeOfIP

	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeARP,
	}

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buffer, opts, eth, arp); err != nil {
		return nil
	}
	return NewPacket(buffer.Bytes())
}

// DecodeARP parses an ARP frame. Only IPv4 over Ethernet with a request or
// reply opcode is supported.
func DecodeARP(pkt *Packet) (*ARPMessage, error) {
	if len(pkt.Buffer) < arpMinFrameLen {
		return nil, errors.Truncated("arp", len(pkt.Buffer), arpMinFrameLen)
	}

	packet := gopacket.NewPacket(pkt.Buffer, layers.LayerTypeEthernet, gopacket.Default)
	arpLayer := packet.Layer(layers.LayerTypeARP)
	if arpLayer == nil {
		return nil, errors.Unsupported("arp", "missing ARP layer")
	}
	arp, ok := arpLayer.(*layers.ARP)
	if !ok {
		return nil, errors.Unsupported("arp", "missing ARP layer")
	}

	if arp.AddrType != layers.LinkTypeEthernet || arp.Protocol != layers.EthernetTypeIPv4 {
		return nil, errors.Unsupported("arp", "non IPv4-over-Ethernet binding")
	}
	if arp.HwAddressSize != SizeOfMac || arp.ProtAddressSize != SizeOfIP {
		return nil, errors.LengthMismatch("arp", "bad hardware or protocol size")
	}
	if arp.Operation != layers.ARPRequest && arp.Operation != layers.ARPReply {
		return nil, errors.Unsupported("arp", "unknown opcode")
	}

	return &ARPMessage{
		Op:        arp.Operation,
		SenderMAC: net.HardwareAddr(arp.SourceHwAddress),
		SenderIP:  net.IP(arp.SourceProtAddress),
		TargetMAC: net.HardwareAddr(arp.DstHwAddress),
		TargetIP:  net.IP(arp.DstProtAddress),
	}, nil
}
