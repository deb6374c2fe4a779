package protocols

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/krisarmstrong/netsim-go/pkg/errors"
)

// RSTP BPDU constants
const (
	RSTPProtocolID = 0x0000
	RSTPVersion    = 0x02
	BPDUTypeRSTP   = 0x02

	// Body length: protocol(2) version(1) type(1) flags(1) root(8) cost(4)
	// bridge(8) port(2) msg-age(2) max-age(2) hello(2) fwd-delay(2) v1len(1)
	BPDULen = 36
)

// BPDU flag bits
const (
	BPDUFlagTopologyChange    = 0x01
	BPDUFlagProposal          = 0x02
	BPDUFlagPortRoleShift     = 2 // 2 bits for port role
	BPDUFlagLearning          = 0x10
	BPDUFlagForwarding        = 0x20
	BPDUFlagAgreement         = 0x40
	BPDUFlagTopologyChangeAck = 0x80
)

// Port role encodings for the BPDU flags field
const (
	BPDURoleUnknown    = 0
	BPDURoleAlternate  = 1
	BPDURoleRoot       = 2
	BPDURoleDesignated = 3
)

// BPDU is a decoded RSTP bridge protocol data unit. Timer fields carry the
// 802.1D wire encoding of 1/256-second units.
type BPDU struct {
	Flags        byte
	RootID       uint64
	RootPathCost uint32
	BridgeID     uint64
	PortID       uint16
	MessageAge   uint16
	MaxAge       uint16
	HelloTime    uint16
	ForwardDelay uint16
}

// SecondsToWire converts whole seconds to the 1/256 s timer encoding
func SecondsToWire(s int) uint16 {
	return uint16(s * 256)
}

// MakeBridgeID packs priority and MAC into the 8-byte bridge identifier
func MakeBridgeID(priority uint16, mac net.HardwareAddr) uint64 {
	var low uint64
	for _, b := range mac {
		low = low<<8 | uint64(b)
	}
	return uint64(priority)<<48 | low
}

// BridgeIDString formats a bridge identifier as priority/mac for display
func BridgeIDString(id uint64) string {
	mac := make(net.HardwareAddr, SizeOfMac)
	for i := SizeOfMac - 1; i >= 0; i-- {
		mac[i] = byte(id)
		id >>= 8
	}
	return fmt.Sprintf("%d/%s", uint16(id), mac)
}

// MakePortID packs the default port priority (128) with a 1-based port number
func MakePortID(portNum uint16) uint16 {
	return 0x8000 | portNum&0x0FFF
}

// EncodeBPDU serializes a BPDU into an 802.3/LLC frame addressed to the RSTP
// group MAC
func EncodeBPDU(src net.HardwareAddr, b *BPDU) *Packet {
	body := make([]byte, BPDULen)
	binary.BigEndian.PutUint16(body[0:], RSTPProtocolID)
	body[2] = RSTPVersion
	body[3] = BPDUTypeRSTP
	body[4] = b.Flags
	binary.BigEndian.PutUint64(body[5:], b.RootID)
	binary.BigEndian.PutUint32(body[13:], b.RootPathCost)
	binary.BigEndian.PutUint64(body[17:], b.BridgeID)
	binary.BigEndian.PutUint16(body[25:], b.PortID)
	binary.BigEndian.PutUint16(body[27:], b.MessageAge)
	binary.BigEndian.PutUint16(body[29:], b.MaxAge)
	binary.BigEndian.PutUint16(body[31:], b.HelloTime)
	binary.BigEndian.PutUint16(body[33:], b.ForwardDelay)
	body[35] = 0 // version 1 length

	frame := &Frame8023{Dst: RSTPGroupMAC, Src: src, Payload: body}
	return NewPacket(frame.Encode())
}

// DecodeBPDU parses an RSTP BPDU out of an 802.3/LLC frame
func DecodeBPDU(pkt *Packet) (*BPDU, error) {
	frame, err := DecodeFrame8023(pkt.Buffer)
	if err != nil {
		return nil, err
	}
	data := frame.Payload
	if len(data) < BPDULen {
		return nil, errors.Truncated("bpdu", len(data), BPDULen)
	}
	if binary.BigEndian.Uint16(data[0:]) != RSTPProtocolID {
		return nil, errors.Unsupported("bpdu", "bad protocol id")
	}
	if data[2] != RSTPVersion || data[3] != BPDUTypeRSTP {
		return nil, errors.Unsupported("bpdu", fmt.Sprintf("version=%d type=0x%02x", data[2], data[3]))
	}

	return &BPDU{
		Flags:        data[4],
		RootID:       binary.BigEndian.Uint64(data[5:]),
		RootPathCost: binary.BigEndian.Uint32(data[13:]),
		BridgeID:     binary.BigEndian.Uint64(data[17:]),
		PortID:       binary.BigEndian.Uint16(data[25:]),
		MessageAge:   binary.BigEndian.Uint16(data[27:]),
		MaxAge:       binary.BigEndian.Uint16(data[29:]),
		HelloTime:    binary.BigEndian.Uint16(data[31:]),
		ForwardDelay: binary.BigEndian.Uint16(data[33:]),
	}, nil
}
