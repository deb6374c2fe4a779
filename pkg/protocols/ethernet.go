package protocols

import (
	"encoding/binary"
	"net"

	"github.com/krisarmstrong/netsim-go/pkg/errors"
)

// EthernetII is a decoded DIX frame header. The payload excludes any padding
// only when an upper layer declares its own length; at this layer padding is
// part of the payload.
type EthernetII struct {
	Dst       net.HardwareAddr
	Src       net.HardwareAddr
	EtherType uint16
	Payload   []byte
}

// Encode serializes the frame, padding the payload to the Ethernet minimum.
// FCS is omitted throughout the simulation.
func (f *EthernetII) Encode() []byte {
	n := EthernetHeaderLen + len(f.Payload)
	if n < MinFrameLen {
		n = MinFrameLen
	}
	buf := make([]byte, n)
	copy(buf[0:], f.Dst)
	copy(buf[SizeOfMac:], f.Src)
	binary.BigEndian.PutUint16(buf[2*SizeOfMac:], f.EtherType)
	copy(buf[EthernetHeaderLen:], f.Payload)
	return buf
}

// DecodeEthernetII parses a DIX frame header
func DecodeEthernetII(buf []byte) (*EthernetII, error) {
	if len(buf) < EthernetHeaderLen {
		return nil, errors.Truncated("ethernet", len(buf), EthernetHeaderLen)
	}
	typeOrLen := binary.BigEndian.Uint16(buf[2*SizeOfMac:])
	if typeOrLen < EtherTypeMin {
		return nil, errors.Unsupported("ethernet", "802.3 length field in Ethernet II decode")
	}
	f := &EthernetII{
		Dst:       make(net.HardwareAddr, SizeOfMac),
		Src:       make(net.HardwareAddr, SizeOfMac),
		EtherType: typeOrLen,
		Payload:   append([]byte(nil), buf[EthernetHeaderLen:]...),
	}
	copy(f.Dst, buf[0:])
	copy(f.Src, buf[SizeOfMac:])
	return f, nil
}

// LLC header carried by 802.3 frames in this simulation (BPDUs only)
const (
	LLCSAPBridge = 0x42
	LLCControlUI = 0x03
	LLCHeaderLen = 3
)

// Frame8023 is a decoded 802.3 frame with its LLC header. The length field
// bounds the LLC header plus payload, so padding never reaches the payload.
type Frame8023 struct {
	Dst     net.HardwareAddr
	Src     net.HardwareAddr
	Payload []byte // after the LLC header
}

// Encode serializes the frame with DSAP/SSAP 0x42 and UI control, padded to
// the Ethernet minimum
func (f *Frame8023) Encode() []byte {
	length := LLCHeaderLen + len(f.Payload)
	n := EthernetHeaderLen + length
	if n < MinFrameLen {
		n = MinFrameLen
	}
	buf := make([]byte, n)
	copy(buf[0:], f.Dst)
	copy(buf[SizeOfMac:], f.Src)
	binary.BigEndian.PutUint16(buf[2*SizeOfMac:], uint16(length))
	buf[EthernetHeaderLen] = LLCSAPBridge
	buf[EthernetHeaderLen+1] = LLCSAPBridge
	buf[EthernetHeaderLen+2] = LLCControlUI
	copy(buf[EthernetHeaderLen+LLCHeaderLen:], f.Payload)
	return buf
}

// DecodeFrame8023 parses an 802.3 frame and validates its LLC header
func DecodeFrame8023(buf []byte) (*Frame8023, error) {
	if len(buf) < EthernetHeaderLen+LLCHeaderLen {
		return nil, errors.Truncated("802.3", len(buf), EthernetHeaderLen+LLCHeaderLen)
	}
	length := int(binary.BigEndian.Uint16(buf[2*SizeOfMac:]))
	if length >= int(EtherTypeMin) {
		return nil, errors.Unsupported("802.3", "EtherType in length field")
	}
	if length < LLCHeaderLen || EthernetHeaderLen+length > len(buf) {
		return nil, errors.LengthMismatch("802.3", "length field exceeds frame")
	}
	if buf[EthernetHeaderLen] != LLCSAPBridge || buf[EthernetHeaderLen+1] != LLCSAPBridge {
		return nil, errors.Unsupported("802.3", "non-bridge LLC SAP")
	}
	if buf[EthernetHeaderLen+2] != LLCControlUI {
		return nil, errors.Unsupported("802.3", "non-UI LLC control")
	}
	f := &Frame8023{
		Dst:     make(net.HardwareAddr, SizeOfMac),
		Src:     make(net.HardwareAddr, SizeOfMac),
		Payload: append([]byte(nil), buf[EthernetHeaderLen+LLCHeaderLen:EthernetHeaderLen+length]...),
	}
	copy(f.Dst, buf[0:])
	copy(f.Src, buf[SizeOfMac:])
	return f, nil
}
