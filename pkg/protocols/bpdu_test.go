package protocols

import (
	"net"
	"testing"
)

func TestBPDURoundTrip(t *testing.T) {
	t.Parallel()

	in := &BPDU{
		Flags:        BPDUFlagTopologyChange | BPDUFlagForwarding,
		RootID:       MakeBridgeID(4096, testMACA),
		RootPathCost: 40000,
		BridgeID:     MakeBridgeID(32768, testMACB),
		PortID:       MakePortID(3),
		MessageAge:   SecondsToWire(2),
		MaxAge:       SecondsToWire(20),
		HelloTime:    SecondsToWire(2),
		ForwardDelay: SecondsToWire(15),
	}
	pkt := EncodeBPDU(testMACB, in)

	if !pkt.IsBPDU() {
		t.Fatal("encoded BPDU not addressed to the RSTP group MAC")
	}
	if pkt.IsEthernetII() {
		t.Fatal("BPDU must be an 802.3 frame")
	}

	out, err := DecodeBPDU(pkt)
	if err != nil {
		t.Fatalf("DecodeBPDU() error = %v", err)
	}
	if *out != *in {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestBPDUWireLayout(t *testing.T) {
	t.Parallel()

	pkt := EncodeBPDU(testMACA, &BPDU{RootID: 1, BridgeID: 1, PortID: MakePortID(1)})
	buf := pkt.Buffer

	// 802.3 length covers LLC + BPDU body
	if got := pkt.TypeOrLen(); got != LLCHeaderLen+BPDULen {
		t.Errorf("length field = %d, want %d", got, LLCHeaderLen+BPDULen)
	}
	body := buf[EthernetHeaderLen+LLCHeaderLen:]
	if body[0] != 0x00 || body[1] != 0x00 {
		t.Error("protocol id must be 0x0000")
	}
	if body[2] != RSTPVersion {
		t.Errorf("version = %d, want 2", body[2])
	}
	if body[3] != BPDUTypeRSTP {
		t.Errorf("type = 0x%02x, want 0x02", body[3])
	}
	if body[35] != 0 {
		t.Error("version 1 length must be zero")
	}
	if len(buf) != MinFrameLen {
		t.Errorf("frame len = %d, want padded %d", len(buf), MinFrameLen)
	}
}

func TestMakeBridgeIDOrdering(t *testing.T) {
	t.Parallel()

	lowPrio := MakeBridgeID(4096, net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	highPrio := MakeBridgeID(32768, net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x01})
	if lowPrio >= highPrio {
		t.Error("priority must dominate the MAC in bridge id ordering")
	}

	a := MakeBridgeID(32768, testMACA)
	b := MakeBridgeID(32768, testMACB)
	if a >= b {
		t.Error("lower MAC must give the lower bridge id at equal priority")
	}
}

func TestDecodeBPDUErrors(t *testing.T) {
	t.Parallel()

	good := EncodeBPDU(testMACA, &BPDU{RootID: 1, BridgeID: 1})

	truncated := NewPacket(good.Buffer[:EthernetHeaderLen+LLCHeaderLen+4])
	// Keep the length field consistent with the shortened body
	truncated.Put16(LLCHeaderLen+4, 2*SizeOfMac)
	if _, err := DecodeBPDU(truncated); err == nil {
		t.Error("DecodeBPDU() accepted a truncated body")
	}

	badVersion := NewPacket(append([]byte(nil), good.Buffer...))
	badVersion.Buffer[EthernetHeaderLen+LLCHeaderLen+2] = 0x00
	if _, err := DecodeBPDU(badVersion); err == nil {
		t.Error("DecodeBPDU() accepted an STP version 0 BPDU")
	}
}

func FuzzDecodeBPDU(f *testing.F) {
	f.Add(EncodeBPDU(testMACA, &BPDU{RootID: 1, BridgeID: 1}).Buffer)
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("DecodeBPDU panicked: %v", r)
			}
		}()
		_, _ = DecodeBPDU(NewPacket(data))
	})
}
