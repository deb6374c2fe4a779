package protocols

import (
	"bytes"
	"net"
	"testing"
)

func TestARPRequestRoundTrip(t *testing.T) {
	t.Parallel()

	senderIP := net.IPv4(10, 0, 0, 1).To4()
	targetIP := net.IPv4(10, 0, 0, 2).To4()

	pkt := BuildARPRequest(testMACA, senderIP, targetIP)
	if pkt == nil {
		t.Fatal("BuildARPRequest() = nil")
	}
	if !pkt.IsBroadcast() {
		t.Error("ARP request must be broadcast")
	}
	if len(pkt.Buffer) < MinFrameLen {
		t.Errorf("frame len = %d, want at least %d", len(pkt.Buffer), MinFrameLen)
	}

	msg, err := DecodeARP(pkt)
	if err != nil {
		t.Fatalf("DecodeARP() error = %v", err)
	}
	if !msg.IsRequest() {
		t.Error("opcode: want request")
	}
	if !msg.SenderIP.Equal(senderIP) || !msg.TargetIP.Equal(targetIP) {
		t.Errorf("addresses = %s -> %s, want %s -> %s", msg.SenderIP, msg.TargetIP, senderIP, targetIP)
	}
	if !bytes.Equal(msg.SenderMAC, testMACA) {
		t.Errorf("sender MAC = %s, want %s", msg.SenderMAC, testMACA)
	}
}

func TestARPReplyRoundTrip(t *testing.T) {
	t.Parallel()

	senderIP := net.IPv4(10, 0, 0, 2).To4()
	targetIP := net.IPv4(10, 0, 0, 1).To4()

	pkt := BuildARPReply(testMACB, senderIP, testMACA, targetIP)
	if pkt == nil {
		t.Fatal("BuildARPReply() = nil")
	}
	if !bytes.Equal(pkt.GetDestMAC(), testMACA) {
		t.Error("ARP reply must be unicast to the requester")
	}

	msg, err := DecodeARP(pkt)
	if err != nil {
		t.Fatalf("DecodeARP() error = %v", err)
	}
	if !msg.IsReply() {
		t.Error("opcode: want reply")
	}
	if !bytes.Equal(msg.SenderMAC, testMACB) || !msg.SenderIP.Equal(senderIP) {
		t.Errorf("sender binding = %s/%s", msg.SenderIP, msg.SenderMAC)
	}
}

func TestDecodeARPRejectsUnknownOpcode(t *testing.T) {
	t.Parallel()

	pkt := BuildARPRequest(testMACA, net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2))
	// Opcode lives at Ethernet header + 6
	pkt.Buffer[EthernetHeaderLen+7] = 9
	if _, err := DecodeARP(pkt); err == nil {
		t.Fatal("DecodeARP() accepted opcode 9")
	}
}

func TestDecodeARPRejectsTruncated(t *testing.T) {
	t.Parallel()

	pkt := BuildARPRequest(testMACA, net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2))
	short := NewPacket(pkt.Buffer[:20])
	if _, err := DecodeARP(short); err == nil {
		t.Fatal("DecodeARP() accepted a truncated frame")
	}
}

func FuzzDecodeARP(f *testing.F) {
	f.Add(BuildARPRequest(testMACA, net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2)).Buffer)
	f.Add(BuildARPReply(testMACB, net.IPv4(10, 0, 0, 2), testMACA, net.IPv4(10, 0, 0, 1)).Buffer)
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("DecodeARP panicked: %v", r)
			}
		}()
		msg, err := DecodeARP(NewPacket(data))
		if err == nil && msg == nil {
			t.Error("nil message without error")
		}
	})
}
