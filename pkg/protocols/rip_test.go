package protocols

import (
	"net"
	"testing"
)

func ripTestMessage() *RIPMessage {
	return &RIPMessage{
		Command: RIPCommandResponse,
		Routes: []RIPRoute{
			{
				Network: net.IPv4(10, 0, 0, 0).To4(),
				Mask:    net.CIDRMask(24, 32),
				Metric:  0,
			},
			{
				Network: net.IPv4(192, 168, 9, 0).To4(),
				Mask:    net.CIDRMask(24, 32),
				NextHop: net.IPv4(10, 0, 1, 2).To4(),
				Metric:  2,
				Tag:     7,
			},
		},
	}
}

func TestRIPPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	in := ripTestMessage()
	payload := EncodeRIP(in)

	if payload[0] != RIPCommandResponse || payload[1] != RIPVersion {
		t.Fatalf("header = % x", payload[:4])
	}
	if payload[2] != 0 || payload[3] != 0 {
		t.Error("must-be-zero field is nonzero")
	}
	if len(payload) != 4+20*len(in.Routes) {
		t.Fatalf("payload len = %d", len(payload))
	}

	out, err := DecodeRIP(payload)
	if err != nil {
		t.Fatalf("DecodeRIP() error = %v", err)
	}
	if out.Command != in.Command || len(out.Routes) != len(in.Routes) {
		t.Fatalf("decoded %d routes, want %d", len(out.Routes), len(in.Routes))
	}
	for i, rt := range out.Routes {
		want := in.Routes[i]
		if !rt.Network.Equal(want.Network) || rt.Metric != want.Metric || rt.Tag != want.Tag {
			t.Errorf("route %d = %+v, want %+v", i, rt, want)
		}
		if ones, _ := rt.Mask.Size(); ones != 24 {
			t.Errorf("route %d mask = %s", i, net.IP(rt.Mask))
		}
	}
}

func TestDecodeRIPErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{"truncated header", []byte{2}},
		{"bad command", []byte{9, 2, 0, 0}},
		{"bad version", []byte{2, 1, 0, 0}},
		{"partial entry", append([]byte{2, 2, 0, 0}, make([]byte, 19)...)},
		{"too many entries", append([]byte{2, 2, 0, 0}, make([]byte, 26*20)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeRIP(tt.data); err == nil {
				t.Error("DecodeRIP() succeeded, want error")
			}
		})
	}
}

func TestRIPFrameRoundTrip(t *testing.T) {
	t.Parallel()

	srcIP := net.IPv4(10, 0, 0, 1).To4()
	in := ripTestMessage()
	pkt := BuildRIP(testMACA, BroadcastMAC, srcIP, LimitedBroadcastIP, in)
	if pkt == nil {
		t.Fatal("BuildRIP() = nil")
	}
	if !pkt.IsBroadcast() {
		t.Error("periodic response must be broadcast")
	}

	ip, _, err := DecodeIPv4(pkt)
	if err != nil {
		t.Fatalf("DecodeIPv4() error = %v", err)
	}
	if ip.Protocol != IPProtocolUDP {
		t.Errorf("protocol = %d, want UDP", ip.Protocol)
	}

	out, err := DecodeRIPFrame(pkt)
	if err != nil {
		t.Fatalf("DecodeRIPFrame() error = %v", err)
	}
	if len(out.Routes) != len(in.Routes) {
		t.Fatalf("decoded %d routes, want %d", len(out.Routes), len(in.Routes))
	}
	if !out.Routes[1].NextHop.Equal(in.Routes[1].NextHop) {
		t.Error("next hop lost in transit")
	}
}

func FuzzDecodeRIP(f *testing.F) {
	f.Add(EncodeRIP(ripTestMessage()))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("DecodeRIP panicked: %v", r)
			}
		}()
		_, _ = DecodeRIP(data)
	})
}
