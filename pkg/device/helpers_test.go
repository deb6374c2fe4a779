package device

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/krisarmstrong/netsim-go/pkg/engine"
	"github.com/krisarmstrong/netsim-go/pkg/protocols"
)

// capturedFrame is one fabric delivery seen by the test trace
type capturedFrame struct {
	tick uint64
	buf  []byte
}

// captureTrace records every delivered frame for assertions
type captureTrace struct {
	frames []capturedFrame
}

func (c *captureTrace) WriteFrame(tick uint64, frame []byte) error {
	c.frames = append(c.frames, capturedFrame{tick: tick, buf: append([]byte(nil), frame...)})
	return nil
}

func (c *captureTrace) arpOps() []capturedARP {
	var out []capturedARP
	for _, f := range c.frames {
		msg, err := protocols.DecodeARP(protocols.NewPacket(f.buf))
		if err != nil {
			continue
		}
		if protocols.NewPacket(f.buf).TypeOrLen() != protocols.EtherTypeARP {
			continue
		}
		out = append(out, capturedARP{tick: f.tick, msg: msg})
	}
	return out
}

type capturedARP struct {
	tick uint64
	msg  *protocols.ARPMessage
}

type capturedICMP struct {
	tick uint64
	ip   *layers.IPv4
	icmp *layers.ICMPv4
}

func (c *captureTrace) icmpFrames() []capturedICMP {
	var out []capturedICMP
	for _, f := range c.frames {
		packet := gopacket.NewPacket(f.buf, layers.LayerTypeEthernet, gopacket.Default)
		ipLayer, _ := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		icmpLayer, _ := packet.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4)
		if ipLayer == nil || icmpLayer == nil {
			continue
		}
		out = append(out, capturedICMP{tick: f.tick, ip: ipLayer, icmp: icmpLayer})
	}
	return out
}

func mustConfigure(t *testing.T, e *engine.Engine, id, port int, ip, mask string, gw string) {
	t.Helper()
	var gwIP net.IP
	if gw != "" {
		gwIP = net.ParseIP(gw)
	}
	if err := e.ConfigureIP(id, port, net.ParseIP(ip), net.IPMask(net.ParseIP(mask).To4()), gwIP); err != nil {
		t.Fatalf("ConfigureIP(%s): %v", ip, err)
	}
}

func mustConnect(t *testing.T, e *engine.Engine, aID, aPort, bID, bPort int) {
	t.Helper()
	if err := e.Connect(aID, aPort, bID, bPort); err != nil {
		t.Fatalf("Connect(%d:%d, %d:%d): %v", aID, aPort, bID, bPort, err)
	}
}

func seconds(s int) int {
	return s * engine.DefaultTicksPerSecond
}

// switchConvergenceSeconds is the settle time for freshly cabled bridge ports
const switchConvergenceSeconds = 2*ForwardDelaySeconds + 2
