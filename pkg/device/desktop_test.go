package device

import (
	"net"
	"strings"
	"testing"

	"github.com/krisarmstrong/netsim-go/pkg/engine"
	"github.com/krisarmstrong/netsim-go/pkg/errors"
	"github.com/krisarmstrong/netsim-go/pkg/protocols"
)

// twoHosts cables two desktops back to back on 10.0.0.0/24
func twoHosts(t *testing.T) (*engine.Engine, *Desktop, *Desktop, *captureTrace) {
	t.Helper()
	e := engine.New(nil)
	tr := &captureTrace{}
	e.SetTrace(tr)

	a := NewDesktop("A", e)
	b := NewDesktop("B", e)
	aID, bID := e.AddDevice(a), e.AddDevice(b)
	mustConfigure(t, e, aID, 0, "10.0.0.1", "255.255.255.0", "")
	mustConfigure(t, e, bID, 0, "10.0.0.2", "255.255.255.0", "")
	mustConnect(t, e, aID, 0, bID, 0)
	return e, a, b, tr
}

func TestPingSameSubnetTickExact(t *testing.T) {
	t.Parallel()

	e, a, _, tr := twoHosts(t)
	if err := e.EnqueueCommand(a.ID(), "ping 10.0.0.2 count 1"); err != nil {
		t.Fatal(err)
	}

	e.Run(5)

	// Tick 1: A emits the ARP request; it is delivered at tick 2
	arps := tr.arpOps()
	if len(arps) != 2 {
		t.Fatalf("captured %d ARP frames, want request+reply", len(arps))
	}
	if !arps[0].msg.IsRequest() || arps[0].tick != 2 {
		t.Errorf("ARP request delivered at tick %d, want 2", arps[0].tick)
	}
	if !arps[0].msg.TargetIP.Equal(net.IPv4(10, 0, 0, 2)) {
		t.Errorf("ARP target = %s", arps[0].msg.TargetIP)
	}
	if !arps[1].msg.IsReply() || arps[1].tick != 3 {
		t.Errorf("ARP reply delivered at tick %d, want 3", arps[1].tick)
	}

	// Tick 3: the parked echo request flushes; tick 4 delivery, reply at 5
	icmps := tr.icmpFrames()
	if len(icmps) != 2 {
		t.Fatalf("captured %d ICMP frames, want request+reply", len(icmps))
	}
	if icmps[0].icmp.TypeCode.Type() != protocols.ICMPTypeEchoRequest || icmps[0].tick != 4 {
		t.Errorf("echo request delivered at tick %d, want 4", icmps[0].tick)
	}
	if icmps[1].icmp.TypeCode.Type() != protocols.ICMPTypeEchoReply || icmps[1].tick != 5 {
		t.Errorf("echo reply delivered at tick %d, want 5", icmps[1].tick)
	}

	sent, received := a.PingStats()
	if sent != 1 || received != 1 {
		t.Errorf("ping stats = %d/%d, want 1/1", received, sent)
	}

	// A resolved B along the way
	entries := a.ARPTable()
	if len(entries) != 1 || !entries[0].IP.Equal(net.IPv4(10, 0, 0, 2)) {
		t.Errorf("ARP table = %+v", entries)
	}
}

func TestPingReportsReplies(t *testing.T) {
	t.Parallel()

	e, a, _, _ := twoHosts(t)
	if err := e.EnqueueCommand(a.ID(), "ping 10.0.0.2 count 3"); err != nil {
		t.Fatal(err)
	}

	// Three requests, one per second, plus the round trips
	e.Run(seconds(4))

	sent, received := a.PingStats()
	if sent != 3 || received != 3 {
		t.Errorf("ping stats = %d/%d, want 3/3", received, sent)
	}

	var lines []string
	for _, d := range e.Devices() {
		lines = append(lines, d.ConsoleTake()...)
	}
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "3 transmitted, 3 received") {
		t.Errorf("console output missing summary:\n%s", joined)
	}
}

func TestPingOffLinkWithoutGatewayFails(t *testing.T) {
	t.Parallel()

	e, a, _, _ := twoHosts(t)
	if err := e.EnqueueCommand(a.ID(), "ping 192.168.1.1 count 1"); err != nil {
		t.Fatal(err)
	}
	e.Run(2)

	snap, err := e.Snapshot(a.ID())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Ports[0].Counters.Dropped(errors.DropNoGateway) != 1 {
		t.Error("missing gateway drop not counted")
	}
	joined := strings.Join(a.ConsoleTake(), "\n")
	if !strings.Contains(joined, "gateway") {
		t.Errorf("console output = %q, want gateway complaint", joined)
	}
}

func TestUnresolvedPendingFrameIsDropped(t *testing.T) {
	t.Parallel()

	e, a, _, _ := twoHosts(t)
	// 10.0.0.99 does not exist, so the ARP request goes unanswered
	if err := e.EnqueueCommand(a.ID(), "ping 10.0.0.99 count 1"); err != nil {
		t.Fatal(err)
	}
	e.Run(seconds(ARPPendingTimeoutSeconds) + 2)

	snap, err := e.Snapshot(a.ID())
	if err != nil {
		t.Fatal(err)
	}
	if got := snap.Ports[0].Counters.Dropped(errors.DropNoArp); got != 1 {
		t.Errorf("no-arp drops = %d, want 1", got)
	}
	sent, received := a.PingStats()
	if sent != 1 || received != 0 {
		t.Errorf("ping stats = %d/%d, want 0/1", received, sent)
	}
}

func TestDesktopAnswersARPOnlyForOwnIP(t *testing.T) {
	t.Parallel()

	e, a, b, tr := twoHosts(t)
	_ = b
	// A asks for an address nobody owns
	if err := e.EnqueueCommand(a.ID(), "ping 10.0.0.77 count 1"); err != nil {
		t.Fatal(err)
	}
	e.Run(5)

	for _, f := range tr.arpOps() {
		if f.msg.IsReply() {
			t.Fatalf("unexpected ARP reply for %s", f.msg.SenderIP)
		}
	}
}

func TestConfigureIPValidation(t *testing.T) {
	t.Parallel()

	e := engine.New(nil)
	a := NewDesktop("A", e)
	aID := e.AddDevice(a)

	if err := e.ConfigureIP(aID, 1, net.ParseIP("10.0.0.1"), net.CIDRMask(24, 32), nil); err == nil {
		t.Error("ConfigureIP accepted a bad port")
	}
	if err := e.ConfigureIP(aID, 0, net.ParseIP("10.0.0.1"), net.IPMask{255, 0, 255, 0}, nil); err == nil {
		t.Error("ConfigureIP accepted a non-contiguous mask")
	}

	// Reapplying the same address is a no-op, never a partial change
	if err := e.ConfigureIP(aID, 0, net.ParseIP("10.0.0.1"), net.CIDRMask(24, 32), nil); err != nil {
		t.Fatal(err)
	}
	if err := e.ConfigureIP(aID, 0, net.ParseIP("10.0.0.1"), net.CIDRMask(24, 32), nil); err != nil {
		t.Errorf("idempotent reconfigure failed: %v", err)
	}
	if !a.IP().Equal(net.IPv4(10, 0, 0, 1)) {
		t.Error("address lost on reconfigure")
	}
}
