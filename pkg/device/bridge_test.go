package device

import (
	"net"
	"testing"

	"github.com/krisarmstrong/netsim-go/pkg/engine"
	"github.com/krisarmstrong/netsim-go/pkg/protocols"
)

// starTopology is three hosts on one switch
func starTopology(t *testing.T) (*engine.Engine, *Desktop, *Desktop, *Desktop, *Bridge, *captureTrace) {
	t.Helper()
	e := engine.New(nil)
	tr := &captureTrace{}
	e.SetTrace(tr)

	a := NewDesktop("A", e)
	b := NewDesktop("B", e)
	c := NewDesktop("C", e)
	sw := NewBridge("SW1", 4, DefaultBridgePriority, e)
	aID, bID, cID := e.AddDevice(a), e.AddDevice(b), e.AddDevice(c)
	swID := e.AddDevice(sw)

	mustConfigure(t, e, aID, 0, "10.0.0.1", "255.255.255.0", "")
	mustConfigure(t, e, bID, 0, "10.0.0.2", "255.255.255.0", "")
	mustConfigure(t, e, cID, 0, "10.0.0.3", "255.255.255.0", "")
	mustConnect(t, e, aID, 0, swID, 0)
	mustConnect(t, e, bID, 0, swID, 1)
	mustConnect(t, e, cID, 0, swID, 2)
	return e, a, b, c, sw, tr
}

func countEchoRequests(tr *captureTrace) int {
	n := 0
	for _, f := range tr.icmpFrames() {
		if f.icmp.TypeCode.Type() == protocols.ICMPTypeEchoRequest {
			n++
		}
	}
	return n
}

func TestSwitchFloodsThenLearns(t *testing.T) {
	t.Parallel()

	e, a, _, _, sw, tr := starTopology(t)

	// Host-facing designated ports walk blocking -> learning -> forwarding
	e.Run(seconds(switchConvergenceSeconds))
	for i := 0; i < 3; i++ {
		if sw.Ports()[i].State != engine.PortForwarding {
			t.Fatalf("switch port %d state = %s, want forwarding", i, sw.Ports()[i].State)
		}
	}

	if err := e.EnqueueCommand(a.ID(), "ping 10.0.0.2 count 1"); err != nil {
		t.Fatal(err)
	}
	e.Run(10)

	// The broadcast ARP request reaches both B and C: one ingress delivery
	// plus a two-port flood
	var requestDeliveries int
	for _, f := range tr.arpOps() {
		if f.msg.IsRequest() && f.msg.TargetIP.Equal(net.IPv4(10, 0, 0, 2)) {
			requestDeliveries++
		}
	}
	if requestDeliveries != 3 {
		t.Errorf("ARP request deliveries = %d, want 3 (ingress + flood to 2 hosts)", requestDeliveries)
	}

	// B's reply taught the switch A's port; the echo request is unicast:
	// host-to-switch plus switch-to-B only, C sees nothing
	if got := countEchoRequests(tr); got != 2 {
		t.Errorf("echo request deliveries = %d, want 2 (no flood after learning)", got)
	}

	sent, received := a.PingStats()
	if sent != 1 || received != 1 {
		t.Errorf("ping stats = %d/%d, want 1/1", received, sent)
	}

	table := sw.MACTable()
	if len(table) != 2 {
		t.Fatalf("MAC table has %d entries, want A and B", len(table))
	}
}

func TestSwitchSubsequentUnicastSkipsFlood(t *testing.T) {
	t.Parallel()

	e, a, _, _, _, tr := starTopology(t)
	e.Run(seconds(switchConvergenceSeconds))

	if err := e.EnqueueCommand(a.ID(), "ping 10.0.0.2 count 2"); err != nil {
		t.Fatal(err)
	}
	e.Run(seconds(3))

	// Two echo requests, each travelling host-to-switch and switch-to-B
	if got := countEchoRequests(tr); got != 4 {
		t.Errorf("echo request deliveries = %d, want 4", got)
	}
	sent, received := a.PingStats()
	if sent != 2 || received != 2 {
		t.Errorf("ping stats = %d/%d, want 2/2", received, sent)
	}
}

func TestMACTableAgesOut(t *testing.T) {
	t.Parallel()

	e, a, _, _, sw, _ := starTopology(t)
	e.Run(seconds(switchConvergenceSeconds))

	if err := e.EnqueueCommand(a.ID(), "ping 10.0.0.2 count 1"); err != nil {
		t.Fatal(err)
	}
	e.Run(10)
	if len(sw.MACTable()) == 0 {
		t.Fatal("nothing learned")
	}

	// Idle for the aging interval (plus the ping's own few ticks): every
	// entry is evicted once its age reaches the threshold
	e.Run(seconds(MACAgingSeconds) + 20)
	if got := sw.MACTable(); len(got) != 0 {
		t.Errorf("MAC table after aging = %+v, want empty", got)
	}
}

func TestBridgeConsumesBPDUs(t *testing.T) {
	t.Parallel()

	e, _, _, _, _, tr := starTopology(t)
	e.Run(seconds(4))

	// Hellos at ticks 1 and 21 on the three cabled designated ports, and
	// nothing more: hosts never relay a BPDU and the switch never floods one
	bpdus := 0
	for _, f := range tr.frames {
		if protocols.NewPacket(f.buf).IsBPDU() {
			bpdus++
		}
	}
	if bpdus != 6 {
		t.Errorf("BPDU deliveries = %d, want 6 (two hello rounds on three ports)", bpdus)
	}
}
