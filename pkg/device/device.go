// Package device implements the simulated network devices: desktops, learning
// bridges with RSTP, and IPv4 routers running RIPv2
package device

import (
	"fmt"

	"github.com/krisarmstrong/netsim-go/pkg/engine"
	"github.com/krisarmstrong/netsim-go/pkg/logging"
)

// Device kinds
const (
	KindDesktop = "desktop"
	KindSwitch  = "switch"
	KindRouter  = "router"
)

// Protocol timer defaults, in simulated seconds
const (
	ARPCacheTTLSeconds       = 240
	ARPPendingTimeoutSeconds = 5

	MACAgingSeconds     = 300
	HelloTimeSeconds    = 2
	MaxAgeSeconds       = 20
	ForwardDelaySeconds = 15
	TCWhileSeconds      = 4

	RIPUpdateIntervalSeconds = 30
	RIPTimeoutSeconds        = 180
	RIPGarbageSeconds        = 120
	RIPHolddownSeconds       = 1

	PingIntervalSeconds = 1
	DefaultPingCount    = 4
)

// DefaultBridgePriority is the 802.1D default
const DefaultBridgePriority = 32768

// PortPathCost is the root path cost contribution of every link (all
// simulated cables are equal speed)
const PortPathCost = 20000

// base carries the state every device kind shares
type base struct {
	id    int
	name  string
	kind  string
	clk   *engine.Clock
	debug *logging.DebugConfig
	ports []*engine.Port

	console []string
}

// ID returns the registration id
func (b *base) ID() int { return b.id }

// Name returns the configured device name
func (b *base) Name() string { return b.name }

// Kind returns the device kind
func (b *base) Kind() string { return b.kind }

// Ports returns the device's attachment points
func (b *base) Ports() []*engine.Port { return b.ports }

// Attach records the engine-assigned id and clock
func (b *base) Attach(id int, clk *engine.Clock) {
	b.id = id
	b.clk = clk
}

// LinkUp marks a cabled port forwarding; switches override this
func (b *base) LinkUp(port int) {
	b.ports[port].State = engine.PortForwarding
}

// LinkDown is a no-op beyond the engine's own port reset
func (b *base) LinkDown(port int) {}

// ConsoleTake drains accumulated console output
func (b *base) ConsoleTake() []string {
	out := b.console
	b.console = nil
	return out
}

func (b *base) consolef(format string, args ...interface{}) {
	b.console = append(b.console, fmt.Sprintf(format, args...))
}

func (b *base) level(protocol string) int {
	if b.debug == nil {
		return 0
	}
	return b.debug.GetProtocolLevel(protocol)
}

func (b *base) tracef(protocol string, min int, format string, args ...interface{}) {
	if b.level(protocol) >= min {
		logging.Trace("%s %s: "+format, append([]interface{}{protocol, b.name}, args...)...)
	}
}
