package device

import (
	"net"
	"sort"

	"github.com/krisarmstrong/netsim-go/pkg/engine"
	"github.com/krisarmstrong/netsim-go/pkg/protocols"
)

// arpEntry binds an IPv4 address to a MAC with its insertion tick
type arpEntry struct {
	mac        net.HardwareAddr
	insertedAt engine.Tick
}

// pendingFrame is an IPv4 datagram parked until its next hop resolves. The
// frame is built once the MAC binding arrives.
type pendingFrame struct {
	deadline engine.Tick
	build    func(dstMAC net.HardwareAddr) *protocols.Packet
}

// ARPCacheEntry is the snapshot form of one binding
type ARPCacheEntry struct {
	IP  net.IP
	MAC net.HardwareAddr
	Age engine.Tick
}

// ARPCache holds fresh IPv4-to-MAC bindings plus the queue of datagrams
// awaiting resolution, keyed by next-hop address. Stale bindings are never
// used: lookup evicts on sight.
type ARPCache struct {
	clk        *engine.Clock
	ttl        engine.Tick
	pendingTTL engine.Tick
	entries    map[string]arpEntry
	pending    map[string][]pendingFrame
}

// NewARPCache creates a cache with the standard TTLs
func NewARPCache(clk *engine.Clock) *ARPCache {
	return &ARPCache{
		clk:        clk,
		ttl:        clk.Seconds(ARPCacheTTLSeconds),
		pendingTTL: clk.Seconds(ARPPendingTimeoutSeconds),
		entries:    make(map[string]arpEntry),
		pending:    make(map[string][]pendingFrame),
	}
}

// Lookup returns the binding for ip if present and fresh
func (c *ARPCache) Lookup(ip net.IP) (net.HardwareAddr, bool) {
	key := ip.To4().String()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.clk.Since(e.insertedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.mac, true
}

// Insert installs or refreshes a binding
func (c *ARPCache) Insert(ip net.IP, mac net.HardwareAddr) {
	m := make(net.HardwareAddr, len(mac))
	copy(m, mac)
	c.entries[ip.To4().String()] = arpEntry{mac: m, insertedAt: c.clk.Now()}
}

// Park queues a datagram for the given unresolved next hop. It reports
// whether this is the first parked frame, i.e. whether the caller should
// transmit an ARP request.
func (c *ARPCache) Park(nextHop net.IP, build func(net.HardwareAddr) *protocols.Packet) bool {
	key := nextHop.To4().String()
	first := len(c.pending[key]) == 0
	c.pending[key] = append(c.pending[key], pendingFrame{
		deadline: c.clk.Now() + c.pendingTTL,
		build:    build,
	})
	return first
}

// Flush releases frames parked on nextHop, built against the resolved MAC
func (c *ARPCache) Flush(nextHop net.IP, mac net.HardwareAddr) []*protocols.Packet {
	key := nextHop.To4().String()
	parked := c.pending[key]
	if len(parked) == 0 {
		return nil
	}
	delete(c.pending, key)
	out := make([]*protocols.Packet, 0, len(parked))
	for _, pf := range parked {
		if pkt := pf.build(mac); pkt != nil {
			out = append(out, pkt)
		}
	}
	return out
}

// Expire ages out stale bindings and drops parked frames whose resolution
// deadline passed, returning the number dropped
func (c *ARPCache) Expire() int {
	now := c.clk.Now()
	for key, e := range c.entries {
		if now-e.insertedAt >= c.ttl {
			delete(c.entries, key)
		}
	}

	dropped := 0
	for key, frames := range c.pending {
		kept := frames[:0]
		for _, pf := range frames {
			if now >= pf.deadline {
				dropped++
				continue
			}
			kept = append(kept, pf)
		}
		if len(kept) == 0 {
			delete(c.pending, key)
		} else {
			c.pending[key] = kept
		}
	}
	return dropped
}

// PendingFor reports how many frames await resolution of nextHop
func (c *ARPCache) PendingFor(nextHop net.IP) int {
	return len(c.pending[nextHop.To4().String()])
}

// PendingEntry is the snapshot form of one unresolved next hop
type PendingEntry struct {
	NextHop net.IP
	Frames  int
}

// Pending returns the unresolved next hops sorted by address
func (c *ARPCache) Pending() []PendingEntry {
	out := make([]PendingEntry, 0, len(c.pending))
	for key, frames := range c.pending {
		out = append(out, PendingEntry{NextHop: net.ParseIP(key).To4(), Frames: len(frames)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextHop.String() < out[j].NextHop.String() })
	return out
}

// Entries returns fresh bindings sorted by address for display
func (c *ARPCache) Entries() []ARPCacheEntry {
	now := c.clk.Now()
	out := make([]ARPCacheEntry, 0, len(c.entries))
	for key, e := range c.entries {
		if now-e.insertedAt >= c.ttl {
			continue
		}
		out = append(out, ARPCacheEntry{
			IP:  net.ParseIP(key).To4(),
			MAC: e.mac,
			Age: now - e.insertedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP.String() < out[j].IP.String() })
	return out
}
