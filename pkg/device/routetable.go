package device

import (
	"fmt"
	"net"
	"sort"

	"github.com/krisarmstrong/netsim-go/pkg/engine"
	"github.com/krisarmstrong/netsim-go/pkg/protocols"
)

// Route is one routing table entry. NextHop nil means directly connected.
type Route struct {
	Network net.IP
	Mask    net.IPMask
	NextHop net.IP
	IfIndex int
	Metric  uint32

	LearnedFrom net.IP // advertising neighbor, nil for connected routes
	seq         int    // insertion order, the final tie-break
	UpdatedAt   engine.Tick
	GarbageAt   engine.Tick // nonzero once the route is marked unreachable
}

// Connected reports whether the route is directly attached
func (r *Route) Connected() bool { return r.NextHop == nil }

// Unreachable reports whether the route has been poisoned
func (r *Route) Unreachable() bool { return r.Metric >= protocols.RIPMetricInfinity }

func (r *Route) key() string {
	ones, _ := r.Mask.Size()
	return fmt.Sprintf("%s/%d", r.Network.To4(), ones)
}

// RouteTable holds routes and answers longest-prefix-match lookups. The scan
// is linear, like the tables it models.
type RouteTable struct {
	routes []*Route
	seq    int
}

// NewRouteTable creates an empty table
func NewRouteTable() *RouteTable {
	return &RouteTable{}
}

// Insert adds a route, replacing any entry with the same network and mask
func (t *RouteTable) Insert(r *Route) {
	r.Network = r.Network.To4().Mask(r.Mask)
	if old := t.Find(r.Network, r.Mask); old != nil {
		r.seq = old.seq
		*old = *r
		return
	}
	t.seq++
	r.seq = t.seq
	t.routes = append(t.routes, r)
}

// Find returns the exact entry for (network, mask), if any
func (t *RouteTable) Find(network net.IP, mask net.IPMask) *Route {
	key := (&Route{Network: network.To4().Mask(mask), Mask: mask}).key()
	for _, r := range t.routes {
		if r.key() == key {
			return r
		}
	}
	return nil
}

// Remove deletes the exact entry for (network, mask)
func (t *RouteTable) Remove(network net.IP, mask net.IPMask) {
	key := (&Route{Network: network.To4().Mask(mask), Mask: mask}).key()
	for i, r := range t.routes {
		if r.key() == key {
			t.routes = append(t.routes[:i], t.routes[i+1:]...)
			return
		}
	}
}

// Lookup selects the longest-prefix match for dst. Among equal prefix
// lengths the lower metric wins, then the earlier insertion. Unreachable
// routes never match.
func (t *RouteTable) Lookup(dst net.IP) *Route {
	d := dst.To4()
	if d == nil {
		return nil
	}
	var best *Route
	var bestOnes int
	for _, r := range t.routes {
		if r.Unreachable() {
			continue
		}
		if !d.Mask(r.Mask).Equal(r.Network) {
			continue
		}
		ones, _ := r.Mask.Size()
		switch {
		case best == nil,
			ones > bestOnes,
			ones == bestOnes && r.Metric < best.Metric,
			ones == bestOnes && r.Metric == best.Metric && r.seq < best.seq:
			best = r
			bestOnes = ones
		}
	}
	return best
}

// All returns the routes sorted by network then prefix length for display
// and advertisement
func (t *RouteTable) All() []*Route {
	out := append([]*Route(nil), t.routes...)
	sort.Slice(out, func(i, j int) bool {
		ki, kj := out[i].key(), out[j].key()
		if ki != kj {
			return ki < kj
		}
		return out[i].seq < out[j].seq
	})
	return out
}
