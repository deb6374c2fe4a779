package engine

import (
	"net"

	"github.com/krisarmstrong/netsim-go/pkg/errors"
)

// PortSnapshot is a read-only view of one port
type PortSnapshot struct {
	Index      int
	MAC        net.HardwareAddr
	State      PortState
	Role       PortRole
	Connected  bool
	PeerDevice int
	PeerPort   int
	Counters   *errors.Counters
}

// Snapshot is a read-only view of one device taken between ticks
type Snapshot struct {
	ID    int
	Name  string
	Kind  string
	Ports []PortSnapshot
}

// Snapshot captures the port-level view of a device. Device kinds expose
// their protocol tables (ARP caches, MAC table, routes, RSTP roles) through
// their own typed accessors.
func (e *Engine) Snapshot(id int) (*Snapshot, error) {
	d, ok := e.devices[id]
	if !ok {
		return nil, errors.Configf("snapshot", "no device %d", id)
	}
	snap := &Snapshot{
		ID:   d.ID(),
		Name: d.Name(),
		Kind: d.Kind(),
	}
	for i, p := range d.Ports() {
		peerDev, peerPort := p.Peer()
		mac := make(net.HardwareAddr, len(p.MAC))
		copy(mac, p.MAC)
		snap.Ports = append(snap.Ports, PortSnapshot{
			Index:      i,
			MAC:        mac,
			State:      p.State,
			Role:       p.Role,
			Connected:  p.Connected(),
			PeerDevice: peerDev,
			PeerPort:   peerPort,
			Counters:   p.Counters.Clone(),
		})
	}
	return snap, nil
}
