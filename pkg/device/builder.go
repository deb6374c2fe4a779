package device

import (
	"net"

	"github.com/krisarmstrong/netsim-go/pkg/config"
	"github.com/krisarmstrong/netsim-go/pkg/engine"
	"github.com/krisarmstrong/netsim-go/pkg/logging"
)

// Build instantiates an engine from a validated topology, returning the
// device-name-to-id map the driver uses for scripted commands
func Build(cfg *config.Config, debug *logging.DebugConfig) (*engine.Engine, map[string]int, error) {
	e := engine.New(debug)
	ids := make(map[string]int, len(cfg.Devices))

	for i := range cfg.Devices {
		dc := &cfg.Devices[i]
		switch dc.Type {
		case config.TypeDesktop:
			d := NewDesktop(dc.Name, e)
			id := e.AddDevice(d)
			ids[dc.Name] = id

			ip, _ := config.ParseIPv4(dc.IP)
			mask, _ := config.ParseMask(dc.Mask)
			var gw net.IP
			if dc.Gateway != "" {
				gw, _ = config.ParseIPv4(dc.Gateway)
			}
			if err := e.ConfigureIP(id, 0, ip, mask, gw); err != nil {
				return nil, nil, err
			}

		case config.TypeSwitch:
			ports := dc.Ports
			if ports == 0 {
				ports = 4
			}
			priority := dc.Priority
			if priority == 0 {
				priority = DefaultBridgePriority
			}
			ids[dc.Name] = e.AddDevice(NewBridge(dc.Name, ports, priority, e))

		case config.TypeRouter:
			r := NewRouter(dc.Name, len(dc.Interfaces), e)
			id := e.AddDevice(r)
			ids[dc.Name] = id
			for idx, ifc := range dc.Interfaces {
				ip, _ := config.ParseIPv4(ifc.IP)
				mask, _ := config.ParseMask(ifc.Mask)
				if err := e.ConfigureIP(id, idx, ip, mask, nil); err != nil {
					return nil, nil, err
				}
			}
		}
	}

	for _, l := range cfg.Links {
		aDev, aPort, _ := config.Endpoint(l.A)
		bDev, bPort, _ := config.Endpoint(l.B)
		if err := e.Connect(ids[aDev], aPort, ids[bDev], bPort); err != nil {
			return nil, nil, err
		}
	}

	logging.Debug("built topology %q: %d devices, %d links", cfg.Name, len(cfg.Devices), len(cfg.Links))
	return e, ids, nil
}
