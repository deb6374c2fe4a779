package config

import (
	"fmt"
	"net"
)

// Switch port count bounds
const (
	MinSwitchPorts = 2
	MaxSwitchPorts = 24
)

// Validate checks the whole topology and returns every problem found
func (c *Config) Validate() error {
	var errs ValidationErrors

	names := make(map[string]bool)
	portCount := make(map[string]int)
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Name == "" {
			errs.addf("", "", "device %d has no name", i)
			continue
		}
		if names[d.Name] {
			errs.addf(d.Name, "name", "duplicate device name")
			continue
		}
		names[d.Name] = true
		portCount[d.Name] = c.validateDevice(d, &errs)
	}

	c.validateLinks(portCount, &errs)
	c.validateAddresses(&errs)
	c.validateScript(names, &errs)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// validateDevice checks one device and returns its port count
func (c *Config) validateDevice(d *Device, errs *ValidationErrors) int {
	switch d.Type {
	case TypeDesktop:
		if d.IP == "" {
			errs.addf(d.Name, "ip", "desktop needs an address")
		} else if _, err := ParseIPv4(d.IP); err != nil {
			errs.addf(d.Name, "ip", "%v", err)
		}
		if d.Mask == "" {
			errs.addf(d.Name, "mask", "desktop needs a mask")
		} else if _, err := ParseMask(d.Mask); err != nil {
			errs.addf(d.Name, "mask", "%v", err)
		}
		if d.Gateway != "" {
			if _, err := ParseIPv4(d.Gateway); err != nil {
				errs.addf(d.Name, "gateway", "%v", err)
			}
		}
		return 1

	case TypeSwitch:
		ports := d.Ports
		if ports == 0 {
			ports = 4
		}
		if ports < MinSwitchPorts || ports > MaxSwitchPorts {
			errs.addf(d.Name, "ports", "want %d..%d ports, have %d", MinSwitchPorts, MaxSwitchPorts, ports)
		}
		return ports

	case TypeRouter:
		if len(d.Interfaces) == 0 {
			errs.addf(d.Name, "interfaces", "router needs at least one interface")
		}
		for i, ifc := range d.Interfaces {
			field := fmt.Sprintf("interfaces[%d]", i)
			if _, err := ParseIPv4(ifc.IP); err != nil {
				errs.addf(d.Name, field, "%v", err)
			}
			if _, err := ParseMask(ifc.Mask); err != nil {
				errs.addf(d.Name, field, "%v", err)
			}
		}
		return len(d.Interfaces)

	default:
		errs.addf(d.Name, "type", "unknown device type %q", d.Type)
		return 0
	}
}

func (c *Config) validateLinks(portCount map[string]int, errs *ValidationErrors) {
	used := make(map[string]bool)
	for i, l := range c.Links {
		for _, ref := range []string{l.A, l.B} {
			dev, port, err := Endpoint(ref)
			if err != nil {
				errs.addf("", fmt.Sprintf("links[%d]", i), "%v", err)
				continue
			}
			n, ok := portCount[dev]
			if !ok {
				errs.addf("", fmt.Sprintf("links[%d]", i), "unknown device %q", dev)
				continue
			}
			if port >= n {
				errs.addf(dev, fmt.Sprintf("links[%d]", i), "port %d out of range (device has %d)", port, n)
				continue
			}
			key := fmt.Sprintf("%s:%d", dev, port)
			if used[key] {
				errs.addf(dev, fmt.Sprintf("links[%d]", i), "port %d cabled twice", port)
			}
			used[key] = true
		}
		if l.A == l.B {
			errs.addf("", fmt.Sprintf("links[%d]", i), "cable connects a port to itself")
		}
	}
}

// validateAddresses rejects a duplicate IP inside one subnet
func (c *Config) validateAddresses(errs *ValidationErrors) {
	type addr struct {
		device string
		ip     net.IP
		mask   net.IPMask
	}
	var addrs []addr
	for i := range c.Devices {
		d := &c.Devices[i]
		switch d.Type {
		case TypeDesktop:
			ip, err1 := ParseIPv4(d.IP)
			mask, err2 := ParseMask(d.Mask)
			if err1 == nil && err2 == nil {
				addrs = append(addrs, addr{d.Name, ip, mask})
			}
		case TypeRouter:
			for _, ifc := range d.Interfaces {
				ip, err1 := ParseIPv4(ifc.IP)
				mask, err2 := ParseMask(ifc.Mask)
				if err1 == nil && err2 == nil {
					addrs = append(addrs, addr{d.Name, ip, mask})
				}
			}
		}
	}
	for i := 0; i < len(addrs); i++ {
		for j := i + 1; j < len(addrs); j++ {
			a, b := addrs[i], addrs[j]
			if !a.ip.Equal(b.ip) {
				continue
			}
			if a.ip.Mask(a.mask).Equal(b.ip.Mask(a.mask)) {
				errs.addf(b.device, "ip", "address %s already used by %q", b.ip, a.device)
			}
		}
	}
}

func (c *Config) validateScript(names map[string]bool, errs *ValidationErrors) {
	for i, s := range c.Script {
		if !names[s.Device] {
			errs.addf("", fmt.Sprintf("script[%d]", i), "unknown device %q", s.Device)
		}
		if s.Command == "" {
			errs.addf("", fmt.Sprintf("script[%d]", i), "empty command")
		}
	}
}
