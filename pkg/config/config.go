// Package config loads and validates YAML topology files for the simulator
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Device types
const (
	TypeDesktop = "desktop"
	TypeSwitch  = "switch"
	TypeRouter  = "router"
)

// Config is a parsed topology file
type Config struct {
	Name    string    `yaml:"name"`
	Devices []Device  `yaml:"devices"`
	Links   []Link    `yaml:"links"`
	Script  []Command `yaml:"script,omitempty"`
	Run     Run       `yaml:"run,omitempty"`
}

// Device describes one simulated device
type Device struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// Desktop fields
	IP      string `yaml:"ip,omitempty"`
	Mask    string `yaml:"mask,omitempty"`
	Gateway string `yaml:"gateway,omitempty"`

	// Switch fields
	Ports    int    `yaml:"ports,omitempty"`
	Priority uint16 `yaml:"priority,omitempty"`

	// Router fields
	Interfaces []Interface `yaml:"interfaces,omitempty"`
}

// Interface is one router interface address
type Interface struct {
	IP   string `yaml:"ip"`
	Mask string `yaml:"mask"`
}

// Link cables two endpoints written as "device:port"
type Link struct {
	A string `yaml:"a"`
	B string `yaml:"b"`
}

// Command schedules one console line at a tick
type Command struct {
	At      uint64 `yaml:"at"`
	Device  string `yaml:"device"`
	Command string `yaml:"command"`
}

// Run holds driver options
type Run struct {
	Ticks int    `yaml:"ticks,omitempty"`
	Pcap  string `yaml:"pcap,omitempty"`
}

// Load reads and validates a topology file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates topology YAML
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing topology: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Endpoint splits a "device:port" reference
func Endpoint(s string) (device string, port int, err error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return "", 0, fmt.Errorf("bad endpoint %q, want device:port", s)
	}
	port, err = strconv.Atoi(s[i+1:])
	if err != nil || port < 0 {
		return "", 0, fmt.Errorf("bad port in endpoint %q", s)
	}
	return s[:i], port, nil
}

// ParseMask parses a dotted-quad netmask and rejects non-contiguous ones
func ParseMask(s string) (net.IPMask, error) {
	ip := net.ParseIP(s)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("bad mask %q", s)
	}
	mask := net.IPMask(ip.To4())
	if ones, bits := mask.Size(); bits != 32 || ones == 0 {
		return nil, fmt.Errorf("non-contiguous mask %q", s)
	}
	return mask, nil
}

// ParseIPv4 parses a dotted-quad address
func ParseIPv4(s string) (net.IP, error) {
	ip := net.ParseIP(s)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("bad IPv4 address %q", s)
	}
	return ip.To4(), nil
}
