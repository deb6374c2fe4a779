package config

import (
	"strings"
	"testing"
)

const validTopology = `
name: lab
devices:
  - name: pc1
    type: desktop
    ip: 10.0.0.2
    mask: 255.255.255.0
    gateway: 10.0.0.1
  - name: sw1
    type: switch
    ports: 8
    priority: 4096
  - name: r1
    type: router
    interfaces:
      - ip: 10.0.0.1
        mask: 255.255.255.0
links:
  - a: pc1:0
    b: sw1:0
  - a: r1:0
    b: sw1:1
script:
  - at: 5
    device: pc1
    command: ping 10.0.0.1
run:
  ticks: 100
  pcap: lab.pcap
`

func TestParseValidTopology(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(validTopology))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Name != "lab" || len(cfg.Devices) != 3 || len(cfg.Links) != 2 {
		t.Errorf("parsed %d devices, %d links", len(cfg.Devices), len(cfg.Links))
	}
	if cfg.Devices[1].Ports != 8 || cfg.Devices[1].Priority != 4096 {
		t.Error("switch fields lost")
	}
	if cfg.Run.Ticks != 100 || cfg.Run.Pcap != "lab.pcap" {
		t.Error("run section lost")
	}
}

func TestValidateRejectsBadTopologies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			"duplicate name",
			`devices: [{name: x, type: switch}, {name: x, type: switch}]`,
			"duplicate device name",
		},
		{
			"unknown type",
			`devices: [{name: x, type: hub}]`,
			"unknown device type",
		},
		{
			"desktop without ip",
			`devices: [{name: x, type: desktop, mask: 255.255.255.0}]`,
			"needs an address",
		},
		{
			"bad mask",
			`devices: [{name: x, type: desktop, ip: 10.0.0.1, mask: 255.0.255.0}]`,
			"mask",
		},
		{
			"duplicate ip in subnet",
			`devices:
  - {name: x, type: desktop, ip: 10.0.0.1, mask: 255.255.255.0}
  - {name: y, type: desktop, ip: 10.0.0.1, mask: 255.255.255.0}`,
			"already used",
		},
		{
			"link to unknown device",
			`devices: [{name: x, type: switch}]
links: [{a: "x:0", b: "y:0"}]`,
			"unknown device",
		},
		{
			"link port out of range",
			`devices:
  - {name: x, type: switch, ports: 2}
  - {name: y, type: switch, ports: 2}
links: [{a: "x:5", b: "y:0"}]`,
			"out of range",
		},
		{
			"port cabled twice",
			`devices:
  - {name: x, type: switch, ports: 4}
  - {name: y, type: switch, ports: 4}
links: [{a: "x:0", b: "y:0"}, {a: "x:0", b: "y:1"}]`,
			"cabled twice",
		},
		{
			"router without interfaces",
			`devices: [{name: x, type: router}]`,
			"at least one interface",
		},
		{
			"script for unknown device",
			`devices: [{name: x, type: switch}]
script: [{at: 1, device: ghost, command: show arp}]`,
			"unknown device",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() accepted an invalid topology")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestEndpointParsing(t *testing.T) {
	t.Parallel()

	dev, port, err := Endpoint("sw1:3")
	if err != nil || dev != "sw1" || port != 3 {
		t.Errorf("Endpoint(sw1:3) = %q, %d, %v", dev, port, err)
	}
	for _, bad := range []string{"", "sw1", ":3", "sw1:", "sw1:x", "sw1:-1"} {
		if _, _, err := Endpoint(bad); err == nil {
			t.Errorf("Endpoint(%q) succeeded", bad)
		}
	}
}

func TestParseMask(t *testing.T) {
	t.Parallel()

	mask, err := ParseMask("255.255.255.0")
	if err != nil {
		t.Fatal(err)
	}
	if ones, _ := mask.Size(); ones != 24 {
		t.Errorf("ones = %d, want 24", ones)
	}
	for _, bad := range []string{"255.0.255.0", "x", "", "::1"} {
		if _, err := ParseMask(bad); err == nil {
			t.Errorf("ParseMask(%q) succeeded", bad)
		}
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	if _, err := Parse([]byte("bogus_field: 1")); err == nil {
		t.Error("unknown top-level field accepted")
	}
}
