// Package stats collects and exports run statistics
package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/krisarmstrong/netsim-go/pkg/engine"
	"github.com/krisarmstrong/netsim-go/pkg/errors"
)

// Statistics summarizes one simulation run
type Statistics struct {
	Topology        string            `json:"topology" yaml:"topology"`
	Ticks           uint64            `json:"ticks" yaml:"ticks"`
	DeviceCount     int               `json:"device_count" yaml:"device_count"`
	FramesDelivered uint64            `json:"frames_delivered" yaml:"frames_delivered"`
	FramesSent      uint64            `json:"frames_sent" yaml:"frames_sent"`
	FramesReceived  uint64            `json:"frames_received" yaml:"frames_received"`
	Drops           map[string]uint64 `json:"drops" yaml:"drops"`
	Faults          int               `json:"faults" yaml:"faults"`
}

// Collect gathers counters from every device port
func Collect(e *engine.Engine, topology string) *Statistics {
	s := &Statistics{
		Topology:        topology,
		Ticks:           uint64(e.Clock().Now()),
		FramesDelivered: e.FramesDelivered(),
		Drops:           make(map[string]uint64),
		Faults:          len(e.Faults()),
	}
	for _, d := range e.Devices() {
		s.DeviceCount++
		for _, p := range d.Ports() {
			s.FramesSent += p.Counters.TxFrames
			s.FramesReceived += p.Counters.RxFrames
			for reason, n := range p.Counters.Drops {
				s.Drops[string(reason)] += n
			}
		}
	}
	return s
}

// ExportJSON writes the statistics as JSON
func (s *Statistics) ExportJSON(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ExportYAML writes the statistics as YAML
func (s *Statistics) ExportYAML(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ExportCSV writes the statistics as key,value rows
func (s *Statistics) ExportCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	rows := [][]string{
		{"topology", s.Topology},
		{"ticks", fmt.Sprint(s.Ticks)},
		{"device_count", fmt.Sprint(s.DeviceCount)},
		{"frames_delivered", fmt.Sprint(s.FramesDelivered)},
		{"frames_sent", fmt.Sprint(s.FramesSent)},
		{"frames_received", fmt.Sprint(s.FramesReceived)},
		{"faults", fmt.Sprint(s.Faults)},
	}
	for _, reason := range errors.AllDropReasons() {
		rows = append(rows, []string{"drop_" + string(reason), fmt.Sprint(s.Drops[string(reason)])})
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Export picks the format from the file extension (.json, .yaml, .csv)
func (s *Statistics) Export(path string) error {
	switch {
	case strings.HasSuffix(path, ".json"):
		return s.ExportJSON(path)
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return s.ExportYAML(path)
	case strings.HasSuffix(path, ".csv"):
		return s.ExportCSV(path)
	default:
		return fmt.Errorf("unknown export format: %s", path)
	}
}

// Summary renders a console-friendly digest
func (s *Statistics) Summary() []string {
	lines := []string{
		fmt.Sprintf("topology %q: %d devices, %d ticks", s.Topology, s.DeviceCount, s.Ticks),
		fmt.Sprintf("frames: %d sent, %d delivered, %d received", s.FramesSent, s.FramesDelivered, s.FramesReceived),
	}
	reasons := make([]string, 0, len(s.Drops))
	for r := range s.Drops {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		if s.Drops[r] > 0 {
			lines = append(lines, fmt.Sprintf("drops %s: %d", r, s.Drops[r]))
		}
	}
	if s.Faults > 0 {
		lines = append(lines, fmt.Sprintf("faults: %d", s.Faults))
	}
	return lines
}
