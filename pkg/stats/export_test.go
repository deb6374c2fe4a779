package stats

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/krisarmstrong/netsim-go/pkg/engine"
)

func sample() *Statistics {
	return &Statistics{
		Topology:        "lab",
		Ticks:           400,
		DeviceCount:     3,
		FramesDelivered: 50,
		FramesSent:      52,
		FramesReceived:  50,
		Drops:           map[string]uint64{"no-arp": 2},
	}
}

func TestExportJSONRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stats.json")
	if err := sample().ExportJSON(path); err != nil {
		t.Fatalf("ExportJSON() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got Statistics
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("exported JSON does not parse: %v", err)
	}
	if got.Topology != "lab" || got.FramesDelivered != 50 || got.Drops["no-arp"] != 2 {
		t.Errorf("round trip = %+v", got)
	}
}

func TestExportPicksFormatFromExtension(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	for _, name := range []string{"s.json", "s.yaml", "s.csv"} {
		if err := sample().Export(filepath.Join(tmp, name)); err != nil {
			t.Errorf("Export(%s) error = %v", name, err)
		}
	}
	if err := sample().Export(filepath.Join(tmp, "s.txt")); err == nil {
		t.Error("Export(.txt) succeeded")
	}
}

func TestCollectCountsEmptyEngine(t *testing.T) {
	t.Parallel()

	e := engine.New(nil)
	e.Run(10)
	s := Collect(e, "empty")
	if s.Ticks != 10 || s.DeviceCount != 0 || s.FramesDelivered != 0 {
		t.Errorf("Collect() = %+v", s)
	}
}

func TestSummaryMentionsDrops(t *testing.T) {
	t.Parallel()

	lines := strings.Join(sample().Summary(), "\n")
	if !strings.Contains(lines, "no-arp") {
		t.Errorf("summary missing drop reason:\n%s", lines)
	}
	if !strings.Contains(lines, "lab") {
		t.Error("summary missing topology name")
	}
}
