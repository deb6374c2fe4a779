package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/krisarmstrong/netsim-go/pkg/config"
	"github.com/krisarmstrong/netsim-go/pkg/device"
	"github.com/krisarmstrong/netsim-go/pkg/engine"
	"github.com/krisarmstrong/netsim-go/pkg/logging"
	"github.com/krisarmstrong/netsim-go/pkg/stats"
	"github.com/krisarmstrong/netsim-go/pkg/storage"
	"github.com/krisarmstrong/netsim-go/pkg/trace"
)

// DefaultRunTicks bounds a run when neither flag nor topology says otherwise
const DefaultRunTicks = 1200

var (
	flagTicks    int
	flagPcap     string
	flagStatsOut string
	flagDB       string
)

var runCmd = &cobra.Command{
	Use:   "run <topology.yaml>",
	Short: "Run a topology's scripted scenario to completion",
	Args:  cobra.ExactArgs(1),
	RunE:  runTopology,
}

func init() {
	runCmd.Flags().IntVarP(&flagTicks, "ticks", "t", 0, "ticks to simulate (default from topology, else 1200)")
	runCmd.Flags().StringVar(&flagPcap, "pcap", "", "write delivered frames to a pcap file")
	runCmd.Flags().StringVar(&flagStatsOut, "stats", "", "export run statistics (.json/.yaml/.csv)")
	runCmd.Flags().StringVar(&flagDB, "db", "disabled", "run-history database path")
	rootCmd.AddCommand(runCmd)
}

func runTopology(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}

	debug := logging.NewDebugConfig(flagDebug)
	eng, ids, err := device.Build(cfg, debug)
	if err != nil {
		return err
	}

	pcapPath := flagPcap
	if pcapPath == "" {
		pcapPath = cfg.Run.Pcap
	}
	if pcapPath != "" {
		w, err := trace.Create(pcapPath)
		if err != nil {
			return err
		}
		defer w.Close()
		eng.SetTrace(w)
	}

	ticks := flagTicks
	if ticks == 0 {
		ticks = cfg.Run.Ticks
	}
	if ticks == 0 {
		ticks = DefaultRunTicks
	}

	script := append([]config.Command(nil), cfg.Script...)
	sort.SliceStable(script, func(i, j int) bool { return script[i].At < script[j].At })

	started := time.Now()
	next := 0
	for t := 0; t < ticks; t++ {
		for next < len(script) && script[next].At <= uint64(eng.Clock().Now()) {
			s := script[next]
			next++
			if err := eng.EnqueueCommand(ids[s.Device], s.Command); err != nil {
				logging.Warning("script: %v", err)
			}
		}
		eng.Tick()
		drainConsoles(eng)
	}

	s := stats.Collect(eng, cfg.Name)
	for _, line := range s.Summary() {
		logging.Info("%s", line)
	}
	if flagStatsOut != "" {
		if err := s.Export(flagStatsOut); err != nil {
			return err
		}
		logging.Success("statistics written to %s", flagStatsOut)
	}

	if db, err := storage.Open(flagDB); err == nil {
		defer db.Close()
		var drops uint64
		for _, n := range s.Drops {
			drops += n
		}
		if err := db.AddRun(storage.RunRecord{
			StartedAt:       started,
			Topology:        cfg.Name,
			Ticks:           s.Ticks,
			DeviceCount:     s.DeviceCount,
			FramesDelivered: s.FramesDelivered,
			Drops:           drops,
			Faults:          s.Faults,
		}); err != nil {
			logging.Warning("recording run: %v", err)
		}
	}

	return nil
}

func drainConsoles(eng *engine.Engine) {
	for _, d := range eng.Devices() {
		for _, line := range d.ConsoleTake() {
			fmt.Printf("[%s] %s\n", d.Name(), line)
		}
	}
}
