package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/krisarmstrong/netsim-go/pkg/logging"
)

var (
	version = "v0.3.0"
	commit  = "dev"
	date    = "unknown"
)

var (
	flagDebug   int
	flagNoColor bool
)

var rootCmd = &cobra.Command{
	Use:   "netsim",
	Short: "Deterministic layer 1-3 network simulator",
	Long: `netsim assembles virtual networks from hosts, switches and routers
connected by point-to-point cables and advances them on a discrete
tick clock.

Devices speak byte-exact Ethernet, ARP, IPv4, ICMP, RSTP and RIPv2,
so captures of the simulated wire look like captures of a real one.`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.InitColors(!flagNoColor)
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("netsim %s (commit: %s, built: %s)\n", version, commit, date))
	rootCmd.PersistentFlags().IntVarP(&flagDebug, "debug", "d", 0, "debug level 0-3")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colored output")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
