package main

import (
	"github.com/spf13/cobra"

	"github.com/krisarmstrong/netsim-go/pkg/config"
	"github.com/krisarmstrong/netsim-go/pkg/device"
	"github.com/krisarmstrong/netsim-go/pkg/interactive"
	"github.com/krisarmstrong/netsim-go/pkg/logging"
)

var interactiveCmd = &cobra.Command{
	Use:     "interactive <topology.yaml>",
	Aliases: []string{"tui"},
	Short:   "Drive a topology from a terminal UI",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(args[0])
		if err != nil {
			return err
		}
		eng, _, err := device.Build(cfg, logging.NewDebugConfig(flagDebug))
		if err != nil {
			return err
		}
		return interactive.Run(eng, cfg.Name)
	},
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
}
