package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/krisarmstrong/netsim-go/pkg/storage"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs <history.db>",
	Short: "Show recorded simulation runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := storage.Open(args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		records, err := db.ListRuns(runsLimit)
		if err != nil {
			return err
		}
		for _, r := range records {
			fmt.Printf("#%d  %s  %-20s  %d devices  %d ticks  %d frames  %d drops\n",
				r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Topology,
				r.DeviceCount, r.Ticks, r.FramesDelivered, r.Drops)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 10, "maximum records to show")
	rootCmd.AddCommand(runsCmd)
}
