package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/krisarmstrong/netsim-go/pkg/logging"
)

const starterTopology = `# netsim starter topology: two hosts and a router between two subnets
name: two-subnets

devices:
  - name: pc1
    type: desktop
    ip: 10.0.0.2
    mask: 255.255.255.0
    gateway: 10.0.0.1

  - name: pc2
    type: desktop
    ip: 10.0.1.2
    mask: 255.255.255.0
    gateway: 10.0.1.1

  - name: sw1
    type: switch
    ports: 4

  - name: r1
    type: router
    interfaces:
      - ip: 10.0.0.1
        mask: 255.255.255.0
      - ip: 10.0.1.1
        mask: 255.255.255.0

links:
  - a: pc1:0
    b: sw1:0
  - a: r1:0
    b: sw1:1
  - a: r1:1
    b: pc2:0

script:
  - at: 10
    device: pc1
    command: ping 10.0.1.2 count 4

run:
  ticks: 400
`

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Write a starter topology file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "topology.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s exists, use --force to overwrite", path)
		}
		if err := os.WriteFile(path, []byte(starterTopology), 0o644); err != nil {
			return err
		}
		logging.Success("wrote %s", path)
		logging.Info("try: netsim run %s", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")
	rootCmd.AddCommand(initCmd)
}
