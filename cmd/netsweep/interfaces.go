package main

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"netsweep/internal/netif"
)

func newInterfacesCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "interfaces",
		Short: "List local IPv4 subnets that can be scanned",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := c.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			candidates, err := netif.Candidates()
			if err != nil {
				return err
			}
			chosen, err := netif.Default()
			if err != nil {
				return err
			}

			scanCfg := cfg.ProbeConfig()
			table := tablewriter.NewWriter(c.stdout)
			table.Header("DEFAULT", "INTERFACE", "ADDRESS", "SUBNET", "HOSTS", "WORST CASE")
			for _, cand := range candidates {
				mark := ""
				if cand.Address == chosen.Address {
					mark = "*"
				}
				size := cand.Subnet.Size()
				if scanCfg.ExcludeEdges {
					size = cand.Subnet.HostCount()
				}
				waves := math.Ceil(float64(size) / float64(scanCfg.Concurrency))
				estimate := scanTimeout(scanCfg) * time.Duration(waves)
				if err := table.Append([]string{
					mark,
					cand.Interface,
					cand.Address.String(),
					cand.Subnet.String(),
					strconv.FormatUint(size, 10),
					"<= " + estimate.String(),
				}); err != nil {
					return fmt.Errorf("append interface row: %w", err)
				}
			}
			return table.Render()
		},
	}
}
