package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ployz-labs/kvstore-client/cmd/kvcli/cliutil"
	"github.com/ployz-labs/kvstore-client/cmd/kvcli/ui"
)

var statusFlagContext string

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the cluster's currently known node set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := cliutil.Connect(cmd.Context(), statusFlagContext)
			if err != nil {
				return err
			}
			defer client.Close()

			nodes := client.Nodes()
			if len(nodes) == 0 {
				fmt.Println(ui.Warn("no active nodes"))
				return nil
			}
			rows := make([][]string, 0, len(nodes))
			for _, n := range nodes {
				active := "no"
				if n.Active {
					active = "yes"
				}
				rows = append(rows, []string{
					n.Name,
					n.Address,
					active,
					fmt.Sprintf("%d", n.Failures),
					fmt.Sprintf("%d", n.ReferenceCount),
				})
			}
			fmt.Println(ui.Table([]string{"Node", "Address", "Active", "Failures", "Refs"}, rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&statusFlagContext, "context", "", "context to use (defaults to current-context)")
	return cmd
}
