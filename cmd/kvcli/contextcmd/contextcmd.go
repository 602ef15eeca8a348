// Package contextcmd manages kvcli's named cluster contexts, mirroring the
// teacher's cmd/ployz/context subcommand group.
package contextcmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ployz-labs/kvstore-client/cmd/kvcli/ui"
	"github.com/ployz-labs/kvstore-client/config"
)

// Cmd returns the "context" command group.
func Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "context",
		Aliases: []string{"ctx"},
		Short:   "Manage named cluster connections",
	}
	cmd.AddCommand(listCmd(), addCmd(), useCmd(), removeCmd())
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List configured contexts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if len(cfg.Contexts) == 0 {
				fmt.Println(ui.Accent("no contexts configured") + " — run: kvcli context add <name> --hosts host:3000")
				return nil
			}
			current, _, hasCurrent := cfg.Current()
			rows := make([][]string, 0, len(cfg.Contexts))
			for name, c := range cfg.Contexts {
				mark := ""
				if hasCurrent && name == current {
					mark = "*"
				}
				ns := c.Namespace
				if ns == "" {
					ns = "-"
				}
				rows = append(rows, []string{name, mark, c.SeedHosts, ns})
			}
			fmt.Println(ui.Table([]string{"Name", "Current", "Seed Hosts", "Namespace"}, rows))
			fmt.Println(ui.MutedStyle.Render("config: " + config.Path()))
			return nil
		},
	}
}

func addCmd() *cobra.Command {
	var hosts, namespace, username, password string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add or update a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if hosts == "" {
				return fmt.Errorf("--hosts is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.Set(args[0], config.Context{
				SeedHosts: hosts,
				Namespace: namespace,
				Username:  username,
				Password:  password,
			})
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Println(ui.GoodMsg("context %s saved", args[0]))
			return nil
		},
	}
	cmd.Flags().StringVar(&hosts, "hosts", "", "comma-separated seed hosts (host[:tls][:port])")
	cmd.Flags().StringVar(&namespace, "namespace", "", "default namespace for record commands")
	cmd.Flags().StringVar(&username, "username", "", "auth username")
	cmd.Flags().StringVar(&password, "password", "", "auth password")
	return cmd
}

func useCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "Set the current context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Use(args[0]); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Println(ui.GoodMsg("switched to context %s", args[0]))
			return nil
		},
	}
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a context",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Remove(args[0]); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Println(ui.GoodMsg("context %s removed", args[0]))
			return nil
		},
	}
}
