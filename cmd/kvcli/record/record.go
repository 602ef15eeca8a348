// Package record implements kvcli's get/put/delete/touch/exists/scan
// subcommands: thin cobra wrappers over the Client façade, in the style of
// the teacher's cmd/ployz/service subcommand group.
package record

import (
	"fmt"

	"github.com/spf13/cobra"

	kvstore "github.com/ployz-labs/kvstore-client"
	"github.com/ployz-labs/kvstore-client/cmd/kvcli/cliutil"
	"github.com/ployz-labs/kvstore-client/cmd/kvcli/ui"
	"github.com/ployz-labs/kvstore-client/policy"
	"github.com/ployz-labs/kvstore-client/types"
)

// Cmd returns the top-level record commands, added directly to the root
// command rather than nested under a noun (get/put/delete/touch/exists/scan
// read naturally as verbs on their own).
func Cmd() []*cobra.Command {
	return []*cobra.Command{getCmd(), putCmd(), deleteCmd(), touchCmd(), existsCmd(), scanCmd()}
}

var (
	flagContext   string
	flagNamespace string
	flagSet       string
)

func addKeyFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagContext, "context", "", "context to use (defaults to current-context)")
	cmd.Flags().StringVar(&flagNamespace, "namespace", "", "namespace (defaults to the context's namespace)")
	cmd.Flags().StringVar(&flagSet, "set", "", "set name")
}

func resolve(cmd *cobra.Command) (*kvstore.Client, string, error) {
	client, cctx, err := cliutil.Connect(cmd.Context(), flagContext)
	if err != nil {
		return nil, "", err
	}
	ns, err := cliutil.Namespace(flagNamespace, cctx)
	if err != nil {
		client.Close()
		return nil, "", err
	}
	return client, ns, nil
}

func getCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <user-key>",
		Short: "Read a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ns, err := resolve(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			key := kvstore.NewKey(ns, flagSet, types.StringValue(args[0]))
			rec, err := client.Get(cmd.Context(), policy.DefaultReadPolicy(), key, types.AllBins())
			if err != nil {
				return err
			}
			printRecord(rec)
			return nil
		},
	}
	addKeyFlags(cmd)
	return cmd
}

func putCmd() *cobra.Command {
	var bins []string

	cmd := &cobra.Command{
		Use:   "put <user-key>",
		Short: "Write a record (--bin name=value, repeatable)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ns, err := resolve(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			values, err := parseBins(bins)
			if err != nil {
				return err
			}
			key := kvstore.NewKey(ns, flagSet, types.StringValue(args[0]))
			if err := client.Put(cmd.Context(), policy.DefaultWritePolicy(), key, values); err != nil {
				return err
			}
			fmt.Println(ui.GoodMsg("put %s", key.String()))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&bins, "bin", nil, "bin as name=value (string values only from the CLI)")
	addKeyFlags(cmd)
	return cmd
}

func deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <user-key>",
		Aliases: []string{"del", "rm"},
		Short:   "Delete a record",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ns, err := resolve(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			key := kvstore.NewKey(ns, flagSet, types.StringValue(args[0]))
			existed, err := client.Delete(cmd.Context(), policy.DefaultWritePolicy(), key)
			if err != nil {
				return err
			}
			if existed {
				fmt.Println(ui.GoodMsg("deleted %s", key.String()))
			} else {
				fmt.Println(ui.Warn("no record at " + key.String()))
			}
			return nil
		},
	}
	addKeyFlags(cmd)
	return cmd
}

func touchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "touch <user-key>",
		Short: "Refresh a record's expiration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ns, err := resolve(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			key := kvstore.NewKey(ns, flagSet, types.StringValue(args[0]))
			if err := client.Touch(cmd.Context(), policy.DefaultWritePolicy(), key); err != nil {
				return err
			}
			fmt.Println(ui.GoodMsg("touched %s", key.String()))
			return nil
		},
	}
	addKeyFlags(cmd)
	return cmd
}

func existsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exists <user-key>",
		Short: "Check whether a record exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ns, err := resolve(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			key := kvstore.NewKey(ns, flagSet, types.StringValue(args[0]))
			ok, err := client.Exists(cmd.Context(), policy.DefaultReadPolicy(), key)
			if err != nil {
				return err
			}
			fmt.Println(ok)
			return nil
		},
	}
	addKeyFlags(cmd)
	return cmd
}

func scanCmd() *cobra.Command {
	var maxRecords uint64

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Stream every record in a namespace/set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ns, err := resolve(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			pol := policy.DefaultScanPolicy()
			pol.MaxRecords = maxRecords
			rs := client.Scan(cmd.Context(), pol, ns, flagSet, types.AllBins(), nil)
			defer rs.Close()

			count := 0
			for r := range rs.Results() {
				if r.Err != nil {
					fmt.Println(ui.ErrorMsg("%v", r.Err))
					continue
				}
				printRecord(r.Record)
				count++
			}
			fmt.Println(ui.MutedStyle.Render(fmt.Sprintf("%d record(s)", count)))
			return nil
		},
	}
	cmd.Flags().Uint64Var(&maxRecords, "max-records", 0, "stop after this many records (0 = unbounded)")
	addKeyFlags(cmd)
	return cmd
}

func parseBins(bins []string) (map[string]types.Value, error) {
	out := make(map[string]types.Value, len(bins))
	for _, b := range bins {
		name, value, ok := splitBin(b)
		if !ok {
			return nil, fmt.Errorf("invalid --bin %q: want name=value", b)
		}
		out[name] = types.StringValue(value)
	}
	return out, nil
}

func splitBin(s string) (name, value string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

func printRecord(r *kvstore.Record) {
	pairs := []ui.Pair{
		{Key: "key", Value: r.Key.String()},
		{Key: "generation", Value: fmt.Sprintf("%d", r.Generation)},
	}
	for name, v := range r.Bins {
		pairs = append(pairs, ui.Pair{Key: "bin:" + name, Value: v.String()})
	}
	fmt.Print(ui.KeyValues(pairs...))
}
