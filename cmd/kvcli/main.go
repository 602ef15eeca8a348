// Command kvcli is a small cobra CLI over the Client façade, demonstrating
// record and cluster operations through a blocking command-line wrapper —
// a convenience layer, not a semantic sync API (spec.md §9 Open Questions).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ployz-labs/kvstore-client/cmd/kvcli/contextcmd"
	"github.com/ployz-labs/kvstore-client/cmd/kvcli/record"
	"github.com/ployz-labs/kvstore-client/cmd/kvcli/ui"
	"github.com/ployz-labs/kvstore-client/internal/buildinfo"
	"github.com/ployz-labs/kvstore-client/internal/logging"
)

func main() {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()

	ui.Configure()

	var debug bool
	if err := logging.Configure(logging.LevelWarn); err != nil {
		fmt.Fprintln(os.Stderr, "configure logger: "+err.Error())
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "kvcli",
		Short:         "Command-line client for a partitioned key-value store",
		Version:       buildinfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelWarn
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(contextcmd.Cmd())
	root.AddCommand(statusCmd())
	for _, c := range record.Cmd() {
		root.AddCommand(c)
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorMsg("%v", err))
		os.Exit(1)
	}
}
