// Package cliutil resolves the current config context into a connected
// kvstore.Client, the way the teacher's cmd/ployz/cmdutil.Connect resolves
// its own daemon target.
package cliutil

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"

	kvstore "github.com/ployz-labs/kvstore-client"
	"github.com/ployz-labs/kvstore-client/config"
)

// Connect dials the cluster named by contextFlag, falling back to the
// KVCLI_CONTEXT env var and finally the config file's current-context.
func Connect(ctx context.Context, contextFlag string) (*kvstore.Client, *config.Context, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	name := contextFlag
	if name == "" {
		name = os.Getenv("KVCLI_CONTEXT")
	}

	var cctx config.Context
	if name != "" {
		var ok bool
		cctx, ok = cfg.Contexts[name]
		if !ok {
			return nil, nil, fmt.Errorf("context %q not found", name)
		}
	} else {
		var ok bool
		name, cctx, ok = cfg.Current()
		if !ok {
			return nil, nil, fmt.Errorf("no context configured — run: kvcli context add <name> --hosts host:3000")
		}
	}

	client, err := kvstore.NewWithPolicy(ctx, cctx.ClientPolicy(), cctx.SeedHosts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to context %q: %w", name, err)
	}
	client.SetTracer(otel.Tracer("kvcli"))
	return client, &cctx, nil
}

// Namespace resolves the namespace a record command should use: the
// --namespace flag if given, else the context's default.
func Namespace(flagValue string, cctx *config.Context) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if cctx.Namespace != "" {
		return cctx.Namespace, nil
	}
	return "", fmt.Errorf("no namespace given: pass --namespace or set one on the context")
}
