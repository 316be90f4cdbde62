package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"signet.dev/verify/internal/log"
	"signet.dev/verify/keys"
	"signet.dev/verify/rpc/verifysvc"
	"signet.dev/verify/storage"
	"signet.dev/verify/storage/casconfig"
	"signet.dev/verify/storage/casregistry"
)

const remoteTimeout = 10 * time.Second

// readInput reads path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, failf("read stdin: %w", err)
		}
		return b, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, failf("read %s: %w", path, err)
	}
	return b, nil
}

func loadJWKS(cmd *cobra.Command, path string) (keys.JWKS, keys.Set, error) {
	b, err := readInput(cmd, path)
	if err != nil {
		return keys.JWKS{}, keys.Set{}, err
	}
	var doc keys.JWKS
	if err := json.Unmarshal(b, &doc); err != nil {
		return keys.JWKS{}, keys.Set{}, failf("parse jwks %s: %w", path, err)
	}
	if err := doc.Check(); err != nil {
		log.Warn("unusable keys in jwks", "path", path, "err", err)
	}
	return doc, doc.Set(), nil
}

func openStore(ctx context.Context, path string) (storage.CAS, func() error, error) {
	cas, closeFn, err := casconfig.OpenFile(ctx, path, casregistry.UsageCLI)
	if err != nil {
		return nil, nil, failf("open store: %w", err)
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return cas, closeFn, nil
}

func dialRemote(ctx context.Context, target string) (*verifysvc.Client, error) {
	c, err := verifysvc.Dial(ctx, target, verifysvc.DialOptions{Timeout: remoteTimeout})
	if err != nil {
		return nil, failf("dial %s: %w", target, err)
	}
	c.Timeout = remoteTimeout
	return c, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return failf("write output: %w", err)
	}
	return nil
}
