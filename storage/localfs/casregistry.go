package localfs

import (
	"context"
	"fmt"

	"signet.dev/verify/storage"
	"signet.dev/verify/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Local filesystem document store (directory)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Keys:        []string{"dir"},
		Open: func(_ context.Context, cfg map[string]string) (storage.CAS, func() error, error) {
			dir := cfg["dir"]
			if dir == "" {
				return nil, nil, fmt.Errorf("localfs: missing config key %q", "dir")
			}
			cas, err := New(dir)
			return cas, nil, err
		},
	})
}
