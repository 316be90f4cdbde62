package sqlitecas

import (
	"context"
	"fmt"

	"signet.dev/verify/storage"
	"signet.dev/verify/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "sqlite",
		Description: "SQLite document store (single file)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Keys:        []string{"path"},
		Open: func(_ context.Context, cfg map[string]string) (storage.CAS, func() error, error) {
			path := cfg["path"]
			if path == "" {
				return nil, nil, fmt.Errorf("sqlite: missing config key %q", "path")
			}
			cas, err := Open(path)
			if err != nil {
				return nil, nil, err
			}
			return cas, cas.Close, nil
		},
	})
}
