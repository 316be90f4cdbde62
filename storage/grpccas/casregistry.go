package grpccas

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"signet.dev/verify/storage"
	"signet.dev/verify/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "grpc",
		Description: "gRPC document store client (talks to signet-verifyd)",
		Usage:       casregistry.UsageCLI,
		Keys:        []string{"target", "dial-timeout", "timeout", "max-msg-bytes"},
		Open: func(ctx context.Context, cfg map[string]string) (storage.CAS, func() error, error) {
			target := strings.TrimSpace(cfg["target"])
			if target == "" {
				return nil, nil, fmt.Errorf("grpc: missing config key %q", "target")
			}
			opts := DialOptions{Timeout: 5 * time.Second}
			var err error
			if v := cfg["dial-timeout"]; v != "" {
				if opts.Timeout, err = time.ParseDuration(v); err != nil {
					return nil, nil, fmt.Errorf("grpc: dial-timeout: %w", err)
				}
			}
			if v := cfg["max-msg-bytes"]; v != "" {
				if opts.MaxMsgBytes, err = strconv.Atoi(v); err != nil {
					return nil, nil, fmt.Errorf("grpc: max-msg-bytes: %w", err)
				}
			}
			var timeout time.Duration
			if v := cfg["timeout"]; v != "" {
				if timeout, err = time.ParseDuration(v); err != nil {
					return nil, nil, fmt.Errorf("grpc: timeout: %w", err)
				}
			}
			client, err := Dial(ctx, target, opts)
			if err != nil {
				return nil, nil, err
			}
			client.Timeout = timeout
			return client, client.Close, nil
		},
	})
}
