package main

import (
	"github.com/spf13/cobra"

	"signet.dev/verify/keys"
)

func newSelectKeyCmd() *cobra.Command {
	var (
		jwksPath  string
		kid       string
		strictKey bool
	)
	cmd := &cobra.Command{
		Use:   "select-key --jwks <file> [--kid id]",
		Short: "Show which key a bundle with the given kid would be verified with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jwksPath == "" {
				return usagef("--jwks is required")
			}
			_, set, err := loadJWKS(cmd, jwksPath)
			if err != nil {
				return err
			}
			policy := keys.FallbackFirstEd25519
			if strictKey {
				policy = keys.FallbackNone
			}
			rec, err := keys.Select(set, kid, policy)
			if err != nil {
				return failf("%w", err)
			}
			return printJSON(cmd, rec.ToJWK())
		},
	}
	cmd.Flags().StringVar(&jwksPath, "jwks", "", "JWKS file")
	cmd.Flags().StringVar(&kid, "kid", "", "key id to select (empty uses the fallback policy)")
	cmd.Flags().BoolVar(&strictKey, "strict-key", false, "disable the first-Ed25519 fallback")
	return cmd
}
