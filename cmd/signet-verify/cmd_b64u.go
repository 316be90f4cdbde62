package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"signet.dev/verify/b64u"
)

func newB64UCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "b64u",
		Short: "Unpadded base64url encoding as used for keys and signatures",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "encode <file|->",
			Short: "Encode a file's bytes",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				b, err := readInput(cmd, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), b64u.Encode(b))
				return nil
			},
		},
		&cobra.Command{
			Use:   "decode <text>",
			Short: "Decode text and write the raw bytes to stdout",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				b, err := b64u.Decode(args[0])
				if err != nil {
					return failf("decode: %w", err)
				}
				if _, err := cmd.OutOrStdout().Write(b); err != nil {
					return failf("write output: %w", err)
				}
				return nil
			},
		},
	)
	return cmd
}
