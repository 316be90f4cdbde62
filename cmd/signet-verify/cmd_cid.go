package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"signet.dev/verify/canonical"
	"signet.dev/verify/model"
)

func newCIDCmd() *cobra.Command {
	var (
		withV1 bool
		remote string
	)
	cmd := &cobra.Command{
		Use:   "cid <file.json|->",
		Short: "Print the CID of a JSON document's canonical form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if remote != "" {
				doc, err := canonical.Parse(b)
				if err != nil {
					return failf("%s: %w", args[0], err)
				}
				client, err := dialRemote(ctx, remote)
				if err != nil {
					return err
				}
				defer client.Close()
				c, err := client.ComputeCID(ctx, doc)
				if err != nil {
					return failf("remote cid: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), c)
				return nil
			}

			resp, err := (&model.Service{}).ComputeCID(ctx, b)
			if err != nil {
				return failf("%s: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.CID)
			if withV1 {
				fmt.Fprintln(cmd.OutOrStdout(), resp.CIDv1)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withV1, "cidv1", false, "also print the IPFS CIDv1 (raw, sha2-256)")
	cmd.Flags().StringVar(&remote, "remote", "", "compute on a signet-verifyd gRPC endpoint instead")
	return cmd
}
