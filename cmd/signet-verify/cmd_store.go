package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"signet.dev/verify/canonical"
	"signet.dev/verify/cidutil"
	"signet.dev/verify/model"
	"signet.dev/verify/storage"
	"signet.dev/verify/storage/archive"
	"signet.dev/verify/storage/casregistry"
)

func newStoreCmd() *cobra.Command {
	var storeConfig string
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Put and get canonical documents in the configured document store",
	}
	cmd.PersistentFlags().StringVar(&storeConfig, "store-config", "", "document store config (JSON or YAML)")

	put := &cobra.Command{
		Use:   "put <file.json|->",
		Short: "Canonicalize a document, store it and print its CID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if storeConfig == "" {
				return usagef("--store-config is required")
			}
			b, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			doc, err := canonical.Parse(b)
			if err != nil {
				return failf("%s: %w", args[0], err)
			}
			ctx := cmd.Context()
			cas, closeFn, err := openStore(ctx, storeConfig)
			if err != nil {
				return err
			}
			defer closeFn()

			c, err := storage.PutDocument(ctx, cas, doc)
			if err != nil {
				return failf("put: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), c)
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get <cid>",
		Short: "Print the canonical document stored under a CID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if storeConfig == "" {
				return usagef("--store-config is required")
			}
			c, err := cidutil.Parse(args[0])
			if err != nil {
				return usagef("%w", err)
			}
			ctx := cmd.Context()
			cas, closeFn, err := openStore(ctx, storeConfig)
			if err != nil {
				return err
			}
			defer closeFn()

			doc, err := storage.GetDocument(ctx, cas, c)
			if err != nil {
				return failf("get %s: %w", c, err)
			}
			b, err := canonical.Encode(doc)
			if err != nil {
				return failf("encode: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}

	backends := &cobra.Command{
		Use:   "backends",
		Short: "List the document store backends compiled into this binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, b := range casregistry.List(casregistry.UsageCLI) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tkeys=%v\n", b.Name, b.Description, b.Keys)
			}
			return nil
		},
	}

	cmd.AddCommand(put, get, backends, newStoreExportCmd(&storeConfig), newStoreImportCmd(&storeConfig))
	return cmd
}

func newStoreExportCmd(storeConfig *string) *cobra.Command {
	var (
		outPath     string
		skipMissing bool
		noIndex     bool
	)
	cmd := &cobra.Command{
		Use:   "export <chain-or-bundle.json|->",
		Short: "Write the documents a chain refers to as a deterministic TAR archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if *storeConfig == "" {
				return usagef("--store-config is required")
			}
			b, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			c, err := model.ParseChainDocument(b)
			if err != nil {
				return failf("%s: %w", args[0], err)
			}
			ids := make([]cidutil.CID, 0, len(c))
			for _, r := range c {
				ids = append(ids, r.CID)
			}
			traceID := ""
			if len(c) > 0 {
				traceID = c[0].TraceID
			}

			ctx := cmd.Context()
			cas, closeFn, err := openStore(ctx, *storeConfig)
			if err != nil {
				return err
			}
			defer closeFn()

			var w io.Writer = cmd.OutOrStdout()
			var f *os.File
			if outPath != "" && outPath != "-" {
				if f, err = os.Create(outPath); err != nil {
					return failf("create %s: %w", outPath, err)
				}
				defer f.Close()
				w = f
			}
			bw := bufio.NewWriter(w)
			res, err := archive.Export(ctx, bw, cas, ids, archive.ExportOptions{
				TraceID:      traceID,
				IncludeIndex: !noIndex,
				SkipMissing:  skipMissing,
			})
			if err != nil {
				return failf("export: %w", err)
			}
			if err := bw.Flush(); err != nil {
				return failf("export: %w", err)
			}
			if f != nil {
				if err := f.Close(); err != nil {
					return failf("close %s: %w", outPath, err)
				}
			}
			for _, id := range res.Missing {
				fmt.Fprintf(cmd.ErrOrStderr(), "missing: %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "archive path (default stdout)")
	cmd.Flags().BoolVar(&skipMissing, "skip-missing", false, "leave out documents the store does not have")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "omit index.json")
	return cmd
}

func newStoreImportCmd(storeConfig *string) *cobra.Command {
	var ignoreUnknown bool
	cmd := &cobra.Command{
		Use:   "import <archive.tar|->",
		Short: "Verify and store every document in an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if *storeConfig == "" {
				return usagef("--store-config is required")
			}
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return failf("open %s: %w", args[0], err)
				}
				defer f.Close()
				r = f
			}

			ctx := cmd.Context()
			cas, closeFn, err := openStore(ctx, *storeConfig)
			if err != nil {
				return err
			}
			defer closeFn()

			ids, err := archive.Import(ctx, bufio.NewReader(r), cas, archive.ImportOptions{IgnoreUnknown: ignoreUnknown})
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			if err != nil {
				return failf("import: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&ignoreUnknown, "ignore-unknown", false, "skip entries that are not documents")
	return cmd
}
