package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"signet.dev/verify/chain"
	"signet.dev/verify/internal/log"
	"signet.dev/verify/model"
)

type validateChainFlags struct {
	checkReceiptHash bool
	storeConfig      string
	jsonl            bool
	traceID          string
	concurrency      int
	remote           string
	jsonOut          bool
}

func newValidateChainCmd() *cobra.Command {
	var f validateChainFlags
	cmd := &cobra.Command{
		Use:   "validate-chain <bundle-or-chain.json|->",
		Short: "Recompute every hop's CID and check receipt linkage",
		Long: `Validate a receipt chain. The input is a JSON array of receipts, a bundle
object, or with --jsonl a receipt log with one receipt per line.

Receipts without a normalized document are unverifiable unless --store-config
names a document store to hydrate them from.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateChain(cmd, args[0], f)
		},
	}
	fl := cmd.Flags()
	fl.BoolVar(&f.checkReceiptHash, "check-receipt-hash", false, "also recompute receipt_hash from {ts,cid,prev,hop}")
	fl.StringVar(&f.storeConfig, "store-config", "", "document store config used to hydrate missing documents")
	fl.BoolVar(&f.jsonl, "jsonl", false, "input is a JSONL receipt log")
	fl.StringVar(&f.traceID, "trace", "", "with --jsonl, keep only receipts of this trace")
	fl.IntVar(&f.concurrency, "concurrency", 0, "hops verified at once (0 = GOMAXPROCS)")
	fl.StringVar(&f.remote, "remote", "", "validate on a signet-verifyd gRPC endpoint instead")
	fl.BoolVar(&f.jsonOut, "json", false, "print the report as JSON")
	return cmd
}

func runValidateChain(cmd *cobra.Command, path string, f validateChainFlags) error {
	if f.traceID != "" && !f.jsonl {
		return usagef("--trace requires --jsonl")
	}
	if f.concurrency < 0 {
		return usagef("--concurrency must be >= 0")
	}
	if f.remote != "" && (f.storeConfig != "" || f.checkReceiptHash) {
		return usagef("--store-config and --check-receipt-hash are not available with --remote")
	}
	raw, err := readInput(cmd, path)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var c chain.Chain
	if f.jsonl {
		var skipped int
		c, skipped, err = chain.ReadJSONL(bytes.NewReader(raw), f.traceID)
		if err != nil {
			return failf("%s: %w", path, err)
		}
		if skipped > 0 {
			log.Warn("skipped malformed receipt lines", "file", path, "skipped", skipped)
		}
	} else {
		c, err = model.ParseChainDocument(raw)
		if err != nil {
			return failf("%s: %w", path, err)
		}
	}

	var rep model.ChainReport
	if f.remote != "" {
		body, err := json.Marshal(c)
		if err != nil {
			return failf("encode chain: %w", err)
		}
		client, err := dialRemote(ctx, f.remote)
		if err != nil {
			return err
		}
		defer client.Close()
		if rep, err = client.ValidateChain(ctx, body); err != nil {
			return failf("remote validate: %w", err)
		}
	} else {
		svc := &model.Service{Concurrency: f.concurrency}
		if f.storeConfig != "" {
			store, closeFn, err := openStore(ctx, f.storeConfig)
			if err != nil {
				return err
			}
			defer closeFn()
			svc.Store = store
		}
		if rep, err = svc.ValidateParsed(ctx, c, f.checkReceiptHash, svc.Store != nil); err != nil {
			return failf("%s: %w", path, err)
		}
	}

	if f.jsonOut {
		if err := printJSON(cmd, rep); err != nil {
			return err
		}
	} else {
		printReport(cmd, rep)
	}
	if !rep.AllVerified {
		return errInvalid
	}
	return nil
}

func printReport(cmd *cobra.Command, rep model.ChainReport) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HOP\tOUTCOME\tCID\tNOTE")
	for _, h := range rep.Hops {
		note := ""
		switch {
		case h.Linkage != nil:
			note = fmt.Sprintf("prev %q does not match %q", h.Linkage.Got, h.Linkage.Expected)
		case h.Error != "":
			note = h.Error
		case h.Outcome == "mismatch":
			note = "recomputed " + h.RecomputedCID
		case h.ReceiptHashChecked && !h.ReceiptHashOK:
			note = "receipt_hash mismatch"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", h.Hop, h.Outcome, h.ClaimedCID, note)
	}
	_ = w.Flush()

	verdict := "all hops verified"
	if !rep.AllVerified {
		verdict = "chain NOT verified"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "trace %s: %s\n", rep.TraceID, verdict)
}
