package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"signet.dev/verify/bundle"
	"signet.dev/verify/internal/log"
	"signet.dev/verify/keys"
	"signet.dev/verify/model"
)

type verifyBundleFlags struct {
	bundlePath   string
	jwksPath     string
	kid          string
	responseCID  string
	signature    string
	strictKey    bool
	includeChain bool
	cidFallback  bool
	remote       string
	jsonOut      bool
}

func newVerifyBundleCmd() *cobra.Command {
	var f verifyBundleFlags
	cmd := &cobra.Command{
		Use:   "verify-bundle --bundle <file> --jwks <file>",
		Short: "Verify the signature over an exported bundle",
		Long: `Verify an exported bundle: the response CID must equal the final receipt
hash, and the Ed25519 signature over "response_cid|trace_id|exported_at" must
verify under the selected key.

--kid, --response-cid and --signature override the bundle's own fields, the
same way X-SIGNET-* response headers do. --response-cid-fallback accepts a
bundle whose response CID is missing by using the final receipt hash.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerifyBundle(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.bundlePath, "bundle", "", "bundle JSON file (- for stdin)")
	fl.StringVar(&f.jwksPath, "jwks", "", "trusted JWKS file")
	fl.StringVar(&f.kid, "kid", "", "key id override")
	fl.StringVar(&f.responseCID, "response-cid", "", "response CID override")
	fl.StringVar(&f.signature, "signature", "", "base64url signature override")
	fl.BoolVar(&f.strictKey, "strict-key", false, "require a kid instead of falling back to the first Ed25519 key")
	fl.BoolVar(&f.includeChain, "include-chain", false, "also validate the chain and include the report")
	fl.BoolVar(&f.cidFallback, "response-cid-fallback", false, "use the final receipt hash when no response CID is given")
	fl.StringVar(&f.remote, "remote", "", "verify on a signet-verifyd gRPC endpoint instead")
	fl.BoolVar(&f.jsonOut, "json", false, "print the verdict as JSON")
	return cmd
}

func runVerifyBundle(cmd *cobra.Command, f verifyBundleFlags) error {
	if f.bundlePath == "" {
		return usagef("--bundle is required")
	}
	if f.jwksPath == "" && f.remote == "" {
		return usagef("--jwks is required unless --remote is set")
	}
	if f.remote != "" && f.includeChain {
		return usagef("--include-chain is not available with --remote")
	}
	if f.remote != "" && f.cidFallback {
		return usagef("--response-cid-fallback is not available with --remote")
	}
	raw, err := readInput(cmd, f.bundlePath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var (
		doc *keys.JWKS
		set keys.Set
	)
	if f.jwksPath != "" {
		d, s, err := loadJWKS(cmd, f.jwksPath)
		if err != nil {
			return err
		}
		doc, set = &d, s
	}

	if f.remote != "" {
		raw, err = applyOverrides(raw, f)
		if err != nil {
			return err
		}
		client, err := dialRemote(ctx, f.remote)
		if err != nil {
			return err
		}
		defer client.Close()
		ok, err := client.VerifyBundle(ctx, raw, doc, f.strictKey)
		if err != nil {
			return failf("remote verify: %w", err)
		}
		return report(cmd, f, model.BundleVerdict{Valid: ok})
	}

	svc := &model.Service{Keys: set}
	verdict, err := svc.VerifyBundle(ctx, model.VerifyBundleRequest{
		Bundle:              raw,
		Headers:             overrideHeaders(f),
		StrictKey:           f.strictKey,
		IncludeChain:        f.includeChain,
		ResponseCIDFallback: f.cidFallback,
	})
	if err != nil {
		return failf("%s: %w", f.bundlePath, err)
	}
	return report(cmd, f, verdict)
}

func report(cmd *cobra.Command, f verifyBundleFlags, v model.BundleVerdict) error {
	log.Debug("bundle verdict", "trace_id", v.TraceID, "valid", v.Valid, "failed_step", v.FailedStep, "kid", v.KeyID)
	if f.jsonOut {
		if err := printJSON(cmd, v); err != nil {
			return err
		}
	} else if v.Valid {
		fmt.Fprintln(cmd.OutOrStdout(), "valid")
	} else if v.FailedStep != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "invalid: %s\n", v.FailedStep)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "invalid")
	}
	if !v.Valid {
		return errInvalid
	}
	if v.Chain != nil && !v.Chain.AllVerified {
		return errInvalid
	}
	return nil
}

func overrideHeaders(f verifyBundleFlags) map[string]string {
	h := map[string]string{}
	if f.responseCID != "" {
		h[bundle.HeaderResponseCID] = f.responseCID
	}
	if f.signature != "" {
		h[bundle.HeaderSignature] = f.signature
	}
	if f.kid != "" {
		h[bundle.HeaderKeyID] = f.kid
	}
	return h
}

// applyOverrides rewrites the bundle document for endpoints that only accept
// the bundle itself.
func applyOverrides(raw []byte, f verifyBundleFlags) ([]byte, error) {
	h := overrideHeaders(f)
	if len(h) == 0 {
		return raw, nil
	}
	b, err := bundle.Parse(raw)
	if err != nil {
		return nil, failf("%s: %w", f.bundlePath, err)
	}
	hdr := http.Header{}
	for k, v := range h {
		hdr.Set(k, v)
	}
	out, err := json.Marshal(bundle.ApplyHeaders(b, hdr))
	if err != nil {
		return nil, failf("encode bundle: %w", err)
	}
	return out, nil
}
