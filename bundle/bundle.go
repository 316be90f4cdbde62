// Package bundle verifies exported receipt bundles: the chain's final receipt
// hash, the trace id and the export time, signed together by a trusted key.
package bundle

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"signet.dev/verify/chain"
	"signet.dev/verify/keys"
	"signet.dev/verify/sig"
	"signet.dev/verify/verr"
)

// Header names the upstream service uses to ship signature metadata alongside
// an export.
const (
	HeaderResponseCID = "X-SIGNET-Response-CID"
	HeaderSignature   = "X-SIGNET-Signature"
	HeaderKeyID       = "X-SIGNET-KID"
)

// SignatureSize is the decoded length of an Ed25519 signature.
const SignatureSize = 64

// ErrEmptyChain is the one hard failure of Verify: a bundle with no receipts
// is a caller error, not a failed verification.
var ErrEmptyChain error = &verr.Error{Kind: verr.KindContract, RuleID: "SIG-BUNDLE-001", Message: "bundle chain is empty"}

// Bundle is an exported chain plus its signature metadata.
type Bundle struct {
	TraceID     string      `json:"trace_id"`
	Chain       chain.Chain `json:"chain"`
	ExportedAt  string      `json:"exported_at"`
	ResponseCID string      `json:"response_cid,omitempty"`
	KeyID       string      `json:"kid,omitempty"`
	Signature   string      `json:"signature,omitempty"`
}

// Parse decodes an export document. Normalized documents are parsed strictly;
// one that fails stays on its receipt (chain.Receipt.DocumentErr) and fails
// that hop at validation, not the decode.
func Parse(data []byte) (Bundle, error) {
	var b Bundle
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&b); err != nil {
		if verr.IsKind(err, verr.KindCanonical) {
			return Bundle{}, err
		}
		return Bundle{}, verr.Wrap(verr.KindContract, "SIG-BUNDLE-002", "invalid bundle JSON", err)
	}
	if dec.More() {
		return Bundle{}, verr.New(verr.KindContract, "SIG-BUNDLE-002", "trailing data after bundle")
	}
	return b, nil
}

// SignedMessage is the exact byte string the exporter signs.
func SignedMessage(responseCID, traceID, exportedAt string) []byte {
	return []byte(responseCID + "|" + traceID + "|" + exportedAt)
}

// ApplyHeaders returns a copy of b with any signature metadata present in h
// overriding the bundle's own fields.
func ApplyHeaders(b Bundle, h http.Header) Bundle {
	if v := h.Get(HeaderResponseCID); v != "" {
		b.ResponseCID = v
	}
	if v := h.Get(HeaderSignature); v != "" {
		b.Signature = v
	}
	if v := h.Get(HeaderKeyID); v != "" {
		b.KeyID = v
	}
	return b
}

type options struct {
	policy              keys.FallbackPolicy
	responseCIDFallback bool
}

// Option configures Verify.
type Option func(*options)

// WithFallbackPolicy sets the key selection policy used when the bundle has no
// kid. The default picks the first Ed25519 key.
func WithFallbackPolicy(p keys.FallbackPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithResponseCIDFallback makes a bundle with no response_cid use the final
// receipt hash instead, the way exports that ship the value only in the
// X-SIGNET-Response-CID header are read by the SDKs. Off by default: without
// it an empty response_cid fails the response_cid step.
func WithResponseCIDFallback() Option {
	return func(o *options) { o.responseCIDFallback = true }
}

func newOptions(opts []Option) options {
	o := options{policy: keys.FallbackFirstEd25519}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Verify reports whether b is authentic under set.
//
// Steps, in order: the response CID must equal the last receipt hash, a key
// is selected by kid, it must be Ed25519, the signature must decode to 64
// bytes, and the signature must verify over SignedMessage. The result does not
// say which step failed; see Diagnose. Errors are reserved for ErrEmptyChain
// and a done ctx.
func Verify(ctx context.Context, b Bundle, set keys.Set, opts ...Option) (bool, error) {
	d, err := Diagnose(ctx, b, set, opts...)
	if err != nil {
		return false, err
	}
	return d.OK(), nil
}

// VerifyDetached checks an explicit response CID and signature against a
// caller-chosen key. The bundle's own metadata fields are ignored.
func VerifyDetached(b Bundle, responseCID, signatureB64U string, rec keys.Record) (bool, error) {
	if len(b.Chain) == 0 {
		return false, ErrEmptyChain
	}
	if !CheckResponseCID(b.Chain, responseCID) {
		return false, nil
	}
	return sig.VerifyRecord(SignedMessage(responseCID, b.TraceID, b.ExportedAt), signatureB64U, rec), nil
}
