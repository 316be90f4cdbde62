package model

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/cloudflare/circl/sign/ed25519"

	"signet.dev/verify/b64u"
	"signet.dev/verify/bundle"
	"signet.dev/verify/canonical"
	"signet.dev/verify/chain"
	"signet.dev/verify/cidutil"
	"signet.dev/verify/keys"
	"signet.dev/verify/storage"
	"signet.dev/verify/storage/localfs"
)

type fixture struct {
	priv ed25519.PrivateKey
	set  keys.Set
	doc  canonical.Value
	cid  cidutil.CID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	rec, err := keys.NewEd25519(pub, "k1")
	if err != nil {
		t.Fatalf("NewEd25519: %v", err)
	}
	doc, err := canonical.Parse([]byte(`{"Document":{"Echo":{"foo":"bar"}}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c, err := cidutil.Compute(context.Background(), doc)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return fixture{priv: priv, set: keys.NewSet(rec), doc: doc, cid: c}
}

func (f fixture) bundle(t *testing.T, withDoc bool) []byte {
	t.Helper()
	r := chain.Receipt{TraceID: "t-1", Hop: 1, Timestamp: "2025-08-29T00:00:00Z", CID: f.cid, ReceiptHash: "rh1"}
	if withDoc {
		r = chain.DocumentFor(r, f.doc)
	}
	b := bundle.Bundle{TraceID: "t-1", ExportedAt: "2025-08-29T00:01:00Z", Chain: chain.Chain{r}, ResponseCID: "rh1", KeyID: "k1"}
	b.Signature = b64u.Encode(ed25519.Sign(f.priv, bundle.SignedMessage(b.ResponseCID, b.TraceID, b.ExportedAt)))
	raw, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return raw
}

func TestService_ComputeCID(t *testing.T) {
	svc := &Service{}
	resp, err := svc.ComputeCID(context.Background(), []byte(` { } `))
	if err != nil {
		t.Fatalf("ComputeCID: %v", err)
	}
	if resp.CID != "sha256:44136fa355b3678a1146ad16f7e8649e94fb4fc21fe77e8310c060f61caaff8a" {
		t.Fatalf("unexpected cid %s", resp.CID)
	}
	if !strings.HasPrefix(resp.CIDv1, "bafkrei") {
		t.Fatalf("unexpected cidv1 %s", resp.CIDv1)
	}

	_, err = svc.ComputeCID(context.Background(), []byte(`{"a":1,"a":2}`))
	var ce *CodedError
	if !errors.As(err, &ce) || ce.Code != ErrCanonicalization || ce.RuleID != "SIG-CANON-005" {
		t.Fatalf("expected canonicalization error, got %v", err)
	}
}

func TestService_VerifyBundle(t *testing.T) {
	f := newFixture(t)
	svc := &Service{Keys: f.set}
	ctx := context.Background()

	v, err := svc.VerifyBundle(ctx, VerifyBundleRequest{Bundle: f.bundle(t, true), IncludeChain: true})
	if err != nil {
		t.Fatalf("VerifyBundle: %v", err)
	}
	if !v.Valid || v.KeyID != "k1" || v.FailedStep != "" {
		t.Fatalf("unexpected verdict %+v", v)
	}
	if v.Chain == nil || !v.Chain.AllVerified {
		t.Fatalf("expected verified chain, got %+v", v.Chain)
	}

	v, err = svc.VerifyBundle(ctx, VerifyBundleRequest{
		Bundle:  f.bundle(t, true),
		Headers: map[string]string{"x-signet-kid": "other"},
	})
	if err != nil {
		t.Fatalf("VerifyBundle: %v", err)
	}
	if v.Valid || v.FailedStep != string(bundle.StepKey) {
		t.Fatalf("expected key failure, got %+v", v)
	}

	empty := keys.JWKS{}
	v, err = svc.VerifyBundle(ctx, VerifyBundleRequest{Bundle: f.bundle(t, false), JWKS: &empty})
	if err != nil {
		t.Fatalf("VerifyBundle: %v", err)
	}
	if v.Valid {
		t.Fatalf("expected request key set to replace the service key set")
	}

	// A malformed key in the request set does not affect the others.
	good := f.set.Records()[0].ToJWK()
	mixed := keys.JWKS{Keys: []keys.JWK{{Kty: "OKP", Crv: keys.CurveEd25519, X: "AAAA", Kid: "broken"}, good}}
	v, err = svc.VerifyBundle(ctx, VerifyBundleRequest{Bundle: f.bundle(t, false), JWKS: &mixed})
	if err != nil {
		t.Fatalf("VerifyBundle: %v", err)
	}
	if !v.Valid {
		t.Fatalf("expected valid key k1 to verify next to a malformed key, got %+v", v)
	}
	v, err = svc.VerifyBundle(ctx, VerifyBundleRequest{
		Bundle:  f.bundle(t, false),
		JWKS:    &mixed,
		Headers: map[string]string{bundle.HeaderKeyID: "broken"},
	})
	if err != nil {
		t.Fatalf("VerifyBundle: %v", err)
	}
	if v.Valid || v.FailedStep != string(bundle.StepKey) {
		t.Fatalf("expected the malformed key to fail selection, got %+v", v)
	}
}

func TestService_VerifyBundle_Errors(t *testing.T) {
	svc := &Service{}
	ctx := context.Background()

	_, err := svc.VerifyBundle(ctx, VerifyBundleRequest{})
	if ce := MapError(err); ce.Code != ErrInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST, got %v", err)
	}
	_, err = svc.VerifyBundle(ctx, VerifyBundleRequest{Bundle: []byte(`{"trace_id":"t","chain":[],"exported_at":"x"}`)})
	if ce := MapError(err); ce.Code != ErrEmptyChain {
		t.Fatalf("expected EMPTY_CHAIN, got %v", err)
	}
	_, err = svc.VerifyBundle(ctx, VerifyBundleRequest{Bundle: []byte(`not json`)})
	if ce := MapError(err); ce.Code != ErrInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestService_ValidateChain_ArrayAndBundle(t *testing.T) {
	f := newFixture(t)
	svc := &Service{Concurrency: 2}
	ctx := context.Background()

	rep, err := svc.ValidateChain(ctx, ValidateChainRequest{Document: f.bundle(t, true)})
	if err != nil {
		t.Fatalf("ValidateChain: %v", err)
	}
	if !rep.AllVerified || len(rep.Hops) != 1 || rep.Hops[0].Outcome != "verified" {
		t.Fatalf("unexpected report %+v", rep)
	}

	arr := `[{"trace_id":"t-1","hop":1,"ts":"x","cid":"` + string(f.cid) + `","receipt_hash":"rh1"}]`
	rep, err = svc.ValidateChain(ctx, ValidateChainRequest{Document: []byte(arr)})
	if err != nil {
		t.Fatalf("ValidateChain: %v", err)
	}
	if rep.AllVerified || rep.Hops[0].Outcome != "unverifiable" {
		t.Fatalf("expected unverifiable hop, got %+v", rep)
	}
}

func TestService_ValidateChain_BadHopDocument(t *testing.T) {
	f := newFixture(t)
	svc := &Service{}
	arr := `[
		{"trace_id":"t-1","hop":1,"ts":"x","cid":"` + string(f.cid) + `","receipt_hash":"rh1","normalized":{"Document":{"Echo":{"foo":"bar"}}}},
		{"trace_id":"t-1","hop":2,"ts":"y","cid":"` + string(f.cid) + `","receipt_hash":"rh2","prev_receipt_hash":"rh1","normalized":{"a":1,"a":2}}
	]`
	rep, err := svc.ValidateChain(context.Background(), ValidateChainRequest{Document: []byte(arr)})
	if err != nil {
		t.Fatalf("ValidateChain: %v", err)
	}
	if len(rep.Hops) != 2 || rep.AllVerified {
		t.Fatalf("unexpected report %+v", rep)
	}
	if rep.Hops[0].Outcome != "verified" {
		t.Fatalf("hop 1: expected verified, got %+v", rep.Hops[0])
	}
	if rep.Hops[1].Outcome != "mismatch" || !strings.Contains(rep.Hops[1].Error, "duplicate object key") {
		t.Fatalf("hop 2: expected mismatch with error, got %+v", rep.Hops[1])
	}
}

func TestService_ValidateChain_Hydrate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	store, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	if _, err := storage.PutDocument(ctx, store, f.doc); err != nil {
		t.Fatalf("PutDocument: %v", err)
	}

	req := ValidateChainRequest{Document: f.bundle(t, false), Hydrate: true}
	if _, err := (&Service{}).ValidateChain(ctx, req); MapError(err).Code != ErrMissingStore {
		t.Fatalf("expected MISSING_STORE, got %v", err)
	}

	rep, err := (&Service{Store: store}).ValidateChain(ctx, req)
	if err != nil {
		t.Fatalf("ValidateChain: %v", err)
	}
	if !rep.AllVerified {
		t.Fatalf("expected hydrated chain to verify, got %+v", rep)
	}
}
