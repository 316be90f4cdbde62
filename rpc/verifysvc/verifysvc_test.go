package verifysvc

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"math"
	"net"
	"testing"
	"time"

	"github.com/cloudflare/circl/sign/ed25519"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"signet.dev/verify/b64u"
	"signet.dev/verify/bundle"
	"signet.dev/verify/canonical"
	"signet.dev/verify/chain"
	"signet.dev/verify/cidutil"
	"signet.dev/verify/keys"
	"signet.dev/verify/model"
)

func startServer(t *testing.T, svc *model.Service) *Client {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterVerifierServer(srv, &Server{Service: svc})
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	client, err := Dial(context.Background(), "passthrough:///bufnet", DialOptions{
		Extra: []grpc.DialOption{grpc.WithContextDialer(dialer)},
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	client.Timeout = 2 * time.Second
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func signedBundle(t *testing.T) ([]byte, keys.Set) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	rec, err := keys.NewEd25519(pub, "k1")
	if err != nil {
		t.Fatalf("NewEd25519: %v", err)
	}
	b := bundle.Bundle{
		TraceID:    "t-1",
		ExportedAt: "2025-08-29T00:01:00Z",
		Chain: chain.Chain{
			{TraceID: "t-1", Hop: 1, Timestamp: "2025-08-29T00:00:00Z", CID: "sha256:abc", ReceiptHash: "rh-last"},
		},
		ResponseCID: "rh-last",
		KeyID:       "k1",
	}
	b.Signature = b64u.Encode(ed25519.Sign(priv, bundle.SignedMessage(b.ResponseCID, b.TraceID, b.ExportedAt)))
	raw, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return raw, keys.NewSet(rec)
}

func TestConvert_RoundTrip(t *testing.T) {
	v, err := canonical.Parse([]byte(`{"b":[1,"x",true,null],"a":{"n":2.5}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	pv, err := FromCanonical(v)
	if err != nil {
		t.Fatalf("FromCanonical: %v", err)
	}
	back, err := ToCanonical(pv)
	if err != nil {
		t.Fatalf("ToCanonical: %v", err)
	}
	a, _ := canonical.Encode(v)
	b, _ := canonical.Encode(back)
	if string(a) != string(b) {
		t.Fatalf("round trip changed encoding: %s vs %s", a, b)
	}
	if got, _ := ToCanonical(nil); !got.IsNull() {
		t.Fatalf("expected nil value to convert to null")
	}
}

func TestComputeCID_MatchesLocal(t *testing.T) {
	client := startServer(t, &model.Service{})
	ctx := context.Background()

	doc, err := canonical.Parse([]byte(`{"Document":{"Echo":{"foo":"bar"}},"hop":1}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want, err := cidutil.Compute(ctx, doc)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	got, err := client.ComputeCID(ctx, doc)
	if err != nil {
		t.Fatalf("ComputeCID: %v", err)
	}
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestComputeCID_NonFiniteIsInvalidArgument(t *testing.T) {
	client := startServer(t, &model.Service{})
	_, err := client.client.ComputeCID(context.Background(), structpb.NewNumberValue(math.Inf(1)))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestVerifyBundle(t *testing.T) {
	raw, set := signedBundle(t)
	ctx := context.Background()

	client := startServer(t, &model.Service{Keys: set})
	ok, err := client.VerifyBundle(ctx, raw, nil, false)
	if err != nil {
		t.Fatalf("VerifyBundle: %v", err)
	}
	if !ok {
		t.Fatalf("expected bundle to verify with server key set")
	}

	ok, err = client.VerifyBundle(ctx, raw, &keys.JWKS{}, false)
	if err != nil {
		t.Fatalf("VerifyBundle: %v", err)
	}
	if ok {
		t.Fatalf("expected empty request key set to fail")
	}

	var doc keys.JWKS
	setJSON, _ := json.Marshal(set)
	if err := json.Unmarshal(setJSON, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	ok, err = startServer(t, &model.Service{}).VerifyBundle(ctx, raw, &doc, true)
	if err != nil {
		t.Fatalf("VerifyBundle: %v", err)
	}
	if !ok {
		t.Fatalf("expected bundle to verify with request key set")
	}
}

func TestVerifyBundle_ResponseCIDFallbackField(t *testing.T) {
	raw, set := signedBundle(t)
	client := startServer(t, &model.Service{Keys: set})
	ctx := context.Background()

	var b map[string]any
	if err := json.Unmarshal(raw, &b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	delete(b, "response_cid")

	for _, fallback := range []bool{false, true} {
		in, err := structpb.NewStruct(map[string]any{
			FieldBundle:              b,
			FieldResponseCIDFallback: fallback,
		})
		if err != nil {
			t.Fatalf("NewStruct: %v", err)
		}
		out, err := client.client.VerifyBundle(ctx, in)
		if err != nil {
			t.Fatalf("VerifyBundle: %v", err)
		}
		if out.GetValue() != fallback {
			t.Fatalf("fallback=%v: got valid=%v", fallback, out.GetValue())
		}
	}
}

func TestVerifyBundle_Errors(t *testing.T) {
	client := startServer(t, &model.Service{})
	ctx := context.Background()

	_, err := client.client.VerifyBundle(ctx, &structpb.Struct{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for missing bundle, got %v", err)
	}

	empty := []byte(`{"trace_id":"t","chain":[],"exported_at":"x"}`)
	if _, err := client.VerifyBundle(ctx, empty, nil, false); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for empty chain, got %v", err)
	}
}

func TestValidateChain(t *testing.T) {
	client := startServer(t, &model.Service{})
	ctx := context.Background()

	doc := canonical.ObjectFromMap(map[string]canonical.Value{"k": canonical.String("v")})
	c, err := cidutil.Compute(ctx, doc)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	receipts := chain.Chain{
		chain.DocumentFor(chain.Receipt{TraceID: "t-1", Hop: 1, Timestamp: "a", CID: c, ReceiptHash: "rh1"}, doc),
		{TraceID: "t-1", Hop: 2, Timestamp: "b", CID: c, ReceiptHash: "rh2", PrevReceiptHash: ptr("wrong")},
	}
	raw, err := json.Marshal(receipts)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	rep, err := client.ValidateChain(ctx, raw)
	if err != nil {
		t.Fatalf("ValidateChain: %v", err)
	}
	if rep.TraceID != "t-1" || rep.AllVerified || len(rep.Hops) != 2 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if rep.Hops[0].Outcome != "verified" || rep.Hops[1].Outcome != "unverifiable" {
		t.Fatalf("unexpected outcomes %+v", rep.Hops)
	}
	if rep.Hops[1].Linkage == nil || rep.Hops[1].Linkage.Expected != "rh1" || rep.Hops[1].Linkage.Got != "wrong" {
		t.Fatalf("expected linkage failure on hop 2, got %+v", rep.Hops[1].Linkage)
	}
}

func ptr(s string) *string { return &s }
