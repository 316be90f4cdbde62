package main

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"signet.dev/verify/bundle"
)

func TestBuild_MatchesCheckedInVector(t *testing.T) {
	got, err := build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	raw, err := os.ReadFile("../../../bundle/testdata/vector.json")
	if err != nil {
		t.Fatalf("read vector: %v", err)
	}
	var want struct {
		Bundle bundle.Bundle `json:"bundle"`
	}
	if err := json.Unmarshal(raw, &want); err != nil {
		t.Fatalf("decode vector: %v", err)
	}

	if got.Bundle.ResponseCID != want.Bundle.ResponseCID {
		t.Fatalf("response cid: got %s want %s", got.Bundle.ResponseCID, want.Bundle.ResponseCID)
	}
	if got.Bundle.Signature != want.Bundle.Signature {
		t.Fatalf("signature: got %s want %s", got.Bundle.Signature, want.Bundle.Signature)
	}
	if len(got.Bundle.Chain) != len(want.Bundle.Chain) {
		t.Fatalf("chain length: got %d want %d", len(got.Bundle.Chain), len(want.Bundle.Chain))
	}
	for i := range got.Bundle.Chain {
		g, w := got.Bundle.Chain[i], want.Bundle.Chain[i]
		if g.CID != w.CID || g.ReceiptHash != w.ReceiptHash || g.Prev() != w.Prev() {
			t.Fatalf("hop %d differs: got %+v want %+v", g.Hop, g, w)
		}
	}
	if x := got.JWKS.Records()[0].PublicKeyB64U(); x != "vHy8tWNjdfodgkNNRmck2SN39TuYBpXdSdJtDOEiBaU" {
		t.Fatalf("unexpected public key %s", x)
	}
}
