// Command vectorgen prints a deterministic signed bundle with its JWKS.
//
// The output is the golden vector checked in at bundle/testdata/vector.json:
//
//	go run ./internal/tools/vectorgen > bundle/testdata/vector.json
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cloudflare/circl/sign/ed25519"

	"signet.dev/verify/b64u"
	"signet.dev/verify/bundle"
	"signet.dev/verify/canonical"
	"signet.dev/verify/chain"
	"signet.dev/verify/cidutil"
	"signet.dev/verify/keys"
)

const (
	traceID    = "trace-vector-1"
	keyID      = "vector-k1"
	exportedAt = "2025-08-29T00:01:00Z"
)

var documents = []string{
	`{"Document":{"Echo":{"foo":"bar"}},"hop":1}`,
	`{"Document":{"Echo":{"foo":"bar","seen":true}},"hop":2}`,
	`{"Document":{"Reply":{"text":"ok"}},"hop":3}`,
}

type vector struct {
	JWKS   keys.Set      `json:"jwks"`
	Bundle bundle.Bundle `json:"bundle"`
}

func main() {
	v, err := build(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "vectorgen: %v\n", err)
		os.Exit(1)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "vectorgen: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func build(ctx context.Context) (vector, error) {
	priv := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{0xA1}, ed25519.SeedSize))
	pub := priv.Public().(ed25519.PublicKey)
	rec, err := keys.NewEd25519(pub, keyID)
	if err != nil {
		return vector{}, err
	}

	var (
		c    chain.Chain
		prev *string
	)
	for i, raw := range documents {
		doc, err := canonical.Parse([]byte(raw))
		if err != nil {
			return vector{}, err
		}
		id, err := cidutil.Compute(ctx, doc)
		if err != nil {
			return vector{}, err
		}
		r := chain.DocumentFor(chain.Receipt{
			TraceID:         traceID,
			Hop:             i + 1,
			Timestamp:       fmt.Sprintf("2025-08-29T00:00:0%dZ", i),
			CID:             id,
			PrevReceiptHash: prev,
		}, doc)
		rh, err := cidutil.Compute(ctx, r.ReceiptHashInput())
		if err != nil {
			return vector{}, err
		}
		r.ReceiptHash = rh.String()
		c = append(c, r)
		h := r.ReceiptHash
		prev = &h
	}

	b := bundle.Bundle{
		TraceID:     traceID,
		Chain:       c,
		ExportedAt:  exportedAt,
		ResponseCID: c[len(c)-1].ReceiptHash,
		KeyID:       keyID,
	}
	b.Signature = b64u.Encode(ed25519.Sign(priv, bundle.SignedMessage(b.ResponseCID, b.TraceID, b.ExportedAt)))
	return vector{JWKS: keys.NewSet(rec), Bundle: b}, nil
}
