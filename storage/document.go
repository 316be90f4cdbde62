package storage

import (
	"context"
	"fmt"

	"signet.dev/verify/canonical"
	"signet.dev/verify/cidutil"
)

// PutDocument stores the canonical encoding of doc and returns its CID. The
// returned CID is the one a receipt over doc would claim.
func PutDocument(ctx context.Context, cas CAS, doc canonical.Value) (cidutil.CID, error) {
	b, err := canonical.Encode(doc)
	if err != nil {
		return "", err
	}
	id, err := cas.Put(ctx, b)
	if err != nil {
		return "", err
	}
	return cidutil.FromCIDv1(id)
}

// GetDocument loads and parses the document stored under c.
func GetDocument(ctx context.Context, cas CAS, c cidutil.CID) (canonical.Value, error) {
	id, err := cidutil.ToCIDv1(c)
	if err != nil {
		return canonical.Value{}, err
	}
	b, err := cas.Get(ctx, id)
	if err != nil {
		return canonical.Value{}, err
	}
	doc, err := canonical.Parse(b)
	if err != nil {
		return canonical.Value{}, fmt.Errorf("storage: document %s: %w", c, err)
	}
	return doc, nil
}
