package chain

import (
	"context"
	"errors"
	"fmt"

	"signet.dev/verify/storage"
	"signet.dev/verify/verr"
)

// Hydrate returns a copy of c in which receipts without a normalized document
// get the document stored under their CID in cas. A receipt carrying an
// unparsable document keeps it.
//
// Documents the store does not have stay missing and validate as
// Unverifiable, as do receipts whose CID is malformed. Any other store error
// aborts hydration. c itself is not modified.
func Hydrate(ctx context.Context, c Chain, cas storage.CAS) (Chain, error) {
	out := make(Chain, len(c))
	copy(out, c)
	for i := range out {
		if out[i].HasDocument() || !out[i].CID.Valid() {
			continue
		}
		doc, err := storage.GetDocument(ctx, cas, out[i].CID)
		if err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, verr.Wrap(verr.KindStorage, "SIG-STORE-001", fmt.Sprintf("hydrate hop %d (%s)", out[i].Hop, out[i].CID), err)
		}
		out[i].Normalized = &doc
	}
	return out, nil
}
