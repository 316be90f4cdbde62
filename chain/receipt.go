// Package chain validates hash-linked receipt chains.
//
// Each receipt claims the CID of a normalized document. Validate recomputes
// that CID for every hop that carries its document, checks that each receipt
// points at its predecessor's receipt hash, and reports every hop. A failed
// hop is data in the report, never an early return.
package chain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"signet.dev/verify/canonical"
	"signet.dev/verify/cidutil"
	"signet.dev/verify/verr"
)

// Receipt attests that a normalized document existed at one hop of a trace.
type Receipt struct {
	TraceID         string           `json:"trace_id"`
	Hop             int              `json:"hop"`
	Timestamp       string           `json:"ts"`
	CID             cidutil.CID      `json:"cid"`
	ReceiptHash     string           `json:"receipt_hash"`
	PrevReceiptHash *string          `json:"prev_receipt_hash,omitempty"`
	PrevCID         *string          `json:"prev_cid,omitempty"`
	Normalized      *canonical.Value `json:"normalized,omitempty"`

	// Set when normalized was present but is not canonical JSON. The hop then
	// validates as Mismatch instead of failing the whole decode.
	documentErr error
	documentRaw string
}

// UnmarshalJSON decodes a receipt. A normalized document that fails strict
// parsing is kept with its error rather than rejected.
func (r *Receipt) UnmarshalJSON(b []byte) error {
	type plain Receipt
	var aux struct {
		plain
		Normalized json.RawMessage `json:"normalized,omitempty"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = Receipt(aux.plain)
	r.Normalized, r.documentErr, r.documentRaw = nil, nil, ""

	raw := bytes.TrimSpace(aux.Normalized)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	doc, err := canonical.Parse(raw)
	if err != nil {
		r.documentErr = err
		r.documentRaw = string(raw)
		return nil
	}
	r.Normalized = &doc
	return nil
}

// MarshalJSON emits the receipt, including an unparsable normalized document
// as it was received.
func (r Receipt) MarshalJSON() ([]byte, error) {
	type plain Receipt
	if r.documentErr == nil || r.Normalized != nil {
		return json.Marshal(plain(r))
	}
	return json.Marshal(struct {
		plain
		Normalized json.RawMessage `json:"normalized"`
	}{plain(r), json.RawMessage(r.documentRaw)})
}

// DocumentErr returns why the attached normalized document could not be
// parsed, or nil.
func (r Receipt) DocumentErr() error {
	if r.Normalized != nil {
		return nil
	}
	return r.documentErr
}

// Prev returns the predecessor receipt hash, or "" when absent.
func (r Receipt) Prev() string {
	if r.PrevReceiptHash == nil {
		return ""
	}
	return *r.PrevReceiptHash
}

// HasDocument reports whether a normalized document is attached, parsable or
// not.
func (r Receipt) HasDocument() bool { return r.Normalized != nil || r.documentErr != nil }

// ReceiptHashInput is the object a receipt hash is computed over:
// {"ts","cid","prev","hop"} with prev null for the first receipt.
func (r Receipt) ReceiptHashInput() canonical.Value {
	prev := canonical.Null()
	if r.PrevReceiptHash != nil {
		prev = canonical.String(*r.PrevReceiptHash)
	}
	return canonical.ObjectFromMap(map[string]canonical.Value{
		"ts":   canonical.String(r.Timestamp),
		"cid":  canonical.String(string(r.CID)),
		"prev": prev,
		"hop":  canonical.Number(float64(r.Hop)),
	})
}

// Chain is the ordered sequence of receipts for one trace.
type Chain []Receipt

// Parse decodes a JSON array of receipts. A normalized document that is not
// canonical JSON does not fail the decode; see Receipt.DocumentErr.
func Parse(data []byte) (Chain, error) {
	var c Chain
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&c); err != nil {
		if verr.IsKind(err, verr.KindCanonical) {
			return nil, err
		}
		return nil, verr.Wrap(verr.KindContract, "SIG-CHAIN-001", "invalid receipt chain JSON", err)
	}
	if dec.More() {
		return nil, verr.New(verr.KindContract, "SIG-CHAIN-001", "trailing data after receipt chain")
	}
	return c, nil
}

// LinkageError reports a receipt whose prev_receipt_hash does not name its
// predecessor's receipt_hash.
type LinkageError struct {
	Index    int    `json:"index"`
	Hop      int    `json:"hop"`
	Expected string `json:"expected"`
	Got      string `json:"got"`
}

func (e *LinkageError) Error() string {
	if e.Expected == "" {
		return fmt.Sprintf("hop %d: first receipt must not reference a predecessor, got %q", e.Hop, e.Got)
	}
	return fmt.Sprintf("hop %d: prev_receipt_hash %q does not match predecessor receipt_hash %q", e.Hop, e.Got, e.Expected)
}

// checkLinkage returns the linkage break at index i, if any.
func checkLinkage(c Chain, i int) *LinkageError {
	got := c[i].Prev()
	expected := ""
	if i > 0 {
		expected = c[i-1].ReceiptHash
	}
	if got == expected {
		return nil
	}
	return &LinkageError{Index: i, Hop: c[i].Hop, Expected: expected, Got: got}
}
