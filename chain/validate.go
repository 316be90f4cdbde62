package chain

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"signet.dev/verify/canonical"
	"signet.dev/verify/cidutil"
	"signet.dev/verify/verr"
)

// Outcome is the CID verdict for one hop.
type Outcome int

const (
	// Verified: the attached document hashes to the claimed CID.
	Verified Outcome = iota + 1
	// Mismatch: the document hashes elsewhere, or could not be hashed.
	Mismatch
	// Unverifiable: no document was attached.
	Unverifiable
)

func (o Outcome) String() string {
	switch o {
	case Verified:
		return "verified"
	case Mismatch:
		return "mismatch"
	case Unverifiable:
		return "unverifiable"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "verified":
		*o = Verified
	case "mismatch":
		*o = Mismatch
	case "unverifiable":
		*o = Unverifiable
	default:
		return fmt.Errorf("chain: unknown outcome %q", b)
	}
	return nil
}

// HopReport is the result for one receipt. Linkage is reported alongside the
// CID outcome, never instead of it.
type HopReport struct {
	Index         int
	Hop           int
	Outcome       Outcome
	ClaimedCID    cidutil.CID
	RecomputedCID cidutil.CID
	// Err explains a Mismatch that has no recomputed CID.
	Err     error
	Linkage *LinkageError

	// Set only when the receipt hash check is enabled.
	ReceiptHashChecked    bool
	ReceiptHashOK         bool
	RecomputedReceiptHash cidutil.CID
}

// OK reports whether the hop passed every check that was run.
func (h HopReport) OK() bool {
	return h.Outcome == Verified && h.Linkage == nil && (!h.ReceiptHashChecked || h.ReceiptHashOK)
}

// Report holds one HopReport per receipt, in chain order.
type Report struct {
	TraceID string
	Hops    []HopReport
}

// ByHop indexes the report by hop number. When hop numbers repeat, the first
// receipt with that number wins.
func (r Report) ByHop() map[int]HopReport {
	out := make(map[int]HopReport, len(r.Hops))
	for _, h := range r.Hops {
		if _, ok := out[h.Hop]; !ok {
			out[h.Hop] = h
		}
	}
	return out
}

// AllVerified reports whether every hop passed. An empty report is vacuously
// verified.
func (r Report) AllVerified() bool {
	for _, h := range r.Hops {
		if !h.OK() {
			return false
		}
	}
	return true
}

// Failures returns the hops that did not pass, in chain order.
func (r Report) Failures() []HopReport {
	var out []HopReport
	for _, h := range r.Hops {
		if !h.OK() {
			out = append(out, h)
		}
	}
	return out
}

type options struct {
	concurrency      int
	checkReceiptHash bool
}

// Option configures Validate.
type Option func(*options)

// WithConcurrency bounds how many hops are verified at once. Values below 1
// mean 1.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = 1
		}
		o.concurrency = n
	}
}

// WithReceiptHashCheck also recomputes each receipt_hash from
// {"ts","cid","prev","hop"}. Exporters that use opaque receipt hashes will
// fail this check, so it is off by default.
func WithReceiptHashCheck() Option {
	return func(o *options) { o.checkReceiptHash = true }
}

// Validate verifies every hop of c.
//
// The only error is ctx's, returned alongside the partial report; hops that
// were not reached are marked Unverifiable with Err set. An empty chain gives
// an empty report.
func Validate(ctx context.Context, c Chain, opts ...Option) (Report, error) {
	o := options{concurrency: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&o)
	}

	rep := Report{Hops: make([]HopReport, len(c))}
	if len(c) > 0 {
		rep.TraceID = c[0].TraceID
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i := range c {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			h, err := verifyHop(gctx, c, i, o)
			if err != nil {
				return err
			}
			rep.Hops[i] = h
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		for i := range rep.Hops {
			if rep.Hops[i].Outcome == 0 {
				rep.Hops[i] = HopReport{Index: i, Hop: c[i].Hop, Outcome: Unverifiable, ClaimedCID: c[i].CID, Err: err, Linkage: checkLinkage(c, i)}
			}
		}
	}
	return rep, err
}

func verifyHop(ctx context.Context, c Chain, i int, o options) (HopReport, error) {
	r := c[i]
	h := HopReport{Index: i, Hop: r.Hop, ClaimedCID: r.CID, Linkage: checkLinkage(c, i)}

	if err := checkDocument(ctx, r, &h); err != nil {
		return HopReport{}, err
	}
	if o.checkReceiptHash {
		h.ReceiptHashChecked = true
		got, err := cidutil.Compute(ctx, r.ReceiptHashInput())
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return HopReport{}, err
			}
		} else {
			h.RecomputedReceiptHash = got
			h.ReceiptHashOK = string(got) == r.ReceiptHash
		}
	}
	return h, nil
}

// checkDocument fills the CID outcome of h. It returns an error only when ctx
// is done.
func checkDocument(ctx context.Context, r Receipt, h *HopReport) error {
	if err := r.DocumentErr(); err != nil {
		h.Outcome = Mismatch
		h.Err = err
		return nil
	}
	if r.Normalized == nil {
		h.Outcome = Unverifiable
		return nil
	}
	got, err := cidutil.Compute(ctx, *r.Normalized)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return err
		}
		h.Outcome = Mismatch
		h.Err = err
		return nil
	}
	h.RecomputedCID = got
	if got == r.CID {
		h.Outcome = Verified
	} else {
		h.Outcome = Mismatch
	}
	return nil
}

// VerifyReceipt checks a single receipt on its own: the claimed CID must be
// well formed, the hop number must be at least 1, and an attached document
// must hash to the claimed CID. Linkage is not checked.
func VerifyReceipt(ctx context.Context, r Receipt) HopReport {
	h := HopReport{Hop: r.Hop, ClaimedCID: r.CID}
	if _, err := cidutil.Parse(string(r.CID)); err != nil {
		h.Outcome = Mismatch
		h.Err = err
		return h
	}
	if r.Hop < 1 {
		h.Outcome = Mismatch
		h.Err = verr.New(verr.KindContract, "SIG-CHAIN-002", fmt.Sprintf("hop must be >= 1, got %d", r.Hop))
		return h
	}
	if err := checkDocument(ctx, r, &h); err != nil {
		h.Outcome = Unverifiable
		h.Err = err
	}
	return h
}

// DocumentFor is a convenience for callers that hold a raw document: it
// returns a copy of r with doc attached.
func DocumentFor(r Receipt, doc canonical.Value) Receipt {
	r.Normalized = &doc
	r.documentErr, r.documentRaw = nil, ""
	return r
}
