package model

import (
	"signet.dev/verify/bundle"
	"signet.dev/verify/chain"
)

// FromReport projects a chain.Report into its wire form.
func FromReport(r chain.Report) ChainReport {
	out := ChainReport{
		TraceID:     r.TraceID,
		AllVerified: r.AllVerified(),
		Hops:        make([]HopResult, 0, len(r.Hops)),
	}
	for _, h := range r.Hops {
		out.Hops = append(out.Hops, fromHop(h))
	}
	return out
}

func fromHop(h chain.HopReport) HopResult {
	res := HopResult{
		Index:              h.Index,
		Hop:                h.Hop,
		Outcome:            h.Outcome.String(),
		ClaimedCID:         string(h.ClaimedCID),
		RecomputedCID:      string(h.RecomputedCID),
		ReceiptHashChecked: h.ReceiptHashChecked,
		ReceiptHashOK:      h.ReceiptHashOK,
	}
	if h.Err != nil {
		res.Error = h.Err.Error()
	}
	if h.Linkage != nil {
		res.Linkage = &Linkage{Expected: h.Linkage.Expected, Got: h.Linkage.Got}
	}
	return res
}

// FromDiagnosis builds the verdict for b from the outcome of bundle.Diagnose.
func FromDiagnosis(b bundle.Bundle, d bundle.Diagnosis) BundleVerdict {
	responseCID := d.ResponseCID
	if responseCID == "" {
		responseCID = b.ResponseCID
	}
	return BundleVerdict{
		Valid:       d.OK(),
		TraceID:     b.TraceID,
		ResponseCID: responseCID,
		KeyID:       d.KeyID,
		FailedStep:  string(d.FailedStep),
	}
}
