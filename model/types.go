package model

import (
	"encoding/json"

	"signet.dev/verify/keys"
)

// CIDResponse carries a document CID in both notations.
type CIDResponse struct {
	CID   string `json:"cid"`
	CIDv1 string `json:"cidv1"`
}

// VerifyBundleRequest asks for one bundle to be verified.
//
// JWKS is optional; without it the service's configured key set is used.
// Headers carries the X-SIGNET-* values, which override the bundle's own
// fields when present.
type VerifyBundleRequest struct {
	Bundle       json.RawMessage   `json:"bundle"`
	JWKS         *keys.JWKS        `json:"jwks,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	StrictKey    bool              `json:"strictKey,omitempty"`
	IncludeChain bool              `json:"includeChain,omitempty"`
	// ResponseCIDFallback uses the final receipt hash when the bundle and
	// headers carry no response CID.
	ResponseCIDFallback bool `json:"responseCidFallback,omitempty"`
}

// BundleVerdict is the answer to a VerifyBundleRequest.
type BundleVerdict struct {
	Valid       bool         `json:"valid"`
	TraceID     string       `json:"traceId"`
	ResponseCID string       `json:"responseCid"`
	KeyID       string       `json:"kid,omitempty"`
	FailedStep  string       `json:"failedStep,omitempty"`
	Chain       *ChainReport `json:"chain,omitempty"`
}

// ValidateChainRequest carries either a receipt array or a whole bundle.
type ValidateChainRequest struct {
	Document         json.RawMessage `json:"document"`
	CheckReceiptHash bool            `json:"checkReceiptHash,omitempty"`
	Hydrate          bool            `json:"hydrate,omitempty"`
}

type Linkage struct {
	Expected string `json:"expected"`
	Got      string `json:"got"`
}

type HopResult struct {
	Index              int      `json:"index"`
	Hop                int      `json:"hop"`
	Outcome            string   `json:"outcome"`
	ClaimedCID         string   `json:"claimedCid"`
	RecomputedCID      string   `json:"recomputedCid,omitempty"`
	Error              string   `json:"error,omitempty"`
	Linkage            *Linkage `json:"linkage,omitempty"`
	ReceiptHashChecked bool     `json:"receiptHashChecked,omitempty"`
	ReceiptHashOK      bool     `json:"receiptHashOk,omitempty"`
}

type ChainReport struct {
	TraceID     string      `json:"traceId"`
	AllVerified bool        `json:"allVerified"`
	Hops        []HopResult `json:"hops"`
}
