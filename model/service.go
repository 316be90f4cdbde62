package model

import (
	"bytes"
	"context"
	"net/http"

	"signet.dev/verify/bundle"
	"signet.dev/verify/canonical"
	"signet.dev/verify/chain"
	"signet.dev/verify/cidutil"
	"signet.dev/verify/keys"
	"signet.dev/verify/storage"
)

// Service runs verification requests against a configured key set and an
// optional document store. Every error it returns is a *CodedError.
type Service struct {
	Keys        keys.Set
	Store       storage.CAS
	Fallback    keys.FallbackPolicy
	Concurrency int
}

// ComputeCID canonicalizes doc and returns its CID.
func (s *Service) ComputeCID(ctx context.Context, doc []byte) (CIDResponse, error) {
	v, err := canonical.Parse(doc)
	if err != nil {
		return CIDResponse{}, MapError(err)
	}
	return s.computeValue(ctx, v)
}

// ComputeValueCID is ComputeCID for callers that already hold a Value.
func (s *Service) ComputeValueCID(ctx context.Context, v canonical.Value) (CIDResponse, error) {
	return s.computeValue(ctx, v)
}

func (s *Service) computeValue(ctx context.Context, v canonical.Value) (CIDResponse, error) {
	c, err := cidutil.Compute(ctx, v)
	if err != nil {
		return CIDResponse{}, MapError(err)
	}
	v1, err := cidutil.ToCIDv1(c)
	if err != nil {
		return CIDResponse{}, MapError(err)
	}
	return CIDResponse{CID: c.String(), CIDv1: v1.String()}, nil
}

// VerifyBundle verifies one exported bundle.
//
// A failed verification is a verdict with Valid false, not an error. Errors
// cover malformed input, an empty chain and a done ctx.
func (s *Service) VerifyBundle(ctx context.Context, req VerifyBundleRequest) (BundleVerdict, error) {
	if len(bytes.TrimSpace(req.Bundle)) == 0 {
		return BundleVerdict{}, NewError(ErrInvalidRequest, "bundle is required")
	}
	b, err := bundle.Parse(req.Bundle)
	if err != nil {
		return BundleVerdict{}, MapError(err)
	}
	if len(req.Headers) > 0 {
		h := http.Header{}
		for k, v := range req.Headers {
			h.Set(k, v)
		}
		b = bundle.ApplyHeaders(b, h)
	}

	set := s.Keys
	if req.JWKS != nil {
		set = req.JWKS.Set()
	}
	policy := s.Fallback
	if req.StrictKey {
		policy = keys.FallbackNone
	}

	opts := []bundle.Option{bundle.WithFallbackPolicy(policy)}
	if req.ResponseCIDFallback {
		opts = append(opts, bundle.WithResponseCIDFallback())
	}
	d, err := bundle.Diagnose(ctx, b, set, opts...)
	if err != nil {
		return BundleVerdict{}, MapError(err)
	}
	out := FromDiagnosis(b, d)
	if req.IncludeChain {
		rep, err := s.validate(ctx, b.Chain, false, false)
		if err != nil {
			return BundleVerdict{}, err
		}
		out.Chain = &rep
	}
	return out, nil
}

// ValidateChain validates a receipt array, or the chain of a bundle when the
// document is a JSON object.
func (s *Service) ValidateChain(ctx context.Context, req ValidateChainRequest) (ChainReport, error) {
	c, err := ParseChainDocument(req.Document)
	if err != nil {
		return ChainReport{}, err
	}
	return s.validate(ctx, c, req.CheckReceiptHash, req.Hydrate)
}

// ValidateParsed validates a chain that is already decoded.
func (s *Service) ValidateParsed(ctx context.Context, c chain.Chain, checkReceiptHash, hydrate bool) (ChainReport, error) {
	return s.validate(ctx, c, checkReceiptHash, hydrate)
}

func (s *Service) validate(ctx context.Context, c chain.Chain, checkReceiptHash, hydrate bool) (ChainReport, error) {
	if hydrate {
		if s.Store == nil {
			return ChainReport{}, NewError(ErrMissingStore, "hydration requested but no document store is configured")
		}
		var err error
		if c, err = chain.Hydrate(ctx, c, s.Store); err != nil {
			return ChainReport{}, MapError(err)
		}
	}
	var opts []chain.Option
	if s.Concurrency > 0 {
		opts = append(opts, chain.WithConcurrency(s.Concurrency))
	}
	if checkReceiptHash {
		opts = append(opts, chain.WithReceiptHashCheck())
	}
	rep, err := chain.Validate(ctx, c, opts...)
	if err != nil {
		return ChainReport{}, MapError(err)
	}
	return FromReport(rep), nil
}

// ParseChainDocument accepts either a JSON array of receipts or a bundle
// object and returns the receipts.
func ParseChainDocument(doc []byte) (chain.Chain, error) {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) == 0 {
		return nil, NewError(ErrInvalidRequest, "document is required")
	}
	if trimmed[0] == '{' {
		b, err := bundle.Parse(trimmed)
		if err != nil {
			return nil, MapError(err)
		}
		return b.Chain, nil
	}
	c, err := chain.Parse(trimmed)
	if err != nil {
		return nil, MapError(err)
	}
	return c, nil
}
