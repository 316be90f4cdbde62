package verifysvc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"signet.dev/verify/keys"
	"signet.dev/verify/model"
)

// Request fields accepted by VerifyBundle.
const (
	FieldBundle              = "bundle"
	FieldJWKS                = "jwks"
	FieldHeaders             = "headers"
	FieldStrictKey           = "strict_key"
	FieldResponseCIDFallback = "response_cid_fallback"
)

// Server exposes a model.Service over the Verifier gRPC service.
//
// ValidateChain takes a bare receipt list, so the receipt hash check and
// hydration from the service's store are fixed per server.
type Server struct {
	UnimplementedVerifierServer
	Service *model.Service

	CheckReceiptHash bool
	Hydrate          bool
}

func (s *Server) ComputeCID(ctx context.Context, in *structpb.Value) (*wrapperspb.StringValue, error) {
	if s == nil || s.Service == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing verifier")
	}
	v, err := ToCanonical(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := s.Service.ComputeValueCID(ctx, v)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.String(resp.CID), nil
}

func (s *Server) VerifyBundle(ctx context.Context, in *structpb.Struct) (*wrapperspb.BoolValue, error) {
	if s == nil || s.Service == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing verifier")
	}
	fields := in.GetFields()
	b, ok := fields[FieldBundle]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "bundle is required")
	}
	raw, err := toJSON(b)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	req := model.VerifyBundleRequest{
		Bundle:              raw,
		StrictKey:           fields[FieldStrictKey].GetBoolValue(),
		ResponseCIDFallback: fields[FieldResponseCIDFallback].GetBoolValue(),
	}
	if j, ok := fields[FieldJWKS]; ok && j.GetStructValue() != nil {
		jb, err := toJSON(j)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		var doc keys.JWKS
		if err := json.Unmarshal(jb, &doc); err != nil {
			return nil, status.Error(codes.InvalidArgument, "invalid jwks: "+err.Error())
		}
		req.JWKS = &doc
	}
	if h := fields[FieldHeaders].GetStructValue(); h != nil {
		req.Headers = make(map[string]string, len(h.GetFields()))
		for k, v := range h.GetFields() {
			req.Headers[k] = v.GetStringValue()
		}
	}

	verdict, err := s.Service.VerifyBundle(ctx, req)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bool(verdict.Valid), nil
}

func (s *Server) ValidateChain(ctx context.Context, in *structpb.ListValue) (*structpb.Struct, error) {
	if s == nil || s.Service == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing verifier")
	}
	raw, err := toJSON(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	rep, err := s.Service.ValidateChain(ctx, model.ValidateChainRequest{
		Document:         raw,
		CheckReceiptHash: s.CheckReceiptHash,
		Hydrate:          s.Hydrate,
	})
	if err != nil {
		return nil, mapErr(err)
	}
	out, err := toStruct(rep)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func mapErr(err error) error {
	ce := model.MapError(err)
	if ce == nil {
		return nil
	}
	switch ce.Code {
	case model.ErrInvalidRequest, model.ErrInvalidCID, model.ErrCanonicalization,
		model.ErrEncoding, model.ErrKeyNotFound, model.ErrEmptyChain:
		return status.Error(codes.InvalidArgument, ce.Error())
	case model.ErrNotFound:
		return status.Error(codes.NotFound, ce.Error())
	case model.ErrMissingStore:
		return status.Error(codes.FailedPrecondition, ce.Error())
	case model.ErrCIDMismatch:
		return status.Error(codes.DataLoss, ce.Error())
	case model.ErrStorage:
		return status.Error(codes.Unavailable, ce.Error())
	case model.ErrCanceled:
		return status.Error(codes.Canceled, ce.Error())
	default:
		return status.Error(codes.Internal, ce.Error())
	}
}
