package verifysvc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"signet.dev/verify/canonical"
	"signet.dev/verify/cidutil"
	"signet.dev/verify/keys"
	"signet.dev/verify/model"
)

// Client calls a remote Verifier service.
type Client struct {
	cc     *grpc.ClientConn
	client VerifierClient

	// Timeout applies per RPC when non-zero, on top of the caller's context.
	Timeout time.Duration
}

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// Extra is appended to the default dial options (tests use it for bufconn).
	Extra []grpc.DialOption
}

func Dial(ctx context.Context, target string, opts DialOptions) (*Client, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts.Extra...)

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewVerifierClient(cc)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) rpcContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(ctx, c.Timeout)
	}
	return ctx, func() {}
}

// ComputeCID asks the server for the CID of doc.
func (c *Client) ComputeCID(ctx context.Context, doc canonical.Value) (cidutil.CID, error) {
	in, err := FromCanonical(doc)
	if err != nil {
		return "", err
	}
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	out, err := c.client.ComputeCID(ctx, in)
	if err != nil {
		return "", err
	}
	return cidutil.Parse(out.GetValue())
}

// VerifyBundle sends bundleJSON (and jwks, when non-nil) for verification.
func (c *Client) VerifyBundle(ctx context.Context, bundleJSON []byte, jwks *keys.JWKS, strictKey bool) (bool, error) {
	bv := new(structpb.Value)
	if err := protojson.Unmarshal(bundleJSON, bv); err != nil {
		return false, fmt.Errorf("bundle: %w", err)
	}
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldBundle:    bv,
		FieldStrictKey: structpb.NewBoolValue(strictKey),
	}}
	if jwks != nil {
		js, err := toStruct(jwks)
		if err != nil {
			return false, fmt.Errorf("jwks: %w", err)
		}
		in.Fields[FieldJWKS] = structpb.NewStructValue(js)
	}

	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	out, err := c.client.VerifyBundle(ctx, in)
	if err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// ValidateChain sends a JSON array of receipts and decodes the report.
func (c *Client) ValidateChain(ctx context.Context, chainJSON []byte) (model.ChainReport, error) {
	in := new(structpb.ListValue)
	if err := protojson.Unmarshal(chainJSON, in); err != nil {
		return model.ChainReport{}, fmt.Errorf("chain: %w", err)
	}

	ctx, cancel := c.rpcContext(ctx)
	defer cancel()
	out, err := c.client.ValidateChain(ctx, in)
	if err != nil {
		return model.ChainReport{}, err
	}
	b, err := protojson.Marshal(out)
	if err != nil {
		return model.ChainReport{}, err
	}
	var rep model.ChainReport
	if err := json.Unmarshal(b, &rep); err != nil {
		return model.ChainReport{}, err
	}
	return rep, nil
}
