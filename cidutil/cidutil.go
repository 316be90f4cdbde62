// Package cidutil derives content identifiers for canonical documents.
//
// A CID here is "sha256:" followed by the lowercase hex SHA-256 digest of the
// canonical encoding. The same digest is also exposed as an IPFS CIDv1 (raw
// codec, sha2-256 multihash) so documents can live in content-addressed stores.
package cidutil

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"signet.dev/verify/canonical"
	"signet.dev/verify/verr"
)

// Prefix is the algorithm tag every CID starts with.
const Prefix = "sha256:"

const digestHexLen = 64

// CID is a content identifier of the form "sha256:<64 lowercase hex>".
type CID string

func (c CID) String() string { return string(c) }

// Valid reports whether c is well formed.
func (c CID) Valid() bool {
	_, err := Parse(string(c))
	return err == nil
}

// Digest returns the raw 32-byte digest. It fails for malformed CIDs.
func (c CID) Digest() ([]byte, error) {
	if _, err := Parse(string(c)); err != nil {
		return nil, err
	}
	return hex.DecodeString(strings.TrimPrefix(string(c), Prefix))
}

// Compute returns the CID of v's canonical encoding.
//
// ctx is only checked for cancellation before any work; when Compute returns a
// CID it is the same CID any other call would produce for v.
func Compute(ctx context.Context, v canonical.Value) (CID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := canonical.Encode(v)
	if err != nil {
		return "", err
	}
	return ComputeBytes(b)
}

// ComputeBytes returns the CID of bytes that are already canonical.
func ComputeBytes(canonicalBytes []byte) (CID, error) {
	sum, err := multihash.Sum(canonicalBytes, multihash.SHA2_256, -1)
	if err != nil {
		return "", verr.Wrap(verr.KindInternal, "SIG-CID-004", "sha2-256 multihash failed", err)
	}
	dec, err := multihash.Decode(sum)
	if err != nil {
		return "", verr.Wrap(verr.KindInternal, "SIG-CID-004", "sha2-256 multihash failed", err)
	}
	return CID(Prefix + hex.EncodeToString(dec.Digest)), nil
}

// Parse validates s and returns it as a CID.
func Parse(s string) (CID, error) {
	rest, ok := strings.CutPrefix(s, Prefix)
	if !ok {
		return "", verr.New(verr.KindCID, "SIG-CID-001", fmt.Sprintf("cid %q lacks %q prefix", truncate(s), Prefix))
	}
	if len(rest) != digestHexLen {
		return "", verr.New(verr.KindCID, "SIG-CID-002", fmt.Sprintf("cid digest must be %d hex characters, got %d", digestHexLen, len(rest)))
	}
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", verr.New(verr.KindCID, "SIG-CID-003", "cid digest must be lowercase hex")
		}
	}
	return CID(s), nil
}

// ToCIDv1 returns the IPFS CIDv1 (raw + sha2-256) carrying the same digest.
func ToCIDv1(c CID) (cid.Cid, error) {
	digest, err := c.Digest()
	if err != nil {
		return cid.Undef, err
	}
	mh, err := multihash.Encode(digest, multihash.SHA2_256)
	if err != nil {
		return cid.Undef, verr.Wrap(verr.KindCID, "SIG-CID-005", "encode multihash", err)
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// FromCIDv1 is the inverse of ToCIDv1. Only sha2-256 multihashes qualify.
func FromCIDv1(id cid.Cid) (CID, error) {
	if !id.Defined() {
		return "", verr.New(verr.KindCID, "SIG-CID-006", "undefined cid")
	}
	dec, err := multihash.Decode(id.Hash())
	if err != nil {
		return "", verr.Wrap(verr.KindCID, "SIG-CID-006", "decode multihash", err)
	}
	if dec.Code != multihash.SHA2_256 {
		return "", verr.New(verr.KindCID, "SIG-CID-006", fmt.Sprintf("unsupported multihash %s", multihash.Codes[dec.Code]))
	}
	return CID(Prefix + hex.EncodeToString(dec.Digest)), nil
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

func truncate(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
