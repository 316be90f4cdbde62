// Package keys models the public key material a bundle is verified against and
// the rule for choosing one key from a set.
package keys

import (
	"fmt"

	"signet.dev/verify/b64u"
	"signet.dev/verify/verr"
)

const (
	KeyTypeOKP   = "OKP"
	CurveEd25519 = "Ed25519"

	// Ed25519PublicKeySize is the raw public key length in bytes.
	Ed25519PublicKeySize = 32
)

// ErrKeyNotFound is returned by Select when no record satisfies the request.
var ErrKeyNotFound error = &verr.Error{Kind: verr.KindKey, RuleID: "SIG-KEY-001", Message: "key not found"}

// Record is one public key. Records are immutable once built.
type Record struct {
	keyType   string
	curve     string
	publicKey []byte
	keyID     string
}

// NewRecord builds a record. An empty keyID means the record carries no kid.
func NewRecord(keyType, curve string, publicKey []byte, keyID string) Record {
	return Record{
		keyType:   keyType,
		curve:     curve,
		publicKey: append([]byte(nil), publicKey...),
		keyID:     keyID,
	}
}

// NewEd25519 builds an OKP/Ed25519 record from a raw 32-byte public key.
func NewEd25519(publicKey []byte, keyID string) (Record, error) {
	if len(publicKey) != Ed25519PublicKeySize {
		return Record{}, verr.New(verr.KindKey, "SIG-KEY-002", fmt.Sprintf("ed25519 public key must be %d bytes, got %d", Ed25519PublicKeySize, len(publicKey)))
	}
	return NewRecord(KeyTypeOKP, CurveEd25519, publicKey, keyID), nil
}

func (r Record) KeyType() string { return r.keyType }
func (r Record) Curve() string   { return r.curve }
func (r Record) KeyID() string   { return r.keyID }
func (r Record) HasKeyID() bool  { return r.keyID != "" }

// PublicKey returns a copy of the raw public key bytes.
func (r Record) PublicKey() []byte { return append([]byte(nil), r.publicKey...) }

// PublicKeyB64U returns the public key in unpadded base64url.
func (r Record) PublicKeyB64U() string { return b64u.Encode(r.publicKey) }

// IsEd25519 reports whether the record can verify Ed25519 signatures.
func (r Record) IsEd25519() bool {
	return r.curve == CurveEd25519 && len(r.publicKey) == Ed25519PublicKeySize
}

// Set is an ordered collection of records. Duplicate kids are allowed; the
// first match wins.
type Set struct {
	records []Record
}

func NewSet(records ...Record) Set {
	return Set{records: append([]Record(nil), records...)}
}

func (s Set) Len() int { return len(s.records) }

// Records returns the records in insertion order.
func (s Set) Records() []Record { return append([]Record(nil), s.records...) }

// FallbackPolicy decides what Select does when no key id is requested.
type FallbackPolicy int

const (
	// FallbackFirstEd25519 picks the first Ed25519 record in insertion order.
	FallbackFirstEd25519 FallbackPolicy = iota
	// FallbackNone refuses to pick a key without an explicit id.
	FallbackNone
)

func (p FallbackPolicy) String() string {
	switch p {
	case FallbackFirstEd25519:
		return "first-ed25519"
	case FallbackNone:
		return "none"
	default:
		return fmt.Sprintf("FallbackPolicy(%d)", int(p))
	}
}

// Select returns the record to verify with.
//
// With a keyID, the first record whose kid equals it is returned and there is
// no fallback. Without one (empty string), the policy applies.
func Select(set Set, keyID string, policy FallbackPolicy) (Record, error) {
	if keyID != "" {
		for _, r := range set.records {
			if r.keyID == keyID {
				return r, nil
			}
		}
		return Record{}, verr.Wrap(verr.KindKey, "SIG-KEY-001", fmt.Sprintf("no key with kid %q", keyID), ErrKeyNotFound)
	}
	if policy == FallbackNone {
		return Record{}, verr.Wrap(verr.KindKey, "SIG-KEY-001", "no kid given and fallback disabled", ErrKeyNotFound)
	}
	for _, r := range set.records {
		if r.curve == CurveEd25519 {
			return r, nil
		}
	}
	return Record{}, verr.Wrap(verr.KindKey, "SIG-KEY-001", "no Ed25519 key in set", ErrKeyNotFound)
}
