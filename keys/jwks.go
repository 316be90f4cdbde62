package keys

import (
	"encoding/json"
	"errors"
	"fmt"

	"signet.dev/verify/b64u"
	"signet.dev/verify/verr"
)

// JWK is the wire form of one key in a JSON Web Key Set.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Kid string `json:"kid,omitempty"`
}

// JWKS is the wire form of a key set document.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// ParseJWK converts one JWK into a Record.
//
// Ed25519 keys must carry a valid 32-byte x. Other key types are kept so kid
// lookups still find them, but they never verify.
func ParseJWK(j JWK) (Record, error) {
	if j.Crv != CurveEd25519 {
		var raw []byte
		if j.X != "" {
			if b, err := b64u.Decode(j.X); err == nil {
				raw = b
			}
		}
		return NewRecord(j.Kty, j.Crv, raw, j.Kid), nil
	}
	if j.Kty != KeyTypeOKP {
		return Record{}, verr.New(verr.KindKey, "SIG-KEY-003", fmt.Sprintf("Ed25519 key must have kty %q, got %q", KeyTypeOKP, j.Kty))
	}
	raw, err := b64u.Decode(j.X)
	if err != nil {
		return Record{}, fmt.Errorf("jwk %q: x: %w", j.Kid, err)
	}
	return NewEd25519(raw, j.Kid)
}

// ParseJWKS decodes a JWKS document ({"keys":[...]}) without interpreting
// its keys.
func ParseJWKS(data []byte) (JWKS, error) {
	var doc JWKS
	if err := json.Unmarshal(data, &doc); err != nil {
		return JWKS{}, verr.Wrap(verr.KindKey, "SIG-KEY-004", "invalid JWKS document", err)
	}
	return doc, nil
}

// ParseSet decodes a JWKS document into a Set. Only a document that is not a
// JWKS fails; malformed keys are kept unusable (see JWKS.Set).
func ParseSet(data []byte) (Set, error) {
	doc, err := ParseJWKS(data)
	if err != nil {
		return Set{}, err
	}
	return doc.Set(), nil
}

// Set converts every key in the document into a Set, in document order.
//
// A key that ParseJWK rejects stays in the set as a record with its kty, crv
// and kid but no key bytes. Selecting it fails that one verification; the
// other keys still work. Check lists such keys.
func (doc JWKS) Set() Set {
	records := make([]Record, 0, len(doc.Keys))
	for _, j := range doc.Keys {
		r, err := ParseJWK(j)
		if err != nil {
			r = NewRecord(j.Kty, j.Crv, nil, j.Kid)
		}
		records = append(records, r)
	}
	return NewSet(records...)
}

// Check returns the problems of every key Set would keep unusable, or nil.
func (doc JWKS) Check() error {
	var errs []error
	for i, j := range doc.Keys {
		if _, err := ParseJWK(j); err != nil {
			errs = append(errs, fmt.Errorf("keys[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// ToJWK returns the wire form of r.
func (r Record) ToJWK() JWK {
	j := JWK{Kty: r.keyType, Crv: r.curve, Kid: r.keyID}
	if len(r.publicKey) > 0 {
		j.X = b64u.Encode(r.publicKey)
	}
	return j
}

// MarshalJSON emits the set as a JWKS document.
func (s Set) MarshalJSON() ([]byte, error) {
	doc := JWKS{Keys: make([]JWK, 0, len(s.records))}
	for _, r := range s.records {
		doc.Keys = append(doc.Keys, r.ToJWK())
	}
	return json.Marshal(doc)
}
