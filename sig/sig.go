// Package sig verifies Ed25519 signatures over raw message bytes.
//
// Verification fails closed: any decoding problem, wrong length or unusable
// key yields false rather than an error.
package sig

import (
	"github.com/cloudflare/circl/sign/ed25519"

	"signet.dev/verify/b64u"
	"signet.dev/verify/keys"
)

// Verify checks a base64url signature over message against a base64url
// Ed25519 public key.
func Verify(message []byte, signatureB64U, publicKeyB64U string) bool {
	signature, err := b64u.Decode(signatureB64U)
	if err != nil {
		return false
	}
	pub, err := b64u.Decode(publicKeyB64U)
	if err != nil {
		return false
	}
	return VerifyRaw(message, signature, pub)
}

// VerifyRaw checks a raw 64-byte signature against a raw 32-byte public key.
func VerifyRaw(message, signature, publicKey []byte) bool {
	if len(signature) != ed25519.SignatureSize || len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}

// VerifyRecord checks signatureB64U against a key record. Records that are not
// Ed25519 never verify.
func VerifyRecord(message []byte, signatureB64U string, rec keys.Record) bool {
	if !rec.IsEd25519() {
		return false
	}
	signature, err := b64u.Decode(signatureB64U)
	if err != nil {
		return false
	}
	return VerifyRaw(message, signature, rec.PublicKey())
}
