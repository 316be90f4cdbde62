// Package b64u encodes and decodes the unpadded base64url alphabet used for
// signatures and JWK public keys.
package b64u

import (
	"encoding/base64"
	"fmt"
	"strings"

	"signet.dev/verify/verr"
)

var strict = base64.RawURLEncoding.Strict()

// Encode returns the unpadded base64url form of b.
func Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses unpadded base64url.
//
// Correct trailing '=' padding is tolerated. Anything outside the URL alphabet,
// including '+', '/', whitespace and line breaks, is rejected, as are lengths
// no encoder can produce and encodings with non-zero trailing bits.
func Decode(s string) ([]byte, error) {
	body := strings.TrimRight(s, "=")
	if pad := len(s) - len(body); pad > 0 {
		if pad > 2 || (len(body)+pad)%4 != 0 {
			return nil, verr.New(verr.KindEncoding, "SIG-B64U-003", "incorrect base64url padding")
		}
	}
	for i := 0; i < len(body); i++ {
		if !isURLAlphabet(body[i]) {
			return nil, verr.New(verr.KindEncoding, "SIG-B64U-001", fmt.Sprintf("invalid base64url character %q at offset %d", body[i], i))
		}
	}
	if len(body)%4 == 1 {
		return nil, verr.New(verr.KindEncoding, "SIG-B64U-002", fmt.Sprintf("impossible base64url length %d", len(body)))
	}
	out, err := strict.DecodeString(body)
	if err != nil {
		return nil, verr.Wrap(verr.KindEncoding, "SIG-B64U-004", "malformed base64url", err)
	}
	return out, nil
}

func isURLAlphabet(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	}
	return false
}
