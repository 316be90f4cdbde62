package canonical

import (
	"bytes"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"signet.dev/verify/verr"
)

// Encode returns the canonical bytes of v.
//
// Rules:
//   - object members are emitted sorted by key in Unicode code point order
//   - arrays keep their order
//   - strings use the minimal JSON escapes; everything else is literal UTF-8
//   - numbers use the shortest round-trip decimal form, switching to exponent
//     notation only outside [1e-6, 1e21)
//   - no whitespace anywhere
func Encode(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		s, err := formatNumber(v.n)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case KindString:
		return encodeString(buf, v.s)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		return encodeObject(buf, v.members)
	default:
		return verr.New(verr.KindCanonical, "SIG-CANON-009", "unknown value kind")
	}
	return nil
}

func encodeObject(buf *bytes.Buffer, members []Member) error {
	sorted := append([]Member{}, members...)
	// Byte-wise comparison of valid UTF-8 is code point order.
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	buf.WriteByte('{')
	for i, m := range sorted {
		if i > 0 {
			if sorted[i-1].Key == m.Key {
				return verr.New(verr.KindCanonical, "SIG-CANON-005", "duplicate object key "+quoteForMessage(m.Key))
			}
			buf.WriteByte(',')
		}
		if err := encodeString(buf, m.Key); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := encodeValue(buf, m.Value); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

const hexDigits = "0123456789abcdef"

func encodeString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return verr.New(verr.KindCanonical, "SIG-CANON-004", "string is not valid UTF-8")
	}
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if c < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigits[c>>4])
				buf.WriteByte(hexDigits[c&0xF])
				continue
			}
			buf.WriteByte(c)
		}
	}
	buf.WriteByte('"')
	return nil
}

// formatNumber renders f the way ECMAScript Number.prototype.toString does,
// which is the number form RFC 8785 prescribes.
func formatNumber(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", verr.New(verr.KindCanonical, "SIG-CANON-001", "non-finite number")
	}
	if f == 0 {
		// Covers -0 as well.
		return "0", nil
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, ok := strings.Cut(s, "e")
	if !ok || len(exp) < 2 {
		return "", verr.New(verr.KindInternal, "SIG-CANON-010", "unexpected float format "+s)
	}
	// Go pads the exponent to two digits ("1e-07"); ECMAScript does not.
	digits := strings.TrimLeft(exp[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mant + "e" + exp[:1] + digits, nil
}
