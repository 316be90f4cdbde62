package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"signet.dev/verify/verr"
)

// maxDepth bounds nesting so hostile documents cannot exhaust the stack.
const maxDepth = 512

// Parse decodes a single JSON text into a Value.
//
// Parse is stricter than encoding/json: invalid UTF-8 is rejected rather than
// replaced, as are \u escapes of unpaired surrogates, duplicate object keys
// are rejected, numbers must fit a finite float64, and trailing data after the
// value is an error.
func Parse(data []byte) (Value, error) {
	if !utf8.Valid(data) {
		return Value{}, verr.New(verr.KindCanonical, "SIG-CANON-004", "JSON text is not valid UTF-8")
	}
	if off, ok := loneSurrogate(data); ok {
		return Value{}, verr.New(verr.KindCanonical, "SIG-CANON-004", fmt.Sprintf("unpaired surrogate escape at offset %d", off))
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := parseValue(dec, 0)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, verr.New(verr.KindCanonical, "SIG-CANON-007", "trailing data after JSON value")
	}
	return v, nil
}

func parseValue(dec *json.Decoder, depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, verr.New(verr.KindCanonical, "SIG-CANON-008", "JSON nesting too deep")
	}
	tok, err := dec.Token()
	if err != nil {
		return Value{}, verr.Wrap(verr.KindCanonical, "SIG-CANON-006", "invalid JSON", err)
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return parseNumber(t)
	case json.Delim:
		switch t {
		case '[':
			var items []Value
			for dec.More() {
				item, err := parseValue(dec, depth+1)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, verr.Wrap(verr.KindCanonical, "SIG-CANON-006", "invalid JSON", err)
			}
			return Value{kind: KindArray, items: items}, nil
		case '{':
			var members []Member
			seen := map[string]struct{}{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, verr.Wrap(verr.KindCanonical, "SIG-CANON-006", "invalid JSON", err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, verr.New(verr.KindCanonical, "SIG-CANON-006", "invalid JSON object key")
				}
				if _, dup := seen[key]; dup {
					return Value{}, verr.New(verr.KindCanonical, "SIG-CANON-005", "duplicate object key "+quoteForMessage(key))
				}
				seen[key] = struct{}{}
				val, err := parseValue(dec, depth+1)
				if err != nil {
					return Value{}, err
				}
				members = append(members, Member{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, verr.Wrap(verr.KindCanonical, "SIG-CANON-006", "invalid JSON", err)
			}
			return Value{kind: KindObject, members: members}, nil
		}
	}
	return Value{}, verr.New(verr.KindCanonical, "SIG-CANON-006", "unexpected JSON token")
}

func parseNumber(n json.Number) (Value, error) {
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		// ParseFloat reports overflow as ErrRange with ±Inf.
		return Value{}, verr.Wrap(verr.KindCanonical, "SIG-CANON-001", "number not representable as a finite float64", err)
	}
	return Number(f), nil
}

// loneSurrogate returns the offset of the first \u escape inside a string
// literal that names a surrogate without its partner. encoding/json would
// decode it as U+FFFD.
func loneSurrogate(data []byte) (int, bool) {
	inString := false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			continue
		}
		switch c {
		case '"':
			inString = false
		case '\\':
			if i+1 >= len(data) {
				return 0, false
			}
			if data[i+1] != 'u' {
				i++
				continue
			}
			r, ok := hex4(data, i+2)
			if !ok {
				// Malformed escape; the decoder reports it.
				i++
				continue
			}
			start := i
			i += 5
			if !utf16.IsSurrogate(r) {
				continue
			}
			if r >= 0xDC00 {
				return start, true
			}
			if i+6 < len(data) && data[i+1] == '\\' && data[i+2] == 'u' {
				if lo, ok := hex4(data, i+3); ok && lo >= 0xDC00 && lo <= 0xDFFF {
					i += 6
					continue
				}
			}
			return start, true
		}
	}
	return 0, false
}

func hex4(data []byte, at int) (rune, bool) {
	if at+4 > len(data) {
		return 0, false
	}
	var r rune
	for _, c := range data[at : at+4] {
		switch {
		case c >= '0' && c <= '9':
			r = r<<4 | rune(c-'0')
		case c >= 'a' && c <= 'f':
			r = r<<4 | rune(c-'a'+10)
		case c >= 'A' && c <= 'F':
			r = r<<4 | rune(c-'A'+10)
		default:
			return 0, false
		}
	}
	return r, true
}
