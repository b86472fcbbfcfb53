// Package canonicaljson renders JSON deterministically for hashing.
//
// The output follows the RFC 8785 conventions that matter for request-hash
// stability: object keys sorted by UTF-16 code units, NFC-normalized strings,
// and no HTML escaping. Unlike a strict RFC 8785 serializer it accepts any
// JSON document — request bodies are arbitrary caller JSON, so nulls and
// numbers must round-trip. Numbers are preserved as their source literals.
package canonicaljson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Canonicalize re-encodes a raw JSON document into its canonical form.
// Two documents that differ only in object key order or insignificant
// whitespace produce identical output.
func Canonicalize(raw []byte) ([]byte, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if decoder.More() {
		return nil, fmt.Errorf("trailing data after json document")
	}
	return appendCanonical(nil, value)
}

// Marshal encodes an arbitrary Go value into canonical JSON.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return Canonicalize(raw)
}

func appendCanonical(dst []byte, v any) ([]byte, error) {
	switch value := v.(type) {
	case nil:
		return append(dst, "null"...), nil
	case bool:
		if value {
			return append(dst, "true"...), nil
		}
		return append(dst, "false"...), nil
	case json.Number:
		return append(dst, value.String()...), nil
	case string:
		return appendCanonicalString(dst, value), nil
	case []any:
		return appendCanonicalArray(dst, value)
	case map[string]any:
		return appendCanonicalObject(dst, value)
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

func appendCanonicalArray(dst []byte, values []any) ([]byte, error) {
	dst = append(dst, '[')
	for i, elem := range values {
		if i > 0 {
			dst = append(dst, ',')
		}
		var err error
		dst, err = appendCanonical(dst, elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	return append(dst, ']'), nil
}

func appendCanonicalObject(dst []byte, obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	// RFC 8785 orders members by UTF-16 code units, not UTF-8 bytes.
	sort.Slice(keys, func(i, j int) bool {
		return lessUTF16(keys[i], keys[j])
	})

	dst = append(dst, '{')
	for i, k := range keys {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = appendCanonicalString(dst, k)
		dst = append(dst, ':')
		var err error
		dst, err = appendCanonical(dst, obj[k])
		if err != nil {
			return nil, fmt.Errorf("object[%q]: %w", k, err)
		}
	}
	return append(dst, '}'), nil
}

// appendCanonicalString writes an NFC-normalized, minimally escaped string.
// Only quote, backslash, and control characters below U+0020 are escaped;
// HTML-significant characters pass through unescaped.
func appendCanonicalString(dst []byte, s string) []byte {
	s = norm.NFC.String(s)
	dst = append(dst, '"')
	for _, r := range s {
		switch r {
		case '"':
			dst = append(dst, '\\', '"')
		case '\\':
			dst = append(dst, '\\', '\\')
		case '\b':
			dst = append(dst, '\\', 'b')
		case '\f':
			dst = append(dst, '\\', 'f')
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		case '\t':
			dst = append(dst, '\\', 't')
		default:
			if r < 0x20 {
				dst = append(dst, fmt.Sprintf("\\u%04x", r)...)
			} else {
				dst = append(dst, string(r)...)
			}
		}
	}
	return append(dst, '"')
}

func lessUTF16(a, b string) bool {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}
