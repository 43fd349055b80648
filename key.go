package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// KeySep separates the quoted parts of an item key.
const KeySep = ':'

// MakeKey joins key parts into an item key. Every part is written as a JSON
// string literal, so a separator or quote inside a part stays inside its
// literal and SplitKey can recover the exact parts.
//
// Parts must be valid UTF-8; MakeKey panics otherwise, since JSON would
// silently replace the invalid bytes and distinct parts would share a key.
// Use ValidKeyParts to check untrusted input first.
func MakeKey(parts ...string) string {
	if err := ValidKeyParts(parts...); err != nil {
		panic(err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, p := range parts {
		if i > 0 {
			buf.WriteByte(KeySep)
		}
		ensure(enc.Encode(p))
		buf.Truncate(buf.Len() - 1) // Encode appends a newline
	}
	return buf.String()
}

// ValidKeyParts returns an error wrapping ErrMalformedKey if a part is not
// valid UTF-8.
func ValidKeyParts(parts ...string) error {
	for i, p := range parts {
		if !utf8.ValidString(p) {
			return fmt.Errorf("%w: part %d is not valid UTF-8: %q", ErrMalformedKey, i, p)
		}
	}
	return nil
}

// SplitKey is the inverse of MakeKey. An empty key has no parts.
func SplitKey(key string) ([]string, error) {
	if key == "" {
		return nil, nil
	}
	if !utf8.ValidString(key) {
		return nil, dataErrf([]byte(key), invalidUTF8Offset(key), ErrMalformedKey, "key is not valid UTF-8")
	}
	var parts []string
	off := 0
	for {
		end, err := scanQuoted(key, off)
		if err != nil {
			return nil, err
		}
		var part string
		err = json.Unmarshal([]byte(key[off:end]), &part)
		if err != nil {
			return nil, dataErrf([]byte(key), off, ErrMalformedKey, "invalid key part: %v", err)
		}
		parts = append(parts, part)

		if end == len(key) {
			return parts, nil
		}
		if key[end] != KeySep {
			return nil, dataErrf([]byte(key), end, ErrMalformedKey, "expected %q after key part", KeySep)
		}
		off = end + 1
	}
}

// MustSplitKey is SplitKey for keys known to come from MakeKey.
func MustSplitKey(key string) []string {
	return must(SplitKey(key))
}

func scanQuoted(key string, off int) (int, error) {
	if off >= len(key) || key[off] != '"' {
		return 0, dataErrf([]byte(key), off, ErrMalformedKey, "key part must be a quoted string")
	}
	for i := off + 1; i < len(key); i++ {
		switch key[i] {
		case '\\':
			i++
		case '"':
			return i + 1, nil
		}
	}
	return 0, dataErrf([]byte(key), off, ErrMalformedKey, "unterminated key part")
}

func invalidUTF8Offset(s string) int {
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				return i
			}
		}
	}
	return len(s)
}

// KeyString renders key parts for logs and dumps, e.g. factoryA|sku123.
func KeyString(parts []string) string {
	return strings.Join(parts, "|")
}
