package worldstate

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Composite keys are laid out as
//
//	\x00 objectType \x00 attr1 \x00 attr2 \x00 ... attrN \x00
//
// so that every key of an object type, and every key sharing leading
// attributes, forms a contiguous range.
const (
	compositeKeyNamespace = "\x00"
	minUnicodeRuneValue   = 0            // U+0000
	maxUnicodeRuneValue   = utf8.MaxRune // U+10FFFF, reserved for range ends
)

// CreateCompositeKey joins objectType and attributes into a single state key.
func CreateCompositeKey(objectType string, attributes []string) (string, error) {
	err := validateCompositeKeyAttribute(objectType)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	buf.WriteString(compositeKeyNamespace)
	buf.WriteString(objectType)
	buf.WriteRune(minUnicodeRuneValue)
	for _, attr := range attributes {
		err := validateCompositeKeyAttribute(attr)
		if err != nil {
			return "", err
		}
		buf.WriteString(attr)
		buf.WriteRune(minUnicodeRuneValue)
	}
	return buf.String(), nil
}

// SplitCompositeKey is the inverse of CreateCompositeKey.
func SplitCompositeKey(compositeKey string) (string, []string, error) {
	if !IsCompositeKey(compositeKey) || compositeKey[len(compositeKey)-1] != minUnicodeRuneValue {
		return "", nil, fmt.Errorf("%w: %q is not a composite key", ErrInvalidKey, compositeKey)
	}
	var components []string
	start := len(compositeKeyNamespace)
	for i := start; i < len(compositeKey); i++ {
		if compositeKey[i] == minUnicodeRuneValue {
			components = append(components, compositeKey[start:i])
			start = i + 1
		}
	}
	return components[0], components[1:], nil
}

func IsCompositeKey(key string) bool {
	return len(key) > 1 && strings.HasPrefix(key, compositeKeyNamespace)
}

func validateCompositeKeyAttribute(s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: %q is not a valid utf8 string", ErrInvalidKey, s)
	}
	for _, r := range s {
		if r == minUnicodeRuneValue || r == maxUnicodeRuneValue {
			return fmt.Errorf("%w: %q contains U+%04X, which is reserved", ErrInvalidKey, s, r)
		}
	}
	return nil
}

func validateSimpleKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("%w: %q is not a valid utf8 string", ErrInvalidKey, key)
	}
	return nil
}
