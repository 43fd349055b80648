package ledger

import (
	"errors"
	"testing"
)

func TestMakeKey(t *testing.T) {
	tests := []struct {
		parts    []string
		expected string
	}{
		{nil, ``},
		{[]string{""}, `""`},
		{[]string{"factoryA"}, `"factoryA"`},
		{[]string{"factoryA", "sku123"}, `"factoryA":"sku123"`},
		{[]string{"a:b", "c"}, `"a:b":"c"`},
		{[]string{`say "hi"`}, `"say \"hi\""`},
		{[]string{`back\`, `slash`}, `"back\\":"slash"`},
		{[]string{"<&>"}, `"<&>"`},
		{[]string{"\x00", "\n"}, `"\u0000":"\n"`},
		{[]string{"héllo", "世界"}, `"héllo":"世界"`},
		{[]string{"", "", ""}, `"":"":""`},
	}
	for _, tt := range tests {
		key := MakeKey(tt.parts...)
		if key != tt.expected {
			t.Errorf("** MakeKey(%q) = %s, wanted %s", tt.parts, key, tt.expected)
			continue
		}
		parts, err := SplitKey(key)
		if err != nil {
			t.Errorf("** SplitKey(%s) failed: %v", key, err)
			continue
		}
		deepEqual(t, parts, tt.parts)
	}
}

func TestSplitKey_Malformed(t *testing.T) {
	tests := []string{
		`abc`,
		`"abc`,
		`"a"x`,
		`"a":`,
		`"a";"b"`,
		`:"a"`,
		`"a"::"b"`,
		`"\q"`,
		`"a\"`,
		"\"factory\xff\":\"sku\"",
	}
	for _, key := range tests {
		parts, err := SplitKey(key)
		if err == nil {
			t.Errorf("** SplitKey(%s) = %q, wanted error", key, parts)
			continue
		}
		if !errors.Is(err, ErrMalformedKey) {
			t.Errorf("** SplitKey(%s) error %v does not match ErrMalformedKey", key, err)
		}
		var de *DataError
		if !errors.As(err, &de) {
			t.Errorf("** SplitKey(%s) error is %T, wanted *DataError", key, err)
		}
	}
}

func TestKeyParts(t *testing.T) {
	w := newWidget("factoryA", "sku:123", 1)
	deepEqual(t, must(KeyParts(w)), []string{"factoryA", "sku:123"})
	deepEqual(t, must(w.KeyParts()), []string{"factoryA", "sku:123"})
	deepEqual(t, MustSplitKey(w.ItemKey()), []string{"factoryA", "sku:123"})
	deepEqual(t, KeyString([]string{"factoryA", "sku:123"}), "factoryA|sku:123")
}

func TestMakeKey_InvalidUTF8(t *testing.T) {
	for _, parts := range [][]string{
		{"factory\xff", "sku"},
		{"x\xfe"},
		{"ok", "\xc3"},
	} {
		if err := ValidKeyParts(parts...); !errors.Is(err, ErrMalformedKey) {
			t.Errorf("** ValidKeyParts(%q) = %v, wanted ErrMalformedKey", parts, err)
		}
		assertPanics(t, func() { MakeKey(parts...) })
	}
	ensure(ValidKeyParts("factoryA", "héllo", ""))
	ensure(ValidKeyParts())
}

func TestSplitKey_InvalidUTF8(t *testing.T) {
	key := "\"ab\":\"x\xff\""
	_, err := SplitKey(key)
	var de *DataError
	if !errors.As(err, &de) {
		t.Fatalf("** SplitKey(%q) error = %v, wanted *DataError", key, err)
	}
	deepEqual(t, de.Off, 7)
	if !errors.Is(err, ErrMalformedKey) {
		t.Errorf("** SplitKey(%q) error %v does not match ErrMalformedKey", key, err)
	}
}
