package ledger

import (
	"bytes"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const (
	WidgetType = "Widget"
	GadgetType = "Gadget"
)

type (
	Widget struct {
		Base  `msgpack:",inline"`
		Count int `json:"count" msgpack:"count"`
	}
	Gadget struct {
		Base  `msgpack:",inline"`
		Color string `json:"color" msgpack:"color"`
	}
)

func newWidget(factory, sku string, count int) *Widget {
	return &Widget{Base: NewBase(WidgetType, factory, sku), Count: count}
}

func newGadget(id, color string) *Gadget {
	return &Gadget{Base: NewBase(GadgetType, id), Color: color}
}

func newInventory(stub Stub, opts ...any) *List {
	l := NewList(stub, "inventory", opts...)
	l.Use(WidgetType, FactoryOf[Widget]())
	return l
}

func TestList_Inventory(t *testing.T) {
	stub := newMemStub()
	inv := newInventory(stub)

	err := inv.Add(newWidget("factoryA", "sku123", 5))
	if err != nil {
		t.Fatal(err)
	}

	item := must(inv.GetByParts("factoryA", "sku123"))
	w, ok := item.(*Widget)
	if !ok {
		t.Fatalf("** got %T, wanted *Widget", item)
	}
	deepEqual(t, w.ItemType(), WidgetType)
	deepEqual(t, w.Count, 5)
	deepEqual(t, must(w.KeyParts()), []string{"factoryA", "sku123"})

	w.Count = 3
	err = inv.Update(w)
	if err != nil {
		t.Fatal(err)
	}
	deepEqual(t, must(GetAs[Widget](inv, MakeKey("factoryA", "sku123"))).Count, 3)
	deepEqual(t, len(stub.state), 1)
}

func TestList_AddThenGetReturnsEqualItem(t *testing.T) {
	inv := newInventory(newMemStub())
	w := newWidget("factoryA", "sku:1", 7)
	ensure(inv.Add(w))
	deepEqual(t, must(inv.Get(w.ItemKey())), Item(w))
}

func TestList_AddOverwrites(t *testing.T) {
	inv := newInventory(newMemStub())
	ensure(inv.Add(newWidget("f", "s", 1)))
	ensure(inv.Add(newWidget("f", "s", 2)))
	deepEqual(t, must(GetAs[Widget](inv, MakeKey("f", "s"))).Count, 2)
}

func TestList_GetMissing(t *testing.T) {
	stub := newMemStub()
	inv := newInventory(stub)
	isnilItem(t, must(inv.GetByParts("factoryA", "nope")))

	// empty bytes are the same as no bytes
	stub.state[must(stub.CreateCompositeKey("inventory", []string{"factoryA", "empty"}))] = []byte{}
	isnilItem(t, must(inv.GetByParts("factoryA", "empty")))

	w, err := GetAs[Widget](inv, MakeKey("factoryA", "nope"))
	if w != nil || err != nil {
		t.Errorf("** GetAs = %v, %v; wanted nil, nil", w, err)
	}
}

func TestList_UnknownType(t *testing.T) {
	stub := newMemStub()
	writer := newInventory(stub)
	writer.Use(GadgetType, FactoryOf[Gadget]())
	ensure(writer.Add(newGadget("g1", "green")))

	reader := newInventory(stub)
	item, err := reader.GetByParts("g1")
	if item != nil {
		t.Errorf("** got %v alongside the error", item)
	}
	var ute *UnknownTypeError
	if !errors.As(err, &ute) {
		t.Fatalf("** error = %v, wanted *UnknownTypeError", err)
	}
	deepEqual(t, *ute, UnknownTypeError{List: "inventory", Type: GadgetType})
	var le *ListError
	if !errors.As(err, &le) {
		t.Fatalf("** error is %T, wanted *ListError", err)
	}
	deepEqual(t, le.Op, "get")
	deepEqual(t, le.Key, MakeKey("g1"))
	deepEqual(t, err.Error(), `inventory.get/"g1": inventory: unknown item type "Gadget"`)

	_, err = reader.Scan()
	if !errors.As(err, &le) || !errors.Is(err, ErrUnknownType) {
		t.Fatalf("** Scan error = %v, wanted *ListError wrapping ErrUnknownType", err)
	}
	deepEqual(t, le.Op, "scan")
	deepEqual(t, le.Key, MakeKey("g1"))
}

func TestList_CorruptItem(t *testing.T) {
	stub := newMemStub()
	inv := newInventory(stub)
	stub.state[must(stub.CreateCompositeKey("inventory", []string{"f", "s"}))] = []byte("{bad")

	_, err := inv.GetByParts("f", "s")
	var le *ListError
	var de *DataError
	if !errors.As(err, &le) || !errors.As(err, &de) {
		t.Fatalf("** Get error = %v (%T), wanted *ListError wrapping *DataError", err, err)
	}
	deepEqual(t, le.Key, MakeKey("f", "s"))
}

func TestList_Polymorphic(t *testing.T) {
	inv := newInventory(newMemStub())
	inv.Use(GadgetType, FactoryOf[Gadget]())

	ensure(inv.Add(newWidget("w", "1", 1)))
	ensure(inv.Add(newGadget("g", "red")))

	if _, ok := must(inv.GetByParts("w", "1")).(*Widget); !ok {
		t.Errorf("** expected *Widget")
	}
	if _, ok := must(inv.GetByParts("g")).(*Gadget); !ok {
		t.Errorf("** expected *Gadget")
	}

	_, err := GetAs[Widget](inv, MakeKey("g"))
	var le *ListError
	if !errors.As(err, &le) {
		t.Errorf("** GetAs with wrong type: error = %v, wanted *ListError", err)
	}
}

func TestList_NamespacesDoNotCollide(t *testing.T) {
	stub := newMemStub()
	a := NewList(stub, "inventory", JSON)
	a.Use(WidgetType, FactoryOf[Widget]())
	b := NewList(stub, "inventory2")
	b.Use(WidgetType, FactoryOf[Widget]())

	ensure(a.Add(newWidget("f", "s", 1)))
	ensure(b.Add(newWidget("f", "s", 2)))
	deepEqual(t, len(stub.state), 2)
	deepEqual(t, must(GetAs[Widget](a, MakeKey("f", "s"))).Count, 1)
	deepEqual(t, must(GetAs[Widget](b, MakeKey("f", "s"))).Count, 2)

	// list name boundaries hold even when the name is a prefix of a key part
	c := NewList(stub, "inv")
	c.Use(WidgetType, FactoryOf[Widget]())
	ensure(c.Add(newWidget("entory", "s", 3)))
	deepEqual(t, len(stub.state), 3)
}

func TestList_MsgPackInteroperates(t *testing.T) {
	stub := newMemStub()
	mp := newInventory(stub, MsgPack)
	deepEqual(t, mp.Encoding(), MsgPack)
	w := newWidget("f", "s", 42)
	ensure(mp.Add(w))

	js := newInventory(stub)
	deepEqual(t, must(js.Get(w.ItemKey())), Item(w))
}

func TestList_StubErrorsPropagate(t *testing.T) {
	errBoom := errors.New("boom")
	stub := newMemStub()
	inv := newInventory(stub)
	stub.err = errBoom

	err := inv.Add(newWidget("f", "s", 1))
	if !errors.Is(err, errBoom) {
		t.Errorf("** Add error = %v, wanted boom", err)
	}
	err = inv.Update(newWidget("f", "s", 1))
	if !errors.Is(err, errBoom) {
		t.Errorf("** Update error = %v, wanted boom", err)
	}
	_, err = inv.GetByParts("f", "s")
	if !errors.Is(err, errBoom) {
		t.Errorf("** Get error = %v, wanted boom", err)
	}
	var le *ListError
	if !errors.As(err, &le) {
		t.Fatalf("** Get error is %T, wanted *ListError", err)
	}
	deepEqual(t, le.Op, "get")
	deepEqual(t, err.Error(), `inventory.get/"f":"s": boom`)
}

func TestList_MalformedKey(t *testing.T) {
	inv := newInventory(newMemStub())
	_, err := inv.Get("not a key")
	if !errors.Is(err, ErrMalformedKey) {
		t.Errorf("** Get error = %v, wanted ErrMalformedKey", err)
	}

	w := newWidget("f", "s", 1)
	w.Key = "f:s"
	err = inv.Add(w)
	if !errors.Is(err, ErrMalformedKey) {
		t.Errorf("** Add error = %v, wanted ErrMalformedKey", err)
	}
}

func TestList_InvalidUTF8KeysDoNotCollide(t *testing.T) {
	stub := newMemStub()
	inv := newInventory(stub)
	ensure(inv.Add(newWidget("factory", "sku", 1)))

	for _, parts := range [][]string{{"factory\xff", "sku"}, {"factory\xfe", "sku"}} {
		_, err := inv.GetByParts(parts...)
		if !errors.Is(err, ErrMalformedKey) {
			t.Errorf("** GetByParts(%q) error = %v, wanted ErrMalformedKey", parts, err)
		}
		_, err = inv.Scan(parts[0])
		if !errors.Is(err, ErrMalformedKey) {
			t.Errorf("** Scan(%q) error = %v, wanted ErrMalformedKey", parts[0], err)
		}
	}

	w := newWidget("factory", "sku", 2)
	w.Key = "\"factory\xff\":\"sku\""
	err := inv.Add(w)
	if !errors.Is(err, ErrMalformedKey) {
		t.Errorf("** Add error = %v, wanted ErrMalformedKey", err)
	}
	deepEqual(t, len(stub.state), 1)
	deepEqual(t, must(GetAs[Widget](inv, MakeKey("factory", "sku"))).Count, 1)
}

func TestList_Scan(t *testing.T) {
	stub := newMemStub()
	inv := newInventory(stub)
	ensure(inv.Add(newWidget("factoryA", "sku1", 1)))
	ensure(inv.Add(newWidget("factoryA", "sku2", 2)))
	ensure(inv.Add(newWidget("factoryB", "sku1", 3)))

	other := newInventory(stub)
	other.name = "other"
	ensure(other.Add(newWidget("factoryA", "sku3", 4)))

	ws := must(ScanAs[Widget](inv, "factoryA"))
	deepEqual(t, counts(ws), []int{1, 2})

	ws = must(ScanAs[Widget](inv))
	deepEqual(t, counts(ws), []int{1, 2, 3})

	ws = must(ScanAs[Widget](inv, "factoryC"))
	deepEqual(t, len(ws), 0)

	plain := newInventory(stubOnly{stub})
	_, err := plain.Scan()
	var le *ListError
	if !errors.As(err, &le) {
		t.Errorf("** Scan without partial key support: error = %v, wanted *ListError", err)
	}
}

func TestList_VerboseLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	inv := newInventory(newMemStub(), logger, Verbose)

	ensure(inv.Add(newWidget("f", "s", 1)))
	must(inv.GetByParts("f", "s"))
	must(inv.GetByParts("f", "x"))

	out := buf.String()
	for _, s := range []string{"ledger: PUT", "ledger: GET", "ledger: GET.NOTFOUND", "list=inventory"} {
		if !strings.Contains(out, s) {
			t.Errorf("** log lacks %q:\n%s", s, out)
		}
	}
}

func TestNewList_InvalidOptions(t *testing.T) {
	assertPanics(t, func() { NewList(nil, "x") })
	assertPanics(t, func() { NewList(newMemStub(), "") })
	assertPanics(t, func() { NewList(newMemStub(), "x", 42) })
}

func counts(ws []*Widget) []int {
	var result []int
	for _, w := range ws {
		result = append(result, w.Count)
	}
	return result
}

// memStub is a transaction-less Stub over a map.
type memStub struct {
	state map[string][]byte
	err   error
}

func newMemStub() *memStub {
	return &memStub{state: make(map[string][]byte)}
}

func (s *memStub) GetState(key string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.state[key], nil
}

func (s *memStub) PutState(key string, value []byte) error {
	if s.err != nil {
		return s.err
	}
	s.state[key] = bytes.Clone(value)
	return nil
}

func (s *memStub) CreateCompositeKey(objectType string, attributes []string) (string, error) {
	var buf strings.Builder
	buf.WriteByte(0)
	buf.WriteString(objectType)
	buf.WriteByte(0)
	for _, attr := range attributes {
		buf.WriteString(attr)
		buf.WriteByte(0)
	}
	return buf.String(), nil
}

func (s *memStub) GetStateByPartialCompositeKey(objectType string, attributes []string) ([]KV, error) {
	if s.err != nil {
		return nil, s.err
	}
	prefix := must(s.CreateCompositeKey(objectType, attributes))
	var kvs []KV
	for k, v := range s.state {
		if strings.HasPrefix(k, prefix) {
			kvs = append(kvs, KV{k, v})
		}
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].Key < kvs[j].Key })
	return kvs, nil
}

// stubOnly hides the partial key support of the wrapped stub.
type stubOnly struct {
	Stub
}

func deepEqual[T any](t testing.TB, a, e T) {
	if diff := cmp.Diff(e, a); diff != "" {
		t.Helper()
		t.Errorf("** got %v, wanted %v (-wanted +got):\n%s", a, e, diff)
	}
}

func isnilItem(t testing.TB, a Item) {
	if a != nil {
		t.Helper()
		t.Errorf("** got %v, wanted nil", a)
	}
}
