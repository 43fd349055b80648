package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

type listOpt int

const (
	// Verbose makes a list log every read and write at debug level.
	Verbose = listOpt(1)
)

// List is a named virtual container of items. It never stores a collection
// of its members: each item lives under its own composite key in the list's
// namespace, so transactions touching different items of one list do not
// collide.
//
// A List wraps one transaction's Stub and is meant to be constructed per
// transaction.
type List struct {
	stub    Stub
	name    string
	reg     *Registry
	enc     Encoding
	logger  *slog.Logger
	verbose bool
}

// NewList accepts these options: an Encoding for writes, a *slog.Logger,
// and Verbose.
func NewList(stub Stub, name string, opts ...any) *List {
	if stub == nil {
		panic(fmt.Sprintf("%s: NewList with nil stub", name))
	}
	if name == "" {
		panic("ledger: NewList with empty name")
	}
	l := &List{
		stub:   stub,
		name:   name,
		reg:    NewRegistry(),
		enc:    DefaultEncoding,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		switch opt := opt.(type) {
		case Encoding:
			l.enc = opt
		case *slog.Logger:
			if opt != nil {
				l.logger = opt
			}
		case listOpt:
			if opt == Verbose {
				l.verbose = true
			}
		default:
			panic(fmt.Errorf("%s: invalid option %T %v", name, opt, opt))
		}
	}
	return l
}

func (l *List) Name() string {
	return l.name
}

func (l *List) Registry() *Registry {
	return l.reg
}

func (l *List) Encoding() Encoding {
	return l.enc
}

// Use registers an item type the list must be able to decode.
func (l *List) Use(typ string, f Factory) {
	l.reg.Register(typ, f)
}

// Add writes item under its key. An existing item with the same key is
// overwritten; callers needing create-only semantics must check with Get.
func (l *List) Add(item Item) error {
	return l.put("add", item)
}

// Update writes item under its key. Same as Add.
func (l *List) Update(item Item) error {
	return l.put("update", item)
}

func (l *List) put(op string, item Item) error {
	if item == nil {
		return listErrf(l, op, "", nil, "nil item")
	}
	key := item.ItemKey()
	ledgerKey, err := l.ledgerKey(key)
	if err != nil {
		return listErrf(l, op, key, err, "")
	}
	data, err := l.enc.Encode(item)
	if err != nil {
		return listErrf(l, op, key, err, "")
	}
	err = l.stub.PutState(ledgerKey, data)
	if err != nil {
		return listErrf(l, op, key, err, "")
	}
	if l.verbose {
		l.logger.LogAttrs(context.Background(), slog.LevelDebug, "ledger: PUT", slog.String("list", l.name), slog.String("op", op), slog.String("key", key), slog.String("type", item.ItemType()), slog.Int("size", len(data)))
	}
	return nil
}

// Get returns the item stored under key, or (nil, nil) if there is none.
func (l *List) Get(key string) (Item, error) {
	ledgerKey, err := l.ledgerKey(key)
	if err != nil {
		return nil, listErrf(l, "get", key, err, "")
	}
	data, err := l.stub.GetState(ledgerKey)
	if err != nil {
		return nil, listErrf(l, "get", key, err, "")
	}
	if len(data) == 0 {
		if l.verbose {
			l.logger.LogAttrs(context.Background(), slog.LevelDebug, "ledger: GET.NOTFOUND", slog.String("list", l.name), slog.String("key", key))
		}
		return nil, nil
	}

	item, err := decode(data, l.reg, l.name)
	if err != nil {
		return nil, listErrf(l, "get", key, err, "")
	}
	if l.verbose {
		l.logger.LogAttrs(context.Background(), slog.LevelDebug, "ledger: GET", slog.String("list", l.name), slog.String("key", key), slog.String("type", item.ItemType()))
	}
	return item, nil
}

func (l *List) GetByParts(parts ...string) (Item, error) {
	if err := ValidKeyParts(parts...); err != nil {
		return nil, listErrf(l, "get", KeyString(parts), err, "")
	}
	return l.Get(MakeKey(parts...))
}

// Scan returns the items whose key starts with prefix, in ledger key order.
// The stub must implement PartialKeyStub.
func (l *List) Scan(prefix ...string) ([]Item, error) {
	if err := ValidKeyParts(prefix...); err != nil {
		return nil, listErrf(l, "scan", KeyString(prefix), err, "")
	}
	ps, ok := l.stub.(PartialKeyStub)
	if !ok {
		return nil, listErrf(l, "scan", MakeKey(prefix...), nil, "stub %T does not support partial composite keys", l.stub)
	}
	kvs, err := ps.GetStateByPartialCompositeKey(l.name, prefix)
	if err != nil {
		return nil, listErrf(l, "scan", MakeKey(prefix...), err, "")
	}
	items := make([]Item, 0, len(kvs))
	for _, kv := range kvs {
		if len(kv.Value) == 0 {
			continue
		}
		item, err := decode(kv.Value, l.reg, l.name)
		if err != nil {
			return nil, listErrf(l, "scan", scanKey(kv.Key), err, "")
		}
		items = append(items, item)
	}
	if l.verbose {
		l.logger.LogAttrs(context.Background(), slog.LevelDebug, "ledger: SCAN", slog.String("list", l.name), slog.String("prefix", KeyString(prefix)), slog.Int("found", len(items)))
	}
	return items, nil
}

// scanKey recovers the item key from a composite key returned by a scan,
// laid out as \x00type\x00part\x00...part\x00.
func scanKey(ledgerKey string) string {
	parts := strings.Split(ledgerKey, "\x00")
	if len(parts) < 3 || parts[0] != "" || parts[len(parts)-1] != "" || ValidKeyParts(parts...) != nil {
		return strconv.Quote(ledgerKey)
	}
	return MakeKey(parts[2 : len(parts)-1]...)
}

func (l *List) ledgerKey(key string) (string, error) {
	parts, err := SplitKey(key)
	if err != nil {
		return "", err
	}
	return l.stub.CreateCompositeKey(l.name, parts)
}

// GetAs is Get for lists whose items at key are known to be P.
func GetAs[T any, P interface {
	*T
	Item
}](l *List, key string) (P, error) {
	item, err := l.Get(key)
	if err != nil || item == nil {
		return nil, err
	}
	v, ok := item.(P)
	if !ok {
		return nil, listErrf(l, "get", key, nil, "got %T, wanted %T", item, P(nil))
	}
	return v, nil
}

// ScanAs is Scan for lists holding only P items.
func ScanAs[T any, P interface {
	*T
	Item
}](l *List, prefix ...string) ([]P, error) {
	items, err := l.Scan(prefix...)
	if err != nil {
		return nil, err
	}
	result := make([]P, 0, len(items))
	for _, item := range items {
		v, ok := item.(P)
		if !ok {
			return nil, listErrf(l, "scan", item.ItemKey(), nil, "got %T, wanted %T", item, P(nil))
		}
		result = append(result, v)
	}
	return result, nil
}
