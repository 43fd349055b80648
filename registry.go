package ledger

import (
	"fmt"
	"sort"
)

// Factory returns a new, empty item to decode a stored record into.
type Factory func() Item

// FactoryOf returns a Factory allocating a new T.
func FactoryOf[T any, P interface {
	*T
	Item
}]() Factory {
	return func() Item {
		return P(new(T))
	}
}

// Registry maps type tags to factories. Entries are only ever added; a list
// fills its registry once when it is constructed. The zero value is ready
// to use.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for typ, replacing any earlier one.
func (reg *Registry) Register(typ string, f Factory) {
	if typ == "" {
		panic("ledger: Register with empty type tag")
	}
	if f == nil {
		panic(fmt.Errorf("ledger: Register(%q) with nil factory", typ))
	}
	if reg.factories == nil {
		reg.factories = make(map[string]Factory)
	}
	reg.factories[typ] = f
}

func (reg *Registry) Resolve(typ string) (Factory, bool) {
	f, ok := reg.factories[typ]
	return f, ok
}

func (reg *Registry) Len() int {
	return len(reg.factories)
}

// Types returns the registered tags in sorted order.
func (reg *Registry) Types() []string {
	types := make([]string, 0, len(reg.factories))
	for typ := range reg.factories {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}
