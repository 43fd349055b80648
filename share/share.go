// Package share stores equity shares: how many shares of an organization
// a holder owns.
package share

import (
	"github.com/divvy/ledger"
)

const (
	// Type is the type tag of Share items.
	Type = "com.divvy.share"

	// ListName is the namespace all shares live in.
	ListName = "com.divvy.sharelist"
)

// Share is a holding of Quantity shares of Org by Holder. Its key parts are
// (Org, Holder).
type Share struct {
	ledger.Base `msgpack:",inline"`
	Org         string `json:"org" msgpack:"org"`
	Holder      string `json:"holder" msgpack:"holder"`
	Class       string `json:"shareClass,omitempty" msgpack:"sc,omitempty"`
	Quantity    int64  `json:"quantity" msgpack:"qty"`
}

func New(org, holder string, quantity int64) *Share {
	return &Share{
		Base:     ledger.NewBase(Type, org, holder),
		Org:      org,
		Holder:   holder,
		Quantity: quantity,
	}
}

// Key returns the item key of the share of org held by holder.
func Key(org, holder string) string {
	return ledger.MakeKey(org, holder)
}

// List is the share list of one transaction.
type List struct {
	*ledger.List
}

// NewList accepts the same options as ledger.NewList.
func NewList(stub ledger.Stub, opts ...any) *List {
	l := ledger.NewList(stub, ListName, opts...)
	l.Use(Type, ledger.FactoryOf[Share]())
	return &List{l}
}

func (l *List) AddShare(s *Share) error {
	return l.Add(s)
}

// GetShare returns the share stored under key, or nil if there is none.
func (l *List) GetShare(key string) (*Share, error) {
	return ledger.GetAs[Share](l.List, key)
}

func (l *List) GetShareOf(org, holder string) (*Share, error) {
	err := ledger.ValidKeyParts(org, holder)
	if err != nil {
		return nil, err
	}
	return l.GetShare(Key(org, holder))
}

func (l *List) UpdateShare(s *Share) error {
	return l.Update(s)
}

// SharesOf returns every share of org, ordered by holder. The stub must
// implement ledger.PartialKeyStub.
func (l *List) SharesOf(org string) ([]*Share, error) {
	return ledger.ScanAs[Share](l.List, org)
}

// All returns every share in the list.
func (l *List) All() ([]*Share, error) {
	return ledger.ScanAs[Share](l.List)
}
