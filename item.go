package ledger

// Item is anything a List can store. Concrete item types embed Base and are
// used through pointers.
type Item interface {
	ItemType() string
	ItemKey() string
}

// Base carries the type tag and key every stored item has. It is encoded
// inline with the concrete item's own fields.
type Base struct {
	Type string `json:"class" msgpack:"class"`
	Key  string `json:"key" msgpack:"key"`
}

func NewBase(typ string, keyParts ...string) Base {
	return Base{
		Type: typ,
		Key:  MakeKey(keyParts...),
	}
}

func (b *Base) ItemType() string {
	return b.Type
}

func (b *Base) ItemKey() string {
	return b.Key
}

func (b *Base) KeyParts() ([]string, error) {
	return SplitKey(b.Key)
}

// KeyParts returns the parts the item's key was made of.
func KeyParts(item Item) ([]string, error) {
	return SplitKey(item.ItemKey())
}
