package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encoding selects how a List writes items. Reads detect the encoding from
// the stored bytes, so lists with different encodings can share data.
type Encoding int

const (
	JSON Encoding = iota
	MsgPack

	DefaultEncoding = JSON
)

func (enc Encoding) String() string {
	switch enc {
	case JSON:
		return "json"
	case MsgPack:
		return "msgpack"
	default:
		return fmt.Sprintf("encoding(%d)", int(enc))
	}
}

// envelope picks the type tag out of an encoded item.
type envelope struct {
	Type string `json:"class" msgpack:"class"`
}

// Encode encodes item using DefaultEncoding.
func Encode(item Item) ([]byte, error) {
	return DefaultEncoding.Encode(item)
}

// Encode returns the full state of item, including its type tag and key.
func (enc Encoding) Encode(item Item) ([]byte, error) {
	if item == nil {
		return nil, fmt.Errorf("ledger: cannot encode nil item")
	}
	data, err := enc.marshal(item)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T using %v: %w", item, enc, err)
	}
	return data, nil
}

// Decode reconstructs the item encoded in data as the concrete type reg
// has registered for its tag. Fails with *UnknownTypeError if there is none.
func Decode(data []byte, reg *Registry) (Item, error) {
	return decode(data, reg, "")
}

func decode(data []byte, reg *Registry, listName string) (Item, error) {
	enc, ok := detectEncoding(data)
	if !ok {
		return nil, dataErrf(data, 0, nil, "unrecognized item encoding")
	}

	var env envelope
	err := enc.unmarshal(data, &env)
	if err != nil {
		return nil, dataErrf(data, 0, err, "failed to decode %v item envelope", enc)
	}
	if env.Type == "" {
		return nil, dataErrf(data, 0, nil, "item has no type tag")
	}

	f, found := reg.Resolve(env.Type)
	if !found {
		return nil, &UnknownTypeError{List: listName, Type: env.Type}
	}

	item := f()
	err = enc.unmarshal(data, item)
	if err != nil {
		return nil, dataErrf(data, 0, err, "failed to decode %v into %T", enc, item)
	}
	if item.ItemType() != env.Type {
		return nil, dataErrf(data, 0, nil, "%T decoded with type %q, stored as %q", item, item.ItemType(), env.Type)
	}
	return item, nil
}

// DecodeAs decodes data into a new T without consulting any registry.
func DecodeAs[T any](data []byte) (*T, error) {
	enc, ok := detectEncoding(data)
	if !ok {
		return nil, dataErrf(data, 0, nil, "unrecognized item encoding")
	}
	v := new(T)
	err := enc.unmarshal(data, v)
	if err != nil {
		return nil, dataErrf(data, 0, err, "failed to decode %v into %T", enc, v)
	}
	return v, nil
}

func (enc Encoding) marshal(v any) ([]byte, error) {
	switch enc {
	case JSON:
		return json.Marshal(v)
	case MsgPack:
		var buf bytes.Buffer
		e := msgpack.GetEncoder()
		e.Reset(&buf)
		e.SetSortMapKeys(true)
		err := e.Encode(v)
		msgpack.PutEncoder(e)
		if err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		panic("unsupported encoding")
	}
}

func (enc Encoding) unmarshal(data []byte, v any) error {
	switch enc {
	case JSON:
		return json.Unmarshal(data, v)
	case MsgPack:
		var r bytes.Reader
		r.Reset(data)
		d := msgpack.GetDecoder()
		d.Reset(&r)
		err := d.Decode(v)
		msgpack.PutDecoder(d)
		return err
	default:
		panic("unsupported encoding")
	}
}

// detectEncoding tells a JSON object from a MsgPack map by the first byte.
func detectEncoding(data []byte) (Encoding, bool) {
	for _, b := range data {
		switch {
		case b == ' ' || b == '\t' || b == '\r' || b == '\n':
			continue
		case b == '{':
			return JSON, true
		case b >= 0x80 && b <= 0x8f, b == 0xde, b == 0xdf:
			return MsgPack, true
		default:
			return 0, false
		}
	}
	return 0, false
}
