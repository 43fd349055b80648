package worldstate

import (
	"encoding/binary"
	"fmt"

	"github.com/divvy/ledger"
)

// Stored value layout: flags (uvarint), version (uvarint), data size (uvarint),
// then the data bytes.

type valueFlags uint64

const (
	vfVerBit0 = valueFlags(1 << iota)
	vfVerBit1
	vfDeleted

	vfVerMask       = (vfVerBit0 | vfVerBit1)
	vfVer1          = vfVerBit0
	vfSupportedMask = (vfVer1 | vfDeleted)
	vfDefault       = vfVer1

	minValueSize = 3
)

// value is a stored state entry. Deleted keys are kept as tombstones so that
// versions keep increasing across a delete and a re-create.
type value struct {
	Flags   valueFlags
	Version uint64
	Data    []byte
}

func (vle value) Deleted() bool {
	return vle.Flags&vfDeleted != 0
}

func appendValue(buf []byte, vle value) []byte {
	buf = binary.AppendUvarint(buf, uint64(vle.Flags))
	buf = binary.AppendUvarint(buf, vle.Version)
	buf = binary.AppendUvarint(buf, uint64(len(vle.Data)))
	return append(buf, vle.Data...)
}

// decode fills vle from data. vle.Data aliases data.
func (vle *value) decode(data []byte) error {
	orig := data
	if len(data) < minValueSize {
		return valueErrf(orig, 0, "invalid value: at least %d bytes required", minValueSize)
	}

	v, n := binary.Uvarint(data)
	if n <= 0 {
		return valueErrf(orig, len(orig)-len(data), "invalid value: bad flags")
	}
	if (v&^uint64(vfSupportedMask)) != 0 || valueFlags(v)&vfVerMask != vfVer1 {
		return valueErrf(orig, len(orig)-len(data), "invalid value: unsupported flags %x", v)
	}
	vle.Flags, data = valueFlags(v), data[n:]

	v, n = binary.Uvarint(data)
	if n <= 0 {
		return valueErrf(orig, len(orig)-len(data), "invalid value: bad version")
	}
	vle.Version, data = v, data[n:]

	dataSize, n := binary.Uvarint(data)
	if n <= 0 {
		return valueErrf(orig, len(orig)-len(data), "invalid value: bad data size")
	}
	data = data[n:]
	if uint64(len(data)) != dataSize {
		return valueErrf(orig, len(orig)-len(data), "invalid value: got %d bytes of data, expected %d bytes", len(data), dataSize)
	}
	vle.Data = data
	return nil
}

func valueErrf(data []byte, off int, format string, args ...any) error {
	return &ledger.DataError{Data: data, Off: off, Msg: fmt.Sprintf(format, args...)}
}
