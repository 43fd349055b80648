package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownType is matched by *UnknownTypeError.
	ErrUnknownType = errors.New("unknown item type")

	// ErrMalformedKey is returned by SplitKey for keys not produced by MakeKey.
	ErrMalformedKey = errors.New("malformed item key")
)

type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d @%d) %q", e.Msg, e.Err, n, e.Off, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d @%d) %q", e.Msg, n, e.Off, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d @%d) %q...%q", e.Msg, e.Err, n, e.Off, p, s)
		} else {
			return fmt.Sprintf("%s: (%d @%d) %q...%q", e.Msg, n, e.Off, p, s)
		}
	}
}

// UnknownTypeError is returned when a stored item's type tag has no factory
// in the registry used to decode it.
type UnknownTypeError struct {
	List string
	Type string
}

func (e *UnknownTypeError) Unwrap() error {
	return ErrUnknownType
}

func (e *UnknownTypeError) Error() string {
	if e.List == "" {
		return fmt.Sprintf("%v %q", ErrUnknownType, e.Type)
	}
	return fmt.Sprintf("%s: %v %q", e.List, ErrUnknownType, e.Type)
}

// ListError annotates a failure of a List operation with the list name,
// operation and item key. Errors returned by the Stub are kept as Err
// unchanged, so errors.Is and errors.As see the original.
type ListError struct {
	List string
	Op   string
	Key  string
	Msg  string
	Err  error
}

func listErrf(l *List, op, key string, err error, format string, args ...any) error {
	var msg string
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	}
	return &ListError{l.name, op, key, msg, err}
}

func (e *ListError) Unwrap() error {
	return e.Err
}

func (e *ListError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.List)
	if e.Op != "" {
		buf.WriteByte('.')
		buf.WriteString(e.Op)
	}
	if e.Key != "" {
		buf.WriteByte('/')
		buf.WriteString(e.Key)
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}
