package worldstate

import (
	"errors"
	"fmt"
)

var (
	ErrMVCCConflict = errors.New("mvcc read conflict")
	ErrTxDone       = errors.New("transaction already committed or rolled back")
	ErrInvalidKey   = errors.New("invalid state key")
	ErrEmptyKey     = errors.New("empty state key")
)

// ConflictError is returned by Commit when a key read by the transaction was
// changed by another transaction that committed first. Nothing is written.
type ConflictError struct {
	TxID string
	Key  string
	Read uint64 // version observed by the transaction
	Now  uint64 // version at commit time
}

func (e *ConflictError) Unwrap() error {
	return ErrMVCCConflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("tx %s: %v on %s: read version %d, committed version %d", e.TxID, ErrMVCCConflict, loggableKey(e.Key), e.Read, e.Now)
}

type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}
