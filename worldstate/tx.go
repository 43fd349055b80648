package worldstate

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/divvy/ledger"
)

var _ ledger.PartialKeyStub = (*Tx)(nil)

// Tx is a transaction simulated against a State. Reads see the
// transaction's own writes first and the latest committed state otherwise.
// Writes stay private to the transaction until Commit.
//
// A Tx is not safe for concurrent use.
type Tx struct {
	state  *State
	id     string
	reads  map[string]uint64 // key => version observed, 0 if absent
	ranges []rangeRead
	writes map[string]pendingWrite
	done   bool
}

// rangeRead is a partial composite key query and every committed entry it
// saw, tombstones included. Commit fails if the range no longer holds
// exactly these entries.
type rangeRead struct {
	prefix  string
	entries []keyVersion
}

type keyVersion struct {
	key     string
	version uint64
}

type pendingWrite struct {
	data    []byte
	deleted bool
}

func newTx(st *State) *Tx {
	return &Tx{
		state:  st,
		id:     uuid.NewString(),
		reads:  make(map[string]uint64),
		writes: make(map[string]pendingWrite),
	}
}

func (tx *Tx) TxID() string {
	return tx.id
}

func (tx *Tx) State() *State {
	return tx.state
}

func (tx *Tx) GetState(key string) ([]byte, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	err := validateSimpleKey(key)
	if err != nil {
		return nil, err
	}
	if w, found := tx.writes[key]; found {
		if w.deleted {
			return nil, nil
		}
		return bytes.Clone(w.data), nil
	}

	vle, found, err := tx.state.readCommitted(key)
	if err != nil {
		return nil, err
	}
	tx.observe(key, vle.Version)
	if tx.state.verbose {
		tx.state.logger.LogAttrs(context.Background(), slog.LevelDebug, "worldstate: GET", slog.String("tx", tx.id), slog.String("key", loggableKey(key)), slog.Uint64("ver", vle.Version), slog.Bool("found", found && !vle.Deleted()))
	}
	if !found || vle.Deleted() {
		return nil, nil
	}
	return vle.Data, nil
}

func (tx *Tx) PutState(key string, value []byte) error {
	if tx.done {
		return ErrTxDone
	}
	err := validateSimpleKey(key)
	if err != nil {
		return err
	}
	tx.writes[key] = pendingWrite{data: bytes.Clone(value)}
	return nil
}

func (tx *Tx) DelState(key string) error {
	if tx.done {
		return ErrTxDone
	}
	err := validateSimpleKey(key)
	if err != nil {
		return err
	}
	tx.writes[key] = pendingWrite{deleted: true}
	return nil
}

func (tx *Tx) CreateCompositeKey(objectType string, attributes []string) (string, error) {
	return CreateCompositeKey(objectType, attributes)
}

func (tx *Tx) SplitCompositeKey(compositeKey string) (string, []string, error) {
	return SplitCompositeKey(compositeKey)
}

// GetStateByPartialCompositeKey returns the committed entries whose keys
// start with the composite key of objectType and attributes, in key order.
// Like a Fabric range query, it does not see the transaction's own writes.
// The returned keys join the read set, and Commit fails if another
// transaction has since added a key to the range.
func (tx *Tx) GetStateByPartialCompositeKey(objectType string, attributes []string) ([]ledger.KV, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	prefix, err := CreateCompositeKey(objectType, attributes)
	if err != nil {
		return nil, err
	}
	entries, err := tx.state.scanCommitted(prefix)
	if err != nil {
		return nil, err
	}
	rr := rangeRead{prefix: prefix, entries: make([]keyVersion, 0, len(entries))}
	var kvs []ledger.KV
	for _, e := range entries {
		tx.observe(e.Key, e.Version)
		rr.entries = append(rr.entries, keyVersion{e.Key, e.Version})
		if e.Deleted() {
			continue
		}
		kvs = append(kvs, ledger.KV{Key: e.Key, Value: e.Data})
	}
	tx.ranges = append(tx.ranges, rr)
	return kvs, nil
}

// observe records the first version of key this transaction saw.
func (tx *Tx) observe(key string, version uint64) {
	if _, seen := tx.reads[key]; !seen {
		tx.reads[key] = version
	}
}

// Commit validates the read set and applies the write set atomically.
// On *ConflictError nothing is written.
func (tx *Tx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	return tx.state.commit(tx)
}

// Rollback discards the transaction. It is a no-op after Commit.
func (tx *Tx) Rollback() {
	if tx.done {
		return
	}
	tx.done = true
	tx.state.metrics.rolledBack()
	if tx.state.verbose {
		tx.state.logger.LogAttrs(context.Background(), slog.LevelDebug, "worldstate: ROLLBACK", slog.String("tx", tx.id), slog.Int("writes", len(tx.writes)))
	}
}
