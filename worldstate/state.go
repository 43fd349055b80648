package worldstate

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"go.etcd.io/bbolt"
)

const (
	stateBucket = "state"
	metaBucket  = "meta"
)

var (
	heightKey = []byte("height")
	digestKey = []byte("digest")
)

type Options struct {
	Logger    *slog.Logger
	Verbose   bool
	Metrics   *Metrics
	IsTesting bool
	MmapSize  int // Bolt only

	// CommitLog is the path of an optional write-ahead log of all commits.
	// Commits the storage lost in a crash are replayed from it on open.
	CommitLog string
	Now       func() time.Time
}

// State is a transactional world state: a map of keys to versioned values
// that transactions read and write through Tx.
//
// Transactions are simulated independently and validated when they commit:
// a transaction whose reads were invalidated by another commit is rejected
// with a *ConflictError. Commits are serialized.
type State struct {
	stor    storage
	logger  *slog.Logger
	verbose bool
	metrics *Metrics
	now     func() time.Time

	commitLock sync.Mutex
	log        *commitLog
	height     atomic.Uint64
	digest     atomic.Uint64
}

// Info describes the committed history of a State.
type Info struct {
	// Height is the number of committed transactions that wrote something.
	Height uint64
	// Digest chains the write sets of all those transactions.
	Digest uint64
}

func (info Info) String() string {
	return fmt.Sprintf("height=%d digest=%016x", info.Height, info.Digest)
}

// OpenBolt opens (creating if needed) a world state stored in a Bolt file.
func OpenBolt(path string, o Options) (*State, error) {
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if o.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if o.MmapSize != 0 {
		bopt.InitialMmapSize = o.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, &bopt)
	if err != nil {
		return nil, fmt.Errorf("worldstate: %w", err)
	}
	return open(newBoltStorage(bdb), o)
}

// OpenLevelDB opens (creating if needed) a world state stored in a LevelDB
// directory.
func OpenLevelDB(path string, o Options) (*State, error) {
	ldb, err := leveldb.OpenFile(path, &opt.Options{
		NoSync: o.IsTesting,
	})
	if err != nil {
		return nil, fmt.Errorf("worldstate: %w", err)
	}
	return open(newLevelStorage(ldb), o)
}

// NewMemory returns an empty world state that lives in memory. It panics if
// o.CommitLog cannot be opened.
func NewMemory(o Options) *State {
	return must(OpenMemory(o))
}

// OpenMemory returns a world state that lives in memory. With a commit log,
// it starts out with every commit in the log.
func OpenMemory(o Options) (*State, error) {
	return open(newMemStorage(), o)
}

func open(stor storage, o Options) (*State, error) {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	st := &State{
		stor:    stor,
		logger:  o.Logger,
		verbose: o.Verbose,
		metrics: o.Metrics,
		now:     o.Now,
	}
	err := st.prepare()
	if err == nil && o.CommitLog != "" {
		var commits []Commit
		st.log, commits, err = openCommitLog(o.CommitLog, o.IsTesting, o.Logger)
		if err == nil {
			err = st.recover(commits)
		}
	}
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("worldstate: %w", err)
	}
	if st.metrics != nil {
		st.metrics.Height.Set(float64(st.height.Load()))
	}
	return st, nil
}

func (st *State) prepare() error {
	stx, err := st.stor.BeginTx(true)
	if err != nil {
		return err
	}
	defer stx.Rollback()

	_, err = stx.CreateBucket(stateBucket)
	if err != nil {
		return err
	}
	mb, err := stx.CreateBucket(metaBucket)
	if err != nil {
		return err
	}

	height, err := getUint64(mb, heightKey)
	if err != nil {
		return err
	}
	digest, err := getUint64(mb, digestKey)
	if err != nil {
		return err
	}

	err = stx.Commit()
	if err != nil {
		return err
	}
	st.height.Store(height)
	st.digest.Store(digest)
	return nil
}

func (st *State) Close() error {
	var logErr error
	if st.log != nil {
		logErr = st.log.close()
	}
	return errors.Join(st.stor.Close(), logErr)
}

// recover applies the logged commits the storage does not have yet. An empty
// log starts recording at the current height.
func (st *State) recover(commits []Commit) error {
	var last uint64
	if len(commits) > 0 {
		last = commits[len(commits)-1].Height
	}
	height := st.height.Load()
	if len(commits) > 0 && last < height {
		return fmt.Errorf("commit log %s ends at height %d, behind world state at height %d", st.log.path, last, height)
	}
	for _, c := range commits {
		if c.Height <= height {
			continue
		}
		if c.Height != height+1 {
			return fmt.Errorf("commit log %s: height %d follows %d", st.log.path, c.Height, height)
		}
		err := st.replay(c)
		if err != nil {
			return err
		}
		height = c.Height
		st.logger.LogAttrs(context.Background(), slog.LevelInfo, "worldstate: recovered commit", slog.String("tx", c.TxID), slog.Uint64("height", c.Height))
	}
	return nil
}

func (st *State) replay(c Commit) error {
	stx, err := st.stor.BeginTx(true)
	if err != nil {
		return err
	}
	defer stx.Rollback()

	want := c.Digest
	err = st.apply(stx, &c)
	if err != nil {
		return err
	}
	if c.Digest != want {
		return fmt.Errorf("commit log %s: digest mismatch at height %d: logged %016x, replayed %016x", st.log.path, c.Height, want, c.Digest)
	}
	err = stx.Commit()
	if err != nil {
		return err
	}
	st.height.Store(c.Height)
	st.digest.Store(c.Digest)
	return nil
}

func (st *State) Info() Info {
	st.commitLock.Lock()
	defer st.commitLock.Unlock()
	return Info{
		Height: st.height.Load(),
		Digest: st.digest.Load(),
	}
}

// Begin starts a new transaction. It must end with Commit or Rollback.
func (st *State) Begin() *Tx {
	return newTx(st)
}

// Submit runs f in a new transaction and commits it if f succeeds. A panic
// in f is returned as an error. Conflicts are returned, not retried.
func (st *State) Submit(f func(tx *Tx) error) error {
	tx := st.Begin()
	err := safelyCall(f, tx)
	if err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Evaluate runs f in a new transaction and discards its writes.
func (st *State) Evaluate(f func(tx *Tx) error) error {
	tx := st.Begin()
	defer tx.Rollback()
	return safelyCall(f, tx)
}

func safelyCall(fn func(*Tx) error, tx *Tx) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(tx)
}

// readCommitted returns the latest committed value of key.
func (st *State) readCommitted(key string) (value, bool, error) {
	st.metrics.read()

	stx, err := st.stor.BeginTx(false)
	if err != nil {
		return value{}, false, fmt.Errorf("worldstate: begin read: %w", err)
	}
	defer stx.Rollback()

	raw, err := stx.Bucket(stateBucket).Get([]byte(key))
	if err != nil {
		return value{}, false, fmt.Errorf("worldstate: read %s: %w", loggableKey(key), err)
	}
	if raw == nil {
		return value{}, false, nil
	}
	var vle value
	err = vle.decode(raw)
	if err != nil {
		return value{}, false, fmt.Errorf("worldstate: read %s: %w", loggableKey(key), err)
	}
	vle.Data = bytes.Clone(vle.Data)
	return vle, true, nil
}

type entry struct {
	Key string
	value
}

// scanCommitted returns the latest committed values of all keys starting
// with prefix, tombstones included, in key order.
func (st *State) scanCommitted(prefix string) ([]entry, error) {
	st.metrics.read()

	stx, err := st.stor.BeginTx(false)
	if err != nil {
		return nil, fmt.Errorf("worldstate: begin read: %w", err)
	}
	defer stx.Rollback()

	c := stx.Bucket(stateBucket).Cursor()
	defer c.Close()

	var entries []entry
	p := []byte(prefix)
	for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
		var vle value
		err := vle.decode(v)
		if err != nil {
			return nil, fmt.Errorf("worldstate: scan %s: %w", loggableKey(string(k)), err)
		}
		vle.Data = bytes.Clone(vle.Data)
		entries = append(entries, entry{string(k), vle})
	}
	return entries, nil
}

func (st *State) commit(tx *Tx) error {
	st.commitLock.Lock()
	defer st.commitLock.Unlock()

	stx, err := st.stor.BeginTx(true)
	if err != nil {
		return fmt.Errorf("worldstate: begin commit: %w", err)
	}
	defer stx.Rollback()
	sb := stx.Bucket(stateBucket)

	for _, key := range sortedKeys(tx.reads) {
		cur, err := currentVersion(sb, key)
		if err != nil {
			return err
		}
		if read := tx.reads[key]; cur != read {
			st.metrics.conflict()
			if st.verbose {
				st.logger.LogAttrs(context.Background(), slog.LevelDebug, "worldstate: CONFLICT", slog.String("tx", tx.id), slog.String("key", loggableKey(key)), slog.Uint64("read", read), slog.Uint64("now", cur))
			}
			return &ConflictError{TxID: tx.id, Key: key, Read: read, Now: cur}
		}
	}
	for _, rr := range tx.ranges {
		err := st.validateRange(sb, tx, rr)
		if err != nil {
			return err
		}
	}
	if len(tx.writes) == 0 {
		return nil
	}

	c := &Commit{
		Height: st.height.Load() + 1,
		TxID:   tx.id,
		Time:   st.now().UTC().Truncate(time.Second),
		Writes: make([]Write, 0, len(tx.writes)),
	}
	for _, key := range sortedKeys(tx.writes) {
		w := tx.writes[key]
		c.Writes = append(c.Writes, Write{Key: key, Data: w.data, Deleted: w.deleted})
	}
	err = st.apply(stx, c)
	if err != nil {
		return err
	}
	if st.log != nil {
		err = st.log.append(c)
		if err != nil {
			return fmt.Errorf("worldstate: %w", err)
		}
	}
	err = stx.Commit()
	if err != nil {
		// the log is now ahead of the storage; no more commits until reopened
		if st.log != nil {
			st.log.fail(err)
		}
		return fmt.Errorf("worldstate: commit: %w", err)
	}

	st.height.Store(c.Height)
	st.digest.Store(c.Digest)
	st.metrics.committed(len(c.Writes), c.Height)
	if st.verbose {
		st.logger.LogAttrs(context.Background(), slog.LevelDebug, "worldstate: COMMIT", slog.String("tx", tx.id), slog.Uint64("height", c.Height), slog.Int("reads", len(tx.reads)), slog.Int("writes", len(c.Writes)))
	}
	return nil
}

// validateRange re-runs a partial key query of tx and fails with
// *ConflictError on the first key that was added, changed or removed since.
func (st *State) validateRange(sb storageBucket, tx *Tx, rr rangeRead) error {
	c := sb.Cursor()
	defer c.Close()

	p := []byte(rr.prefix)
	i := 0
	for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
		var vle value
		err := vle.decode(v)
		if err != nil {
			return fmt.Errorf("worldstate: scan %s: %w", loggableKey(string(k)), err)
		}
		key := string(k)
		switch {
		case i < len(rr.entries) && rr.entries[i].key == key:
			if rr.entries[i].version != vle.Version {
				return st.rangeConflict(tx, rr, key, rr.entries[i].version, vle.Version)
			}
			i++
		case i < len(rr.entries) && rr.entries[i].key < key:
			return st.rangeConflict(tx, rr, rr.entries[i].key, rr.entries[i].version, 0)
		default:
			return st.rangeConflict(tx, rr, key, 0, vle.Version)
		}
	}
	if i < len(rr.entries) {
		return st.rangeConflict(tx, rr, rr.entries[i].key, rr.entries[i].version, 0)
	}
	return nil
}

func (st *State) rangeConflict(tx *Tx, rr rangeRead, key string, read, now uint64) error {
	st.metrics.conflict()
	if st.verbose {
		st.logger.LogAttrs(context.Background(), slog.LevelDebug, "worldstate: CONFLICT", slog.String("tx", tx.id), slog.String("range", loggableKey(rr.prefix)), slog.String("key", loggableKey(key)), slog.Uint64("read", read), slog.Uint64("now", now))
	}
	return &ConflictError{TxID: tx.id, Key: key, Read: read, Now: now}
}

// apply writes c.Writes on top of the current state, bumps the height to
// c.Height and sets c.Digest. The writes must be sorted by key.
func (st *State) apply(stx storageTx, c *Commit) error {
	sb := stx.Bucket(stateBucket)
	mb := stx.Bucket(metaBucket)

	h := xxhash.New()
	var num [8]byte
	binary.BigEndian.PutUint64(num[:], st.digest.Load())
	h.Write(num[:])
	binary.BigEndian.PutUint64(num[:], c.Height)
	h.Write(num[:])

	var buf []byte
	for _, w := range c.Writes {
		cur, err := currentVersion(sb, w.Key)
		if err != nil {
			return err
		}
		vle := value{Flags: vfDefault, Version: cur + 1, Data: w.Data}
		if w.Deleted {
			vle.Flags |= vfDeleted
			vle.Data = nil
		}
		err = sb.Put([]byte(w.Key), appendValue(nil, vle))
		if err != nil {
			return fmt.Errorf("worldstate: write %s: %w", loggableKey(w.Key), err)
		}

		buf = binary.AppendUvarint(buf[:0], uint64(len(w.Key)))
		buf = append(buf, w.Key...)
		buf = appendValue(buf, vle)
		h.Write(buf)
	}
	c.Digest = h.Sum64()

	err := putUint64(mb, heightKey, c.Height)
	if err != nil {
		return err
	}
	return putUint64(mb, digestKey, c.Digest)
}

func currentVersion(b storageBucket, key string) (uint64, error) {
	raw, err := b.Get([]byte(key))
	if err != nil {
		return 0, fmt.Errorf("worldstate: read %s: %w", loggableKey(key), err)
	}
	if raw == nil {
		return 0, nil
	}
	var vle value
	err = vle.decode(raw)
	if err != nil {
		return 0, fmt.Errorf("worldstate: read %s: %w", loggableKey(key), err)
	}
	return vle.Version, nil
}

func getUint64(b storageBucket, key []byte) (uint64, error) {
	raw, err := b.Get(key)
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("invalid %s meta value %x", key, raw)
	}
	return binary.BigEndian.Uint64(raw), nil
}

func putUint64(b storageBucket, key []byte, v uint64) error {
	return b.Put(key, binary.BigEndian.AppendUint64(nil, v))
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
