package worldstate

import (
	"bytes"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB has a single flat keyspace, so buckets are key prefixes of
// the form "name/".
const levelBucketSep = '/'

type levelStorage struct {
	ldb *leveldb.DB
}

func newLevelStorage(ldb *leveldb.DB) storage {
	return &levelStorage{ldb: ldb}
}

func (s *levelStorage) BeginTx(writable bool) (storageTx, error) {
	if writable {
		ltx, err := s.ldb.OpenTransaction()
		if err != nil {
			return nil, err
		}
		return &levelStorageTx{r: ltx, ltx: ltx}, nil
	}
	snap, err := s.ldb.GetSnapshot()
	if err != nil {
		return nil, err
	}
	return &levelStorageTx{r: snap, snap: snap}, nil
}

func (s *levelStorage) Close() error {
	return s.ldb.Close()
}

// levelReader is implemented by both *leveldb.Transaction and *leveldb.Snapshot.
type levelReader interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

type levelStorageTx struct {
	r    levelReader
	ltx  *leveldb.Transaction // nil for read-only
	snap *leveldb.Snapshot    // nil for writable
}

func (tx *levelStorageTx) Bucket(name string) storageBucket {
	return levelBucket{tx: tx, prefix: levelBucketPrefix(name)}
}

func (tx *levelStorageTx) CreateBucket(name string) (storageBucket, error) {
	return tx.Bucket(name), nil
}

func (tx *levelStorageTx) Commit() error {
	return tx.ltx.Commit()
}

func (tx *levelStorageTx) Rollback() error {
	if tx.ltx != nil {
		tx.ltx.Discard()
	} else {
		tx.snap.Release()
	}
	return nil
}

func levelBucketPrefix(name string) []byte {
	prefix := make([]byte, 0, len(name)+1)
	prefix = append(prefix, name...)
	return append(prefix, levelBucketSep)
}

type levelBucket struct {
	tx     *levelStorageTx
	prefix []byte
}

func (b levelBucket) key(key []byte) []byte {
	k := make([]byte, 0, len(b.prefix)+len(key))
	k = append(k, b.prefix...)
	return append(k, key...)
}

func (b levelBucket) Get(key []byte) ([]byte, error) {
	v, err := b.tx.r.Get(b.key(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	return v, err
}

func (b levelBucket) Put(key, value []byte) error {
	return b.tx.ltx.Put(b.key(key), value, nil)
}

func (b levelBucket) Cursor() storageCursor {
	return &levelCursor{
		it:     b.tx.r.NewIterator(util.BytesPrefix(b.prefix), nil),
		prefix: b.prefix,
	}
}

type levelCursor struct {
	it     iterator.Iterator
	prefix []byte
}

func (c *levelCursor) Seek(seek []byte) ([]byte, []byte) {
	return c.current(c.it.Seek(append(bytes.Clone(c.prefix), seek...)))
}

func (c *levelCursor) Next() ([]byte, []byte) {
	return c.current(c.it.Next())
}

func (c *levelCursor) current(ok bool) ([]byte, []byte) {
	if !ok {
		return nil, nil
	}
	return c.it.Key()[len(c.prefix):], c.it.Value()
}

func (c *levelCursor) Close() {
	c.it.Release()
}
