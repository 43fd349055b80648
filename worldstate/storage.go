package worldstate

// storage represents a key-value storage backend (Bolt, LevelDB, in-memory).
type storage interface {
	// BeginTx starts a new transaction. The caller must not open a second
	// writable transaction before the first one ends; State guarantees this
	// with its commit lock.
	BeginTx(writable bool) (storageTx, error)
	// Close closes the storage.
	Close() error
}

// storageTx represents a storage transaction.
type storageTx interface {
	// Bucket returns a named bucket, or nil if it doesn't exist.
	Bucket(name string) storageBucket

	// CreateBucket creates a bucket if it doesn't exist.
	CreateBucket(name string) (storageBucket, error)

	// Commit commits the transaction.
	Commit() error

	// Rollback aborts the transaction. It should be safe to call multiple
	// times and after Commit.
	Rollback() error
}

// storageBucket represents a bucket (sorted key-value collection).
type storageBucket interface {
	// Get retrieves a value by key. Returns nil if not found. The result is
	// only valid until the transaction ends.
	Get(key []byte) ([]byte, error)

	// Put stores a key-value pair. Deleted state keys are kept as
	// tombstones, so there is no Delete.
	Put(key, value []byte) error

	// Cursor returns a cursor for iteration. It must be closed before the
	// transaction ends.
	Cursor() storageCursor
}

// storageCursor iterates over a sorted bucket.
type storageCursor interface {
	// Seek moves to the first key >= seek.
	Seek(seek []byte) (key, value []byte)

	// Next moves to the next key-value pair. Seek must be called first.
	Next() (key, value []byte)

	Close()
}
