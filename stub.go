package ledger

// Stub is the slice of a ledger transaction context that lists depend on.
// Method sets match the Fabric chaincode stub, so the real thing fits.
//
// GetState must observe the transaction's own pending writes. PutState is
// not visible outside the transaction until it commits.
type Stub interface {
	GetState(key string) ([]byte, error)
	PutState(key string, value []byte) error
	CreateCompositeKey(objectType string, attributes []string) (string, error)
}

// PartialKeyStub is implemented by stubs that can look up all keys sharing
// a composite key prefix. List.Scan requires it.
type PartialKeyStub interface {
	Stub
	GetStateByPartialCompositeKey(objectType string, attributes []string) ([]KV, error)
}

type KV struct {
	Key   string
	Value []byte
}
