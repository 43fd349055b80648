/*
Package worldstate is a single-process transactional key-value world state
that ledger lists can run against. Its Tx implements ledger.PartialKeyStub
with the semantics of a Fabric chaincode stub.

Storage is pluggable: Bolt (OpenBolt), LevelDB (OpenLevelDB) or memory
(NewMemory).

# Concurrency

Transactions are simulated without locks. Each read of committed state
records the version of the key it saw; Commit re-checks those versions under
the commit lock and rejects the transaction with *ConflictError if any of
them moved. Partial composite key queries are re-run the same way, so a key
inserted into a scanned range also fails the commit. Writes without a prior
read (blind writes) never conflict, so transactions adding different items to
the same list all commit.

# Binary encoding

**Buckets.** "state" holds the world state, "meta" holds the commit height
and digest. LevelDB simulates buckets with "name/" key prefixes.

**Value**: flags (uvarint), version (uvarint), data size (uvarint), data.
Deletes leave a tombstone (flag 0x4) so a key's version never goes back.

**Digest.** Each commit hashes (xxhash64) the previous digest, the new height
and the sorted write set, chaining all commits together.
*/
package worldstate
