/*
Package ledger stores typed records (items) in a transactional key-value
ledger through named virtual containers (lists).

We implement:

1. Items, arbitrary structs embedding Base, which carries a type tag and a key.

2. Item keys, built deterministically from an ordered list of key parts.

3. Registries, mapping type tags to factories so that stored bytes decode
into the right concrete type.

4. Lists, named namespaces of items with Add, Get and Update operations
on top of a Stub (the ledger's transaction context).

# Technical Details

**Virtual containers.**
A list never stores the set of its members. Each item is written under the
ledger's composite key of (list name, key parts...), so membership is implied
by the namespace. Two transactions adding different items to the same list
write disjoint keys and cannot collide at commit time; only writes to the same
item do. There is no enumeration except prefix lookups (List.Scan) on stubs
supporting partial composite keys.

**Item key encoding.**
Each key part is written as a JSON string literal and the literals are joined
with ':', e.g. "factoryA":"sku123". Splitting scans the literals honoring
escapes, so parts may themselves contain ':' or '"'. Parts must be valid UTF-8.

**Value encoding.**
Items are stored as a JSON object (default) or a MsgPack map holding the
concrete item's fields plus "class" (type tag) and "key". The encoding is
detected from the first byte on read.

**Errors.**
Decoding an unregistered type tag fails with *UnknownTypeError. List
operations return it, and stub and key failures, inside *ListError, which
unwraps to the original error. Reading a missing key is not an error: Get
returns a nil Item.
*/
package ledger
