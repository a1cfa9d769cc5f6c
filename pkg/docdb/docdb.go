// Package docdb turns the plain key/value primitive in pkg/store into the
// document-oriented store the rest of this module talks to: named
// collections of msgpack-encoded documents, addressed by id, with the
// small set of operations the commit and op-log layers need (insert,
// conditional replace, delete, prefix scan).
package docdb

import (
	"errors"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/shinyes/opdb/pkg/store"
)

// ErrDuplicateKey is returned by InsertFirstVersion when a document with
// the given id already exists — the embedded-engine analogue of a
// document store's duplicate-key error on a unique primary key insert.
var ErrDuplicateKey = errors.New("docdb: duplicate key")

// ErrNotFound names a missing document row. Get and CAS do not return
// it: they report absence through their ok/applied results.
var ErrNotFound = errors.New("docdb: not found")

const docPrefixByte = "/d/"

// Store is a thin wrapper over a pkg/store.Store that hands out named
// Collections. It holds no state of its own beyond the underlying KV
// engine handle, matching the teacher's own DB/Table split
// (pkg/db.DB.Table in the teacher repo).
type Store struct {
	kv store.Store
}

// New wraps an already-open pkg/store.Store as a document store.
func New(kv store.Store) *Store {
	return &Store{kv: kv}
}

// Close closes the underlying KV engine.
func (s *Store) Close() error {
	return s.kv.Close()
}

// Collection returns a handle to the named collection. Collections are
// cheap to construct; callers do not need to cache them.
func (s *Store) Collection(name string) *Collection {
	return &Collection{name: name, kv: s.kv}
}

// Collection is a named set of documents keyed by id.
type Collection struct {
	name string
	kv   store.Store
}

func (c *Collection) prefix() []byte {
	return []byte(docPrefixByte + c.name + "/")
}

func (c *Collection) key(id string) []byte {
	return append(c.prefix(), []byte(id)...)
}

func encodeDoc(doc map[string]any) ([]byte, error) {
	return msgpack.Marshal(doc)
}

func decodeDoc(b []byte) (map[string]any, error) {
	var m map[string]any
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Txn is a transactional view of a single collection, letting callers
// compose a document write with raw index-key maintenance (see
// pkg/opindex) inside one KV transaction.
type Txn struct {
	tx   store.Tx
	coll *Collection
}

// Update runs fn inside a read-write transaction against this collection.
func (c *Collection) Update(fn func(txn *Txn) error) error {
	return c.kv.Update(func(tx store.Tx) error {
		return fn(&Txn{tx: tx, coll: c})
	})
}

// View runs fn inside a read-only transaction against this collection.
func (c *Collection) View(fn func(txn *Txn) error) error {
	return c.kv.View(func(tx store.Tx) error {
		return fn(&Txn{tx: tx, coll: c})
	})
}

// Get returns the document stored under id, or ok=false if absent.
func (t *Txn) Get(id string) (map[string]any, bool, error) {
	val, err := t.tx.Get(t.coll.key(id))
	if err == store.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	doc, err := decodeDoc(val)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// Set writes doc under id unconditionally.
func (t *Txn) Set(id string, doc map[string]any) error {
	b, err := encodeDoc(doc)
	if err != nil {
		return err
	}
	return t.tx.Set(t.coll.key(id), b, 0)
}

// Delete removes the document stored under id, if any.
func (t *Txn) Delete(id string) error {
	return t.tx.Delete(t.coll.key(id))
}

// RawGet/RawSet/RawDelete/NewIterator expose the underlying transaction
// directly so that op-collection index maintenance (pkg/opindex) can
// write secondary keys in the same transaction as the primary document
// row, matching the teacher's own index.Manager.UpdateIndexes pattern of
// updating data and index keys inside a single caller-supplied
// transaction.
func (t *Txn) RawGet(key []byte) ([]byte, error) { return t.tx.Get(key) }
func (t *Txn) RawSet(key, value []byte) error    { return t.tx.Set(key, value, 0) }
func (t *Txn) RawDelete(key []byte) error        { return t.tx.Delete(key) }
func (t *Txn) NewIterator(opts store.IteratorOptions) store.Iterator {
	return t.tx.NewIterator(opts)
}

// Prefix returns this collection's document-row key prefix, for callers
// (query engine table scan) that need to iterate every row directly.
func (c *Collection) Prefix() []byte { return c.prefix() }

// Key returns the physical key for a given document id.
func (c *Collection) Key(id string) []byte { return c.key(id) }

// DecodeDoc/EncodeDoc are exported so callers holding raw bytes from a
// Txn.NewIterator scan (e.g. the query engine's table scan) can decode
// them the same way Get does.
func DecodeDoc(b []byte) (map[string]any, error) { return decodeDoc(b) }
func EncodeDoc(doc map[string]any) ([]byte, error) { return encodeDoc(doc) }

// Get fetches a single document in its own read-only transaction.
func (c *Collection) Get(id string) (map[string]any, bool, error) {
	var doc map[string]any
	var ok bool
	err := c.View(func(txn *Txn) error {
		var err error
		doc, ok, err = txn.Get(id)
		return err
	})
	return doc, ok, err
}

// InsertFirstVersion inserts doc under id, failing with ErrDuplicateKey
// if a row already exists — used for the _v==1 branch of the commit
// coordinator's snapshot advance (§4.4). A transaction conflict from a
// truly concurrent insert racing on the same id (§5: Badger's
// transaction-conflict detection) is indistinguishable from a duplicate
// key at this layer and is reported the same way.
func (c *Collection) InsertFirstVersion(id string, doc map[string]any) error {
	err := c.Update(func(txn *Txn) error {
		_, ok, err := txn.Get(id)
		if err != nil {
			return err
		}
		if ok {
			return ErrDuplicateKey
		}
		return txn.Set(id, doc)
	})
	if errors.Is(err, store.ErrConflict) {
		return ErrDuplicateKey
	}
	return err
}

// CAS conditionally replaces the document under id with doc, succeeding
// only if the existing row's "_v" field equals expectedV. It reports
// applied=false (with no error) when the row is absent, when its version
// does not match, or when a truly concurrent transaction on the same id
// wins the underlying engine's optimistic-concurrency check (§5) —
// exactly the "exactly one row modified" contract §4.4 requires from the
// underlying store's conditional replace.
func (c *Collection) CAS(id string, expectedV int64, doc map[string]any) (applied bool, err error) {
	err = c.Update(func(txn *Txn) error {
		existing, ok, err := txn.Get(id)
		if err != nil {
			return err
		}
		if !ok {
			applied = false
			return nil
		}
		if currentVersion(existing) != expectedV {
			applied = false
			return nil
		}
		if err := txn.Set(id, doc); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if errors.Is(err, store.ErrConflict) {
		return false, nil
	}
	return applied, err
}

func currentVersion(doc map[string]any) int64 {
	v, ok := doc["_v"]
	if !ok {
		return -1
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return -1
	}
}

// Delete removes the document under id in its own transaction.
func (c *Collection) Delete(id string) error {
	return c.Update(func(txn *Txn) error {
		return txn.Delete(id)
	})
}

// ScanAll decodes and visits every document row in the collection,
// stopping early if fn returns keepGoing=false.
func (c *Collection) ScanAll(fn func(doc map[string]any) (keepGoing bool, err error)) error {
	return c.View(func(txn *Txn) error {
		prefix := c.prefix()
		it := txn.NewIterator(store.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			_, val, err := it.Item()
			if err != nil {
				return err
			}
			doc, err := decodeDoc(val)
			if err != nil {
				return err
			}
			keepGoing, err := fn(doc)
			if err != nil {
				return err
			}
			if !keepGoing {
				return nil
			}
		}
		return nil
	})
}
