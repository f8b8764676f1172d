package store

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/rlp"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a key has no value
var ErrNotFound = errors.New("key not found")

var errReadOnly = errors.New("write in read-only transaction")

// Store is a chain's state database. Every Update runs as one badger
// transaction: it either commits all of its writes or none of them.
type Store struct {
	db  *badger.DB
	log *zap.Logger
}

// Open opens a store rooted at dir. An empty dir keeps everything in memory.
func Open(dir string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	opts := badger.DefaultOptions(dir).WithLogger(&badgerLogger{log: log.Named("badger").Sugar()})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %q: %w", dir, err)
	}

	return &Store{db: db, log: log}, nil
}

// OpenInMemory opens a throwaway in-memory store
func OpenInMemory(log *zap.Logger) (*Store, error) {
	return Open("", log)
}

// Update runs fn in a read-write transaction. Writes become visible only if
// fn returns nil.
func (s *Store) Update(fn func(tx *Tx) error) error {
	return s.db.Update(func(txn *badger.Txn) error {
		tx := newTx(txn, false)
		if err := fn(tx); err != nil {
			return err
		}
		return tx.flush()
	})
}

// View runs fn in a read-only transaction
func (s *Store) View(fn func(tx *Tx) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		return fn(newTx(txn, true))
	})
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx buffers writes on top of a badger transaction so that a caller can roll
// back part of its work with a Savepoint before the transaction commits.
type Tx struct {
	txn      *badger.Txn
	writes   map[string]write
	readOnly bool
}

type write struct {
	value   []byte
	deleted bool
}

// Savepoint is a snapshot of a transaction's pending writes
type Savepoint struct {
	writes map[string]write
}

func newTx(txn *badger.Txn, readOnly bool) *Tx {
	return &Tx{
		txn:      txn,
		writes:   make(map[string]write),
		readOnly: readOnly,
	}
}

// Get returns the value for key or ErrNotFound
func (t *Tx) Get(key []byte) ([]byte, error) {
	if w, ok := t.writes[string(key)]; ok {
		if w.deleted {
			return nil, ErrNotFound
		}
		return append([]byte{}, w.value...), nil
	}

	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}
	return item.ValueCopy(nil)
}

// Has reports whether key has a value
func (t *Tx) Has(key []byte) (bool, error) {
	_, err := t.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Put stages a write
func (t *Tx) Put(key, value []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	t.writes[string(key)] = write{value: append([]byte{}, value...)}
	return nil
}

// Delete stages the removal of key
func (t *Tx) Delete(key []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	t.writes[string(key)] = write{deleted: true}
	return nil
}

// GetRLP decodes the RLP value stored at key into v
func (t *Tx) GetRLP(key []byte, v interface{}) error {
	raw, err := t.Get(key)
	if err != nil {
		return err
	}
	if err := rlp.DecodeBytes(raw, v); err != nil {
		return fmt.Errorf("failed to decode %x: %w", key, err)
	}
	return nil
}

// PutRLP RLP-encodes v and stages it at key
func (t *Tx) PutRLP(key []byte, v interface{}) error {
	raw, err := rlp.EncodeToBytes(v)
	if err != nil {
		return fmt.Errorf("failed to encode %x: %w", key, err)
	}
	return t.Put(key, raw)
}

// Decode decodes an RLP value read through Iterate
func Decode(raw []byte, v interface{}) error {
	if err := rlp.DecodeBytes(raw, v); err != nil {
		return fmt.Errorf("failed to decode value: %w", err)
	}
	return nil
}

// Savepoint captures the pending writes
func (t *Tx) Savepoint() Savepoint {
	return Savepoint{writes: copyWrites(t.writes)}
}

// RollbackTo discards every write staged after sp was taken
func (t *Tx) RollbackTo(sp Savepoint) {
	t.writes = copyWrites(sp.writes)
}

// Iterate calls fn for every key with prefix in ascending key order,
// including writes staged in this transaction.
func (t *Tx) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	merged := make(map[string][]byte)

	it := t.txn.NewIterator(badger.DefaultIteratorOptions)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		v, err := item.ValueCopy(nil)
		if err != nil {
			it.Close()
			return fmt.Errorf("failed to read value: %w", err)
		}
		merged[string(item.KeyCopy(nil))] = v
	}
	it.Close()

	for k, w := range t.writes {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if w.deleted {
			delete(merged, k)
			continue
		}
		merged[k] = w.value
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := fn([]byte(k), merged[k]); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tx) flush() error {
	for k, w := range t.writes {
		var err error
		if w.deleted {
			err = t.txn.Delete([]byte(k))
		} else {
			err = t.txn.Set([]byte(k), w.value)
		}
		if err != nil {
			return fmt.Errorf("failed to write key: %w", err)
		}
	}
	return nil
}

func copyWrites(src map[string]write) map[string]write {
	dst := make(map[string]write, len(src))
	for k, w := range src {
		dst[k] = w
	}
	return dst
}

// badgerLogger routes badger's warnings and errors through zap. Its info and
// debug output (table and compaction dumps) is dropped.
type badgerLogger struct {
	log *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) { l.log.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...interface{}) { l.log.Warnf(format, args...) }
func (l *badgerLogger) Infof(string, ...interface{}) {}
func (l *badgerLogger) Debugf(string, ...interface{}) {}
