// internal/storage/badger_store.go
package storage

import (
	stderrors "errors"
	"fmt"
	"strings"

	"lvcs/internal/errors"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps raw records under a key prefix.
type BadgerStore struct {
	db     *badger.DB
	prefix string
}

func NewBadgerStore(db *badger.DB, prefix string) *BadgerStore {
	return &BadgerStore{
		db:     db,
		prefix: prefix,
	}
}

// RevisionKey formats a numeric key so lexical order is numeric order.
func RevisionKey(rev int) string {
	return fmt.Sprintf("%020d", rev)
}

func (s *BadgerStore) makeKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", s.prefix, id))
}

func (s *BadgerStore) stripPrefix(key []byte) string {
	return strings.TrimPrefix(string(key), fmt.Sprintf("%s:", s.prefix))
}

// Txn is one read-write badger transaction shared by several stores.
type Txn struct {
	txn *badger.Txn
}

// Update runs fn in a single transaction on db. Writes made through the
// *In methods of any store on db commit together or not at all.
func Update(db *badger.DB, fn func(*Txn) error) error {
	return wrap(db.Update(func(txn *badger.Txn) error {
		return fn(&Txn{txn: txn})
	}), "committing transaction")
}

// Create stores value under id and fails if id already exists.
func (s *BadgerStore) Create(id string, value []byte) error {
	return Update(s.db, func(t *Txn) error {
		return s.CreateIn(t, id, value)
	})
}

// CreateIn is Create inside t.
func (s *BadgerStore) CreateIn(t *Txn, id string, value []byte) error {
	if id == "" {
		return errors.StructuralViolation("record id cannot be empty")
	}

	key := s.makeKey(id)
	_, err := t.txn.Get(key)
	if err == nil {
		return errors.StructuralViolation("record already exists: %s:%s", s.prefix, id)
	} else if err != badger.ErrKeyNotFound {
		return wrap(err, "creating record")
	}
	return wrap(t.txn.Set(key, value), "creating record")
}

// Put stores value under id, replacing any existing record.
func (s *BadgerStore) Put(id string, value []byte) error {
	key := s.makeKey(id)
	return wrap(s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	}), "storing record")
}

func (s *BadgerStore) Get(id string) ([]byte, error) {
	key := s.makeKey(id)

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})

	if err == badger.ErrKeyNotFound {
		return nil, errors.NotFound("record not found: %s:%s", s.prefix, id)
	}
	return value, wrap(err, "reading record")
}

func (s *BadgerStore) Delete(id string) error {
	return Update(s.db, func(t *Txn) error {
		return s.DeleteIn(t, id)
	})
}

// DeleteIn is Delete inside t.
func (s *BadgerStore) DeleteIn(t *Txn, id string) error {
	key := s.makeKey(id)
	_, err := t.txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return errors.NotFound("record not found: %s:%s", s.prefix, id)
	} else if err != nil {
		return wrap(err, "deleting record")
	}
	return wrap(t.txn.Delete(key), "deleting record")
}

// Scan calls fn for every record in key order. Returning false stops the scan.
func (s *BadgerStore) Scan(fn func(id string, value []byte) (bool, error)) error {
	return s.scan(false, fn)
}

// ScanReverse is Scan in descending key order.
func (s *BadgerStore) ScanReverse(fn func(id string, value []byte) (bool, error)) error {
	return s.scan(true, fn)
}

func (s *BadgerStore) scan(reverse bool, fn func(id string, value []byte) (bool, error)) error {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = reverse
		prefix := []byte(s.prefix + ":")
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := prefix
		if reverse {
			// seek past every key carrying the prefix
			seek = append([]byte(s.prefix+":"), 0xff)
		}
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			more, err := fn(s.stripPrefix(item.Key()), value)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
		return nil
	})
	return wrap(err, "scanning records")
}

// wrap turns badger failures into IO_FAILURE and lets typed errors through.
func wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var typed *errors.Error
	if stderrors.As(err, &typed) {
		return err
	}
	return errors.IOFailure(message, err)
}
