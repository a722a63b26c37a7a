// Package badgerkv persists application state in an embedded Badger
// database. Keys are namespaced so each collection lives under its own
// prefix.
package badgerkv

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
)

type Store struct {
	db *badger.DB
}

func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(dataDir, "badger"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// fullKey joins namespace and key with a separator so one namespace can
// never shadow another that shares its prefix.
func fullKey(namespace, key string) []byte {
	return []byte(namespace + "/" + key)
}

func (s *Store) Get(namespace, key string) ([]byte, error) {
	var value []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fullKey(namespace, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = append([]byte{}, val...)
			return nil
		})
	})

	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("key not found: %s", key)
	}

	return value, err
}

func (s *Store) Put(namespace, key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(fullKey(namespace, key), value)
	})
}

func (s *Store) Delete(namespace, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(fullKey(namespace, key))
	})
}

func (s *Store) List(namespace, prefix string) ([]string, error) {
	var keys []string

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		nsPrefix := namespace + "/"
		full := []byte(nsPrefix + prefix)
		for it.Seek(full); it.ValidForPrefix(full); it.Next() {
			key := string(it.Item().Key())
			keys = append(keys, key[len(nsPrefix):])
		}

		return nil
	})

	return keys, err
}
