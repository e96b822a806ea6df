// Package storage provides the embedded record store and typed repositories
// over it. One bucket exists per record kind; all mutations are keyed
// appends or upserts, never read-modify-write on aggregate state.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names, one per record kind.
var (
	walletsBucket   = []byte("wallets")
	transfersBucket = []byte("transfers")
	gasBucket       = []byte("gas_records")
	pricesBucket    = []byte("prices")
	rulesBucket     = []byte("classifications")
	balancesBucket  = []byte("balances")
)

var allBuckets = [][]byte{
	walletsBucket, transfersBucket, gasBucket,
	pricesBucket, rulesBucket, balancesBucket,
}

// Store wraps the bbolt database backing all repositories
type Store struct {
	db   *bolt.DB
	path string
}

// Open opens (or creates) the store at path and ensures all buckets exist
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the store file path
func (s *Store) Path() string {
	return s.path
}

// put marshals v as JSON and writes it under key in the named bucket
func (s *Store) put(bucket []byte, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

// get reads the record under key into out; returns false when absent
func (s *Store) get(bucket []byte, key string, out interface{}) (bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucket).Get([]byte(key)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode record %s: %w", key, err)
	}
	return true, nil
}

// delete removes the record under key; deleting a missing key is not an error
func (s *Store) delete(bucket []byte, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}

// exists reports whether key is present in the named bucket
func (s *Store) exists(bucket []byte, key string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucket).Get([]byte(key)) != nil
		return nil
	})
	return found, err
}

// forEach iterates all records in the named bucket in key order
func (s *Store) forEach(bucket []byte, fn func(key string, value []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			return fn(string(k), v)
		})
	})
}
