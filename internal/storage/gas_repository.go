package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ledger-reconciler/internal/models"
)

// GasRecordRepository handles gas record persistence. One record is kept
// per unique transaction hash.
type GasRecordRepository struct {
	store *Store
}

// NewGasRecordRepository creates a new gas record repository
func NewGasRecordRepository(store *Store) *GasRecordRepository {
	return &GasRecordRepository{store: store}
}

// Exists reports whether a gas record for the hash is already stored
func (r *GasRecordRepository) Exists(hash string) (bool, error) {
	return r.store.exists(gasBucket, models.GasRecordID(hash))
}

// AppendDeduped writes the records whose hashes are not yet stored and
// returns how many were actually added
func (r *GasRecordRepository) AppendDeduped(records []*models.GasRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	added := 0
	err := r.store.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(gasBucket)
		for _, record := range records {
			if record.Hash == "" {
				return fmt.Errorf("gas record without transaction hash")
			}
			if record.ID == "" {
				record.ID = models.GasRecordID(record.Hash)
			}
			if bucket.Get([]byte(record.ID)) != nil {
				continue
			}
			if record.CreatedAt.IsZero() {
				record.CreatedAt = time.Now().UTC()
			}
			data, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("failed to encode gas record %s: %w", record.ID, err)
			}
			if err := bucket.Put([]byte(record.ID), data); err != nil {
				return err
			}
			added++
		}
		return nil
	})
	return added, err
}

// Get returns the gas record for a transaction hash, or nil when absent
func (r *GasRecordRepository) Get(hash string) (*models.GasRecord, error) {
	var record models.GasRecord
	found, err := r.store.get(gasBucket, models.GasRecordID(hash), &record)
	if err != nil || !found {
		return nil, err
	}
	return &record, nil
}

// ListByWallet returns a wallet's gas records ordered by block number
func (r *GasRecordRepository) ListByWallet(address string) ([]*models.GasRecord, error) {
	address = models.NormalizeAddress(address)

	var records []*models.GasRecord
	err := r.store.forEach(gasBucket, func(_ string, value []byte) error {
		var record models.GasRecord
		if err := json.Unmarshal(value, &record); err != nil {
			return fmt.Errorf("failed to decode gas record: %w", err)
		}
		if models.NormalizeAddress(record.WalletAddress) == address {
			records = append(records, &record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].BlockNumber != records[j].BlockNumber {
			return records[i].BlockNumber < records[j].BlockNumber
		}
		return records[i].Hash < records[j].Hash
	})
	return records, nil
}

// MissingHashes returns the transaction hashes among the given set that
// have no stored gas record yet
func (r *GasRecordRepository) MissingHashes(hashes []string) ([]string, error) {
	var missing []string
	err := r.store.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(gasBucket)
		for _, hash := range hashes {
			if bucket.Get([]byte(models.GasRecordID(hash))) == nil {
				missing = append(missing, hash)
			}
		}
		return nil
	})
	return missing, err
}
