package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ledger-reconciler/internal/models"
)

// TransferRepository handles transfer persistence.
// Transfer ids are globally unique across all wallets; appends skip any
// id already present.
type TransferRepository struct {
	store *Store
}

// NewTransferRepository creates a new transfer repository
func NewTransferRepository(store *Store) *TransferRepository {
	return &TransferRepository{store: store}
}

// AppendDeduped writes the transfers whose ids are not yet stored and
// returns how many records were actually added. The whole batch is written
// in one transaction.
func (r *TransferRepository) AppendDeduped(transfers []*models.Transfer) (int, error) {
	if len(transfers) == 0 {
		return 0, nil
	}

	added := 0
	err := r.store.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(transfersBucket)
		for _, transfer := range transfers {
			if transfer.ID == "" {
				return fmt.Errorf("transfer without id (hash %s)", transfer.Hash)
			}
			if bucket.Get([]byte(transfer.ID)) != nil {
				continue
			}
			if transfer.CreatedAt.IsZero() {
				transfer.CreatedAt = time.Now().UTC()
			}
			data, err := json.Marshal(transfer)
			if err != nil {
				return fmt.Errorf("failed to encode transfer %s: %w", transfer.ID, err)
			}
			if err := bucket.Put([]byte(transfer.ID), data); err != nil {
				return err
			}
			added++
		}
		return nil
	})
	return added, err
}

// Exists reports whether a transfer id is already stored
func (r *TransferRepository) Exists(id string) (bool, error) {
	return r.store.exists(transfersBucket, id)
}

// ListByWallet returns a wallet's transfers ordered by block number, then id
func (r *TransferRepository) ListByWallet(address string) ([]*models.Transfer, error) {
	address = models.NormalizeAddress(address)

	var transfers []*models.Transfer
	err := r.store.forEach(transfersBucket, func(_ string, value []byte) error {
		var transfer models.Transfer
		if err := json.Unmarshal(value, &transfer); err != nil {
			return fmt.Errorf("failed to decode transfer: %w", err)
		}
		if models.NormalizeAddress(transfer.WalletAddress) == address {
			transfers = append(transfers, &transfer)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(transfers, func(i, j int) bool {
		if transfers[i].BlockNumber != transfers[j].BlockNumber {
			return transfers[i].BlockNumber < transfers[j].BlockNumber
		}
		return transfers[i].ID < transfers[j].ID
	})
	return transfers, nil
}

// CountByWallet returns the number of stored transfers for a wallet
func (r *TransferRepository) CountByWallet(address string) (int, error) {
	transfers, err := r.ListByWallet(address)
	if err != nil {
		return 0, err
	}
	return len(transfers), nil
}

// MaxBlockNumber returns the highest block number among a wallet's stored
// transfers. Found is false when the wallet has no transfers yet, in which
// case an import starts from genesis.
func (r *TransferRepository) MaxBlockNumber(address string) (max uint64, found bool, err error) {
	transfers, err := r.ListByWallet(address)
	if err != nil {
		return 0, false, err
	}
	for _, transfer := range transfers {
		if transfer.BlockNumber >= max {
			max = transfer.BlockNumber
			found = true
		}
	}
	return max, found, nil
}

// UniqueHashes returns the distinct transaction hashes among a wallet's
// transfers, in first-seen order
func (r *TransferRepository) UniqueHashes(address string) ([]string, error) {
	transfers, err := r.ListByWallet(address)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(transfers))
	var hashes []string
	for _, transfer := range transfers {
		hash := strings.ToLower(transfer.Hash)
		if hash == "" || seen[hash] {
			continue
		}
		seen[hash] = true
		hashes = append(hashes, transfer.Hash)
	}
	return hashes, nil
}

// AssetRef identifies a priced asset appearing in a wallet's transfers
type AssetRef struct {
	Asset           string
	ContractAddress string
}

// UniqueAssets returns the distinct (asset, contract) pairs among a wallet's
// transfers, in first-seen order
func (r *TransferRepository) UniqueAssets(address string) ([]AssetRef, error) {
	transfers, err := r.ListByWallet(address)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var assets []AssetRef
	for _, transfer := range transfers {
		key := models.PriceAssetKey(transfer.Asset, transfer.ContractAddress)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		assets = append(assets, AssetRef{
			Asset:           transfer.Asset,
			ContractAddress: transfer.ContractAddress,
		})
	}
	return assets, nil
}
