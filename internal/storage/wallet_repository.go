package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ledger-reconciler/internal/models"
	"github.com/ledger-reconciler/internal/types"
)

// WalletRepository handles wallet persistence
type WalletRepository struct {
	store *Store
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(store *Store) *WalletRepository {
	return &WalletRepository{store: store}
}

// Create adds a wallet. The address is normalized to lowercase and must be
// unique and well-formed.
func (r *WalletRepository) Create(wallet *models.Wallet) error {
	address := models.NormalizeAddress(wallet.Address)
	if !types.IsValidAddress(address) {
		return fmt.Errorf("invalid wallet address: %s", wallet.Address)
	}

	exists, err := r.store.exists(walletsBucket, address)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("wallet already exists: %s", address)
	}

	wallet.Address = address
	if wallet.CreatedAt.IsZero() {
		wallet.CreatedAt = time.Now().UTC()
	}
	return r.store.put(walletsBucket, address, wallet)
}

// Get returns the wallet for an address, or nil when absent
func (r *WalletRepository) Get(address string) (*models.Wallet, error) {
	var wallet models.Wallet
	found, err := r.store.get(walletsBucket, models.NormalizeAddress(address), &wallet)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &wallet, nil
}

// List returns all wallets in address order
func (r *WalletRepository) List() ([]*models.Wallet, error) {
	var wallets []*models.Wallet
	err := r.store.forEach(walletsBucket, func(_ string, value []byte) error {
		var wallet models.Wallet
		if err := json.Unmarshal(value, &wallet); err != nil {
			return fmt.Errorf("failed to decode wallet: %w", err)
		}
		wallets = append(wallets, &wallet)
		return nil
	})
	return wallets, err
}

// UpdateName renames a wallet
func (r *WalletRepository) UpdateName(address, name string) error {
	wallet, err := r.Get(address)
	if err != nil {
		return err
	}
	if wallet == nil {
		return fmt.Errorf("wallet not found: %s", address)
	}
	wallet.Name = name
	return r.store.put(walletsBucket, wallet.Address, wallet)
}

// UpdateLastSync records the completion time of a full successful import pass
func (r *WalletRepository) UpdateLastSync(address string, at time.Time) error {
	wallet, err := r.Get(address)
	if err != nil {
		return err
	}
	if wallet == nil {
		return fmt.Errorf("wallet not found: %s", address)
	}
	wallet.LastSyncAt = &at
	return r.store.put(walletsBucket, wallet.Address, wallet)
}

// Delete removes a wallet record. Its transfers, gas records, and balances
// are kept; the ledger remains reviewable after untracking.
func (r *WalletRepository) Delete(address string) error {
	return r.store.delete(walletsBucket, models.NormalizeAddress(address))
}
