package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ledger-reconciler/internal/models"
	"github.com/ledger-reconciler/internal/numeric"
)

// BalanceRepository handles token balance persistence. Rows are keyed by
// (wallet, symbol, network) so a refresh replaces the previous snapshot.
type BalanceRepository struct {
	store *Store
}

// NewBalanceRepository creates a new balance repository
func NewBalanceRepository(store *Store) *BalanceRepository {
	return &BalanceRepository{store: store}
}

// Upsert writes a batch of balance rows, replacing any with matching keys
func (r *BalanceRepository) Upsert(balances []*models.TokenBalance) error {
	if len(balances) == 0 {
		return nil
	}

	return r.store.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(balancesBucket)
		for _, balance := range balances {
			if balance.WalletAddress == "" || balance.Symbol == "" {
				return fmt.Errorf("balance row without wallet address or symbol")
			}
			if balance.UpdatedAt.IsZero() {
				balance.UpdatedAt = time.Now().UTC()
			}
			data, err := json.Marshal(balance)
			if err != nil {
				return fmt.Errorf("failed to encode balance %s: %w", balance.Key(), err)
			}
			if err := bucket.Put([]byte(balance.Key()), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListByWallet returns a wallet's balance rows sorted by descending value
func (r *BalanceRepository) ListByWallet(address string) ([]*models.TokenBalance, error) {
	prefix := models.NormalizeAddress(address) + "|"

	var balances []*models.TokenBalance
	err := r.store.forEach(balancesBucket, func(key string, value []byte) error {
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		var balance models.TokenBalance
		if err := json.Unmarshal(value, &balance); err != nil {
			return fmt.Errorf("failed to decode balance: %w", err)
		}
		balances = append(balances, &balance)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(balances, func(i, j int) bool {
		vi := numeric.ParseDecimal(balances[i].Value)
		vj := numeric.ParseDecimal(balances[j].Value)
		if !vi.Equal(vj) {
			return vi.GreaterThan(vj)
		}
		return balances[i].Symbol < balances[j].Symbol
	})
	return balances, nil
}

// DeleteByWallet removes all balance rows for a wallet
func (r *BalanceRepository) DeleteByWallet(address string) error {
	prefix := models.NormalizeAddress(address) + "|"

	return r.store.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(balancesBucket)
		cursor := bucket.Cursor()
		var stale [][]byte
		for key, _ := cursor.Seek([]byte(prefix)); key != nil && strings.HasPrefix(string(key), prefix); key, _ = cursor.Next() {
			stale = append(stale, append([]byte(nil), key...))
		}
		for _, key := range stale {
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}
