package storage

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/ledger-reconciler/internal/models"
)

// RuleRepository handles classification rule persistence. Rules are keyed
// by a monotonically increasing sequence so listing preserves creation
// order, which makes first-match classification deterministic.
type RuleRepository struct {
	store *Store
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(store *Store) *RuleRepository {
	return &RuleRepository{store: store}
}

func ruleSeqKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%020d", seq))
}

// Create validates and stores a rule, assigning it an id
func (r *RuleRepository) Create(rule *models.AddressRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.WalletAddress != "" {
		rule.WalletAddress = models.NormalizeAddress(rule.WalletAddress)
	}
	if rule.ContractAddress != "" {
		rule.ContractAddress = models.NormalizeAddress(rule.ContractAddress)
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	return r.store.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(rulesBucket)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(rule)
		if err != nil {
			return fmt.Errorf("failed to encode rule %s: %w", rule.ID, err)
		}
		return bucket.Put(ruleSeqKey(seq), data)
	})
}

// List returns all rules in creation order
func (r *RuleRepository) List() ([]*models.AddressRule, error) {
	var rules []*models.AddressRule
	err := r.store.forEach(rulesBucket, func(_ string, value []byte) error {
		var rule models.AddressRule
		if err := json.Unmarshal(value, &rule); err != nil {
			return fmt.Errorf("failed to decode rule: %w", err)
		}
		rules = append(rules, &rule)
		return nil
	})
	return rules, err
}

// Get returns the rule with the given id, or nil when absent
func (r *RuleRepository) Get(id string) (*models.AddressRule, error) {
	rules, err := r.List()
	if err != nil {
		return nil, err
	}
	for _, rule := range rules {
		if rule.ID == id {
			return rule, nil
		}
	}
	return nil, nil
}

// Update validates and replaces the rule with the given id in place,
// preserving its position in the match order
func (r *RuleRepository) Update(rule *models.AddressRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.WalletAddress != "" {
		rule.WalletAddress = models.NormalizeAddress(rule.WalletAddress)
	}
	if rule.ContractAddress != "" {
		rule.ContractAddress = models.NormalizeAddress(rule.ContractAddress)
	}

	return r.store.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(rulesBucket)
		cursor := bucket.Cursor()
		for key, value := cursor.First(); key != nil; key, value = cursor.Next() {
			var stored models.AddressRule
			if err := json.Unmarshal(value, &stored); err != nil {
				return fmt.Errorf("failed to decode rule: %w", err)
			}
			if stored.ID != rule.ID {
				continue
			}
			data, err := json.Marshal(rule)
			if err != nil {
				return fmt.Errorf("failed to encode rule %s: %w", rule.ID, err)
			}
			keyCopy := append([]byte(nil), key...)
			return bucket.Put(keyCopy, data)
		}
		return fmt.Errorf("rule %s not found", rule.ID)
	})
}

// Delete removes the rule with the given id. Deleting an absent rule is
// not an error.
func (r *RuleRepository) Delete(id string) error {
	return r.store.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(rulesBucket)
		cursor := bucket.Cursor()
		for key, value := cursor.First(); key != nil; key, value = cursor.Next() {
			var stored models.AddressRule
			if err := json.Unmarshal(value, &stored); err != nil {
				return fmt.Errorf("failed to decode rule: %w", err)
			}
			if stored.ID == id {
				return bucket.Delete(key)
			}
		}
		return nil
	})
}
