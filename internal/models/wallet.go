package models

import (
	"strings"
	"time"
)

// Wallet represents a tracked wallet address
type Wallet struct {
	Address    string     `json:"address"` // stored lowercase, unique
	Name       string     `json:"name,omitempty"`
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"` // set only after a full successful import pass
	CreatedAt  time.Time  `json:"createdAt"`
}

// NormalizeAddress lowercases an address for storage and comparison
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// SameAddress compares two addresses case-insensitively
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
