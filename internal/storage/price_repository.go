package storage

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ledger-reconciler/internal/models"
	"github.com/ledger-reconciler/internal/types"
)

// PriceRepository handles historical price persistence. Points are keyed by
// (asset, network, timestamp) so a merge with a matching tuple replaces the
// stored point, and the timestamp suffix keeps keys ordered for range scans.
type PriceRepository struct {
	store *Store
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(store *Store) *PriceRepository {
	return &PriceRepository{store: store}
}

// priceKey orders points by asset, network, then timestamp. The zero-padded
// unix timestamp keeps lexicographic and chronological order aligned.
func priceKey(assetKey string, network types.Network, ts time.Time) []byte {
	return []byte(fmt.Sprintf("%s|%s|%020d", assetKey, network, ts.Unix()))
}

func priceRangeBounds(assetKey string, network types.Network, from, to time.Time) (min, max []byte) {
	return priceKey(assetKey, network, from), priceKey(assetKey, network, to)
}

// MergeSeries upserts a series of price points, replacing any stored point
// with a matching (asset, network, timestamp) tuple. Returns the number of
// points written.
func (r *PriceRepository) MergeSeries(points []*models.HistoricalPrice) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	written := 0
	err := r.store.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(pricesBucket)
		for _, point := range points {
			if point.AssetKey() == "" {
				return fmt.Errorf("price point without symbol or contract address")
			}
			if point.CreatedAt.IsZero() {
				point.CreatedAt = time.Now().UTC()
			}
			data, err := json.Marshal(point)
			if err != nil {
				return fmt.Errorf("failed to encode price point: %w", err)
			}
			if err := bucket.Put(priceKey(point.AssetKey(), point.Network, point.Timestamp), data); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	return written, err
}

// FindNear returns the stored point for the asset closest to the target
// timestamp within the tolerance window, or nil when no point qualifies.
// Ties go to the earlier point.
func (r *PriceRepository) FindNear(symbol, contractAddress string, network types.Network, target time.Time, tolerance time.Duration) (*models.HistoricalPrice, error) {
	assetKey := models.PriceAssetKey(symbol, contractAddress)
	if assetKey == "" {
		return nil, nil
	}
	min, max := priceRangeBounds(assetKey, network, target.Add(-tolerance), target.Add(tolerance))

	var best *models.HistoricalPrice
	var bestDistance time.Duration
	err := r.store.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(pricesBucket).Cursor()
		for key, value := cursor.Seek(min); key != nil && string(key) <= string(max); key, value = cursor.Next() {
			var point models.HistoricalPrice
			if err := json.Unmarshal(value, &point); err != nil {
				return fmt.Errorf("failed to decode price point: %w", err)
			}
			distance := point.Timestamp.Sub(target)
			if distance < 0 {
				distance = -distance
			}
			if distance > tolerance {
				continue
			}
			if best == nil || distance < bestDistance {
				copied := point
				best = &copied
				bestDistance = distance
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return best, nil
}

// ListRange returns the stored points for an asset within [from, to]
// in chronological order
func (r *PriceRepository) ListRange(symbol, contractAddress string, network types.Network, from, to time.Time) ([]*models.HistoricalPrice, error) {
	assetKey := models.PriceAssetKey(symbol, contractAddress)
	if assetKey == "" {
		return nil, nil
	}
	min, max := priceRangeBounds(assetKey, network, from, to)

	var points []*models.HistoricalPrice
	err := r.store.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(pricesBucket).Cursor()
		for key, value := cursor.Seek(min); key != nil && string(key) <= string(max); key, value = cursor.Next() {
			var point models.HistoricalPrice
			if err := json.Unmarshal(value, &point); err != nil {
				return fmt.Errorf("failed to decode price point: %w", err)
			}
			points = append(points, &point)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}
