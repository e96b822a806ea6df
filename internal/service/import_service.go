package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ledger-reconciler/internal/adapter"
	"github.com/ledger-reconciler/internal/errors"
	"github.com/ledger-reconciler/internal/logging"
	"github.com/ledger-reconciler/internal/models"
	"github.com/ledger-reconciler/internal/numeric"
	"github.com/ledger-reconciler/internal/storage"
	"github.com/ledger-reconciler/internal/types"
)

// Progress describes one step of a running import
type Progress struct {
	Stage            types.ImportStage
	Current          int
	Total            int // 0 when the total is not known up front
	CurrentItemLabel string
	StartedAt        time.Time
}

// ProgressFunc receives progress events in strict stage and item order.
// A nil callback disables reporting.
type ProgressFunc func(Progress)

// ImportConfig holds import pipeline tuning
type ImportConfig struct {
	PageSize        int
	PriceTolerance  time.Duration
	PriceLookback   time.Duration
	PriceLookahead  time.Duration
	PriceResolution time.Duration
}

func (c *ImportConfig) applyDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = 1000
	}
	if c.PriceTolerance <= 0 {
		c.PriceTolerance = 5 * time.Minute
	}
	if c.PriceLookback <= 0 {
		c.PriceLookback = 2 * time.Minute
	}
	if c.PriceLookahead <= 0 {
		c.PriceLookahead = 20 * time.Minute
	}
	if c.PriceResolution <= 0 {
		c.PriceResolution = 5 * time.Minute
	}
}

// ImportService brings the local record set for a wallet up to date with
// the external source. Stages run strictly sequentially: transfers, gas,
// prices, then finalization. A failed stage aborts the wallet's import
// but never rolls back data persisted by earlier stages.
type ImportService struct {
	wallets   *storage.WalletRepository
	transfers *storage.TransferRepository
	gas       *storage.GasRecordRepository
	prices    *storage.PriceRepository
	rules     *storage.RuleRepository
	chain     adapter.ChainDataSource
	priceSrc  adapter.PriceSource
	cfg       ImportConfig
}

// NewImportService creates an import service
func NewImportService(
	wallets *storage.WalletRepository,
	transfers *storage.TransferRepository,
	gas *storage.GasRecordRepository,
	prices *storage.PriceRepository,
	rules *storage.RuleRepository,
	chain adapter.ChainDataSource,
	priceSrc adapter.PriceSource,
	cfg ImportConfig,
) *ImportService {
	cfg.applyDefaults()
	return &ImportService{
		wallets:   wallets,
		transfers: transfers,
		gas:       gas,
		prices:    prices,
		rules:     rules,
		chain:     chain,
		priceSrc:  priceSrc,
		cfg:       cfg,
	}
}

// ImportWallet runs the full pipeline for one wallet. Re-running a synced
// wallet adds zero records and still refreshes lastSyncAt.
func (s *ImportService) ImportWallet(ctx context.Context, network types.Network, address string, progress ProgressFunc) error {
	address = models.NormalizeAddress(address)
	logger := logging.FromContext(ctx).WithField("wallet", address).WithField("network", string(network))

	wallet, err := s.wallets.Get(address)
	if err != nil {
		return errors.NewStorageError("get wallet", err)
	}
	if wallet == nil {
		return errors.NewNotFoundError("wallet", address)
	}

	startedAt := time.Now()
	emit := func(stage types.ImportStage, current, total int, label string) {
		if progress != nil {
			progress(Progress{
				Stage:            stage,
				Current:          current,
				Total:            total,
				CurrentItemLabel: label,
				StartedAt:        startedAt,
			})
		}
	}

	if err := s.runTransfersStage(ctx, network, address, emit); err != nil {
		return errors.NewStageError(address, types.StageTransfers, err)
	}
	if err := s.runGasStage(ctx, network, address, emit); err != nil {
		return errors.NewStageError(address, types.StageGas, err)
	}
	if err := s.runPricesStage(ctx, network, address, emit); err != nil {
		return errors.NewStageError(address, types.StagePrices, err)
	}

	if err := s.wallets.UpdateLastSync(address, time.Now().UTC()); err != nil {
		return errors.NewStorageError("update last sync", err)
	}
	emit(types.StageComplete, 1, 1, address)
	logger.Info("import complete")
	return nil
}

// ImportResult reports the per-wallet outcome of a batch import
type ImportResult struct {
	Wallet string
	Err    error
}

// ImportAll runs the pipeline for every tracked wallet. A failed wallet
// does not stop the batch; each wallet's outcome is reported separately.
func (s *ImportService) ImportAll(ctx context.Context, network types.Network, progress ProgressFunc) ([]ImportResult, error) {
	wallets, err := s.wallets.List()
	if err != nil {
		return nil, errors.NewStorageError("list wallets", err)
	}

	logger := logging.FromContext(ctx)
	results := make([]ImportResult, 0, len(wallets))
	for _, wallet := range wallets {
		err := s.ImportWallet(ctx, network, wallet.Address, progress)
		if err != nil {
			logger.WithField("wallet", wallet.Address).WithError(err).Error("wallet import failed")
		}
		results = append(results, ImportResult{Wallet: wallet.Address, Err: err})
		if ctx.Err() != nil {
			break
		}
	}
	return results, nil
}

// runTransfersStage pages through the source from the resume cursor,
// classifies new transfers, and persists them deduplicated by id
func (s *ImportService) runTransfersStage(ctx context.Context, network types.Network, address string, emit func(types.ImportStage, int, int, string)) error {
	logger := logging.FromContext(ctx).WithField("wallet", address)

	fromBlock, _, err := s.transfers.MaxBlockNumber(address)
	if err != nil {
		return fmt.Errorf("resolve resume cursor: %w", err)
	}

	rules, err := s.rules.List()
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	pageKey := ""
	page := 0
	for {
		page++
		emit(types.StageTransfers, page, 0, fmt.Sprintf("page %d", page))

		result, err := s.chain.FetchTransfersPage(ctx, network, address, fromBlock, pageKey, s.cfg.PageSize)
		if err != nil {
			return fmt.Errorf("fetch transfers page %d: %w", page, err)
		}

		for _, transfer := range result.Transfers {
			transfer.TransactionClass = Classify(transfer, address, rules)
		}
		added, err := s.transfers.AppendDeduped(result.Transfers)
		if err != nil {
			return fmt.Errorf("persist transfers page %d: %w", page, err)
		}
		logger.WithField("page", page).WithField("fetched", len(result.Transfers)).
			WithField("added", added).Debug("transfers page persisted")

		if result.PageKey == "" {
			return nil
		}
		pageKey = result.PageKey
	}
}

// runGasStage creates one gas record per stored transaction hash that
// lacks one. Individual hash failures are logged and skipped.
func (s *ImportService) runGasStage(ctx context.Context, network types.Network, address string, emit func(types.ImportStage, int, int, string)) error {
	logger := logging.FromContext(ctx).WithField("wallet", address)

	hashes, err := s.transfers.UniqueHashes(address)
	if err != nil {
		return fmt.Errorf("list hashes: %w", err)
	}
	missing, err := s.gas.MissingHashes(hashes)
	if err != nil {
		return fmt.Errorf("find missing gas records: %w", err)
	}

	timestamps, err := s.hashTimestamps(address)
	if err != nil {
		return fmt.Errorf("resolve hash timestamps: %w", err)
	}

	for i, hash := range missing {
		emit(types.StageGas, i+1, len(missing), numeric.ShortenHash(hash))
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := s.buildGasRecord(ctx, network, address, hash, timestamps[hash])
		if err != nil {
			logger.WithField("hash", hash).WithError(err).Warn("gas backfill item failed, skipping")
			continue
		}
		if _, err := s.gas.AppendDeduped([]*models.GasRecord{record}); err != nil {
			return fmt.Errorf("persist gas record %s: %w", hash, err)
		}
	}
	return nil
}

// buildGasRecord fetches the receipt and the ETH price at the transfer's
// timestamp and computes the fee cost
func (s *ImportService) buildGasRecord(ctx context.Context, network types.Network, address, hash string, at time.Time) (*models.GasRecord, error) {
	receipt, err := s.chain.FetchReceipt(ctx, network, hash)
	if err != nil {
		return nil, err
	}

	ethCost, err := numeric.GasCostEth(receipt.GasUsed, receipt.EffectiveGasPrice)
	if err != nil {
		return nil, fmt.Errorf("compute gas cost: %w", err)
	}

	nativeSymbol := network.NativeSymbol()
	price, err := s.priceNear(ctx, nativeSymbol, "", network, at)
	if err != nil {
		return nil, err
	}
	usdCost := ethCost.Mul(numeric.ParseDecimal(price))

	return &models.GasRecord{
		ID:            models.GasRecordID(hash),
		WalletAddress: address,
		Hash:          hash,
		BlockNumber:   receipt.BlockNumber,
		GasUsed:       receipt.GasUsed,
		GasPrice:      receipt.EffectiveGasPrice,
		GasCostEth:    numeric.FormatEth(ethCost),
		GasCostUsd:    numeric.FormatUsd(usdCost),
		Timestamp:     at,
	}, nil
}

// runPricesStage backfills the historical price cache for every transfer
// of every asset the wallet touched. Individual lookups are logged and
// skipped on failure; price gaps are not fatal.
func (s *ImportService) runPricesStage(ctx context.Context, network types.Network, address string, emit func(types.ImportStage, int, int, string)) error {
	logger := logging.FromContext(ctx).WithField("wallet", address)

	transfers, err := s.transfers.ListByWallet(address)
	if err != nil {
		return fmt.Errorf("list transfers: %w", err)
	}

	for i, transfer := range transfers {
		emit(types.StagePrices, i+1, len(transfers), transfer.Asset)
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := s.priceNear(ctx, transfer.Asset, transfer.ContractAddress, network, transfer.Timestamp)
		if err != nil {
			logger.WithField("asset", transfer.Asset).
				WithField("hash", transfer.Hash).
				WithError(err).Warn("price backfill item failed, skipping")
		}
	}
	return nil
}

// priceNear returns the asset's USD price at the target time. A stored
// point within the tolerance window is a cache hit; on a miss the series
// around the target is fetched and merged before retrying the lookup.
func (s *ImportService) priceNear(ctx context.Context, symbol, contractAddress string, network types.Network, at time.Time) (string, error) {
	cached, err := s.prices.FindNear(symbol, contractAddress, network, at, s.cfg.PriceTolerance)
	if err != nil {
		return "", err
	}
	if cached != nil {
		return cached.Price, nil
	}

	series, err := s.priceSrc.FetchHistoricalSeries(ctx, symbol, network,
		at.Add(-s.cfg.PriceLookback), at.Add(s.cfg.PriceLookahead), s.cfg.PriceResolution)
	if err != nil {
		return "", err
	}
	// fetched points carry the contract address so they land under the
	// same cache key the lookup uses
	for _, point := range series {
		point.ContractAddress = contractAddress
	}
	if _, err := s.prices.MergeSeries(series); err != nil {
		return "", err
	}

	point, err := s.prices.FindNear(symbol, contractAddress, network, at, s.cfg.PriceTolerance)
	if err != nil {
		return "", err
	}
	if point == nil {
		return "", fmt.Errorf("no price for %s within %s of %s", symbol, s.cfg.PriceTolerance, at.Format(time.RFC3339))
	}
	return point.Price, nil
}

// hashTimestamps maps each transaction hash to the timestamp of its
// first stored transfer
func (s *ImportService) hashTimestamps(address string) (map[string]time.Time, error) {
	transfers, err := s.transfers.ListByWallet(address)
	if err != nil {
		return nil, err
	}
	timestamps := make(map[string]time.Time, len(transfers))
	for _, transfer := range transfers {
		if _, seen := timestamps[transfer.Hash]; !seen {
			timestamps[transfer.Hash] = transfer.Timestamp
		}
	}
	return timestamps, nil
}
