package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledger-reconciler/internal/errors"
	"github.com/ledger-reconciler/internal/models"
	"github.com/ledger-reconciler/internal/types"
)

// PriceSource fetches asset prices in USD
type PriceSource interface {
	// FetchHistoricalSeries returns price points for the symbol within
	// [from, to] at the given resolution
	FetchHistoricalSeries(ctx context.Context, symbol string, network types.Network, from, to time.Time, resolution time.Duration) ([]*models.HistoricalPrice, error)

	// FetchSpotPrices returns the current USD price per symbol. Symbols
	// the source does not know are absent from the result.
	FetchSpotPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// CryptoCompareClient implements PriceSource against the CryptoCompare API
type CryptoCompareClient struct {
	apiKey  string
	baseURL string
	client  *RequestClient
}

// NewCryptoCompareClient creates a price data client
func NewCryptoCompareClient(apiKey, baseURL string, client *RequestClient) *CryptoCompareClient {
	if baseURL == "" {
		baseURL = "https://min-api.cryptocompare.com"
	}
	return &CryptoCompareClient{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
	}
}

// histoResponse is the envelope of the minute-history endpoint
type histoResponse struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
	Data     struct {
		Data []struct {
			Time  int64   `json:"time"`
			Close float64 `json:"close"`
		} `json:"Data"`
	} `json:"Data"`
}

// FetchHistoricalSeries returns USD price points for a symbol within
// [from, to] at the given resolution
func (c *CryptoCompareClient) FetchHistoricalSeries(ctx context.Context, symbol string, network types.Network, from, to time.Time, resolution time.Duration) ([]*models.HistoricalPrice, error) {
	if c.apiKey == "" {
		return nil, errors.NewConfigurationError("PRICE_API_KEY")
	}
	if !to.After(from) {
		return nil, nil
	}

	aggregate := int(resolution.Minutes())
	if aggregate < 1 {
		aggregate = 1
	}
	limit := int(to.Sub(from)/resolution) + 1

	query := url.Values{}
	query.Set("fsym", strings.ToUpper(symbol))
	query.Set("tsym", "USD")
	query.Set("aggregate", fmt.Sprintf("%d", aggregate))
	query.Set("limit", fmt.Sprintf("%d", limit))
	query.Set("toTs", fmt.Sprintf("%d", to.Unix()))
	query.Set("api_key", c.apiKey)

	body, err := c.client.Get(ctx, "histominute", fmt.Sprintf("%s/data/v2/histominute?%s", c.baseURL, query.Encode()))
	if err != nil {
		return nil, err
	}

	var resp histoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.NewPermanentSourceError("histominute", fmt.Errorf("failed to parse response: %w", err))
	}
	if resp.Response == "Error" {
		return nil, errors.NewPermanentSourceError("histominute", fmt.Errorf("price API error: %s", resp.Message))
	}

	var points []*models.HistoricalPrice
	for _, entry := range resp.Data.Data {
		at := time.Unix(entry.Time, 0).UTC()
		if at.Before(from) || at.After(to) || entry.Close <= 0 {
			continue
		}
		points = append(points, &models.HistoricalPrice{
			Symbol:    strings.ToUpper(symbol),
			Network:   network,
			Price:     decimal.NewFromFloat(entry.Close).String(),
			Currency:  "USD",
			Timestamp: at,
			Origin:    types.PriceOriginHistorical,
		})
	}
	return points, nil
}

// FetchSpotPrices returns the current USD price per symbol
func (c *CryptoCompareClient) FetchSpotPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if c.apiKey == "" {
		return nil, errors.NewConfigurationError("PRICE_API_KEY")
	}
	if len(symbols) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	upper := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		upper = append(upper, strings.ToUpper(symbol))
	}

	query := url.Values{}
	query.Set("fsyms", strings.Join(upper, ","))
	query.Set("tsyms", "USD")
	query.Set("api_key", c.apiKey)

	body, err := c.client.Get(ctx, "pricemulti", fmt.Sprintf("%s/data/pricemulti?%s", c.baseURL, query.Encode()))
	if err != nil {
		return nil, err
	}

	var raw map[string]map[string]float64
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.NewPermanentSourceError("pricemulti", fmt.Errorf("failed to parse response: %w", err))
	}

	prices := make(map[string]decimal.Decimal, len(raw))
	for symbol, quotes := range raw {
		if usd, ok := quotes["USD"]; ok && usd > 0 {
			prices[symbol] = decimal.NewFromFloat(usd)
		}
	}
	return prices, nil
}
