package ports

import (
	"context"
	"time"
)

// AssetInfo carries the exchange metadata needed to translate an internal
// asset code into its canonical symbol.
type AssetInfo struct {
	Altname string // human-friendly symbol, e.g. "XBT" for code "XXBT"
}

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	TxID        string    // exchange transaction/order ID
	Description string    // human-readable order description from the exchange
	Timestamp   time.Time // time the order response was received
}

// ExchangeClient defines the interface for interacting with a spot exchange.
// This abstraction decouples the reconciliation core from specific exchange SDKs.
type ExchangeClient interface {
	// GetBalances retrieves all account balances keyed by internal asset code.
	// Zero balances may be included; callers must filter.
	GetBalances(ctx context.Context) (map[string]float64, error)

	// GetAssetInfo retrieves asset metadata keyed by internal asset code.
	GetAssetInfo(ctx context.Context) (map[string]AssetInfo, error)

	// GetLastPrice retrieves the last trade price for a pair.
	// Returns ErrUnknownPair (wrapped) when the pair does not exist.
	GetLastPrice(ctx context.Context, pair string) (float64, error)

	// PlaceMarketSell places a full market sell for the given quantity.
	// clientRef is an idempotency reference attached to the order.
	PlaceMarketSell(ctx context.Context, pair string, quantity float64, clientRef string) (*OrderResponse, error)

	// Ping checks connectivity to the exchange API.
	Ping(ctx context.Context) error
}
