package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"krakenTrailBot/internal/domain"
	"krakenTrailBot/internal/metrics"
	"krakenTrailBot/internal/ports"
)

// Executor implements ports.OrderExecutor on top of an exchange client.
// In dry-run mode every attempt succeeds without touching the exchange.
type Executor struct {
	exchange ports.ExchangeClient
	logger   ports.Logger
	dryRun   bool
}

// New creates a new Executor instance.
func New(exchange ports.ExchangeClient, logger ports.Logger, dryRun bool) (*Executor, error) {
	if exchange == nil {
		return nil, fmt.Errorf("exchange client is required for order executor")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for order executor")
	}
	return &Executor{exchange: exchange, logger: logger, dryRun: dryRun}, nil
}

// AttemptSell places a full-position market sell and reports whether the
// position should be considered sold. Exchange rejections and network errors
// are logged and reported as false so the caller retries next cycle.
func (e *Executor) AttemptSell(ctx context.Context, asset, pair string, quantity float64, reason domain.CloseReason) bool {
	clientRef := uuid.NewString()
	fields := map[string]interface{}{
		"asset":     asset,
		"pair":      pair,
		"quantity":  quantity,
		"reason":    reason,
		"clientRef": clientRef,
		"dryRun":    e.dryRun,
	}
	e.logger.Info(ctx, "Sell attempt", fields)

	if e.dryRun {
		metrics.IncSellAttempt(string(reason), "simulated")
		e.logger.Info(ctx, "Dry run enabled, order simulated", fields)
		return true
	}

	resp, err := e.exchange.PlaceMarketSell(ctx, pair, quantity, clientRef)
	if err != nil {
		metrics.IncSellAttempt(string(reason), "failed")
		e.logger.Error(ctx, err, "Market sell failed", fields)
		return false
	}

	metrics.IncSellAttempt(string(reason), "filled")
	e.logger.Info(ctx, "Market sell placed", map[string]interface{}{
		"asset":       asset,
		"pair":        pair,
		"txID":        resp.TxID,
		"description": resp.Description,
		"clientRef":   clientRef,
	})
	return true
}
