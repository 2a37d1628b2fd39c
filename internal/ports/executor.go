package ports

import (
	"context"

	"krakenTrailBot/internal/domain"
)

// OrderExecutor attempts to liquidate a position at market.
//
// Implementations must be safe to call at most once per asset per cycle, must
// honor a dry-run mode that reports success without external effect, and must
// report exchange rejections and network failures as false rather than
// panicking, so the reconciler's control flow is never disrupted.
type OrderExecutor interface {
	AttemptSell(ctx context.Context, asset, pair string, quantity float64, reason domain.CloseReason) bool
}
