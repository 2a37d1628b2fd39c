package ports

import (
	"context"

	"krakenTrailBot/internal/domain"
)

// EvaluationResult is the outcome of one exit-strategy pass over a position.
// CloseReason is advisory: it becomes an actual close only if liquidation
// succeeds.
type EvaluationResult struct {
	UnrealizedPct    float64
	ATHUnrealizedPct float64
	Armed            bool
	CloseReason      domain.CloseReason
}

// ExitStrategy defines the stop-loss / profit-arming / trailing take-profit
// state machine applied to a single active position each cycle.
type ExitStrategy interface {
	// Evaluate computes the new armed/ATH state and, possibly, a close reason
	// for a record already normalized to ACTIVE with a defined cost basis.
	Evaluate(ctx context.Context, rec *domain.PositionRecord, currentPrice float64) EvaluationResult

	// RealizedPct returns the gain to book when a close decided at the given
	// unrealized percentage actually fills.
	RealizedPct(unrealizedPct float64) float64
}
