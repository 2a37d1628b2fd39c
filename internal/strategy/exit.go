package strategy

import (
	"context"
	"fmt"

	"krakenTrailBot/internal/domain"
	"krakenTrailBot/internal/ports"
)

// Config holds the exit-strategy thresholds, all expressed in percent.
//
// The fee buffer is applied asymmetrically on purpose: it shrinks the safe
// zone for the stop-loss and arm thresholds (trigger slightly earlier /
// require slightly more margin) and widens the trailing drop (tolerate a
// slightly deeper pullback before selling).
type Config struct {
	StopLossPct     float64 // negative, e.g. -3.0
	ArmThresholdPct float64 // positive, e.g. 5.0
	TrailingDropPct float64 // positive, e.g. 3.0
	FeeBufferPct    float64 // non-negative, e.g. 0.5
}

// Evaluator implements the two-state exit machine per active position:
// UNARMED -> ARMED (one-way, at the arm threshold) and
// {UNARMED, ARMED} -> wants-to-close (stop-loss from UNARMED, trailing drop
// from ARMED). A raised close reason is advisory; the caller decides whether
// liquidation actually happens.
type Evaluator struct {
	cfg    Config
	logger ports.Logger
}

// New creates a new Evaluator instance.
func New(cfg Config, logger ports.Logger) (*Evaluator, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for exit strategy")
	}
	if cfg.StopLossPct >= 0 {
		return nil, fmt.Errorf("stop loss threshold must be negative, got %.2f", cfg.StopLossPct)
	}
	if cfg.ArmThresholdPct <= 0 {
		return nil, fmt.Errorf("arm threshold must be positive, got %.2f", cfg.ArmThresholdPct)
	}
	if cfg.TrailingDropPct <= 0 {
		return nil, fmt.Errorf("trailing drop threshold must be positive, got %.2f", cfg.TrailingDropPct)
	}
	if cfg.FeeBufferPct < 0 {
		return nil, fmt.Errorf("fee buffer cannot be negative, got %.2f", cfg.FeeBufferPct)
	}
	return &Evaluator{cfg: cfg, logger: logger}, nil
}

// stopTrigger is the unrealized % at or below which an unarmed position sells.
// Adding the buffer moves the trigger up, so the stop fires slightly earlier.
func (e *Evaluator) stopTrigger() float64 {
	return e.cfg.StopLossPct + e.cfg.FeeBufferPct
}

// armTrigger is the unrealized % at or above which a position arms.
func (e *Evaluator) armTrigger() float64 {
	return e.cfg.ArmThresholdPct + e.cfg.FeeBufferPct
}

// trailingTrigger is the drop from ATH at or above which an armed position sells.
func (e *Evaluator) trailingTrigger() float64 {
	return e.cfg.TrailingDropPct + e.cfg.FeeBufferPct
}

// RealizedPct returns the gain to book when a close decided at the given
// unrealized percentage fills.
func (e *Evaluator) RealizedPct(unrealizedPct float64) float64 {
	return unrealizedPct - e.cfg.FeeBufferPct
}

// Evaluate applies the state machine to one position for the current cycle.
// The record must already be ACTIVE for this cycle; a nil or zero cost basis
// yields an unrealized % of zero rather than a division fault.
func (e *Evaluator) Evaluate(ctx context.Context, rec *domain.PositionRecord, currentPrice float64) ports.EvaluationResult {
	var costBasis float64
	if rec.CostBasis != nil {
		costBasis = *rec.CostBasis
	}

	unrealizedPct := 0.0
	if costBasis != 0 {
		unrealizedPct = (currentPrice - costBasis) / costBasis * 100.0
	}

	athPct := rec.ATHUnrealizedPct
	if unrealizedPct > athPct {
		athPct = unrealizedPct
	}

	res := ports.EvaluationResult{
		UnrealizedPct:    unrealizedPct,
		ATHUnrealizedPct: athPct,
		Armed:            rec.Armed,
	}

	if rec.Armed {
		// Armed: only the trailing drop from ATH can close the position.
		drop := athPct - unrealizedPct
		if drop >= e.trailingTrigger() {
			res.CloseReason = domain.CloseReasonTrailingTakeProfit
			e.logger.Info(ctx, "Trailing take profit signal raised", map[string]interface{}{
				"asset":         rec.Asset,
				"unrealizedPct": unrealizedPct,
				"athPct":        athPct,
				"drop":          drop,
				"trigger":       e.trailingTrigger(),
			})
		}
		return res
	}

	// Unarmed: hard stop first, then possibly arm. Arming never sells.
	if unrealizedPct <= e.stopTrigger() {
		res.CloseReason = domain.CloseReasonStopLoss
		e.logger.Info(ctx, "Stop loss signal raised", map[string]interface{}{
			"asset":         rec.Asset,
			"unrealizedPct": unrealizedPct,
			"trigger":       e.stopTrigger(),
		})
	} else if unrealizedPct >= e.armTrigger() {
		res.Armed = true
		e.logger.Info(ctx, "Position armed, switching to trailing exit", map[string]interface{}{
			"asset":         rec.Asset,
			"unrealizedPct": unrealizedPct,
			"trigger":       e.armTrigger(),
		})
	}
	return res
}
