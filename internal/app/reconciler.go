package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"krakenTrailBot/internal/domain"
	"krakenTrailBot/internal/metrics"
	"krakenTrailBot/internal/ports"
)

// feeToken is Kraken's internal fee-accounting token; never a tradable holding.
const feeToken = "KFEE"

// stablecoinAliases are quote-side assets excluded from holdings alongside
// the configured base currency.
var stablecoinAliases = map[string]bool{
	"USD":  true,
	"EUR":  true,
	"ZUSD": true,
	"ZEUR": true,
	"USDT": true,
	"USDC": true,
}

// Reconciler drives one full cycle across all assets: it combines exchange
// holdings and prices with the persisted ledger, applies the exit strategy to
// every active position, requests liquidations, and writes back the updated
// records. A single asset's failure never aborts the rest of the cycle.
type Reconciler struct {
	logger       ports.Logger
	exchange     ports.ExchangeClient
	ledger       ports.LedgerStore
	strategy     ports.ExitStrategy
	executor     ports.OrderExecutor
	baseCurrency string
	now          func() time.Time
}

// NewReconciler creates a new Reconciler instance.
func NewReconciler(
	baseCurrency string,
	logger ports.Logger,
	exchange ports.ExchangeClient,
	ledger ports.LedgerStore,
	strat ports.ExitStrategy,
	executor ports.OrderExecutor,
) (*Reconciler, error) {
	if logger == nil || exchange == nil || ledger == nil || strat == nil || executor == nil {
		return nil, fmt.Errorf("missing required dependencies for Reconciler")
	}
	if baseCurrency == "" {
		return nil, fmt.Errorf("base currency is required for Reconciler")
	}
	return &Reconciler{
		logger:       logger,
		exchange:     exchange,
		ledger:       ledger,
		strategy:     strat,
		executor:     executor,
		baseCurrency: strings.ToUpper(baseCurrency),
		now:          time.Now,
	}, nil
}

// RunCycle executes one reconciliation pass. An error return means the whole
// cycle was abandoned before any record was touched (exchange or ledger
// unreachable); per-asset failures are isolated, logged and skipped.
func (r *Reconciler) RunCycle(ctx context.Context) error {
	op := "RunCycle"
	cycleTime := r.now().UTC()

	holdings, err := r.fetchHoldings(ctx)
	if err != nil {
		return fmt.Errorf("%s: failed to fetch holdings: %w", op, err)
	}
	r.logger.Info(ctx, op+": Holdings snapshot loaded", map[string]interface{}{"count": len(holdings)})

	records, err := r.ledger.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("%s: failed to read ledger: %w", op, err)
	}

	byAsset := make(map[string]*domain.PositionRecord, len(records))
	for _, rec := range records {
		byAsset[rec.Asset] = rec
	}

	// Process currently held assets in a stable order for deterministic logs
	// and writes.
	assets := make([]string, 0, len(holdings))
	for asset := range holdings {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	active := 0
	for _, asset := range assets {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: cycle aborted: %w", op, ctx.Err())
		}
		if r.reconcileHolding(ctx, holdings[asset], byAsset[asset], cycleTime) {
			active++
		}
	}

	// Previously ACTIVE records whose asset left the holdings were closed
	// out-of-band. Records already closed and still absent are left untouched.
	for _, rec := range records {
		if _, held := holdings[rec.Asset]; held || !rec.IsActive() {
			continue
		}
		r.closeExternal(ctx, rec, cycleTime)
	}

	metrics.SetActivePositions(active)
	return nil
}

// fetchHoldings builds the cycle's holdings snapshot keyed by canonical
// symbol, dropping zero balances, the base currency, stablecoin aliases and
// the fee token.
func (r *Reconciler) fetchHoldings(ctx context.Context) (map[string]domain.Holding, error) {
	balances, err := r.exchange.GetBalances(ctx)
	if err != nil {
		return nil, err
	}
	assetInfo, err := r.exchange.GetAssetInfo(ctx)
	if err != nil {
		return nil, err
	}

	holdings := make(map[string]domain.Holding)
	for code, quantity := range balances {
		if quantity <= 0 {
			continue
		}
		altname := code
		if info, ok := assetInfo[code]; ok && info.Altname != "" {
			altname = info.Altname
		}
		upper := strings.ToUpper(altname)
		if upper == r.baseCurrency || stablecoinAliases[upper] || upper == feeToken {
			continue
		}
		holdings[altname] = domain.Holding{Asset: altname, AssetCode: code, Quantity: quantity}
	}
	return holdings, nil
}

// reconcileHolding processes one held asset: price it, normalize its record
// to an ACTIVE campaign, run the exit strategy, attempt a sell when asked,
// and persist the outcome. Reports whether the record ended the cycle ACTIVE.
func (r *Reconciler) reconcileHolding(ctx context.Context, h domain.Holding, rec *domain.PositionRecord, cycleTime time.Time) bool {
	pair := h.Asset + r.baseCurrency

	price, err := r.exchange.GetLastPrice(ctx, pair)
	if err != nil {
		if errors.Is(err, ports.ErrUnknownPair) {
			metrics.IncAssetSkip("unknown_pair")
			r.logger.Warn(ctx, "Pair not tradable, skipping asset this cycle", map[string]interface{}{"asset": h.Asset, "pair": pair})
		} else {
			metrics.IncAssetSkip("price_fetch")
			r.logger.Error(ctx, err, "Price fetch failed, skipping asset this cycle", map[string]interface{}{"asset": h.Asset, "pair": pair})
		}
		// Retried next cycle from the last persisted state.
		return rec != nil && rec.IsActive()
	}

	created := false
	switch {
	case rec == nil:
		rec = &domain.PositionRecord{Asset: h.Asset}
		rec.StartCampaign(price)
		created = true
	case !rec.IsActive():
		// Reactivation: the asset reappeared after a close, start a fresh campaign.
		rec.StartCampaign(price)
		r.logger.Info(ctx, "Position reactivated, new campaign started", map[string]interface{}{"asset": h.Asset, "costBasis": price})
	case rec.CostBasis == nil:
		// Blank cost reference on an active record: initialize now without
		// resetting ATH or armed state.
		rec.CostBasis = domain.Float(price)
		r.logger.Warn(ctx, "Active record had no cost basis, initialized to current price", map[string]interface{}{"asset": h.Asset, "costBasis": price})
	}
	rec.AssetCode = h.AssetCode
	rec.Pair = pair

	res := r.strategy.Evaluate(ctx, rec, price)
	rec.CurrentPrice = price
	rec.PositionSize = h.Quantity
	rec.UnrealizedPct = res.UnrealizedPct
	rec.ATHUnrealizedPct = res.ATHUnrealizedPct
	rec.Armed = res.Armed

	if res.CloseReason != domain.CloseReasonNone && h.Quantity > 0 {
		if r.executor.AttemptSell(ctx, h.Asset, pair, h.Quantity, res.CloseReason) {
			rec.RealizedPct = domain.Float(r.strategy.RealizedPct(res.UnrealizedPct))
			rec.Status = domain.StatusClosed
			rec.PositionSize = 0
			rec.UnrealizedPct = 0
			rec.CostBasis = nil
			r.logger.Info(ctx, "Position closed", map[string]interface{}{
				"asset":       h.Asset,
				"reason":      res.CloseReason,
				"realizedPct": *rec.RealizedPct,
			})
		} else {
			// Liquidation failure does not change status: the position stays
			// ACTIVE with the recomputed fields and the exit check reruns next
			// cycle if the condition still holds.
			r.logger.Warn(ctx, "Sell failed, leaving position active this cycle", map[string]interface{}{"asset": h.Asset, "reason": res.CloseReason})
		}
	}

	rec.LastUpdated = cycleTime
	if err := r.ledger.Upsert(ctx, rec); err != nil {
		metrics.IncAssetSkip("persist")
		r.logger.Error(ctx, err, "Failed to persist record", map[string]interface{}{"asset": h.Asset})
		return rec.IsActive()
	}
	if created {
		r.logger.Info(ctx, "Record created", map[string]interface{}{"asset": h.Asset, "rowID": rec.RowID, "costBasis": rec.CostBasis})
	} else {
		r.logger.Debug(ctx, "Record updated", map[string]interface{}{"asset": h.Asset, "rowID": rec.RowID, "status": rec.Status})
	}
	return rec.IsActive()
}

// closeExternal transitions a previously ACTIVE record whose asset is no
// longer held. The exit was not bot-initiated, so the realized gain is
// unknown; ATH and armed state stay as last recorded.
func (r *Reconciler) closeExternal(ctx context.Context, rec *domain.PositionRecord, cycleTime time.Time) {
	rec.Status = domain.StatusClosedExternal
	rec.PositionSize = 0
	rec.UnrealizedPct = 0
	rec.CostBasis = nil
	rec.RealizedPct = nil
	rec.LastUpdated = cycleTime

	if err := r.ledger.Upsert(ctx, rec); err != nil {
		metrics.IncAssetSkip("persist")
		r.logger.Error(ctx, err, "Failed to persist external close", map[string]interface{}{"asset": rec.Asset})
		return
	}
	metrics.IncExternalClose()
	r.logger.Info(ctx, "Asset no longer held on exchange, marked CLOSED_EXTERNAL", map[string]interface{}{"asset": rec.Asset})
}
