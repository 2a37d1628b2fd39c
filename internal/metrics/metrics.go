// Package metrics exposes Prometheus instrumentation for the bot:
//
//	trailbot_cycles_total{outcome}        – reconciliation cycles (ok|error)
//	trailbot_sell_attempts_total{reason,outcome} – sells by signal and result
//	trailbot_asset_skips_total{cause}     – per-asset skips (unknown_pair|price_fetch|persist)
//	trailbot_external_closes_total        – positions closed out-of-band
//	trailbot_active_positions             – active position count (gauge)
//
// Metrics are registered in init() and served in Prometheus text exposition
// format by the handler returned from Handler().
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailbot_cycles_total",
			Help: "Reconciliation cycles run",
		},
		[]string{"outcome"}, // ok|error
	)

	sellAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailbot_sell_attempts_total",
			Help: "Liquidation attempts split by signal and result",
		},
		[]string{"reason", "outcome"}, // outcome: filled|failed|simulated
	)

	assetSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailbot_asset_skips_total",
			Help: "Assets skipped within a cycle, by cause",
		},
		[]string{"cause"},
	)

	externalCloses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trailbot_external_closes_total",
			Help: "Positions marked CLOSED_EXTERNAL",
		},
	)

	activePositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trailbot_active_positions",
			Help: "Number of positions currently ACTIVE in the ledger",
		},
	)
)

func init() {
	prometheus.MustRegister(cycles, sellAttempts, assetSkips, externalCloses, activePositions)
}

func IncCycle(outcome string)               { cycles.WithLabelValues(outcome).Inc() }
func IncSellAttempt(reason, outcome string) { sellAttempts.WithLabelValues(reason, outcome).Inc() }
func IncAssetSkip(cause string)             { assetSkips.WithLabelValues(cause).Inc() }
func IncExternalClose()                     { externalCloses.Inc() }
func SetActivePositions(n int)              { activePositions.Set(float64(n)) }

// Handler returns the HTTP handler serving the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
