// Package metrics exposes the Prometheus instruments the trading loop
// updates during operation. Everything is registered in init() and served by
// the HTTP server at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	entriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safetrader_entries_total",
			Help: "Protected entries attempted, by outcome (protected|rejected|unwound|critical)",
		},
		[]string{"outcome"},
	)

	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safetrader_trades_total",
			Help: "Closed trades by result (win|loss)",
		},
		[]string{"result"},
	)

	stopRepairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safetrader_stop_repairs_total",
			Help: "Stop order repairs performed by the synchronizer (missing|mismatch)",
		},
		[]string{"kind"},
	)

	stopsMovedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "safetrader_stops_moved_total",
			Help: "Trailing stop moves executed",
		},
	)

	forcedExitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "safetrader_forced_exits_total",
			Help: "Positions force-closed after stalling at take profit",
		},
	)

	loopErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "safetrader_loop_errors_total",
			Help: "Recoverable errors absorbed by the trading loop",
		},
	)

	balanceGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "safetrader_balance",
			Help: "Available margin balance at the last loop tick",
		},
	)

	leverageGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "safetrader_leverage",
			Help: "Leverage chosen for the most recent entry",
		},
	)

	openPositionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "safetrader_open_positions",
			Help: "Open positions at the last loop tick",
		},
	)
)

func init() {
	prometheus.MustRegister(entriesTotal, tradesTotal, stopRepairsTotal)
	prometheus.MustRegister(stopsMovedTotal, forcedExitsTotal, loopErrorsTotal)
	prometheus.MustRegister(balanceGauge, leverageGauge, openPositionsGauge)
}

func IncEntry(outcome string) { entriesTotal.WithLabelValues(outcome).Inc() }

func IncTrade(win bool) { tradesTotal.WithLabelValues(result(win)).Inc() }

func AddStopRepairs(kind string, n int) {
	stopRepairsTotal.WithLabelValues(kind).Add(float64(n))
}

func AddStopsMoved(n int) { stopsMovedTotal.Add(float64(n)) }

func AddForcedExits(n int) { forcedExitsTotal.Add(float64(n)) }

func IncLoopError() { loopErrorsTotal.Inc() }

func SetBalance(v float64) { balanceGauge.Set(v) }

func SetLeverage(v int) { leverageGauge.Set(float64(v)) }

func SetOpenPositions(n int) { openPositionsGauge.Set(float64(n)) }

func result(win bool) string {
	if win {
		return "win"
	}
	return "loss"
}
