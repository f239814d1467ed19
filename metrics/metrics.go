// Package metrics exposes prometheus counters for the market and trading
// loops. Counters are registered at init and shared process-wide.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PriceUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "price_updates_total", Help: "Price observations published into the cache"},
		[]string{"source"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_total", Help: "Trades executed"},
		[]string{"side"},
	)
	PollFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "poll_failures_total", Help: "Failed feed polls (skipped, loop continues)"},
	)
	SnapshotsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "snapshots_total", Help: "Portfolio value snapshots recorded"},
	)
	SnapshotFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "snapshot_failures_total", Help: "Snapshot attempts that failed to persist"},
	)
)

func init() {
	prometheus.MustRegister(
		PriceUpdatesTotal,
		TradesTotal,
		PollFailuresTotal,
		SnapshotsTotal,
		SnapshotFailuresTotal,
	)
}

// Handler returns the exposition handler mounted by the HTTP server.
func Handler() http.Handler {
	return promhttp.Handler()
}
