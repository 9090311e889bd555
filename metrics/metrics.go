// Package metrics 汇总管道的 Prometheus 指标，在 init() 中注册，由 main 暴露在 /metrics。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CandlesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpradar_candles_received_total",
			Help: "Candle ticks received from the venue feed",
		},
		[]string{"interval"},
	)

	SignalsEmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pumpradar_pump_signals_total",
			Help: "Pump signals emitted by the detector",
		},
	)

	// QueueDropped 按队列 (candle|signal) 统计满队列丢弃
	QueueDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpradar_queue_dropped_total",
			Help: "Items dropped because the queue was full",
		},
		[]string{"queue"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pumpradar_queue_depth",
			Help: "Current number of buffered items",
		},
		[]string{"queue"},
	)

	CandlesProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pumpradar_candles_processed_total",
			Help: "Candles consumed by the exit checker",
		},
	)

	CandleProcessSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pumpradar_candle_process_seconds",
			Help:    "Time spent checking exits for one candle",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	Entries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpradar_entries_total",
			Help: "Simulated position entries",
		},
		[]string{"direction"},
	)

	Exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpradar_exits_total",
			Help: "Simulated position exits split by reason and direction",
		},
		[]string{"reason", "direction"},
	)

	EvalErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pumpradar_strategy_eval_errors_total",
			Help: "Recovered failures while evaluating a single strategy",
		},
	)

	ActivePositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pumpradar_active_positions",
			Help: "Open or pending simulated positions across the population",
		},
	)

	IndexedSymbols = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pumpradar_indexed_symbols",
			Help: "Symbols present in the symbol-to-strategy index",
		},
	)

	FeedReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpradar_feed_reconnects_total",
			Help: "Venue websocket reconnects",
		},
		[]string{"venue"},
	)
)

func init() {
	prometheus.MustRegister(
		CandlesReceived, SignalsEmitted, QueueDropped, QueueDepth, CandlesProcessed, CandleProcessSeconds,
		Entries, Exits, EvalErrors, ActivePositions, IndexedSymbols, FeedReconnects,
	)
}

// Handler 返回 /metrics 处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveExit(reason, direction string) {
	Exits.WithLabelValues(reason, direction).Inc()
}
