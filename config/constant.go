package config

import "time"

const (
	StartingBalance = 1000.0

	CandleQueueCapacity = 10_000
	SignalQueueCapacity = 1_000
	BatchSize           = 1_000
	CleanupEvery        = 1_000 // 每处理 N 根 K 线做一次清理
	BufferCapacity      = 100
	TradeHistoryCap     = 500

	SlowCandleThreshold = 5 * time.Second
	ReportInterval      = 5 * time.Minute
	TopN                = 10

	DefaultMaxStrategies    = 20_000
	DefaultPositionSizeUSDT = 50.0

	ResultFilePrefix = "strategy_results_"
	ResultTimeLayout = "20060102_150405"
)

const envPrefix = "PUMPRADAR_"

var (
	Venues = []string{"mexc", "binance"}
)
