package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gtoxlili/pumpRadar/config"
	"github.com/gtoxlili/pumpRadar/detector"
	"github.com/gtoxlili/pumpRadar/entity"
	"github.com/gtoxlili/pumpRadar/ranking"
	"github.com/gtoxlili/pumpRadar/store"
	"github.com/gtoxlili/pumpRadar/strategy"
	"github.com/gtoxlili/pumpRadar/trade"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// report 定期输出排行与调度器状态，并清理检测器的过期冷却记录
func report(ctx context.Context, interval time.Duration, engine *ranking.Engine, det *detector.Detector, d *trade.Dispatcher) {
	if interval <= 0 {
		interval = config.ReportInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	started := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned := det.Prune()
			stats := d.Stats()
			log.WithFields(logrus.Fields{
				"runtime":                 time.Since(started).Round(time.Second).String(),
				"strategies_with_trades":  fmt.Sprintf("%d/%d", stats.StrategiesWithTrades, stats.TotalStrategies),
				"strategies_in_position":  stats.StrategiesWithPositions,
				"candles_processed":       stats.CandlesProcessed,
				"signals_processed":       stats.SignalsProcessed,
				"candle_queue":            stats.CandleQueueSize,
				"dropped_candles":         stats.DroppedCandles,
				"dropped_signals":         stats.DroppedSignals,
				"last_candle_process":     stats.LastCandleProcessTime.String(),
				"cooldown_entries_pruned": pruned,
			}).Info("status update")
			engine.Calculate(d.Strategies()).Log()
		}
	}
}

// export 只导出有成交的策略
func export(c config.ExportConfig, strategies []*strategy.TradingStrategy) error {
	summaries := lo.FilterMap(strategies, func(s *strategy.TradingStrategy, _ int) (entity.StrategySummary, bool) {
		if s.TotalTrades() == 0 {
			return entity.StrategySummary{}, false
		}
		return s.Summary(true), true
	})

	var db *store.SQLite
	if c.SQLitePath != "" {
		var err error
		if db, err = store.OpenSQLite(c.SQLitePath); err != nil {
			log.WithError(err).Warn("sqlite unavailable, writing JSON only")
			db = nil
		} else {
			defer db.Close()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := store.NewExporter(c.Dir, db).Export(ctx, summaries)
	return err
}
