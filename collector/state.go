package collector

import (
	"context"
	"fmt"
	"strings"

	"github.com/gtoxlili/pumpRadar/config"
	"github.com/gtoxlili/pumpRadar/entity"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "collector")

// CandleHandler 接收一次 K 线推送，interval 已映射为 Min1 / Min5
type CandleHandler func(symbol, interval string, raw entity.RawCandle)

// Source 是一个交易所的实时 K 线来源
type Source interface {
	Name() string
	// Symbols 返回可订阅的合约列表
	Symbols(ctx context.Context) ([]string, error)
	// Run 阻塞直到 ctx 结束，断线自动重连
	Run(ctx context.Context, symbols []string, handler CandleHandler) error
}

func ResolveCollector(cfg *config.Config) (Source, error) {
	switch strings.ToLower(cfg.Venue) {
	case "mexc":
		return newMexcSource(), nil
	case "binance":
		return newBinanceSource(cfg.Binance.APIKey, cfg.Binance.SecretKey), nil
	default:
		return nil, fmt.Errorf("unsupported venue %q", cfg.Venue)
	}
}

// ResolveSymbols 优先使用配置里的交易对，否则向交易所查询
func ResolveSymbols(ctx context.Context, src Source, configured []string) ([]string, error) {
	if len(configured) > 0 {
		return configured, nil
	}
	symbols, err := src.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s symbols: %w", src.Name(), err)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no tradable symbols on %s", src.Name())
	}
	return symbols, nil
}
