package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/gtoxlili/pumpRadar/entity"
	"github.com/gtoxlili/pumpRadar/metrics"
	"github.com/gtoxlili/pumpRadar/utils"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	usdtSuffix = "USDT"
	// binanceStreamsPerConn 每条组合流连接承载的交易对数量
	binanceStreamsPerConn = 100
	binanceReconnectDelay = 5 * time.Second
)

// binanceIntervals 交易所周期 -> 内部周期
var binanceIntervals = map[string]string{
	"1m": entity.IntervalMin1,
	"5m": entity.IntervalMin5,
}

type binanceSource struct {
	client *futures.Client
}

func newBinanceSource(apiKey, secretKey string) *binanceSource {
	return &binanceSource{
		client: binance.NewFuturesClient(apiKey, secretKey), // USDT-M Futures
	}
}

func (b *binanceSource) Name() string { return "binance" }

// Symbols 返回所有处于交易状态的 USDT 永续合约
func (b *binanceSource) Symbols(ctx context.Context) ([]string, error) {
	info, err := utils.RetryWithBackoff(ctx, func(ctx context.Context) (*futures.ExchangeInfo, error) {
		return b.client.NewExchangeInfoService().Do(ctx)
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch exchange info: %w", err)
	}
	return lo.FilterMap(info.Symbols, func(s futures.Symbol, _ int) (string, bool) {
		return s.Symbol, s.Status == "TRADING" &&
			s.QuoteAsset == usdtSuffix &&
			s.ContractType == futures.ContractTypePerpetual
	}), nil
}

// Run 按周期和分片并行建立组合流，任一分片只在 ctx 结束时退出
func (b *binanceSource) Run(ctx context.Context, symbols []string, handler CandleHandler) error {
	g, gctx := errgroup.WithContext(ctx)
	for interval := range binanceIntervals {
		for _, chunk := range lo.Chunk(symbols, binanceStreamsPerConn) {
			pairs := lo.SliceToMap(chunk, func(symbol string) (string, string) {
				return strings.ToUpper(symbol), interval
			})
			g.Go(func() error {
				b.serve(gctx, pairs, handler)
				return nil
			})
		}
	}
	log.WithField("symbols", len(symbols)).Info("binance kline streams started")
	return g.Wait()
}

func (b *binanceSource) serve(ctx context.Context, pairs map[string]string, handler CandleHandler) {
	onKline := func(event *futures.WsKlineEvent) {
		interval, raw, err := binanceCandle(event.Kline)
		if err != nil {
			log.WithError(err).WithField("symbol", event.Symbol).Debug("skip malformed kline")
			return
		}
		metrics.CandlesReceived.WithLabelValues(interval).Inc()
		handler(event.Kline.Symbol, interval, raw)
	}
	onErr := func(err error) {
		log.WithError(err).Warn("binance kline stream error")
	}

	for {
		doneC, stopC, err := futures.WsCombinedKlineServe(pairs, onKline, onErr)
		if err != nil {
			log.WithError(err).Warn("binance kline stream connect failed")
		} else {
			select {
			case <-ctx.Done():
				close(stopC)
				<-doneC
				return
			case <-doneC:
			}
		}
		metrics.FeedReconnects.WithLabelValues(b.Name()).Inc()
		select {
		case <-ctx.Done():
			return
		case <-time.After(binanceReconnectDelay):
		}
	}
}

// binanceCandle 把推送的 K 线转换为内部格式，开盘时间为毫秒
func binanceCandle(k futures.WsKline) (string, entity.RawCandle, error) {
	interval, ok := binanceIntervals[k.Interval]
	if !ok {
		return "", entity.RawCandle{}, fmt.Errorf("unsupported interval %q", k.Interval)
	}
	fields := []string{k.Open, k.High, k.Low, k.Close, k.Volume}
	values := make([]decimal.Decimal, len(fields))
	for i, f := range fields {
		v, err := decimal.NewFromString(f)
		if err != nil {
			return "", entity.RawCandle{}, fmt.Errorf("parse %q: %w", f, err)
		}
		values[i] = v
	}
	return interval, entity.RawCandle{
		T: k.StartTime,
		O: values[0],
		H: values[1],
		L: values[2],
		C: values[3],
		A: values[4],
	}, nil
}
