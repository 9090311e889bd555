// Package detector 实时识别 1 分钟级别的拉盘，每轮拉盘只发出一次信号。
package detector

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gtoxlili/pumpRadar/config"
	"github.com/gtoxlili/pumpRadar/entity"
	"github.com/gtoxlili/pumpRadar/metrics"
	"github.com/gtoxlili/pumpRadar/utils"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "detector")

const minAnalysisCandles = 20

// Handler 在检测到拉盘时被调用，不应阻塞
type Handler func(signal entity.PumpSignal)

type seriesKey struct {
	symbol   string
	interval string
}

type Detector struct {
	cfg config.DetectorConfig
	now func() time.Time

	mu          sync.Mutex
	history     map[seriesKey]*utils.Ring[entity.Candle]
	recentPumps map[string]time.Time

	handlersMu sync.RWMutex
	handlers   []Handler
}

type Option func(*Detector)

// WithClock 替换时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

func New(cfg config.DetectorConfig, opts ...Option) *Detector {
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = config.BufferCapacity
	}
	d := &Detector{
		cfg:         cfg,
		now:         time.Now,
		history:     make(map[seriesKey]*utils.Ring[entity.Candle]),
		recentPumps: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Detector) OnPumpDetected(h Handler) {
	d.handlersMu.Lock()
	defer d.handlersMu.Unlock()
	d.handlers = append(d.handlers, h)
}

// OnCandleUpdate 接收一根 K 线 tick：旧数据丢弃，同一时间戳原地替换，新时间戳追加。
// 仅 Min1 周期触发分析。
func (d *Detector) OnCandleUpdate(symbol, interval string, raw entity.RawCandle) {
	candle := raw.Candle()

	d.mu.Lock()
	isNew, accepted := d.store(symbol, interval, candle)
	var (
		signal entity.PumpSignal
		fired  bool
	)
	if accepted && interval == entity.IntervalMin1 {
		signal, fired = d.safeAnalyze(symbol, isNew)
	}
	d.mu.Unlock()

	if fired {
		metrics.SignalsEmitted.Inc()
		log.WithFields(logrus.Fields{
			"symbol":     signal.Symbol,
			"price":      signal.Price,
			"change_1m":  signal.PriceChange1m,
			"volume":     signal.VolumeRatio,
			"confidence": signal.Confidence,
			"new_candle": signal.IsNewCandle,
		}).Info("pump detected")
		d.emit(signal)
	}
}

// store 返回 (是否新 K 线, 是否被接受)
func (d *Detector) store(symbol, interval string, candle entity.Candle) (bool, bool) {
	key := seriesKey{symbol: symbol, interval: interval}
	ring, ok := d.history[key]
	if !ok {
		ring = utils.NewRing[entity.Candle](d.cfg.BufferCapacity)
		d.history[key] = ring
	}
	last, ok := ring.Last()
	switch {
	case !ok:
		// 首根 K 线只入缓存
		ring.Push(candle)
		return true, false
	case candle.Timestamp > last.Timestamp:
		ring.Push(candle)
		return true, true
	case candle.Timestamp == last.Timestamp:
		ring.ReplaceLast(candle)
		return false, true
	default:
		return false, false
	}
}

func (d *Detector) safeAnalyze(symbol string, isNew bool) (signal entity.PumpSignal, fired bool) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("symbol", symbol).Errorf("analyze panic: %v", r)
			fired = false
		}
	}()
	return d.analyze(symbol, isNew)
}

func (d *Detector) analyze(symbol string, isNew bool) (entity.PumpSignal, bool) {
	now := d.now()
	if d.inCooldown(symbol, now) {
		return entity.PumpSignal{}, false
	}

	candles1m := d.candles(symbol, entity.IntervalMin1)
	if len(candles1m) < minAnalysisCandles {
		return entity.PumpSignal{}, false
	}
	if pumped, change, ratio := recentPump(candles1m, d.cfg.LookbackCandles,
		d.cfg.RecentPumpPriceThreshold, d.cfg.RecentPumpVolumeThreshold); pumped {
		log.WithField("symbol", symbol).Debugf("already pumped recently (price +%.1f%%, volume %.1fx)", change, ratio)
		return entity.PumpSignal{}, false
	}

	current := candles1m[len(candles1m)-1]
	change1m := priceChange(candles1m, 1)
	change5m := 0.0
	if candles5m := d.candles(symbol, entity.IntervalMin5); len(candles5m) >= minCandlesFor5mChange {
		change5m = priceChange(candles5m, priceChange5mPeriods)
	}
	volumeRatio := volumeSpike(candles1m, now.Unix())
	notional := current.Notional()

	if change1m < d.cfg.PriceIncrease1m || volumeRatio < d.cfg.VolumeSpikeMultiplier || notional < d.cfg.MinVolumeUSDT {
		return entity.PumpSignal{}, false
	}

	rsiValue := rsi(candles1m)
	mom := momentum(candles1m)
	pressure := buyPressure(candles1m)
	confidence := d.confidence(change1m, change5m, volumeRatio, rsiValue, mom, pressure)
	if confidence < d.cfg.MinConfidence {
		return entity.PumpSignal{}, false
	}

	d.recentPumps[symbol] = now
	return entity.PumpSignal{
		Symbol:            symbol,
		Timestamp:         now,
		CandleTimestamp:   current.Timestamp,
		Timeframe:         entity.Timeframe1m,
		Price:             current.Close,
		PriceChange1m:     round2(change1m),
		PriceChange5m:     round2(change5m),
		VolumeRatio:       round2(volumeRatio),
		VolumeUSDT:        round2(notional),
		RSI:               rsiValue,
		Momentum:          round2(mom),
		BuyPressure:       round2(pressure),
		Confidence:        confidence,
		IsNewCandle:       isNew,
		TrendStrength:     trendStrength(candles1m),
		IsBreakout:        isBreakout(candles1m),
		VolumeConsistency: volumeConsistency(candles1m),
	}, true
}

// confidence 各项得分加总后取整并限制在 [0, 100]
func (d *Detector) confidence(change1m, change5m, volumeRatio float64, rsiValue *float64, mom, pressure float64) float64 {
	score := math.Min(30, change1m/d.cfg.PriceIncrease1m*15)
	if change5m >= d.cfg.PriceIncrease5m {
		score += 15
	}
	score += math.Min(25, volumeRatio/d.cfg.VolumeSpikeMultiplier*25)

	if rsiValue != nil {
		switch {
		case *rsiValue >= d.cfg.RSIOverbought:
			score += 15
		case *rsiValue >= 60:
			score += 10
		}
	}
	switch {
	case mom >= d.cfg.MomentumThreshold:
		score += 15
	case mom >= 1.0:
		score += 10
	}
	switch {
	case pressure >= 80:
		score += 15
	case pressure >= 60:
		score += 10
	}
	return utils.Clamp(math.Round(score), 0, 100)
}

// inCooldown 过期的记录在检查时顺便清除
func (d *Detector) inCooldown(symbol string, now time.Time) bool {
	last, ok := d.recentPumps[symbol]
	if !ok {
		return false
	}
	if now.Sub(last) < d.cfg.Cooldown {
		return true
	}
	delete(d.recentPumps, symbol)
	return false
}

func (d *Detector) candles(symbol, interval string) []entity.Candle {
	ring, ok := d.history[seriesKey{symbol: symbol, interval: interval}]
	if !ok {
		return nil
	}
	return ring.Slice()
}

func (d *Detector) emit(signal entity.PumpSignal) {
	d.handlersMu.RLock()
	handlers := d.handlers
	d.handlersMu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("symbol", signal.Symbol).Errorf("pump handler panic: %v", r)
				}
			}()
			h(signal)
		}()
	}
}

// Prune 清除所有已过冷却期的记录，返回剩余条数
func (d *Detector) Prune() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for symbol, last := range d.recentPumps {
		if now.Sub(last) >= d.cfg.Cooldown {
			delete(d.recentPumps, symbol)
		}
	}
	return len(d.recentPumps)
}

// History 返回某个周期缓存的副本
func (d *Detector) History(symbol, interval string) []entity.Candle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.candles(symbol, interval)
}

func (d *Detector) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fmt.Sprintf("Detector{series=%d cooling=%d}", len(d.history), len(d.recentPumps))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
