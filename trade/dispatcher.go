package trade

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gtoxlili/pumpRadar/config"
	"github.com/gtoxlili/pumpRadar/entity"
	"github.com/gtoxlili/pumpRadar/metrics"
	"github.com/gtoxlili/pumpRadar/strategy"
	"github.com/gtoxlili/pumpRadar/utils"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logrus.WithField("component", "dispatcher")

const lockStripes = 256

type candleItem struct {
	symbol   string
	interval string
	candle   entity.Candle
	isNew    bool
}

type seriesKey struct {
	symbol   string
	interval string
}

// PerformanceStats 调度器运行状况
type PerformanceStats struct {
	TotalStrategies         int           `json:"total_strategies"`
	StrategiesWithTrades    int           `json:"strategies_with_trades"`
	StrategiesWithPositions int           `json:"strategies_with_positions"`
	LastCandleProcessTime   time.Duration `json:"last_candle_process_time"`
	CandlesProcessed        int64         `json:"total_candles_processed"`
	SignalsProcessed        int64         `json:"total_signals_processed"`
	CandleQueueSize         int           `json:"candle_queue_size"`
	SignalQueueSize         int           `json:"signal_queue_size"`
	DroppedCandles          int64         `json:"dropped_candles"`
	DroppedSignals          int64         `json:"dropped_signals"`
}

// Dispatcher 把信号分发给整个种群做入场判断，把 K 线只分发给在该交易对上有持仓的策略
type Dispatcher struct {
	cfg        config.DispatcherConfig
	strategies []*strategy.TradingStrategy
	byID       map[int]*strategy.TradingStrategy
	index      *Index
	workers    int

	candles chan candleItem
	signals chan entity.PumpSignal

	bufMu  sync.RWMutex
	buffer map[seriesKey]*utils.Ring[entity.Candle]

	// 按策略 id 分段加锁，保证同一策略的持仓变化与索引更新是原子的
	stripes [lockStripes]sync.Mutex

	candlesProcessed atomic.Int64
	signalsProcessed atomic.Int64
	droppedCandles   atomic.Int64
	droppedSignals   atomic.Int64
	lastProcess      atomic.Int64
}

func NewDispatcher(cfg config.DispatcherConfig, strategies []*strategy.TradingStrategy) *Dispatcher {
	cfg.CandleQueueCapacity = lo.Ternary(cfg.CandleQueueCapacity > 0, cfg.CandleQueueCapacity, config.CandleQueueCapacity)
	cfg.SignalQueueCapacity = lo.Ternary(cfg.SignalQueueCapacity > 0, cfg.SignalQueueCapacity, config.SignalQueueCapacity)
	cfg.BatchSize = lo.Ternary(cfg.BatchSize > 0, cfg.BatchSize, config.BatchSize)
	cfg.CleanupEvery = lo.Ternary(cfg.CleanupEvery > 0, cfg.CleanupEvery, config.CleanupEvery)
	cfg.BufferCapacity = lo.Ternary(cfg.BufferCapacity > 0, cfg.BufferCapacity, config.BufferCapacity)

	return &Dispatcher{
		cfg:        cfg,
		strategies: strategies,
		byID: lo.SliceToMap(strategies, func(s *strategy.TradingStrategy) (int, *strategy.TradingStrategy) {
			return s.ID(), s
		}),
		index:   NewIndex(),
		workers: runtime.GOMAXPROCS(0),
		candles: make(chan candleItem, cfg.CandleQueueCapacity),
		signals: make(chan entity.PumpSignal, cfg.SignalQueueCapacity),
		buffer:  make(map[seriesKey]*utils.Ring[entity.Candle]),
	}
}

func (d *Dispatcher) Index() *Index { return d.index }

func (d *Dispatcher) Strategies() []*strategy.TradingStrategy { return d.strategies }

// OnPumpSignal 非阻塞入队，队列满时丢弃
func (d *Dispatcher) OnPumpSignal(signal entity.PumpSignal) bool {
	select {
	case d.signals <- signal:
		metrics.QueueDepth.WithLabelValues("signal").Set(float64(len(d.signals)))
		return true
	default:
		d.droppedSignals.Add(1)
		metrics.QueueDropped.WithLabelValues("signal").Inc()
		log.WithField("symbol", signal.Symbol).Warn("signal queue full, dropping signal")
		return false
	}
}

// OnCandleUpdate 更新调度器自己的 K 线缓存后非阻塞入队；过期 tick 直接忽略
func (d *Dispatcher) OnCandleUpdate(symbol, interval string, raw entity.RawCandle) bool {
	candle := raw.Candle()
	isNew, ok := d.record(symbol, interval, candle)
	if !ok {
		return false
	}
	select {
	case d.candles <- candleItem{symbol: symbol, interval: interval, candle: candle, isNew: isNew}:
		metrics.QueueDepth.WithLabelValues("candle").Set(float64(len(d.candles)))
		return true
	default:
		d.droppedCandles.Add(1)
		metrics.QueueDropped.WithLabelValues("candle").Inc()
		log.WithField("symbol", symbol).Warn("candle queue full, dropping candle")
		return false
	}
}

func (d *Dispatcher) record(symbol, interval string, candle entity.Candle) (isNew bool, accepted bool) {
	key := seriesKey{symbol: symbol, interval: interval}
	d.bufMu.Lock()
	defer d.bufMu.Unlock()
	ring, ok := d.buffer[key]
	if !ok {
		ring = utils.NewRing[entity.Candle](d.cfg.BufferCapacity)
		d.buffer[key] = ring
	}
	last, ok := ring.Last()
	switch {
	case !ok || candle.Timestamp > last.Timestamp:
		ring.Push(candle)
		return true, true
	case candle.Timestamp == last.Timestamp:
		ring.ReplaceLast(candle)
		return false, true
	default:
		return false, false
	}
}

// LastPrice 返回缓存中该交易对 1 分钟 K 线的最新收盘价
func (d *Dispatcher) LastPrice(symbol string) (float64, bool) {
	d.bufMu.RLock()
	defer d.bufMu.RUnlock()
	ring, ok := d.buffer[seriesKey{symbol: symbol, interval: entity.IntervalMin1}]
	if !ok {
		return 0, false
	}
	last, ok := ring.Last()
	return last.Close, ok
}

// Run 启动两个消费者，ctx 取消后排空队列再返回
func (d *Dispatcher) Run(ctx context.Context) error {
	log.WithField("strategies", len(d.strategies)).Info("dispatcher started")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.consumeSignals(gctx)
		return nil
	})
	g.Go(func() error {
		d.consumeCandles(gctx)
		return nil
	})
	err := g.Wait()
	log.WithFields(logrus.Fields{
		"candles": d.candlesProcessed.Load(),
		"signals": d.signalsProcessed.Load(),
	}).Info("dispatcher stopped")
	return err
}

func (d *Dispatcher) consumeSignals(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case signal := <-d.signals:
					d.ProcessSignal(signal)
				default:
					return
				}
			}
		case signal := <-d.signals:
			d.ProcessSignal(signal)
			metrics.QueueDepth.WithLabelValues("signal").Set(float64(len(d.signals)))
		}
	}
}

func (d *Dispatcher) consumeCandles(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case item := <-d.candles:
					d.handleCandle(item)
				default:
					return
				}
			}
		case item := <-d.candles:
			d.handleCandle(item)
			metrics.QueueDepth.WithLabelValues("candle").Set(float64(len(d.candles)))
		}
	}
}

func (d *Dispatcher) handleCandle(item candleItem) {
	start := time.Now()
	d.ProcessCandle(item.symbol, item.interval, item.candle)
	elapsed := time.Since(start)

	d.lastProcess.Store(int64(elapsed))
	metrics.CandleProcessSeconds.Observe(elapsed.Seconds())
	if elapsed > config.SlowCandleThreshold {
		log.WithField("symbol", item.symbol).Warnf("slow candle processing: %s", elapsed)
	}
	if n := d.candlesProcessed.Add(1); n%int64(d.cfg.CleanupEvery) == 0 {
		d.Cleanup()
	}
	metrics.CandlesProcessed.Inc()
}

// ProcessSignal 对整个种群分批做入场判断，返回开仓数量
func (d *Dispatcher) ProcessSignal(signal entity.PumpSignal) int {
	defer d.signalsProcessed.Add(1)
	var entered atomic.Int64
	d.fanOut(d.strategies, func(s *strategy.TradingStrategy) {
		if d.tryEnter(s, signal) {
			entered.Add(1)
		}
	})
	if n := entered.Load(); n > 0 {
		log.WithField("symbol", signal.Symbol).Infof("%d strategies entered", n)
		d.syncGauges()
	}
	return int(entered.Load())
}

func (d *Dispatcher) tryEnter(s *strategy.TradingStrategy, signal entity.PumpSignal) bool {
	mu := d.stripe(s.ID())
	mu.Lock()
	defer mu.Unlock()
	if s.HasPosition(signal.Symbol) || !s.ShouldEnter(signal) {
		return false
	}
	if err := s.Enter(signal.Symbol, signal.Price, signal); err != nil {
		log.WithField("strategy", s.ID()).Debugf("enter rejected: %v", err)
		return false
	}
	d.index.Add(signal.Symbol, s.ID())
	metrics.Entries.WithLabelValues(string(s.Direction())).Inc()
	return true
}

// ProcessCandle 只检查索引中在该交易对上有持仓的策略，返回平仓或撤单的数量。
// 高周期 K 线的区间包含开仓前的价格，因此只用 1 分钟 K 线判断出场。
func (d *Dispatcher) ProcessCandle(symbol, interval string, candle entity.Candle) int {
	if interval != entity.IntervalMin1 {
		return 0
	}
	ids := d.index.Get(symbol)
	if len(ids) == 0 {
		return 0
	}
	active := lo.FilterMap(ids, func(id int, _ int) (*strategy.TradingStrategy, bool) {
		s, ok := d.byID[id]
		return s, ok
	})

	var exited atomic.Int64
	d.fanOut(active, func(s *strategy.TradingStrategy) {
		if d.tryExit(s, symbol, candle) {
			exited.Add(1)
		}
	})
	if exited.Load() > 0 {
		d.syncGauges()
	}
	return int(exited.Load())
}

func (d *Dispatcher) tryExit(s *strategy.TradingStrategy, symbol string, candle entity.Candle) bool {
	mu := d.stripe(s.ID())
	mu.Lock()
	defer mu.Unlock()
	if !s.HasPosition(symbol) {
		d.index.Remove(symbol, s.ID())
		return false
	}
	res, ok := s.CheckExit(symbol, candle)
	if !ok {
		return false
	}
	if res.Cancel {
		if err := s.Cancel(symbol); err != nil {
			return false
		}
		d.index.Remove(symbol, s.ID())
		return true
	}
	if _, err := s.Close(symbol, res.ExitPrice, res.Reason); err != nil {
		return false
	}
	d.index.Remove(symbol, s.ID())
	metrics.ObserveExit(string(res.Reason), string(s.Direction()))
	return true
}

// fanOut 按 batch 切分后并行执行，单个策略的 panic 被隔离在自身
func (d *Dispatcher) fanOut(items []*strategy.TradingStrategy, fn func(s *strategy.TradingStrategy)) {
	var g errgroup.Group
	g.SetLimit(d.workers)
	for _, batch := range lo.Chunk(items, d.cfg.BatchSize) {
		g.Go(func() error {
			for _, s := range batch {
				d.isolate(s, fn)
			}
			runtime.Gosched()
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) isolate(s *strategy.TradingStrategy, fn func(s *strategy.TradingStrategy)) {
	defer func() {
		if r := recover(); r != nil {
			metrics.EvalErrors.Inc()
			log.WithField("strategy", s.ID()).Errorf("strategy evaluation panic: %v", r)
		}
	}()
	fn(s)
}

func (d *Dispatcher) stripe(id int) *sync.Mutex {
	return &d.stripes[uint(id)%lockStripes]
}

// Cleanup 清理空索引条目并截断各策略的成交记录
func (d *Dispatcher) Cleanup() {
	pruned := d.index.Prune()
	truncated := 0
	if d.cfg.TradeHistoryCap > 0 {
		for _, s := range d.strategies {
			truncated += s.TruncateHistory(d.cfg.TradeHistoryCap)
		}
	}
	d.syncGauges()
	log.WithFields(logrus.Fields{
		"pruned_symbols":   pruned,
		"truncated_trades": truncated,
	}).Debug("cleanup finished")
}

func (d *Dispatcher) syncGauges() {
	metrics.ActivePositions.Set(float64(d.index.Positions()))
	metrics.IndexedSymbols.Set(float64(d.index.Symbols()))
}

func (d *Dispatcher) Stats() PerformanceStats {
	return PerformanceStats{
		TotalStrategies:         len(d.strategies),
		StrategiesWithTrades:    lo.CountBy(d.strategies, func(s *strategy.TradingStrategy) bool { return s.TotalTrades() > 0 }),
		StrategiesWithPositions: d.index.Strategies(),
		LastCandleProcessTime:   time.Duration(d.lastProcess.Load()),
		CandlesProcessed:        d.candlesProcessed.Load(),
		SignalsProcessed:        d.signalsProcessed.Load(),
		CandleQueueSize:         len(d.candles),
		SignalQueueSize:         len(d.signals),
		DroppedCandles:          d.droppedCandles.Load(),
		DroppedSignals:          d.droppedSignals.Load(),
	}
}
