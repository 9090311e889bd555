// Package strategy 实现单个参数化策略的持仓状态机与盈亏统计。
package strategy

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gtoxlili/pumpRadar/config"
	"github.com/gtoxlili/pumpRadar/entity"
	"github.com/gtoxlili/pumpRadar/utils"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "strategy")

var (
	ErrPositionExists = errors.New("position already exists")
	ErrNoPosition     = errors.New("no position on symbol")
	ErrInvalidPrice   = errors.New("invalid entry price")
)

// ExitResult 描述一次出场；Cancel 为真表示挂单超时撤销，不产生盈亏
type ExitResult struct {
	ExitPrice float64
	Reason    entity.ExitReason
	Cancel    bool
}

type TradingStrategy struct {
	id         int
	name       string
	cfg        entity.StrategyConfig
	now        func() time.Time
	historyCap int

	mu        sync.Mutex
	positions map[string]*entity.Position
	history   []entity.TradeRecord

	// 运行累计量，截断历史后仍然精确
	totalTrades int
	wins        int
	losses      int
	cancelled   int
	negatives   int
	totalPnl    float64
	totalPnlPct float64
	grossProfit float64
	grossLoss   float64
	pnl         utils.Welford
	balance     float64
	peak        float64
}

type Option func(*TradingStrategy)

func WithClock(now func() time.Time) Option {
	return func(s *TradingStrategy) { s.now = now }
}

// WithHistoryCap 限制保留的成交记录条数，超出时淘汰最旧的
func WithHistoryCap(n int) Option {
	return func(s *TradingStrategy) { s.historyCap = n }
}

func New(id int, cfg entity.StrategyConfig, opts ...Option) *TradingStrategy {
	if cfg.Timeframe == "" {
		cfg.Timeframe = entity.Timeframe1m
	}
	if cfg.Direction == "" {
		cfg.Direction = entity.Long
	}
	s := &TradingStrategy{
		id:         id,
		cfg:        cfg,
		now:        time.Now,
		historyCap: config.TradeHistoryCap,
		positions:  make(map[string]*entity.Position),
		balance:    config.StartingBalance,
		peak:       config.StartingBalance,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.name = formatName(id, cfg)
	return s
}

func (s *TradingStrategy) ID() int { return s.id }

func (s *TradingStrategy) Name() string { return s.name }

func (s *TradingStrategy) Config() entity.StrategyConfig { return s.cfg }

func (s *TradingStrategy) Direction() entity.Direction { return s.cfg.Direction }

// ShouldEnter 判断信号是否满足本策略的全部入场条件
func (s *TradingStrategy) ShouldEnter(signal entity.PumpSignal) bool {
	c := s.cfg
	timeframe := lo.Ternary(signal.Timeframe == "", entity.Timeframe1m, signal.Timeframe)
	if timeframe != c.Timeframe {
		return false
	}
	if signal.PriceChange(c.Timeframe) < c.PriceIncreaseThresholdPct {
		return false
	}
	if signal.VolumeRatio < c.VolumeMultiplier {
		return false
	}
	if signal.RSI != nil && *signal.RSI < c.RSIThreshold {
		return false
	}
	if signal.Confidence < c.MinConfidence {
		return false
	}
	if c.MinTrendStrength > 0 && signal.TrendStrength < c.MinTrendStrength {
		return false
	}
	if c.RequireBreakout && !signal.IsBreakout {
		return false
	}
	if c.MinVolumeConsistency > 0 && signal.VolumeConsistency < c.MinVolumeConsistency {
		return false
	}
	return true
}

// Enter 以 price 开仓；配置了成交窗口时先挂单
func (s *TradingStrategy) Enter(symbol string, price float64, signal entity.PumpSignal) error {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidPrice, price)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[symbol]; ok {
		return ErrPositionExists
	}

	c := s.cfg
	tp, sl := price*(1+c.TakeProfitPct/100), price*(1-c.StopLossPct/100)
	if c.Direction == entity.Short {
		tp, sl = price*(1-c.TakeProfitPct/100), price*(1+c.StopLossPct/100)
	}
	pos := &entity.Position{
		Symbol:            symbol,
		Direction:         c.Direction,
		State:             lo.Ternary(c.EntryFillCandles > 0, entity.PositionPending, entity.PositionOpen),
		EntryPrice:        price,
		Quantity:          c.PositionSizeUSDT / price,
		TakeProfit:        tp,
		StopLoss:          sl,
		EntryTime:         s.now(),
		HighestPriceSeen:  price,
		LowestPriceSeen:   price,
		InitialTakeProfit: tp,
	}
	s.positions[symbol] = pos
	log.WithFields(logrus.Fields{
		"strategy": s.id, "symbol": symbol, "price": price, "state": pos.State,
		"confidence": signal.Confidence,
	}).Debug("position entered")
	return nil
}

func (s *TradingStrategy) HasPosition(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.positions[symbol]
	return ok
}

// Position 返回持仓副本
func (s *TradingStrategy) Position(symbol string) (entity.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[symbol]
	if !ok {
		return entity.Position{}, false
	}
	return *pos, true
}

func (s *TradingStrategy) Positions() []entity.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.MapToSlice(s.positions, func(_ string, p *entity.Position) entity.Position { return *p })
}

// CheckExit 用一根 K 线推进持仓：挂单成交或超时、止盈衰减、移动止损，最后判断止盈止损。
// 同一根 K 线同时触及止盈与止损时按止盈处理。
func (s *TradingStrategy) CheckExit(symbol string, candle entity.Candle) (ExitResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[symbol]
	if !ok {
		return ExitResult{}, false
	}

	if pos.State == entity.PositionPending {
		if candle.Low <= pos.EntryPrice && pos.EntryPrice <= candle.High {
			pos.State = entity.PositionOpen
			pos.EntryTime = s.now()
			return ExitResult{}, false
		}
		pos.CandlesWaited++
		if pos.CandlesWaited >= s.cfg.EntryFillCandles {
			return ExitResult{Cancel: true}, true
		}
		return ExitResult{}, false
	}

	s.applyReduce(pos)

	if pos.Direction == entity.Long {
		if candle.High > pos.HighestPriceSeen {
			pos.HighestPriceSeen = candle.High
			if s.cfg.TrailingStop {
				pos.StopLoss = math.Max(pos.StopLoss, candle.High*(1-s.cfg.StopLossPct/100))
			}
		}
		pos.LowestPriceSeen = math.Min(pos.LowestPriceSeen, candle.Low)
		if candle.High >= pos.TakeProfit {
			return ExitResult{ExitPrice: pos.TakeProfit, Reason: tpReason(pos)}, true
		}
		if candle.Low <= pos.StopLoss {
			return ExitResult{ExitPrice: pos.StopLoss, Reason: entity.ExitSL}, true
		}
		return ExitResult{}, false
	}

	if candle.Low < pos.LowestPriceSeen {
		pos.LowestPriceSeen = candle.Low
		if s.cfg.TrailingStop {
			pos.StopLoss = math.Min(pos.StopLoss, candle.Low*(1+s.cfg.StopLossPct/100))
		}
	}
	pos.HighestPriceSeen = math.Max(pos.HighestPriceSeen, candle.High)
	if candle.Low <= pos.TakeProfit {
		return ExitResult{ExitPrice: pos.TakeProfit, Reason: tpReason(pos)}, true
	}
	if candle.High >= pos.StopLoss {
		return ExitResult{ExitPrice: pos.StopLoss, Reason: entity.ExitSL}, true
	}
	return ExitResult{}, false
}

func tpReason(pos *entity.Position) entity.ExitReason {
	return lo.Ternary(pos.Reduced(), entity.ExitTPReduced, entity.ExitTP)
}

// applyReduce 每满一分钟把止盈按总距离的固定比例向止损移动，且不越过止损
func (s *TradingStrategy) applyReduce(pos *entity.Position) {
	if s.cfg.ReducePctPerMinute <= 0 {
		return
	}
	minutesHeld := int(s.now().Sub(pos.EntryTime) / time.Minute)
	if minutesHeld <= pos.LastReduceMinuteApplied {
		return
	}
	totalDistance := math.Abs(pos.InitialTakeProfit-pos.EntryPrice) + math.Abs(pos.EntryPrice-pos.StopLoss)
	totalReduction := totalDistance * (s.cfg.ReducePctPerMinute / 100) * float64(minutesHeld)
	if pos.Direction == entity.Long {
		pos.TakeProfit = math.Max(pos.InitialTakeProfit-totalReduction, pos.StopLoss)
	} else {
		pos.TakeProfit = math.Min(pos.InitialTakeProfit+totalReduction, pos.StopLoss)
	}
	pos.LastReduceMinuteApplied = minutesHeld
}

// Close 平仓并记账，策略回到空仓状态
func (s *TradingStrategy) Close(symbol string, exitPrice float64, reason entity.ExitReason) (entity.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[symbol]
	if !ok {
		return entity.TradeRecord{}, ErrNoPosition
	}

	var pnl, pnlPct float64
	if pos.Direction == entity.Long {
		pnl = (exitPrice - pos.EntryPrice) * pos.Quantity
		pnlPct = (exitPrice - pos.EntryPrice) / pos.EntryPrice * 100
	} else {
		pnl = (pos.EntryPrice - exitPrice) * pos.Quantity
		pnlPct = (pos.EntryPrice - exitPrice) / pos.EntryPrice * 100
	}

	s.balance += pnl
	s.peak = math.Max(s.peak, s.balance)

	s.totalTrades++
	s.totalPnl += pnl
	s.totalPnlPct += pnlPct
	s.pnl.Add(pnl)
	if pnl > 0 {
		s.wins++
		s.grossProfit += pnl
	} else {
		s.losses++
	}
	if pnl < 0 {
		s.negatives++
		s.grossLoss += -pnl
	}

	record := entity.TradeRecord{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Direction:  pos.Direction,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Quantity:   pos.Quantity,
		EntryTime:  pos.EntryTime,
		ExitTime:   s.now(),
		PnlUSDT:    pnl,
		PnlPct:     pnlPct,
		ExitReason: reason,
	}
	s.history = append(s.history, record)
	if s.historyCap > 0 && len(s.history) > s.historyCap {
		s.history = s.history[len(s.history)-s.historyCap:]
	}
	delete(s.positions, symbol)

	log.WithFields(logrus.Fields{
		"strategy": s.id, "symbol": symbol, "reason": reason, "pnl": pnl,
	}).Debug("position closed")
	return record, nil
}

// Cancel 撤销未成交的挂单，不计盈亏
func (s *TradingStrategy) Cancel(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[symbol]; !ok {
		return ErrNoPosition
	}
	delete(s.positions, symbol)
	s.cancelled++
	return nil
}

// TruncateHistory 只保留最近 n 条成交记录
func (s *TradingStrategy) TruncateHistory(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 || len(s.history) <= n {
		return 0
	}
	dropped := len(s.history) - n
	s.history = append([]entity.TradeRecord(nil), s.history[dropped:]...)
	return dropped
}

func (s *TradingStrategy) TotalTrades() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalTrades
}

// CalculateFinalStats 由运行累计量计算统计指标
func (s *TradingStrategy) CalculateFinalStats() entity.StrategyStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *TradingStrategy) statsLocked() entity.StrategyStats {
	stats := entity.StrategyStats{
		TotalTrades:     s.totalTrades,
		WinningTrades:   s.wins,
		LosingTrades:    s.losses,
		CancelledTrades: s.cancelled,
		TotalPnl:        s.totalPnl,
		TotalPnlPct:     s.totalPnlPct,
	}
	if s.totalTrades == 0 {
		return stats
	}
	stats.WinRate = float64(s.wins) / float64(s.totalTrades) * 100
	if s.wins > 0 {
		stats.AvgWin = s.grossProfit / float64(s.wins)
	}
	if s.negatives > 0 {
		stats.AvgLoss = -s.grossLoss / float64(s.negatives)
	}
	if s.grossLoss > 0 {
		stats.ProfitFactor = s.grossProfit / s.grossLoss
	}
	stats.MaxDrawdown = (s.peak - s.balance) / s.peak * 100
	if std := s.pnl.PopStdDev(); std != 0 {
		stats.Sharpe = s.pnl.Mean() / std
	}
	return stats
}

func (s *TradingStrategy) Balance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// Summary 导出用的结果快照，withHistory 决定是否附带成交记录
func (s *TradingStrategy) Summary(withHistory bool) entity.StrategySummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := entity.StrategySummary{
		ID:           s.id,
		Name:         s.name,
		Config:       s.cfg,
		Stats:        s.statsLocked(),
		FinalBalance: s.balance,
		ROI:          (s.balance - config.StartingBalance) / config.StartingBalance * 100,
	}
	if withHistory {
		summary.TradeHistory = append([]entity.TradeRecord(nil), s.history...)
	}
	return summary
}

// History 返回成交记录副本
func (s *TradingStrategy) History() []entity.TradeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.TradeRecord(nil), s.history...)
}

func formatName(id int, c entity.StrategyConfig) string {
	return fmt.Sprintf("S%03d_%s_TP%s%%_SL%s%%_RSI%s_Vol%sx_Trend%s_%s_%s",
		id, c.Direction, num(c.TakeProfitPct), num(c.StopLossPct), num(c.RSIThreshold),
		num(c.VolumeMultiplier), num(c.MinTrendStrength), lo.Ternary(c.RequireBreakout, "BRK", ""), c.Timeframe)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
