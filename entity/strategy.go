package entity

import "time"

type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// 策略的时间框架
const (
	Timeframe1m = "1m"
	Timeframe5m = "5m"
)

type ExitReason string

const (
	ExitTP        ExitReason = "TP"
	ExitTPReduced ExitReason = "TP_REDUCED"
	ExitSL        ExitReason = "SL"
)

// StrategyConfig 创建后不可变
type StrategyConfig struct {
	Direction                 Direction `json:"direction"`
	TakeProfitPct             float64   `json:"take_profit"`
	StopLossPct               float64   `json:"stop_loss"`
	PriceIncreaseThresholdPct float64   `json:"price_increase_threshold"`
	VolumeMultiplier          float64   `json:"volume_multiplier"`
	RSIThreshold              float64   `json:"rsi_threshold"`
	MinConfidence             float64   `json:"min_confidence"`
	ReducePctPerMinute        float64   `json:"reduce_pct_per_minute"`
	Timeframe                 string    `json:"timeframe"`
	PositionSizeUSDT          float64   `json:"position_size_usdt"`

	// 以下为可选过滤条件，零值表示不启用
	MinTrendStrength     float64 `json:"min_trend_strength"`
	RequireBreakout      bool    `json:"require_breakout"`
	MinVolumeConsistency float64 `json:"min_volume_consistency"`

	TrailingStop bool `json:"trailing_stop"`
	// EntryFillCandles 为 0 时立即成交，否则在 N 根 K 线内未触及入场价即撤单
	EntryFillCandles int `json:"entry_fill_candles"`
}

type PositionState string

const (
	PositionPending PositionState = "PENDING"
	PositionOpen    PositionState = "OPEN"
)

// Position 只归属于一个策略实例，每个 (策略, 交易对) 至多一个
type Position struct {
	Symbol           string        `json:"symbol"`
	Direction        Direction     `json:"direction"`
	State            PositionState `json:"state"`
	EntryPrice       float64       `json:"entry_price"`
	Quantity         float64       `json:"quantity"`
	TakeProfit       float64       `json:"take_profit"`
	StopLoss         float64       `json:"stop_loss"`
	EntryTime        time.Time     `json:"entry_time"`
	HighestPriceSeen float64       `json:"highest_price_seen"`
	LowestPriceSeen  float64       `json:"lowest_price_seen"`

	InitialTakeProfit       float64 `json:"initial_take_profit"`
	LastReduceMinuteApplied int     `json:"last_reduce_minute_applied"`

	// 挂单已等待的 K 线数量
	CandlesWaited int `json:"candles_waited"`
}

// Reduced 止盈是否已被衰减移动过
func (p Position) Reduced() bool {
	return p.LastReduceMinuteApplied > 0 && p.TakeProfit != p.InitialTakeProfit
}

// UnrealizedPnL 以 mark 价格估算浮动盈亏
func (p Position) UnrealizedPnL(mark float64) float64 {
	if p.State != PositionOpen || mark <= 0 {
		return 0
	}
	if p.Direction == Short {
		return (p.EntryPrice - mark) * p.Quantity
	}
	return (mark - p.EntryPrice) * p.Quantity
}

type TradeRecord struct {
	ID         string     `json:"id"`
	Symbol     string     `json:"symbol"`
	Direction  Direction  `json:"direction"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	Quantity   float64    `json:"quantity"`
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   time.Time  `json:"exit_time"`
	PnlUSDT    float64    `json:"pnl_usdt"`
	PnlPct     float64    `json:"pnl_percent"`
	ExitReason ExitReason `json:"reason"`
}

type StrategyStats struct {
	TotalTrades     int     `json:"total_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	CancelledTrades int     `json:"cancelled_trades"`
	TotalPnl        float64 `json:"total_pnl"`
	TotalPnlPct     float64 `json:"total_pnl_percent"`
	WinRate         float64 `json:"win_rate"`
	AvgWin          float64 `json:"avg_win"`
	AvgLoss         float64 `json:"avg_loss"`
	ProfitFactor    float64 `json:"profit_factor"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	Sharpe          float64 `json:"sharpe_ratio"`
}

// StrategySummary 是导出到文件的单个策略结果
type StrategySummary struct {
	ID           int            `json:"strategy_id"`
	Name         string         `json:"name"`
	Config       StrategyConfig `json:"config"`
	Stats        StrategyStats  `json:"stats"`
	FinalBalance float64        `json:"final_balance"`
	ROI          float64        `json:"roi"`
	TradeHistory []TradeRecord  `json:"trade_history,omitempty"`
}
