package entity

import (
	"fmt"
	"time"

	json "github.com/bytedance/sonic"
)

// PumpSignal 是检测器在一次拉盘行情中发出的唯一信号
type PumpSignal struct {
	Symbol          string    `json:"symbol"`
	Timestamp       time.Time `json:"timestamp"`
	CandleTimestamp int64     `json:"candle_timestamp"`
	Timeframe       string    `json:"timeframe"`
	Price           float64   `json:"price"`
	PriceChange1m   float64   `json:"price_change_1m"`
	PriceChange5m   float64   `json:"price_change_5m"`
	VolumeRatio     float64   `json:"volume_ratio"`
	VolumeUSDT      float64   `json:"volume_usdt"`
	// RSI 为 nil 表示历史不足
	RSI         *float64 `json:"rsi"`
	Momentum    float64  `json:"momentum"`
	BuyPressure float64  `json:"buy_pressure"`
	Confidence  float64  `json:"confidence"`
	IsNewCandle bool     `json:"is_new_candle"`

	TrendStrength     float64 `json:"trend_strength"`
	IsBreakout        bool    `json:"is_breakout"`
	VolumeConsistency float64 `json:"volume_consistency"`
}

// PriceChange 按策略的时间框架取对应的涨幅
func (s PumpSignal) PriceChange(timeframe string) float64 {
	if timeframe == Timeframe5m {
		return s.PriceChange5m
	}
	return s.PriceChange1m
}

func (s PumpSignal) String() string {
	display, err := json.MarshalString(s)
	if err != nil {
		return fmt.Sprintf("PumpSignal{%s @ %.6f}", s.Symbol, s.Price)
	}
	return display
}
