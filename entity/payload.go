package entity

import "github.com/shopspring/decimal"

// 检测器内部使用的周期词汇，行情源负责把交易所的周期名映射过来
const (
	IntervalMin1 = "Min1"
	IntervalMin5 = "Min5"
)

// epochMillisThreshold 以上的时间戳视为毫秒
const epochMillisThreshold = 1_000_000_000_000

// RawCandle 是行情源推送的原始 K 线字段，价格既可能是字符串也可能是数字
type RawCandle struct {
	T int64           `json:"t"`
	O decimal.Decimal `json:"o"`
	H decimal.Decimal `json:"h"`
	L decimal.Decimal `json:"l"`
	C decimal.Decimal `json:"c"`
	A decimal.Decimal `json:"a"`
}

// Candle 是一根已解析的 OHLCV K 线，Timestamp 为开盘时间（秒）
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Candle 解析原始字段，缺失字段按 0 处理
func (r RawCandle) Candle() Candle {
	return Candle{
		Timestamp: NormalizeTimestamp(r.T),
		Open:      r.O.InexactFloat64(),
		High:      r.H.InexactFloat64(),
		Low:       r.L.InexactFloat64(),
		Close:     r.C.InexactFloat64(),
		Volume:    r.A.InexactFloat64(),
	}
}

func NormalizeTimestamp(ts int64) int64 {
	if ts > epochMillisThreshold {
		return ts / 1000
	}
	return ts
}

// Notional 当前成交额 (USDT)
func (c Candle) Notional() float64 {
	return c.Volume * c.Close
}

func (c Candle) IsGreen() bool {
	return c.Close > c.Open
}
