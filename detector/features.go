package detector

import (
	"math"

	"github.com/cinar/indicator"
	"github.com/gtoxlili/pumpRadar/entity"
	"github.com/gtoxlili/pumpRadar/utils"
	"github.com/samber/lo"
)

const (
	candleSeconds      = 60.0
	minTimeRatio       = 0.1
	rsiPeriod          = 14
	buyPressureWindow  = 10
	recentVolumeWindow = 10
	spikeAvgWindow     = 19

	trendEmaPeriod        = 20
	trendWindow           = 10
	breakoutWindow        = 19
	consistencyWindow     = 5
	consistencyAvgWindow  = 20
	momentumMinCandles    = 5
	defaultVolumeRatio    = 1.0
	priceChange5mPeriods  = 5
	minCandlesFor5mChange = priceChange5mPeriods + 1
)

func closes(candles []entity.Candle) []float64 {
	return lo.Map(candles, func(c entity.Candle, _ int) float64 { return c.Close })
}

func volumes(candles []entity.Candle) []float64 {
	return lo.Map(candles, func(c entity.Candle, _ int) float64 { return c.Volume })
}

// priceChange 最新收盘价相对 periods 根之前收盘价的涨幅 (%)
func priceChange(candles []entity.Candle, periods int) float64 {
	if len(candles) < periods+1 {
		return 0
	}
	return utils.PctChange(candles[len(candles)-periods-1].Close, candles[len(candles)-1].Close)
}

// volumeSpike 把未走完的当前 K 线成交量按已过去的时间折算成整根，再与之前的收盘 K 线均量比较
func volumeSpike(candles []entity.Candle, nowUnix int64) float64 {
	if len(candles) < recentVolumeWindow {
		return defaultVolumeRatio
	}
	current := candles[len(candles)-1]

	timeRatio := 1.0
	if elapsed := nowUnix - current.Timestamp; elapsed > 0 {
		timeRatio = math.Min(float64(elapsed)/candleSeconds, 1.0)
	}
	normalized := current.Volume
	if timeRatio > minTimeRatio {
		normalized = current.Volume / timeRatio
	}

	prior := candles[max(0, len(candles)-1-spikeAvgWindow) : len(candles)-1]
	avg := utils.Avg(volumes(prior))
	if avg == 0 {
		return defaultVolumeRatio
	}
	return normalized / avg
}

// recentPump 在当前 K 线之前的 lookback 根收盘 K 线中寻找已经发生过的拉盘
func recentPump(candles []entity.Candle, lookback int, priceThreshold, volumeThreshold float64) (bool, float64, float64) {
	if len(candles) < lookback+1 {
		return false, 0, 0
	}
	recent := candles[len(candles)-lookback-1 : len(candles)-1]
	for i := 1; i < len(recent); i++ {
		change := utils.PctChange(recent[i-1].Close, recent[i].Close)
		ratio := defaultVolumeRatio
		if i >= recentVolumeWindow {
			if avg := utils.Avg(volumes(recent[i-recentVolumeWindow : i])); avg > 0 {
				ratio = recent[i].Volume / avg
			}
		}
		if change >= priceThreshold && ratio >= volumeThreshold {
			return true, change, ratio
		}
	}
	return false, 0, 0
}

// rsi 取最近 14 个差值的简单平均，历史不足返回 nil
func rsi(candles []entity.Candle) *float64 {
	if len(candles) < rsiPeriod+1 {
		return nil
	}
	prices := closes(candles[len(candles)-rsiPeriod-1:])
	var gain, loss float64
	for i := 1; i < len(prices); i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	value := 100.0
	if loss > 0 {
		rs := (gain / rsiPeriod) / (loss / rsiPeriod)
		value = 100 - 100/(1+rs)
	}
	return &value
}

func momentum(candles []entity.Candle) float64 {
	n := len(candles)
	if n < momentumMinCandles {
		return 0
	}
	recent := candles[n-1].Close - candles[n-3].Close
	previous := candles[n-3].Close - candles[n-5].Close
	if previous == 0 {
		return 0
	}
	return recent / math.Abs(previous)
}

// buyPressure 最近 10 根中阳线的占比 (%)
func buyPressure(candles []entity.Candle) float64 {
	if len(candles) < buyPressureWindow {
		return 0
	}
	window := candles[len(candles)-buyPressureWindow:]
	return float64(lo.CountBy(window, entity.Candle.IsGreen)) / float64(len(window)) * 100
}

// trendStrength 最近 10 根收盘价位于 EMA20 上方的比例
func trendStrength(candles []entity.Candle) float64 {
	if len(candles) < trendEmaPeriod {
		return 0
	}
	prices := closes(candles)
	ema := indicator.Ema(trendEmaPeriod, prices)
	window := min(trendWindow, len(prices))
	above := 0
	for i := len(prices) - window; i < len(prices); i++ {
		if prices[i] > ema[i] {
			above++
		}
	}
	return float64(above) / float64(window)
}

// isBreakout 当前收盘价突破之前 19 根的最高价
func isBreakout(candles []entity.Candle) bool {
	if len(candles) < breakoutWindow+1 {
		return false
	}
	prior := candles[len(candles)-1-breakoutWindow : len(candles)-1]
	highest := lo.MaxBy(prior, func(a, b entity.Candle) bool { return a.High > b.High }).High
	return candles[len(candles)-1].Close > highest
}

// volumeConsistency 最近 5 根收盘 K 线中成交量不低于 20 根均量的比例
func volumeConsistency(candles []entity.Candle) float64 {
	closed := candles[:max(0, len(candles)-1)]
	if len(closed) < consistencyAvgWindow {
		return 0
	}
	avg := utils.Avg(volumes(closed[len(closed)-consistencyAvgWindow:]))
	if avg == 0 {
		return 0
	}
	window := closed[len(closed)-consistencyWindow:]
	return float64(lo.CountBy(window, func(c entity.Candle) bool { return c.Volume >= avg })) / consistencyWindow
}
