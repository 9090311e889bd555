package trade

import "github.com/gtoxlili/pumpRadar/entity"

// TimeframeVariants 把一个 1m 信号展开为各时间框架的副本，5m 涨幅为正时额外给出 5m 版本
func TimeframeVariants(signal entity.PumpSignal) []entity.PumpSignal {
	base := signal
	base.Timeframe = entity.Timeframe1m
	if signal.PriceChange5m <= 0 {
		return []entity.PumpSignal{base}
	}
	five := signal
	five.Timeframe = entity.Timeframe5m
	return []entity.PumpSignal{base, five}
}
