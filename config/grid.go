package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gtoxlili/pumpRadar/entity"
)

var ErrInvalidGrid = errors.New("invalid parameter grid")

// Grid 是策略种群的参数网格，每个字段为一个维度的候选值
type Grid struct {
	TakeProfit             []float64 `yaml:"take_profit"`
	StopLoss               []float64 `yaml:"stop_loss"`
	RSIThreshold           []float64 `yaml:"rsi_threshold"`
	VolumeMultiplier       []float64 `yaml:"volume_multiplier"`
	PriceIncreaseThreshold []float64 `yaml:"price_increase_threshold"`
	MinConfidence          []float64 `yaml:"min_confidence"`
	Timeframe              []string  `yaml:"timeframe"`
	TrailingStop           []bool    `yaml:"trailing_stop"`
	MinTrendStrength       []float64 `yaml:"min_trend_strength"`
	RequireBreakout        []bool    `yaml:"require_breakout"`
	MinVolumeConsistency   []float64 `yaml:"min_volume_consistency"`
	ReducePctPerMinute     []float64 `yaml:"reduce_pct_per_minute"`
}

func DefaultGrid() Grid {
	return Grid{
		TakeProfit:             []float64{2, 3, 5, 7, 10, 15, 20},
		StopLoss:               []float64{1, 2, 3, 4, 5, 7, 10},
		RSIThreshold:           []float64{20, 30, 40, 50, 60, 70},
		VolumeMultiplier:       []float64{1.0, 1.5, 2, 3, 4},
		PriceIncreaseThreshold: []float64{0.3, 0.5, 1, 1.5, 2},
		MinConfidence:          []float64{30, 40, 50, 60, 70},
		Timeframe:              []string{entity.Timeframe1m},
		TrailingStop:           []bool{true, false},
		MinTrendStrength:       []float64{0.0, 0.3},
		RequireBreakout:        []bool{false},
		MinVolumeConsistency:   []float64{0.0, 0.3},
		ReducePctPerMinute:     []float64{0},
	}
}

// Dims 返回每个维度的长度，顺序与 Combination 的下标一致
func (g Grid) Dims() []int {
	return []int{
		len(g.TakeProfit), len(g.StopLoss), len(g.RSIThreshold), len(g.VolumeMultiplier),
		len(g.PriceIncreaseThreshold), len(g.MinConfidence), len(g.Timeframe), len(g.TrailingStop),
		len(g.MinTrendStrength), len(g.RequireBreakout), len(g.MinVolumeConsistency), len(g.ReducePctPerMinute),
	}
}

// Size 网格笛卡尔积的组合数
func (g Grid) Size() int {
	n := 1
	for _, d := range g.Dims() {
		n *= d
	}
	return n
}

// Combination 按混合进制把第 idx 个组合解码成策略配置（不含方向与仓位）
func (g Grid) Combination(idx int) entity.StrategyConfig {
	dims := g.Dims()
	pos := make([]int, len(dims))
	for i := len(dims) - 1; i >= 0; i-- {
		pos[i] = idx % dims[i]
		idx /= dims[i]
	}
	return entity.StrategyConfig{
		TakeProfitPct:             g.TakeProfit[pos[0]],
		StopLossPct:               g.StopLoss[pos[1]],
		RSIThreshold:              g.RSIThreshold[pos[2]],
		VolumeMultiplier:          g.VolumeMultiplier[pos[3]],
		PriceIncreaseThresholdPct: g.PriceIncreaseThreshold[pos[4]],
		MinConfidence:             g.MinConfidence[pos[5]],
		Timeframe:                 g.Timeframe[pos[6]],
		TrailingStop:              g.TrailingStop[pos[7]],
		MinTrendStrength:          g.MinTrendStrength[pos[8]],
		RequireBreakout:           g.RequireBreakout[pos[9]],
		MinVolumeConsistency:      g.MinVolumeConsistency[pos[10]],
		ReducePctPerMinute:        g.ReducePctPerMinute[pos[11]],
	}
}

func (g Grid) Validate() error {
	names := []string{
		"take_profit", "stop_loss", "rsi_threshold", "volume_multiplier", "price_increase_threshold",
		"min_confidence", "timeframe", "trailing_stop", "min_trend_strength", "require_breakout",
		"min_volume_consistency", "reduce_pct_per_minute",
	}
	for i, d := range g.Dims() {
		if d == 0 {
			return fmt.Errorf("%w: %s has no values", ErrInvalidGrid, names[i])
		}
	}
	for _, v := range g.TakeProfit {
		if v <= 0 {
			return fmt.Errorf("%w: take_profit %v must be positive", ErrInvalidGrid, v)
		}
	}
	for _, v := range g.StopLoss {
		if v <= 0 || v >= 100 {
			return fmt.Errorf("%w: stop_loss %v must be in (0, 100)", ErrInvalidGrid, v)
		}
	}
	for _, v := range g.RSIThreshold {
		if v < 0 || v > 100 {
			return fmt.Errorf("%w: rsi_threshold %v must be in [0, 100]", ErrInvalidGrid, v)
		}
	}
	for _, v := range g.MinConfidence {
		if v < 0 || v > 100 {
			return fmt.Errorf("%w: min_confidence %v must be in [0, 100]", ErrInvalidGrid, v)
		}
	}
	nonNegative := map[string][]float64{
		"volume_multiplier":        g.VolumeMultiplier,
		"price_increase_threshold": g.PriceIncreaseThreshold,
		"min_trend_strength":       g.MinTrendStrength,
		"min_volume_consistency":   g.MinVolumeConsistency,
		"reduce_pct_per_minute":    g.ReducePctPerMinute,
	}
	for name, values := range nonNegative {
		for _, v := range values {
			if v < 0 {
				return fmt.Errorf("%w: %s %v must not be negative", ErrInvalidGrid, name, v)
			}
		}
	}
	for _, tf := range g.Timeframe {
		if !slices.Contains([]string{entity.Timeframe1m, entity.Timeframe5m}, tf) {
			return fmt.Errorf("%w: unknown timeframe %q", ErrInvalidGrid, tf)
		}
	}
	return nil
}
