package strategy

import (
	"fmt"
	"math/rand"
	"slices"

	"github.com/gtoxlili/pumpRadar/config"
	"github.com/gtoxlili/pumpRadar/entity"
	"github.com/samber/lo"
)

// Generate 由参数网格生成策略种群：组合数超过 max/2 时按种子随机抽样，
// 每个组合各生成一个 LONG 与一个 SHORT，id 从 1 连续编号。
func Generate(cfg config.PopulationConfig, opts ...Option) ([]*TradingStrategy, error) {
	if err := cfg.Grid.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxStrategies < 2 {
		return nil, fmt.Errorf("%w: max_strategies %d must be at least 2", config.ErrInvalidGrid, cfg.MaxStrategies)
	}
	if cfg.PositionSizeUSDT <= 0 {
		return nil, fmt.Errorf("%w: position size must be positive", config.ErrInvalidGrid)
	}

	perDirection := cfg.MaxStrategies / 2
	indices := sampleIndices(cfg.Grid.Size(), perDirection, cfg.Seed)

	combos := lo.Map(indices, func(idx int, _ int) entity.StrategyConfig {
		c := cfg.Grid.Combination(idx)
		c.PositionSizeUSDT = cfg.PositionSizeUSDT
		c.EntryFillCandles = cfg.EntryFillCandles
		return c
	})

	strategies := make([]*TradingStrategy, 0, 2*len(combos))
	for _, direction := range []entity.Direction{entity.Long, entity.Short} {
		for _, c := range combos {
			c.Direction = direction
			strategies = append(strategies, New(len(strategies)+1, c, opts...))
		}
	}
	log.WithField("strategies", len(strategies)).Infof("generated population from %d grid combinations", cfg.Grid.Size())
	return strategies, nil
}

// sampleIndices 不放回地从 [0, n) 中抽取 k 个下标（Floyd 算法），结果升序；k >= n 时返回全部
func sampleIndices(n, k int, seed int64) []int {
	if k >= n {
		return lo.Range(n)
	}
	rng := rand.New(rand.NewSource(seed))
	chosen := make(map[int]struct{}, k)
	for j := n - k; j < n; j++ {
		t := rng.Intn(j + 1)
		if _, ok := chosen[t]; ok {
			t = j
		}
		chosen[t] = struct{}{}
	}
	out := lo.Keys(chosen)
	slices.Sort(out)
	return out
}
