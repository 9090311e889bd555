package strategy

import (
	"errors"
	"testing"

	"github.com/gtoxlili/pumpRadar/config"
	"github.com/gtoxlili/pumpRadar/entity"
)

func TestGenerateSamplesBothDirections(t *testing.T) {
	cfg := config.Default().Population
	cfg.MaxStrategies = 100
	cfg.Seed = 42

	strategies, err := Generate(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(strategies) != 100 {
		t.Fatalf("population = %d, want 100", len(strategies))
	}
	for i, s := range strategies {
		if s.ID() != i+1 {
			t.Fatalf("id %d at position %d", s.ID(), i)
		}
		want := entity.Long
		if i >= 50 {
			want = entity.Short
		}
		if s.Direction() != want {
			t.Fatalf("strategy %d direction %s, want %s", s.ID(), s.Direction(), want)
		}
		if s.Config().PositionSizeUSDT != 50 {
			t.Fatalf("position size = %v", s.Config().PositionSizeUSDT)
		}
	}
	// LONG 与 SHORT 共享同一批参数组合
	a, b := strategies[3].Config(), strategies[53].Config()
	a.Direction, b.Direction = "", ""
	if a != b {
		t.Fatalf("mirrored configs differ: %+v vs %+v", a, b)
	}
}

func TestGenerateDeterministicWithSeed(t *testing.T) {
	cfg := config.Default().Population
	cfg.MaxStrategies = 20
	cfg.Seed = 7
	first, _ := Generate(cfg)
	second, _ := Generate(cfg)
	for i := range first {
		if first[i].Name() != second[i].Name() {
			t.Fatalf("seeded generation not deterministic at %d", i)
		}
	}
}

func TestGenerateSmallGridUsesAll(t *testing.T) {
	cfg := config.Default().Population
	cfg.Grid.TakeProfit = []float64{5}
	cfg.Grid.StopLoss = []float64{2}
	cfg.Grid.RSIThreshold = []float64{30}
	cfg.Grid.VolumeMultiplier = []float64{2}
	cfg.Grid.PriceIncreaseThreshold = []float64{1}
	cfg.Grid.MinConfidence = []float64{50}
	cfg.Grid.TrailingStop = []bool{false}
	cfg.Grid.MinTrendStrength = []float64{0}
	cfg.Grid.MinVolumeConsistency = []float64{0}
	cfg.Grid.ReducePctPerMinute = []float64{0, 10}
	cfg.MaxStrategies = 1000

	strategies, err := Generate(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(strategies) != 4 {
		t.Fatalf("population = %d, want 4", len(strategies))
	}
}

func TestGenerateFailsFast(t *testing.T) {
	cfg := config.Default().Population
	cfg.Grid.TakeProfit = nil
	if _, err := Generate(cfg); !errors.Is(err, config.ErrInvalidGrid) {
		t.Fatalf("err = %v, want ErrInvalidGrid", err)
	}
}

func TestSampleIndicesDistinct(t *testing.T) {
	got := sampleIndices(1000, 300, 1)
	if len(got) != 300 {
		t.Fatalf("len = %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("indices not strictly increasing at %d", i)
		}
	}
}
