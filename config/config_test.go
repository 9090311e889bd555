package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestDefaultGridSize(t *testing.T) {
	g := DefaultGrid()
	// 7*7*6*5*5*5*1*2*2*1*2*1
	if got, want := g.Size(), 294000; got != want {
		t.Fatalf("grid size = %d, want %d", got, want)
	}
}

func TestGridCombinationCoversCorners(t *testing.T) {
	g := DefaultGrid()
	first := g.Combination(0)
	if first.TakeProfitPct != 2 || first.StopLossPct != 1 || first.ReducePctPerMinute != 0 {
		t.Fatalf("first combination = %+v", first)
	}
	last := g.Combination(g.Size() - 1)
	if last.TakeProfitPct != 20 || last.StopLossPct != 10 || last.MinVolumeConsistency != 0.3 || last.TrailingStop {
		t.Fatalf("last combination = %+v", last)
	}
}

func TestGridValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(g *Grid)
	}{
		{"empty axis", func(g *Grid) { g.StopLoss = nil }},
		{"zero take profit", func(g *Grid) { g.TakeProfit = []float64{0} }},
		{"stop loss 100", func(g *Grid) { g.StopLoss = []float64{100} }},
		{"negative reduce", func(g *Grid) { g.ReducePctPerMinute = []float64{-1} }},
		{"bad timeframe", func(g *Grid) { g.Timeframe = []string{"3m"} }},
		{"rsi out of range", func(g *Grid) { g.RSIThreshold = []float64{120} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := DefaultGrid()
			tc.mutate(&g)
			if err := g.Validate(); !errors.Is(err, ErrInvalidGrid) {
				t.Fatalf("err = %v, want ErrInvalidGrid", err)
			}
		})
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
venue: binance
symbols: [BTCUSDT]
detector:
  cooldown: 2m
  min_confidence: 55
population:
  max_strategies: 40
  grid:
    take_profit: [5]
    stop_loss: [2]
    rsi_threshold: [30]
    volume_multiplier: [2]
    price_increase_threshold: [1]
    min_confidence: [50]
    timeframe: ["1m"]
    trailing_stop: [false]
    min_trend_strength: [0]
    require_breakout: [false]
    min_volume_consistency: [0]
    reduce_pct_per_minute: [0, 10]
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PUMPRADAR_METRICS_ADDR", ":9999")
	t.Setenv("PUMPRADAR_SYMBOLS", "ethusdt, solusdt,")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Venue != "binance" || cfg.Detector.Cooldown != 2*time.Minute || cfg.Detector.MinConfidence != 55 {
		t.Fatalf("yaml not applied: %+v", cfg.Detector)
	}
	if cfg.Detector.PriceIncrease1m != 2.0 {
		t.Fatalf("defaults lost: %v", cfg.Detector.PriceIncrease1m)
	}
	if cfg.Metrics.Addr != ":9999" {
		t.Fatalf("env override not applied: %s", cfg.Metrics.Addr)
	}
	if len(cfg.Symbols) != 2 || cfg.Symbols[0] != "ETHUSDT" || cfg.Symbols[1] != "SOLUSDT" {
		t.Fatalf("symbols = %v", cfg.Symbols)
	}
	if cfg.Population.Grid.Size() != 2 {
		t.Fatalf("grid size = %d", cfg.Population.Grid.Size())
	}
}

func TestLoadRejectsBadVenue(t *testing.T) {
	t.Setenv("PUMPRADAR_VENUE", "kraken")
	if _, err := Load(""); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}
