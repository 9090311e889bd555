package detector

import (
	"math"
	"testing"

	"github.com/gtoxlili/pumpRadar/entity"
)

func series(closes ...float64) []entity.Candle {
	out := make([]entity.Candle, len(closes))
	for i, c := range closes {
		out[i] = entity.Candle{Timestamp: base + int64(i)*60, Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return out
}

func TestRSI(t *testing.T) {
	if rsi(series(1, 2, 3)) != nil {
		t.Fatal("short history should give nil rsi")
	}
	up := make([]float64, 15)
	for i := range up {
		up[i] = float64(i + 1)
	}
	if v := rsi(series(up...)); v == nil || *v != 100 {
		t.Fatalf("rsi of rising series = %v, want 100", v)
	}
	alt := []float64{10, 11, 10, 11, 10, 11, 10, 11, 10, 11, 10, 11, 10, 11, 10}
	if v := rsi(series(alt...)); v == nil || math.Abs(*v-50) > 1e-9 {
		t.Fatalf("rsi of alternating series = %v, want 50", v)
	}
}

func TestMomentum(t *testing.T) {
	if got := momentum(series(1, 2, 3)); got != 0 {
		t.Fatalf("momentum = %v, want 0", got)
	}
	// (10-6)/|6-4| = 2
	if got := momentum(series(4, 5, 6, 8, 10)); got != 2 {
		t.Fatalf("momentum = %v, want 2", got)
	}
	if got := momentum(series(5, 5, 5, 6, 7)); got != 0 {
		t.Fatalf("momentum with flat denominator = %v, want 0", got)
	}
}

func TestBuyPressure(t *testing.T) {
	candles := series(1, 1, 1, 1, 1, 1, 1, 1, 1, 1)
	for i := 0; i < 7; i++ {
		candles[i].Close = candles[i].Open + 1
	}
	if got := buyPressure(candles); got != 70 {
		t.Fatalf("buy pressure = %v, want 70", got)
	}
}

func TestVolumeSpikeTimeNormalization(t *testing.T) {
	candles := series(make([]float64, 20)...)
	for i := range candles {
		candles[i].Volume = 100
	}
	last := &candles[len(candles)-1]
	last.Volume = 150

	// 只过去了 30 秒，估算整根成交量为 300
	if got := volumeSpike(candles, last.Timestamp+30); math.Abs(got-3) > 1e-9 {
		t.Fatalf("ratio = %v, want 3", got)
	}
	// 过早的 tick 不做折算
	if got := volumeSpike(candles, last.Timestamp+3); math.Abs(got-1.5) > 1e-9 {
		t.Fatalf("ratio = %v, want 1.5", got)
	}
}

func TestFeatureRanges(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	candles := series(closes...)
	if ts := trendStrength(candles); ts < 0 || ts > 1 {
		t.Fatalf("trend strength %v out of range", ts)
	} else if ts != 1 {
		t.Fatalf("steady uptrend should be fully above ema, got %v", ts)
	}
	if !isBreakout(candles) {
		t.Fatal("new high should be a breakout")
	}
	if vc := volumeConsistency(candles); vc != 1 {
		t.Fatalf("flat volume consistency = %v, want 1", vc)
	}
}
