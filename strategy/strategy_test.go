package strategy

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/gtoxlili/pumpRadar/config"
	"github.com/gtoxlili/pumpRadar/entity"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func baseConfig(direction entity.Direction) entity.StrategyConfig {
	return entity.StrategyConfig{
		Direction:                 direction,
		TakeProfitPct:             5,
		StopLossPct:               2,
		PriceIncreaseThresholdPct: 1,
		VolumeMultiplier:          2,
		RSIThreshold:              50,
		MinConfidence:             60,
		Timeframe:                 entity.Timeframe1m,
		PositionSizeUSDT:          50,
	}
}

func signal() entity.PumpSignal {
	rsi := 70.0
	return entity.PumpSignal{
		Symbol:        "PEPE_USDT",
		Timeframe:     entity.Timeframe1m,
		Price:         100,
		PriceChange1m: 3,
		VolumeRatio:   4,
		RSI:           &rsi,
		Confidence:    75,
	}
}

func candle(high, low float64) entity.Candle {
	return entity.Candle{Open: low, High: high, Low: low, Close: high, Volume: 1}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestShouldEnter(t *testing.T) {
	low := 40.0
	cases := []struct {
		name   string
		mutate func(c *entity.StrategyConfig, s *entity.PumpSignal)
		want   bool
	}{
		{"passes", func(*entity.StrategyConfig, *entity.PumpSignal) {}, true},
		{"timeframe mismatch", func(c *entity.StrategyConfig, _ *entity.PumpSignal) { c.Timeframe = entity.Timeframe5m }, false},
		{"price change too small", func(_ *entity.StrategyConfig, s *entity.PumpSignal) { s.PriceChange1m = 0.5 }, false},
		{"volume too small", func(_ *entity.StrategyConfig, s *entity.PumpSignal) { s.VolumeRatio = 1 }, false},
		{"rsi below", func(_ *entity.StrategyConfig, s *entity.PumpSignal) { s.RSI = &low }, false},
		{"rsi missing", func(_ *entity.StrategyConfig, s *entity.PumpSignal) { s.RSI = nil }, true},
		{"confidence below", func(_ *entity.StrategyConfig, s *entity.PumpSignal) { s.Confidence = 59 }, false},
		{"trend required", func(c *entity.StrategyConfig, s *entity.PumpSignal) { c.MinTrendStrength = 0.3; s.TrendStrength = 0.2 }, false},
		{"trend met", func(c *entity.StrategyConfig, s *entity.PumpSignal) { c.MinTrendStrength = 0.3; s.TrendStrength = 0.5 }, true},
		{"breakout required", func(c *entity.StrategyConfig, _ *entity.PumpSignal) { c.RequireBreakout = true }, false},
		{"consistency required", func(c *entity.StrategyConfig, s *entity.PumpSignal) {
			c.MinVolumeConsistency = 0.3
			s.VolumeConsistency = 0.1
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, s := baseConfig(entity.Long), signal()
			tc.mutate(&c, &s)
			if got := New(1, c).ShouldEnter(s); got != tc.want {
				t.Fatalf("ShouldEnter = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLongTakeProfitScenario(t *testing.T) {
	s := New(1, baseConfig(entity.Long))
	if err := s.Enter("PEPE_USDT", 100, signal()); err != nil {
		t.Fatal(err)
	}
	pos, _ := s.Position("PEPE_USDT")
	if !approx(pos.TakeProfit, 105) || !approx(pos.StopLoss, 98) {
		t.Fatalf("tp/sl = %v/%v, want 105/98", pos.TakeProfit, pos.StopLoss)
	}

	res, ok := s.CheckExit("PEPE_USDT", candle(106, 99))
	if !ok || res.Reason != entity.ExitTP || !approx(res.ExitPrice, 105) {
		t.Fatalf("exit = %+v %v", res, ok)
	}
	rec, err := s.Close("PEPE_USDT", res.ExitPrice, res.Reason)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(rec.PnlUSDT, 5*pos.Quantity) {
		t.Fatalf("pnl = %v, want %v", rec.PnlUSDT, 5*pos.Quantity)
	}
	if s.HasPosition("PEPE_USDT") {
		t.Fatal("position should be closed")
	}
	if !approx(s.Balance(), config.StartingBalance+2.5) {
		t.Fatalf("balance = %v", s.Balance())
	}
}

func TestShortMirrorsLevels(t *testing.T) {
	s := New(1, baseConfig(entity.Short))
	_ = s.Enter("X", 100, signal())
	pos, _ := s.Position("X")
	if !approx(pos.TakeProfit, 95) || !approx(pos.StopLoss, 102) {
		t.Fatalf("tp/sl = %v/%v, want 95/102", pos.TakeProfit, pos.StopLoss)
	}
	res, ok := s.CheckExit("X", candle(103, 99))
	if !ok || res.Reason != entity.ExitSL || !approx(res.ExitPrice, 102) {
		t.Fatalf("exit = %+v %v", res, ok)
	}
}

func TestPnLSign(t *testing.T) {
	long := New(1, baseConfig(entity.Long))
	_ = long.Enter("X", 100, signal())
	rec, _ := long.Close("X", 101, entity.ExitTP)
	if rec.PnlUSDT <= 0 {
		t.Fatalf("long above entry pnl = %v, want > 0", rec.PnlUSDT)
	}

	short := New(2, baseConfig(entity.Short))
	_ = short.Enter("X", 100, signal())
	rec, _ = short.Close("X", 101, entity.ExitSL)
	if rec.PnlUSDT >= 0 {
		t.Fatalf("short above entry pnl = %v, want < 0", rec.PnlUSDT)
	}
}

func TestTakeProfitWinsOverStopLoss(t *testing.T) {
	for _, dir := range []entity.Direction{entity.Long, entity.Short} {
		s := New(1, baseConfig(dir))
		_ = s.Enter("X", 100, signal())
		res, ok := s.CheckExit("X", candle(200, 1))
		if !ok || res.Reason != entity.ExitTP {
			t.Fatalf("%s: exit = %+v, want TP", dir, res)
		}
	}
}

func TestOnePositionPerSymbol(t *testing.T) {
	s := New(1, baseConfig(entity.Long))
	if err := s.Enter("X", 100, signal()); err != nil {
		t.Fatal(err)
	}
	if err := s.Enter("X", 101, signal()); !errors.Is(err, ErrPositionExists) {
		t.Fatalf("err = %v, want ErrPositionExists", err)
	}
	if err := s.Enter("Y", 0, signal()); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("err = %v, want ErrInvalidPrice", err)
	}
	if _, err := s.Close("Z", 1, entity.ExitTP); !errors.Is(err, ErrNoPosition) {
		t.Fatalf("err = %v, want ErrNoPosition", err)
	}
}

func TestReduceTakeProfitConverges(t *testing.T) {
	clock := newClock()
	c := baseConfig(entity.Long)
	c.ReducePctPerMinute = 10
	s := New(1, c, WithClock(clock.Now))
	_ = s.Enter("X", 100, signal())

	quiet := candle(100.5, 99.5)
	prev := 105.0
	for k := 1; k <= 15; k++ {
		clock.Advance(time.Minute)
		if _, ok := s.CheckExit("X", quiet); ok {
			break
		}
		pos, _ := s.Position("X")
		if pos.TakeProfit > prev+1e-9 {
			t.Fatalf("minute %d: tp %v increased from %v", k, pos.TakeProfit, prev)
		}
		if pos.TakeProfit < pos.StopLoss-1e-9 {
			t.Fatalf("minute %d: tp %v crossed stop %v", k, pos.TakeProfit, pos.StopLoss)
		}
		if pos.LastReduceMinuteApplied != k {
			t.Fatalf("minute %d: last applied = %d", k, pos.LastReduceMinuteApplied)
		}
		prev = pos.TakeProfit
	}
}

func TestReduceAppliedOncePerMinute(t *testing.T) {
	clock := newClock()
	c := baseConfig(entity.Long)
	c.ReducePctPerMinute = 10
	s := New(1, c, WithClock(clock.Now))
	_ = s.Enter("X", 100, signal())

	clock.Advance(90 * time.Second)
	s.CheckExit("X", candle(100, 100))
	pos, _ := s.Position("X")
	// 总距离 5+2=7，每分钟 0.7
	if !approx(pos.TakeProfit, 104.3) {
		t.Fatalf("tp = %v, want 104.3", pos.TakeProfit)
	}
	s.CheckExit("X", candle(100, 100))
	pos, _ = s.Position("X")
	if !approx(pos.TakeProfit, 104.3) {
		t.Fatalf("tp moved twice in one minute: %v", pos.TakeProfit)
	}

	clock.Advance(time.Minute)
	res, ok := s.CheckExit("X", candle(103.7, 100))
	if !ok || res.Reason != entity.ExitTPReduced || !approx(res.ExitPrice, 103.6) {
		t.Fatalf("exit = %+v %v, want TP_REDUCED at 103.6", res, ok)
	}
}

func TestShortReduceClampedToStop(t *testing.T) {
	clock := newClock()
	c := baseConfig(entity.Short)
	c.ReducePctPerMinute = 50
	s := New(1, c, WithClock(clock.Now))
	_ = s.Enter("X", 100, signal())
	clock.Advance(10 * time.Minute)
	s.CheckExit("X", candle(100.1, 99.9))
	pos, ok := s.Position("X")
	if ok && pos.TakeProfit > pos.StopLoss+1e-9 {
		t.Fatalf("short tp %v beyond stop %v", pos.TakeProfit, pos.StopLoss)
	}
}

func TestTrailingStopRatchets(t *testing.T) {
	c := baseConfig(entity.Long)
	c.TakeProfitPct = 50
	c.TrailingStop = true
	s := New(1, c)
	_ = s.Enter("X", 100, signal())
	s.CheckExit("X", candle(110, 105))
	pos, _ := s.Position("X")
	if !approx(pos.StopLoss, 110*0.98) {
		t.Fatalf("stop = %v, want %v", pos.StopLoss, 110*0.98)
	}
	s.CheckExit("X", candle(109, 108))
	pos, _ = s.Position("X")
	if !approx(pos.StopLoss, 110*0.98) {
		t.Fatalf("stop loosened to %v", pos.StopLoss)
	}
}

func TestPendingEntryCancelled(t *testing.T) {
	c := baseConfig(entity.Long)
	c.EntryFillCandles = 2
	s := New(1, c)
	_ = s.Enter("X", 100, signal())

	if _, ok := s.CheckExit("X", candle(120, 110)); ok {
		t.Fatal("first unfilled candle should keep pending")
	}
	res, ok := s.CheckExit("X", candle(120, 110))
	if !ok || !res.Cancel {
		t.Fatalf("exit = %+v %v, want cancel", res, ok)
	}
	if err := s.Cancel("X"); err != nil {
		t.Fatal(err)
	}
	stats := s.CalculateFinalStats()
	if stats.CancelledTrades != 1 || stats.TotalTrades != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestPendingEntryFills(t *testing.T) {
	c := baseConfig(entity.Long)
	c.EntryFillCandles = 3
	s := New(1, c)
	_ = s.Enter("X", 100, signal())
	s.CheckExit("X", candle(101, 99))
	pos, _ := s.Position("X")
	if pos.State != entity.PositionOpen {
		t.Fatalf("state = %s, want OPEN", pos.State)
	}
}

func TestFinalStats(t *testing.T) {
	s := New(1, baseConfig(entity.Long))
	for _, exit := range []float64{105, 110} {
		_ = s.Enter("X", 100, signal())
		_, _ = s.Close("X", exit, entity.ExitTP)
	}
	stats := s.CalculateFinalStats()
	if stats.ProfitFactor != 0 {
		t.Fatalf("profit factor without losses = %v, want 0", stats.ProfitFactor)
	}
	if stats.WinRate != 100 || stats.TotalTrades != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	// pnl 2.5 与 5：均值 3.75，总体标准差 1.25
	if !approx(stats.Sharpe, 3) {
		t.Fatalf("sharpe = %v, want 3", stats.Sharpe)
	}

	_ = s.Enter("X", 100, signal())
	_, _ = s.Close("X", 90, entity.ExitSL)
	stats = s.CalculateFinalStats()
	if !approx(stats.ProfitFactor, 7.5/5) {
		t.Fatalf("profit factor = %v, want 1.5", stats.ProfitFactor)
	}
	// 峰值 1007.5，当前 1002.5
	if !approx(stats.MaxDrawdown, 5/1007.5*100) {
		t.Fatalf("drawdown = %v", stats.MaxDrawdown)
	}
	if !approx(stats.AvgLoss, -5) || !approx(stats.AvgWin, 3.75) {
		t.Fatalf("avg win/loss = %v/%v", stats.AvgWin, stats.AvgLoss)
	}
}

func TestHistoryCapAndTruncate(t *testing.T) {
	s := New(1, baseConfig(entity.Long), WithHistoryCap(3))
	for i := 0; i < 5; i++ {
		_ = s.Enter("X", 100, signal())
		_, _ = s.Close("X", 101, entity.ExitTP)
	}
	if n := len(s.History()); n != 3 {
		t.Fatalf("history len = %d, want 3", n)
	}
	if dropped := s.TruncateHistory(1); dropped != 2 {
		t.Fatalf("dropped = %d, want 2", dropped)
	}
	if s.CalculateFinalStats().TotalTrades != 5 {
		t.Fatal("truncation must not change stats")
	}
}

func TestName(t *testing.T) {
	c := baseConfig(entity.Short)
	c.VolumeMultiplier = 1.5
	c.RequireBreakout = true
	if got, want := New(7, c).Name(), "S007_SHORT_TP5%_SL2%_RSI50_Vol1.5x_Trend0_BRK_1m"; got != want {
		t.Fatalf("name = %q, want %q", got, want)
	}
}
