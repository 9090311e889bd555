// Package ranking 按需生成策略排行榜。
package ranking

import (
	"cmp"
	"slices"
	"time"

	"github.com/gtoxlili/pumpRadar/config"
	"github.com/gtoxlili/pumpRadar/entity"
	"github.com/gtoxlili/pumpRadar/strategy"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "ranking")

// PriceSource 提供交易对的最新价格，用于估算浮动盈亏
type PriceSource interface {
	LastPrice(symbol string) (float64, bool)
}

type Entry struct {
	Rank          int                    `json:"rank"`
	Summary       entity.StrategySummary `json:"summary"`
	OpenPositions int                    `json:"open_positions"`
	UnrealizedPnl float64                `json:"unrealized_pnl"`
}

type Rankings struct {
	GeneratedAt time.Time `json:"generated_at"`
	WithTrades  int       `json:"strategies_with_trades"`
	Top         []Entry   `json:"top"`
	Long        []Entry   `json:"long"`
	Short       []Entry   `json:"short"`
}

func (r Rankings) Best() (Entry, bool)      { return first(r.Top) }
func (r Rankings) BestLong() (Entry, bool)  { return first(r.Long) }
func (r Rankings) BestShort() (Entry, bool) { return first(r.Short) }

func first(entries []Entry) (Entry, bool) {
	if len(entries) == 0 {
		return Entry{}, false
	}
	return entries[0], true
}

type Engine struct {
	topN   int
	prices PriceSource
	now    func() time.Time
}

// NewEngine prices 可以为 nil，此时不计算浮动盈亏
func NewEngine(topN int, prices PriceSource) *Engine {
	if topN <= 0 {
		topN = config.TopN
	}
	return &Engine{topN: topN, prices: prices, now: time.Now}
}

// Calculate 只统计有成交的策略，按总盈亏降序，盈亏相同时按 id 升序
func (e *Engine) Calculate(strategies []*strategy.TradingStrategy) Rankings {
	traded := lo.Filter(strategies, func(s *strategy.TradingStrategy, _ int) bool {
		return s.TotalTrades() > 0
	})
	entries := lo.Map(traded, func(s *strategy.TradingStrategy, _ int) Entry {
		return e.entry(s)
	})
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(b.Summary.Stats.TotalPnl, a.Summary.Stats.TotalPnl); c != 0 {
			return c
		}
		return cmp.Compare(a.Summary.ID, b.Summary.ID)
	})

	long, short := lo.FilterReject(entries, func(en Entry, _ int) bool {
		return en.Summary.Config.Direction == entity.Long
	})
	return Rankings{
		GeneratedAt: e.now(),
		WithTrades:  len(entries),
		Top:         e.rank(entries),
		Long:        e.rank(long),
		Short:       e.rank(short),
	}
}

func (e *Engine) entry(s *strategy.TradingStrategy) Entry {
	en := Entry{Summary: s.Summary(false)}
	positions := s.Positions()
	en.OpenPositions = len(positions)
	if e.prices != nil {
		en.UnrealizedPnl = lo.SumBy(positions, func(p entity.Position) float64 {
			mark, ok := e.prices.LastPrice(p.Symbol)
			if !ok {
				return 0
			}
			return p.UnrealizedPnL(mark)
		})
	}
	return en
}

func (e *Engine) rank(entries []Entry) []Entry {
	top := slices.Clone(entries[:min(e.topN, len(entries))])
	for i := range top {
		top[i].Rank = i + 1
	}
	return top
}

// Log 输出排行榜
func (r Rankings) Log() {
	best, ok := r.Best()
	if !ok {
		log.Info("no strategy has closed a trade yet")
		return
	}
	log.WithFields(summaryFields(best)).Info("best overall")
	if en, ok := r.BestLong(); ok {
		log.WithFields(summaryFields(en)).Info("best long")
	}
	if en, ok := r.BestShort(); ok {
		log.WithFields(summaryFields(en)).Info("best short")
	}
	for _, en := range r.Top {
		log.WithFields(summaryFields(en)).Infof("#%d %s", en.Rank, en.Summary.Name)
	}
}

func summaryFields(en Entry) logrus.Fields {
	st := en.Summary.Stats
	return logrus.Fields{
		"id":            en.Summary.ID,
		"direction":     en.Summary.Config.Direction,
		"trades":        st.TotalTrades,
		"win_rate":      st.WinRate,
		"pnl":           st.TotalPnl,
		"profit_factor": st.ProfitFactor,
		"unrealized":    en.UnrealizedPnl,
		"tp":            en.Summary.Config.TakeProfitPct,
		"sl":            en.Summary.Config.StopLossPct,
	}
}
