package trade

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Index 记录每个交易对上当前持仓的策略 id，是缓存而不是事实来源
type Index struct {
	mu       sync.RWMutex
	bySymbol map[string]map[int]struct{}
}

func NewIndex() *Index {
	return &Index{
		bySymbol: make(map[string]map[int]struct{}),
	}
}

// Add 在策略开仓后调用
func (ix *Index) Add(symbol string, id int) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	set, ok := ix.bySymbol[symbol]
	if !ok {
		set = make(map[int]struct{})
		ix.bySymbol[symbol] = set
	}
	set[id] = struct{}{}
}

// Remove 在策略平仓或撤单后调用，集合为空时删除整个条目
func (ix *Index) Remove(symbol string, id int) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	set, ok := ix.bySymbol[symbol]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(ix.bySymbol, symbol)
	}
}

// Get 返回升序的 id 副本
func (ix *Index) Get(symbol string) []int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	set, ok := ix.bySymbol[symbol]
	if !ok || len(set) == 0 {
		return nil
	}
	ids := lo.Keys(set)
	slices.Sort(ids)
	return ids
}

func (ix *Index) Contains(symbol string, id int) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.bySymbol[symbol][id]
	return ok
}

// Symbols 当前有持仓的交易对数量
func (ix *Index) Symbols() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.bySymbol)
}

// Strategies 至少在一个交易对上有持仓的策略数量
func (ix *Index) Strategies() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	seen := make(map[int]struct{})
	for _, set := range ix.bySymbol {
		for id := range set {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

// Positions 索引中的 (交易对, 策略) 条目总数
func (ix *Index) Positions() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return lo.SumBy(lo.Values(ix.bySymbol), func(set map[int]struct{}) int { return len(set) })
}

// Prune 删除空条目，返回删除数量
func (ix *Index) Prune() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	removed := 0
	for symbol, set := range ix.bySymbol {
		if len(set) == 0 {
			delete(ix.bySymbol, symbol)
			removed++
		}
	}
	return removed
}

// Snapshot 返回整个索引的副本
func (ix *Index) Snapshot() map[string][]int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	clone := make(map[string][]int, len(ix.bySymbol))
	for symbol, set := range ix.bySymbol {
		ids := lo.Keys(set)
		slices.Sort(ids)
		clone[symbol] = ids
	}
	return clone
}
