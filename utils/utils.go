package utils

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/samber/lo"
)

// RetryWithBackoff 执行泛型操作 op，并在失败时按指数退避重试。
// maxRetries 指定最大重试次数（不含首次尝试），ctx 取消时立即返回。
func RetryWithBackoff[T any](ctx context.Context, op func(ctx context.Context) (T, error), maxRetries int) (T, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	baseDelay := 100 * time.Millisecond
	maxDelay := 5 * time.Second

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if attempt == maxRetries {
			break
		}

		// 指数退避：delay = min(maxDelay, baseDelay * 2^attempt)
		delay := baseDelay << attempt
		if delay > maxDelay {
			delay = maxDelay
		}

		// 带抖动：在 [delay/2, delay] 区间随机
		half := delay / 2
		jitter := half + time.Duration(rand.Int63n(int64(delay-half)+1))
		select {
		case <-ctx.Done():
			return lo.Empty[T](), ctx.Err()
		case <-time.After(jitter):
		}
	}

	return lo.Empty[T](), fmt.Errorf("after %d retries, last error: %w", maxRetries, lastErr)
}

func Avg(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return lo.Sum(data) / float64(len(data))
}

// StdDev 样本标准差 (n-1)
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}

	mean := Avg(data)
	sumOfSquares := 0.0
	for _, val := range data {
		sumOfSquares += math.Pow(val-mean, 2)
	}
	return math.Sqrt(sumOfSquares / float64(len(data)-1))
}

// PctChange 返回 from -> to 的百分比变化，from 为 0 时返回 0
func PctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

func Clamp(v, lower, upper float64) float64 {
	return math.Max(lower, math.Min(upper, v))
}

// Welford 在线计算均值与总体方差，截断历史记录后统计量不受影响
type Welford struct {
	n    int
	mean float64
	m2   float64
}

func (w *Welford) Add(x float64) {
	w.n++
	delta := x - w.mean
	w.mean += delta / float64(w.n)
	w.m2 += delta * (x - w.mean)
}

func (w *Welford) Count() int { return w.n }

func (w *Welford) Mean() float64 { return w.mean }

// PopStdDev 总体标准差
func (w *Welford) PopStdDev() float64 {
	if w.n == 0 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.n))
}
