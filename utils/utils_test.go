package utils

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestRingPushEvictsOldest(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	if r.Len() != 3 {
		t.Fatalf("len = %d, want 3", r.Len())
	}
	got := r.Slice()
	want := []int{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slice = %v, want %v", got, want)
		}
	}
	if r.At(0) != 3 || r.At(-1) != 5 {
		t.Fatalf("At(0)=%d At(-1)=%d", r.At(0), r.At(-1))
	}
}

func TestRingReplaceLast(t *testing.T) {
	r := NewRing[int](2)
	if r.ReplaceLast(1) {
		t.Fatal("replace on empty ring should fail")
	}
	r.Push(1)
	r.Push(2)
	r.Push(3)
	r.ReplaceLast(9)
	if last, _ := r.Last(); last != 9 {
		t.Fatalf("last = %d, want 9", last)
	}
	if r.Len() != 2 {
		t.Fatalf("len = %d, want 2", r.Len())
	}
}

func TestWelfordMatchesBatch(t *testing.T) {
	data := []float64{5, -2, 3, 3, -1, 8}
	var w Welford
	for _, v := range data {
		w.Add(v)
	}
	mean := Avg(data)
	var ss float64
	for _, v := range data {
		ss += (v - mean) * (v - mean)
	}
	pop := math.Sqrt(ss / float64(len(data)))
	if math.Abs(w.Mean()-mean) > 1e-9 || math.Abs(w.PopStdDev()-pop) > 1e-9 {
		t.Fatalf("welford mean=%v std=%v, want %v %v", w.Mean(), w.PopStdDev(), mean, pop)
	}
}

func TestStdDevSample(t *testing.T) {
	if StdDev([]float64{1}) != 0 {
		t.Fatal("single point should yield 0")
	}
	if got := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}); math.Abs(got-2.138089935) > 1e-6 {
		t.Fatalf("stddev = %v", got)
	}
}

func TestPctChange(t *testing.T) {
	if PctChange(0, 5) != 0 {
		t.Fatal("zero base should yield 0")
	}
	if got := PctChange(100, 104); math.Abs(got-4) > 1e-9 {
		t.Fatalf("pct = %v", got)
	}
}

func TestRetryWithBackoff(t *testing.T) {
	calls := 0
	res, err := RetryWithBackoff(context.Background(), func(context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("boom")
		}
		return 42, nil
	}, 3)
	if err != nil || res != 42 || calls != 2 {
		t.Fatalf("res=%d err=%v calls=%d", res, err, calls)
	}

	sentinel := errors.New("always")
	_, err = RetryWithBackoff(context.Background(), func(context.Context) (int, error) {
		return 0, sentinel
	}, 1)
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want wrapped sentinel", err)
	}
}

func TestRetryWithBackoffCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RetryWithBackoff(ctx, func(context.Context) (int, error) {
		return 0, errors.New("fail")
	}, 5)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
