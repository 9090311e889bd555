package utils

// Ring 是定长环形缓冲区，写满后覆盖最旧的元素。非并发安全。
type Ring[T any] struct {
	buf   []T
	start int
	size  int
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

func (r *Ring[T]) Len() int { return r.size }

func (r *Ring[T]) Cap() int { return len(r.buf) }

// Push 追加元素，返回是否淘汰了最旧的元素
func (r *Ring[T]) Push(v T) bool {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return false
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
	return true
}

// At 按从旧到新的顺序取第 i 个元素，负数表示从末尾倒数
func (r *Ring[T]) At(i int) T {
	if i < 0 {
		i += r.size
	}
	if i < 0 || i >= r.size {
		panic("utils: ring index out of range")
	}
	return r.buf[(r.start+i)%len(r.buf)]
}

func (r *Ring[T]) Last() (T, bool) {
	if r.size == 0 {
		var zero T
		return zero, false
	}
	return r.At(-1), true
}

// ReplaceLast 原地替换最新元素
func (r *Ring[T]) ReplaceLast(v T) bool {
	if r.size == 0 {
		return false
	}
	r.buf[(r.start+r.size-1)%len(r.buf)] = v
	return true
}

// Slice 返回从旧到新的副本
func (r *Ring[T]) Slice() []T {
	out := make([]T, r.size)
	for i := range out {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}
