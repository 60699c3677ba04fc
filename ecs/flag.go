package ecs

// flagBackend stores no per-index payload. Presence lives entirely in the
// wrapper's bitmap, so it suits zero-size marker kinds. Values written
// through Get pointers are not retained.
type flagBackend[T any] struct {
	zero T
}

// NewFlag returns a payload-free Backend for marker kinds.
func NewFlag[T any]() Backend[T] {
	return &flagBackend[T]{}
}

func (b *flagBackend[T]) Get(idx uint32) *T {
	b.zero = *new(T)
	return &b.zero
}

func (b *flagBackend[T]) Insert(idx uint32, v T) {}

func (b *flagBackend[T]) Remove(idx uint32) T {
	var zero T
	return zero
}

func (b *flagBackend[T]) Clear() {}
