package ecs

// denseBackend keeps values in a flat slice indexed directly by entity index.
// Best for kinds attached to most entities; memory is proportional to the
// highest index ever inserted.
type denseBackend[T any] struct {
	data []T
}

// NewDense returns a slice-backed Backend.
func NewDense[T any]() Backend[T] {
	return &denseBackend[T]{data: make([]T, 0, 256)}
}

func (b *denseBackend[T]) Get(idx uint32) *T {
	if int(idx) >= len(b.data) {
		return nil
	}
	return &b.data[idx]
}

func (b *denseBackend[T]) Insert(idx uint32, v T) {
	for int(idx) >= len(b.data) {
		var zero T
		b.data = append(b.data, zero)
	}
	b.data[idx] = v
}

func (b *denseBackend[T]) Remove(idx uint32) T {
	v := b.data[idx]
	var zero T
	b.data[idx] = zero
	return v
}

func (b *denseBackend[T]) Clear() {
	b.data = b.data[:0]
}
