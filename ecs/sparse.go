package ecs

// sparseBackend keeps values in a map keyed by entity index. Best for kinds
// attached to few entities out of a large index space.
type sparseBackend[T any] struct {
	data map[uint32]*T
}

// NewSparse returns a map-backed Backend.
func NewSparse[T any]() Backend[T] {
	return &sparseBackend[T]{data: make(map[uint32]*T, 64)}
}

func (b *sparseBackend[T]) Get(idx uint32) *T {
	return b.data[idx]
}

func (b *sparseBackend[T]) Insert(idx uint32, v T) {
	if p, ok := b.data[idx]; ok {
		*p = v
		return
	}
	p := new(T)
	*p = v
	b.data[idx] = p
}

func (b *sparseBackend[T]) Remove(idx uint32) T {
	p := b.data[idx]
	delete(b.data, idx)
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

func (b *sparseBackend[T]) Clear() {
	clear(b.data)
}
