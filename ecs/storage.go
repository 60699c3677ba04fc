package ecs

import (
	"reflect"

	"github.com/kelindar/bitmap"
)

// Backend is the raw value store behind a MaskedStorage. It only moves values;
// presence is tracked by the wrapper's bitmap. Get and Remove may assume the
// index is present. Pointers returned by Get stay valid until the next Insert
// on the same backend.
type Backend[T any] interface {
	Get(idx uint32) *T
	Insert(idx uint32, v T)
	Remove(idx uint32) T
	Clear()
}

// MaskedStorage pairs a presence bitmap with an interchangeable backend.
// The bitmap is the single source of truth for which indices hold a value:
// a set bit and a stored value always change together.
type MaskedStorage[T any] struct {
	mask  bitmap.Bitmap
	inner Backend[T]
	n     int
}

func NewMaskedStorage[T any](inner Backend[T]) *MaskedStorage[T] {
	return &MaskedStorage[T]{inner: inner}
}

// Contains reports whether idx holds a value.
func (s *MaskedStorage[T]) Contains(idx uint32) bool {
	return s.mask.Contains(idx)
}

// Get returns a pointer to the value at idx, or nil,false if absent.
func (s *MaskedStorage[T]) Get(idx uint32) (*T, bool) {
	if !s.mask.Contains(idx) {
		return nil, false
	}
	return s.inner.Get(idx), true
}

// Insert stores v at idx. If a value was already present it is replaced and
// returned with true.
func (s *MaskedStorage[T]) Insert(idx uint32, v T) (T, bool) {
	if s.mask.Contains(idx) {
		p := s.inner.Get(idx)
		prev := *p
		s.inner.Insert(idx, v)
		return prev, true
	}
	s.inner.Insert(idx, v)
	s.mask.Set(idx)
	s.n++
	var zero T
	return zero, false
}

// Remove takes the value at idx out of the storage. Removing an absent index
// is a no-op returning zero,false.
func (s *MaskedStorage[T]) Remove(idx uint32) (T, bool) {
	if !s.mask.Contains(idx) {
		var zero T
		return zero, false
	}
	v := s.inner.Remove(idx)
	s.mask.Remove(idx)
	s.n--
	return v, true
}

// Clear drops every value and resets the mask.
func (s *MaskedStorage[T]) Clear() {
	s.inner.Clear()
	s.mask = bitmap.Bitmap{}
	s.n = 0
}

// Len returns the number of present indices.
func (s *MaskedStorage[T]) Len() int {
	return s.n
}

// Range calls fn for every present index in ascending order.
func (s *MaskedStorage[T]) Range(fn func(idx uint32)) {
	s.mask.Range(fn)
}

// erased store hooks used by the World's type-erased slot table.

func (s *MaskedStorage[T]) removeIndex(idx uint32) bool {
	_, ok := s.Remove(idx)
	return ok
}

func (s *MaskedStorage[T]) containsIndex(idx uint32) bool {
	return s.mask.Contains(idx)
}

func (s *MaskedStorage[T]) clearAll() {
	s.Clear()
}

func (s *MaskedStorage[T]) length() int {
	return s.n
}

func (s *MaskedStorage[T]) rangeIndex(fn func(idx uint32)) {
	s.mask.Range(fn)
}

func (s *MaskedStorage[T]) anyAt(idx uint32) (any, bool) {
	p, ok := s.Get(idx)
	if !ok {
		return nil, false
	}
	return *p, true
}

func (s *MaskedStorage[T]) setAny(idx uint32, v any) error {
	tv, ok := v.(T)
	if !ok {
		return ErrKindMismatch
	}
	s.Insert(idx, tv)
	return nil
}

func (s *MaskedStorage[T]) valueType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
