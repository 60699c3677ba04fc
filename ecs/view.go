package ecs

import (
	"fmt"
	"reflect"
)

// Masked is any storage view exposing a presence set, joinable with Join.
type Masked interface {
	count() int
	rangeIndex(fn func(idx uint32))
	containsIndex(idx uint32) bool
	owner() *Allocator
}

// View is a shared, entity-keyed handle on one kind's storage. Lookups check
// the handle's generation, so values of recycled indices never leak to stale
// handles.
type View[T any] struct {
	alloc *Allocator
	store *MaskedStorage[T]
}

// ViewOf builds a read view over kind T's storage.
func ViewOf[T any](w *World) (*View[T], error) {
	id, ok := w.kinds[typeOf[T]()]
	if !ok {
		return nil, fmt.Errorf("view %s: %w", typeOf[T](), ErrKindNotRegistered)
	}
	ms, err := storageOf[T](w, id)
	if err != nil {
		return nil, err
	}
	return &View[T]{alloc: w.alloc, store: ms}, nil
}

// Get returns a copy of entity e's value, or zero,false if e is stale or the
// value is absent.
func (v *View[T]) Get(e Entity) (T, bool) {
	if !v.alloc.Alive(e) {
		var zero T
		return zero, false
	}
	p, ok := v.store.Get(e.Index())
	if !ok {
		var zero T
		return zero, false
	}
	return *p, true
}

// Contains reports whether a live entity e carries this kind.
func (v *View[T]) Contains(e Entity) bool {
	return v.alloc.Alive(e) && v.store.Contains(e.Index())
}

// Each calls fn for every entity carrying this kind, in index order.
func (v *View[T]) Each(fn func(Entity, T)) {
	v.store.Range(func(idx uint32) {
		p, _ := v.store.Get(idx)
		fn(NewEntity(idx, v.alloc.generation(idx)), *p)
	})
}

// Len returns the number of entities carrying this kind.
func (v *View[T]) Len() int {
	return v.store.Len()
}

func (v *View[T]) count() int                    { return v.store.Len() }
func (v *View[T]) rangeIndex(fn func(uint32))    { v.store.Range(fn) }
func (v *View[T]) containsIndex(idx uint32) bool { return v.store.Contains(idx) }
func (v *View[T]) owner() *Allocator             { return v.alloc }

// ViewMut extends a View with mutation.
type ViewMut[T any] struct {
	View[T]
}

// ViewMutOf builds a writable view over kind T's storage.
func ViewMutOf[T any](w *World) (*ViewMut[T], error) {
	id, ok := w.kinds[typeOf[T]()]
	if !ok {
		return nil, fmt.Errorf("view %s: %w", typeOf[T](), ErrKindNotRegistered)
	}
	ms, err := storageOf[T](w, id)
	if err != nil {
		return nil, err
	}
	return &ViewMut[T]{View[T]{alloc: w.alloc, store: ms}}, nil
}

// GetMut returns a pointer to entity e's value for in-place mutation.
func (v *ViewMut[T]) GetMut(e Entity) (*T, bool) {
	if !v.alloc.Alive(e) {
		return nil, false
	}
	return v.store.Get(e.Index())
}

// Set stores val for entity e, inserting or replacing.
func (v *ViewMut[T]) Set(e Entity, val T) error {
	if !v.alloc.Alive(e) {
		return ErrStaleEntity
	}
	v.store.Insert(e.Index(), val)
	return nil
}

// Remove detaches this kind from entity e.
func (v *ViewMut[T]) Remove(e Entity) (T, bool) {
	if !v.alloc.Alive(e) {
		var zero T
		return zero, false
	}
	return v.store.Remove(e.Index())
}

// EachMut calls fn with a mutable pointer for every entity carrying this kind.
// fn must not insert or remove values of this kind.
func (v *ViewMut[T]) EachMut(fn func(Entity, *T)) {
	v.store.Range(func(idx uint32) {
		p, _ := v.store.Get(idx)
		fn(NewEntity(idx, v.alloc.generation(idx)), p)
	})
}

// DynView is an untyped, name-addressable handle on one kind's storage,
// for callers that only learn kinds at run time. Values cross the boundary
// as boxed copies.
type DynView struct {
	alloc *Allocator
	slot  *slot
	write bool
}

// DynViewOf builds a dynamic view over a registered kind. Writes through a
// view built with write=false report ErrReadOnly.
func (w *World) DynViewOf(k KindID, write bool) (*DynView, error) {
	if int(k) >= len(w.slots) || w.slots[k].store == nil {
		return nil, fmt.Errorf("dyn view %d: %w", k, ErrKindNotRegistered)
	}
	return &DynView{alloc: w.alloc, slot: w.slots[k], write: write}, nil
}

// Type returns the Go type stored under this kind.
func (v *DynView) Type() reflect.Type {
	return v.slot.typ
}

// Name returns the kind's type name.
func (v *DynView) Name() string {
	return v.slot.name
}

// Get returns a boxed copy of entity e's value.
func (v *DynView) Get(e Entity) (any, bool) {
	if !v.alloc.Alive(e) {
		return nil, false
	}
	return v.slot.store.anyAt(e.Index())
}

// Set stores a boxed value for entity e. The dynamic type must match the
// registered kind exactly.
func (v *DynView) Set(e Entity, val any) error {
	if !v.write {
		return fmt.Errorf("kind %s: %w", v.slot.name, ErrReadOnly)
	}
	if !v.alloc.Alive(e) {
		return ErrStaleEntity
	}
	return v.slot.store.setAny(e.Index(), val)
}

// Remove detaches the kind from entity e.
func (v *DynView) Remove(e Entity) (bool, error) {
	if !v.write {
		return false, fmt.Errorf("kind %s: %w", v.slot.name, ErrReadOnly)
	}
	if !v.alloc.Alive(e) {
		return false, nil
	}
	return v.slot.store.removeIndex(e.Index()), nil
}

// Each calls fn with a boxed copy for every entity carrying this kind.
func (v *DynView) Each(fn func(Entity, any)) {
	v.slot.store.rangeIndex(func(idx uint32) {
		val, _ := v.slot.store.anyAt(idx)
		fn(NewEntity(idx, v.alloc.generation(idx)), val)
	})
}

// Len returns the number of entities carrying this kind.
func (v *DynView) Len() int {
	return v.slot.store.length()
}

func (v *DynView) count() int                    { return v.slot.store.length() }
func (v *DynView) rangeIndex(fn func(uint32))    { v.slot.store.rangeIndex(fn) }
func (v *DynView) containsIndex(idx uint32) bool { return v.slot.store.containsIndex(idx) }
func (v *DynView) owner() *Allocator             { return v.alloc }
