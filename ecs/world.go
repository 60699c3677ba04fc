package ecs

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/kelindar/bitmap"
)

// KindID names a registered component kind. Component and resource kinds
// share one slot-id space so access sets and guards cover both uniformly.
type KindID uint32

// ResourceID names a registered resource kind.
type ResourceID uint32

// erasedStore is the type-erased face of a MaskedStorage, used by the slot
// table for bulk cleanup and dynamic access. The typed value never leaves the
// world except through a checked downcast.
type erasedStore interface {
	removeIndex(idx uint32) bool
	containsIndex(idx uint32) bool
	clearAll()
	length() int
	rangeIndex(fn func(idx uint32))
	anyAt(idx uint32) (any, bool)
	setAny(idx uint32, v any) error
	valueType() reflect.Type
}

// slot is one entry in the world's unified table: either a component storage
// or a boxed resource value, plus the guard dispatchers lock around system runs.
type slot struct {
	id    uint32
	name  string
	typ   reflect.Type
	guard sync.RWMutex
	store erasedStore // component slots
	res   any         // resource slots, boxed *T
}

// World owns every component storage and resource value, hands out entity
// handles, and maps Go types to slot ids. It is not safe for concurrent
// structural use; dispatchers fence mutation with BeginDispatch.
type World struct {
	alloc     *Allocator
	kinds     map[reflect.Type]KindID
	resources map[reflect.Type]ResourceID
	kindNames map[string]KindID
	resNames  map[string]ResourceID
	slots     []*slot

	dispatching atomic.Bool

	mu           sync.Mutex
	destroyQueue []Entity
}

func NewWorld() *World {
	return &World{
		alloc:        NewAllocator(),
		kinds:        make(map[reflect.Type]KindID, 16),
		resources:    make(map[reflect.Type]ResourceID, 8),
		kindNames:    make(map[string]KindID, 16),
		resNames:     make(map[string]ResourceID, 8),
		slots:        make([]*slot, 0, 24),
		destroyQueue: make([]Entity, 0, 64),
	}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// RegisterComponent adds a component kind stored in the given backend.
// Registering the same type twice keeps the original storage and reports
// ErrKindRegistered alongside the existing id.
func RegisterComponent[T any](w *World, backend Backend[T]) (KindID, error) {
	t := typeOf[T]()
	if w.dispatching.Load() {
		return 0, fmt.Errorf("register component %s: %w", t, ErrDispatchInFlight)
	}
	if backend == nil {
		return 0, fmt.Errorf("register component %s: %w", t, ErrNilBackend)
	}
	if id, ok := w.kinds[t]; ok {
		return id, fmt.Errorf("register component %s: %w", t, ErrKindRegistered)
	}
	id := KindID(len(w.slots))
	s := &slot{
		id:    uint32(id),
		name:  t.Name(),
		typ:   t,
		store: NewMaskedStorage[T](backend),
	}
	w.slots = append(w.slots, s)
	w.kinds[t] = id
	if _, taken := w.kindNames[s.name]; !taken && s.name != "" {
		w.kindNames[s.name] = id
	}
	return id, nil
}

// AddResource installs or replaces the single value of resource kind T.
// The id is stable across replacements.
func AddResource[T any](w *World, v T) (ResourceID, error) {
	t := typeOf[T]()
	if w.dispatching.Load() {
		return 0, fmt.Errorf("add resource %s: %w", t, ErrDispatchInFlight)
	}
	if id, ok := w.resources[t]; ok {
		p := w.slots[id].res.(*T)
		*p = v
		return id, nil
	}
	id := ResourceID(len(w.slots))
	p := new(T)
	*p = v
	s := &slot{
		id:   uint32(id),
		name: t.Name(),
		typ:  t,
		res:  p,
	}
	w.slots = append(w.slots, s)
	w.resources[t] = id
	if _, taken := w.resNames[s.name]; !taken && s.name != "" {
		w.resNames[s.name] = id
	}
	return id, nil
}

// GetResource returns the resource value of kind T, if installed.
func GetResource[T any](w *World) (*T, bool) {
	id, ok := w.resources[typeOf[T]()]
	if !ok {
		return nil, false
	}
	return w.slots[id].res.(*T), true
}

// KindFor resolves the kind id registered for component type T.
func KindFor[T any](w *World) (KindID, bool) {
	id, ok := w.kinds[typeOf[T]()]
	return id, ok
}

// ResourceFor resolves the resource id registered for type T.
func ResourceFor[T any](w *World) (ResourceID, bool) {
	id, ok := w.resources[typeOf[T]()]
	return id, ok
}

// ResourceAt returns a resource slot's boxed pointer, for dynamic callers
// that resolved the id by name.
func (w *World) ResourceAt(id ResourceID) (any, bool) {
	if int(id) >= len(w.slots) || w.slots[id].res == nil {
		return nil, false
	}
	return w.slots[id].res, true
}

// KindByName resolves a component kind by its Go type name. Only the first
// registration of a given name is reachable this way.
func (w *World) KindByName(name string) (KindID, bool) {
	id, ok := w.kindNames[name]
	return id, ok
}

// ResourceByName resolves a resource kind by its Go type name.
func (w *World) ResourceByName(name string) (ResourceID, bool) {
	id, ok := w.resNames[name]
	return id, ok
}

// SlotName returns the type name behind a slot id, for diagnostics.
func (w *World) SlotName(id uint32) string {
	if int(id) >= len(w.slots) {
		return fmt.Sprintf("slot#%d", id)
	}
	return w.slots[id].name
}

// Kinds returns the number of slots (component and resource kinds together).
func (w *World) Kinds() int {
	return len(w.slots)
}

// Allocate returns a fresh live entity.
func (w *World) Allocate() Entity {
	return w.alloc.Allocate()
}

// Alive reports whether the handle is current.
func (w *World) Alive(e Entity) bool {
	return w.alloc.Alive(e)
}

// Live returns the number of live entities.
func (w *World) Live() int {
	return w.alloc.Live()
}

// Deallocate retires an entity and drops its values from every component
// storage. Returns false for stale handles.
func (w *World) Deallocate(e Entity) bool {
	if !w.alloc.Alive(e) {
		return false
	}
	idx := e.Index()
	for _, s := range w.slots {
		if s.store != nil {
			s.store.removeIndex(idx)
		}
	}
	return w.alloc.Deallocate(e)
}

// QueueDeallocate records an entity for a later FlushDeallocations. Safe to
// call from concurrently running systems; the handle stays live until the
// flush.
func (w *World) QueueDeallocate(e Entity) {
	w.mu.Lock()
	w.destroyQueue = append(w.destroyQueue, e)
	w.mu.Unlock()
}

// FlushDeallocations retires every queued entity. Must run between
// dispatches. Stale or duplicate queue entries are skipped. Returns the
// number of entities retired.
func (w *World) FlushDeallocations() (int, error) {
	if w.dispatching.Load() {
		return 0, fmt.Errorf("flush deallocations: %w", ErrDispatchInFlight)
	}
	w.mu.Lock()
	queued := w.destroyQueue
	w.destroyQueue = make([]Entity, 0, 64)
	w.mu.Unlock()

	n := 0
	for _, e := range queued {
		if w.Deallocate(e) {
			n++
		}
	}
	return n, nil
}

// Attach stores v as entity e's value of kind T, returning any replaced value.
func Attach[T any](w *World, e Entity, v T) (T, bool, error) {
	var zero T
	id, ok := w.kinds[typeOf[T]()]
	if !ok {
		return zero, false, fmt.Errorf("attach %s: %w", typeOf[T](), ErrKindNotRegistered)
	}
	if !w.alloc.Alive(e) {
		return zero, false, ErrStaleEntity
	}
	ms, err := storageOf[T](w, id)
	if err != nil {
		return zero, false, err
	}
	prev, replaced := ms.Insert(e.Index(), v)
	return prev, replaced, nil
}

// Detach removes entity e's value of kind T. Stale handles and absent values
// both report zero,false.
func Detach[T any](w *World, e Entity) (T, bool) {
	var zero T
	id, ok := w.kinds[typeOf[T]()]
	if !ok {
		return zero, false
	}
	if !w.alloc.Alive(e) {
		return zero, false
	}
	ms, err := storageOf[T](w, id)
	if err != nil {
		return zero, false
	}
	return ms.Remove(e.Index())
}

// Get returns a pointer to entity e's value of kind T, if present and live.
func Get[T any](w *World, e Entity) (*T, bool) {
	id, ok := w.kinds[typeOf[T]()]
	if !ok {
		return nil, false
	}
	if !w.alloc.Alive(e) {
		return nil, false
	}
	ms, err := storageOf[T](w, id)
	if err != nil {
		return nil, false
	}
	return ms.Get(e.Index())
}

// Has reports whether entity e carries a value of kind T.
func Has[T any](w *World, e Entity) bool {
	id, ok := w.kinds[typeOf[T]()]
	if !ok {
		return false
	}
	if !w.alloc.Alive(e) {
		return false
	}
	return w.slots[id].store.containsIndex(e.Index())
}

// storageOf downcasts a slot's erased store back to its typed form.
func storageOf[T any](w *World, id KindID) (*MaskedStorage[T], error) {
	ms, ok := w.slots[id].store.(*MaskedStorage[T])
	if !ok {
		return nil, fmt.Errorf("kind %s: %w", w.slots[id].name, ErrKindMismatch)
	}
	return ms, nil
}

// BeginDispatch fences the world for a dispatch: structural mutation
// (new kinds, new resources, flushes) is rejected until EndDispatch.
func (w *World) BeginDispatch() error {
	if !w.dispatching.CompareAndSwap(false, true) {
		return ErrDispatchInFlight
	}
	return nil
}

// EndDispatch lifts the dispatch fence.
func (w *World) EndDispatch() {
	w.dispatching.Store(false)
}

// Acquire takes the guards for every slot named in the two sets: shared for
// reads, exclusive for writes, in ascending slot order. Guards are taken
// without blocking; planned stages never contend, so contention reports
// ErrGuardContention instead of deadlocking. The returned release must be
// called exactly once.
func (w *World) Acquire(reads, writes bitmap.Bitmap) (func(), error) {
	type want struct {
		id    uint32
		write bool
	}
	wants := make([]want, 0, 8)
	writes.Range(func(x uint32) {
		wants = append(wants, want{id: x, write: true})
	})
	reads.Range(func(x uint32) {
		if !writes.Contains(x) {
			wants = append(wants, want{id: x})
		}
	})
	sort.Slice(wants, func(i, j int) bool { return wants[i].id < wants[j].id })

	taken := make([]want, 0, len(wants))
	release := func() {
		for i := len(taken) - 1; i >= 0; i-- {
			g := &w.slots[taken[i].id].guard
			if taken[i].write {
				g.Unlock()
			} else {
				g.RUnlock()
			}
		}
	}
	for _, wt := range wants {
		if int(wt.id) >= len(w.slots) {
			release()
			return nil, fmt.Errorf("acquire slot %d: %w", wt.id, ErrKindNotRegistered)
		}
		g := &w.slots[wt.id].guard
		ok := false
		if wt.write {
			ok = g.TryLock()
		} else {
			ok = g.TryRLock()
		}
		if !ok {
			release()
			return nil, fmt.Errorf("slot %s: %w", w.slots[wt.id].name, ErrGuardContention)
		}
		taken = append(taken, wt)
	}
	return release, nil
}
