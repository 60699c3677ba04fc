package ecs

// Entity encodes a 32-bit index in the lower bits and a 32-bit generation
// in the upper bits. The generation increments on deallocation so stale
// handles to a recycled index never match.
type Entity uint64

func NewEntity(index uint32, generation uint32) Entity {
	return Entity(uint64(generation)<<32 | uint64(index))
}

func (e Entity) Index() uint32      { return uint32(e) }
func (e Entity) Generation() uint32 { return uint32(e >> 32) }

// Allocator hands out entity handles with generational indices and a free list.
// Freed indices are recycled last-in first-out, each reuse under a new generation.
// Generation wrap after 2^32 reuses of one index is not handled.
type Allocator struct {
	generations []uint32
	freeList    []uint32
	nextIndex   uint32
}

func NewAllocator() *Allocator {
	return &Allocator{
		generations: make([]uint32, 0, 1024),
		freeList:    make([]uint32, 0, 256),
	}
}

// Allocate returns a live entity. It never fails; the index space grows on demand.
func (a *Allocator) Allocate() Entity {
	if len(a.freeList) > 0 {
		idx := a.freeList[len(a.freeList)-1]
		a.freeList = a.freeList[:len(a.freeList)-1]
		return NewEntity(idx, a.generations[idx])
	}
	idx := a.nextIndex
	a.nextIndex++
	if int(idx) >= len(a.generations) {
		a.generations = append(a.generations, 0)
	}
	return NewEntity(idx, a.generations[idx])
}

// Alive reports whether the handle still matches the current generation
// at its index.
func (a *Allocator) Alive(e Entity) bool {
	idx := e.Index()
	if idx >= a.nextIndex {
		return false
	}
	return a.generations[idx] == e.Generation()
}

// Deallocate retires a live handle, bumping the generation and returning the
// index to the free list. Returns false if the handle was already dead.
func (a *Allocator) Deallocate(e Entity) bool {
	idx := e.Index()
	if idx >= a.nextIndex {
		return false
	}
	if a.generations[idx] != e.Generation() {
		return false // stale handle
	}
	a.generations[idx]++
	a.freeList = append(a.freeList, idx)
	return true
}

// Live returns the number of currently live entities.
func (a *Allocator) Live() int {
	return int(a.nextIndex) - len(a.freeList)
}

// generation returns the current generation at idx. Callers must ensure
// idx < nextIndex.
func (a *Allocator) generation(idx uint32) uint32 {
	return a.generations[idx]
}
