package dispatch

import (
	"fmt"
	"reflect"

	"github.com/kelindar/bitmap"
	"go.uber.org/multierr"

	"github.com/weavework/loom/ecs"
)

// Access is the declared storage footprint of one system: the component
// kinds and resources it reads and writes. Systems fill it in Declare;
// after registration the planner owns it and it never changes.
//
// A write grants the read as well. The sets stay disjoint: declaring both
// keeps only the write.
type Access struct {
	w      *ecs.World
	reads  bitmap.Bitmap
	writes bitmap.Bitmap
	errs   []error
}

func newAccess(w *ecs.World) *Access {
	return &Access{w: w}
}

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

func (a *Access) missing(mode, name string) {
	a.errs = append(a.errs, fmt.Errorf("declare %s %s: %w", mode, name, ecs.ErrKindNotRegistered))
}

// Reads declares shared access to component kind T.
func Reads[T any](a *Access) {
	id, ok := ecs.KindFor[T](a.w)
	if !ok {
		a.missing("read", typeName[T]())
		return
	}
	a.reads.Set(uint32(id))
}

// Writes declares exclusive access to component kind T.
func Writes[T any](a *Access) {
	id, ok := ecs.KindFor[T](a.w)
	if !ok {
		a.missing("write", typeName[T]())
		return
	}
	a.writes.Set(uint32(id))
}

// ReadsResource declares shared access to resource kind T.
func ReadsResource[T any](a *Access) {
	id, ok := ecs.ResourceFor[T](a.w)
	if !ok {
		a.missing("read resource", typeName[T]())
		return
	}
	a.reads.Set(uint32(id))
}

// WritesResource declares exclusive access to resource kind T.
func WritesResource[T any](a *Access) {
	id, ok := ecs.ResourceFor[T](a.w)
	if !ok {
		a.missing("write resource", typeName[T]())
		return
	}
	a.writes.Set(uint32(id))
}

// ReadsNamed declares shared access to a component kind by type name.
// Script systems declare this way; typed systems prefer Reads.
func (a *Access) ReadsNamed(name string) {
	id, ok := a.w.KindByName(name)
	if !ok {
		a.missing("read", name)
		return
	}
	a.reads.Set(uint32(id))
}

// WritesNamed declares exclusive access to a component kind by type name.
func (a *Access) WritesNamed(name string) {
	id, ok := a.w.KindByName(name)
	if !ok {
		a.missing("write", name)
		return
	}
	a.writes.Set(uint32(id))
}

// ReadsResourceNamed declares shared access to a resource by type name.
func (a *Access) ReadsResourceNamed(name string) {
	id, ok := a.w.ResourceByName(name)
	if !ok {
		a.missing("read resource", name)
		return
	}
	a.reads.Set(uint32(id))
}

// WritesResourceNamed declares exclusive access to a resource by type name.
func (a *Access) WritesResourceNamed(name string) {
	id, ok := a.w.ResourceByName(name)
	if !ok {
		a.missing("write resource", name)
		return
	}
	a.writes.Set(uint32(id))
}

// freeze normalizes the sets after Declare and reports every declaration
// failure at once. A slot in both sets stays only in writes.
func (a *Access) freeze() error {
	a.writes.Range(func(x uint32) {
		a.reads.Remove(x)
	})
	return multierr.Combine(a.errs...)
}

// CanRead reports whether the set grants shared access to a slot. Writes
// imply reads.
func (a *Access) CanRead(id uint32) bool {
	return a.reads.Contains(id) || a.writes.Contains(id)
}

// CanWrite reports whether the set grants exclusive access to a slot.
func (a *Access) CanWrite(id uint32) bool {
	return a.writes.Contains(id)
}
