package dispatch

import (
	"fmt"

	"github.com/weavework/loom/ecs"
)

// Context is a system's window onto the world for one run. Every storage
// request is checked against the declared access set; an undeclared request
// fails with AccessViolationError instead of handing out a view.
type Context struct {
	world *ecs.World
	acc   *Access
	name  string
	stage int
}

// World exposes entity liveness checks and deferred destruction. Structural
// mutation stays fenced while the dispatch runs.
func (c *Context) World() *ecs.World { return c.world }

// Name returns the running system's name.
func (c *Context) Name() string { return c.name }

// Stage returns the plan stage the system is running in.
func (c *Context) Stage() int { return c.stage }

func (c *Context) violation(id uint32, mode string) error {
	return &AccessViolationError{System: c.name, Slot: c.world.SlotName(id), Mode: mode}
}

// ReadStorage returns a read view over component kind T. The kind must be
// declared with Reads or Writes.
func ReadStorage[T any](c *Context) (*ecs.View[T], error) {
	id, ok := ecs.KindFor[T](c.world)
	if !ok {
		return nil, fmt.Errorf("read storage %s: %w", typeName[T](), ecs.ErrKindNotRegistered)
	}
	if !c.acc.CanRead(uint32(id)) {
		return nil, c.violation(uint32(id), "read")
	}
	return ecs.ViewOf[T](c.world)
}

// WriteStorage returns a mutable view over component kind T. The kind must
// be declared with Writes.
func WriteStorage[T any](c *Context) (*ecs.ViewMut[T], error) {
	id, ok := ecs.KindFor[T](c.world)
	if !ok {
		return nil, fmt.Errorf("write storage %s: %w", typeName[T](), ecs.ErrKindNotRegistered)
	}
	if !c.acc.CanWrite(uint32(id)) {
		return nil, c.violation(uint32(id), "write")
	}
	return ecs.ViewMutOf[T](c.world)
}

// ReadResource returns resource T for reading. The pointer is shared with
// concurrent readers in the stage; mutate only under WritesResource.
func ReadResource[T any](c *Context) (*T, error) {
	id, ok := ecs.ResourceFor[T](c.world)
	if !ok {
		return nil, fmt.Errorf("read resource %s: %w", typeName[T](), ecs.ErrKindNotRegistered)
	}
	if !c.acc.CanRead(uint32(id)) {
		return nil, c.violation(uint32(id), "read")
	}
	p, _ := ecs.GetResource[T](c.world)
	return p, nil
}

// WriteResource returns resource T for exclusive mutation.
func WriteResource[T any](c *Context) (*T, error) {
	id, ok := ecs.ResourceFor[T](c.world)
	if !ok {
		return nil, fmt.Errorf("write resource %s: %w", typeName[T](), ecs.ErrKindNotRegistered)
	}
	if !c.acc.CanWrite(uint32(id)) {
		return nil, c.violation(uint32(id), "write")
	}
	p, _ := ecs.GetResource[T](c.world)
	return p, nil
}

// ReadNamed returns a read-only dynamic view over a component kind by type
// name. Script systems resolve their declarations this way.
func (c *Context) ReadNamed(name string) (*ecs.DynView, error) {
	id, ok := c.world.KindByName(name)
	if !ok {
		return nil, fmt.Errorf("read storage %s: %w", name, ecs.ErrKindNotRegistered)
	}
	if !c.acc.CanRead(uint32(id)) {
		return nil, c.violation(uint32(id), "read")
	}
	return c.world.DynViewOf(id, false)
}

// WriteNamed returns a mutable dynamic view over a component kind by type name.
func (c *Context) WriteNamed(name string) (*ecs.DynView, error) {
	id, ok := c.world.KindByName(name)
	if !ok {
		return nil, fmt.Errorf("write storage %s: %w", name, ecs.ErrKindNotRegistered)
	}
	if !c.acc.CanWrite(uint32(id)) {
		return nil, c.violation(uint32(id), "write")
	}
	return c.world.DynViewOf(id, true)
}

// ResourceNamed returns a resource's boxed pointer by type name, read
// declared. Callers that only hold read access must not mutate through it.
func (c *Context) ResourceNamed(name string) (any, error) {
	id, ok := c.world.ResourceByName(name)
	if !ok {
		return nil, fmt.Errorf("resource %s: %w", name, ecs.ErrKindNotRegistered)
	}
	if !c.acc.CanRead(uint32(id)) {
		return nil, c.violation(uint32(id), "read")
	}
	p, ok := c.world.ResourceAt(id)
	if !ok {
		return nil, fmt.Errorf("resource %s: %w", name, ecs.ErrKindNotRegistered)
	}
	return p, nil
}
