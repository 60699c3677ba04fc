package dispatch

import (
	"errors"
	"testing"

	"go.uber.org/multierr"

	"github.com/weavework/loom/ecs"
)

type position struct {
	X, Y float64
}

type velocity struct {
	DX, DY float64
}

type health struct {
	HP int
}

type clock struct {
	Tick int
}

func accessWorld(t *testing.T) *ecs.World {
	t.Helper()
	w := ecs.NewWorld()
	if _, err := ecs.RegisterComponent(w, ecs.NewDense[position]()); err != nil {
		t.Fatalf("register position: %v", err)
	}
	if _, err := ecs.RegisterComponent(w, ecs.NewDense[velocity]()); err != nil {
		t.Fatalf("register velocity: %v", err)
	}
	if _, err := ecs.RegisterComponent(w, ecs.NewSparse[health]()); err != nil {
		t.Fatalf("register health: %v", err)
	}
	if _, err := ecs.AddResource(w, clock{}); err != nil {
		t.Fatalf("add clock: %v", err)
	}
	return w
}

func TestAccessWriteImpliesRead(t *testing.T) {
	w := accessWorld(t)
	a := newAccess(w)
	Writes[position](a)
	if err := a.freeze(); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	id, _ := ecs.KindFor[position](w)
	if !a.CanRead(uint32(id)) {
		t.Error("declared write does not grant read")
	}
	if !a.CanWrite(uint32(id)) {
		t.Error("CanWrite = false for declared write")
	}
}

func TestAccessSetsStayDisjoint(t *testing.T) {
	w := accessWorld(t)
	a := newAccess(w)
	Reads[position](a)
	Writes[position](a)
	if err := a.freeze(); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	id, _ := ecs.KindFor[position](w)
	if a.reads.Contains(uint32(id)) {
		t.Error("slot declared both ways stayed in reads")
	}
	if !a.writes.Contains(uint32(id)) {
		t.Error("slot declared both ways missing from writes")
	}
}

func TestAccessReadGrantsNoWrite(t *testing.T) {
	w := accessWorld(t)
	a := newAccess(w)
	Reads[velocity](a)
	if err := a.freeze(); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	vid, _ := ecs.KindFor[velocity](w)
	hid, _ := ecs.KindFor[health](w)
	if !a.CanRead(uint32(vid)) || a.CanWrite(uint32(vid)) {
		t.Error("read declaration granted wrong modes")
	}
	if a.CanRead(uint32(hid)) || a.CanWrite(uint32(hid)) {
		t.Error("undeclared kind granted access")
	}
}

func TestAccessUnknownKindRejected(t *testing.T) {
	type stranger struct{}
	w := accessWorld(t)
	a := newAccess(w)
	Reads[stranger](a)
	Writes[position](a)
	if err := a.freeze(); !errors.Is(err, ecs.ErrKindNotRegistered) {
		t.Fatalf("freeze = %v, want ErrKindNotRegistered", err)
	}
}

func TestAccessResourceSlots(t *testing.T) {
	w := accessWorld(t)
	a := newAccess(w)
	ReadsResource[clock](a)
	if err := a.freeze(); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	rid, _ := ecs.ResourceFor[clock](w)
	if !a.CanRead(uint32(rid)) || a.CanWrite(uint32(rid)) {
		t.Error("resource read declaration granted wrong modes")
	}

	// Resources and components share one slot space.
	pid, _ := ecs.KindFor[position](w)
	if uint32(rid) == uint32(pid) {
		t.Fatalf("resource and component share slot %d", rid)
	}

	b := newAccess(w)
	WritesResource[clock](b)
	if err := b.freeze(); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if !b.CanWrite(uint32(rid)) || !b.CanRead(uint32(rid)) {
		t.Error("resource write declaration granted wrong modes")
	}
}

func TestAccessNamedDeclarations(t *testing.T) {
	w := accessWorld(t)
	a := newAccess(w)
	a.ReadsNamed("velocity")
	a.WritesNamed("position")
	a.ReadsResourceNamed("clock")
	if err := a.freeze(); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	pid, _ := w.KindByName("position")
	vid, _ := w.KindByName("velocity")
	cid, _ := w.ResourceByName("clock")
	if !a.CanWrite(uint32(pid)) {
		t.Error("WritesNamed(position) not granted")
	}
	if !a.CanRead(uint32(vid)) || a.CanWrite(uint32(vid)) {
		t.Error("ReadsNamed(velocity) granted wrong modes")
	}
	if !a.CanRead(uint32(cid)) {
		t.Error("ReadsResourceNamed(clock) not granted")
	}

	b := newAccess(w)
	b.WritesNamed("nosuch")
	if err := b.freeze(); !errors.Is(err, ecs.ErrKindNotRegistered) {
		t.Fatalf("freeze = %v, want ErrKindNotRegistered", err)
	}
}

func TestAccessReportsEveryFailure(t *testing.T) {
	a := newAccess(accessWorld(t))
	a.ReadsNamed("ghost")
	a.WritesNamed("phantom")
	err := a.freeze()
	if err == nil {
		t.Fatal("freeze = nil for two unknown kinds")
	}
	if got := len(multierr.Errors(err)); got != 2 {
		t.Errorf("freeze joined %d errors, want 2: %v", got, err)
	}
}
