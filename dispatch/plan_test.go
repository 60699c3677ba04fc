package dispatch

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/weavework/loom/ecs"
)

// fnSystem adapts bare functions to System for tests.
type fnSystem struct {
	name    string
	declare func(a *Access)
	run     func(c *Context) error
}

func (s *fnSystem) Name() string      { return s.name }
func (s *fnSystem) Declare(a *Access) { s.declare(a) }

func (s *fnSystem) Run(c *Context) error {
	if s.run == nil {
		return nil
	}
	return s.run(c)
}

func newTestDispatcher(t *testing.T, w *ecs.World, workers int) *Dispatcher {
	t.Helper()
	d := NewDispatcher(w, workers, zap.NewNop())
	t.Cleanup(func() { d.Close() })
	return d
}

func mustRegister(t *testing.T, d *Dispatcher, systems ...System) {
	t.Helper()
	for _, s := range systems {
		if err := d.Register(s); err != nil {
			t.Fatalf("register %s: %v", s.Name(), err)
		}
	}
}

func TestPlanWriterThenReaderSplits(t *testing.T) {
	d := newTestDispatcher(t, accessWorld(t), 2)
	mustRegister(t, d,
		&fnSystem{name: "move", declare: func(a *Access) {
			Reads[velocity](a)
			Writes[position](a)
		}},
		&fnSystem{name: "render", declare: func(a *Access) {
			Reads[position](a)
		}},
	)
	want := [][]string{{"move"}, {"render"}}
	if got := d.Stages(); !reflect.DeepEqual(got, want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}
}

func TestPlanReadersShareStage(t *testing.T) {
	d := newTestDispatcher(t, accessWorld(t), 2)
	mustRegister(t, d,
		&fnSystem{name: "a", declare: func(a *Access) { Reads[position](a) }},
		&fnSystem{name: "b", declare: func(a *Access) { Reads[position](a) }},
		&fnSystem{name: "c", declare: func(a *Access) {
			Reads[position](a)
			Reads[velocity](a)
		}},
	)
	want := [][]string{{"a", "b", "c"}}
	if got := d.Stages(); !reflect.DeepEqual(got, want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}
}

func TestPlanSameKindWritersSplit(t *testing.T) {
	d := newTestDispatcher(t, accessWorld(t), 2)
	mustRegister(t, d,
		&fnSystem{name: "a", declare: func(a *Access) { Writes[position](a) }},
		&fnSystem{name: "b", declare: func(a *Access) { Writes[position](a) }},
	)
	want := [][]string{{"a"}, {"b"}}
	if got := d.Stages(); !reflect.DeepEqual(got, want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}
}

func TestPlanDisjointWritersShareStage(t *testing.T) {
	d := newTestDispatcher(t, accessWorld(t), 2)
	mustRegister(t, d,
		&fnSystem{name: "a", declare: func(a *Access) { Writes[position](a) }},
		&fnSystem{name: "b", declare: func(a *Access) { Writes[velocity](a) }},
		&fnSystem{name: "c", declare: func(a *Access) { Writes[health](a) }},
	)
	want := [][]string{{"a", "b", "c"}}
	if got := d.Stages(); !reflect.DeepEqual(got, want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}
}

func TestPlanReaderBlocksLaterWriter(t *testing.T) {
	d := newTestDispatcher(t, accessWorld(t), 2)
	mustRegister(t, d,
		&fnSystem{name: "scan", declare: func(a *Access) { Reads[position](a) }},
		&fnSystem{name: "nudge", declare: func(a *Access) { Writes[position](a) }},
	)
	want := [][]string{{"scan"}, {"nudge"}}
	if got := d.Stages(); !reflect.DeepEqual(got, want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}
}

func TestPlanVelocityWriterPlacementFollowsRegistration(t *testing.T) {
	declareMove := func(a *Access) {
		Reads[velocity](a)
		Writes[position](a)
	}
	declareGravity := func(a *Access) {
		Reads[health](a)
		Writes[velocity](a)
	}

	d := newTestDispatcher(t, accessWorld(t), 2)
	mustRegister(t, d,
		&fnSystem{name: "move", declare: declareMove},
		&fnSystem{name: "gravity", declare: declareGravity},
	)
	want := [][]string{{"move"}, {"gravity"}}
	if got := d.Stages(); !reflect.DeepEqual(got, want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}

	// Registered first, gravity claims stage 0 and move lands after it.
	d2 := newTestDispatcher(t, accessWorld(t), 2)
	mustRegister(t, d2,
		&fnSystem{name: "gravity", declare: declareGravity},
		&fnSystem{name: "move", declare: declareMove},
	)
	want = [][]string{{"gravity"}, {"move"}}
	if got := d2.Stages(); !reflect.DeepEqual(got, want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}
}

func TestPlanFirstFitBackfills(t *testing.T) {
	d := newTestDispatcher(t, accessWorld(t), 2)
	mustRegister(t, d,
		&fnSystem{name: "a", declare: func(a *Access) { Writes[position](a) }},
		&fnSystem{name: "b", declare: func(a *Access) { Reads[position](a) }},
		// Registered after b, but compatible with stage 0.
		&fnSystem{name: "c", declare: func(a *Access) { Writes[velocity](a) }},
	)
	want := [][]string{{"a", "c"}, {"b"}}
	if got := d.Stages(); !reflect.DeepEqual(got, want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}
}

func TestPlanResourceConflicts(t *testing.T) {
	d := newTestDispatcher(t, accessWorld(t), 2)
	mustRegister(t, d,
		&fnSystem{name: "ticker", declare: func(a *Access) { WritesResource[clock](a) }},
		&fnSystem{name: "sampler", declare: func(a *Access) { ReadsResource[clock](a) }},
		&fnSystem{name: "gauge", declare: func(a *Access) { ReadsResource[clock](a) }},
	)
	want := [][]string{{"ticker"}, {"sampler", "gauge"}}
	if got := d.Stages(); !reflect.DeepEqual(got, want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}
}

func TestPlanDeterministicForFixedOrder(t *testing.T) {
	build := func() [][]string {
		d := newTestDispatcher(t, accessWorld(t), 2)
		mustRegister(t, d,
			&fnSystem{name: "gravity", declare: func(a *Access) { Writes[velocity](a) }},
			&fnSystem{name: "move", declare: func(a *Access) {
				Reads[velocity](a)
				Writes[position](a)
			}},
			&fnSystem{name: "damage", declare: func(a *Access) { Writes[health](a) }},
			&fnSystem{name: "render", declare: func(a *Access) {
				Reads[position](a)
				Reads[health](a)
			}},
			&fnSystem{name: "tick", declare: func(a *Access) { WritesResource[clock](a) }},
		)
		return d.Stages()
	}
	first := build()
	for range 5 {
		if got := build(); !reflect.DeepEqual(got, first) {
			t.Fatalf("plan drifted: %v vs %v", got, first)
		}
	}
}

func TestPlanEmptyAccessSharesEverywhere(t *testing.T) {
	d := newTestDispatcher(t, accessWorld(t), 2)
	mustRegister(t, d,
		&fnSystem{name: "a", declare: func(a *Access) { Writes[position](a) }},
		&fnSystem{name: "idle", declare: func(a *Access) {}},
	)
	want := [][]string{{"a", "idle"}}
	if got := d.Stages(); !reflect.DeepEqual(got, want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}
}

func TestPlanGeneratedSetsConflictFree(t *testing.T) {
	w := accessWorld(t)
	declares := []func(a *Access){
		func(a *Access) { Reads[position](a) },
		func(a *Access) { Writes[position](a) },
		func(a *Access) { Reads[velocity](a) },
		func(a *Access) { Writes[velocity](a) },
		func(a *Access) { Reads[health](a) },
		func(a *Access) { Writes[health](a) },
		func(a *Access) { ReadsResource[clock](a) },
		func(a *Access) { WritesResource[clock](a) },
	}

	for seed := int64(0); seed < 5; seed++ {
		rng := rand.New(rand.NewSource(seed))
		regs := make([]registered, 20)
		for i := range regs {
			acc := newAccess(w)
			for _, declare := range declares {
				if rng.Intn(3) == 0 {
					declare(acc)
				}
			}
			if err := acc.freeze(); err != nil {
				t.Fatalf("seed %d: freeze: %v", seed, err)
			}
			regs[i] = registered{sys: &fnSystem{name: fmt.Sprintf("s%d", i)}, acc: acc}
		}

		plan := buildPlan(regs)
		placed := 0
		for si, st := range plan {
			placed += len(st.members)
			for x := 0; x < len(st.members); x++ {
				for y := x + 1; y < len(st.members); y++ {
					a := regs[st.members[x]].acc
					b := regs[st.members[y]].acc
					if overlaps(a.writes, b.reads) || overlaps(a.writes, b.writes) || overlaps(b.writes, a.reads) {
						t.Fatalf("seed %d stage %d: members %d and %d share a written slot",
							seed, si, st.members[x], st.members[y])
					}
				}
			}
		}
		if placed != len(regs) {
			t.Fatalf("seed %d: placed %d of %d systems", seed, placed, len(regs))
		}
	}
}
