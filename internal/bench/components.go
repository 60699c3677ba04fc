// Package bench is the workload run by the loombench command: a particle
// arena sized by a scenario, with built-in systems covering each storage
// backend and the resource slots.
package bench

import (
	"math/rand"

	"github.com/weavework/loom/ecs"
	"github.com/weavework/loom/internal/scenario"
)

// Position is a particle's location in arena coordinates.
type Position struct {
	X float64
	Y float64
}

// Velocity is a particle's motion in units per second.
type Velocity struct {
	DX float64
	DY float64
}

// Mass marks a particle as subject to gravity and drag.
type Mass struct {
	KG float64
}

// Wear accumulates with motion; particles past the limit are destroyed.
type Wear struct {
	Level float64
}

// Anchored pins a particle in place.
type Anchored struct{}

// Arena is the bounce box particles live in.
type Arena struct {
	Width  float64
	Height float64
}

// Clock carries the tick counter and fixed timestep into systems.
type Clock struct {
	Tick int
	DT   float64
}

// Stats aggregates per-tick measurements for the final report.
type Stats struct {
	Ticks    int
	Sampled  int
	AvgSpeed float64
}

const (
	gravity   = 9.81
	airDrag   = 0.35
	maxSpeed  = 20.0
	wearRate  = 1.0
	wearLimit = 100.0
	timestep  = 1.0 / 60.0
)

// NewWorld builds a world with the bench kinds and resources registered.
// Position and Velocity ride the dense backend since every particle carries
// them; Mass and Wear are sparse, Anchored is a flag.
func NewWorld(sc *scenario.Scenario) (*ecs.World, error) {
	w := ecs.NewWorld()
	if _, err := ecs.RegisterComponent(w, ecs.NewDense[Position]()); err != nil {
		return nil, err
	}
	if _, err := ecs.RegisterComponent(w, ecs.NewDense[Velocity]()); err != nil {
		return nil, err
	}
	if _, err := ecs.RegisterComponent(w, ecs.NewSparse[Mass]()); err != nil {
		return nil, err
	}
	if _, err := ecs.RegisterComponent(w, ecs.NewSparse[Wear]()); err != nil {
		return nil, err
	}
	if _, err := ecs.RegisterComponent(w, ecs.NewFlag[Anchored]()); err != nil {
		return nil, err
	}
	if _, err := ecs.AddResource(w, Arena{Width: sc.Bounds.Width, Height: sc.Bounds.Height}); err != nil {
		return nil, err
	}
	if _, err := ecs.AddResource(w, Clock{DT: timestep}); err != nil {
		return nil, err
	}
	if _, err := ecs.AddResource(w, Stats{}); err != nil {
		return nil, err
	}
	return w, nil
}

// Populate seeds sc.Entities particles.
func Populate(w *ecs.World, rng *rand.Rand, sc *scenario.Scenario) error {
	for i := 0; i < sc.Entities; i++ {
		if err := Spawn(w, rng, sc); err != nil {
			return err
		}
	}
	return nil
}

// Spawn allocates one particle with randomized placement and motion. Around
// two thirds get Mass, one in 32 is Anchored.
func Spawn(w *ecs.World, rng *rand.Rand, sc *scenario.Scenario) error {
	e := w.Allocate()
	pos := Position{
		X: rng.Float64() * sc.Bounds.Width,
		Y: rng.Float64() * sc.Bounds.Height,
	}
	if _, _, err := ecs.Attach(w, e, pos); err != nil {
		return err
	}
	vel := Velocity{
		DX: (rng.Float64()*2 - 1) * maxSpeed,
		DY: (rng.Float64()*2 - 1) * maxSpeed,
	}
	if _, _, err := ecs.Attach(w, e, vel); err != nil {
		return err
	}
	if _, _, err := ecs.Attach(w, e, Wear{}); err != nil {
		return err
	}
	if rng.Intn(3) != 0 {
		if _, _, err := ecs.Attach(w, e, Mass{KG: 1 + rng.Float64()*9}); err != nil {
			return err
		}
	}
	if rng.Intn(32) == 0 {
		if _, _, err := ecs.Attach(w, e, Anchored{}); err != nil {
			return err
		}
	}
	return nil
}
