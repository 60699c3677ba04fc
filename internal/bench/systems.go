package bench

import (
	"fmt"
	"math"

	"github.com/weavework/loom/dispatch"
	"github.com/weavework/loom/ecs"
)

// ByName maps a scenario system name to a fresh instance of the built-in.
func ByName(name string) (dispatch.System, error) {
	switch name {
	case "gravity":
		return NewGravitySystem(), nil
	case "movement":
		return NewMovementSystem(), nil
	case "bounds":
		return NewBoundsSystem(), nil
	case "wear":
		return NewWearSystem(), nil
	case "stats":
		return NewStatsSystem(), nil
	}
	return nil, fmt.Errorf("unknown system %q", name)
}

// GravitySystem accelerates massy particles downward and applies drag
// inversely to their mass.
type GravitySystem struct{}

func NewGravitySystem() *GravitySystem { return &GravitySystem{} }

func (s *GravitySystem) Name() string { return "gravity" }

func (s *GravitySystem) Declare(a *dispatch.Access) {
	dispatch.Reads[Mass](a)
	dispatch.ReadsResource[Clock](a)
	dispatch.Writes[Velocity](a)
}

func (s *GravitySystem) Run(c *dispatch.Context) error {
	clock, err := dispatch.ReadResource[Clock](c)
	if err != nil {
		return err
	}
	masses, err := dispatch.ReadStorage[Mass](c)
	if err != nil {
		return err
	}
	vels, err := dispatch.WriteStorage[Velocity](c)
	if err != nil {
		return err
	}
	ecs.Join(func(e ecs.Entity) {
		m, _ := masses.Get(e)
		v, ok := vels.GetMut(e)
		if !ok {
			return
		}
		v.DY -= gravity * clock.DT
		drag := airDrag * clock.DT / m.KG
		v.DX -= v.DX * drag
		v.DY -= v.DY * drag
	}, masses, vels)
	return nil
}

// MovementSystem integrates velocity into position, skipping anchored
// particles.
type MovementSystem struct{}

func NewMovementSystem() *MovementSystem { return &MovementSystem{} }

func (s *MovementSystem) Name() string { return "movement" }

func (s *MovementSystem) Declare(a *dispatch.Access) {
	dispatch.Reads[Velocity](a)
	dispatch.Reads[Anchored](a)
	dispatch.ReadsResource[Clock](a)
	dispatch.Writes[Position](a)
}

func (s *MovementSystem) Run(c *dispatch.Context) error {
	clock, err := dispatch.ReadResource[Clock](c)
	if err != nil {
		return err
	}
	vels, err := dispatch.ReadStorage[Velocity](c)
	if err != nil {
		return err
	}
	anchored, err := dispatch.ReadStorage[Anchored](c)
	if err != nil {
		return err
	}
	positions, err := dispatch.WriteStorage[Position](c)
	if err != nil {
		return err
	}
	ecs.Join(func(e ecs.Entity) {
		if anchored.Contains(e) {
			return
		}
		vel, _ := vels.Get(e)
		p, ok := positions.GetMut(e)
		if !ok {
			return
		}
		p.X += vel.DX * clock.DT
		p.Y += vel.DY * clock.DT
	}, vels, positions)
	return nil
}

// BoundsSystem reflects particles off the arena walls.
type BoundsSystem struct{}

func NewBoundsSystem() *BoundsSystem { return &BoundsSystem{} }

func (s *BoundsSystem) Name() string { return "bounds" }

func (s *BoundsSystem) Declare(a *dispatch.Access) {
	dispatch.ReadsResource[Arena](a)
	dispatch.Writes[Position](a)
	dispatch.Writes[Velocity](a)
}

func (s *BoundsSystem) Run(c *dispatch.Context) error {
	arena, err := dispatch.ReadResource[Arena](c)
	if err != nil {
		return err
	}
	positions, err := dispatch.WriteStorage[Position](c)
	if err != nil {
		return err
	}
	vels, err := dispatch.WriteStorage[Velocity](c)
	if err != nil {
		return err
	}
	ecs.Join(func(e ecs.Entity) {
		p, ok := positions.GetMut(e)
		if !ok {
			return
		}
		v, ok := vels.GetMut(e)
		if !ok {
			return
		}
		if p.X < 0 {
			p.X, v.DX = -p.X, -v.DX
		} else if p.X > arena.Width {
			p.X, v.DX = 2*arena.Width-p.X, -v.DX
		}
		if p.Y < 0 {
			p.Y, v.DY = -p.Y, -v.DY
		} else if p.Y > arena.Height {
			p.Y, v.DY = 2*arena.Height-p.Y, -v.DY
		}
	}, positions, vels)
	return nil
}

// WearSystem accrues wear with speed and queues worn-out particles for
// destruction at the next flush.
type WearSystem struct{}

func NewWearSystem() *WearSystem { return &WearSystem{} }

func (s *WearSystem) Name() string { return "wear" }

func (s *WearSystem) Declare(a *dispatch.Access) {
	dispatch.Reads[Velocity](a)
	dispatch.ReadsResource[Clock](a)
	dispatch.Writes[Wear](a)
}

func (s *WearSystem) Run(c *dispatch.Context) error {
	clock, err := dispatch.ReadResource[Clock](c)
	if err != nil {
		return err
	}
	vels, err := dispatch.ReadStorage[Velocity](c)
	if err != nil {
		return err
	}
	wears, err := dispatch.WriteStorage[Wear](c)
	if err != nil {
		return err
	}
	ecs.Join(func(e ecs.Entity) {
		vel, _ := vels.Get(e)
		w, ok := wears.GetMut(e)
		if !ok {
			return
		}
		w.Level += math.Hypot(vel.DX, vel.DY) * clock.DT * wearRate
		if w.Level >= wearLimit {
			c.World().QueueDeallocate(e)
		}
	}, vels, wears)
	return nil
}

// StatsSystem samples the particle population into the Stats resource.
type StatsSystem struct{}

func NewStatsSystem() *StatsSystem { return &StatsSystem{} }

func (s *StatsSystem) Name() string { return "stats" }

func (s *StatsSystem) Declare(a *dispatch.Access) {
	dispatch.Reads[Position](a)
	dispatch.Reads[Velocity](a)
	dispatch.WritesResource[Stats](a)
}

func (s *StatsSystem) Run(c *dispatch.Context) error {
	positions, err := dispatch.ReadStorage[Position](c)
	if err != nil {
		return err
	}
	vels, err := dispatch.ReadStorage[Velocity](c)
	if err != nil {
		return err
	}
	stats, err := dispatch.WriteResource[Stats](c)
	if err != nil {
		return err
	}
	total := 0.0
	n := 0
	ecs.Join(func(e ecs.Entity) {
		vel, _ := vels.Get(e)
		total += math.Hypot(vel.DX, vel.DY)
		n++
	}, positions, vels)
	stats.Ticks++
	stats.Sampled = n
	if n > 0 {
		stats.AvgSpeed = total / float64(n)
	} else {
		stats.AvgSpeed = 0
	}
	return nil
}
