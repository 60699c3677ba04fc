package dispatch

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/weavework/loom/ecs"
)

// System is one unit of work in a dispatch. Declare states the storage
// footprint once, at registration; Run may only touch what was declared.
type System interface {
	Name() string
	Declare(a *Access)
	Run(c *Context) error
}

type registered struct {
	sys System
	acc *Access
}

// Dispatcher plans registered systems into conflict-free stages and runs
// them over a fixed worker pool. Stages are fully barriered: every system
// of stage n returns before stage n+1 starts. Register and RunOnce are for
// one goroutine at a time; set up first, then run.
type Dispatcher struct {
	world   *ecs.World
	log     *zap.Logger
	pool    *workerPool
	systems []registered
	plan    []stage
	running atomic.Bool
	closed  bool
}

// NewDispatcher builds a dispatcher over the world. workers <= 0 sizes the
// pool to runtime.NumCPU.
func NewDispatcher(w *ecs.World, workers int, log *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		world: w,
		log:   log,
		pool:  newWorkerPool(workers),
	}
}

// Register adds a system and replans the stages. A declaration naming an
// unknown kind rejects the system and keeps the previous plan.
func (d *Dispatcher) Register(sys System) error {
	if d.closed {
		return ErrClosed
	}
	if d.running.Load() {
		return fmt.Errorf("register %s: %w", sys.Name(), ecs.ErrDispatchInFlight)
	}
	acc := newAccess(d.world)
	sys.Declare(acc)
	if err := acc.freeze(); err != nil {
		return fmt.Errorf("register %s: %w", sys.Name(), err)
	}
	d.systems = append(d.systems, registered{sys: sys, acc: acc})
	d.plan = buildPlan(d.systems)
	d.log.Debug("system registered",
		zap.String("system", sys.Name()),
		zap.Int("systems", len(d.systems)),
		zap.Int("stages", len(d.plan)))
	return nil
}

// Stages renders the plan as system names per stage, in stage order. Order
// within a stage mirrors registration and carries no run-order meaning.
func (d *Dispatcher) Stages() [][]string {
	out := make([][]string, len(d.plan))
	for i, st := range d.plan {
		names := make([]string, len(st.members))
		for j, m := range st.members {
			names[j] = d.systems[m].sys.Name()
		}
		out[i] = names
	}
	return out
}

// RunOnce executes one dispatch round: every stage in plan order, each
// stage's systems in parallel, a barrier between stages. The first fault
// ends the round and stages after it do not run. Only one round may be in
// flight at a time.
func (d *Dispatcher) RunOnce() error {
	if d.closed {
		return ErrClosed
	}
	if !d.running.CompareAndSwap(false, true) {
		return fmt.Errorf("dispatch: %w", ecs.ErrDispatchInFlight)
	}
	defer d.running.Store(false)

	if err := d.world.BeginDispatch(); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	defer d.world.EndDispatch()

	for s := range d.plan {
		if err := d.runStage(s); err != nil {
			return err
		}
	}
	return nil
}

// runStage runs one stage to completion and reports its first fault, by
// member order. Single-system stages run inline on the calling goroutine.
func (d *Dispatcher) runStage(s int) error {
	st := &d.plan[s]
	if len(st.members) == 1 {
		return d.runUnit(st.members[0], s)
	}

	results := make([]error, len(st.members))
	var wg sync.WaitGroup
	wg.Add(len(st.members))
	for i, m := range st.members {
		i, m := i, m
		d.pool.submit(func() {
			defer wg.Done()
			results[i] = d.runUnit(m, s)
		})
	}
	wg.Wait()

	for _, err := range results {
		if err != nil {
			return err
		}
	}
	return nil
}

// runUnit runs one system under its storage guards, converting panics and
// returned errors into FaultError.
func (d *Dispatcher) runUnit(idx, stageIdx int) (err error) {
	reg := d.systems[idx]
	name := reg.sys.Name()

	release, aerr := d.world.Acquire(reg.acc.reads, reg.acc.writes)
	if aerr != nil {
		return &FaultError{System: name, Stage: stageIdx, Err: aerr}
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("system panicked",
				zap.String("system", name),
				zap.Int("stage", stageIdx),
				zap.Any("panic", r))
			err = &FaultError{System: name, Stage: stageIdx, Err: eris.New(fmt.Sprintf("panic: %v", r))}
		}
	}()

	c := &Context{world: d.world, acc: reg.acc, name: name, stage: stageIdx}
	if rerr := reg.sys.Run(c); rerr != nil {
		d.log.Error("system failed",
			zap.String("system", name),
			zap.Int("stage", stageIdx),
			zap.Error(rerr))
		return &FaultError{System: name, Stage: stageIdx, Err: eris.Wrapf(rerr, "system %s failed", name)}
	}
	return nil
}

// Close stops the worker pool. Further Register and RunOnce calls report
// ErrClosed. Closing an idle dispatcher twice is a no-op.
func (d *Dispatcher) Close() error {
	if d.closed {
		return nil
	}
	if d.running.Load() {
		return fmt.Errorf("close: %w", ecs.ErrDispatchInFlight)
	}
	d.closed = true
	d.pool.close()
	return nil
}
