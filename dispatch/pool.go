package dispatch

import "sync"

// workerPool is a fixed set of goroutines draining one task channel. Tasks
// signal their own completion; the pool only guarantees they all start, in
// submission order.
type workerPool struct {
	tasks chan func()
	wg    sync.WaitGroup
}

func newWorkerPool(n int) *workerPool {
	p := &workerPool{tasks: make(chan func())}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.worker()
	}
	return p
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for fn := range p.tasks {
		fn()
	}
}

// submit blocks until a worker accepts the task.
func (p *workerPool) submit(fn func()) {
	p.tasks <- fn
}

// close stops the workers once queued tasks drain.
func (p *workerPool) close() {
	close(p.tasks)
	p.wg.Wait()
}
