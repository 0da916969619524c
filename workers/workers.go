package workers

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/simulot/dashdl/mylog"
)

// ErrStopped is returned when submitting work to a stopped pool
var ErrStopped = errors.New("worker pool is stopped")

// WorkItem is an interface to work item used b the Workers
type WorkItem interface {
	Run(ctx context.Context) error
	Name() string
}

type job struct {
	ctx context.Context
	wi  WorkItem
}

// WorkerPool is a pool of workers.
type WorkerPool struct {
	stop     chan struct{}  // Close this channel to stop all workers
	submit   chan job       // Send work items to this channel, one of workers will run it
	workerg  sync.WaitGroup // To wait completion of all workers
	nbWorker int            // The number of concurrent workers
	log      *mylog.MyLog
	once     sync.Once
}

// New creates a new worker pool with n running workers, NumCPU when n <= 0
func New(n int, log *mylog.MyLog) *WorkerPool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	w := &WorkerPool{
		stop:     make(chan struct{}),
		submit:   make(chan job),
		nbWorker: n,
		log:      log.Component("workers"),
	}
	w.init()
	return w
}

// init creates a goroutine for each worker
func (w *WorkerPool) init() *WorkerPool {
	for i := 0; i < w.nbWorker; i++ {
		w.workerg.Add(1)
		go w.newWorker(i)
	}
	return w
}

// Size is the number of workers
func (w *WorkerPool) Size() int {
	return w.nbWorker
}

// Stop stops all runing workers and wait them to finish and then leave the workerpool.
// Items already taken by a worker are completed.
func (w *WorkerPool) Stop() {
	w.once.Do(func() { close(w.stop) })
	w.workerg.Wait()
	w.log.Debug().Printf("Workerpool is ended")
}

// Submit a work item to the worker pool. It blocks until a worker takes the item,
// the context is done, or the pool is stopped.
func (w *WorkerPool) Submit(ctx context.Context, wi WorkItem) error {
	select {
	case <-w.stop:
		return ErrStopped
	default:
	}
	select {
	case w.submit <- job{ctx: ctx, wi: wi}:
		w.log.Debug().Printf("Submit work: %s", wi.Name())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.stop:
		return ErrStopped
	}
}

// newWorker initializes a worker
func (w *WorkerPool) newWorker(id int) {
	defer w.workerg.Done()
	for {
		select {
		case <-w.stop:
			return
		case j := <-w.submit:
			t := time.Now()
			err := j.wi.Run(j.ctx)
			if err == nil {
				w.log.Debug().Printf("Done  [%d]: %s(%s)", id, j.wi.Name(), time.Since(t).Round(time.Millisecond))
			} else {
				w.log.Debug().Err(err).Printf("Fail  [%d]: %s", id, j.wi.Name())
			}
		}
	}
}

// RunAction is an helper to submit a work to the worker pool
type RunAction struct {
	name string
	fn   func(ctx context.Context) error
}

// NewRunAction creates a work item out of a name and a function
func NewRunAction(n string, fn func(ctx context.Context) error) RunAction {
	return RunAction{name: n, fn: fn}
}

// Name returns the names of the work
func (r RunAction) Name() string {
	return r.name
}

// Run invoke the function
func (r RunAction) Run(ctx context.Context) error {
	return r.fn(ctx)
}
