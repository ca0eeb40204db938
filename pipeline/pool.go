package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Handle tracks a task submitted to a Pool.
type Handle struct {
	label string
	done  chan struct{}
	err   error
}

func newHandle(label string) *Handle {
	return &Handle{label: label, done: make(chan struct{})}
}

func (h *Handle) Label() string { return h.label }

// Done is closed once the task has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the task's error. It is only meaningful after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the task returns or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) finish(err error) {
	h.err = err
	close(h.done)
}

type job struct {
	handle *Handle
	task   func() error
}

// Pool runs submitted tasks on a fixed number of worker goroutines.
type Pool struct {
	jobs chan job
	wg   sync.WaitGroup
	log  *logrus.Entry

	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines. Up to queue tasks may wait for a free worker
// before Submit blocks.
func NewPool(workers, queue int, logger *logrus.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}

	pool := &Pool{
		jobs: make(chan job, queue),
		log:  logger.WithField("component", "pool"),
	}
	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.work(i)
	}
	return pool
}

func (pool *Pool) work(n int) {
	defer pool.wg.Done()
	log := pool.log.WithField("worker", n)
	log.Debugln("worker started")

	for j := range pool.jobs {
		err := pool.execute(j)
		if err != nil {
			log.Debugf("task %s finished with error: %v", j.handle.label, err)
		}
		j.handle.finish(err)
	}
	log.Debugln("worker stopped")
}

func (pool *Pool) execute(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pool.log.Errorf("task %s panicked: %v", j.handle.label, r)
			err = fmt.Errorf("task %s panicked: %v", j.handle.label, r)
		}
	}()
	return j.task()
}

// Submit queues task, blocking while the queue is full until ctx is done.
func (pool *Pool) Submit(ctx context.Context, label string, task func() error) (*Handle, error) {
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	if pool.closed {
		return nil, ErrPoolClosed
	}

	handle := newHandle(label)
	select {
	case pool.jobs <- job{handle: handle, task: task}:
		return handle, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting tasks and waits for queued and running tasks to finish.
func (pool *Pool) Close() {
	pool.mu.Lock()
	if pool.closed {
		pool.mu.Unlock()
		return
	}
	pool.closed = true
	close(pool.jobs)
	pool.mu.Unlock()

	pool.wg.Wait()
}
