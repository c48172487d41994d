package feed

import (
	"context"
	"sync"
)

type task func(ctx context.Context)

// workerPool - fixed number of goroutines serving one session's store I/O.
type workerPool struct {
	tasks  chan task
	wg     sync.WaitGroup
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newWorkerPool(ctx context.Context, workers, queue int) *workerPool {
	ctx, cancel := context.WithCancel(ctx)
	p := &workerPool{
		tasks:  make(chan task, queue),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}
	return p
}

func (p *workerPool) work(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.tasks:
			t(ctx)
		}
	}
}

// trySubmit queues the task without blocking.
func (p *workerPool) trySubmit(t task) error {
	select {
	case <-p.done:
		return ErrStopped
	default:
	}
	select {
	case p.tasks <- t:
		return nil
	case <-p.done:
		return ErrStopped
	default:
		return ErrBusy
	}
}

// stop cancels in-flight tasks and waits for workers to return.
func (p *workerPool) stop() {
	p.once.Do(func() {
		close(p.done)
		p.cancel()
		p.wg.Wait()
	})
}
