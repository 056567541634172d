package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

type indexedJob struct {
	index int
	job   Job
}

// Pool runs jobs on a fixed number of workers. Results are returned in
// submission order regardless of which job finishes first.
type Pool struct {
	workers    int
	jobQueue   chan indexedJob
	wg         sync.WaitGroup
	parent     context.Context
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once

	mu      sync.Mutex
	results []Result
}

// NewPool creates a pool bound to ctx. Cancelling ctx stops workers from
// picking up further jobs.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if ctx == nil {
		ctx = context.Background()
	}

	inner, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan indexedJob, workers*2),
		parent:     ctx,
		ctx:        inner,
		cancelFunc: cancel,
	}
}

// Start starts the worker goroutines
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case ij, ok := <-p.jobQueue:
			if !ok {
				return
			}
			result := ij.job.Execute(p.ctx)
			p.mu.Lock()
			p.results[ij.index] = result
			p.mu.Unlock()
		}
	}
}

// Submit queues a job. It returns the context error once the pool is
// cancelled. Submit must not be called after Wait.
func (p *Pool) Submit(job Job) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	index := len(p.results)
	p.results = append(p.results, nil)
	p.mu.Unlock()

	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.jobQueue <- indexedJob{index: index, job: job}:
		return nil
	}
}

// Wait waits for all submitted jobs and returns their results in submission
// order. Jobs that never ran leave a nil entry; in that case the error is the
// cancellation cause.
func (p *Pool) Wait() ([]Result, error) {
	p.closeQueue()
	p.wg.Wait()
	p.cancelFunc()

	p.mu.Lock()
	results := make([]Result, len(p.results))
	copy(results, p.results)
	p.mu.Unlock()

	if err := p.parent.Err(); err != nil {
		return results, err
	}
	for _, r := range results {
		if r == nil {
			return results, context.Canceled
		}
	}
	return results, nil
}

// Shutdown stops the pool immediately
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
}

func (p *Pool) closeQueue() {
	p.closeOnce.Do(func() {
		close(p.jobQueue)
	})
}
