package worker

import (
	"context"
	"sync"
)

// Job is a unit of work executed by the pool. Implementations report
// failure through their Result rather than panicking; errors never cross
// the pool boundary as anything but values.
type Job interface {
	Run(ctx context.Context) Result
}

// Result is the outcome of one job.
type Result interface {
	Err() error
}

// Pool executes jobs with a bounded number of workers. It provides the
// backpressure for external model calls: at most `workers` extraction,
// embedding, or verification calls are in flight at once. Results are
// collected as they complete, so Submit never blocks on an unread result
// no matter how many jobs a batch carries.
type Pool struct {
	workers int
	jobs    chan Job
	results chan Result

	mu        sync.Mutex
	collected []Result

	wg        sync.WaitGroup
	collectWg sync.WaitGroup
	once      sync.Once
}

// NewPool creates a pool with the given concurrency limit.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		workers: workers,
		jobs:    make(chan Job, workers*2),
		results: make(chan Result, workers*2),
	}
}

// Start launches the workers and the result collector. Workers exit when
// the job queue is closed by Drain or when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.collectWg.Add(1)
	go func() {
		defer p.collectWg.Done()
		for result := range p.results {
			p.mu.Lock()
			p.collected = append(p.collected, result)
			p.mu.Unlock()
		}
	}()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}
}

func (p *Pool) work(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			result := job.Run(ctx)
			select {
			case p.results <- result:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job. Blocks when the queue is full (bounded in-flight
// work, not unbounded buffering).
func (p *Pool) Submit(ctx context.Context, job Job) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- job:
		return nil
	}
}

// Drain closes the queue, waits for in-flight jobs, and returns every
// collected result. Call exactly once after the last Submit.
func (p *Pool) Drain() []Result {
	p.once.Do(func() {
		close(p.jobs)
	})

	p.wg.Wait()
	close(p.results)
	p.collectWg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.collected
}
