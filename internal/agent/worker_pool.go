package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/MahdiGraph/SiteSniper/internal/decision"
	"github.com/MahdiGraph/SiteSniper/internal/metrics"
	"github.com/MahdiGraph/SiteSniper/internal/rules"
)

// WorkItem represents a unit of work to be processed by a worker
type WorkItem interface {
	Process(ctx context.Context) error
}

// WorkerPool manages a pool of workers to process work items
type WorkerPool struct {
	workChan    chan WorkItem
	resultChan  chan error
	workerCount int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.RWMutex
	isRunning   bool
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workChan:    make(chan WorkItem, workerCount*2),
		resultChan:  make(chan error, workerCount*2),
		workerCount: workerCount,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the worker pool
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.isRunning = true

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(p.ctx)
	}
}

// worker processes work items until the work channel is closed
func (p *WorkerPool) worker(ctx context.Context) {
	defer p.wg.Done()

	for workItem := range p.workChan {
		err := workItem.Process(ctx)

		select {
		case <-ctx.Done():
			return
		case p.resultChan <- err:
		}
	}
}

// Submit queues a work item, waiting for buffer space if every worker is busy.
// The read lock is held across the send so Stop cannot close the channel
// underneath it.
func (p *WorkerPool) Submit(ctx context.Context, item WorkItem) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.isRunning {
		return fmt.Errorf("worker pool is not running")
	}

	select {
	case p.workChan <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool is stopping")
	}
}

// Results returns the channel for receiving results. It must be drained
// while items are submitted.
func (p *WorkerPool) Results() <-chan error {
	return p.resultChan
}

// Stop lets queued items finish, then stops the workers and closes Results
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isRunning {
		return
	}

	close(p.workChan)
	p.wg.Wait()
	p.cancel()
	close(p.resultChan)

	p.isRunning = false
}

// CheckURLItem evaluates one URL and stores the decision in its slot
type CheckURLItem struct {
	URL        string
	Engine     *decision.Engine
	Snapshot   *rules.Snapshot
	NowMinutes int
	Result     *decision.Decision
}

// Process implements the WorkItem interface for CheckURLItem
func (item *CheckURLItem) Process(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	*item.Result = item.Engine.Evaluate(item.URL, item.Snapshot, item.NowMinutes)
	metrics.Decisions.WithLabelValues("check", metrics.Outcome(item.Result.Blocked)).Inc()
	if item.Result.Reason == decision.ReasonMalformedURL {
		return fmt.Errorf("malformed url %q", item.URL)
	}
	return nil
}

// CheckURLs evaluates urls against snap using workers goroutines. Decisions
// are returned in input order. The error counts URLs that could not be parsed;
// those are reported as not blocked.
func CheckURLs(ctx context.Context, engine *decision.Engine, snap *rules.Snapshot, nowMinutes int, urls []string, workers int) ([]decision.Decision, error) {
	results := make([]decision.Decision, len(urls))
	pool := NewWorkerPool(workers)
	pool.Start(ctx)

	var failed int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for err := range pool.Results() {
			if err != nil {
				failed++
			}
		}
	}()

	var submitErr error
	for i, u := range urls {
		item := &CheckURLItem{
			URL:        u,
			Engine:     engine,
			Snapshot:   snap,
			NowMinutes: nowMinutes,
			Result:     &results[i],
		}
		if err := pool.Submit(ctx, item); err != nil {
			submitErr = err
			break
		}
	}

	pool.Stop()
	<-done

	if submitErr != nil {
		return results, submitErr
	}
	if failed > 0 {
		return results, fmt.Errorf("%d of %d urls could not be parsed", failed, len(urls))
	}
	return results, nil
}
