// Package workerpool runs a bounded number of tasks concurrently.
package workerpool

import (
	"context"
	"log/slog"
	"sync"
)

// Task represents a unit of work to be processed by the worker pool
type Task func(ctx context.Context) error

// WorkerPool manages concurrent processing of tasks
type WorkerPool struct {
	workerCount int
	taskQueue   chan Task
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *slog.Logger
	closed      bool
	closeMux    sync.Mutex
}

// New creates a pool bound to ctx. Cancelling ctx stops the workers after
// their current task.
func New(ctx context.Context, workerCount int, logger *slog.Logger) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	poolCtx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		workerCount: workerCount,
		taskQueue:   make(chan Task, workerCount*2),
		ctx:         poolCtx,
		cancel:      cancel,
		logger:      logger,
	}
}

// Start launches worker goroutines
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Submit queues a task. It reports false when the pool is shutting down.
func (wp *WorkerPool) Submit(task Task) bool {
	select {
	case wp.taskQueue <- task:
		return true
	case <-wp.ctx.Done():
		wp.logger.Debug("[WorkerPool] pool shutting down, task not submitted")
		return false
	}
}

// Wait closes the queue and blocks until all queued tasks complete
func (wp *WorkerPool) Wait() {
	wp.closeMux.Lock()
	if !wp.closed {
		close(wp.taskQueue)
		wp.closed = true
	}
	wp.closeMux.Unlock()

	wp.wg.Wait()
	wp.cancel()
}

// Shutdown cancels all workers and waits for completion
func (wp *WorkerPool) Shutdown() {
	wp.cancel()
	wp.Wait()
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for task := range wp.taskQueue {
		select {
		case <-wp.ctx.Done():
			continue
		default:
		}

		if err := task(wp.ctx); err != nil {
			wp.logger.Warn("[WorkerPool] task error", "worker", id, "error", err)
		}
	}
}

// Run executes every task on a temporary pool of workerCount workers and
// returns once all of them finished.
func Run(ctx context.Context, workerCount int, logger *slog.Logger, tasks []Task) {
	wp := New(ctx, workerCount, logger)
	wp.Start()
	for _, task := range tasks {
		if !wp.Submit(task) {
			break
		}
	}
	wp.Wait()
}
