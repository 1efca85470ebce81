// Package jobs defines background tasks such as automated pull request
// analysis.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codesentry/codesentry/internal/core"
)

// Dispatcher implements core.JobDispatcher and manages a pool of worker
// goroutines for processing webhook events.
type Dispatcher struct {
	job        core.Job         // Job implementation executed by each worker.
	jobQueue   chan *core.Event // Queue of incoming events.
	maxWorkers int              // Number of concurrent workers.
	wg         sync.WaitGroup   // Tracks active workers for graceful shutdown.
	logger     *slog.Logger     // Logger instance for the dispatcher.
}

// NewDispatcher initializes a dispatcher with a worker pool.
// If maxWorkers is 0 or negative, it defaults to 1.
func NewDispatcher(job core.Job, maxWorkers int, logger *slog.Logger) *Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	d := &Dispatcher{
		job:        job,
		maxWorkers: maxWorkers,
		jobQueue:   make(chan *core.Event, 100),
		logger:     logger,
	}
	d.startWorkers()
	return d
}

// startWorkers launches maxWorkers goroutines to process jobs from the queue.
func (d *Dispatcher) startWorkers() {
	for i := range d.maxWorkers {
		d.wg.Add(1)
		go d.startWorker(i)
	}
}

// startWorker processes events from the queue until it's closed.
func (d *Dispatcher) startWorker(workerID int) {
	defer d.wg.Done()
	d.logger.Info("starting event worker", "id", workerID)

	for event := range d.jobQueue {
		d.processEvent(workerID, event)
	}

	d.logger.Info("shutting down event worker", "id", workerID)
}

// processEvent logs and runs the lifecycle job for one event.
func (d *Dispatcher) processEvent(workerID int, event *core.Event) {
	d.logger.Info("worker processing event",
		"worker_id", workerID,
		"kind", event.Kind,
	)

	err := d.job.Run(context.Background(), event)
	if err != nil {
		d.logger.Error("event job failed",
			"kind", event.Kind,
			"error", err,
		)
	}
}

// Dispatch queues an event for processing by a worker.
func (d *Dispatcher) Dispatch(_ context.Context, event *core.Event) error {
	d.logger.Info("queuing event job", "kind", event.Kind)

	select {
	case d.jobQueue <- event:
		return nil
	default:
		return fmt.Errorf("job queue is full, cannot accept new event")
	}
}

// Stop gracefully shuts down the dispatcher, waiting for all workers to finish.
func (d *Dispatcher) Stop() {
	d.logger.Info("stopping dispatcher and waiting for jobs to finish")
	close(d.jobQueue)
	d.wg.Wait()
	d.logger.Info("all event jobs have finished")
}
