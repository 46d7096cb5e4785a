// Package workqueue runs pipeline tasks with bounded concurrency. Model
// tasks (extraction) and warehouse tasks (mutation apply) are throttled
// independently so a slow model endpoint cannot starve warehouse writes.
package workqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/apperrors"
	"github.com/snowlink-io/snowlink-engine/pkg/retry"
)

// Queue manages task execution for one sync batch.
type Queue struct {
	mu        sync.Mutex
	tasks     []*taskState
	cancelled bool

	maxModel     int // concurrent model-task cap
	maxWarehouse int // concurrent warehouse-task cap
	modelRunning int
	whRunning    int

	retryCfg *retry.Config

	done chan struct{}
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	logger *zap.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithRetryConfig overrides the per-task retry configuration.
func WithRetryConfig(cfg *retry.Config) Option {
	return func(q *Queue) {
		if cfg != nil {
			q.retryCfg = cfg
		}
	}
}

// New creates a work queue. workers caps concurrent model tasks; warehouse
// tasks run at most one at a time to keep apply ordering simple.
func New(workers int, logger *zap.Logger, opts ...Option) *Queue {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		maxModel:     workers,
		maxWarehouse: 1,
		retryCfg:     retry.DefaultConfig(),
		done:         make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger.Named("workqueue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds a task and starts it as soon as a slot is free.
func (q *Queue) Enqueue(task Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancelled {
		q.logger.Warn("Queue cancelled, ignoring enqueue",
			zap.String("task_id", task.ID()),
			zap.String("task_name", task.Name()))
		return
	}

	q.resetDoneLocked()
	q.tasks = append(q.tasks, newTaskState(task))
	q.tryStartTasksLocked()
}

// tryStartTasksLocked starts every pending task that fits under the caps.
// Must be called with lock held.
func (q *Queue) tryStartTasksLocked() {
	if q.cancelled {
		return
	}

	for _, ts := range q.tasks {
		if ts.getStatus() != TaskStatusPending {
			continue
		}

		if ts.task.RequiresModel() {
			if q.modelRunning >= q.maxModel {
				continue
			}
			q.modelRunning++
		} else {
			if q.whRunning >= q.maxWarehouse {
				continue
			}
			q.whRunning++
		}

		ts.setStatus(TaskStatusRunning)
		q.wg.Add(1)
		go q.runTask(ts)
	}
}

// runTask executes a task, retrying transient failures with backoff.
func (q *Queue) runTask(ts *taskState) {
	defer q.wg.Done()

	var lastErr error
	for attempt := 0; attempt <= q.retryCfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := q.retryCfg.Backoff(attempt)
			q.logger.Info("Retrying task after backoff",
				zap.String("task_name", ts.task.Name()),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait))
			select {
			case <-q.ctx.Done():
				q.completeTask(ts, q.ctx.Err())
				return
			case <-time.After(wait):
			}
		}

		err := ts.task.Execute(q.ctx)
		if err == nil {
			q.completeTask(ts, nil)
			return
		}
		lastErr = err

		if errors.Is(err, context.Canceled) {
			break
		}
		if !apperrors.IsRetryable(err) {
			q.logger.Warn("Non-retryable task error, failing immediately",
				zap.String("task_name", ts.task.Name()),
				zap.Error(err))
			break
		}

		ts.incrementRetries()
		if attempt >= q.retryCfg.MaxRetries {
			q.logger.Error("Task failed after retries exhausted",
				zap.String("task_name", ts.task.Name()),
				zap.Error(err))
			break
		}
	}

	q.completeTask(ts, lastErr)
}

// completeTask records the task outcome and starts successors.
func (q *Queue) completeTask(ts *taskState, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if ts.task.RequiresModel() {
		q.modelRunning--
	} else {
		q.whRunning--
	}

	switch {
	case err == nil:
		ts.setStatus(TaskStatusCompleted)
	case errors.Is(err, context.Canceled):
		ts.setStatus(TaskStatusCancelled)
	default:
		ts.setStatus(TaskStatusFailed)
		ts.setError(err)
		q.logger.Error("Task failed",
			zap.String("task_name", ts.task.Name()),
			zap.Error(err))
	}

	if q.allTasksDoneLocked() {
		q.closeDoneLocked()
		return
	}
	q.tryStartTasksLocked()
}

func (q *Queue) allTasksDoneLocked() bool {
	for _, ts := range q.tasks {
		status := ts.getStatus()
		if status == TaskStatusPending || status == TaskStatusRunning {
			return false
		}
	}
	return true
}

func (q *Queue) closeDoneLocked() {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}

// resetDoneLocked recreates the done channel so the queue can serve
// multiple batches.
func (q *Queue) resetDoneLocked() {
	select {
	case <-q.done:
		q.done = make(chan struct{})
	default:
	}
}

// Wait blocks until every task reaches a terminal state or the context is
// cancelled. Returns the first task error, if any.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	if len(q.tasks) == 0 {
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		q.mu.Lock()
		defer q.mu.Unlock()
		for _, ts := range q.tasks {
			if ts.getStatus() == TaskStatusFailed {
				return ts.getError()
			}
		}
		return nil
	case <-ctx.Done():
		q.Cancel()
		return ctx.Err()
	}
}

// Cancel stops accepting tasks and signals running ones to stop.
func (q *Queue) Cancel() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancelled {
		return
	}
	q.cancelled = true
	q.cancel()

	for _, ts := range q.tasks {
		if ts.getStatus() == TaskStatusPending {
			ts.setStatus(TaskStatusCancelled)
		}
	}
	if q.allTasksDoneLocked() {
		q.closeDoneLocked()
	}
}

// Snapshots returns the current state of every task.
func (q *Queue) Snapshots() []TaskSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]TaskSnapshot, len(q.tasks))
	for i, ts := range q.tasks {
		out[i] = ts.snapshot()
	}
	return out
}

// HasFailures reports whether any task failed.
func (q *Queue) HasFailures() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, ts := range q.tasks {
		if ts.getStatus() == TaskStatusFailed {
			return true
		}
	}
	return false
}

// Progress holds queue progress counters.
type Progress struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Progress returns the current batch counters.
func (q *Queue) Progress() Progress {
	q.mu.Lock()
	defer q.mu.Unlock()

	p := Progress{Total: len(q.tasks)}
	for _, ts := range q.tasks {
		switch ts.getStatus() {
		case TaskStatusPending:
			p.Pending++
		case TaskStatusRunning:
			p.Running++
		case TaskStatusCompleted:
			p.Completed++
		case TaskStatusFailed:
			p.Failed++
		case TaskStatusCancelled:
			p.Cancelled++
		}
	}
	return p
}
