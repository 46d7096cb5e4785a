package workqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/apperrors"
	"github.com/snowlink-io/snowlink-engine/pkg/retry"
)

func fastRetry() *retry.Config {
	return &retry.Config{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

// funcTask wraps a function as a Task.
type funcTask struct {
	BaseTask
	fn func(ctx context.Context) error
}

func newFuncTask(name string, requiresModel bool, fn func(ctx context.Context) error) *funcTask {
	return &funcTask{BaseTask: NewBaseTask(name, requiresModel), fn: fn}
}

func (t *funcTask) Execute(ctx context.Context) error {
	return t.fn(ctx)
}

func TestQueue_RunsAllTasks(t *testing.T) {
	q := New(2, zap.NewNop(), WithRetryConfig(fastRetry()))

	var count atomic.Int32
	for i := 0; i < 5; i++ {
		q.Enqueue(newFuncTask(fmt.Sprintf("doc-%d", i), true, func(context.Context) error {
			count.Add(1)
			return nil
		}))
	}

	if err := q.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if got := count.Load(); got != 5 {
		t.Fatalf("expected 5 executions, got %d", got)
	}

	p := q.Progress()
	if p.Completed != 5 || p.Failed != 0 {
		t.Fatalf("unexpected progress: %+v", p)
	}
}

func TestQueue_ModelConcurrencyCapped(t *testing.T) {
	const workers = 2
	q := New(workers, zap.NewNop(), WithRetryConfig(fastRetry()))

	var mu sync.Mutex
	running, peak := 0, 0

	for i := 0; i < 8; i++ {
		q.Enqueue(newFuncTask("extract", true, func(context.Context) error {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			return nil
		}))
	}

	if err := q.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if peak > workers {
		t.Fatalf("model concurrency peaked at %d, cap is %d", peak, workers)
	}
}

func TestQueue_WarehouseTasksSerialized(t *testing.T) {
	q := New(4, zap.NewNop(), WithRetryConfig(fastRetry()))

	var mu sync.Mutex
	running, peak := 0, 0

	for i := 0; i < 6; i++ {
		q.Enqueue(newFuncTask("apply", false, func(context.Context) error {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			return nil
		}))
	}

	if err := q.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if peak != 1 {
		t.Fatalf("warehouse tasks must run one at a time, peaked at %d", peak)
	}
}

func TestQueue_RetriesTransientErrors(t *testing.T) {
	q := New(1, zap.NewNop(), WithRetryConfig(fastRetry()))

	var calls atomic.Int32
	q.Enqueue(newFuncTask("flaky", true, func(context.Context) error {
		if calls.Add(1) < 3 {
			return &apperrors.RateLimitedError{System: "jira", RetryAfter: time.Millisecond}
		}
		return nil
	}))

	if err := q.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if q.HasFailures() {
		t.Fatal("recovered task must not count as failure")
	}
}

func TestQueue_NonRetryableFailsFast(t *testing.T) {
	q := New(1, zap.NewNop(), WithRetryConfig(fastRetry()))

	var calls atomic.Int32
	taskErr := errors.New("schema response was not valid")
	q.Enqueue(newFuncTask("broken", true, func(context.Context) error {
		calls.Add(1)
		return taskErr
	}))

	err := q.Wait(context.Background())
	if !errors.Is(err, taskErr) {
		t.Fatalf("expected task error, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("non-retryable error must not be retried, got %d attempts", got)
	}
	if !q.HasFailures() {
		t.Fatal("expected HasFailures() true")
	}
}

func TestQueue_CancelStopsPendingTasks(t *testing.T) {
	q := New(1, zap.NewNop(), WithRetryConfig(fastRetry()))

	started := make(chan struct{})
	var executed atomic.Int32

	q.Enqueue(newFuncTask("slow", true, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	q.Enqueue(newFuncTask("never", true, func(context.Context) error {
		executed.Add(1)
		return nil
	}))

	<-started
	q.Cancel()

	if err := q.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() after cancel failed: %v", err)
	}
	if executed.Load() != 0 {
		t.Fatal("pending task ran after cancel")
	}

	p := q.Progress()
	if p.Cancelled != 2 {
		t.Fatalf("expected 2 cancelled tasks, got %+v", p)
	}
}

func TestQueue_ReusableAcrossBatches(t *testing.T) {
	q := New(1, zap.NewNop(), WithRetryConfig(fastRetry()))

	q.Enqueue(newFuncTask("first", true, func(context.Context) error { return nil }))
	if err := q.Wait(context.Background()); err != nil {
		t.Fatalf("first batch failed: %v", err)
	}

	q.Enqueue(newFuncTask("second", true, func(context.Context) error { return nil }))
	if err := q.Wait(context.Background()); err != nil {
		t.Fatalf("second batch failed: %v", err)
	}

	if p := q.Progress(); p.Completed != 2 {
		t.Fatalf("expected 2 completed tasks, got %+v", p)
	}
}
