package workqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task is one unit of pipeline work: processing a changed document or
// applying a pending mutation.
type Task interface {
	// ID returns a unique identifier for this task.
	ID() string

	// Name returns a human-readable name for logs and the status endpoint.
	Name() string

	// RequiresModel reports whether this task calls the extraction model.
	// Model tasks are throttled separately from warehouse tasks.
	RequiresModel() bool

	// Execute runs the task.
	Execute(ctx context.Context) error
}

// taskState holds the runtime state of a task.
type taskState struct {
	task        Task
	status      TaskStatus
	startedAt   *time.Time
	completedAt *time.Time
	err         error
	retries     int

	mu sync.RWMutex
}

func newTaskState(task Task) *taskState {
	return &taskState{task: task, status: TaskStatusPending}
}

func (ts *taskState) getStatus() TaskStatus {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.status
}

func (ts *taskState) setStatus(status TaskStatus) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.status = status
	now := time.Now()
	switch status {
	case TaskStatusRunning:
		ts.startedAt = &now
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		ts.completedAt = &now
	}
}

func (ts *taskState) setError(err error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.err = err
}

func (ts *taskState) getError() error {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.err
}

func (ts *taskState) incrementRetries() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.retries++
	return ts.retries
}

func (ts *taskState) snapshot() TaskSnapshot {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	var errMsg string
	if ts.err != nil {
		errMsg = ts.err.Error()
	}
	return TaskSnapshot{
		ID:            ts.task.ID(),
		Name:          ts.task.Name(),
		RequiresModel: ts.task.RequiresModel(),
		Status:        ts.status,
		StartedAt:     ts.startedAt,
		CompletedAt:   ts.completedAt,
		Error:         errMsg,
		Retries:       ts.retries,
	}
}

// TaskSnapshot is an immutable view of task state for the status endpoint.
type TaskSnapshot struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	RequiresModel bool       `json:"requires_model"`
	Status        TaskStatus `json:"status"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Error         string     `json:"error,omitempty"`
	Retries       int        `json:"retries"`
}

// BaseTask provides ID and naming for concrete task implementations.
type BaseTask struct {
	id            string
	name          string
	requiresModel bool
}

// NewBaseTask creates a base task with a fresh identifier.
func NewBaseTask(name string, requiresModel bool) BaseTask {
	return BaseTask{
		id:            uuid.New().String(),
		name:          name,
		requiresModel: requiresModel,
	}
}

func (t BaseTask) ID() string          { return t.id }
func (t BaseTask) Name() string        { return t.name }
func (t BaseTask) RequiresModel() bool { return t.requiresModel }
