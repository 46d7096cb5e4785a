package driver

import (
	"context"
	"fmt"

	"github.com/snowlink-io/snowlink-engine/pkg/models"
	"github.com/snowlink-io/snowlink-engine/pkg/workqueue"
)

// documentTask processes one changed document through extract and
// reconcile. Failure handling lives in the execute closure; the task
// itself never reports an error to the queue.
type documentTask struct {
	workqueue.BaseTask
	execute func(ctx context.Context) error
}

func newDocumentTask(ev models.ChangeEvent, execute func(ctx context.Context) error) *documentTask {
	name := fmt.Sprintf("document %s/%s", ev.SourceSystem, ev.DocumentID)
	return &documentTask{
		BaseTask: workqueue.NewBaseTask(name, true),
		execute:  execute,
	}
}

func (t *documentTask) Execute(ctx context.Context) error {
	return t.execute(ctx)
}

// mutationTask applies one pending warehouse mutation.
type mutationTask struct {
	workqueue.BaseTask
	execute func(ctx context.Context) error
}

func newMutationTask(m *models.TargetMutation, execute func(ctx context.Context) error) *mutationTask {
	name := fmt.Sprintf("apply %s", m.Entity)
	return &mutationTask{
		BaseTask: workqueue.NewBaseTask(name, false),
		execute:  execute,
	}
}

func (t *mutationTask) Execute(ctx context.Context) error {
	return t.execute(ctx)
}
