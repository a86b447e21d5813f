package importer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TaskTypeImport is the asynq task type for a single import work unit.
const TaskTypeImport = "import:unit"

type taskPayload struct {
	JobID string   `json:"job_id"`
	Unit  WorkUnit `json:"unit"`
}

// asynqQueue enqueues every work unit as its own asynq task. The asynq
// server drives per-unit concurrency, so Dispatch only enqueues.
type asynqQueue struct {
	client *asynq.Client
}

// NewAsynqQueue returns a Redis-backed queue. The caller must run an asynq
// server with a TaskWorker registered for TaskTypeImport.
func NewAsynqQueue(client *asynq.Client) Queue {
	return &asynqQueue{client: client}
}

func (q *asynqQueue) Dispatch(jobID string, units []WorkUnit, concurrency int, process func(WorkUnit)) error {
	for _, unit := range units {
		payload, err := json.Marshal(taskPayload{JobID: jobID, Unit: unit})
		if err != nil {
			return fmt.Errorf("failed to marshal task payload: %w", err)
		}
		if _, err := q.client.Enqueue(asynq.NewTask(TaskTypeImport, payload)); err != nil {
			return fmt.Errorf("failed to enqueue import task: %w", err)
		}
	}
	return nil
}

// TaskWorker adapts the coordinator to asynq's handler interface.
type TaskWorker struct {
	coord *Coordinator
}

// NewTaskWorker creates the asynq handler for import tasks.
func NewTaskWorker(coord *Coordinator) *TaskWorker {
	return &TaskWorker{coord: coord}
}

// ProcessTask handles one import work unit.
func (w *TaskWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload taskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	w.coord.ProcessUnit(payload.JobID, payload.Unit)
	return nil
}
