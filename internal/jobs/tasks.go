package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"knowledge-platform/internal/logger"
)

const TaskIngestRun = "ingest:run"

type IngestPayload struct {
	JobID    string `json:"job_id"`
	TenantID string `json:"tenant_id"`
}

// NewIngestTask wraps a job id for the queue. Retries stay at 1 because the
// claim CAS makes a redelivered task a no-op, and a failed job is rerun
// explicitly, not retried blindly.
func NewIngestTask(jobID primitive.ObjectID, tenantID string) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{
		JobID:    jobID.Hex(),
		TenantID: tenantID,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestRun,
		payload,
		asynq.MaxRetry(1),
		asynq.Timeout(2*time.Hour),
		asynq.Queue("ingest"),
	), nil
}

// Enqueuer submits ingestion tasks from the API process.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(opt asynq.RedisClientOpt) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(opt)}
}

func (q *Enqueuer) Close() error {
	return q.client.Close()
}

func (q *Enqueuer) EnqueueIngest(ctx context.Context, jobID primitive.ObjectID, tenantID string) error {
	task, err := NewIngestTask(jobID, tenantID)
	if err != nil {
		return err
	}
	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue ingest task: %w", err)
	}
	logger.Debug("ingest task enqueued", "job_id", jobID.Hex(), "queue", info.Queue, "task_id", info.ID)
	return nil
}

// TaskHandler adapts the executor to asynq's handler signature.
type TaskHandler struct {
	executor *Executor
}

func NewTaskHandler(executor *Executor) *TaskHandler {
	return &TaskHandler{executor: executor}
}

func (h *TaskHandler) HandleIngestTask(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal ingest payload: %v: %w", err, asynq.SkipRetry)
	}

	jobID, err := primitive.ObjectIDFromHex(payload.JobID)
	if err != nil {
		return fmt.Errorf("invalid job id %q: %w", payload.JobID, asynq.SkipRetry)
	}

	return h.executor.Execute(ctx, jobID)
}

// Mux registers all task handlers.
func (h *TaskHandler) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskIngestRun, h.HandleIngestTask)
	return mux
}
