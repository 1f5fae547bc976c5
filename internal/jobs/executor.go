package jobs

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"knowledge-platform/internal/connector"
	"knowledge-platform/internal/logger"
	"knowledge-platform/internal/processor"
	"knowledge-platform/internal/telemetry"
	"knowledge-platform/models"
)

// JobStore is the subset of Store the executor mutates.
type JobStore interface {
	Claim(ctx context.Context, id primitive.ObjectID) (*models.Job, error)
	Finish(ctx context.Context, id primitive.ObjectID, status string, processed, failed int, errMsg string) error
	CancelRequested(ctx context.Context, id primitive.ObjectID) (bool, error)
}

// SourceResolver loads the source a job points at.
type SourceResolver interface {
	GetSource(ctx context.Context, tenantID string, id primitive.ObjectID) (*models.Source, error)
}

// ItemProcessor ingests one connector item.
type ItemProcessor interface {
	Process(ctx context.Context, tenantID string, sourceID primitive.ObjectID, item connector.Item) (*processor.Result, error)
}

// ConnectorLookup resolves a source type to its connector.
type ConnectorLookup interface {
	Lookup(sourceType string) (connector.Connector, error)
}

// Executor runs one claimed job to a terminal state. Per-item failures are
// logged and counted but never abort the job; only a failure before any
// item can flow, or zero successes with at least one failure, makes the
// job fail.
type Executor struct {
	jobs    JobStore
	sources SourceResolver
	lookup  ConnectorLookup
	proc    ItemProcessor
	log     Log
}

func NewExecutor(jobs JobStore, sources SourceResolver, lookup ConnectorLookup, proc ItemProcessor, log Log) *Executor {
	return &Executor{jobs: jobs, sources: sources, lookup: lookup, proc: proc, log: log}
}

// Execute claims and runs the job. A job that is no longer claimable, for
// example canceled while queued or delivered twice, is skipped without
// error.
func (e *Executor) Execute(ctx context.Context, jobID primitive.ObjectID) error {
	job, err := e.jobs.Claim(ctx, jobID)
	if err != nil {
		return fmt.Errorf("claim job %s: %w", jobID.Hex(), err)
	}
	if job == nil {
		logger.Debug("job not claimable, skipping", "job_id", jobID.Hex())
		return nil
	}

	logID := job.ID.Hex()
	e.appendLog(ctx, logID, "job started")

	source, err := e.sources.GetSource(ctx, job.TenantID, job.SourceID)
	if err != nil {
		return e.fail(ctx, job, fmt.Sprintf("resolve source: %v", err))
	}

	telemetry.RecordJobStarted(ctx, job.TenantID, source.Type)

	conn, err := e.lookup.Lookup(source.Type)
	if err != nil {
		return e.fail(ctx, job, err.Error())
	}

	spec := connector.FetchSpec{
		TenantID:    job.TenantID,
		Source:      *source,
		Credentials: source.Credentials,
	}
	if err := conn.Validate(ctx, spec); err != nil {
		return e.fail(ctx, job, fmt.Sprintf("source validation: %v", err))
	}

	fetchCtx, stopFetch := context.WithCancel(ctx)
	defer stopFetch()

	items, itemErrs := conn.Fetch(fetchCtx, spec)

	processed, failed := 0, 0
	canceled := false

	for items != nil || itemErrs != nil {
		select {
		case item, ok := <-items:
			if !ok {
				items = nil
				continue
			}

			// cancellation is cooperative, checked between items
			stop, err := e.jobs.CancelRequested(ctx, job.ID)
			if err != nil {
				logger.Error("cancel poll failed", "job_id", logID, "error", err)
			}
			if stop {
				canceled = true
				stopFetch()
				items, itemErrs = drain(items, itemErrs)
				continue
			}

			result, err := e.proc.Process(ctx, job.TenantID, job.SourceID, item)
			if err != nil {
				failed++
				e.appendLog(ctx, logID, fmt.Sprintf("item %s failed: %v", item.ID, err))
				continue
			}
			processed++
			if result.Skipped {
				e.appendLog(ctx, logID, fmt.Sprintf("item %s unchanged, skipped", item.ID))
			} else {
				e.appendLog(ctx, logID, fmt.Sprintf("item %s ingested version=%d chunks=%d", item.ID, result.Version, result.ChunkCount))
			}

		case itemErr, ok := <-itemErrs:
			if !ok {
				itemErrs = nil
				continue
			}
			failed++
			e.appendLog(ctx, logID, fmt.Sprintf("item %s failed: %v", itemErr.ItemID, itemErr.Err))
		}
	}

	switch {
	case canceled:
		e.appendLog(ctx, logID, fmt.Sprintf("job canceled after %d items", processed))
		return e.finish(ctx, job, models.JobStatusCanceled, processed, failed, "")
	case processed == 0 && failed > 0:
		e.appendLog(ctx, logID, fmt.Sprintf("job failed, all %d items failed", failed))
		return e.finish(ctx, job, models.JobStatusFailed, processed, failed, "no items processed successfully")
	default:
		e.appendLog(ctx, logID, fmt.Sprintf("job succeeded, processed=%d failed=%d", processed, failed))
		return e.finish(ctx, job, models.JobStatusSucceeded, processed, failed, "")
	}
}

// fail finalizes a job that broke before items could flow.
func (e *Executor) fail(ctx context.Context, job *models.Job, msg string) error {
	e.appendLog(ctx, job.ID.Hex(), "job failed: "+msg)
	return e.finish(ctx, job, models.JobStatusFailed, 0, 0, msg)
}

func (e *Executor) finish(ctx context.Context, job *models.Job, status string, processed, failed int, errMsg string) error {
	if err := e.jobs.Finish(ctx, job.ID, status, processed, failed, errMsg); err != nil {
		return fmt.Errorf("finish job %s: %w", job.ID.Hex(), err)
	}
	telemetry.RecordJobFinished(ctx, job.TenantID, status, processed, failed)
	logger.Info("job finished",
		"job_id", job.ID.Hex(),
		"tenant_id", job.TenantID,
		"status", status,
		"processed", processed,
		"failed", failed)
	return nil
}

func (e *Executor) appendLog(ctx context.Context, jobID, line string) {
	if err := e.log.Append(ctx, jobID, line); err != nil {
		logger.Error("job log append failed", "job_id", jobID, "error", err)
	}
}

// drain consumes the remaining items after a cancel so the connector
// goroutine can exit.
func drain(items <-chan connector.Item, itemErrs <-chan connector.ItemError) (<-chan connector.Item, <-chan connector.ItemError) {
	for items != nil || itemErrs != nil {
		select {
		case _, ok := <-items:
			if !ok {
				items = nil
			}
		case _, ok := <-itemErrs:
			if !ok {
				itemErrs = nil
			}
		}
	}
	return nil, nil
}
