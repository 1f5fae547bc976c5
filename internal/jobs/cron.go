package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"

	"knowledge-platform/internal/logger"
	"knowledge-platform/internal/store"
)

// Reingester periodically starts a fresh job for every active source, so
// changed content is picked up without manual reruns. Sources that already
// have a live job are skipped by the usual conflict rule.
type Reingester struct {
	control   *store.ControlStore
	jobs      *Store
	enqueuer  *Enqueuer
	scheduler *gocron.Scheduler
	cronExpr  string
}

func NewReingester(control *store.ControlStore, jobs *Store, enqueuer *Enqueuer, cronExpr string) *Reingester {
	return &Reingester{
		control:   control,
		jobs:      jobs,
		enqueuer:  enqueuer,
		scheduler: gocron.NewScheduler(time.UTC),
		cronExpr:  cronExpr,
	}
}

func (r *Reingester) Start() error {
	if _, err := r.scheduler.Cron(r.cronExpr).Do(r.runOnce); err != nil {
		return err
	}
	r.scheduler.StartAsync()
	logger.Info("re-ingestion scheduler started", "cron", r.cronExpr)
	return nil
}

func (r *Reingester) Stop() {
	r.scheduler.Stop()
}

func (r *Reingester) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	sources, err := r.control.ListActiveSources(ctx)
	if err != nil {
		logger.Error("re-ingestion scan failed", "error", err)
		return
	}

	started, skipped := 0, 0
	for _, source := range sources {
		job, err := r.jobs.Create(ctx, source.TenantID, source.ID)
		if errors.Is(err, ErrJobConflict) {
			skipped++
			continue
		}
		if err != nil {
			logger.Error("re-ingestion job create failed",
				"tenant_id", source.TenantID, "source_id", source.ID.Hex(), "error", err)
			continue
		}
		if err := r.enqueuer.EnqueueIngest(ctx, job.ID, job.TenantID); err != nil {
			logger.Error("re-ingestion enqueue failed", "job_id", job.ID.Hex(), "error", err)
			continue
		}
		started++
	}

	logger.Info("re-ingestion scan complete", "sources", len(sources), "started", started, "skipped", skipped)
}
