package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"knowledge-platform/internal/connector"
	"knowledge-platform/internal/processor"
	"knowledge-platform/models"
)

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[primitive.ObjectID]*models.Job
	// cancelAfter flips cancel_requested once this many cancel polls happen
	cancelAfter int
	polls       int
}

func newFakeJobStore(job *models.Job) *fakeJobStore {
	return &fakeJobStore{
		jobs:        map[primitive.ObjectID]*models.Job{job.ID: job},
		cancelAfter: -1,
	}
}

func (s *fakeJobStore) Claim(_ context.Context, id primitive.ObjectID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != models.JobStatusQueued {
		return nil, nil
	}
	job.Status = models.JobStatusRunning
	copied := *job
	return &copied, nil
}

func (s *fakeJobStore) Finish(_ context.Context, id primitive.ObjectID, status string, processed, failed int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	job.ItemsProcessed = processed
	job.ItemsFailed = failed
	job.Error = errMsg
	return nil
}

func (s *fakeJobStore) CancelRequested(_ context.Context, id primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if s.cancelAfter >= 0 && s.polls > s.cancelAfter {
		s.jobs[id].CancelRequested = true
	}
	return s.jobs[id].CancelRequested, nil
}

func (s *fakeJobStore) status(id primitive.ObjectID) *models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *s.jobs[id]
	return &copied
}

type fakeSources struct {
	source *models.Source
	err    error
}

func (f *fakeSources) GetSource(_ context.Context, _ string, _ primitive.ObjectID) (*models.Source, error) {
	return f.source, f.err
}

// stubConnector replays a fixed item/error script.
type stubConnector struct {
	items       []connector.Item
	itemErrs    []connector.ItemError
	validateErr error
}

func (s *stubConnector) Type() string { return "stub" }

func (s *stubConnector) Validate(_ context.Context, _ connector.FetchSpec) error {
	return s.validateErr
}

func (s *stubConnector) Fetch(ctx context.Context, _ connector.FetchSpec) (<-chan connector.Item, <-chan connector.ItemError) {
	items := make(chan connector.Item)
	errs := make(chan connector.ItemError)
	go func() {
		defer close(items)
		defer close(errs)
		for _, item := range s.items {
			select {
			case items <- item:
			case <-ctx.Done():
				return
			}
		}
		for _, ie := range s.itemErrs {
			select {
			case errs <- ie:
			case <-ctx.Done():
				return
			}
		}
	}()
	return items, errs
}

type stubLookup struct {
	conn connector.Connector
}

func (s *stubLookup) Lookup(_ string) (connector.Connector, error) {
	if s.conn == nil {
		return nil, errors.New("unknown source type")
	}
	return s.conn, nil
}

type fakeProcessor struct {
	mu     sync.Mutex
	seen   []string
	failOn map[string]bool
}

func (p *fakeProcessor) Process(_ context.Context, _ string, _ primitive.ObjectID, item connector.Item) (*processor.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, item.ID)
	if p.failOn[item.ID] {
		return nil, fmt.Errorf("boom")
	}
	return &processor.Result{Version: 1, ChunkCount: 2}, nil
}

func newTestJob() *models.Job {
	return &models.Job{
		ID:       primitive.NewObjectID(),
		TenantID: "t1",
		SourceID: primitive.NewObjectID(),
		Status:   models.JobStatusQueued,
	}
}

func testSource() *models.Source {
	return &models.Source{
		ID:       primitive.NewObjectID(),
		TenantID: "t1",
		Type:     "stub",
		Location: "/data",
	}
}

func makeItems(n int) []connector.Item {
	items := make([]connector.Item, n)
	for i := range items {
		items[i] = connector.Item{ID: fmt.Sprintf("item-%d", i), Path: fmt.Sprintf("item-%d", i), Text: "text"}
	}
	return items
}

func TestExecuteAllItemsSucceed(t *testing.T) {
	job := newTestJob()
	jobStore := newFakeJobStore(job)
	proc := &fakeProcessor{}
	log := NewMemoryLog()

	exec := NewExecutor(jobStore, &fakeSources{source: testSource()},
		&stubLookup{conn: &stubConnector{items: makeItems(3)}}, proc, log)

	if err := exec.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got := jobStore.status(job.ID)
	if got.Status != models.JobStatusSucceeded {
		t.Fatalf("status = %s, want succeeded", got.Status)
	}
	if got.ItemsProcessed != 3 || got.ItemsFailed != 0 {
		t.Fatalf("tallies = %d/%d, want 3/0", got.ItemsProcessed, got.ItemsFailed)
	}
}

func TestExecutePartialFailureStillSucceeds(t *testing.T) {
	// 2 of 5 items fail, 3 succeed: the job still succeeds
	job := newTestJob()
	jobStore := newFakeJobStore(job)
	proc := &fakeProcessor{failOn: map[string]bool{"item-1": true, "item-3": true}}
	log := NewMemoryLog()

	exec := NewExecutor(jobStore, &fakeSources{source: testSource()},
		&stubLookup{conn: &stubConnector{items: makeItems(5)}}, proc, log)

	if err := exec.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got := jobStore.status(job.ID)
	if got.Status != models.JobStatusSucceeded {
		t.Fatalf("status = %s, want succeeded", got.Status)
	}
	if got.ItemsProcessed != 3 || got.ItemsFailed != 2 {
		t.Fatalf("tallies = %d/%d, want 3/2", got.ItemsProcessed, got.ItemsFailed)
	}

	content, _, err := log.Read(context.Background(), job.ID.Hex(), 0, 0)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(content, "item item-1 failed") {
		t.Fatalf("log missing failure line:\n%s", content)
	}
}

func TestExecuteAllItemsFailFailsJob(t *testing.T) {
	job := newTestJob()
	jobStore := newFakeJobStore(job)
	proc := &fakeProcessor{failOn: map[string]bool{"item-0": true, "item-1": true}}
	log := NewMemoryLog()

	exec := NewExecutor(jobStore, &fakeSources{source: testSource()},
		&stubLookup{conn: &stubConnector{items: makeItems(2)}}, proc, log)

	if err := exec.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got := jobStore.status(job.ID)
	if got.Status != models.JobStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Error == "" {
		t.Fatal("expected an error message on the failed job")
	}
}

func TestExecuteEmptySourceSucceeds(t *testing.T) {
	job := newTestJob()
	jobStore := newFakeJobStore(job)
	log := NewMemoryLog()

	exec := NewExecutor(jobStore, &fakeSources{source: testSource()},
		&stubLookup{conn: &stubConnector{}}, &fakeProcessor{}, log)

	if err := exec.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := jobStore.status(job.ID); got.Status != models.JobStatusSucceeded {
		t.Fatalf("status = %s, want succeeded", got.Status)
	}
}

func TestExecuteValidateErrorFailsJob(t *testing.T) {
	job := newTestJob()
	jobStore := newFakeJobStore(job)
	log := NewMemoryLog()

	exec := NewExecutor(jobStore, &fakeSources{source: testSource()},
		&stubLookup{conn: &stubConnector{validateErr: errors.New("no such directory")}},
		&fakeProcessor{}, log)

	if err := exec.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}
	got := jobStore.status(job.ID)
	if got.Status != models.JobStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
}

func TestExecuteCancelMidRun(t *testing.T) {
	job := newTestJob()
	jobStore := newFakeJobStore(job)
	jobStore.cancelAfter = 2 // cancel lands after two items were polled
	proc := &fakeProcessor{}
	log := NewMemoryLog()

	exec := NewExecutor(jobStore, &fakeSources{source: testSource()},
		&stubLookup{conn: &stubConnector{items: makeItems(10)}}, proc, log)

	if err := exec.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got := jobStore.status(job.ID)
	if got.Status != models.JobStatusCanceled {
		t.Fatalf("status = %s, want canceled", got.Status)
	}
	if got.ItemsProcessed >= 10 {
		t.Fatalf("processed %d items, cancel should have stopped the run early", got.ItemsProcessed)
	}
	// already persisted work survives the cancel
	if got.ItemsProcessed == 0 {
		t.Fatal("expected at least one item processed before the cancel")
	}
}

func TestExecuteUnclaimableJobIsSkipped(t *testing.T) {
	job := newTestJob()
	job.Status = models.JobStatusCanceled
	jobStore := newFakeJobStore(job)

	exec := NewExecutor(jobStore, &fakeSources{source: testSource()},
		&stubLookup{conn: &stubConnector{items: makeItems(3)}}, &fakeProcessor{}, NewMemoryLog())

	if err := exec.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := jobStore.status(job.ID); got.Status != models.JobStatusCanceled {
		t.Fatalf("status = %s, want canceled untouched", got.Status)
	}
}
