package jobs

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"knowledge-platform/models"
)

var (
	ErrJobNotFound = errors.New("job not found")
	// ErrJobConflict means the source already has a queued or running job.
	ErrJobConflict = errors.New("a live job already exists for this source")
)

// Store persists jobs in the shared control database. Job rows are created
// once, mutated only through the transitions below, and never deleted.
type Store struct {
	col *mongo.Collection
}

func NewStore(client *mongo.Client, dbName string) *Store {
	return &Store{col: client.Database(dbName).Collection("jobs")}
}

// Create inserts a queued job. The partial unique index on source_id makes
// a second live job for the same source fail atomically, whichever process
// races first.
func (s *Store) Create(ctx context.Context, tenantID string, sourceID primitive.ObjectID) (*models.Job, error) {
	job := &models.Job{
		ID:        primitive.NewObjectID(),
		TenantID:  tenantID,
		SourceID:  sourceID,
		Status:    models.JobStatusQueued,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.col.InsertOne(ctx, job)
	if mongo.IsDuplicateKeyError(err) {
		return nil, ErrJobConflict
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Store) Get(ctx context.Context, tenantID string, id primitive.ObjectID) (*models.Job, error) {
	var job models.Job
	err := s.col.FindOne(ctx, bson.M{"_id": id, "tenant_id": tenantID}).Decode(&job)
	if err == mongo.ErrNoDocuments {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Claim transitions queued -> running with a compare-and-set, so a job
// delivered twice by the queue runs at most once. Returns nil, nil when the
// job is no longer claimable.
func (s *Store) Claim(ctx context.Context, id primitive.ObjectID) (*models.Job, error) {
	now := time.Now().UTC()

	var job models.Job
	err := s.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": models.JobStatusQueued},
		bson.M{"$set": bson.M{"status": models.JobStatusRunning, "started_at": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&job)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Finish moves a running job to a terminal state and records its tallies.
func (s *Store) Finish(ctx context.Context, id primitive.ObjectID, status string, processed, failed int, errMsg string) error {
	set := bson.M{
		"status":          status,
		"items_processed": processed,
		"items_failed":    failed,
		"finished_at":     time.Now().UTC(),
	}
	if errMsg != "" {
		set["error"] = errMsg
	}

	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.JobStatusRunning},
		bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrJobNotFound
	}
	return nil
}

// RequestCancel is idempotent. A queued job goes straight to canceled; a
// running job gets the flag the executor polls between items; a terminal
// job is left untouched. The job's current status is returned either way.
func (s *Store) RequestCancel(ctx context.Context, tenantID string, id primitive.ObjectID) (*models.Job, error) {
	now := time.Now().UTC()

	// queued -> canceled directly, the worker never picks it up
	var job models.Job
	err := s.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "tenant_id": tenantID, "status": models.JobStatusQueued},
		bson.M{"$set": bson.M{
			"status":           models.JobStatusCanceled,
			"cancel_requested": true,
			"finished_at":      now,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&job)
	if err == nil {
		return &job, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, err
	}

	// running -> flag only; the executor finalizes the transition
	err = s.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "tenant_id": tenantID, "status": models.JobStatusRunning},
		bson.M{"$set": bson.M{"cancel_requested": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&job)
	if err == nil {
		return &job, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, err
	}

	// already terminal, still a success for the caller
	return s.Get(ctx, tenantID, id)
}

// CancelRequested reads the cancel flag. The executor polls this between
// items.
func (s *Store) CancelRequested(ctx context.Context, id primitive.ObjectID) (bool, error) {
	var job models.Job
	err := s.col.FindOne(ctx, bson.M{"_id": id},
		options.FindOne().SetProjection(bson.M{"cancel_requested": 1})).Decode(&job)
	if err == mongo.ErrNoDocuments {
		return false, ErrJobNotFound
	}
	if err != nil {
		return false, err
	}
	return job.CancelRequested, nil
}

// ListByTenant returns a tenant's jobs, newest first.
func (s *Store) ListByTenant(ctx context.Context, tenantID string, limit int64) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	cursor, err := s.col.Find(ctx, bson.M{"tenant_id": tenantID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var list []models.Job
	if err := cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}
