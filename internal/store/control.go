package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"knowledge-platform/models"
	"knowledge-platform/utils"
)

var (
	ErrSourceNotFound     = errors.New("source not found")
	ErrSourceConflict     = errors.New("an active source already exists at this location")
	ErrDefinitionNotFound = errors.New("connector definition not found")
	ErrDefinitionConflict = errors.New("a connector definition with this name already exists")
)

// ControlStore persists the shared control plane: sources and connector
// definitions. Tenant scoping is by filter, not by database, because these
// collections are tiny and administrative.
type ControlStore struct {
	db *mongo.Database
}

func NewControlStore(client *mongo.Client, dbName string) *ControlStore {
	return &ControlStore{db: client.Database(dbName)}
}

func (s *ControlStore) sources() *mongo.Collection {
	return s.db.Collection("sources")
}

func (s *ControlStore) definitions() *mongo.Collection {
	return s.db.Collection("connector_definitions")
}

// CreateSource inserts a new active source. The partial unique index turns
// a racing duplicate into ErrSourceConflict.
func (s *ControlStore) CreateSource(ctx context.Context, source *models.Source) error {
	now := time.Now().UTC()
	source.ID = primitive.NewObjectID()
	source.Active = true
	source.Version = 1
	source.CreatedAt = now
	source.UpdatedAt = now

	_, err := s.sources().InsertOne(ctx, source)
	if mongo.IsDuplicateKeyError(err) {
		return ErrSourceConflict
	}
	return err
}

func (s *ControlStore) GetSource(ctx context.Context, tenantID string, id primitive.ObjectID) (*models.Source, error) {
	var source models.Source
	err := s.sources().FindOne(ctx, bson.M{"_id": id, "tenant_id": tenantID}).Decode(&source)
	if err == mongo.ErrNoDocuments {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &source, nil
}

// GetActiveSourceByLocation finds the tenant's active source at a
// location, used to fold ad-hoc job requests onto an existing source.
func (s *ControlStore) GetActiveSourceByLocation(ctx context.Context, tenantID, location string) (*models.Source, error) {
	var source models.Source
	err := s.sources().FindOne(ctx, bson.M{
		"tenant_id": tenantID,
		"location":  location,
		"active":    true,
	}).Decode(&source)
	if err == mongo.ErrNoDocuments {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &source, nil
}

func (s *ControlStore) ListSources(ctx context.Context, tenantID string, activeOnly bool) ([]models.Source, error) {
	filter := bson.M{"tenant_id": tenantID}
	if activeOnly {
		filter["active"] = true
	}

	cursor, err := s.sources().Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sources []models.Source
	if err := cursor.All(ctx, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

// ListActiveSources returns every tenant's active sources, used by the
// re-ingestion scheduler.
func (s *ControlStore) ListActiveSources(ctx context.Context) ([]models.Source, error) {
	cursor, err := s.sources().Find(ctx, bson.M{"active": true})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sources []models.Source
	if err := cursor.All(ctx, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

// UpdateSourceParams replaces params and credentials and bumps the source
// version.
func (s *ControlStore) UpdateSourceParams(ctx context.Context, tenantID string, id primitive.ObjectID, params models.SourceParams, credentials string) (*models.Source, error) {
	update := bson.M{
		"$set": bson.M{
			"params":     params,
			"updated_at": time.Now().UTC(),
		},
		"$inc": bson.M{"version": 1},
	}
	if credentials != "" {
		update["$set"].(bson.M)["credentials"] = credentials
	}

	var source models.Source
	err := s.sources().FindOneAndUpdate(ctx,
		bson.M{"_id": id, "tenant_id": tenantID},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&source)
	if err == mongo.ErrNoDocuments {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &source, nil
}

// DeactivateSource retires a source. Its documents stay queryable; the
// unique (tenant, location) slot frees up for a replacement.
func (s *ControlStore) DeactivateSource(ctx context.Context, tenantID string, id primitive.ObjectID) error {
	res, err := s.sources().UpdateOne(ctx,
		bson.M{"_id": id, "tenant_id": tenantID, "active": true},
		bson.M{"$set": bson.M{"active": false, "updated_at": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrSourceNotFound
	}
	return nil
}

// CreateDefinition stores a named connector template.
func (s *ControlStore) CreateDefinition(ctx context.Context, def *models.ConnectorDefinition) error {
	def.ID = primitive.NewObjectID()
	def.CreatedAt = time.Now().UTC()

	_, err := s.definitions().InsertOne(ctx, def)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDefinitionConflict
	}
	return err
}

func (s *ControlStore) GetDefinition(ctx context.Context, tenantID, name string) (*models.ConnectorDefinition, error) {
	var def models.ConnectorDefinition
	err := s.definitions().FindOne(ctx, bson.M{"tenant_id": tenantID, "name": name}).Decode(&def)
	if err == mongo.ErrNoDocuments {
		return nil, ErrDefinitionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

func (s *ControlStore) ListDefinitions(ctx context.Context, tenantID string) ([]models.ConnectorDefinition, error) {
	cursor, err := s.definitions().Find(ctx, bson.M{"tenant_id": tenantID},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var defs []models.ConnectorDefinition
	if err := cursor.All(ctx, &defs); err != nil {
		return nil, err
	}
	return defs, nil
}

func (s *ControlStore) DeleteDefinition(ctx context.Context, tenantID, name string) error {
	res, err := s.definitions().DeleteOne(ctx, bson.M{"tenant_id": tenantID, "name": name})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrDefinitionNotFound
	}
	return nil
}

func (s *ControlStore) serviceKeys() *mongo.Collection {
	return s.db.Collection("service_keys")
}

// CreateServiceKey mints a machine credential for ingestion agents and
// returns the plaintext exactly once. Only the bcrypt hash is stored.
func (s *ControlStore) CreateServiceKey(ctx context.Context, tenantID, name string) (string, *models.ServiceKey, error) {
	plaintext, err := utils.GenerateSecureRandomString(48)
	if err != nil {
		return "", nil, err
	}
	hash, err := utils.HashServiceKey(plaintext)
	if err != nil {
		return "", nil, err
	}

	key := &models.ServiceKey{
		ID:        primitive.NewObjectID(),
		TenantID:  tenantID,
		Name:      name,
		KeyHash:   hash,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.serviceKeys().InsertOne(ctx, key); err != nil {
		return "", nil, err
	}
	return plaintext, key, nil
}

// VerifyServiceKey checks a presented key against the tenant's stored
// hashes and stamps last_used on a match.
func (s *ControlStore) VerifyServiceKey(ctx context.Context, tenantID, presented string) (bool, error) {
	cursor, err := s.serviceKeys().Find(ctx, bson.M{"tenant_id": tenantID})
	if err != nil {
		return false, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var key models.ServiceKey
		if err := cursor.Decode(&key); err != nil {
			return false, err
		}
		if utils.CheckServiceKey(presented, key.KeyHash) {
			now := time.Now().UTC()
			_, _ = s.serviceKeys().UpdateOne(ctx,
				bson.M{"_id": key.ID},
				bson.M{"$set": bson.M{"last_used": now}})
			return true, nil
		}
	}
	return false, cursor.Err()
}

// DeleteServiceKey revokes one key by id.
func (s *ControlStore) DeleteServiceKey(ctx context.Context, tenantID string, id primitive.ObjectID) error {
	res, err := s.serviceKeys().DeleteOne(ctx, bson.M{"_id": id, "tenant_id": tenantID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
