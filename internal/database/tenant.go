package database

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TenantDBManager hands out one isolated Mongo database per tenant. Every
// caller passes the tenant id explicitly; no tenant state is held in request
// or goroutine-local storage.
type TenantDBManager struct {
	client    *mongo.Client
	databases map[string]*mongo.Database
	mu        sync.RWMutex
}

func NewTenantDBManager(client *mongo.Client) *TenantDBManager {
	return &TenantDBManager{
		client:    client,
		databases: make(map[string]*mongo.Database),
	}
}

// Client exposes the underlying connection for session transactions.
func (m *TenantDBManager) Client() *mongo.Client {
	return m.client
}

// GetTenantDB returns the isolated database for a tenant, creating its
// indexes on first use.
func (m *TenantDBManager) GetTenantDB(tenantID string) (*mongo.Database, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}

	m.mu.RLock()
	if db, exists := m.databases[tenantID]; exists {
		m.mu.RUnlock()
		return db, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if db, exists := m.databases[tenantID]; exists {
		return db, nil
	}

	dbName := fmt.Sprintf("tenant_%s", tenantID)
	db := m.client.Database(dbName)

	if err := m.createTenantIndexes(db); err != nil {
		return nil, err
	}

	m.databases[tenantID] = db
	return db, nil
}

func (m *TenantDBManager) createTenantIndexes(db *mongo.Database) error {
	ctx := context.Background()

	// Documents: path unique per tenant (the database itself is the tenant
	// boundary, so a plain unique index on path suffices)
	documentsCol := db.Collection("documents")
	_, err := documentsCol.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "path", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "source_id", Value: 1}}},
		{Keys: bson.D{{Key: "updated_at", Value: -1}}},
	})
	if err != nil {
		return err
	}

	// Chunks: one live set per document, read by document and scanned whole
	// for exact vector search
	chunksCol := db.Collection("chunks")
	_, err = chunksCol.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "document_id", Value: 1}, {Key: "index", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return err
	}

	// Document versions: append-only history per document
	versionsCol := db.Collection("document_versions")
	_, err = versionsCol.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "document_id", Value: 1}, {Key: "version", Value: 1}}},
	})

	return err
}
