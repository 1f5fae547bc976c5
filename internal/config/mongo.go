package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"knowledge-platform/models"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	// Create control-plane indexes
	if err := createIndexes(client, cfg.DBName); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(client *mongo.Client, dbName string) error {
	ctx := context.Background()
	db := client.Database(dbName)

	// Sources: one active source per (tenant, location)
	sourcesCollection := db.Collection("sources")
	sourceIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "location", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
		{
			Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "active", Value: 1}},
		},
	}
	if _, err := sourcesCollection.Indexes().CreateMany(ctx, sourceIndexes); err != nil {
		return err
	}

	// Jobs: the partial unique index enforces at most one live job per
	// source regardless of how many API or worker processes race.
	jobsCollection := db.Collection("jobs")
	jobIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "source_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"status": bson.M{"$in": []string{models.JobStatusQueued, models.JobStatusRunning}},
				}),
		},
		{
			Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}
	if _, err := jobsCollection.Indexes().CreateMany(ctx, jobIndexes); err != nil {
		return err
	}

	// Connector definitions: named templates per tenant
	defsCollection := db.Collection("connector_definitions")
	defIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := defsCollection.Indexes().CreateMany(ctx, defIndexes); err != nil {
		return err
	}

	return nil
}
