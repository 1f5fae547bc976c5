package store

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"knowledge-platform/internal/config"
	"knowledge-platform/internal/database"
	"knowledge-platform/models"
)

// Store is the tenant-scoped persistence layer for documents, versions and
// chunks. All operations resolve the tenant database per call.
type Store struct {
	tenants *database.TenantDBManager
	cfg     *config.Config
}

func New(tenants *database.TenantDBManager, cfg *config.Config) *Store {
	return &Store{tenants: tenants, cfg: cfg}
}

// GetDocumentByPath returns nil, nil when the tenant has no document at
// that path.
func (s *Store) GetDocumentByPath(ctx context.Context, tenantID, path string) (*models.Document, error) {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}

	var doc models.Document
	err = db.Collection("documents").FindOne(ctx, bson.M{"path": path}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// SaveDocument upserts by path and fills doc.ID on insert.
func (s *Store) SaveDocument(ctx context.Context, tenantID string, doc *models.Document) error {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return err
	}

	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}

	_, err = db.Collection("documents").UpdateOne(ctx,
		bson.M{"path": doc.Path},
		bson.M{
			"$set": bson.M{
				"tenant_id":    doc.TenantID,
				"source_id":    doc.SourceID,
				"path":         doc.Path,
				"content_hash": doc.ContentHash,
				"byte_count":   doc.ByteCount,
				"page_count":   doc.PageCount,
				"chunk_count":  doc.ChunkCount,
				"version":      doc.Version,
				"updated_at":   doc.UpdatedAt,
			},
			"$setOnInsert": bson.M{
				"_id":        doc.ID,
				"created_at": doc.CreatedAt,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return err
	}

	// A pre-existing document keeps its original _id.
	var saved models.Document
	if err := db.Collection("documents").FindOne(ctx, bson.M{"path": doc.Path}).Decode(&saved); err != nil {
		return err
	}
	doc.ID = saved.ID
	return nil
}

// InsertVersion appends one version record. History is never updated.
func (s *Store) InsertVersion(ctx context.Context, tenantID string, version models.DocumentVersion) error {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return err
	}
	_, err = db.Collection("document_versions").InsertOne(ctx, version)
	return err
}

// ReplaceChunks swaps the document's live chunk set inside one session
// transaction, so readers never observe a half-replaced document.
func (s *Store) ReplaceChunks(ctx context.Context, tenantID string, documentID primitive.ObjectID, chunks []models.Chunk) error {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return err
	}

	session, err := s.tenants.Client().StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		col := db.Collection("chunks")
		if _, err := col.DeleteMany(sc, bson.M{"document_id": documentID}); err != nil {
			return nil, err
		}
		if len(chunks) == 0 {
			return nil, nil
		}
		docs := make([]interface{}, len(chunks))
		for i, chunk := range chunks {
			docs[i] = chunk
		}
		if _, err := col.InsertMany(sc, docs); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("replace chunks: %w", err)
	}
	return nil
}

// DeleteDocument removes a document, its chunks and its version history.
func (s *Store) DeleteDocument(ctx context.Context, tenantID string, documentID primitive.ObjectID) error {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return err
	}

	session, err := s.tenants.Client().StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := db.Collection("chunks").DeleteMany(sc, bson.M{"document_id": documentID}); err != nil {
			return nil, err
		}
		if _, err := db.Collection("document_versions").DeleteMany(sc, bson.M{"document_id": documentID}); err != nil {
			return nil, err
		}
		if _, err := db.Collection("documents").DeleteOne(sc, bson.M{"_id": documentID}); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

// ListDocuments returns the tenant's documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, tenantID string, sourceID *primitive.ObjectID, limit int64) ([]models.Document, error) {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}

	filter := bson.M{}
	if sourceID != nil {
		filter["source_id"] = *sourceID
	}
	if limit <= 0 {
		limit = 100
	}

	cursor, err := db.Collection("documents").Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// ListVersions returns the append-only history of one document, oldest
// first.
func (s *Store) ListVersions(ctx context.Context, tenantID string, documentID primitive.ObjectID) ([]models.DocumentVersion, error) {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}

	cursor, err := db.Collection("document_versions").Find(ctx,
		bson.M{"document_id": documentID},
		options.Find().SetSort(bson.D{{Key: "version", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var versions []models.DocumentVersion
	if err := cursor.All(ctx, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// Candidate is one vector-prefetched chunk with its cosine score and rank.
type Candidate struct {
	Chunk      models.Chunk
	VectorRank int // 0 is the best vector match
	Cosine     float64
}

// VectorPrefetch returns the prefetchK chunks nearest to the query vector,
// best first. Optional docIDs restrict the scan to a session's documents.
// With Atlas vector search enabled it runs $vectorSearch, otherwise an
// exact cosine scan.
func (s *Store) VectorPrefetch(ctx context.Context, tenantID string, queryVec []float32, prefetchK int, docIDs []primitive.ObjectID) ([]Candidate, error) {
	if s.cfg.VectorSearchEnabled {
		candidates, err := s.atlasPrefetch(ctx, tenantID, queryVec, prefetchK, docIDs)
		if err == nil {
			return candidates, nil
		}
		// fall through to the exact scan on index errors
	}
	return s.exactPrefetch(ctx, tenantID, queryVec, prefetchK, docIDs)
}

func (s *Store) exactPrefetch(ctx context.Context, tenantID string, queryVec []float32, prefetchK int, docIDs []primitive.ObjectID) ([]Candidate, error) {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}

	filter := bson.M{}
	if len(docIDs) > 0 {
		filter["document_id"] = bson.M{"$in": docIDs}
	}

	cursor, err := db.Collection("chunks").Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var candidates []Candidate
	for cursor.Next(ctx) {
		var chunk models.Chunk
		if err := cursor.Decode(&chunk); err != nil {
			return nil, err
		}
		score, ok := CosineSimilarity(queryVec, chunk.Vector)
		if !ok {
			continue // dimension mismatch from an older embedding model
		}
		candidates = append(candidates, Candidate{Chunk: chunk, Cosine: score})
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Cosine > candidates[j].Cosine
	})
	if len(candidates) > prefetchK {
		candidates = candidates[:prefetchK]
	}
	for i := range candidates {
		candidates[i].VectorRank = i
	}
	return candidates, nil
}

func (s *Store) atlasPrefetch(ctx context.Context, tenantID string, queryVec []float32, prefetchK int, docIDs []primitive.ObjectID) ([]Candidate, error) {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}

	queryFloats := make([]float64, len(queryVec))
	for i, v := range queryVec {
		queryFloats[i] = float64(v)
	}

	search := bson.M{
		"index":         s.cfg.VectorIndexName,
		"path":          "vector",
		"queryVector":   queryFloats,
		"numCandidates": prefetchK * 10,
		"limit":         prefetchK,
	}
	if len(docIDs) > 0 {
		search["filter"] = bson.M{"document_id": bson.M{"$in": docIDs}}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: search}},
		{{Key: "$addFields", Value: bson.M{"search_score": bson.M{"$meta": "vectorSearchScore"}}}},
	}

	cursor, err := db.Collection("chunks").Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		models.Chunk `bson:",inline"`
		SearchScore  float64 `bson:"search_score"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, len(rows))
	for i, row := range rows {
		candidates[i] = Candidate{Chunk: row.Chunk, VectorRank: i, Cosine: row.SearchScore}
	}
	return candidates, nil
}

// CosineSimilarity returns the cosine of two vectors and whether the pair
// was comparable.
func CosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}

// CountChunks reports the tenant's live chunk total, used by stats routes.
func (s *Store) CountChunks(ctx context.Context, tenantID string) (int64, error) {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return 0, err
	}
	return db.Collection("chunks").CountDocuments(ctx, bson.M{})
}

// CountDocuments reports the tenant's live document total.
func (s *Store) CountDocuments(ctx context.Context, tenantID string) (int64, error) {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return 0, err
	}
	return db.Collection("documents").CountDocuments(ctx, bson.M{})
}
