package processor

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"knowledge-platform/internal/ai"
	"knowledge-platform/internal/connector"
	"knowledge-platform/models"
	"knowledge-platform/utils"
)

// DocumentStore is the persistence surface the processor needs. The mongo
// implementation lives in internal/store; tests substitute an in-memory one.
type DocumentStore interface {
	// GetDocumentByPath returns nil, nil when no document exists at path.
	GetDocumentByPath(ctx context.Context, tenantID, path string) (*models.Document, error)
	// SaveDocument inserts or updates by (tenant, path) and fills doc.ID.
	SaveDocument(ctx context.Context, tenantID string, doc *models.Document) error
	InsertVersion(ctx context.Context, tenantID string, version models.DocumentVersion) error
	// ReplaceChunks atomically swaps the document's live chunk set.
	ReplaceChunks(ctx context.Context, tenantID string, documentID primitive.ObjectID, chunks []models.Chunk) error
}

// Result reports what Process did with one item.
type Result struct {
	DocumentID primitive.ObjectID
	Skipped    bool // content hash unchanged, nothing rewritten
	Version    int
	ChunkCount int
}

// Processor turns one connector item into a versioned document with an
// embedded chunk set. Unchanged content is detected by hash and skipped
// without touching chunks or version.
type Processor struct {
	store    DocumentStore
	embedder ai.Embedder
	chunker  *Chunker
}

func New(store DocumentStore, embedder ai.Embedder, chunker *Chunker) *Processor {
	return &Processor{store: store, embedder: embedder, chunker: chunker}
}

// Process ingests one item for a tenant. A failure leaves the previous
// document version and its chunks fully intact.
func (p *Processor) Process(ctx context.Context, tenantID string, sourceID primitive.ObjectID, item connector.Item) (*Result, error) {
	if item.Text == "" {
		return nil, fmt.Errorf("item %s has no text", item.ID)
	}

	hash := utils.ContentHash(item.Text)

	existing, err := p.store.GetDocumentByPath(ctx, tenantID, item.Path)
	if err != nil {
		return nil, fmt.Errorf("lookup document: %w", err)
	}

	if existing != nil && existing.ContentHash == hash {
		return &Result{
			DocumentID: existing.ID,
			Skipped:    true,
			Version:    existing.Version,
			ChunkCount: existing.ChunkCount,
		}, nil
	}

	pieces := p.chunker.Chunk(item.Text)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("item %s produced no chunks", item.ID)
	}

	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(pieces) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(pieces))
	}

	now := time.Now().UTC()
	doc := existing
	if doc == nil {
		doc = &models.Document{
			ID:        primitive.NewObjectID(),
			TenantID:  tenantID,
			SourceID:  sourceID,
			Path:      item.Path,
			CreatedAt: now,
		}
	}
	doc.ContentHash = hash
	doc.ByteCount = len(item.Text)
	doc.PageCount = item.PageCount
	doc.ChunkCount = len(pieces)
	doc.Version++
	doc.UpdatedAt = now

	chunks := make([]models.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = models.Chunk{
			TenantID:   tenantID,
			DocumentID: doc.ID,
			SourcePath: item.Path,
			Index:      piece.Index,
			Text:       piece.Text,
			Vector:     vectors[i],
			StartRune:  piece.StartRune,
			EndRune:    piece.EndRune,
		}
	}

	// Chunks are swapped before the new hash and version are persisted. If
	// the swap fails, the document still carries the old hash, so the next
	// run reprocesses the item instead of skipping it.
	if err := p.store.ReplaceChunks(ctx, tenantID, doc.ID, chunks); err != nil {
		return nil, fmt.Errorf("replace chunks: %w", err)
	}

	if err := p.store.SaveDocument(ctx, tenantID, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	if err := p.store.InsertVersion(ctx, tenantID, models.DocumentVersion{
		DocumentID:  doc.ID,
		TenantID:    tenantID,
		Version:     doc.Version,
		ContentHash: hash,
		ByteCount:   doc.ByteCount,
		ChunkCount:  doc.ChunkCount,
		CreatedAt:   now,
	}); err != nil {
		return nil, fmt.Errorf("record version: %w", err)
	}

	return &Result{
		DocumentID: doc.ID,
		Version:    doc.Version,
		ChunkCount: len(chunks),
	}, nil
}
