package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document is the normalized representation of one ingested content unit.
// Path is unique per tenant; version increments only when the content hash
// changes, and the document is superseded in place on re-ingestion.
type Document struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID    string             `bson:"tenant_id" json:"tenant_id"`
	SourceID    primitive.ObjectID `bson:"source_id" json:"source_id"`
	Path        string             `bson:"path" json:"path"`
	ContentHash string             `bson:"content_hash" json:"content_hash"`
	ByteCount   int                `bson:"byte_count" json:"byte_count"`
	PageCount   int                `bson:"page_count,omitempty" json:"page_count,omitempty"`
	ChunkCount  int                `bson:"chunk_count" json:"chunk_count"`
	Version     int                `bson:"version" json:"version"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// DocumentVersion is an append-only metadata snapshot written on every
// version bump. Chunk bodies are not duplicated here.
type DocumentVersion struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DocumentID  primitive.ObjectID `bson:"document_id" json:"document_id"`
	TenantID    string             `bson:"tenant_id" json:"tenant_id"`
	Version     int                `bson:"version" json:"version"`
	ContentHash string             `bson:"content_hash" json:"content_hash"`
	ByteCount   int                `bson:"byte_count" json:"byte_count"`
	ChunkCount  int                `bson:"chunk_count" json:"chunk_count"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}

// Chunk is a bounded, overlapping slice of a document's normalized text
// paired with one fixed-dimension embedding vector. Indices are contiguous
// and zero-based within the document's current version; exactly one live
// chunk set exists per document at any time.
type Chunk struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID   string             `bson:"tenant_id" json:"tenant_id"`
	DocumentID primitive.ObjectID `bson:"document_id" json:"document_id"`
	SourcePath string             `bson:"source_path" json:"source_path"`
	Index      int                `bson:"index" json:"index"`
	Text       string             `bson:"text" json:"text"`
	Vector     []float32          `bson:"vector" json:"-"`
	Page       int                `bson:"page,omitempty" json:"page,omitempty"`
	StartRune  int                `bson:"start_rune" json:"start_rune"`
	EndRune    int                `bson:"end_rune" json:"end_rune"`
}

// RetrievedChunk is one ordered result of a retrieval query, suitable for
// citation and prompt assembly by the caller.
type RetrievedChunk struct {
	Content    string  `json:"content"`
	SourcePath string  `json:"source_path"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

// RetrieveRequest is the input of the retrieval endpoint. Tenant scope comes
// from the authenticated caller, never from the body.
type RetrieveRequest struct {
	Query              string   `json:"query" binding:"required"`
	K                  int      `json:"k"`
	SessionDocumentIDs []string `json:"session_document_ids,omitempty"`
}
