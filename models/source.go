package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SourceType identifies the fetch strategy used for a source.
const (
	SourceTypeLocalDir      = "local_dir"
	SourceTypeURL           = "url"
	SourceTypeURLList       = "url_list"
	SourceTypeDatabase      = "database"
	SourceTypeAPI           = "api"
	SourceTypeTranscription = "transcription"
)

// Source is a tenant-owned pointer to external content plus the parameters
// and credentials needed to fetch it. Identity is unique per
// (tenant_id, location) while the source is active.
type Source struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID    string             `bson:"tenant_id" json:"tenant_id"`
	Type        string             `bson:"type" json:"type"`
	Location    string             `bson:"location" json:"location"` // path, URL, DSN or endpoint
	Params      SourceParams       `bson:"params" json:"params"`
	Credentials string             `bson:"credentials,omitempty" json:"-"` // opaque, encrypted upstream
	Active      bool               `bson:"active" json:"active"`
	Version     int                `bson:"version" json:"version"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// SourceParams carries per-type fetch configuration. Only the fields for the
// source's type are consulted; the rest stay zero.
type SourceParams struct {
	// local_dir
	Include    []string `bson:"include,omitempty" json:"include,omitempty"` // glob patterns, e.g. *.md,*.pdf
	OCREnabled bool     `bson:"ocr_enabled,omitempty" json:"ocr_enabled,omitempty"`

	// url / url_list
	URLs           []string `bson:"urls,omitempty" json:"urls,omitempty"`
	MaxPages       int      `bson:"max_pages,omitempty" json:"max_pages,omitempty"`
	FollowLinks    bool     `bson:"follow_links,omitempty" json:"follow_links,omitempty"`
	AllowedDomains []string `bson:"allowed_domains,omitempty" json:"allowed_domains,omitempty"`
	RenderJS       bool     `bson:"render_js,omitempty" json:"render_js,omitempty"`

	// database
	Queries []SourceQuery `bson:"queries,omitempty" json:"queries,omitempty"`

	// api
	Endpoint    string   `bson:"endpoint,omitempty" json:"endpoint,omitempty"`
	Pagination  string   `bson:"pagination,omitempty" json:"pagination,omitempty"` // "cursor" or "offset"
	CursorField string   `bson:"cursor_field,omitempty" json:"cursor_field,omitempty"`
	ItemsField  string   `bson:"items_field,omitempty" json:"items_field,omitempty"`
	IDField     string   `bson:"id_field,omitempty" json:"id_field,omitempty"`
	TextFields  []string `bson:"text_fields,omitempty" json:"text_fields,omitempty"`
	PageSize    int      `bson:"page_size,omitempty" json:"page_size,omitempty"`
	MaxItems    int      `bson:"max_items,omitempty" json:"max_items,omitempty"`

	// transcription
	Provider   string   `bson:"provider,omitempty" json:"provider,omitempty"` // mock, local, cloud
	MediaPaths []string `bson:"media_paths,omitempty" json:"media_paths,omitempty"`
}

// SourceQuery maps one SQL query to content units for the database connector.
type SourceQuery struct {
	Name       string `bson:"name" json:"name"`
	SQL        string `bson:"sql" json:"sql"`
	IDColumn   string `bson:"id_column" json:"id_column"`
	TextColumn string `bson:"text_column" json:"text_column"`
}

// ConnectorDefinition is a reusable named template of type, params and
// credentials that a Source or an ad-hoc job may reference.
type ConnectorDefinition struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID    string             `bson:"tenant_id" json:"tenant_id"`
	Name        string             `bson:"name" json:"name"`
	Type        string             `bson:"type" json:"type"`
	Params      SourceParams       `bson:"params" json:"params"`
	Credentials string             `bson:"credentials,omitempty" json:"-"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}

// ValidSourceType reports whether t names a known connector variant.
func ValidSourceType(t string) bool {
	switch t {
	case SourceTypeLocalDir, SourceTypeURL, SourceTypeURLList,
		SourceTypeDatabase, SourceTypeAPI, SourceTypeTranscription:
		return true
	}
	return false
}
