package connector

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"knowledge-platform/internal/config"
	"knowledge-platform/models"
)

// Item is one raw content unit produced by a connector: a file, a page, a
// row, an API record or a transcript. Path becomes the document path and
// must be stable across reruns of the same source.
type Item struct {
	ID        string
	Path      string
	Text      string
	PageCount int
	Meta      map[string]string
}

// ItemError records a single failed unit. Per-item failures never abort the
// stream; the executor logs and counts them.
type ItemError struct {
	ItemID string
	Err    error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %s: %v", e.ItemID, e.Err)
}

// FetchSpec carries everything a connector needs for one fetch. Tenant id
// and credentials travel explicitly per call.
type FetchSpec struct {
	TenantID    string
	Source      models.Source
	Credentials string
}

// Connector turns an external source into a lazy, finite sequence of items.
// Fetch returns a channel of items and a channel of per-item errors; both
// are closed when the sequence is exhausted or ctx is done. Implementations
// must never buffer the whole source in memory.
type Connector interface {
	Type() string
	Validate(ctx context.Context, spec FetchSpec) error
	Fetch(ctx context.Context, spec FetchSpec) (<-chan Item, <-chan ItemError)
}

// Registry maps a source type tag to its fetch strategy. The set of
// variants is closed: adding a source type means registering a new
// Connector here, not touching callers.
type Registry struct {
	connectors map[string]Connector
}

// NewRegistry builds the registry with all built-in connector variants.
func NewRegistry(cfg *config.Config, rdb *redis.Client) *Registry {
	r := &Registry{connectors: make(map[string]Connector)}

	ocr := NewOCRClient(cfg)
	transcriber := NewTranscriptionProvider(cfg)

	r.register(NewLocalDirConnector(cfg, ocr))
	web := NewWebConnector(cfg)
	r.register(web)
	r.register(&urlListConnector{web: web})
	r.register(NewDatabaseConnector())
	r.register(NewAPIConnector())
	r.register(NewTranscriptionConnector(transcriber, rdb))

	return r
}

func (r *Registry) register(c Connector) {
	r.connectors[c.Type()] = c
}

// Lookup returns the connector for a source type.
func (r *Registry) Lookup(sourceType string) (Connector, error) {
	c, ok := r.connectors[sourceType]
	if !ok {
		return nil, fmt.Errorf("unknown source type: %q", sourceType)
	}
	return c, nil
}

// Types lists the registered source type tags.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.connectors))
	for t := range r.connectors {
		types = append(types, t)
	}
	return types
}

// emit sends an item unless ctx is done. Returns false when the consumer
// has gone away.
func emit(ctx context.Context, items chan<- Item, item Item) bool {
	select {
	case items <- item:
		return true
	case <-ctx.Done():
		return false
	}
}

// emitErr sends a per-item error unless ctx is done.
func emitErr(ctx context.Context, errs chan<- ItemError, itemID string, err error) bool {
	select {
	case errs <- ItemError{ItemID: itemID, Err: err}:
		return true
	case <-ctx.Done():
		return false
	}
}
