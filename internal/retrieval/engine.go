package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"knowledge-platform/internal/ai"
	"knowledge-platform/internal/config"
	"knowledge-platform/internal/logger"
	"knowledge-platform/internal/store"
	"knowledge-platform/internal/telemetry"
	"knowledge-platform/models"
)

const defaultK = 5

// Searcher is the candidate source the engine reranks. The mongo store
// implements it; tests substitute a fixture.
type Searcher interface {
	VectorPrefetch(ctx context.Context, tenantID string, queryVec []float32, prefetchK int, docIDs []primitive.ObjectID) ([]store.Candidate, error)
}

// Engine answers retrieval queries in two stages: a wide vector prefetch,
// then a BM25 rerank over that candidate set only. Lexical scoring never
// sees chunks the vector stage did not surface.
type Engine struct {
	searcher Searcher
	embedder ai.Embedder
	cfg      *config.Config
}

func NewEngine(searcher Searcher, embedder ai.Embedder, cfg *config.Config) *Engine {
	return &Engine{searcher: searcher, embedder: embedder, cfg: cfg}
}

// Retrieve returns the top-k reranked chunks for a tenant's query. An empty
// corpus or a query with no candidates yields an empty, non-error result.
func (e *Engine) Retrieve(ctx context.Context, tenantID string, req models.RetrieveRequest) ([]models.RetrievedChunk, error) {
	start := time.Now()

	k := req.K
	if k <= 0 {
		k = defaultK
	}

	docIDs, err := parseDocumentIDs(req.SessionDocumentIDs)
	if err != nil {
		return nil, err
	}

	queryVec, err := e.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	prefetchK := e.cfg.PrefetchMultiplier * k
	if prefetchK < e.cfg.PrefetchFloor {
		prefetchK = e.cfg.PrefetchFloor
	}

	candidates, err := e.searcher.VectorPrefetch(ctx, tenantID, queryVec, prefetchK, docIDs)
	if err != nil {
		return nil, fmt.Errorf("vector prefetch: %w", err)
	}
	if len(candidates) == 0 {
		return []models.RetrievedChunk{}, nil
	}

	reranked := Rerank(req.Query, candidates)
	if len(reranked) > k {
		reranked = reranked[:k]
	}

	results := make([]models.RetrievedChunk, len(reranked))
	for i, cand := range reranked {
		results[i] = models.RetrievedChunk{
			Content:    cand.Chunk.Text,
			SourcePath: cand.Chunk.SourcePath,
			ChunkIndex: cand.Chunk.Index,
			Score:      cand.Score,
		}
	}

	telemetry.RecordRetrieval(ctx, tenantID, len(results), time.Since(start))
	logger.Debug("retrieval complete",
		"tenant_id", tenantID,
		"candidates", len(candidates),
		"returned", len(results),
		"duration_ms", time.Since(start).Milliseconds())

	return results, nil
}

// Ranked is one candidate after lexical rerank.
type Ranked struct {
	Chunk models.Chunk
	Score float64
}

// Rerank orders candidates by BM25 score of the query against each
// candidate's text. Ties, including the all-zero case where no query term
// appears in any candidate, keep vector rank order.
func Rerank(query string, candidates []store.Candidate) []Ranked {
	texts := make([]string, len(candidates))
	for i, cand := range candidates {
		texts[i] = cand.Chunk.Text
	}
	corpus := newBM25Corpus(texts)
	queryTerms := Tokenize(query)

	ranked := make([]Ranked, len(candidates))
	order := make([]int, len(candidates))
	scores := make([]float64, len(candidates))
	for i, cand := range candidates {
		scores[i] = corpus.score(i, queryTerms)
		order[i] = i
		ranked[i] = Ranked{Chunk: cand.Chunk, Score: scores[i]}
	}

	// candidates arrive in vector rank order, so a stable sort breaks
	// BM25 ties by vector rank
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	out := make([]Ranked, len(order))
	for i, idx := range order {
		out[i] = ranked[idx]
	}
	return out
}

func parseDocumentIDs(ids []string) ([]primitive.ObjectID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, fmt.Errorf("invalid document id %q", id)
		}
		out = append(out, oid)
	}
	return out, nil
}
