package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"knowledge-platform/internal/config"
	"knowledge-platform/internal/store"
	"knowledge-platform/models"
)

type fakeEmbedder struct {
	vec []float32
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.vec, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return len(f.vec) }

type fakeSearcher struct {
	candidates []store.Candidate
	gotK       int
	gotDocIDs  []primitive.ObjectID
}

func (f *fakeSearcher) VectorPrefetch(_ context.Context, _ string, _ []float32, prefetchK int, docIDs []primitive.ObjectID) ([]store.Candidate, error) {
	f.gotK = prefetchK
	f.gotDocIDs = docIDs
	if len(f.candidates) > prefetchK {
		return f.candidates[:prefetchK], nil
	}
	return f.candidates, nil
}

func testConfig() *config.Config {
	return &config.Config{PrefetchMultiplier: 4, PrefetchFloor: 20}
}

func candidate(rank int, text string) store.Candidate {
	return store.Candidate{
		Chunk: models.Chunk{
			SourcePath: "doc.md",
			Index:      rank,
			Text:       text,
		},
		VectorRank: rank,
		Cosine:     1.0 - float64(rank)*0.01,
	}
}

func TestRetrievePrefetchWidth(t *testing.T) {
	searcher := &fakeSearcher{}
	engine := NewEngine(searcher, &fakeEmbedder{vec: []float32{1, 0}}, testConfig())

	_, err := engine.Retrieve(context.Background(), "t1", models.RetrieveRequest{Query: "q", K: 3})
	require.NoError(t, err)
	// multiplier*k = 12 is under the floor of 20
	require.Equal(t, 20, searcher.gotK)

	_, err = engine.Retrieve(context.Background(), "t1", models.RetrieveRequest{Query: "q", K: 10})
	require.NoError(t, err)
	require.Equal(t, 40, searcher.gotK)
}

func TestRetrieveEmptyCorpus(t *testing.T) {
	engine := NewEngine(&fakeSearcher{}, &fakeEmbedder{vec: []float32{1, 0}}, testConfig())

	results, err := engine.Retrieve(context.Background(), "t1", models.RetrieveRequest{Query: "anything", K: 5})
	require.NoError(t, err)
	require.NotNil(t, results)
	require.Empty(t, results)
}

func TestRetrieveRerankByLexicalMatch(t *testing.T) {
	searcher := &fakeSearcher{candidates: []store.Candidate{
		candidate(0, "general overview of the platform architecture"),
		candidate(1, "database connection pooling with pgbouncer"),
		candidate(2, "connection retry semantics for the pooling layer"),
	}}
	engine := NewEngine(searcher, &fakeEmbedder{vec: []float32{1, 0}}, testConfig())

	results, err := engine.Retrieve(context.Background(), "t1", models.RetrieveRequest{
		Query: "connection pooling",
		K:     3,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// both term-bearing chunks outrank the vector-first chunk
	require.Contains(t, results[0].Content, "pooling")
	require.Contains(t, results[1].Content, "pooling")
	require.Equal(t, "general overview of the platform architecture", results[2].Content)
}

func TestRetrieveTiesKeepVectorOrder(t *testing.T) {
	searcher := &fakeSearcher{candidates: []store.Candidate{
		candidate(0, "alpha beta gamma"),
		candidate(1, "delta epsilon zeta"),
		candidate(2, "eta theta iota"),
	}}
	engine := NewEngine(searcher, &fakeEmbedder{vec: []float32{1, 0}}, testConfig())

	// no query term appears anywhere, all BM25 scores are zero
	results, err := engine.Retrieve(context.Background(), "t1", models.RetrieveRequest{
		Query: "unrelated precision query",
		K:     3,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "alpha beta gamma", results[0].Content)
	require.Equal(t, "delta epsilon zeta", results[1].Content)
	require.Equal(t, "eta theta iota", results[2].Content)
}

func TestRetrieveTruncatesToK(t *testing.T) {
	var cands []store.Candidate
	for i := 0; i < 25; i++ {
		cands = append(cands, candidate(i, "filler text block"))
	}
	searcher := &fakeSearcher{candidates: cands}
	engine := NewEngine(searcher, &fakeEmbedder{vec: []float32{1, 0}}, testConfig())

	results, err := engine.Retrieve(context.Background(), "t1", models.RetrieveRequest{Query: "q", K: 4})
	require.NoError(t, err)
	require.Len(t, results, 4)
}

func TestRetrieveSessionScope(t *testing.T) {
	searcher := &fakeSearcher{}
	engine := NewEngine(searcher, &fakeEmbedder{vec: []float32{1, 0}}, testConfig())

	docID := primitive.NewObjectID()
	_, err := engine.Retrieve(context.Background(), "t1", models.RetrieveRequest{
		Query:              "q",
		K:                  5,
		SessionDocumentIDs: []string{docID.Hex()},
	})
	require.NoError(t, err)
	require.Equal(t, []primitive.ObjectID{docID}, searcher.gotDocIDs)

	_, err = engine.Retrieve(context.Background(), "t1", models.RetrieveRequest{
		Query:              "q",
		SessionDocumentIDs: []string{"not-an-objectid"},
	})
	require.Error(t, err)
}
