package retrieval

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Hello, World! API-keys v2.0")
	require.Equal(t, []string{"hello", "world", "api", "keys", "v2", "0"}, tokens)
}

func TestBM25PrefersTermMatches(t *testing.T) {
	corpus := newBM25Corpus([]string{
		"the quick brown fox jumps over the lazy dog",
		"postgres connection pooling and retry configuration",
		"fox hunting season regulations",
	})

	query := Tokenize("quick fox")

	s0 := corpus.score(0, query)
	s1 := corpus.score(1, query)
	s2 := corpus.score(2, query)

	require.Greater(t, s0, s2, "doc with both terms should beat doc with one")
	require.Greater(t, s2, s1, "doc with one term should beat doc with none")
	require.Zero(t, s1)
}

func TestBM25LengthNormalization(t *testing.T) {
	long := "fox " + "filler words padding the document to a much greater length than the short one with many extra tokens repeated again and again"
	corpus := newBM25Corpus([]string{"fox den", long})

	query := Tokenize("fox")
	require.Greater(t, corpus.score(0, query), corpus.score(1, query),
		"same term frequency in a shorter doc should score higher")
}

func TestBM25EmptyQuery(t *testing.T) {
	corpus := newBM25Corpus([]string{"some text here"})
	require.Zero(t, corpus.score(0, nil))
}
