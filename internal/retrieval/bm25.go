package retrieval

import (
	"math"
	"strings"
	"unicode"
)

// BM25 parameters, standard Okapi values.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Tokenize lowercases and splits on non-alphanumeric runes. Query and
// candidate text go through the same tokenizer so term matching is exact.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// bm25Corpus scores query terms against a small candidate set. Document
// frequencies are computed over the candidates only, not the whole tenant
// corpus, so scores are comparable within one query.
type bm25Corpus struct {
	docTerms  []map[string]int
	docLens   []int
	avgDocLen float64
	docFreq   map[string]int
}

func newBM25Corpus(texts []string) *bm25Corpus {
	c := &bm25Corpus{
		docTerms: make([]map[string]int, len(texts)),
		docLens:  make([]int, len(texts)),
		docFreq:  make(map[string]int),
	}

	total := 0
	for i, text := range texts {
		tokens := Tokenize(text)
		terms := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			terms[tok]++
		}
		c.docTerms[i] = terms
		c.docLens[i] = len(tokens)
		total += len(tokens)
		for term := range terms {
			c.docFreq[term]++
		}
	}
	if len(texts) > 0 {
		c.avgDocLen = float64(total) / float64(len(texts))
	}
	return c
}

// score computes the BM25 score of candidate i for the query terms.
func (c *bm25Corpus) score(i int, queryTerms []string) float64 {
	if c.avgDocLen == 0 {
		return 0
	}
	n := float64(len(c.docTerms))
	docLen := float64(c.docLens[i])

	var total float64
	for _, term := range queryTerms {
		tf := float64(c.docTerms[i][term])
		if tf == 0 {
			continue
		}
		df := float64(c.docFreq[term])
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		total += idf * (tf * (bm25K1 + 1)) / (tf + bm25K1*(1-bm25B+bm25B*docLen/c.avgDocLen))
	}
	return total
}
