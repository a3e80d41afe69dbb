package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/abd2220/retail-copilot/internal/processing"
)

const (
	bm25K1      = 1.5
	bm25B       = 0.75
	bm25Epsilon = 0.25
)

// BM25Index is an in-memory Okapi BM25 index over document chunks. It is
// immutable after construction and safe for concurrent use.
type BM25Index struct {
	chunks  []processing.Chunk
	freqs   []map[string]int
	lengths []int
	avgLen  float64
	idf     map[string]float64
}

func NewBM25Index(chunks []processing.Chunk) *BM25Index {
	idx := &BM25Index{
		chunks:  chunks,
		freqs:   make([]map[string]int, len(chunks)),
		lengths: make([]int, len(chunks)),
		idf:     map[string]float64{},
	}
	if len(chunks) == 0 {
		return idx
	}

	docFreq := map[string]int{}
	total := 0
	for i, c := range chunks {
		tokens := Tokenize(c.Text)
		counts := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			counts[tok]++
		}
		for tok := range counts {
			docFreq[tok]++
		}
		idx.freqs[i] = counts
		idx.lengths[i] = len(tokens)
		total += len(tokens)
	}
	idx.avgLen = float64(total) / float64(len(chunks))

	// Terms present in more than half the corpus get a negative idf; they are
	// floored to a fraction of the average idf.
	n := float64(len(chunks))
	var idfSum float64
	var negative []string
	for tok, df := range docFreq {
		v := math.Log(n-float64(df)+0.5) - math.Log(float64(df)+0.5)
		idx.idf[tok] = v
		idfSum += v
		if v < 0 {
			negative = append(negative, tok)
		}
	}
	floor := bm25Epsilon * idfSum / float64(len(docFreq))
	for _, tok := range negative {
		idx.idf[tok] = floor
	}
	return idx
}

func (idx *BM25Index) Len() int { return len(idx.chunks) }

// Retrieve scores every chunk and returns the topK with a positive score.
func (idx *BM25Index) Retrieve(_ context.Context, query string, topK int) ([]Chunk, error) {
	if len(idx.chunks) == 0 || topK <= 0 {
		return nil, nil
	}
	terms := Tokenize(query)

	var hits []Chunk
	for i, c := range idx.chunks {
		score := idx.score(i, terms)
		if score <= 0 {
			continue
		}
		hits = append(hits, Chunk{ID: c.ID, Text: c.Text, Source: c.Source, Score: score})
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (idx *BM25Index) score(doc int, terms []string) float64 {
	var s float64
	dl := float64(idx.lengths[doc])
	for _, t := range terms {
		f := float64(idx.freqs[doc][t])
		if f == 0 {
			continue
		}
		s += idx.idf[t] * (f * (bm25K1 + 1)) / (f + bm25K1*(1-bm25B+bm25B*dl/idx.avgLen))
	}
	return s
}

// Tokenize lower-cases text, splits on whitespace and trims punctuation from
// token edges.
func Tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
