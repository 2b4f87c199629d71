package search

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"
)

// Scored pairs a row id with the best-matching chunk's similarity, the
// "sort the outer query by max-score-per-row" reduction of spec section
// 4.G.
type Scored struct {
	RowID string
	Score float64
}

// SemanticIndex is an in-process cosine index over one query's chunk
// embeddings, grounded on vectordb/v0/go-chromem/chromem.go's
// chromem-go adapter and vectordb/v1/lancedb/lancedb.go's
// NearestTo(...).Limit(...) top-K call shape. Unlike the teacher's
// adapter — which hands chromem a raw-text EmbeddingFunc — chunk
// vectors here are already materialized embedding-column values, so
// the collection is seeded with no embedding function and queried
// directly by vector.
type SemanticIndex struct {
	col *chromem.Collection
}

// NewSemanticIndex creates a fresh, empty in-memory index. Each
// select_rows call with a semantic search builds its own index scoped
// to that query's candidate rows; there is no persistent collection to
// reuse across calls, since the candidate set itself changes with every
// filter/label combination.
func NewSemanticIndex() (*SemanticIndex, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection("chunks", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("search: create chromem collection: %w", err)
	}
	return &SemanticIndex{col: col}, nil
}

// AddChunks indexes every chunk vector belonging to rowID. Chunk
// identity is encoded as "rowID#chunkIndex" so TopK can fold multiple
// chunks back down to one score per source row.
func (s *SemanticIndex) AddChunks(ctx context.Context, rowID string, vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(vectors))
	for i, v := range vectors {
		docs[i] = chromem.Document{
			ID:        rowID + "#" + strconv.Itoa(i),
			Embedding: v,
		}
	}
	return s.col.AddDocuments(ctx, docs, 1)
}

// TopK queries the index by a raw vector (the search query's own
// embedding, computed by the same named embedding the indexed column
// was computed with) and returns up to k rows ordered by descending
// max-chunk cosine similarity.
func (s *SemanticIndex) TopK(ctx context.Context, query []float32, k int) ([]Scored, error) {
	count := s.col.Count()
	if count == 0 {
		return nil, nil
	}
	if k <= 0 || k > count {
		k = count
	}

	// Rank every chunk: one row can own several of the best chunks, so
	// the k best rows are not always found among the k best chunks.
	results, err := s.col.QueryEmbedding(ctx, query, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("search: query chromem collection: %w", err)
	}

	best := map[string]float64{}
	order := make([]string, 0, len(results))
	for _, r := range results {
		rowID := r.ID
		if i := strings.LastIndexByte(rowID, '#'); i >= 0 {
			rowID = rowID[:i]
		}
		score := float64(r.Similarity)
		if existing, ok := best[rowID]; !ok || score > existing {
			if !ok {
				order = append(order, rowID)
			}
			best[rowID] = score
		}
	}
	if len(order) > k {
		order = order[:k]
	}

	out := make([]Scored, len(order))
	for i, id := range order {
		out[i] = Scored{RowID: id, Score: best[id]}
	}
	return out, nil
}

// Cosine is the plain vector-space similarity of two vectors, for
// callers that already hold both and need no index. Concept preview
// search does not use it: it ranks rows with BestScore over concept
// model scores.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
