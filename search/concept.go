package search

// BestScore folds a row's per-chunk scores (concept model outputs, or
// raw cosine similarities for a caller that already has both vectors in
// hand) down to the single max used to rank the row, mirroring
// SemanticIndex.TopK's max-per-row reduction for callers that don't need
// a full index — concept preview search scores chunks with a trained
// model rather than a vector query, so there is nothing to feed
// chromem-go (spec section 4.G: "concept: identical to semantic search
// with the concept model's outputs").
func BestScore(scores []float64) float64 {
	best := 0.0
	for _, s := range scores {
		if s > best {
			best = s
		}
	}
	return best
}
