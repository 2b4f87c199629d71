package concept

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// EmbeddingFunc resolves an example's text to the named embedding's
// vector; the concept package never computes embeddings itself, it
// only trains and scores over vectors a caller supplies (spec section
// 4.F: "train(concept, embedding)" is agnostic to which embedding
// implementation produced the vectors).
type EmbeddingFunc func(text string) ([]float32, error)

// Service ties the example store to the trained-model cache, the unit
// the pipeline and query packages depend on via the ConceptScorer
// shape.
type Service struct {
	store *Store
}

// NewService wraps a Store with the train/score surface of spec
// section 4.F.
func NewService(store *Store) *Service { return &Service{store: store} }

// Train fits (or returns the cached) model for (ns, name, embedding),
// re-using the cache artifact when the concept's version and the
// example set's content hash both match what's already cached (spec
// section 4.F: "Cache artifact keyed by hash(examples, embedding);
// invalidation on any edit").
func (svc *Service) Train(ns, name, embedding string, embed EmbeddingFunc) (*Model, Metrics, error) {
	c, err := svc.store.Get(ns, name)
	if err != nil {
		return nil, Metrics{}, err
	}
	examples, err := svc.store.Examples(ns, name)
	if err != nil {
		return nil, Metrics{}, err
	}
	cacheKey := exampleHash(examples, embedding)

	if cached, ok, err := svc.store.cached(ns, name, embedding); err == nil && ok {
		if cached.version == c.Version && cached.cacheKey == cacheKey {
			return cached.model, cached.metrics, nil
		}
	}

	vectors := make([][]float32, len(examples))
	labels := make([]bool, len(examples))
	for i, ex := range examples {
		vec, err := embed(ex.Text)
		if err != nil {
			return nil, Metrics{}, err
		}
		vectors[i] = vec
		labels[i] = ex.Label
	}

	model, metrics, err := Train(vectors, labels)
	if err != nil {
		return nil, Metrics{}, err
	}
	if err := svc.store.putCache(ns, name, embedding, cacheKey, c.Version, model, metrics); err != nil {
		return nil, Metrics{}, err
	}
	return model, metrics, nil
}

// Score implements query.ConceptScorer / pipeline.ConceptScorer: score
// vectors against the (ns, name, embedding) model, per the current
// concept version. It does not retrain; callers must have called Train
// for this embedding at least once (spec section 4.F: training is
// explicit and synchronous, not implicit in scoring; a model is keyed
// by (concept-version, embedding-name), so scoring must name which
// embedding's model to use — a concept trained against two embeddings
// has one cached model per embedding).
func (svc *Service) Score(namespace, name, embedding string, vectors [][]float32) ([]float64, error) {
	concept, err := svc.store.Get(namespace, name)
	if err != nil {
		return nil, err
	}
	cached, ok, err := svc.store.cached(namespace, name, embedding)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newErr(NotFound, fmt.Sprintf("no trained model for %s/%s/%s", namespace, name, embedding))
	}
	if cached.version != concept.Version {
		return nil, newErr(VersionStale, fmt.Sprintf("%s/%s was edited after its last training", namespace, name))
	}
	return cached.model.Score(vectors), nil
}

// exampleHash fingerprints an example set + embedding name for cache
// keying (spec section 4.F).
func exampleHash(examples []Example, embedding string) string {
	sorted := make([]Example, len(examples))
	copy(sorted, examples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	h := sha256.New()
	h.Write([]byte(embedding))
	for _, ex := range sorted {
		h.Write([]byte(ex.ID))
		h.Write([]byte(ex.Text))
		if ex.Label {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
