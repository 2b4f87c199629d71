package signal

import (
	"context"
	"fmt"
	"hash/maphash"
	"math"

	openai "github.com/sashabaranov/go-openai"

	curatepath "github.com/aqua777/curator/path"
)

// Embedding adapts an embedding-capable client into a Signal, grounded
// on llm/openai/client.go's Embeddings method — generalized from a
// single-string call into the batch shape Compute requires.
type Embedding struct {
	name   string
	client *openai.Client
	model  openai.EmbeddingModel
	dim    int
}

// NewOpenAIEmbedding builds an embedding signal backed by the OpenAI
// embeddings endpoint. name becomes the signal's registry name (e.g.
// "embedding.text_embedding_3_small") so a dataset may carry several
// embedding columns side by side.
func NewOpenAIEmbedding(name string, client *openai.Client, model string, dim int) *Embedding {
	return &Embedding{
		name:   name,
		client: client,
		model:  openai.EmbeddingModel(model),
		dim:    dim,
	}
}

func (s *Embedding) Name() string         { return s.name }
func (s *Embedding) InputType() InputType { return InputText }
func (s *Embedding) ValidDTypes() []curatepath.DType {
	return []curatepath.DType{curatepath.DTypeString}
}

func (s *Embedding) OutputSchema() *curatepath.Field {
	return &curatepath.Field{DType: curatepath.DTypeEmbedding, Dim: s.dim}
}

func (s *Embedding) Compute(ctx context.Context, inputs []any) ([]any, error) {
	texts := make([]string, len(inputs))
	for i, in := range inputs {
		texts[i], _ = in.(string)
	}
	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: s.model,
	})
	if err != nil {
		return nil, fmt.Errorf("signal %s: %w", s.name, err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("signal %s: expected %d embeddings, got %d", s.name, len(inputs), len(resp.Data))
	}
	out := make([]any, len(inputs))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// HashEmbedding is a deterministic, model-free embedding signal for
// tests and offline development: each output dimension is the
// feature-hashed, sign-weighted sum of the text's word shingles. It
// needs no network access and no cached model, so it does not fall
// under the lazy-model-load exception the other signals rely on.
type HashEmbedding struct {
	dim  int
	seed maphash.Seed
}

func NewHashEmbedding(dim int) *HashEmbedding {
	return &HashEmbedding{dim: dim, seed: maphash.MakeSeed()}
}

func (s *HashEmbedding) Name() string         { return "embedding.hash" }
func (s *HashEmbedding) InputType() InputType { return InputText }
func (s *HashEmbedding) ValidDTypes() []curatepath.DType {
	return []curatepath.DType{curatepath.DTypeString}
}

func (s *HashEmbedding) OutputSchema() *curatepath.Field {
	return &curatepath.Field{DType: curatepath.DTypeEmbedding, Dim: s.dim}
}

func (s *HashEmbedding) Compute(ctx context.Context, inputs []any) ([]any, error) {
	out := make([]any, len(inputs))
	for i, in := range inputs {
		text, _ := in.(string)
		out[i] = s.embed(text)
	}
	return out, nil
}

func (s *HashEmbedding) embed(text string) []float32 {
	vec := make([]float32, s.dim)
	for _, sh := range wordShingles(text, 2) {
		var h maphash.Hash
		h.SetSeed(s.seed)
		h.WriteString(sh)
		sum := h.Sum64()
		bucket := int(sum % uint64(s.dim))
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		vec[bucket] += sign
	}
	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sumSquares))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
