// Package signal implements the built-in signal catalog of spec
// section 4.E: pure, batch-oriented transforms from a source value
// stream to an output value stream, each declaring the dtypes it
// accepts and the schema of what it produces.
package signal

import (
	"context"
	"fmt"
	"sync"

	curatepath "github.com/aqua777/curator/path"
)

// InputType is the coarse input modality a Signal declares, per spec
// section 4.E.
type InputType int

const (
	InputText InputType = iota
	InputTextEmbedding
	InputImage
)

// Signal is a named, pure transform over a batch of source values.
// Implementations must be safe for concurrent Compute calls from the
// pipeline's worker pool; any model load must be lazy and cached per
// process (spec section 4.E: "global state is forbidden except for
// lazy model load cached per process").
type Signal interface {
	Name() string
	InputType() InputType
	ValidDTypes() []curatepath.DType
	OutputSchema() *curatepath.Field
	Compute(ctx context.Context, inputs []any) ([]any, error)
}

// AcceptsDType reports whether s declares dt as a valid source dtype.
func AcceptsDType(s Signal, dt curatepath.DType) bool {
	for _, d := range s.ValidDTypes() {
		if d == dt {
			return true
		}
	}
	return false
}

// Registry is the process-wide signal catalog, mirroring the
// teacher's llm/models provider-registration pattern
// (llm/ollama, llm/openai each self-register under a model name) but
// generalized to the dataset curation engine's signal namespace.
type Registry struct {
	mu      sync.RWMutex
	signals map[string]Signal
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{signals: map[string]Signal{}}
}

// Register adds s under s.Name(), overwriting any previous registration.
func (r *Registry) Register(s Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals[s.Name()] = s
}

// Get looks up a signal by name.
func (r *Registry) Get(name string) (Signal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.signals[name]
	if !ok {
		return nil, fmt.Errorf("signal registry: no signal named %q", name)
	}
	return s, nil
}

// BuiltinRegistry returns a new Registry pre-populated with the
// required built-in catalog of spec section 4.E.
func BuiltinRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewLangDetect())
	r.Register(NewPII())
	r.Register(NewTextStats())
	r.Register(NewSentenceSplitter())
	r.Register(NewParagraphSplitter())
	r.Register(NewNearDup(128, 16))
	return r
}
