package signal

import (
	"context"
	"hash/maphash"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring"

	curatepath "github.com/aqua777/curator/path"
)

const shingleSize = 3

// NearDup computes a banded minhash signature over word shingles and
// reports, for every row, which previously seen rows share at least one
// LSH band bucket with it — the standard candidate-pair generation
// step, grounded on the same roaring.Bitmap posting-list idiom used for
// completion tracking in storage/bitmap.go (itself grounded on
// agentic-research-mache's internal/lattice/context.go per-attribute
// bitmap columns), repurposed here as
// per-bucket row posting lists instead of per-enrichment row
// completion.
//
// Candidate detection is inherently cross-row, so unlike the other
// built-in signals NearDup carries mutable, mutex-guarded state across
// Compute calls within one process rather than being a pure per-row
// function; row order is the only input that state depends on, not any
// value external to the batch being processed (DESIGN.md).
type NearDup struct {
	numHashes int
	numBands  int
	bandSize  int

	coeffA []uint64
	coeffB []uint64
	seed   maphash.Seed

	mu      sync.Mutex
	buckets []map[uint64]*roaring.Bitmap
	nextRow uint32
}

func NewNearDup(numHashes, numBands int) *NearDup {
	if numBands <= 0 {
		numBands = 1
	}
	if numHashes < numBands {
		numHashes = numBands
	}
	bandSize := numHashes / numBands
	numHashes = bandSize * numBands

	rng := rand.New(rand.NewSource(42))
	coeffA := make([]uint64, numHashes)
	coeffB := make([]uint64, numHashes)
	for i := range coeffA {
		coeffA[i] = rng.Uint64()>>1 | 1
		coeffB[i] = rng.Uint64() >> 1
	}

	buckets := make([]map[uint64]*roaring.Bitmap, numBands)
	for i := range buckets {
		buckets[i] = map[uint64]*roaring.Bitmap{}
	}

	return &NearDup{
		numHashes: numHashes,
		numBands:  numBands,
		bandSize:  bandSize,
		coeffA:    coeffA,
		coeffB:    coeffB,
		seed:      maphash.MakeSeed(),
		buckets:   buckets,
	}
}

func (s *NearDup) Name() string         { return "near_dup" }
func (s *NearDup) InputType() InputType { return InputText }
func (s *NearDup) ValidDTypes() []curatepath.DType {
	return []curatepath.DType{curatepath.DTypeString}
}

func (s *NearDup) OutputSchema() *curatepath.Field {
	return &curatepath.Field{Fields: map[string]*curatepath.Field{
		"row_index":  {Name: "row_index", DType: curatepath.DTypeInt64},
		"candidates": {Name: "candidates", RepeatedField: &curatepath.Field{DType: curatepath.DTypeInt64}},
	}}
}

func (s *NearDup) Compute(ctx context.Context, inputs []any) ([]any, error) {
	out := make([]any, len(inputs))
	for i, in := range inputs {
		text, _ := in.(string)
		out[i] = s.computeOne(text)
	}
	return out, nil
}

func (s *NearDup) computeOne(text string) map[string]any {
	sig := s.signature(text)
	rowIndex := atomic.AddUint32(&s.nextRow, 1) - 1

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := roaring.New()
	for band := 0; band < s.numBands; band++ {
		key := s.bandKey(band, sig)
		bucket, ok := s.buckets[band][key]
		if !ok {
			bucket = roaring.New()
			s.buckets[band][key] = bucket
		} else {
			seen.Or(bucket)
		}
		bucket.Add(rowIndex)
	}

	candidates := make([]any, 0, seen.GetCardinality())
	it := seen.Iterator()
	for it.HasNext() {
		candidates = append(candidates, int64(it.Next()))
	}

	return map[string]any{
		"row_index":  int64(rowIndex),
		"candidates": candidates,
	}
}

func (s *NearDup) bandKey(band int, sig []uint64) uint64 {
	var h maphash.Hash
	h.SetSeed(s.seed)
	start := band * s.bandSize
	for _, v := range sig[start : start+s.bandSize] {
		var b [8]byte
		for i := range b {
			b[i] = byte(v >> (8 * i))
		}
		h.Write(b[:])
	}
	return h.Sum64()
}

// signature computes the minhash signature of text's word-shingle set.
func (s *NearDup) signature(text string) []uint64 {
	shingles := wordShingles(text, shingleSize)
	sig := make([]uint64, s.numHashes)
	for i := range sig {
		sig[i] = ^uint64(0)
	}
	if len(shingles) == 0 {
		return sig
	}
	for _, sh := range shingles {
		base := s.shingleHash(sh)
		for i := 0; i < s.numHashes; i++ {
			h := s.coeffA[i]*base + s.coeffB[i]
			if h < sig[i] {
				sig[i] = h
			}
		}
	}
	return sig
}

func wordShingles(text string, k int) []string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) < k {
		if len(words) == 0 {
			return nil
		}
		return []string{strings.Join(words, " ")}
	}
	shingles := make([]string, 0, len(words)-k+1)
	for i := 0; i+k <= len(words); i++ {
		shingles = append(shingles, strings.Join(words[i:i+k], " "))
	}
	return shingles
}

func (s *NearDup) shingleHash(sh string) uint64 {
	var h maphash.Hash
	h.SetSeed(s.seed)
	h.WriteString(sh)
	return h.Sum64()
}
