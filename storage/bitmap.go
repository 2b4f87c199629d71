package storage

import (
	"bytes"

	"github.com/RoaringBitmap/roaring"
)

// CompletedBitmap is the durable per-enrichment record of which row
// ordinals have been written (spec section 3.2 / 4.D.1). It wraps a
// compressed roaring bitmap the way agentic-research-mache's
// internal/lattice/context.go uses one bitmap column per attribute —
// here one bitmap per enrichment shard, keyed by row ordinal instead of
// object id.
type CompletedBitmap struct {
	bits *roaring.Bitmap
}

// NewCompletedBitmap returns an empty bitmap.
func NewCompletedBitmap() *CompletedBitmap {
	return &CompletedBitmap{bits: roaring.New()}
}

// Mark records row ordinal i as completed.
func (b *CompletedBitmap) Mark(i uint32) { b.bits.Add(i) }

// MarkRange records every ordinal in [lo, hi) as completed.
func (b *CompletedBitmap) MarkRange(lo, hi uint32) { b.bits.AddRange(uint64(lo), uint64(hi)) }

// Has reports whether row ordinal i is completed.
func (b *CompletedBitmap) Has(i uint32) bool { return b.bits.Contains(i) }

// Count reports the number of completed rows.
func (b *CompletedBitmap) Count() uint64 { return b.bits.GetCardinality() }

// Missing returns the ordinals in [0, total) that are not yet
// completed, in ascending order — the resume set of spec section 4.D.3.
func (b *CompletedBitmap) Missing(total uint32) []uint32 {
	all := roaring.New()
	all.AddRange(0, uint64(total))
	all.AndNot(b.bits)
	return all.ToArray()
}

// IsComplete reports whether every ordinal in [0, total) is marked.
func (b *CompletedBitmap) IsComplete(total uint32) bool {
	return b.bits.GetCardinality() >= uint64(total) && len(b.Missing(total)) == 0
}

// Serialize encodes the bitmap for durable storage in the manifest row.
func (b *CompletedBitmap) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := b.bits.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializeBitmap reconstructs a CompletedBitmap from Serialize's
// output. An empty byte slice yields an empty bitmap.
func DeserializeBitmap(data []byte) (*CompletedBitmap, error) {
	bits := roaring.New()
	if len(data) > 0 {
		if _, err := bits.ReadFrom(bytes.NewReader(data)); err != nil {
			return nil, err
		}
	}
	return &CompletedBitmap{bits: bits}, nil
}
