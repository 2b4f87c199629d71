package query

import "container/heap"

// scoredRow pairs a candidate row with its full sort key: search score
// first (if any searches are present), then each user sort_by value in
// order, with row id as the final tiebreak (spec section 4.C: "bounded
// top-K heap keyed by (sort tuple, row_id)").
type scoredRow struct {
	row    Row
	sortBy []float64
	rowID  string
}

// lessRow reports whether a should sort before b given descending (a
// search score or a DESC sort_by key sorts high-to-low).
func lessRow(a, b scoredRow, descendingFlags []bool) bool {
	for i := range a.sortBy {
		if a.sortBy[i] == b.sortBy[i] {
			continue
		}
		if i < len(descendingFlags) && descendingFlags[i] {
			return a.sortBy[i] > b.sortBy[i]
		}
		return a.sortBy[i] < b.sortBy[i]
	}
	return a.rowID < b.rowID
}

// topKHeap is a bounded max-heap (by reverse of the desired order) that
// retains only the best k candidates seen so far, the implementation of
// spec section 4.C's "bounded top-K heap."
type topKHeap struct {
	items      []scoredRow
	descending []bool
	k          int
}

func newTopKHeap(k int, descending []bool) *topKHeap {
	return &topKHeap{k: k, descending: descending}
}

func (h *topKHeap) Len() int { return len(h.items) }

// Less inverts lessRow so the heap's root (index 0) is the WORST of the
// retained candidates — the one to evict when a better one arrives.
func (h *topKHeap) Less(i, j int) bool {
	return lessRow(h.items[j], h.items[i], h.descending)
}
func (h *topKHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *topKHeap) Push(x any)    { h.items = append(h.items, x.(scoredRow)) }
func (h *topKHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// Offer inserts a candidate, evicting the current worst if the heap is
// already at capacity k (k<=0 means unbounded).
func (h *topKHeap) Offer(r scoredRow) {
	if h.k <= 0 {
		heap.Push(h, r)
		return
	}
	if h.Len() < h.k {
		heap.Push(h, r)
		return
	}
	if lessRow(r, h.items[0], h.descending) {
		heap.Pop(h)
		heap.Push(h, r)
	}
}

// Sorted drains the heap into ascending (best-first) order.
func (h *topKHeap) Sorted() []Row {
	out := make([]scoredRow, h.Len())
	copy(out, h.items)
	// simple sort since k is expected to be small (limit-bounded)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && lessRow(out[j], out[j-1], h.descending); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	rows := make([]Row, len(out))
	for i, sr := range out {
		rows[i] = sr.row
	}
	return rows
}
