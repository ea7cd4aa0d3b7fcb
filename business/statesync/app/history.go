package app

import "sort"

// history is an ordered map from block number to state, ascending by key.
type history[S any] struct {
	keys   []uint64
	values map[uint64]S
}

func newHistory[S any]() *history[S] {
	return &history[S]{values: make(map[uint64]S)}
}

func (h *history[S]) len() int {
	return len(h.keys)
}

// set inserts or overwrites the entry for bn.
func (h *history[S]) set(bn uint64, s S) {
	if _, ok := h.values[bn]; !ok {
		i := sort.Search(len(h.keys), func(i int) bool { return h.keys[i] >= bn })
		h.keys = append(h.keys, 0)
		copy(h.keys[i+1:], h.keys[i:])
		h.keys[i] = bn
	}
	h.values[bn] = s
}

func (h *history[S]) get(bn uint64) (S, bool) {
	s, ok := h.values[bn]
	return s, ok
}

// latestBefore returns the greatest entry with key strictly less than bn.
func (h *history[S]) latestBefore(bn uint64) (uint64, S, bool) {
	i := sort.Search(len(h.keys), func(i int) bool { return h.keys[i] >= bn })
	if i == 0 {
		var zero S
		return 0, zero, false
	}
	k := h.keys[i-1]
	return k, h.values[k], true
}

// last returns the greatest key.
func (h *history[S]) last() (uint64, bool) {
	if len(h.keys) == 0 {
		return 0, false
	}
	return h.keys[len(h.keys)-1], true
}

// deleteAbove removes keys greater than bn, except those keep reports true for.
func (h *history[S]) deleteAbove(bn uint64, keep func(uint64) bool) int {
	kept := h.keys[:0]
	removed := 0
	for _, k := range h.keys {
		if k > bn && (keep == nil || !keep(k)) {
			delete(h.values, k)
			removed++
			continue
		}
		kept = append(kept, k)
	}
	h.keys = kept
	return removed
}

// deleteBelow removes keys less than bn.
func (h *history[S]) deleteBelow(bn uint64) int {
	i := sort.Search(len(h.keys), func(i int) bool { return h.keys[i] >= bn })
	for _, k := range h.keys[:i] {
		delete(h.values, k)
	}
	h.keys = append(h.keys[:0], h.keys[i:]...)
	return i
}

// pruneTo drops every key at or below boundary except the greatest of them,
// which stays as the rollback anchor.
func (h *history[S]) pruneTo(boundary uint64) int {
	i := sort.Search(len(h.keys), func(i int) bool { return h.keys[i] > boundary })
	if i <= 1 {
		return 0
	}
	drop := i - 1
	for _, k := range h.keys[:drop] {
		delete(h.values, k)
	}
	h.keys = append(h.keys[:0], h.keys[drop:]...)
	return drop
}

// blockNumbers returns a copy of the keys.
func (h *history[S]) blockNumbers() []uint64 {
	out := make([]uint64, len(h.keys))
	copy(out, h.keys)
	return out
}
