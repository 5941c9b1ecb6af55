// Package xgcache implements the two bounded, byte-budgeted LRUs the
// compiler shares: the crossing-grammar mask cache (C9) and the
// compiled-grammar cache (C10). Both wrap hashicorp/golang-lru/v2, whose
// eviction is entry-count based, in a byte-budget accountant that evicts by
// RemoveOldest until the tracked byte total is back under capacity.
package xgcache

// Layout is the storage layout an AdaptiveTokenMask was compiled into,
// chosen by the mask compiler (C8) from the accepted/rejected/uncertain
// counts relative to USE_BITSET_THRESHOLD (spec.md §3).
type Layout uint8

const (
	LayoutAccepted Layout = iota
	LayoutRejected
	LayoutAcceptedBitset
)

// Mask is the C8 output value: exactly one of Accepted/Rejected/Bitset is
// populated, selected by Layout. Uncertain always carries the sorted
// uncertain-index set.
type Mask struct {
	Layout Layout

	Accepted  []int32  // sorted, layout Accepted
	Rejected  []int32  // sorted, layout Rejected
	Bitset    []uint64 // dense, vocab-sized, layout AcceptedBitset
	Uncertain []int32  // sorted, all layouts
}

// SizeBytes estimates the mask's memory footprint for the byte-budget
// accountant.
func (m Mask) SizeBytes() int64 {
	const slotBytes = 4
	n := int64(len(m.Accepted)+len(m.Rejected)+len(m.Uncertain)) * slotBytes
	n += int64(len(m.Bitset)) * 8
	return n + 16 // struct/layout overhead
}
