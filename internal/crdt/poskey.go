// Package crdt implements the replicated data structures that note bodies
// and metadata are built from: a sequence CRDT for text and a last-writer-
// wins map for scalar fields. Both converge to the same state regardless of
// the order updates are delivered or how many times a given update is
// replayed, which is what lets the rest of the module treat sync delivery
// as unordered and at-least-once.
package crdt

import (
	"fmt"
	"sort"
	"strings"
)

// maxDigit bounds the identifier space a PosElem is drawn from. It is never
// itself assigned to a real element; it only serves as the open upper
// boundary when allocating a position at the end of the sequence.
const maxDigit = uint64(1) << 62

// PosElem is one level of a PosKey: an allocation digit plus the actor that
// chose it. The actor field breaks ties between concurrent inserts that
// land on the same digit.
type PosElem struct {
	Digit uint64 `json:"d"`
	Actor string `json:"a"`
}

// PosKey identifies the position of a single character in a document. Keys
// are totally ordered by ComparePosKey, and a key is assigned once, at
// insertion time, by the actor performing the insert — it never changes
// afterward, which is what makes inserts and deletes commute regardless of
// delivery order.
type PosKey []PosElem

// ComparePosKey returns -1, 0 or 1 as a compares before, equal to, or after
// b. A key that is a strict prefix of another sorts before it.
func ComparePosKey(a, b PosKey) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i].Digit != b[i].Digit {
			if a[i].Digit < b[i].Digit {
				return -1
			}
			return 1
		}
		if a[i].Actor != b[i].Actor {
			if a[i].Actor < b[i].Actor {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// BetweenPosKey allocates a new key strictly between lo and hi, tagged with
// actor. lo may be nil to mean "start of document"; hi may be nil to mean
// "end of document". Callers never need to coordinate allocation across
// replicas: any two replicas inserting concurrently at the same (lo, hi)
// gap produce keys that differ at the tie-breaking actor field and so never
// collide.
func BetweenPosKey(lo, hi PosKey, actor string) PosKey {
	var result PosKey
	i := 0
	for {
		loDigit := uint64(0)
		haveLo := i < len(lo)
		if haveLo {
			loDigit = lo[i].Digit
		}

		hiDigit := maxDigit
		haveHi := i < len(hi)
		if haveHi {
			hiDigit = hi[i].Digit
		}

		if hiDigit-loDigit > 1 {
			mid := loDigit + (hiDigit-loDigit)/2
			if mid <= loDigit {
				mid = loDigit + 1
			}
			result = append(result, PosElem{Digit: mid, Actor: actor})
			return result
		}

		// No room at this level: descend, carrying lo's own element
		// forward so the new key stays a refinement of lo's path.
		if haveLo {
			result = append(result, lo[i])
		} else {
			result = append(result, PosElem{Digit: loDigit, Actor: actor})
		}
		i++
	}
}

// encodeKey renders a PosKey as a string suitable for use as a map key. The
// encoding has no ordering guarantee of its own — traversal order always
// comes from ComparePosKey, never from string comparison of this value.
func encodeKey(k PosKey) string {
	var b strings.Builder
	for _, e := range k {
		fmt.Fprintf(&b, "%d\x1f%s\x1e", e.Digit, e.Actor)
	}
	return b.String()
}

// sortedInsert inserts key into order, which must already be sorted by
// ComparePosKey, keeping it sorted. It is a no-op if key is already present.
func sortedInsert(order []PosKey, key PosKey) []PosKey {
	idx := sort.Search(len(order), func(i int) bool {
		return ComparePosKey(order[i], key) >= 0
	})
	if idx < len(order) && ComparePosKey(order[idx], key) == 0 {
		return order
	}
	order = append(order, nil)
	copy(order[idx+1:], order[idx:])
	order[idx] = key
	return order
}

// nextKeyAfter returns the smallest key in order that sorts strictly after
// prev, or nil if none exists.
func nextKeyAfter(order []PosKey, prev PosKey) PosKey {
	idx := sort.Search(len(order), func(i int) bool {
		return ComparePosKey(order[i], prev) > 0
	})
	if idx >= len(order) {
		return nil
	}
	return order[idx]
}
