package packsnap

// Dominates reports whether a pointwise dominates b: for every instance b
// has observed, a has observed at least as much. Missing entries in either
// map count as sequence -1 (nothing observed).
func Dominates(a, b map[string]int64) bool {
	for k, v := range b {
		got, ok := a[k]
		if !ok {
			got = -1
		}
		if got < v {
			return false
		}
	}
	return true
}

// equalClocks reports whether two vector clocks describe the same state:
// Dominates holds in both directions.
func equalClocks(a, b map[string]int64) bool {
	return Dominates(a, b) && Dominates(b, a)
}

// Candidate pairs a decoded, flag-complete Snapshot with the file name it
// was read from, for dominance comparison and tie-breaking.
type Candidate struct {
	Filename string
	Snapshot Snapshot
}

// PreferComplete deduplicates candidates by file name, keeping one entry
// per name. Callers only ever construct a Candidate from a flag-complete
// decode (ListSnapshots skips incomplete and quarantined entries before this point)
// so in practice this just guards against a caller accidentally
// concatenating candidates from more than one scan pass.
func PreferComplete(candidates []Candidate) []Candidate {
	seen := make(map[string]bool, len(candidates))
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if seen[c.Filename] {
			continue
		}
		seen[c.Filename] = true
		out = append(out, c)
	}
	return out
}

// SelectBest implements the merge engine's per-instance snapshot choice:
// the candidate whose vector clock is not dominated by any other wins; if
// more than one candidate is maximal (clocks incomparable), the one with
// the lexicographically greatest file name wins, per the spec's "break
// ties lexicographically on filename."
func SelectBest(candidates []Candidate) (Candidate, bool) {
	candidates = PreferComplete(candidates)
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		switch {
		case Dominates(c.Snapshot.VectorClock, best.Snapshot.VectorClock) && !equalClocks(c.Snapshot.VectorClock, best.Snapshot.VectorClock):
			best = c
		case Dominates(best.Snapshot.VectorClock, c.Snapshot.VectorClock):
			// best already covers c; keep best.
		default:
			if c.Filename > best.Filename {
				best = c
			}
		}
	}
	return best, true
}

// DominatedSnapshotNames returns the file names, among existing, whose
// vector clock is strictly dominated by newClock — safe for the owning
// instance to prune once the new snapshot carrying newClock is
// flag-complete.
func DominatedSnapshotNames(newClock map[string]int64, existing []Candidate) []string {
	var names []string
	for _, c := range existing {
		if Dominates(newClock, c.Snapshot.VectorClock) && !equalClocks(newClock, c.Snapshot.VectorClock) {
			names = append(names, c.Filename)
		}
	}
	return names
}

// PrunableSequences returns the members of seqs that are covered by
// coveredThrough (seq <= coveredThrough) and so are safe for the owning
// instance to delete from its own updates/<instanceId> directory once the
// covering pack or snapshot is flag-complete.
func PrunableSequences(seqs []int64, coveredThrough int64) []int64 {
	var out []int64
	for _, s := range seqs {
		if s <= coveredThrough {
			out = append(out, s)
		}
	}
	return out
}

// PrunableRanges returns the members of ranges fully covered by
// coveredThrough, safe for the owning instance to delete from its own
// packs/<instanceId> directory.
func PrunableRanges(ranges []Range, coveredThrough int64) []Range {
	var out []Range
	for _, r := range ranges {
		if r.Last <= coveredThrough {
			out = append(out, r)
		}
	}
	return out
}

// Range mirrors updatestore.Range to avoid an import cycle between the two
// packages (packsnap is the lower-level package consumed by merge, which
// also consumes updatestore; both need the same small value type).
type Range struct {
	First, Last int64
}
