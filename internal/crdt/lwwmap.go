package crdt

import "sort"

// lwwEntry is one slot of an LWWMap: the value currently winning, and the
// (timestamp, actor) pair that produced it.
type lwwEntry struct {
	Value  string
	Ts     int64
	Actor  string
	Tomb   bool
}

// LWWMap is a last-writer-wins register map: concurrent Set calls on the
// same key converge on whichever carries the larger (timestamp, actor)
// pair, actor breaking ties when timestamps coincide. It is a Doc's
// metadata map: a note's scalar metadata (title, pinned, deleted) and, in
// the reserved folder-index note's Doc, the folder parent-pointer index.
type LWWMap struct {
	entries map[string]lwwEntry
}

// NewLWWMap returns an empty map.
func NewLWWMap() *LWWMap {
	return &LWWMap{entries: make(map[string]lwwEntry)}
}

// Set applies a write. It is idempotent and commutative: replaying the same
// (key, value, ts, actor) write any number of times, in any order relative
// to other writes, leaves the map in the same state.
func (m *LWWMap) Set(key, value string, ts int64, actor string) {
	m.setEntry(key, lwwEntry{Value: value, Ts: ts, Actor: actor})
}

// Delete removes key using the same LWW ordering as Set, so a delete can
// lose to a concurrent later write and a write can lose to a concurrent
// later delete.
func (m *LWWMap) Delete(key string, ts int64, actor string) {
	m.setEntry(key, lwwEntry{Ts: ts, Actor: actor, Tomb: true})
}

func (m *LWWMap) setEntry(key string, next lwwEntry) {
	cur, ok := m.entries[key]
	if !ok || wins(next, cur) {
		m.entries[key] = next
	}
}

func wins(next, cur lwwEntry) bool {
	if next.Ts != cur.Ts {
		return next.Ts > cur.Ts
	}
	return next.Actor > cur.Actor
}

// Get returns the current value for key and whether it is live (present
// and not tombstoned).
func (m *LWWMap) Get(key string) (string, bool) {
	e, ok := m.entries[key]
	if !ok || e.Tomb {
		return "", false
	}
	return e.Value, true
}

// Keys returns the live keys in sorted order.
func (m *LWWMap) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for k, e := range m.entries {
		if !e.Tomb {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// entrySnapshot returns every entry including tombstones, for state encoding.
func (m *LWWMap) entrySnapshot() map[string]lwwEntry {
	out := make(map[string]lwwEntry, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}
