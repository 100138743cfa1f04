package crdt

// node is the materialized state of one character position. A node can
// exist in the map purely as a tombstone (Inserted == false, Tomb == true)
// when a Delete op for a key arrives before the Insert op that created it —
// sloppy sync routinely delivers ops out of order, so this has to be a
// first-class state rather than an error case.
type node struct {
	key      PosKey
	char     rune
	inserted bool
	tomb     bool
}

// Doc is an in-memory replica of one note's body text plus its scalar
// metadata. A Doc is local, mutable state: the embedder drives it directly
// through InsertText/DeleteRange/SetMeta to produce Updates, and the core
// feeds it Updates of unknown, possibly foreign, origin through ApplyUpdate.
// Both paths funnel through the same op-application logic, which is what
// guarantees the two views always converge.
type Doc struct {
	actor string

	nodes map[string]*node
	order []PosKey

	meta *LWWMap

	pending []Op
}

// NewDoc returns an empty document. actor identifies the replica for
// tie-breaking concurrent inserts at the same position; it should be the
// owning instance's ID.
func NewDoc(actor string) *Doc {
	return &Doc{
		actor: actor,
		nodes: make(map[string]*node),
		meta:  NewLWWMap(),
	}
}

// InsertText inserts text immediately after the character at key after (nil
// to insert at the start of the document) and applies it to this Doc
// immediately. It returns the key of the last character inserted, suitable
// as the after argument for a subsequent call, and stages the generated ops
// in the pending buffer for the next EncodeUpdate.
func (d *Doc) InsertText(after PosKey, text string) PosKey {
	prev := after
	for _, ch := range text {
		bound := nextKeyAfter(d.order, prev)
		key := BetweenPosKey(prev, bound, d.actor)
		d.applyLocal(Op{Kind: opInsert, Key: key, Char: ch})
		prev = key
	}
	return prev
}

// DeleteRange tombstones every key in keys and applies the deletes
// immediately.
func (d *Doc) DeleteRange(keys []PosKey) {
	for _, k := range keys {
		d.applyLocal(Op{Kind: opDelete, Key: k})
	}
}

// SetMeta sets a scalar metadata field (e.g. "title", "pinned") using ts as
// the LWW timestamp, and applies it immediately.
func (d *Doc) SetMeta(key, value string, ts int64) {
	d.applyLocal(Op{Kind: opSetMeta, MetaKey: key, MetaVal: value, MetaTs: ts, MetaActor: d.actor})
}

// DeleteMeta tombstones a metadata field.
func (d *Doc) DeleteMeta(key string, ts int64) {
	d.applyLocal(Op{Kind: opDeleteMeta, MetaKey: key, MetaTs: ts, MetaActor: d.actor})
}

// Meta returns the current value of a metadata field.
func (d *Doc) Meta(key string) (string, bool) {
	return d.meta.Get(key)
}

// MetaKeys returns the live metadata keys in sorted order.
func (d *Doc) MetaKeys() []string {
	return d.meta.Keys()
}

// Text returns the materialized, tombstone-filtered document body.
func (d *Doc) Text() string {
	out := make([]rune, 0, len(d.order))
	for _, k := range d.order {
		n := d.nodes[encodeKey(k)]
		if n != nil && n.inserted && !n.tomb {
			out = append(out, n.char)
		}
	}
	return string(out)
}

// Keys returns the live (non-tombstoned) position keys in document order,
// for use as after/DeleteRange arguments by a caller tracking cursor
// positions.
func (d *Doc) Keys() []PosKey {
	out := make([]PosKey, 0, len(d.order))
	for _, k := range d.order {
		n := d.nodes[encodeKey(k)]
		if n != nil && n.inserted && !n.tomb {
			out = append(out, k)
		}
	}
	return out
}

// applyLocal applies op to this Doc's own state and stages it for the next
// EncodeUpdate call.
func (d *Doc) applyLocal(op Op) {
	d.applyOp(op)
	d.pending = append(d.pending, op)
}

// applyOp applies a single Op to the document state. It is safe to call
// with an Op already applied (insert/delete are idempotent by key, SetMeta
// is idempotent by LWW ordering) and safe to call with ops in any order
// relative to each other.
func (d *Doc) applyOp(op Op) {
	switch op.Kind {
	case opInsert:
		n := d.nodeFor(op.Key)
		if !n.inserted {
			n.char = op.Char
			n.inserted = true
		}
	case opDelete:
		n := d.nodeFor(op.Key)
		n.tomb = true
	case opSetMeta:
		d.meta.Set(op.MetaKey, op.MetaVal, op.MetaTs, op.MetaActor)
	case opDeleteMeta:
		d.meta.Delete(op.MetaKey, op.MetaTs, op.MetaActor)
	}
}

// nodeFor returns the node for key, creating a bare tombstone placeholder
// (inserted == false) if this is the first op ever seen for that key.
func (d *Doc) nodeFor(key PosKey) *node {
	ks := encodeKey(key)
	n, ok := d.nodes[ks]
	if !ok {
		n = &node{key: key}
		d.nodes[ks] = n
		d.order = sortedInsert(d.order, key)
	}
	return n
}

// EncodeUpdate returns the ops generated by this Doc's own InsertText,
// DeleteRange, SetMeta and DeleteMeta calls since the last EncodeUpdate
// call, serialized to bytes, and clears the pending buffer. Call this
// immediately after making local edits to obtain the bytes to hand to the
// core's ApplyEdit.
func (d *Doc) EncodeUpdate() []byte {
	if len(d.pending) == 0 {
		return nil
	}
	b, err := EncodeUpdateBytes(Update{Ops: d.pending})
	if err != nil {
		// Op only contains primitive fields; Marshal cannot fail.
		panic("crdt: encode update: " + err.Error())
	}
	d.pending = nil
	return b
}

// EncodeStateAsUpdate reconstructs the document's entire current state
// (including tombstones) as a single Update and serializes it. Applying the
// result to a fresh Doc reproduces the same Text/Meta as this one. This is
// used to materialize compacted snapshots.
func (d *Doc) EncodeStateAsUpdate() []byte {
	ops := make([]Op, 0, len(d.nodes)+len(d.meta.entries))
	for _, k := range d.order {
		n := d.nodes[encodeKey(k)]
		if n == nil {
			continue
		}
		if n.inserted {
			ops = append(ops, Op{Kind: opInsert, Key: n.key, Char: n.char})
		}
		if n.tomb {
			ops = append(ops, Op{Kind: opDelete, Key: n.key})
		}
	}
	for key, e := range d.meta.entrySnapshot() {
		if e.Tomb {
			ops = append(ops, Op{Kind: opDeleteMeta, MetaKey: key, MetaTs: e.Ts, MetaActor: e.Actor})
		} else {
			ops = append(ops, Op{Kind: opSetMeta, MetaKey: key, MetaVal: e.Value, MetaTs: e.Ts, MetaActor: e.Actor})
		}
	}
	b, err := EncodeUpdateBytes(Update{Ops: ops})
	if err != nil {
		panic("crdt: encode state: " + err.Error())
	}
	return b
}

// ApplyUpdate decodes an Update produced by EncodeUpdate or
// EncodeStateAsUpdate — local or remote, in any order relative to other
// updates already applied — and folds it into d. It never panics on
// malformed input; callers that read updates from disk or the network
// should treat a decode error as a corrupt update and quarantine it rather
// than crash the process.
func ApplyUpdate(d *Doc, raw []byte) error {
	u, err := DecodeUpdateBytes(raw)
	if err != nil {
		return err
	}
	for _, op := range u.Ops {
		d.applyOp(op)
	}
	return nil
}
