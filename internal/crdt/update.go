package crdt

import "encoding/json"

// opKind tags an Op with the mutation it carries.
type opKind uint8

const (
	opInsert opKind = iota + 1
	opDelete
	opSetMeta
	opDeleteMeta
)

// Op is a single CRDT mutation. Which fields are meaningful depends on
// Kind. Ops never carry enough information to determine delivery order;
// that is exactly the point — every field needed to apply an Op correctly,
// regardless of when or how many times it arrives, is self-contained in the
// Op itself.
type Op struct {
	Kind opKind `json:"k"`

	// Insert, Delete
	Key  PosKey `json:"key,omitempty"`
	Char rune   `json:"ch,omitempty"`

	// SetMeta, DeleteMeta
	MetaKey   string `json:"mk,omitempty"`
	MetaVal   string `json:"mv,omitempty"`
	MetaTs    int64  `json:"mt,omitempty"`
	MetaActor string `json:"ma,omitempty"`
}

// Update is the opaque unit exchanged between replicas: a batch of Ops
// produced by one local edit (EncodeUpdate) or by a full-state dump
// (EncodeStateAsUpdate). The rest of the module treats it as an
// associative, commutative, idempotent byte blob and never inspects it.
type Update struct {
	Ops []Op `json:"ops"`
}

// EncodeUpdateBytes serializes u to its wire form.
func EncodeUpdateBytes(u Update) ([]byte, error) {
	return json.Marshal(u)
}

// DecodeUpdateBytes parses the wire form produced by EncodeUpdateBytes.
func DecodeUpdateBytes(b []byte) (Update, error) {
	var u Update
	if err := json.Unmarshal(b, &u); err != nil {
		return Update{}, err
	}
	return u, nil
}
