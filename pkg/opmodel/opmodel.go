// Package opmodel defines the loosely-typed Op shape shared by the
// commit coordinator, op-log reader, and polling optimizer (§3), plus
// small defensive accessors for its fields. An Op is represented as a
// plain map, matching the same "generic map" idiom the teacher's own
// CRDT values use (crdt.MapCRDT.Value() in the retrieved yep_crdt
// module) — appropriate here too, since op payloads (create/del/op) are
// opaque to this adapter and only meaningful to the out-of-scope OT
// transform engine.
package opmodel

// Reserved op field names (§3).
const (
	FieldV      = "v"
	FieldSrc    = "src"
	FieldSeq    = "seq"
	FieldCreate = "create"
	FieldDel    = "del"
	FieldOp     = "op"
	FieldM      = "m"
	FieldD      = "d"
	FieldO      = "o"
	FieldID     = "_id"
)

// Op is a single mutation record, keyed by the reserved field names
// above.
type Op map[string]any

// Clone returns a shallow copy of op, used before the commit coordinator
// injects d/o (§4.4: "deep-copy op" — a shallow copy suffices here since
// this adapter never mutates the caller's nested create/del/op payload,
// only the top-level d/o/_id fields it owns).
func (op Op) Clone() Op {
	out := make(Op, len(op)+3)
	for k, v := range op {
		out[k] = v
	}
	return out
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	default:
		return 0, false
	}
}

// V returns the op's version field.
func (op Op) V() (int64, bool) {
	v, ok := op[FieldV]
	if !ok {
		return 0, false
	}
	return asInt64(v)
}

// Src returns the op's client source id.
func (op Op) Src() string {
	s, _ := op[FieldSrc].(string)
	return s
}

// Seq returns the op's client sequence number.
func (op Op) Seq() int64 {
	v, _ := asInt64(op[FieldSeq])
	return v
}

// DocID returns the injected document id field.
func (op Op) DocID() string {
	s, _ := op[FieldD].(string)
	return s
}

// PrevOpID returns the injected reverse-link field, or "" if this is the
// first op in the document's history.
func (op Op) PrevOpID() string {
	s, _ := op[FieldO].(string)
	return s
}

// StoreID returns the store-assigned identity, once set.
func (op Op) StoreID() string {
	s, _ := op[FieldID].(string)
	return s
}

// IsCreate reports whether this op creates (or recreates) the document.
func (op Op) IsCreate() bool {
	v, ok := op[FieldCreate]
	return ok && v != nil
}

// IsDelete reports whether this op deletes the document.
func (op Op) IsDelete() bool {
	v, ok := op[FieldDel]
	if !ok || v == nil {
		return false
	}
	b, ok := v.(bool)
	return !ok || b
}

// Mutation returns the op's path-tagged mutation list, or nil if this op
// carries no positional mutation (a bare create or delete).
func (op Op) Mutation() []any {
	m, _ := op[FieldOp].([]any)
	return m
}

// WithoutFields returns a copy of op with the named fields removed. The
// op log reader uses it to strip d, o and m from the ops it returns.
func (op Op) WithoutFields(fields ...string) Op {
	out := make(Op, len(op))
	skip := make(map[string]bool, len(fields))
	for _, f := range fields {
		skip[f] = true
	}
	for k, v := range op {
		if skip[k] {
			continue
		}
		out[k] = v
	}
	return out
}
