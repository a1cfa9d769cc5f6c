// Package doccodec implements the two pure conversion functions of §4.1:
// CastToDoc and CastToSnapshot. The round trip
// CastToSnapshot(CastToDoc(id, s, link)) is the identity on
// (id, v, type, data, m, opLink) for every representable snapshot (P3),
// except that a live snapshot with absent data comes back with an empty
// object as its data.
package doccodec

// Snapshot is the external, wire-facing form of a document version (§3).
type Snapshot struct {
	ID   string
	V    int64
	Type *string // nil means the document is logically deleted
	Data any     // absent is represented as Data == nil && !HasData
	// HasData distinguishes "data omitted" from "data is the zero value
	// of some scalar type" — a snapshot with no Data field at all (a
	// freshly-deleted document) round-trips differently from one whose
	// Data is explicitly nil/0/"" depending on the OT type.
	HasData bool
	M       any
	OpLink  string
}

// Document is the reserved-prefix stored form of a Snapshot (§3).
type Document map[string]any

// Reserved field names, per §3/§6.
const (
	FieldID   = "_id"
	FieldV    = "_v"
	FieldType = "_type"
	FieldM    = "_m"
	FieldO    = "_o"
	FieldData = "_data"
)

func isPlainObject(v any) bool {
	if v == nil {
		return false
	}
	_, ok := v.(map[string]any)
	return ok
}
