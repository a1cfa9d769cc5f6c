// Package query implements the Query Engine of §4.6: validating and
// parsing the store's native query object once it has been extended
// with the special `$`-prefixed operators this adapter interprets,
// rewriting it so it never surfaces logically-deleted documents by
// accident, and executing it against the embedded document store.
package query

import "github.com/shinyes/opdb/pkg/doccodec"

// Query is the raw, caller-supplied query object: a mix of ordinary
// filter fields and reserved `$`-prefixed keys.
type Query map[string]any

// CollectionOp is one of the mutually-exclusive whole-collection
// operations ($distinct, $aggregate, $mapReduce).
type CollectionOp struct {
	Name  string
	Value any
}

// CursorOp is one of the mutually-exclusive terminal cursor operations
// ($count, $explain, $map).
type CursorOp struct {
	Name  string
	Value any
}

// Parsed is a query partitioned into its four disjoint buckets (§4.6
// parseQuery).
type Parsed struct {
	Filter           map[string]any
	CollectionOp     *CollectionOp
	CursorTransforms map[string]any
	CursorOp         *CursorOp
}

// CollectionOpNames, CursorTransformNames, and CursorOpNames classify
// every reserved top-level key. Exported so pkg/pollopt can reuse the
// same taxonomy without duplicating it.
var (
	CollectionOpNames = map[string]bool{
		"$distinct":  true,
		"$aggregate": true,
		"$mapReduce": true,
	}

	CursorTransformNames = map[string]bool{
		"$sort":            true,
		"$skip":            true,
		"$limit":           true,
		"$hint":            true,
		"$comment":         true,
		"$batchSize":       true,
		"$maxTimeMS":       true,
		"$min":             true,
		"$max":             true,
		"$maxScan":         true,
		"$readConcern":     true,
		"$readPref":        true,
		"$returnKey":       true,
		"$snapshot":        true,
		"$showRecordId":    true,
		"$noCursorTimeout": true,
		"$orderby":         true, // deprecated alias for $sort
		"$showDiskLoc":     true, // deprecated alias for $showRecordId
	}

	CursorOpNames = map[string]bool{
		"$count":   true,
		"$explain": true,
		"$map":     true,
	}

	// orderingOpNames is the subset of CursorTransformNames that makes a
	// query unsafe to answer purely by evaluating a single changed
	// document (§4.7 canPollDoc).
	orderingOpNames = map[string]bool{
		"$sort":      true,
		"$orderby":   true,
		"$limit":     true,
		"$skip":      true,
		"$max":       true,
		"$min":       true,
		"$returnKey": true,
	}
)

// ProjectionMode selects how GetProjection's result should be applied
// to a stored document.
type ProjectionMode int

const (
	// ProjectAll returns the document unmodified ($submit passthrough).
	ProjectAll ProjectionMode = iota
	// ProjectExclude drops the named fields, keeping everything else.
	ProjectExclude
	// ProjectInclude keeps only the named fields.
	ProjectInclude
)

// Projection is the result of GetProjection.
type Projection struct {
	Mode   ProjectionMode
	Fields []string
}

// reserved field name aliases, for readability in this package.
const (
	fieldID   = doccodec.FieldID
	fieldType = doccodec.FieldType
	fieldV    = doccodec.FieldV
	fieldM    = doccodec.FieldM
	fieldO    = doccodec.FieldO
)
