package query

import (
	"strings"

	"github.com/shinyes/opdb/pkg/apierrors"
)

// CheckQuery validates a query's shape before it is parsed or executed
// (§4.6 checkQuery). allowJS gates $where/$mapReduce; allowAggregate
// gates $aggregate.
func CheckQuery(q Query, allowJS, allowAggregate bool) error {
	if _, ok := q["$query"]; ok {
		return apierrors.LegacyQueryWrapper()
	}

	var collectionOps, cursorOps int
	hasCursorTransform := false

	for k := range q {
		if !strings.HasPrefix(k, "$") {
			continue
		}
		switch {
		case CollectionOpNames[k]:
			collectionOps++
		case CursorOpNames[k]:
			cursorOps++
		case CursorTransformNames[k]:
			hasCursorTransform = true
		case k == "$where":
			// Filter-level operator, gated below, not counted against
			// the collection/cursor-op exclusivity rules.
		default:
			return apierrors.MalformedQueryOperator(k)
		}
	}

	if collectionOps > 1 {
		return apierrors.MultipleCollectionOps()
	}
	if cursorOps > 1 {
		return apierrors.MultipleCursorOps()
	}
	if collectionOps == 1 && (cursorOps == 1 || hasCursorTransform) {
		return apierrors.CursorMethodAfterCollectionOp()
	}

	if !allowJS {
		if _, ok := q["$where"]; ok {
			return apierrors.JSQueriesDisabled()
		}
		if _, ok := q["$mapReduce"]; ok {
			return apierrors.MapReduceDisabled()
		}
	}
	if !allowAggregate {
		if _, ok := q["$aggregate"]; ok {
			return apierrors.AggregateDisabled()
		}
	}
	return nil
}

// ParseQuery partitions a query into its four buckets (§4.6
// parseQuery). Callers must run CheckQuery first; ParseQuery assumes
// the query has already been validated.
func ParseQuery(q Query) *Parsed {
	p := &Parsed{Filter: make(map[string]any), CursorTransforms: make(map[string]any)}
	for k, v := range q {
		switch {
		case CollectionOpNames[k]:
			name, value := k, v
			p.CollectionOp = &CollectionOp{Name: name, Value: value}
		case CursorOpNames[k]:
			name, value := k, v
			p.CursorOp = &CursorOp{Name: name, Value: value}
		case CursorTransformNames[k]:
			p.CursorTransforms[k] = v
		default:
			p.Filter[k] = v
		}
	}
	return p
}
