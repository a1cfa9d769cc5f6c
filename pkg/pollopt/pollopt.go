// Package pollopt implements the Polling Optimizer of §4.7: cheap,
// purely-local checks that let a caller holding a live subscription
// skip re-running a query against the store when it can prove the
// query's result couldn't have changed.
package pollopt

import (
	"github.com/shinyes/opdb/pkg/opmodel"
	"github.com/shinyes/opdb/pkg/query"
)

// orderingOpNames are the cursor transforms that make a query's result
// depend on more than any single document's own fields (paging and
// ordering are collection-wide properties).
var orderingOpNames = map[string]bool{
	"$sort":      true,
	"$orderby":   true,
	"$limit":     true,
	"$skip":      true,
	"$max":       true,
	"$min":       true,
	"$returnKey": true,
}

// CanPollDoc reports whether q is evaluable against a single changed
// document in isolation (§4.7 canPollDoc). Collection operations,
// cursor operations, and any ordering/paging transform all require
// seeing the whole collection, so none of those queries qualify.
func CanPollDoc(q query.Query) bool {
	for k := range q {
		if query.CollectionOpNames[k] || query.CursorOpNames[k] || orderingOpNames[k] {
			return false
		}
	}
	return true
}

// SkipPoll reports whether an op that just committed against id can
// safely be assumed not to change q's result, letting the caller skip
// re-querying the store (§4.7 skipPoll).
func SkipPoll(id string, op opmodel.Op, q query.Query) bool {
	if op.IsCreate() || op.IsDelete() {
		return false
	}
	if hasCollectionOrCursorOp(q) {
		return false
	}

	mutation := op.Mutation()
	if len(mutation) == 0 {
		return true
	}

	fields := referencedFields(q)
	for _, component := range mutation {
		path := mutationPath(component)
		if len(path) == 0 {
			// An empty path conservatively touches every field.
			return false
		}
		first, ok := path[0].(string)
		if !ok || fields[first] {
			return false
		}
	}
	return true
}

func hasCollectionOrCursorOp(q query.Query) bool {
	for k := range q {
		if query.CollectionOpNames[k] || query.CursorOpNames[k] {
			return true
		}
	}
	return false
}

func mutationPath(component any) []any {
	m, ok := component.(map[string]any)
	if !ok {
		return nil
	}
	path, _ := m["p"].([]any)
	return path
}

// referencedFields collects every top-level field name q, q.$sort, or
// q.$orderby constrain, recursing into $and/$or arrays and ignoring
// $-prefixed keys at every level.
func referencedFields(q query.Query) map[string]bool {
	fields := make(map[string]bool)
	collectFields(q, fields)
	collectSortFields(q["$sort"], fields)
	collectSortFields(q["$orderby"], fields)
	return fields
}

// collectSortFields records every field name referenced by a $sort/
// $orderby value, accepting both shapes the query engine's own
// parseSortSpec does: a plain map[string]any, or an ordered []any of
// single-field maps (query_scan.go's declared-priority form).
func collectSortFields(spec any, fields map[string]bool) {
	switch s := spec.(type) {
	case map[string]any:
		for field := range s {
			fields[field] = true
		}
	case []any:
		for _, entry := range s {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			for field := range m {
				fields[field] = true
			}
		}
	}
}

func collectFields(obj map[string]any, out map[string]bool) {
	for k, v := range obj {
		if k == "$and" || k == "$or" {
			arr, _ := v.([]any)
			for _, sub := range arr {
				if m, ok := sub.(map[string]any); ok {
					collectFields(m, out)
				}
			}
			continue
		}
		if len(k) > 0 && k[0] == '$' {
			continue
		}
		out[k] = true
	}
}
