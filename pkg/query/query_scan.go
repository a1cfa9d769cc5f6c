package query

import (
	"sort"

	"github.com/shinyes/opdb/pkg/apierrors"
	"github.com/shinyes/opdb/pkg/docdb"
)

type sortKey struct {
	field string
	dir   int
}

func (e *Engine) scanMatches(coll *docdb.Collection, filter map[string]any) ([]map[string]any, error) {
	var out []map[string]any
	err := coll.ScanAll(func(doc map[string]any) (bool, error) {
		if e.matches(doc, filter) {
			cp := make(map[string]any, len(doc))
			for k, v := range doc {
				cp[k] = v
			}
			out = append(out, cp)
		}
		return true, nil
	})
	return out, err
}

// applyCursorTransforms applies the composable cursor transforms in
// the canonical sort -> skip -> limit pipeline order (§4.6: "apply
// every cursor transform in order" — a Go map has no key order of its
// own, so this package applies them in the order a cursor pipeline
// would naturally compose them rather than an arbitrary map iteration
// order). The remaining named transforms carry no meaning against this
// embedded engine and are accepted as documented no-ops.
func applyCursorTransforms(docs []map[string]any, transforms map[string]any) ([]map[string]any, error) {
	if spec, ok := firstOf(transforms, "$sort", "$orderby"); ok {
		keys, err := parseSortSpec(spec)
		if err != nil {
			return nil, err
		}
		sortDocs(docs, keys)
	}

	if v, ok := transforms["$skip"]; ok {
		n, ok := toInt(v)
		if !ok {
			return nil, apierrors.MalformedQueryOperator("$skip")
		}
		switch {
		case n < 0:
			n = 0
		case n > len(docs):
			n = len(docs)
		}
		docs = docs[n:]
	}

	if v, ok := transforms["$limit"]; ok {
		n, ok := toInt(v)
		if !ok {
			return nil, apierrors.MalformedQueryOperator("$limit")
		}
		if n >= 0 && n < len(docs) {
			docs = docs[:n]
		}
	}

	// $hint       -> index selection hint; this engine always full-scans.
	// $comment    -> attached to slow-query logs on a real store.
	// $maxTimeMS  -> server-side operation deadline.
	// $min/$max   -> index bound hints, meaningless without an index plan.
	// $maxScan    -> legacy scanned-document cap.
	// $readConcern/$readPref -> replica set read routing.
	// $returnKey/$showRecordId/$showDiskLoc -> internal storage metadata.
	// $snapshot/$noCursorTimeout -> legacy cursor stability flags.
	// All are accepted and otherwise ignored.
	return docs, nil
}

func firstOf(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// parseSortSpec turns a $sort value into an ordered list of sort keys.
// The compound-sort tie-break priority must reflect the caller's
// declared field order (§4.6), which a bare `map[string]any` cannot
// carry — Go deliberately randomizes map iteration order on every pass,
// so ranging over one would make the relative priority between two
// fields change from call to call. Two shapes are accepted:
//
//   - []any of single-key maps, e.g. [{"name":1},{"age":-1}]: the
//     array's own order is the declared priority, exactly as written.
//   - a plain map[string]any: only unambiguous for a single field. With
//     two or more keys there is no way to recover the caller's intended
//     order, so ties are broken by ascending field name instead — a
//     fixed, documented policy rather than per-call randomness.
func parseSortSpec(spec any) ([]sortKey, error) {
	switch s := spec.(type) {
	case []any:
		keys := make([]sortKey, 0, len(s))
		for _, entry := range s {
			m, ok := entry.(map[string]any)
			if !ok || len(m) != 1 {
				return nil, apierrors.MalformedQueryOperator("$sort")
			}
			for field, dir := range m {
				keys = append(keys, sortKey{field: field, dir: sortDir(dir)})
			}
		}
		return keys, nil
	case map[string]any:
		fields := make([]string, 0, len(s))
		for field := range s {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		keys := make([]sortKey, 0, len(fields))
		for _, field := range fields {
			keys = append(keys, sortKey{field: field, dir: sortDir(s[field])})
		}
		return keys, nil
	default:
		return nil, apierrors.MalformedQueryOperator("$sort")
	}
}

func sortDir(v any) int {
	n, _ := toInt(v)
	if n < 0 {
		return -1
	}
	return 1
}

func sortDocs(docs []map[string]any, keys []sortKey) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, k := range keys {
			c, ok := compareOrdered(docs[i][k.field], docs[j][k.field])
			if !ok || c == 0 {
				continue
			}
			if k.dir < 0 {
				c = -c
			}
			return c < 0
		}
		return false
	})
}
