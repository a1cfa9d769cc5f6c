package query

// GetProjection derives the projection to apply to matched documents
// (§4.6 getProjection). A nil fields map means the caller did not
// request one: exclude only the internal _m/_o fields. A fields map
// containing "$submit" is the OT commit path's callback marker and
// means no projection at all. Otherwise only the requested fields are
// kept, plus _type and _v (always present so callers can tell a
// deleted document from a missing one) and _id (kept for the same
// reason every document store implicitly returns its own id unless
// asked not to).
func GetProjection(fields map[string]any) Projection {
	if fields == nil {
		return Projection{Mode: ProjectExclude, Fields: []string{fieldM, fieldO}}
	}
	if _, ok := fields["$submit"]; ok {
		return Projection{Mode: ProjectAll}
	}

	seen := make(map[string]bool, len(fields)+3)
	out := make([]string, 0, len(fields)+3)
	for k := range fields {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, must := range [...]string{fieldID, fieldType, fieldV} {
		if !seen[must] {
			seen[must] = true
			out = append(out, must)
		}
	}
	return Projection{Mode: ProjectInclude, Fields: out}
}

// ApplyProjection applies a Projection to a stored document.
func ApplyProjection(doc map[string]any, p Projection) map[string]any {
	switch p.Mode {
	case ProjectExclude:
		out := make(map[string]any, len(doc))
		skip := make(map[string]bool, len(p.Fields))
		for _, f := range p.Fields {
			skip[f] = true
		}
		for k, v := range doc {
			if !skip[k] {
				out[k] = v
			}
		}
		return out
	case ProjectInclude:
		out := make(map[string]any, len(p.Fields))
		for _, f := range p.Fields {
			if v, ok := doc[f]; ok {
				out[f] = v
			}
		}
		return out
	default:
		return doc
	}
}
