package query

// MakeQuerySafe conjoins {_type: {$ne: null}} onto filter when filter
// does not already reference the reserved _type field, so an ordinary
// filter never accidentally matches a logically-deleted document (§4.6
// makeQuerySafe / P4). A filter that already places some constraint on
// _type — including an explicit {_type: null} deliberately asking for
// deleted documents — is left untouched; P4 only promises the exclusion
// for filters silent on _type.
func MakeQuerySafe(filter map[string]any) map[string]any {
	if referencesType(filter) {
		return filter
	}

	safe := make(map[string]any, len(filter)+1)
	for k, v := range filter {
		safe[k] = v
	}
	safe[fieldType] = map[string]any{"$ne": nil}
	return safe
}

// referencesType reports whether filter, recursing into $and/$or,
// already constrains _type somewhere the match is guaranteed to apply:
// any one branch of an $and, or every branch of an $or.
func referencesType(filter map[string]any) bool {
	for k, v := range filter {
		switch k {
		case "$and":
			arr, _ := v.([]any)
			for _, sub := range arr {
				if m, ok := sub.(map[string]any); ok && referencesType(m) {
					return true
				}
			}
		case "$or":
			arr, ok := v.([]any)
			if !ok || len(arr) == 0 {
				continue
			}
			all := true
			for _, sub := range arr {
				m, ok := sub.(map[string]any)
				if !ok || !referencesType(m) {
					all = false
					break
				}
			}
			if all {
				return true
			}
		default:
			if k == fieldType {
				return true
			}
		}
	}
	return false
}
