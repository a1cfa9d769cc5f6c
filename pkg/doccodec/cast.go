package doccodec

// CastToDoc converts an external snapshot plus the op that produced it
// into the reserved-prefix stored form (§4.1). If snap.Data is a plain
// object it is shallow-copied as the base; otherwise the base is {} when
// data is absent, or {_data: data} when data is a scalar/array/other
// non-object value.
func CastToDoc(id string, snap Snapshot, opLink string) Document {
	var base map[string]any
	switch {
	case snap.HasData && isPlainObject(snap.Data):
		src := snap.Data.(map[string]any)
		base = make(map[string]any, len(src)+5)
		for k, v := range src {
			base[k] = v
		}
	case !snap.HasData:
		base = make(map[string]any, 5)
	default:
		base = map[string]any{FieldData: snap.Data}
	}

	base[FieldID] = id
	if snap.Type == nil {
		base[FieldType] = nil
	} else {
		base[FieldType] = *snap.Type
	}
	base[FieldV] = snap.V
	base[FieldM] = snap.M
	base[FieldO] = opLink
	return Document(base)
}

// CastToSnapshot converts a stored document back into its external form
// (§4.1). A nil _type yields a deleted snapshot with no data. When
// present, _data is unwrapped as-is; otherwise the document minus its
// reserved fields is the data object.
func CastToSnapshot(doc Document) Snapshot {
	snap := Snapshot{
		ID:     stringField(doc, FieldID),
		V:      versionField(doc[FieldV]),
		M:      doc[FieldM],
		OpLink: stringField(doc, FieldO),
	}

	if t, ok := doc[FieldType]; ok && t != nil {
		if s, ok := t.(string); ok {
			snap.Type = &s
		}
	}

	if snap.Type == nil {
		snap.HasData = false
		snap.Data = nil
		return snap
	}

	if d, ok := doc[FieldData]; ok {
		snap.HasData = true
		snap.Data = d
		return snap
	}

	data := make(map[string]any, len(doc))
	for k, v := range doc {
		if isReservedField(k) {
			continue
		}
		data[k] = v
	}
	snap.HasData = true
	snap.Data = data
	return snap
}

func isReservedField(k string) bool {
	switch k {
	case FieldID, FieldV, FieldType, FieldM, FieldO, FieldData:
		return true
	default:
		return false
	}
}

func stringField(doc Document, name string) string {
	s, _ := doc[name].(string)
	return s
}

// versionField normalizes the numeric types a msgpack round trip can
// produce (int64 while still in memory, float64/uint64 after a decode)
// back to a canonical int64.
func versionField(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint64:
		return int64(n)
	case uint32:
		return int64(n)
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	default:
		return 0
	}
}
