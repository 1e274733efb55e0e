package storage

// systemFields are owned by the repository and ignored in client input
var systemFields = []string{"_id", "id", "createdAt", "updatedAt"}

// StripSystemFields returns a deep copy of doc without repository-owned fields
func StripSystemFields(doc Record) Record {
	out := deepCopyMap(doc)
	if out == nil {
		return Record{}
	}
	for _, f := range systemFields {
		delete(out, f)
	}
	return out
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return val
	}
}
