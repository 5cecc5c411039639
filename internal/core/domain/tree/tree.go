// Package tree reads values out of decoded JSON documents without a chain of
// type assertions at every call site.
package tree

// Get walks v along path. String steps index into objects, int steps index
// into arrays. It returns false as soon as a step is missing or the node has
// the wrong shape.
func Get(v any, path ...any) (any, bool) {
	cur := v
	for _, step := range path {
		switch s := step.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			next, ok := m[s]
			if !ok {
				return nil, false
			}
			cur = next
		case int:
			arr, ok := cur.([]any)
			if !ok || s < 0 || s >= len(arr) {
				return nil, false
			}
			cur = arr[s]
		default:
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// String is Get restricted to string leaves.
func String(v any, path ...any) (string, bool) {
	node, ok := Get(v, path...)
	if !ok {
		return "", false
	}
	s, ok := node.(string)
	return s, ok
}

// Number is Get restricted to numeric leaves as produced by encoding/json.
func Number(v any, path ...any) (float64, bool) {
	node, ok := Get(v, path...)
	if !ok {
		return 0, false
	}
	switch n := node.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
