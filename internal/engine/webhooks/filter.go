package webhooks

import "strings"

// Matches evaluates a webhook's filter against a payload. An empty or nil
// filter always matches; otherwise every dotted-path entry must resolve to a
// scalar equal to the expected value.
func Matches(payload map[string]interface{}, filters map[string]interface{}) bool {
	if len(filters) == 0 {
		return true
	}

	for path, want := range filters {
		got, ok := lookupPath(payload, path)
		if !ok {
			return false
		}
		if !scalarEqual(got, want) {
			return false
		}
	}
	return true
}

// lookupPath descends through nested objects splitting on ".". An absent key
// or a non-object intermediate value means the path is missing, not an error.
func lookupPath(payload map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = payload
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// scalarEqual compares a resolved payload value to a filter value. Objects
// and arrays never match a filter entry.
func scalarEqual(got, want interface{}) bool {
	switch got.(type) {
	case map[string]interface{}, []interface{}:
		return false
	}
	switch want.(type) {
	case map[string]interface{}, []interface{}:
		return false
	}
	return got == want
}
