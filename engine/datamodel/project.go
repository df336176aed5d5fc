package datamodel

import "fmt"

// Project returns a size-bounded copy of value for inclusion in an
// execution response: strings longer than maxString are elided and
// arrays longer than maxArray are truncated with a marker element.
// Pass zero for either limit to disable it ("full" formatting).
func Project(value any, maxString, maxArray int) any {
	switch v := value.(type) {
	case string:
		if maxString > 0 && len(v) > maxString {
			return fmt.Sprintf("%s... (%d bytes elided)", v[:maxString], len(v)-maxString)
		}
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[key] = Project(val, maxString, maxArray)
		}
		return out
	case []any:
		n := len(v)
		truncated := false
		if maxArray > 0 && n > maxArray {
			n = maxArray
			truncated = true
		}
		out := make([]any, 0, n+1)
		for _, val := range v[:n] {
			out = append(out, Project(val, maxString, maxArray))
		}
		if truncated {
			out = append(out, fmt.Sprintf("... (%d items truncated)", len(v)-n))
		}
		return out
	default:
		return value
	}
}
