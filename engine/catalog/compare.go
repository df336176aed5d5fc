package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lyzr/a2e/engine/errs"
)

// conditionOp reads the comparison operator from a condition object.
// Both the "operator" and "op" spellings are accepted on the wire;
// "operator" wins when both are present.
func conditionOp(obj map[string]any) string {
	if s, _ := obj["operator"].(string); s != "" {
		return s
	}
	s, _ := obj["op"].(string)
	return s
}

// canonicalString renders a value as canonical JSON for deep-equality
// sets (MergeData union/intersect) and group keys.
func canonicalString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return "null"
	default:
		js, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(js)
	}
}

// equalValues compares two JSON-shaped values by canonical form.
func equalValues(left, right any) bool {
	if left == nil && right == nil {
		return true
	}
	lj, errL := json.Marshal(left)
	rj, errR := json.Marshal(right)
	if errL != nil || errR != nil {
		return false
	}
	return string(lj) == string(rj)
}

// compareValues orders two scalars. ok is false when the pair has no
// defined ordering (mixed or non-scalar types, missing values).
func compareValues(left, right any) (int, bool) {
	lf, lok := asNumber(left)
	rf, rok := asNumber(right)
	if lok && rok {
		switch {
		case lf < rf:
			return -1, true
		case lf > rf:
			return 1, true
		default:
			return 0, true
		}
	}

	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		return strings.Compare(ls, rs), true
	}
	return 0, false
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// evalFieldCondition evaluates one FilterData condition operator.
func evalFieldCondition(left any, op string, right any) (bool, error) {
	switch op {
	case "==":
		return equalValues(left, right), nil
	case "!=":
		return !equalValues(left, right), nil
	case ">", "<", ">=", "<=":
		cmp, ok := compareValues(left, right)
		if !ok {
			return false, nil
		}
		switch op {
		case ">":
			return cmp > 0, nil
		case "<":
			return cmp < 0, nil
		case ">=":
			return cmp >= 0, nil
		default:
			return cmp <= 0, nil
		}
	case "in":
		if arr, ok := right.([]any); ok {
			for _, item := range arr {
				if equalValues(left, item) {
					return true, nil
				}
			}
			return false, nil
		}
		if s, ok := right.(string); ok {
			ls, ok := left.(string)
			return ok && strings.Contains(s, ls), nil
		}
		return false, nil
	case "contains":
		if arr, ok := left.([]any); ok {
			for _, item := range arr {
				if equalValues(item, right) {
					return true, nil
				}
			}
			return false, nil
		}
		if s, ok := left.(string); ok {
			return strings.Contains(s, canonicalString(right)), nil
		}
		return false, nil
	case "startsWith":
		s, lok := left.(string)
		prefix, rok := right.(string)
		return lok && rok && strings.HasPrefix(s, prefix), nil
	case "endsWith":
		s, lok := left.(string)
		suffix, rok := right.(string)
		return lok && rok && strings.HasSuffix(s, suffix), nil
	default:
		return false, errs.Validation("unknown condition operator %q", op)
	}
}
