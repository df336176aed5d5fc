package catalog

import (
	"github.com/lyzr/a2e/engine/datamodel"
	"github.com/lyzr/a2e/engine/errs"
)

func init() {
	schemaSources[KindConditional] = `{
		"type": "object",
		"required": ["condition", "ifTrue"],
		"properties": {
			"condition": {
				"type": "object",
				"required": ["path"],
				"properties": {
					"path": {"type": "string", "pattern": "^/workflow"},
					"operator": {"enum": ["==", "!=", ">", "<", ">=", "<=", "in", "contains", "startsWith", "endsWith", "exists", "empty"]},
					"op": {"enum": ["==", "!=", ">", "<", ">=", "<=", "in", "contains", "startsWith", "endsWith", "exists", "empty"]},
					"value": {}
				},
				"anyOf": [{"required": ["operator"]}, {"required": ["op"]}],
				"additionalProperties": false
			},
			"ifTrue": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
			"ifFalse": {"type": "array", "items": {"type": "string", "minLength": 1}}
		},
		"additionalProperties": false
	}`
}

func conditionalDescriptor() *Descriptor {
	return &Descriptor{
		Kind:          KindConditional,
		ControlFlow:   true,
		SkipResolve:   map[string]bool{"condition": true, "ifTrue": true, "ifFalse": true},
		OutputTypeFor: staticOutput(OutputNone),
	}
}

// Branches returns the ifTrue and ifFalse operation ID lists.
func Branches(args map[string]any) (ifTrue, ifFalse []string) {
	return stringList(args["ifTrue"]), stringList(args["ifFalse"])
}

func stringList(raw any) []string {
	arr, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// EvalCondition evaluates a Conditional gate against the live data
// model. exists and empty tolerate an unresolved path; every other
// operator requires the path to resolve.
func EvalCondition(data *datamodel.Tree, raw any) (bool, error) {
	cond, ok := raw.(map[string]any)
	if !ok {
		return false, errs.Validation("condition must be an object")
	}
	path, _ := cond["path"].(string)
	op := conditionOp(cond)
	if path == "" || op == "" {
		return false, errs.Validation("condition requires path and operator")
	}

	switch op {
	case "exists":
		return data.Exists(path), nil
	case "empty":
		if !data.Exists(path) {
			return true, nil
		}
		value, err := data.Read(path)
		if err != nil {
			return false, err
		}
		return isEmpty(value), nil
	}

	value, err := data.Read(path)
	if err != nil {
		return false, err
	}
	return evalFieldCondition(value, op, cond["value"])
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}
