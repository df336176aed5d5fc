package catalog

import (
	"context"

	"github.com/lyzr/a2e/engine/errs"
)

func init() {
	schemaSources[KindFilterData] = `{
		"type": "object",
		"required": ["inputPath", "conditions", "outputPath"],
		"properties": {
			"inputPath": {"type": "string", "pattern": "^/workflow"},
			"conditions": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["field", "value"],
					"properties": {
						"field": {"type": "string", "minLength": 1},
						"operator": {"enum": ["==", "!=", ">", "<", ">=", "<=", "in", "contains", "startsWith", "endsWith"]},
						"op": {"enum": ["==", "!=", ">", "<", ">=", "<=", "in", "contains", "startsWith", "endsWith"]},
						"value": {}
					},
					"anyOf": [{"required": ["operator"]}, {"required": ["op"]}],
					"additionalProperties": false
				}
			},
			"outputPath": {"type": "string", "pattern": "^/workflow/"}
		},
		"additionalProperties": false
	}`
}

func filterDataDescriptor() *Descriptor {
	return &Descriptor{
		Kind:          KindFilterData,
		Cacheable:     func(map[string]any) bool { return true },
		SkipResolve:   map[string]bool{"outputPath": true},
		OutputTypeFor: staticOutput(OutputArray),
		Execute:       executeFilterData,
	}
}

// executeFilterData keeps the array elements matching every condition.
// Element order is preserved; a missing field fails the condition it
// appears in, not the whole operation.
func executeFilterData(_ context.Context, _ *Env, args map[string]any) (any, error) {
	input, ok := args["inputPath"].([]any)
	if !ok {
		return nil, errs.Data("", "FilterData input must be an array")
	}
	conditions, err := parseConditions(args["conditions"])
	if err != nil {
		return nil, err
	}

	out := make([]any, 0, len(input))
	for _, item := range input {
		keep := true
		for _, cond := range conditions {
			match, err := cond.matches(item)
			if err != nil {
				return nil, err
			}
			if !match {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, item)
		}
	}
	return out, nil
}

type fieldCondition struct {
	field string
	op    string
	value any
}

func (c fieldCondition) matches(item any) (bool, error) {
	obj, ok := item.(map[string]any)
	if !ok {
		return false, nil
	}
	left, present := obj[c.field]
	if !present {
		return false, nil
	}
	return evalFieldCondition(left, c.op, c.value)
}

// parseConditions accepts an empty array: filtering on no conditions
// is the identity.
func parseConditions(raw any) ([]fieldCondition, error) {
	arr, ok := raw.([]any)
	if !ok {
		return nil, errs.Validation("conditions must be an array")
	}
	out := make([]fieldCondition, 0, len(arr))
	for _, entry := range arr {
		obj, ok := entry.(map[string]any)
		if !ok {
			return nil, errs.Validation("each condition must be an object")
		}
		field, _ := obj["field"].(string)
		op := conditionOp(obj)
		if field == "" || op == "" {
			return nil, errs.Validation("condition requires field and operator")
		}
		out = append(out, fieldCondition{field: field, op: op, value: obj["value"]})
	}
	return out, nil
}
