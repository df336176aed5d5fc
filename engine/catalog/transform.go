package catalog

import (
	"context"
	"sort"

	"github.com/lyzr/a2e/engine/errs"
)

func init() {
	schemaSources[KindTransformData] = `{
		"type": "object",
		"required": ["inputPath", "transform", "outputPath"],
		"properties": {
			"inputPath": {"type": "string", "pattern": "^/workflow"},
			"transform": {"enum": ["map", "sort", "group", "aggregate", "select"]},
			"config": {"type": "object"},
			"outputPath": {"type": "string", "pattern": "^/workflow/"}
		},
		"additionalProperties": false
	}`
}

func transformDataDescriptor() *Descriptor {
	return &Descriptor{
		Kind:        KindTransformData,
		Cacheable:   func(map[string]any) bool { return true },
		SkipResolve: map[string]bool{"outputPath": true},
		OutputTypeFor: func(args map[string]any) OutputType {
			switch args["transform"] {
			case "group":
				return OutputObject
			case "aggregate":
				return OutputScalar
			default:
				return OutputArray
			}
		},
		Execute: executeTransformData,
	}
}

func executeTransformData(_ context.Context, _ *Env, args map[string]any) (any, error) {
	input, ok := args["inputPath"].([]any)
	if !ok {
		return nil, errs.Data("", "TransformData input must be an array")
	}
	config, _ := args["config"].(map[string]any)

	switch transform, _ := args["transform"].(string); transform {
	case "map":
		return transformMap(input, config)
	case "sort":
		return transformSort(input, config)
	case "group":
		return transformGroup(input, config)
	case "aggregate":
		return transformAggregate(input, config)
	case "select":
		return transformSelect(input, config)
	default:
		return nil, errs.Validation("unknown transform %q", transform)
	}
}

// transformMap applies set, rename and drop edits to every element.
// Non-object elements pass through untouched.
func transformMap(input []any, config map[string]any) (any, error) {
	setFields, _ := config["set"].(map[string]any)
	renames, _ := config["rename"].(map[string]any)
	drops, _ := config["drop"].([]any)

	out := make([]any, 0, len(input))
	for _, item := range input {
		obj, ok := item.(map[string]any)
		if !ok {
			out = append(out, item)
			continue
		}
		next := make(map[string]any, len(obj))
		for k, v := range obj {
			next[k] = v
		}
		for from, to := range renames {
			target, ok := to.(string)
			if !ok || target == "" {
				return nil, errs.Validation("rename target for %q must be a string", from)
			}
			if v, present := next[from]; present {
				delete(next, from)
				next[target] = v
			}
		}
		for _, d := range drops {
			if name, ok := d.(string); ok {
				delete(next, name)
			}
		}
		for k, v := range setFields {
			next[k] = v
		}
		out = append(out, next)
	}
	return out, nil
}

// transformSort orders elements by a field. The sort is stable and
// elements missing the field sink to the end.
func transformSort(input []any, config map[string]any) (any, error) {
	field, _ := config["field"].(string)
	if field == "" {
		return nil, errs.Validation("sort requires config.field")
	}
	desc := config["order"] == "desc"

	out := append([]any(nil), input...)
	sort.SliceStable(out, func(i, j int) bool {
		li, iok := fieldOf(out[i], field)
		lj, jok := fieldOf(out[j], field)
		if iok != jok {
			return iok
		}
		if !iok {
			return false
		}
		cmp, ordered := compareValues(li, lj)
		if !ordered {
			return false
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
	return out, nil
}

// transformGroup buckets elements by a field value. Keys are the
// canonical string form of the group value; elements missing the field
// land under "null".
func transformGroup(input []any, config map[string]any) (any, error) {
	field, _ := config["field"].(string)
	if field == "" {
		return nil, errs.Validation("group requires config.field")
	}
	out := make(map[string]any)
	for _, item := range input {
		key := "null"
		if v, ok := fieldOf(item, field); ok {
			key = canonicalString(v)
		}
		bucket, _ := out[key].([]any)
		out[key] = append(bucket, item)
	}
	return out, nil
}

// transformAggregate folds a numeric field into one scalar. count works
// without a field and counts elements.
func transformAggregate(input []any, config map[string]any) (any, error) {
	fn, _ := config["fn"].(string)
	field, _ := config["field"].(string)

	if fn == "count" {
		return float64(len(input)), nil
	}
	if field == "" {
		return nil, errs.Validation("aggregate %q requires config.field", fn)
	}

	values := make([]float64, 0, len(input))
	for _, item := range input {
		v, ok := fieldOf(item, field)
		if !ok {
			continue
		}
		n, ok := asNumber(v)
		if !ok {
			return nil, errs.Data("", "aggregate field %q holds a non-numeric value", field)
		}
		values = append(values, n)
	}

	switch fn {
	case "sum", "avg":
		var total float64
		for _, n := range values {
			total += n
		}
		if fn == "sum" {
			return total, nil
		}
		if len(values) == 0 {
			return nil, errs.Data("", "avg over zero values")
		}
		return total / float64(len(values)), nil
	case "min", "max":
		if len(values) == 0 {
			return nil, errs.Data("", "%s over zero values", fn)
		}
		best := values[0]
		for _, n := range values[1:] {
			if (fn == "min" && n < best) || (fn == "max" && n > best) {
				best = n
			}
		}
		return best, nil
	default:
		return nil, errs.Validation("unknown aggregate fn %q", fn)
	}
}

// transformSelect projects each element down to the named fields.
func transformSelect(input []any, config map[string]any) (any, error) {
	rawFields, _ := config["fields"].([]any)
	if len(rawFields) == 0 {
		return nil, errs.Validation("select requires config.fields")
	}
	fields := make([]string, 0, len(rawFields))
	for _, f := range rawFields {
		name, ok := f.(string)
		if !ok || name == "" {
			return nil, errs.Validation("select fields must be strings")
		}
		fields = append(fields, name)
	}

	out := make([]any, 0, len(input))
	for _, item := range input {
		obj, ok := item.(map[string]any)
		if !ok {
			out = append(out, item)
			continue
		}
		next := make(map[string]any, len(fields))
		for _, f := range fields {
			if v, present := obj[f]; present {
				next[f] = v
			}
		}
		out = append(out, next)
	}
	return out, nil
}

func fieldOf(item any, field string) (any, bool) {
	obj, ok := item.(map[string]any)
	if !ok {
		return nil, false
	}
	v, present := obj[field]
	return v, present
}
