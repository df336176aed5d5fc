package catalog

import (
	"context"
	"encoding/json"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/lyzr/a2e/engine/errs"
)

func init() {
	schemaSources[KindMergeData] = `{
		"type": "object",
		"required": ["sources", "strategy", "outputPath"],
		"properties": {
			"sources": {"type": "array", "minItems": 2},
			"strategy": {"enum": ["concat", "union", "intersect", "deepMerge"]},
			"outputPath": {"type": "string", "pattern": "^/workflow/"}
		},
		"additionalProperties": false
	}`
}

func mergeDataDescriptor() *Descriptor {
	return &Descriptor{
		Kind:        KindMergeData,
		Cacheable:   func(map[string]any) bool { return true },
		SkipResolve: map[string]bool{"outputPath": true},
		OutputTypeFor: func(args map[string]any) OutputType {
			if args["strategy"] == "deepMerge" {
				return OutputObject
			}
			return OutputArray
		},
		Execute: executeMergeData,
	}
}

func executeMergeData(_ context.Context, _ *Env, args map[string]any) (any, error) {
	sources, ok := args["sources"].([]any)
	if !ok || len(sources) < 2 {
		return nil, errs.Validation("MergeData requires at least two sources")
	}

	switch strategy, _ := args["strategy"].(string); strategy {
	case "concat":
		return mergeConcat(sources)
	case "union":
		return mergeUnion(sources)
	case "intersect":
		return mergeIntersect(sources)
	case "deepMerge":
		return mergeDeep(sources)
	default:
		return nil, errs.Validation("unknown merge strategy %q", strategy)
	}
}

func arraySources(sources []any) ([][]any, error) {
	out := make([][]any, 0, len(sources))
	for i, src := range sources {
		arr, ok := src.([]any)
		if !ok {
			return nil, errs.Data("", "merge source %d is not an array", i)
		}
		out = append(out, arr)
	}
	return out, nil
}

func mergeConcat(sources []any) (any, error) {
	arrays, err := arraySources(sources)
	if err != nil {
		return nil, err
	}
	var out []any
	for _, arr := range arrays {
		out = append(out, arr...)
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

// mergeUnion concatenates and removes deep-equal duplicates, keeping
// first occurrences in source order.
func mergeUnion(sources []any) (any, error) {
	arrays, err := arraySources(sources)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	out := []any{}
	for _, arr := range arrays {
		for _, item := range arr {
			key := canonicalString(item)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, item)
		}
	}
	return out, nil
}

// mergeIntersect keeps elements of the first source that are
// deep-equal present in every other source.
func mergeIntersect(sources []any) (any, error) {
	arrays, err := arraySources(sources)
	if err != nil {
		return nil, err
	}
	out := []any{}
	emitted := make(map[string]bool)
	for _, item := range arrays[0] {
		key := canonicalString(item)
		if emitted[key] {
			continue
		}
		inAll := true
		for _, other := range arrays[1:] {
			found := false
			for _, candidate := range other {
				if canonicalString(candidate) == key {
					found = true
					break
				}
			}
			if !found {
				inAll = false
				break
			}
		}
		if inAll {
			emitted[key] = true
			out = append(out, item)
		}
	}
	return out, nil
}

// mergeDeep folds object sources left to right with RFC 7386 merge
// patch semantics, so a null in a later source deletes the key.
func mergeDeep(sources []any) (any, error) {
	acc := []byte("{}")
	for i, src := range sources {
		if _, ok := src.(map[string]any); !ok {
			return nil, errs.Data("", "deepMerge source %d is not an object", i)
		}
		patch, err := json.Marshal(src)
		if err != nil {
			return nil, errs.Execution(err)
		}
		acc, err = jsonpatch.MergePatch(acc, patch)
		if err != nil {
			return nil, errs.Data("", "deepMerge failed: %v", err)
		}
	}
	var out map[string]any
	if err := json.Unmarshal(acc, &out); err != nil {
		return nil, errs.Execution(err)
	}
	return out, nil
}
