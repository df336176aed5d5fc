package pathref

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Reader supplies values for reference paths during resolution.
type Reader interface {
	Read(path string) (any, error)
}

// interpolation matches {/workflow/...} templates inside larger strings
var interpolation = regexp.MustCompile(`\{(/workflow[^}]*)\}`)

// Resolver substitutes path references inside operation arguments.
type Resolver struct {
	reader Reader
}

// NewResolver creates a resolver backed by the given reader.
func NewResolver(reader Reader) *Resolver {
	return &Resolver{reader: reader}
}

// Resolve walks a value recursively. Bare strings equal to a valid path
// are replaced with the referenced value; {/workflow/...} templates
// inside larger strings are replaced with the value's string form.
func (r *Resolver) Resolve(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return r.resolveString(v)
	case map[string]any:
		resolved := make(map[string]any, len(v))
		for key, val := range v {
			rv, err := r.Resolve(val)
			if err != nil {
				return nil, fmt.Errorf("resolve %s: %w", key, err)
			}
			resolved[key] = rv
		}
		return resolved, nil
	case []any:
		resolved := make([]any, len(v))
		for i, val := range v {
			rv, err := r.Resolve(val)
			if err != nil {
				return nil, err
			}
			resolved[i] = rv
		}
		return resolved, nil
	default:
		// Primitives pass through
		return value, nil
	}
}

func (r *Resolver) resolveString(s string) (any, error) {
	if IsPath(s) {
		return r.reader.Read(s)
	}

	if !strings.Contains(s, "{/workflow") {
		return s, nil
	}

	var firstErr error
	result := interpolation.ReplaceAllStringFunc(s, func(match string) string {
		path := match[1 : len(match)-1]
		value, err := r.reader.Read(path)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return match
		}
		return stringify(value)
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return "null"
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// ResolveArgs resolves an argument object, leaving the top-level keys
// named in skip untouched. Write targets (outputPath) and fields that
// operations evaluate themselves (Conditional conditions, branch and
// loop operation IDs) are skipped.
func (r *Resolver) ResolveArgs(args map[string]any, skip map[string]bool) (map[string]any, error) {
	resolved := make(map[string]any, len(args))
	for key, val := range args {
		if skip[key] {
			resolved[key] = val
			continue
		}
		rv, err := r.Resolve(val)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", key, err)
		}
		resolved[key] = rv
	}
	return resolved, nil
}

// CollectArgRefs gathers reference paths from an argument object,
// ignoring the top-level keys named in skip.
func CollectArgRefs(args map[string]any, skip map[string]bool) []string {
	var refs []string
	for key, val := range args {
		if skip[key] {
			continue
		}
		collectRefs(val, &refs)
	}
	return refs
}

// CollectRefs gathers every reference path mentioned in a value: bare
// path strings, interpolation templates, and inputPath-style fields are
// all just strings at this level. Used by the validator to build the
// dependency view.
func CollectRefs(value any) []string {
	var refs []string
	collectRefs(value, &refs)
	return refs
}

func collectRefs(value any, refs *[]string) {
	switch v := value.(type) {
	case string:
		if IsPath(v) {
			*refs = append(*refs, v)
			return
		}
		for _, match := range interpolation.FindAllStringSubmatch(v, -1) {
			if IsPath(match[1]) {
				*refs = append(*refs, match[1])
			}
		}
	case map[string]any:
		for _, val := range v {
			collectRefs(val, refs)
		}
	case []any:
		for _, val := range v {
			collectRefs(val, refs)
		}
	}
}
