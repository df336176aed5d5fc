// Package datamodel holds the execution-local tree rooted at /workflow.
// Operation outputs accumulate here; reads return deep copies so no
// operation can mutate upstream data.
package datamodel

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/lyzr/a2e/engine/errs"
	"github.com/lyzr/a2e/engine/pathref"
)

// Tree is the hierarchical data model for one execution. It is owned by
// the executor's serial loop and needs no locking.
type Tree struct {
	root     map[string]any
	maxBytes int

	// marshaled cache for reads; invalidated on write
	cached []byte
}

// New creates an empty tree. maxBytes caps the serialized size; zero
// means unlimited.
func New(maxBytes int) *Tree {
	return &Tree{
		root:     map[string]any{"workflow": map[string]any{}},
		maxBytes: maxBytes,
	}
}

// Read returns a deep copy of the subtree at path, or a DataError when
// the path (including an out-of-bounds array index) does not resolve.
func (t *Tree) Read(path string) (any, error) {
	p, err := pathref.Parse(path)
	if err != nil {
		return nil, err
	}

	js, err := t.marshal()
	if err != nil {
		return nil, errs.Execution(err)
	}

	result := gjson.GetBytes(js, p.GJSON())
	if !result.Exists() {
		return nil, errs.Data(path, "path not found: %s", path)
	}
	// gjson materializes fresh values, so this is already a deep copy
	return result.Value(), nil
}

// Exists reports whether path resolves without copying the value.
func (t *Tree) Exists(path string) bool {
	p, err := pathref.Parse(path)
	if err != nil {
		return false
	}
	js, err := t.marshal()
	if err != nil {
		return false
	}
	return gjson.GetBytes(js, p.GJSON()).Exists()
}

// Write replaces the value at a leaf path. Intermediate key segments
// are autovivified as objects; array indices must land inside an
// existing array.
func (t *Tree) Write(path string, value any) error {
	p, err := pathref.Parse(path)
	if err != nil {
		return err
	}
	segs := p.Segments()
	if len(segs) < 2 {
		return errs.Data(path, "cannot write to the data model root")
	}

	current := any(t.root)
	for _, seg := range segs[:len(segs)-1] {
		switch node := current.(type) {
		case map[string]any:
			if !seg.IsKey {
				return errs.Data(path, "array index applied to object")
			}
			next, ok := node[seg.Key]
			if !ok {
				next = map[string]any{}
				node[seg.Key] = next
			}
			current = next
		case []any:
			if seg.IsKey {
				return errs.Data(path, "field access applied to array")
			}
			if seg.Index >= len(node) {
				return errs.Data(path, "array index %d out of bounds", seg.Index)
			}
			current = node[seg.Index]
		default:
			return errs.Data(path, "cannot traverse scalar at %s", path)
		}
	}

	leaf := segs[len(segs)-1]
	switch node := current.(type) {
	case map[string]any:
		if !leaf.IsKey {
			return errs.Data(path, "array index applied to object")
		}
		node[leaf.Key] = value
	case []any:
		if leaf.IsKey {
			return errs.Data(path, "field access applied to array")
		}
		if leaf.Index >= len(node) {
			return errs.Data(path, "array index %d out of bounds", leaf.Index)
		}
		node[leaf.Index] = value
	default:
		return errs.Data(path, "cannot write below scalar at %s", path)
	}

	t.cached = nil
	if t.maxBytes > 0 {
		js, err := t.marshal()
		if err != nil {
			return errs.Execution(err)
		}
		if len(js) > t.maxBytes {
			return errs.Resource("data model exceeds %d bytes", t.maxBytes)
		}
	}
	return nil
}

// Delete removes the value at a leaf path if present. Used to unbind
// loop variables between iterations.
func (t *Tree) Delete(path string) {
	p, err := pathref.Parse(path)
	if err != nil {
		return
	}
	segs := p.Segments()
	current := any(t.root)
	for _, seg := range segs[:len(segs)-1] {
		node, ok := current.(map[string]any)
		if !ok || !seg.IsKey {
			return
		}
		current, ok = node[seg.Key]
		if !ok {
			return
		}
	}
	leaf := segs[len(segs)-1]
	if node, ok := current.(map[string]any); ok && leaf.IsKey {
		delete(node, leaf.Key)
		t.cached = nil
	}
}

// Snapshot returns the full tree content under /workflow.
func (t *Tree) Snapshot() map[string]any {
	js, err := t.marshal()
	if err != nil {
		return map[string]any{}
	}
	var out struct {
		Workflow map[string]any `json:"workflow"`
	}
	if err := json.Unmarshal(js, &out); err != nil {
		return map[string]any{}
	}
	return out.Workflow
}

// Size returns the serialized size of the tree in bytes.
func (t *Tree) Size() int {
	js, err := t.marshal()
	if err != nil {
		return 0
	}
	return len(js)
}

func (t *Tree) marshal() ([]byte, error) {
	if t.cached != nil {
		return t.cached, nil
	}
	js, err := json.Marshal(t.root)
	if err != nil {
		return nil, err
	}
	t.cached = js
	return js, nil
}
