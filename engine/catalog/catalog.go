// Package catalog holds the fixed set of operation kinds the engine
// can execute. Each kind is a descriptor: an argument schema, an
// executor function, cacheability and retryability classification, and
// the static output type used by the validator. Dispatch is a map
// lookup; there is no open class hierarchy and agents cannot register
// kinds.
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/lyzr/a2e/common/logger"
	"github.com/lyzr/a2e/common/storage"
	"github.com/lyzr/a2e/engine/datamodel"
	"github.com/lyzr/a2e/engine/errs"
)

// Operation kind names.
const (
	KindAPICall       = "ApiCall"
	KindFilterData    = "FilterData"
	KindTransformData = "TransformData"
	KindConditional   = "Conditional"
	KindLoop          = "Loop"
	KindStoreData     = "StoreData"
	KindWait          = "Wait"
	KindMergeData     = "MergeData"
)

// OutputType is the statically declared shape of an operation's output.
type OutputType string

const (
	OutputArray  OutputType = "array"
	OutputObject OutputType = "object"
	OutputScalar OutputType = "scalar"
	// OutputAny is used when the shape depends on external data; the
	// validator treats it as compatible with every requirement.
	OutputAny OutputType = "any"
	// OutputNone marks kinds that produce no data model output.
	OutputNone OutputType = "none"
)

// StorageProvider resolves a StoreData backend by name.
type StorageProvider interface {
	Backend(name string) (storage.Storage, error)
}

// Env carries the collaborators an executor function may use. The data
// model is execution-local; the HTTP client and storage provider are
// process-wide.
type Env struct {
	Data    *datamodel.Tree
	HTTP    *http.Client
	Storage StorageProvider
	Logger  *logger.Logger
}

// ExecuteFunc runs one operation against resolved, credential-injected
// arguments and returns its result.
type ExecuteFunc func(ctx context.Context, env *Env, args map[string]any) (any, error)

// Descriptor describes one operation kind.
type Descriptor struct {
	Kind   string
	Schema *jsonschema.Schema

	// Cacheable decides per-instance cacheability from the
	// pre-injection argument view. nil means never cacheable.
	Cacheable func(args map[string]any) bool

	// Retryable marks kinds whose failures may be retried.
	Retryable bool

	// ControlFlow marks kinds the executor dispatches itself
	// (Conditional, Loop) because they steer other operations.
	ControlFlow bool

	// SkipResolve lists top-level argument keys the path resolver must
	// leave untouched (write targets, operation ID lists, conditions).
	SkipResolve map[string]bool

	// OutputTypeFor computes the declared output type, which may depend
	// on the arguments (TransformData varies by transform).
	OutputTypeFor func(args map[string]any) OutputType

	// OutputValue extracts the value written to outputPath from the
	// operation result. nil means the result is written as-is.
	OutputValue func(result any) any

	Execute ExecuteFunc
}

// OutputPath returns the operation's outputPath argument, if any.
func OutputPath(args map[string]any) (string, bool) {
	p, ok := args["outputPath"].(string)
	return p, ok && p != ""
}

// Catalog is the registry of built-in operation kinds.
type Catalog struct {
	kinds map[string]*Descriptor
}

// Get returns the descriptor for kind.
func (c *Catalog) Get(kind string) (*Descriptor, bool) {
	d, ok := c.kinds[kind]
	return d, ok
}

// Kinds lists all registered kind names.
func (c *Catalog) Kinds() []string {
	out := make([]string, 0, len(c.kinds))
	for kind := range c.kinds {
		out = append(out, kind)
	}
	return out
}

// ValidateArgs checks raw argument bytes against the kind's schema.
func (d *Descriptor) ValidateArgs(rawArgs []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(rawArgs))
	if err != nil {
		return errs.Structure("%s: args are not valid JSON: %v", d.Kind, err)
	}
	if err := d.Schema.Validate(doc); err != nil {
		return errs.Validation("%s: %s", d.Kind, schemaErrorSummary(err))
	}
	return nil
}

// schemaErrorSummary flattens a jsonschema validation error into a
// single actionable line.
func schemaErrorSummary(err error) string {
	msg := err.Error()
	if idx := strings.IndexByte(msg, '\n'); idx > 0 {
		msg = msg[:idx]
	}
	return msg
}

// NewBuiltin compiles the schemas and registers the eight built-in
// operation kinds.
func NewBuiltin() (*Catalog, error) {
	c := &Catalog{kinds: make(map[string]*Descriptor)}

	for _, d := range []*Descriptor{
		apiCallDescriptor(),
		filterDataDescriptor(),
		transformDataDescriptor(),
		conditionalDescriptor(),
		loopDescriptor(),
		storeDataDescriptor(),
		waitDescriptor(),
		mergeDataDescriptor(),
	} {
		if err := compileSchema(d); err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", d.Kind, err)
		}
		c.kinds[d.Kind] = d
	}
	return c, nil
}

// schemaSources is populated by the per-kind files.
var schemaSources = map[string]string{}

func compileSchema(d *Descriptor) error {
	src, ok := schemaSources[d.Kind]
	if !ok {
		return fmt.Errorf("missing schema source")
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		return err
	}
	compiler := jsonschema.NewCompiler()
	name := d.Kind + ".json"
	if err := compiler.AddResource(name, doc); err != nil {
		return err
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return err
	}
	d.Schema = schema
	return nil
}

func staticOutput(t OutputType) func(map[string]any) OutputType {
	return func(map[string]any) OutputType { return t }
}
