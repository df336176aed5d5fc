package catalog

import (
	"context"

	"github.com/lyzr/a2e/engine/errs"
)

func init() {
	schemaSources[KindStoreData] = `{
		"type": "object",
		"required": ["inputPath", "storage", "key"],
		"properties": {
			"inputPath": {},
			"key": {"type": "string", "minLength": 1, "maxLength": 200},
			"storage": {"enum": ["localStorage", "sessionStorage", "file"]}
		},
		"additionalProperties": false
	}`
}

func storeDataDescriptor() *Descriptor {
	return &Descriptor{
		Kind:          KindStoreData,
		OutputTypeFor: staticOutput(OutputNone),
		Execute:       executeStoreData,
	}
}

// executeStoreData persists the value resolved from inputPath. The
// resolver has already replaced the path with the referenced value by
// the time this runs.
func executeStoreData(ctx context.Context, env *Env, args map[string]any) (any, error) {
	key, _ := args["key"].(string)
	backendName, _ := args["storage"].(string)

	backend, err := env.Storage.Backend(backendName)
	if err != nil {
		return nil, errs.Validation("unknown storage backend %q", backendName)
	}
	if err := backend.Store(ctx, key, args["inputPath"]); err != nil {
		return nil, errs.Data("", "store %q failed: %v", key, err)
	}
	return map[string]any{"stored": true, "key": key, "storage": backendName}, nil
}
