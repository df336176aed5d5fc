package catalog

import (
	"context"
	"time"

	"github.com/lyzr/a2e/engine/errs"
)

func init() {
	schemaSources[KindWait] = `{
		"type": "object",
		"required": ["duration"],
		"properties": {
			"duration": {"type": "integer", "minimum": 0, "maximum": 600000}
		},
		"additionalProperties": false
	}`
}

func waitDescriptor() *Descriptor {
	return &Descriptor{
		Kind:          KindWait,
		OutputTypeFor: staticOutput(OutputNone),
		Execute:       executeWait,
	}
}

// executeWait sleeps for duration milliseconds, waking immediately on
// caller cancellation. A zero duration returns at once.
func executeWait(ctx context.Context, _ *Env, args map[string]any) (any, error) {
	ms, _ := numberArg(args, "duration")
	if ms <= 0 {
		return map[string]any{"waitedMs": 0}, nil
	}

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, errs.Cancelled(ctx.Err())
	case <-timer.C:
		return map[string]any{"waitedMs": ms}, nil
	}
}
