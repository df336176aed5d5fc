package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lyzr/a2e/engine/credential"
	"github.com/lyzr/a2e/engine/errs"
)

const defaultAPITimeout = 30 * time.Second

func init() {
	schemaSources[KindAPICall] = `{
		"type": "object",
		"required": ["method", "url", "outputPath"],
		"properties": {
			"method": {"enum": ["GET", "POST", "PUT", "DELETE", "PATCH"]},
			"url": {"type": "string", "minLength": 1},
			"headers": {"type": "object"},
			"body": {},
			"outputPath": {"type": "string", "pattern": "^/workflow/"},
			"timeoutMs": {"type": "integer", "minimum": 0, "maximum": 600000}
		},
		"additionalProperties": false
	}`
}

func apiCallDescriptor() *Descriptor {
	return &Descriptor{
		Kind:      KindAPICall,
		Retryable: true,
		Cacheable: func(args map[string]any) bool {
			method, _ := args["method"].(string)
			return method == http.MethodGet && !credential.ContainsRef(args["body"])
		},
		SkipResolve:   map[string]bool{"outputPath": true},
		OutputTypeFor: staticOutput(OutputAny),
		// The parsed response body lands at outputPath; the full
		// envelope stays on the operation record.
		OutputValue: func(result any) any {
			if m, ok := result.(map[string]any); ok {
				return m["body"]
			}
			return result
		},
		Execute: executeAPICall,
	}
}

func executeAPICall(ctx context.Context, env *Env, args map[string]any) (any, error) {
	method := args["method"].(string)
	rawURL, _ := args["url"].(string)

	timeout := defaultAPITimeout
	if ms, ok := numberArg(args, "timeoutMs"); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	var bodyReader io.Reader
	if body, ok := args["body"]; ok && body != nil {
		bodyJSON, err := json.Marshal(body)
		if err != nil {
			return nil, errs.Data("", "request body is not serializable: %v", err)
		}
		bodyReader = bytes.NewReader(bodyJSON)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, bodyReader)
	if err != nil {
		return nil, errs.Data("", "invalid request: %v", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := args["headers"].(map[string]any); ok {
		for name, value := range headers {
			req.Header.Set(name, headerValue(value))
		}
	}

	resp, err := env.HTTP.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, reqCtx, rawURL, timeout, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(ctx, reqCtx, rawURL, timeout, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errs.API(resp.StatusCode, rawURL, retryAfterOf(resp))
	}

	return map[string]any{
		"statusCode": resp.StatusCode,
		"headers":    flattenHeaders(resp.Header),
		"body":       parseBody(resp.Header.Get("Content-Type"), respBody),
	}, nil
}

// classifyTransportError maps transport failures onto the error
// taxonomy: caller cancellation, per-operation timeout, then network.
func classifyTransportError(ctx, reqCtx context.Context, rawURL string, timeout time.Duration, err error) error {
	if ctx.Err() != nil {
		return errs.Cancelled(ctx.Err())
	}
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return errs.Timeout(rawURL, timeout)
	}
	return errs.Network(rawURL, err)
}

// parseBody decodes JSON-typed responses and passes everything else
// through as raw text.
func parseBody(contentType string, body []byte) any {
	if strings.Contains(strings.ToLower(contentType), "json") {
		var parsed any
		if err := json.Unmarshal(body, &parsed); err == nil {
			return parsed
		}
	}
	return string(body)
}

func flattenHeaders(h http.Header) map[string]any {
	out := make(map[string]any, len(h))
	for name, values := range h {
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func headerValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func retryAfterOf(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(raw); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}

// numberArg reads a numeric argument that may arrive as float64 or int.
func numberArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
