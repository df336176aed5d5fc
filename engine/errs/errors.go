// Package errs defines the engine's error taxonomy. Every error that
// crosses the engine boundary is an *Error with a stable machine-readable
// type and category, a sanitized context map, and optional suggestions.
package errs

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Category groups errors for clients and for retry classification.
type Category string

const (
	CategoryStructure     Category = "structure"
	CategoryValidation    Category = "validation"
	CategoryAuthorization Category = "authorization"
	CategoryData          Category = "data"
	CategoryNetwork       Category = "network"
	CategoryTimeout       Category = "timeout"
	CategoryAPI           Category = "api_error"
	CategoryRateLimit     Category = "rate_limit"
	CategoryResource      Category = "resource"
	CategoryCancelled     Category = "cancelled"
	CategoryExecution     Category = "execution"
)

// Error is the structured engine error. Context is sanitized at
// construction; it never carries credential values or raw bodies.
type Error struct {
	Type        string         `json:"type"`
	Category    Category       `json:"category"`
	Message     string         `json:"message"`
	OperationID string         `json:"operationId,omitempty"`
	Recoverable bool           `json:"recoverable"`
	Context     map[string]any `json:"context,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`

	// StatusCode is set for API errors, RetryAfter for rate-limit and
	// 429 responses. Both feed the retry policy.
	StatusCode int           `json:"-"`
	RetryAfter time.Duration `json:"-"`

	cause error
}

func (e *Error) Error() string {
	if e.OperationID != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Type, e.OperationID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithOperation returns a copy bound to an operation ID.
func (e *Error) WithOperation(opID string) *Error {
	dup := *e
	dup.OperationID = opID
	return &dup
}

// WithContext merges sanitized key/value pairs into the error context.
func (e *Error) WithContext(kv map[string]any) *Error {
	dup := *e
	dup.Context = sanitize(mergeMaps(e.Context, kv))
	return &dup
}

// WithSuggestions attaches actionable hints for the agent.
func (e *Error) WithSuggestions(s ...string) *Error {
	dup := *e
	dup.Suggestions = append(append([]string(nil), e.Suggestions...), s...)
	return &dup
}

func newError(typ string, cat Category, recoverable bool, msg string, cause error) *Error {
	return &Error{
		Type:        typ,
		Category:    cat,
		Message:     msg,
		Recoverable: recoverable,
		cause:       cause,
	}
}

// Structure reports malformed workflow input, rejected before execution.
func Structure(format string, args ...any) *Error {
	return newError("StructureError", CategoryStructure, false, fmt.Sprintf(format, args...), nil)
}

// Validation reports a schema, permission, dependency or type issue.
func Validation(format string, args ...any) *Error {
	return newError("ValidationError", CategoryValidation, true, fmt.Sprintf(format, args...), nil)
}

// Authorization reports a missing permission for an operation, API host
// or credential.
func Authorization(resource, format string, args ...any) *Error {
	e := newError("AuthorizationError", CategoryAuthorization, false, fmt.Sprintf(format, args...), nil)
	e.Context = map[string]any{"resource": resource}
	return e
}

// Data reports a path or JSON-shape problem at runtime.
func Data(path, format string, args ...any) *Error {
	e := newError("DataError", CategoryData, true, fmt.Sprintf(format, args...), nil)
	if path != "" {
		e.Context = map[string]any{"path": path}
	}
	return e
}

// Network reports a connection or DNS failure. Only the host survives
// into the context, never the full URL.
func Network(rawURL string, cause error) *Error {
	e := newError("NetworkError", CategoryNetwork, true, "network request failed", cause)
	if host := hostOf(rawURL); host != "" {
		e.Context = map[string]any{"domain": host}
	}
	return e
}

// Timeout reports an elapsed per-operation deadline.
func Timeout(rawURL string, limit time.Duration) *Error {
	e := newError("TimeoutError", CategoryTimeout, true, fmt.Sprintf("request exceeded %s timeout", limit), nil)
	ctx := map[string]any{"timeout_ms": limit.Milliseconds()}
	if host := hostOf(rawURL); host != "" {
		ctx["domain"] = host
	}
	e.Context = ctx
	return e
}

// API reports a non-2xx response. Retryability is decided by the retry
// policy from the status code, not here.
func API(status int, rawURL string, retryAfter time.Duration) *Error {
	e := newError("ApiError", CategoryAPI, status == 408 || status == 429 || status >= 500,
		fmt.Sprintf("API returned status %d", status), nil)
	e.StatusCode = status
	e.RetryAfter = retryAfter
	ctx := map[string]any{"status_code": status}
	if host := hostOf(rawURL); host != "" {
		ctx["domain"] = host
	}
	e.Context = ctx
	return e
}

// RateLimit reports a denied limiter slot. Never retried by the engine.
func RateLimit(msg string, retryAfter time.Duration) *Error {
	e := newError("RateLimitError", CategoryRateLimit, false, msg, nil)
	e.RetryAfter = retryAfter
	e.Context = map[string]any{"retry_after_ms": retryAfter.Milliseconds()}
	e.Suggestions = []string{"wait retry_after_ms before submitting again"}
	return e
}

// Resource reports an exceeded execution cap.
func Resource(format string, args ...any) *Error {
	return newError("ResourceError", CategoryResource, false, fmt.Sprintf(format, args...), nil)
}

// Cancelled reports caller cancellation.
func Cancelled(cause error) *Error {
	return newError("CancellationError", CategoryCancelled, false, "execution cancelled by caller", cause)
}

// Execution is the catch-all for unexpected faults.
func Execution(cause error) *Error {
	return newError("ExecutionError", CategoryExecution, false, "unexpected execution fault", cause)
}

// Retryable marks an arbitrary error as retryable for the retry policy.
func Retryable(cause error) *Error {
	e := newError("RetryableError", CategoryExecution, true, cause.Error(), cause)
	return e
}

// From coerces any error into an *Error, wrapping unknown errors as
// ExecutionError so no foreign error shape leaks to clients.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	ee := Execution(err)
	ee.Message = err.Error()
	return ee
}

// CategoryOf returns the category of err, or CategoryExecution for
// foreign errors.
func CategoryOf(err error) Category {
	return From(err).Category
}

var sensitiveKeyFragments = []string{"password", "token", "secret", "key", "auth", "credential"}

const maxContextString = 200

// sanitize redacts values under sensitive-looking keys and truncates
// long strings, mirroring the digest rules used by the audit log.
func sanitize(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		lower := strings.ToLower(k)
		redacted := false
		for _, frag := range sensitiveKeyFragments {
			if strings.Contains(lower, frag) {
				out[k] = "[REDACTED]"
				redacted = true
				break
			}
		}
		if redacted {
			continue
		}
		if s, ok := v.(string); ok && len(s) > maxContextString {
			out[k] = s[:maxContextString] + "..."
			continue
		}
		out[k] = v
	}
	return out
}

func mergeMaps(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func hostOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
