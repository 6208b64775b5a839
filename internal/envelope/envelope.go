// Package envelope defines the response wrapper every API route returns.
//
// A Result is either a success (data and/or message) or a failure (kind,
// error, details). The two branches are only reachable through the
// constructors below, and MarshalJSON is the single place the wire shape is
// produced, so a payload never carries both data and error.
package envelope

import (
	"encoding/json"
	"net/http"
	"time"
)

// Kind classifies a failure and decides its HTTP status.
type Kind string

const (
	KindValidation       Kind = "ValidationError"
	KindUnauthorized     Kind = "Unauthorized"
	KindNotFound         Kind = "NotFoundError"
	KindMethodNotAllowed Kind = "MethodNotAllowed"
	KindInvalidProvider  Kind = "InvalidProviderError"
	KindUpstream         Kind = "UpstreamError"
	KindBadGateway       Kind = "BadGatewayError"
	KindUnavailable      Kind = "UnavailableError"
	KindNotImplemented   Kind = "NotImplementedError"
	KindTimeout          Kind = "TimeoutError"
	KindConflict         Kind = "ConflictError"
	KindForbidden        Kind = "ForbiddenError"
	KindInternal         Kind = "InternalError"
)

// Status maps a kind to its HTTP status code. Unknown kinds are 500.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindInvalidProvider:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindConflict:
		return http.StatusConflict
	case KindBadGateway:
		return http.StatusBadGateway
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindNotImplemented:
		return http.StatusNotImplemented
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// UnknownError is the details text used when a failure carries no message.
const UnknownError = "Unknown error"

var now = time.Now

// Result is the tagged union behind every response body.
type Result struct {
	ok        bool
	status    int
	data      any
	hasData   bool
	message   string
	count     *int
	kind      Kind
	errText   string
	details   string
	timestamp time.Time
}

// OK wraps a collaborator result.
func OK(data any) Result {
	return Result{ok: true, status: http.StatusOK, data: data, hasData: true, timestamp: now()}
}

// Message is a success carrying only a human readable message.
func Message(message string) Result {
	return Result{ok: true, status: http.StatusOK, message: message, timestamp: now()}
}

// List wraps a slice and records its length as count. A nil slice is
// reported as an empty list.
func List[T any](items []T) Result {
	if items == nil {
		items = []T{}
	}
	count := len(items)
	return Result{ok: true, status: http.StatusOK, data: items, hasData: true, count: &count, timestamp: now()}
}

// Fail builds a failure. An empty message falls back to the kind name.
func Fail(kind Kind, message, details string) Result {
	if message == "" {
		message = string(kind)
	}
	return Result{ok: false, status: kind.Status(), kind: kind, errText: message, details: details, timestamp: now()}
}

// WithMessage attaches a message to a success. Failures are returned unchanged.
func (r Result) WithMessage(message string) Result {
	if r.ok {
		r.message = message
	}
	return r
}

// WithStatus overrides the HTTP status of a success (for example 201).
func (r Result) WithStatus(status int) Result {
	if r.ok {
		r.status = status
	}
	return r
}

func (r Result) Success() bool { return r.ok }
func (r Result) Status() int   { return r.status }
func (r Result) Kind() Kind    { return r.kind }
func (r Result) Error() string { return r.errText }

type wire struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	Count     *int   `json:"count,omitempty"`
	Error     string `json:"error,omitempty"`
	Kind      Kind   `json:"kind,omitempty"`
	Details   string `json:"details,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := wire{
		Success:   r.ok,
		Timestamp: r.timestamp.UTC().Format(time.RFC3339Nano),
	}
	if r.ok {
		if r.hasData {
			out.Data = r.data
		}
		out.Message = r.message
		out.Count = r.count
	} else {
		out.Error = r.errText
		out.Kind = r.kind
		out.Details = r.details
	}
	return json.Marshal(out)
}

// Write serializes r with its status code.
func Write(w http.ResponseWriter, r Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(r.status)
	_ = json.NewEncoder(w).Encode(r)
}
