package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy for failures that escape the outcome classification.
var (
	ErrMalformedResponse = errors.New("malformed upstream response")
	ErrUnknownEndpoint   = errors.New("unknown endpoint")
)

// OutcomeKind tags the classification of an upstream response.
type OutcomeKind int

const (
	// OutcomeSuccess is any 2xx response.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeRetryableConflict is HTTP 409: a newer request superseded this
	// one. Callers must treat it as a silent no-op, never a user-facing error.
	OutcomeRetryableConflict
	// OutcomeTimeout is HTTP 504. User-facing, retryable, with copy
	// distinguishable from a generic server error.
	OutcomeTimeout
	// OutcomeServerError is any other 5xx. User-facing, retryable.
	OutcomeServerError
	// OutcomeClientError is any 4xx other than 409, generally a missing
	// identity header or malformed parameters.
	OutcomeClientError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryableConflict:
		return "retryable_conflict"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeServerError:
		return "server_error"
	case OutcomeClientError:
		return "client_error"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of an upstream call. Expected statuses
// (400/409/500/504) are represented here rather than as errors; only
// transport-level failures propagate as thrown errors from Call.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	Body       []byte
	Header     http.Header
	// Message carries the upstream error detail for client errors.
	Message string
}

// IsSuccess reports whether the call produced usable data.
func (o Outcome) IsSuccess() bool {
	return o.Kind == OutcomeSuccess
}

// Decode unmarshals a successful body into v. Shape mismatches are wrapped
// as ErrMalformedResponse so they can be logged in full and surfaced
// generically.
func (o Outcome) Decode(v any) error {
	if !o.IsSuccess() {
		return fmt.Errorf("cannot decode %s outcome", o.Kind)
	}
	if err := json.Unmarshal(o.Body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// classify maps an HTTP status to an outcome kind.
func classify(status int) OutcomeKind {
	switch {
	case status >= 200 && status < 300:
		return OutcomeSuccess
	case status == http.StatusConflict:
		return OutcomeRetryableConflict
	case status == http.StatusGatewayTimeout:
		return OutcomeTimeout
	case status >= 500:
		return OutcomeServerError
	default:
		return OutcomeClientError
	}
}
