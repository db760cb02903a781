package recordstore

import (
	"errors"
	"fmt"
	"net/http"
)

// Error classes surfaced by Client. Match with errors.Is.
var (
	// ErrNetwork means the request never produced an HTTP response.
	ErrNetwork = errors.New("recordstore: network error")
	// ErrServer is any 5xx, or a non-2xx status with no more specific class.
	ErrServer = errors.New("recordstore: server error")
	// ErrValidation is a 4xx rejection of a create or update body.
	ErrValidation = errors.New("recordstore: validation error")
	// ErrNotFound is a 404 for an id that no longer exists.
	ErrNotFound = errors.New("recordstore: not found")
)

// HTTPError represents a non-2xx response returned by the record store.
type HTTPError struct {
	Op         string
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("recordstore: %s: status=%d body=%s", e.Op, e.StatusCode, string(e.Body))
}

// Is maps the status code onto the error classes above.
func (e *HTTPError) Is(target error) bool {
	if e == nil {
		return false
	}
	return classify(e.Op, e.StatusCode) == target
}

// classify picks the error class for a non-2xx status. NotFound only
// applies to requests addressing a single record, and Validation only to
// requests that carry a body.
func classify(op string, status int) error {
	switch {
	case status == http.StatusNotFound && (op == opUpdate || op == opDelete):
		return ErrNotFound
	case status >= 400 && status <= 499 && (op == opCreate || op == opUpdate):
		return ErrValidation
	default:
		return ErrServer
	}
}

// networkError wraps a transport failure so it matches ErrNetwork while
// keeping the underlying cause reachable through errors.Unwrap.
type networkError struct {
	op  string
	err error
}

func (e *networkError) Error() string {
	return fmt.Sprintf("recordstore: %s: %v", e.op, e.err)
}

func (e *networkError) Unwrap() []error {
	return []error{ErrNetwork, e.err}
}
