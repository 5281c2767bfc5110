package contacts

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/agentworkforce/contactsync/internal/records"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("client key conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrBadEnvelope  = errors.New("malformed response envelope")
)

// HTTPError is a non-2xx response from the contact service.
type HTTPError struct {
	StatusCode int
	Message    string
	Fields     []records.FieldError
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	}
	return false
}

// ServerError is a 2xx response whose envelope reports success:false.
type ServerError struct {
	Endpoint string
	Message  string
	Fields   []records.FieldError
	// NotFound marks a single-record lookup the service answered negatively.
	NotFound bool
}

func (e *ServerError) Is(target error) bool {
	return target == ErrNotFound && e.NotFound
}

func (e *ServerError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request was not successful"
	}
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: %s", e.Endpoint, msg)
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Endpoint, msg, strings.Join(parts, "; "))
}

// FieldErrors returns the field-level validation errors carried by err, if any.
func FieldErrors(err error) []records.FieldError {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Fields
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Fields
	}
	return nil
}
