package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError is a network failure, timeout or transient status that
// persisted through every retry.
type TransportError struct {
	Endpoint   string
	Attempts   int
	StatusCode int // last status seen, 0 if no response arrived
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: giving up after %d attempts (last status %d)", e.Endpoint, e.Attempts, e.StatusCode)
	}
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a response that arrived but is not what the API promises:
// a non-JSON content type, an unparseable body or a missing payload key.
type ProtocolError struct {
	Endpoint    string
	StatusCode  int
	ContentType string
	Reason      string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s (status %d, content-type %q)", e.Endpoint, e.Reason, e.StatusCode, e.ContentType)
}

// StatusError is a non-retryable HTTP status such as 404.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: status %d", e.Endpoint, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// IsTransport reports whether err is a retries-exhausted transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocol reports whether err is a protocol violation.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// retryableStatus lists the statuses worth another attempt.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
