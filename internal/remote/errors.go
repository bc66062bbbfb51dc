package remote

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrNotFound is returned when the requested list does not exist.
	ErrNotFound = errors.New("remote list not found")
	// ErrAuthRejected is returned when the server refuses the write secret.
	ErrAuthRejected = errors.New("write secret rejected")
)

// TransportError is a network failure or an unexpected server status.
// It is retryable.
type TransportError struct {
	Op     string
	Status int // 0 when no response was received
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("remote %s: request failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports a response body that could not be parsed.
// It is retryable like a transport failure.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("remote %s: failed to decode response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient failure worth retrying on
// the next cycle.
func IsRetryable(err error) bool {
	var te *TransportError
	var de *DecodeError
	return errors.As(err, &te) || errors.As(err, &de)
}

// statusError maps a non-success response to the error taxonomy.
func statusError(op, id string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("list %s: %w", id, ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("list %s: %w", id, ErrAuthRejected)
	default:
		return &TransportError{
			Op:     op,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("list service error: %s - %s", resp.Status, msg),
		}
	}
}
