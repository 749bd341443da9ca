package remote

import (
	"errors"
	"fmt"
)

var ErrUnexpectedStatus = errors.New("unexpected response status")
var ErrMalformedResponse = errors.New("malformed response payload")

// StatusError is returned for non-2xx responses of the remote API.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %d", ErrUnexpectedStatus, e.StatusCode)
	}
	return fmt.Sprintf("%s: %d: %s", ErrUnexpectedStatus, e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}
