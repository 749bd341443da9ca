package identity

import "errors"

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrNetwork              = errors.New("authentication backend unreachable")
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrInvalidUserData      = errors.New("invalid user data")
	ErrIdPInteractionFailed = errors.New("identity provider interaction failed")
)

// RejectedError is a refusal that carries the message given by the authentication backend.
type RejectedError struct {
	Err     error
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Message
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}
