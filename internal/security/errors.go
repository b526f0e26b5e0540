package security

import (
	"errors"
	"fmt"

	"tagbox/internal/models"
)

var (
	// ErrLoginFailure covers both unknown users and wrong passwords.
	ErrLoginFailure = errors.New("login failed")

	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrAccessDenied = errors.New("access denied")

	ErrUserExists = errors.New("user already exists")

	ErrInvalidUsername = errors.New("invalid username")
)

// AccessDeniedError names the right the caller was missing.
type AccessDeniedError struct {
	Right models.Right
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: user does not have the %q right", e.Right)
}

func (e *AccessDeniedError) Is(target error) bool {
	return target == ErrAccessDenied
}
