package client

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthError is returned by Login. Rejected is true when the backend refused
// the credentials, as opposed to the request failing in transit.
type AuthError struct {
	Status   int
	Rejected bool
	Message  string
	Err      error
}

func (e *AuthError) Error() string {
	switch {
	case e.Rejected && e.Message != "":
		return "login rejected: " + e.Message
	case e.Rejected:
		return "login rejected"
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("login failed: HTTP %d: %v", e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("login failed: HTTP %d", e.Status)
	default:
		return fmt.Sprintf("login failed: %v", e.Err)
	}
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransmitError is returned by PushFix.
type TransmitError struct {
	Status int
	Body   string
	Err    error
}

func (e *TransmitError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("push fix: HTTP %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("push fix: %v", e.Err)
}

func (e *TransmitError) Unwrap() error { return e.Err }

// FetchError is returned by the read endpoints.
type FetchError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StatusCode extracts the HTTP status from any client error, or 0.
func StatusCode(err error) int {
	var ae *AuthError
	var te *TransmitError
	var fe *FetchError
	switch {
	case errors.As(err, &ae):
		return ae.Status
	case errors.As(err, &te):
		return te.Status
	case errors.As(err, &fe):
		return fe.Status
	}
	return 0
}

// IsUnauthorized reports whether err means the session is not (or no longer)
// accepted by the backend.
func IsUnauthorized(err error) bool {
	var ae *AuthError
	if errors.As(err, &ae) && ae.Rejected {
		return true
	}
	status := StatusCode(err)
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
