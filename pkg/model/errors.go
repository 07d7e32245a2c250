package model

import "fmt"

// NotLikedMessage is the backend detail returned when unliking an image the
// user never liked. Callers treat it as an expected, idempotent outcome.
const NotLikedMessage = "You have not liked this post"

// APIError is a non-2xx response from the Visium backend.
type APIError struct {
	StatusCode int    `json:"-"`
	Detail     string `json:"detail,omitempty"`
}

// NewAPIError creates an APIError for the given status and detail message.
func NewAPIError(status int, detail string) *APIError {
	return &APIError{StatusCode: status, Detail: detail}
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("Request failed with status %d", e.StatusCode)
}

// InvalidTransitionError is returned when an auth state transition is invalid.
type InvalidTransitionError struct {
	From AuthState
	To   AuthState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid auth state transition: %s → %s", e.From, e.To)
}
