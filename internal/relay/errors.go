// Package relay implements the message exchange core: identity registration,
// signed-message verification, the inbox/acknowledgment lifecycle, the
// directory, and contacts. Handlers translate HTTP to and from this package.
package relay

import (
	"fmt"
)

// ValidationError reports malformed input. Clients must fix the input;
// retrying unchanged will fail again.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotFoundError reports a missing entity. Resource disambiguates sender vs
// recipient on the send path.
type NotFoundError struct {
	Resource string // "agent", "sender", "recipient", "message", "contact"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// ConflictError reports a uniqueness violation. On duplicate registration
// ExistingID carries the id of the agent already holding the key.
type ConflictError struct {
	Resource   string
	ExistingID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists", e.Resource)
}

// UnauthorizedError reports a failed signature check. Never retried with the
// same signature.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	return e.Reason
}
