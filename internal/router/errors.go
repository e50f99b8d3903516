package router

import (
	"errors"
	"fmt"
)

// Code categorizes routing failures.
type Code string

const (
	CodeMalformedIdentifier   Code = "MalformedIdentifier"
	CodeUnknownOrExpiredState Code = "UnknownOrExpiredState"
	CodeUnknownRoutingID      Code = "UnknownRoutingId"
	CodeComponentNotFound     Code = "ComponentNotFound"
	CodeComponentIsDraft      Code = "ComponentIsDraft"
	CodeNoFlows               Code = "NoFlows"
	CodeUnsupported           Code = "UnsupportedInteraction"
	CodeInternal              Code = "Internal"
)

// Messages shown to the user. Internal detail never reaches them.
const (
	msgMalformed   = "Component custom ID does not contain a valid prefix"
	msgExpired     = "This has expired. Please start over."
	msgUnknownID   = "Unknown routing ID"
	msgNotFound    = "This component no longer exists."
	msgDraft       = "Component is marked as draft"
	msgNoFlows     = "This component has no flows yet"
	msgUnsupported = "Unknown interaction type"
	msgUnlucky     = "You've found a super unlucky error. Try again later!"
)

// RouteError is a failure converted into a user-facing ephemeral reply.
type RouteError struct {
	// Code identifies the error category.
	Code Code

	// Message is what the user sees.
	Message string

	// Err is the underlying cause, logged but never shown.
	Err error
}

// Error implements the error interface.
func (e *RouteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RouteError) Unwrap() error { return e.Err }

// IsCode reports whether err is a RouteError with the given code.
// Uses errors.As to handle wrapped errors.
func IsCode(err error, code Code) bool {
	var re *RouteError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// Fail builds a RouteError a handler can return to control the reply.
func Fail(code Code, message string, cause error) *RouteError {
	return &RouteError{Code: code, Message: message, Err: cause}
}

func internal(err error) *RouteError {
	return &RouteError{Code: CodeInternal, Message: msgUnlucky, Err: err}
}

// asRouteError keeps RouteErrors and treats anything else as internal.
func asRouteError(err error) *RouteError {
	var re *RouteError
	if errors.As(err, &re) {
		return re
	}
	return internal(err)
}
