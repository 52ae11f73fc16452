package core

import (
	"errors"
	"fmt"
)

// Error is a coded error carried across package boundaries. Code is a stable,
// machine readable identifier; Message is safe to show to API clients.
type Error struct {
	Message string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	cause   error
}

// NewError wraps err with a code and optional details.
func NewError(err error, code string, details map[string]any) *Error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Error{
		Message: msg,
		Code:    code,
		Details: details,
		cause:   err,
	}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// AsMap renders the error for structured payloads.
func (e *Error) AsMap() map[string]any {
	if e == nil {
		return nil
	}
	out := map[string]any{"message": e.Message}
	if e.Code != "" {
		out["code"] = e.Code
	}
	if len(e.Details) > 0 {
		out["details"] = CloneMap(e.Details)
	}
	return out
}

// ErrorCode returns the code of the first *Error in err's chain.
func ErrorCode(err error) string {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Code
	}
	return ""
}
