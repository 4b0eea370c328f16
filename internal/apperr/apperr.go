// Package apperr implements the error-category taxonomy used across the
// service: every error that crosses a component boundary is
// classified rather than typed, carries a severity and a recoverable flag,
// and knows how to render a short user-facing message.
package apperr

import (
	"errors"
	"fmt"
)

// Category classifies the failure, independent of its Go type.
type Category string

const (
	CategoryNetwork Category = "network"
	CategoryValidation Category = "validation"
	CategoryPermission Category = "permission"
	CategoryTimeout Category = "timeout"
	CategoryRateLimit Category = "rate_limit"
	CategoryToolExecution Category = "tool_execution"
	CategoryParsing Category = "parsing"
	CategoryResource Category = "resource"
	CategoryConfiguration Category = "configuration"
	CategoryUnknown Category = "unknown"
)

// Severity is an operator-facing signal, not a retry decision.
type Severity string

const (
	SeverityLow Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh Severity = "high"
	SeverityCritical Severity = "critical"
)

// Error wraps an underlying cause with the classification the rest of the
// system branches on (retry policy, user message, logging level).
type Error struct {
	Category Category
	Severity Severity
	Recoverable bool
	Message string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a classified error.
func New(cat Category, sev Severity, recoverable bool, message string, cause error) *Error {
	return &Error{Category: cat, Severity: sev, Recoverable: recoverable, Message: message, Cause: cause}
}

func Network(message string, cause error) *Error {
	return New(CategoryNetwork, SeverityMedium, true, message, cause)
}

func Validation(message string) *Error {
	return New(CategoryValidation, SeverityLow, false, message, nil)
}

func Timeout(message string, cause error) *Error {
	return New(CategoryTimeout, SeverityMedium, true, message, cause)
}

func RateLimit(message string) *Error {
	return New(CategoryRateLimit, SeverityMedium, true, message, nil)
}

func ToolExecution(message string, cause error) *Error {
	return New(CategoryToolExecution, SeverityMedium, true, message, cause)
}

func Parsing(message string, cause error) *Error {
	return New(CategoryParsing, SeverityLow, false, message, cause)
}

func Resource(message string, cause error) *Error {
	return New(CategoryResource, SeverityHigh, false, message, cause)
}

func Configuration(message string, cause error) *Error {
	return New(CategoryConfiguration, SeverityCritical, false, message, cause)
}

// As extracts the classification from err, defaulting to an unknown,
// non-recoverable, medium-severity classification when err isn't one of ours.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return New(CategoryUnknown, SeverityMedium, false, "unexpected error", err)
}

// UserMessage renders the short, non-technical string returned to API
// callers; validation errors get a fixed localized message, rate-limit
// errors a retry-shortly message, network and timeout errors a
// "temporarily unavailable" framing, and everything else a generic
// unexpected-error message.
func UserMessage(err error) string {
	e := As(err)
	switch e.Category {
	case CategoryValidation:
		return "输入参数有误"
	case CategoryRateLimit:
		return "service is rate-limited, please retry shortly"
	case CategoryNetwork, CategoryTimeout:
		return "temporarily unavailable"
	default:
		return "an unexpected error occurred"
	}
}

// Retryable reports whether the category is one the tool-execution retry
// policy should attempt again.
func Retryable(err error) bool {
	e := As(err)
	switch e.Category {
	case CategoryNetwork, CategoryTimeout, CategoryRateLimit:
		return e.Recoverable
	default:
		return false
	}
}
