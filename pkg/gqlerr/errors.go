// Package gqlerr defines the error kinds raised by the cache core and
// request pipeline.
package gqlerr

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Kind identifies a category of domain error.
type Kind string

const (
	KindConfig         Kind = "CONFIG_ERROR"
	KindParse          Kind = "PARSE_ERROR"
	KindValidation     Kind = "VALIDATION_ERROR"
	KindTooManyOps     Kind = "TOO_MANY_OPERATIONS"
	KindExecutor       Kind = "EXECUTOR_ERROR"
	KindSubscriber     Kind = "SUBSCRIBER_ERROR"
	KindStore          Kind = "STORE_ERROR"
	KindCancelled      Kind = "CANCELLED"
	KindType           Kind = "TYPE_ERROR"
)

// Error is the domain error type used for classified failures (config,
// parse, validation, executor and similar). Some lower layers, such as
// the cache manager and the stores, also return plain wrapped errors.
type Error struct {
	Kind    Kind
	Message string
	Details string
	// GraphQLErrors carries the upstream errors array when Kind is
	// KindExecutor or KindValidation and the source was a GraphQL
	// response/validation result.
	GraphQLErrors gqlerror.List
	// Cause is the wrapped underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NewConfigError(message string) *Error {
	return New(KindConfig, message)
}

func NewParseError(message string, cause error) *Error {
	return Wrap(KindParse, message, cause)
}

func NewValidationError(message string, errs gqlerror.List) *Error {
	return &Error{Kind: KindValidation, Message: message, GraphQLErrors: errs}
}

func NewTooManyOperationsError(count int) *Error {
	return Newf(KindTooManyOps, "document declares %d operations, exactly one is required", count)
}

func NewExecutorError(message string, errs gqlerror.List, cause error) *Error {
	return &Error{Kind: KindExecutor, Message: message, GraphQLErrors: errs, Cause: cause}
}

func NewSubscriberError(message string, cause error) *Error {
	return Wrap(KindSubscriber, message, cause)
}

func NewStoreError(message string, cause error) *Error {
	return Wrap(KindStore, message, cause)
}

func NewCancelled(message string) *Error {
	return New(KindCancelled, message)
}

func NewTypeError(message string) *Error {
	return New(KindType, message)
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	de, ok := err.(*Error)
	return ok && de.Kind == kind
}
