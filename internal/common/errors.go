package common

import "fmt"

// NotFoundKind distinguishes which part of the template hierarchy was missing.
type NotFoundKind string

const (
	NotFoundChannelDirectory NotFoundKind = "channel_directory"
	NotFoundTemplateFile     NotFoundKind = "template_file"
)

// NotFoundError indicates a required resource does not exist.
// For template resolution the Kind says whether the channel directory
// or the template file itself was missing.
type NotFoundError struct {
	Kind     NotFoundKind
	Resource string
}

func (e *NotFoundError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s not found: %s", e.Kind, e.Resource)
	}
	return fmt.Sprintf("not found: %s", e.Resource)
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(kind NotFoundKind, resource string) *NotFoundError {
	return &NotFoundError{Kind: kind, Resource: resource}
}

// InvalidArgumentError indicates bad input: an empty template name or
// channel, or a channel no transport supports. Never retried.
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return e.Message
}

// NewInvalidArgumentError creates a new InvalidArgumentError.
func NewInvalidArgumentError(message string) *InvalidArgumentError {
	return &InvalidArgumentError{Message: message}
}

// TransportError indicates an ordinary delivery failure from a channel
// transport: provider rejection, network error, timeout. Always retryable.
type TransportError struct {
	Channel string
	Message string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: %s", e.Channel, e.Message)
}

// NewTransportError creates a new TransportError.
func NewTransportError(channel, message string) *TransportError {
	return &TransportError{Channel: channel, Message: message}
}

// ValidationError indicates an invalid API request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// UnauthorizedError indicates missing or invalid authentication.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	if e.Message == "" {
		return "unauthorized"
	}
	return e.Message
}

// NewUnauthorizedError creates a new UnauthorizedError.
func NewUnauthorizedError(message string) *UnauthorizedError {
	return &UnauthorizedError{Message: message}
}
