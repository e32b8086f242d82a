package api

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	ResourceType string // e.g. "topic", "namespace", "connection"
	ResourceName string
	Message      string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s not found", e.ResourceType, e.ResourceName)
}

// IsNotFound checks if an error is a NotFoundError.
func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceName string) *NotFoundError {
	return &NotFoundError{ResourceType: resourceType, ResourceName: resourceName}
}

// Specific NotFoundError constructors for each resource type.
var (
	NewTopicNotFoundError = func(name string) *NotFoundError {
		return NewNotFoundError("topic", name)
	}

	NewNamespaceNotFoundError = func(name string) *NotFoundError {
		return NewNotFoundError("namespace", name)
	}

	NewHierarchyConfigNotFoundError = func(name string) *NotFoundError {
		return NewNotFoundError("hierarchy configuration", name)
	}

	NewConnectionNotFoundError = func(name string) *NotFoundError {
		return NewNotFoundError("connection", name)
	}

	NewInputNotFoundError = func(name string) *NotFoundError {
		return NewNotFoundError("input", name)
	}

	NewOutputNotFoundError = func(name string) *NotFoundError {
		return NewNotFoundError("output", name)
	}
)

// ValidationError represents a structurally invalid configuration or path.
// Validation errors are surfaced synchronously and never retried.
type ValidationError struct {
	Subject  string   // what was being validated
	Messages []string // one or more reasons
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 1 {
		return fmt.Sprintf("%s: %s", e.Subject, e.Messages[0])
	}
	return fmt.Sprintf("%s: %s", e.Subject, strings.Join(e.Messages, "; "))
}

// IsValidation checks if an error is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NewValidationError creates a ValidationError.
func NewValidationError(subject string, messages ...string) *ValidationError {
	return &ValidationError{Subject: subject, Messages: messages}
}

// NewInvalidPathError reports a path string that does not fit the active
// hierarchy configuration.
func NewInvalidPathError(path string, reason string) *ValidationError {
	return &ValidationError{Subject: "path " + path, Messages: []string{reason}}
}

// TopicNotAllowedError reports a topic mapping whose deepest hierarchy level
// forbids topics.
type TopicNotAllowedError struct {
	Topic string
	Level string
}

func (e *TopicNotAllowedError) Error() string {
	return fmt.Sprintf("topic %s not allowed: level %s has allowTopics=false", e.Topic, e.Level)
}

// IsTopicNotAllowed checks if an error is a TopicNotAllowedError.
func IsTopicNotAllowed(err error) bool {
	var te *TopicNotAllowedError
	return errors.As(err, &te)
}

// TransportError represents a connection that could not be established or
// was lost. Subject to the connection's reconnection policy.
type TransportError struct {
	ConnectionID string
	Err          error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error on %s: %v", e.ConnectionID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport checks if an error is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// NewTransportError wraps a transport failure.
func NewTransportError(connectionID string, err error) *TransportError {
	return &TransportError{ConnectionID: connectionID, Err: err}
}

// DecodeError represents a payload that did not parse. The offending message
// is dropped and a counter incremented; decode errors never unwind.
type DecodeError struct {
	Topic string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error on %s: %v", e.Topic, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecode checks if an error is a DecodeError.
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// MappingError represents an auto-mapping failure: below-threshold score or
// disallowed placement. Carries suggestions for operator triage.
type MappingError struct {
	Topic       string
	Score       float64
	Reason      string
	Suggestions []string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("auto-mapping failed for %s: %s", e.Topic, e.Reason)
}

// IsMapping checks if an error is a MappingError.
func IsMapping(err error) bool {
	var me *MappingError
	return errors.As(err, &me)
}

// StoreError represents a persistence-layer rejection. Retryable store
// errors (contention) get a bounded retry with backoff; others are logged
// and dropped from the write path.
type StoreError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsRetryableStore reports whether err is a StoreError marked retryable.
func IsRetryableStore(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Retryable
}

// PublishError represents a failed downstream send. Change-detection state
// is not updated on publish failure so a future attempt retries naturally.
type PublishError struct {
	OutputID string
	Topic    string
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish via output %s failed for %s: %v", e.OutputID, e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Common errors for handler resolution.
var (
	ErrHierarchyNotRegistered       = errors.New("hierarchy handler not registered")
	ErrTopicRepositoryNotRegistered = errors.New("topic repository handler not registered")
	ErrCacheNotRegistered           = errors.New("cache handler not registered")
	ErrConnectionsNotRegistered     = errors.New("connection manager handler not registered")
	ErrRealtimeStoreNotRegistered   = errors.New("realtime store handler not registered")
	ErrHistoryNotRegistered         = errors.New("historical store handler not registered")
)
