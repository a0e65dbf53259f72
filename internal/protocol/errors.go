package protocol

import (
	"errors"
	"fmt"
)

var ErrValidation = errors.New("validation error")

// ValidationError 入站消息格式错误, 记录后丢弃
type ValidationError struct {
	Event  EventType
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s message: %s", e.Event, e.Reason)
	}
	return fmt.Sprintf("invalid %s message: field %s %s", e.Event, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(event EventType, field, reason string) error {
	return &ValidationError{Event: event, Field: field, Reason: reason}
}
