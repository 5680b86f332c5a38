package chats

import (
	"errors"
	"fmt"
)

var (
	// ErrChatNotFound is returned when a chat does not exist or is not owned by the caller.
	// The two cases are deliberately indistinguishable.
	ErrChatNotFound = errors.New("chats: chat not found")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errRecordConflict    = errors.New("identifier already belongs to another chat")
)

// ServiceError carries a machine-readable `operation.reason` code for store failures.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ValidationError describes why an update payload was rejected before touching the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "chats: invalid update: " + e.Reason
	}
	return fmt.Sprintf("chats: invalid update: %s: %s", e.Field, e.Reason)
}

func invalidField(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Update stages that can fail after the metadata patch committed. Messages and
// checkpoints share a transaction, so a checkpoint failure in an update that also
// carried messages discards both and reports StageMessagesAndCheckpoints.
const (
	StageMessages               = "messages"
	StageCheckpoints            = "checkpoints"
	StageMessagesAndCheckpoints = "messages_and_checkpoints"
)

// PartialApplyError reports that chat metadata was updated but the portion named by
// Stage was not saved. Callers retry exactly that portion.
type PartialApplyError struct {
	ChatID string
	Stage  string
	Err    error
}

func (e *PartialApplyError) Error() string {
	return fmt.Sprintf("chats: chat %s metadata updated but %s failed: %v", e.ChatID, e.Stage, e.Err)
}

func (e *PartialApplyError) Unwrap() error {
	return e.Err
}
