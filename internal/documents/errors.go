package documents

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("document not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyBatched    = errors.New("document already belongs to a batch")
)

// InvalidTransitionError describes an update the state machine refused.
type InvalidTransitionError struct {
	DocumentID string
	From       Status
	To         Status
	Reason     string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid status transition for document %s: %s -> %s", e.DocumentID, e.From, e.To)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
