package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
)

var (
	ErrNotFound         = errors.New("workflow not found")
	ErrAlreadyExecuting = errors.New("workflow is already executing")
	ErrTerminal         = errors.New("workflow already in terminal state")
	ErrQueueFull        = errors.New("workflow queue is full")
)

// InvalidTransitionError reports a status change that the transition table does not allow.
type InvalidTransitionError struct {
	Kind    string // "workflow" or "step"
	From    string
	To      string
	Allowed []string
}

func (e *InvalidTransitionError) Error() string {
	allowed := "none"
	if len(e.Allowed) > 0 {
		allowed = strings.Join(e.Allowed, ", ")
	}
	return fmt.Sprintf("invalid %s transition from %s to %s (allowed: %s)", e.Kind, e.From, e.To, allowed)
}

type UnsupportedStepTypeError struct {
	Type models.StepType
}

func (e *UnsupportedStepTypeError) Error() string {
	return fmt.Sprintf("unsupported step type: %q", string(e.Type))
}

// ChainError is the typed failure a network adapter returns.
type ChainError struct {
	Kind      models.FailureKind
	Code      string
	Message   string
	Network   models.NetworkID
	Retryable bool
}

func (e *ChainError) Error() string {
	return e.Code + ": " + e.Message
}

// NewTransientError builds a retryable ChainError.
func NewTransientError(network models.NetworkID, code, message string) *ChainError {
	return &ChainError{Kind: models.FailureTransient, Code: code, Message: message, Network: network, Retryable: true}
}

func NewPermanentError(network models.NetworkID, code, message string) *ChainError {
	return &ChainError{Kind: models.FailurePermanent, Code: code, Message: message, Network: network}
}
