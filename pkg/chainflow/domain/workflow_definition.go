package domain

import (
	"errors"
	"fmt"

	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
	"github.com/shopspring/decimal"
)

// StepDefinition is one step of a workflow template.
type StepDefinition struct {
	Type               models.StepType  `json:"type"`
	Network            models.NetworkID `json:"network"`
	DestinationNetwork models.NetworkID `json:"destinationNetwork,omitempty"`
	Token              string           `json:"token"`
	DestinationToken   string           `json:"destinationToken,omitempty"`
	Amount             decimal.Decimal  `json:"amount"`
	ToAddress          string           `json:"toAddress,omitempty"`
}

// ErrInvalidDefinition wraps every Validate failure.
var ErrInvalidDefinition = errors.New("invalid workflow definition")

// WorkflowDefinition is the immutable template a workflow is created from.
type WorkflowDefinition struct {
	Name               string           `json:"name"`
	Description        string           `json:"description"`
	SourceAddress      string           `json:"sourceAddress"`
	DestinationAddress string           `json:"destinationAddress"`
	Steps              []StepDefinition `json:"steps"`
}

// Validate checks the structural rules a definition must satisfy before it is stored.
// Step types are not checked here; an unknown type fails at execution time.
func (d WorkflowDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if d.SourceAddress == "" || d.DestinationAddress == "" {
		return fmt.Errorf("%w: sourceAddress and destinationAddress are required", ErrInvalidDefinition)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: at least one step is required", ErrInvalidDefinition)
	}
	for i, s := range d.Steps {
		if s.Network == "" {
			return fmt.Errorf("%w: step %d: network is required", ErrInvalidDefinition, i)
		}
		if s.Token == "" {
			return fmt.Errorf("%w: step %d: token is required", ErrInvalidDefinition, i)
		}
		if !s.Amount.IsPositive() {
			return fmt.Errorf("%w: step %d: amount must be positive", ErrInvalidDefinition, i)
		}
	}
	return nil
}
