// Package statemachine holds the transition tables for workflows and steps.
// Every status write in the engine is validated here first.
package statemachine

import (
	"slices"

	"github.com/RealZimboGuy/chainflow/pkg/chainflow/core"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
)

var workflowTransitions = map[models.WorkflowStatus][]models.WorkflowStatus{
	models.WorkflowCreated:           {models.WorkflowPending},
	models.WorkflowPending:           {models.WorkflowExecuting},
	models.WorkflowExecuting:         {models.WorkflowCompleted, models.WorkflowFailed, models.WorkflowRecovering},
	models.WorkflowFailed:            {models.WorkflowRecovering, models.WorkflowWithdrawalPending},
	models.WorkflowRecovering:        {models.WorkflowExecuting, models.WorkflowRecovered, models.WorkflowWithdrawalPending},
	models.WorkflowRecovered:         {models.WorkflowExecuting},
	models.WorkflowWithdrawalPending: {models.WorkflowWithdrawn, models.WorkflowFailed},
	models.WorkflowCompleted:         {},
	models.WorkflowWithdrawn:         {},
}

var stepTransitions = map[models.StepStatus][]models.StepStatus{
	models.StepPending:    {models.StepExecuting},
	models.StepExecuting:  {models.StepCompleted, models.StepFailed},
	models.StepFailed:     {models.StepRecovering, models.StepSkipped},
	models.StepRecovering: {models.StepExecuting, models.StepSkipped},
	models.StepRecovered:  {models.StepExecuting},
	models.StepCompleted:  {},
	models.StepSkipped:    {},
}

func canTransition[S ~string](table map[S][]S, from, to S) bool {
	return slices.Contains(table[from], to)
}

func transition[S ~string](kind string, table map[S][]S, from, to S) (S, error) {
	if canTransition(table, from, to) {
		return to, nil
	}
	allowed := make([]string, 0, len(table[from]))
	for _, s := range table[from] {
		allowed = append(allowed, string(s))
	}
	return from, &core.InvalidTransitionError{Kind: kind, From: string(from), To: string(to), Allowed: allowed}
}

func isTerminal[S ~string](table map[S][]S, s S) bool {
	next, ok := table[s]
	return ok && len(next) == 0
}

func CanTransitionWorkflow(from, to models.WorkflowStatus) bool {
	return canTransition(workflowTransitions, from, to)
}

// TransitionWorkflow returns to if from -> to is allowed, otherwise an *core.InvalidTransitionError.
func TransitionWorkflow(from, to models.WorkflowStatus) (models.WorkflowStatus, error) {
	return transition("workflow", workflowTransitions, from, to)
}

func IsTerminalWorkflow(s models.WorkflowStatus) bool {
	return isTerminal(workflowTransitions, s)
}

// WorkflowTransitions returns a copy of the allowed targets from s.
func WorkflowTransitions(s models.WorkflowStatus) []models.WorkflowStatus {
	return slices.Clone(workflowTransitions[s])
}

func CanTransitionStep(from, to models.StepStatus) bool {
	return canTransition(stepTransitions, from, to)
}

func TransitionStep(from, to models.StepStatus) (models.StepStatus, error) {
	return transition("step", stepTransitions, from, to)
}

func IsTerminalStep(s models.StepStatus) bool {
	return isTerminal(stepTransitions, s)
}

func StepTransitions(s models.StepStatus) []models.StepStatus {
	return slices.Clone(stepTransitions[s])
}
