package models

// WorkflowStatus is the lifecycle status of a whole workflow.
type WorkflowStatus string

const (
	WorkflowCreated           WorkflowStatus = "CREATED"
	WorkflowPending           WorkflowStatus = "PENDING"
	WorkflowExecuting         WorkflowStatus = "EXECUTING"
	WorkflowCompleted         WorkflowStatus = "COMPLETED"
	WorkflowFailed            WorkflowStatus = "FAILED"
	WorkflowRecovering        WorkflowStatus = "RECOVERING"
	WorkflowRecovered         WorkflowStatus = "RECOVERED"
	WorkflowWithdrawalPending WorkflowStatus = "WITHDRAWAL_PENDING"
	WorkflowWithdrawn         WorkflowStatus = "WITHDRAWN"
)

// AllWorkflowStatuses lists every workflow status in declaration order.
var AllWorkflowStatuses = []WorkflowStatus{
	WorkflowCreated,
	WorkflowPending,
	WorkflowExecuting,
	WorkflowCompleted,
	WorkflowFailed,
	WorkflowRecovering,
	WorkflowRecovered,
	WorkflowWithdrawalPending,
	WorkflowWithdrawn,
}

// StepStatus is the status of a single step attempt.
type StepStatus string

const (
	StepPending    StepStatus = "PENDING"
	StepExecuting  StepStatus = "EXECUTING"
	StepCompleted  StepStatus = "COMPLETED"
	StepFailed     StepStatus = "FAILED"
	StepRecovering StepStatus = "RECOVERING"
	StepRecovered  StepStatus = "RECOVERED"
	StepSkipped    StepStatus = "SKIPPED"
)

var AllStepStatuses = []StepStatus{
	StepPending,
	StepExecuting,
	StepCompleted,
	StepFailed,
	StepRecovering,
	StepRecovered,
	StepSkipped,
}
