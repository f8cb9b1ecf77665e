package models

type StepType string

const (
	StepOnramp   StepType = "onramp"
	StepBridge   StepType = "bridge"
	StepSwap     StepType = "swap"
	StepTransfer StepType = "transfer"
)

// NetworkID identifies one of the external networks a step executes against.
type NetworkID string

const (
	NetworkA NetworkID = "chain_a"
	NetworkB NetworkID = "chain_b"
	NetworkC NetworkID = "chain_c"
)

// DefaultBridgeDestination is used when a bridge step omits its destination network.
const DefaultBridgeDestination = NetworkB

// DefaultSwapToken is used when a swap step omits its destination token.
const DefaultSwapToken = "WETH"

// FailureKind classifies an adapter failure for the recovery engine.
type FailureKind string

const (
	FailureTransient FailureKind = "transient"
	FailurePermanent FailureKind = "permanent"
)

// AuditStatus is the outcome recorded against an audit event.
type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditFailure AuditStatus = "failure"
	AuditPending AuditStatus = "pending"
	AuditInfo    AuditStatus = "info"
)
