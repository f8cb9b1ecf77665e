package domain

type WorkflowStats struct {
	Total         int   `json:"total"`
	Completed     int   `json:"completed"`
	Failed        int   `json:"failed"`
	Active        int   `json:"active"`
	AvgDurationMs int64 `json:"avgDurationMs"`
	SuccessRate   int   `json:"successRate"`
}

// StuckWorkflow is a non-terminal workflow whose lease holder stopped heart-beating.
type StuckWorkflow struct {
	ID         string
	ExecutorID int64
}
