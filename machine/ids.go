package machine

import "github.com/google/uuid"

// ExecutionId uniquely identifies one machine execution, process-wide (§3).
type ExecutionId string

// NewExecutionId mints a fresh, process-wide unique ExecutionId (§3).
func NewExecutionId() ExecutionId {
	return ExecutionId(uuid.New().String())
}
