package machine

import "time"

// Snapshot is the persisted, resumable record of one execution's progress
// (§3 "MachineSnapshot", §6 wire format). It is written at each configured
// checkpoint event and is what the persistence backend stores and the
// interpreter resumes from.
type Snapshot struct {
	ExecutionId        ExecutionId     `json:"execution_id"`
	MachineName        string          `json:"machine_name"`
	SpecVersion        string          `json:"spec_version"`
	CurrentState       string          `json:"current_state"`
	Context            map[string]any  `json:"context"`
	Step               int             `json:"step"`
	CreatedAt          time.Time       `json:"created_at"`
	Event              string          `json:"event,omitempty"`
	Output             map[string]any  `json:"output,omitempty"`
	ParentExecutionId  ExecutionId     `json:"parent_execution_id,omitempty"`
	PendingLaunches    []*LaunchIntent `json:"pending_launches,omitempty"`
	TotalAPICalls      int             `json:"total_api_calls,omitempty"`
	TotalCost          float64         `json:"total_cost,omitempty"`
}

// Checkpoint event names (§3, §6).
const (
	EventMachineStart = "machine_start"
	EventStateEnter   = "state_enter"
	EventMachineEnd   = "machine_end"
	EventError        = "error"
)

// LaunchIntent records a child machine that must be started exactly once
// across crash/resume cycles (§3, §4.H). It lives inside the owning parent
// snapshot's PendingLaunches slice.
type LaunchIntent struct {
	ExecutionId ExecutionId    `json:"execution_id"`
	Machine     string         `json:"machine"`
	Input       map[string]any `json:"input"`
	Launched    bool           `json:"launched"`
}

// AgentResult is the uniform return value of an executor call (§3, §4.B).
// error == nil iff the call succeeded.
type AgentResult struct {
	Output       map[string]any `json:"output,omitempty"`
	Content      string         `json:"content,omitempty"`
	Usage        *Usage         `json:"usage,omitempty"`
	Cost         float64        `json:"cost,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Error        *AgentError    `json:"error,omitempty"`
	RateLimit    *RateLimitInfo `json:"rate_limit,omitempty"`
	ProviderData map[string]any `json:"provider_data,omitempty"`
}

// Usage captures token accounting reported by an executor.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// RateLimitInfo carries a provider's rate-limit hint, consumed only by the
// retry strategy's RetryAfter handling (§4.F).
type RateLimitInfo struct {
	RetryAfter float64 `json:"retry_after,omitempty"` // seconds
}

// AgentErrorCode is the taxonomy surfaced in AgentResult.Error.Code (§4.B).
type AgentErrorCode string

const (
	ErrCodeRateLimit      AgentErrorCode = "rate_limit"
	ErrCodeTimeout        AgentErrorCode = "timeout"
	ErrCodeServerError    AgentErrorCode = "server_error"
	ErrCodeInvalidRequest AgentErrorCode = "invalid_request"
	ErrCodeAuthError      AgentErrorCode = "auth_error"
	ErrCodeContentFilter  AgentErrorCode = "content_filter"
	ErrCodeContextLength  AgentErrorCode = "context_length"
	ErrCodeModelUnavail   AgentErrorCode = "model_unavailable"
)

// AgentError is the sole channel by which agent-level failure reaches the
// interpreter (§4.B).
type AgentError struct {
	Code      AgentErrorCode `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
}

func (e *AgentError) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Code) + ": " + e.Message
}
