package agentexec

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/flatagents/flatagents/machine"
)

// HTTPExecutor is a concrete machine.Executor that POSTs an agent state's
// rendered `input` to a configured webhook URL and maps the HTTP response
// into an AgentResult (§4.B).
type HTTPExecutor struct {
	client *resty.Client
	url    string
}

// HTTPExecutorConfig configures one agent endpoint's HTTP call behavior.
type HTTPExecutorConfig struct {
	URL         string
	Timeout     time.Duration
	MaxRetries  int
	RetryWaitMS int
	Debug       bool
}

// NewHTTPExecutor builds a resty-backed executor for one agent endpoint.
func NewHTTPExecutor(cfg HTTPExecutorConfig) *HTTPExecutor {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	retryWait := cfg.RetryWaitMS
	if retryWait == 0 {
		retryWait = 100
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(time.Duration(retryWait) * time.Millisecond).
		SetDebug(cfg.Debug)

	return &HTTPExecutor{client: client, url: cfg.URL}
}

// httpAgentResponse is the wire shape an agent webhook is expected to
// return: an AgentResult-shaped JSON body (§3 "AgentResult").
type httpAgentResponse struct {
	Output       map[string]any        `json:"output"`
	Content      string                `json:"content"`
	Usage        *machine.Usage        `json:"usage"`
	Cost         float64               `json:"cost"`
	FinishReason string                `json:"finish_reason"`
	Error        *machine.AgentError   `json:"error"`
	RateLimit    *machine.RateLimitInfo `json:"rate_limit"`
	ProviderData map[string]any        `json:"provider_data"`
}

// Execute implements machine.Executor. Transport-level failures (network
// errors, and any 4xx/5xx status, whose error is derived from the status
// code without decoding the body) are translated into an
// AgentResult.Error rather than a returned Go error, per §4.B's "Executors
// must translate transport-level exceptions into an AgentResult.error
// rather than propagating".
func (h *HTTPExecutor) Execute(ctx context.Context, input map[string]any) (*machine.AgentResult, error) {
	var body httpAgentResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(input).
		SetResult(&body).
		Post(h.url)

	if err != nil {
		return &machine.AgentResult{Error: &machine.AgentError{
			Code:      machine.ErrCodeServerError,
			Message:   err.Error(),
			Retryable: true,
		}}, nil
	}

	if resp.IsError() {
		return &machine.AgentResult{Error: &machine.AgentError{
			Code:      statusToErrorCode(resp.StatusCode()),
			Message:   resp.String(),
			Retryable: resp.StatusCode() >= 500 || resp.StatusCode() == 429,
		}}, nil
	}

	return &machine.AgentResult{
		Output:       body.Output,
		Content:      body.Content,
		Usage:        body.Usage,
		Cost:         body.Cost,
		FinishReason: body.FinishReason,
		Error:        body.Error,
		RateLimit:    body.RateLimit,
		ProviderData: body.ProviderData,
	}, nil
}

func statusToErrorCode(status int) machine.AgentErrorCode {
	switch {
	case status == 401 || status == 403:
		return machine.ErrCodeAuthError
	case status == 408:
		return machine.ErrCodeTimeout
	case status == 429:
		return machine.ErrCodeRateLimit
	case status == 400 || status == 422:
		return machine.ErrCodeInvalidRequest
	case status >= 500:
		return machine.ErrCodeServerError
	default:
		return machine.ErrCodeServerError
	}
}
