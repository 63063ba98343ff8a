package httpapi

import (
	"context"

	"github.com/go-resty/resty/v2"

	"github.com/flatagents/flatagents/machine"
)

// WebhookInvoker starts a child machine execution by POSTing the outbox
// request to a remote flatagentsd instance's `/v1/executions` endpoint
// (§6 "Invoker protocol" sibling for HTTP-reachable children rather than
// subprocesses). The remote instance is expected to publish the child's
// result to the same ResultStore this process reads from (e.g. a shared
// Redis backend) — WebhookInvoker itself only needs to kick the child off,
// mirroring launch.InProcess/Subprocess's fire-and-return shape.
type WebhookInvoker struct {
	Client *resty.Client
	URL    string // e.g. "http://peer:8080/v1/executions"
}

// NewWebhookInvoker builds a WebhookInvoker against the given control-plane
// URL using resty defaults.
func NewWebhookInvoker(url string) *WebhookInvoker {
	return &WebhookInvoker{Client: resty.New(), URL: url}
}

type webhookStartRequest struct {
	Machine     string         `json:"machine"`
	Input       map[string]any `json:"input"`
	ExecutionID string         `json:"execution_id"`
}

// Launch implements launch.Invoker.
func (w *WebhookInvoker) Launch(ctx context.Context, childID machine.ExecutionId, target string, input map[string]any) error {
	_, err := w.Client.R().
		SetContext(ctx).
		SetBody(webhookStartRequest{Machine: target, Input: input, ExecutionID: string(childID)}).
		Post(w.URL)
	return err
}
