package launch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/flatagents/flatagents/machine"
)

// subprocessRequest is the stdin payload of the invoker protocol (§6):
// `{ref, config, input, context}`.
type subprocessRequest struct {
	Ref     string         `json:"ref"`
	Config  string         `json:"config,omitempty"`
	Input   map[string]any `json:"input"`
	Context map[string]any `json:"context,omitempty"`
}

// subprocessResponse is the stdout payload: an AgentResult-like shape or a
// MachineResult. Only the `output` and `error` fields are decoded; any other
// field is dropped.
type subprocessResponse struct {
	Output map[string]any       `json:"output,omitempty"`
	Error  *subprocessErrorBody `json:"error,omitempty"`
}

type subprocessErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Subprocess invokes a child machine by running an external command with
// the request JSON on stdin and reading the response from stdout; a
// non-zero exit is a launch failure (§6 "Invoker protocol"). It runs the
// child to completion synchronously inside Launch's goroutine rather than
// detaching, since an external process' own lifetime is already decoupled
// from the parent's.
type Subprocess struct {
	// Command builds the exec.Cmd for one invocation; the command must read
	// the request from its Stdin and write the response to its Stdout.
	Command func(ctx context.Context, target string) *exec.Cmd
	Results machine.ResultStore
}

func (s *Subprocess) Launch(ctx context.Context, childID machine.ExecutionId, target string, input map[string]any) error {
	cmd := s.Command(ctx, target)

	req := subprocessRequest{Ref: target, Input: input}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("launch/subprocess: marshal request: %w", err)
	}
	cmd.Stdin = bytes.NewReader(payload)

	go func() {
		out, runErr := cmd.Output()
		result := map[string]any{}
		if runErr != nil {
			result["error"] = map[string]any{"type": "launch", "code": "SUBPROCESS_FAILED", "message": runErr.Error()}
		} else {
			var resp subprocessResponse
			if decErr := json.Unmarshal(out, &resp); decErr != nil {
				result["error"] = map[string]any{"type": "launch", "code": "SUBPROCESS_BAD_RESPONSE", "message": decErr.Error()}
			} else if resp.Error != nil {
				result["error"] = map[string]any{"type": "agent", "code": resp.Error.Code, "message": resp.Error.Message}
			} else {
				result["output"] = resp.Output
			}
		}
		if s.Results != nil {
			_ = s.Results.Write(context.WithoutCancel(ctx), ResultKey(childID), result)
		}
	}()

	return nil
}
