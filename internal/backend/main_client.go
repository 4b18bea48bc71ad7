package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/apto-as/trinitas-core/internal/confidence"
	heikeErrors "github.com/apto-as/trinitas-core/internal/errors"
	"github.com/apto-as/trinitas-core/internal/task"
)

// mainRequest / mainResponse model the opaque MAIN protocol from spec §6:
// the core sends {persona, task, context, force_executor?} and expects
// {success, result|error, persona, executor, duration, timestamp}. MAIN is
// treated as opaque by every other component; only this client knows its
// shape.
type mainRequest struct {
	Persona       string         `json:"persona"`
	Task          string         `json:"task"`
	Context       map[string]any `json:"context,omitempty"`
	ForceExecutor string         `json:"force_executor,omitempty"`
}

type mainResponse struct {
	Success  bool   `json:"success"`
	Result   string `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
	Persona  string `json:"persona,omitempty"`
	Executor string `json:"executor,omitempty"`
}

// MainClient is the C1 Backend Client for the MAIN backend. It wraps the
// opaque request/response envelope from spec §6 in a single text message
// sent over the Anthropic Messages API, the way the teacher's anthropic
// provider wraps chat messages.
type MainClient struct {
	backend Backend
	client  anthropic.Client
}

func NewMainClient(b Backend) *MainClient {
	opts := []option.RequestOption{option.WithAPIKey(b.Credentials)}
	if b.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(b.Endpoint))
	}
	return &MainClient{backend: b, client: anthropic.NewClient(opts...)}
}

func (c *MainClient) ID() ID           { return c.backend.ID }
func (c *MainClient) Backend() Backend { return c.backend }

func (c *MainClient) Execute(ctx context.Context, t *task.Task) (*task.ExecutionResult, error) {
	if !envelopeCheck(c.backend, t) {
		return nil, heikeErrors.TooLarge(fmt.Sprintf("task %s exceeds MAIN max_tokens", t.ID))
	}

	timeout := c.backend.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := mainRequest{
		Persona:       t.Hints.ForcePersona,
		Task:          t.Description,
		Context:       t.Context,
		ForceExecutor: t.Hints.ForceExecutor,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, heikeErrors.Internal("marshal MAIN request: " + err.Error())
	}

	start := time.Now()
	msg, err := c.client.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.backend.Model),
		MaxTokens: int64(maxTokensOrDefault(c.backend.MaxTokens)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(string(body))),
		},
	})
	duration := time.Since(start)

	if err != nil {
		return c.transportFailure(t, duration, err), nil
	}

	var content string
	for _, block := range msg.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += b.Text
		}
	}

	var resp mainResponse
	toolsInvoked := false
	if jsonErr := json.Unmarshal([]byte(content), &resp); jsonErr != nil {
		// MAIN did not honour the envelope; treat the raw text as the result.
		resp = mainResponse{Success: true, Result: content, Executor: string(c.backend.ID)}
	}

	tokensUsed := 0
	if msg.Usage.OutputTokens > 0 {
		tokensUsed = int(msg.Usage.InputTokens + msg.Usage.OutputTokens)
	}

	result := &task.ExecutionResult{
		TaskID:     t.ID,
		ExecutorID: string(c.backend.ID),
		TokensUsed: tokensUsed,
		Duration:   duration,
	}

	if !resp.Success {
		result.Errors = []task.ErrorRecord{{Kind: task.ErrorKindInternal, Message: resp.Error}}
		return result, nil
	}

	result.Payload = resp.Result
	result.Confidence = confidence.Compute(t.Complexity, toolsInvoked, len(resp.Result))
	return result, nil
}

func (c *MainClient) transportFailure(t *task.Task, duration time.Duration, err error) *task.ExecutionResult {
	return &task.ExecutionResult{
		TaskID:     t.ID,
		ExecutorID: string(c.backend.ID),
		Duration:   duration,
		Errors:     []task.ErrorRecord{{Kind: task.ErrorKindTransport, Message: err.Error()}},
	}
}

func (c *MainClient) Probe(ctx context.Context) (HealthRecord, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := c.client.Messages.New(probeCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.backend.Model),
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	latency := time.Since(start)

	record := HealthRecord{BackendID: c.backend.ID, LastProbeAt: time.Now(), LastLatency: latency}
	if err != nil {
		return record, err
	}
	record.Healthy = true
	return record, nil
}

func maxTokensOrDefault(v int) int {
	if v <= 0 {
		return 1024
	}
	return v
}
