package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/apto-as/trinitas-core/internal/confidence"
	heikeErrors "github.com/apto-as/trinitas-core/internal/errors"
	"github.com/apto-as/trinitas-core/internal/task"
)

// OpenAICompatClient implements the OpenAI-style chat-completions protocol
// from spec §6 and is reused for LOCAL, HEADLESS_A, and HEADLESS_B the same
// way the teacher's single openai.Provider backs both its "openai" and
// "ollama" registry entries (internal/model/router.go createProvider) -
// only the endpoint/credentials/model differ per Backend.
type OpenAICompatClient struct {
	backend Backend
	client  *openai.Client
}

func NewOpenAICompatClient(b Backend) *OpenAICompatClient {
	cfg := openai.DefaultConfig(b.Credentials)
	if b.Endpoint != "" {
		cfg.BaseURL = strings.TrimSuffix(b.Endpoint, "/")
	}
	return &OpenAICompatClient{backend: b, client: openai.NewClientWithConfig(cfg)}
}

func (c *OpenAICompatClient) ID() ID           { return c.backend.ID }
func (c *OpenAICompatClient) Backend() Backend { return c.backend }

func (c *OpenAICompatClient) Execute(ctx context.Context, t *task.Task) (*task.ExecutionResult, error) {
	if !envelopeCheck(c.backend, t) {
		return nil, heikeErrors.TooLarge(fmt.Sprintf("task %s exceeds %s max_tokens", t.ID, c.backend.ID))
	}

	timeout := c.backend.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.backend.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: t.Description},
		},
		Temperature: 0.2,
		TopP:        1,
	}
	if c.backend.MaxTokens > 0 {
		req.MaxTokens = c.backend.MaxTokens
	}

	toolsInvoked := len(t.RequiredTools) > 0
	for _, name := range t.RequiredTools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:       name,
				Parameters: map[string]any{"type": "object", "properties": map[string]any{}},
			},
		})
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(callCtx, req)
	duration := time.Since(start)

	if err != nil {
		return &task.ExecutionResult{
			TaskID:     t.ID,
			ExecutorID: string(c.backend.ID),
			Duration:   duration,
			Errors:     []task.ErrorRecord{{Kind: task.ErrorKindTransport, Message: err.Error()}},
		}, nil
	}
	if len(resp.Choices) == 0 {
		return &task.ExecutionResult{
			TaskID:     t.ID,
			ExecutorID: string(c.backend.ID),
			Duration:   duration,
			Errors:     []task.ErrorRecord{{Kind: task.ErrorKindInternal, Message: "no choices returned"}},
		}, nil
	}

	content := resp.Choices[0].Message.Content
	tokensUsed := 0
	if resp.Usage.TotalTokens > 0 {
		tokensUsed = resp.Usage.TotalTokens
	}

	return &task.ExecutionResult{
		TaskID:     t.ID,
		ExecutorID: string(c.backend.ID),
		Payload:    content,
		TokensUsed: tokensUsed,
		Duration:   duration,
		Confidence: confidence.Compute(t.Complexity, toolsInvoked, len(content)),
	}, nil
}

func (c *OpenAICompatClient) Probe(ctx context.Context) (HealthRecord, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := c.client.ListModels(probeCtx)
	latency := time.Since(start)

	record := HealthRecord{BackendID: c.backend.ID, LastProbeAt: time.Now(), LastLatency: latency}
	if err != nil {
		return record, err
	}
	record.Healthy = true
	return record, nil
}
