package interpreter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// ChatClient is the subset of the OpenAI client used here.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig configures the hosted model.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIModel implements Model with a chat completion in JSON mode.
type OpenAIModel struct {
	client ChatClient
	model  string
	logger *slog.Logger
}

// NewOpenAIModel builds a client from cfg.
func NewOpenAIModel(cfg OpenAIConfig, logger *slog.Logger) *OpenAIModel {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return NewOpenAIModelWithClient(openai.NewClientWithConfig(clientCfg), cfg.Model, logger)
}

// NewOpenAIModelWithClient wraps an existing client.
func NewOpenAIModelWithClient(client ChatClient, model string, logger *slog.Logger) *OpenAIModel {
	if model == "" {
		model = openai.GPT4oMini
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIModel{client: client, model: model, logger: logger}
}

// Complete sends the conversation and returns the raw message content.
func (m *OpenAIModel) Complete(ctx context.Context, req Request) (string, error) {
	system, err := systemPrompt(req.Context)
	if err != nil {
		return "", err
	}
	messages := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: system}}
	for _, t := range req.History {
		role := openai.ChatMessageRoleUser
		if t.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    messages,
		Temperature: 0.1,
		MaxTokens:   1000,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", serviceError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &AIInterpretationError{Reason: "service error", Retryable: true, Err: ErrEmptyCompletion}
	}
	m.logger.Debug("chat completion", slog.String("model", m.model), slog.Int("total_tokens", resp.Usage.TotalTokens))
	return resp.Choices[0].Message.Content, nil
}

func serviceError(err error) error {
	out := &AIInterpretationError{Reason: "service error", Retryable: true, Err: err}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		out.StatusCode = apiErr.HTTPStatusCode
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			out.Reason = "rate limited"
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		out.Reason = "timeout"
	}
	return out
}

const promptTemplate = `You convert accounting commands into voucher JSON.
Reply with exactly one JSON object and nothing else, in one of two shapes.

Structured voucher:
{"voucherType": string, "party": string (optional), "amount": number, "narration": string,
 "entries": [{"ledger": string, "amount": number, "type": "debit"|"credit",
              "stockItem": string (optional), "quantity": number (optional), "rate": number (optional)}]}

Clarification, when the command is ambiguous or lacks an amount:
{"needsClarification": true, "questions": [string], "suggestedVoucherType": string (optional)}

Use only these ledger names where possible and these voucher types:
%s
Do not include tax lines; tax is computed by the system.`

func systemPrompt(b Bundle) (string, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("interpreter: encode context: %w", err)
	}
	return fmt.Sprintf(promptTemplate, raw), nil
}
