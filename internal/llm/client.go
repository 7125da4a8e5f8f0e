package llm

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"receptionist/internal/config"
	"receptionist/pkg/circuitbreaker"
	"receptionist/pkg/metrics"
)

// Message is one turn of a chat completion request.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// ChatClient abstracts the model provider behind a single completion call.
// wantJSON forces the model into strict-JSON output mode.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, messages []Message, wantJSON bool) (string, error)
}

var ErrEmptyCompletion = errors.New("llm returned empty completion")

// OpenAIClient is the production ChatClient, guarded by a circuit breaker
// so a dead provider fails fast instead of stalling every message.
type OpenAIClient struct {
	client *openai.Client
	model  string
	cb     *circuitbreaker.CircuitBreaker
	logger *zap.Logger
}

func NewOpenAIClient(cfg config.OpenAIConfig, logger *zap.Logger) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	// 熔断器：连续失败3次后打开，30秒后半开试探
	cbConfig := circuitbreaker.Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 2,
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		cb:     circuitbreaker.NewCircuitBreaker(cbConfig),
		logger: logger,
	}
}

func (c *OpenAIClient) CreateChatCompletion(ctx context.Context, messages []Message, wantJSON bool) (string, error) {
	var content string

	err := c.cb.Execute(func() error {
		start := time.Now()

		req := openai.ChatCompletionRequest{
			Model:    c.model,
			Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
		}
		for _, m := range messages {
			req.Messages = append(req.Messages, openai.ChatCompletionMessage{
				Role:    m.Role,
				Content: m.Content,
			})
		}
		if wantJSON {
			req.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			}
		}

		purpose := "completion"
		if wantJSON {
			purpose = "json"
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			metrics.RecordLLMCallLatency(purpose, "error", time.Since(start))
			return err
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			metrics.RecordLLMCallLatency(purpose, "empty", time.Since(start))
			return ErrEmptyCompletion
		}

		metrics.RecordLLMCallLatency(purpose, "success", time.Since(start))
		content = resp.Choices[0].Message.Content
		return nil
	})

	if err != nil {
		c.logger.Warn("LLM completion failed",
			zap.Bool("want_json", wantJSON),
			zap.Error(err),
		)
		return "", err
	}

	return content, nil
}
