package ai

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/myrjola/turingtrial/internal/errors"
	"github.com/sashabaranov/go-openai"
)

const MaxTokens = 512

type OpenAIConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint, e.g. for OpenAI compatible local servers.
	BaseURL string
}

type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, newBackendError(KindConfig, errors.Wrap(ErrMissingAPIKey, "new OpenAI client"))
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT3Dot5Turbo1106
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}, nil
}

// Complete returns the assistant's reply to messages. Errors are *BackendError.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	chatMessages = append(chatMessages, openai.ChatCompletionMessage{ //nolint:exhaustruct // this is better for readability
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{ //nolint:exhaustruct // this is better for readability
			Role:    role,
			Content: m.Content,
		})
	}

	completion, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{ //nolint:exhaustruct // this is better for readability
			Model:     c.model,
			MaxTokens: MaxTokens,
			Messages:  chatMessages,
		},
	)
	if err != nil {
		return "", newBackendError(classifyOpenAIError(err), errors.Wrap(err, "create chat completion",
			slog.String("model", c.model)))
	}
	if len(completion.Choices) == 0 {
		return "", newBackendError(KindMalformed, errors.New("completion without choices",
			slog.String("id", completion.ID)))
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", newBackendError(KindMalformed, errors.New("empty completion",
			slog.String("id", completion.ID),
			slog.String("finish_reason", string(completion.Choices[0].FinishReason))))
	}
	return content, nil
}

func classifyOpenAIError(err error) ErrorKind {
	var (
		apiErr       *openai.APIError
		requestErr   *openai.RequestError
		syntaxErr    *json.SyntaxError
		unmarshalErr *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &apiErr):
		return classifyStatus(apiErr.HTTPStatusCode)
	case errors.As(err, &requestErr):
		return classifyStatus(requestErr.HTTPStatusCode)
	case errors.As(err, &syntaxErr), errors.As(err, &unmarshalErr):
		return KindMalformed
	default:
		return KindNetwork
	}
}
