package ai

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/myrjola/turingtrial/internal/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash"

type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, newBackendError(KindConfig, errors.Wrap(ErrMissingAPIKey, "new Gemini client"))
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, newBackendError(KindConfig, errors.Wrap(err, "new Gemini client"))
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiClient{client: client, model: model}, nil
}

func (c *GeminiClient) Close() error {
	if err := c.client.Close(); err != nil {
		return errors.Wrap(err, "close Gemini client")
	}
	return nil
}

// Complete replays every message but the last as chat history and sends the last one. Errors are *BackendError.
func (c *GeminiClient) Complete(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", newBackendError(KindConfig, errors.New("no messages to complete"))
	}
	model := c.client.GenerativeModel(c.model)
	model.SystemInstruction = &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(systemPrompt)}}
	model.SetMaxOutputTokens(MaxTokens)

	history, last := geminiHistory(messages)
	chat := model.StartChat()
	chat.History = history
	resp, err := chat.SendMessage(ctx, last...)
	if err != nil {
		return "", newBackendError(classifyGeminiError(err), errors.Wrap(err, "send Gemini message",
			slog.String("model", c.model)))
	}
	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return "", newBackendError(KindMalformed, errors.New("empty Gemini response"))
	}
	return text, nil
}

// geminiHistory converts messages to Gemini contents. Consecutive messages with the same role are merged into one
// content because Gemini expects user and model turns to alternate. The parts of the final user turn are
// returned separately so they can be sent.
func geminiHistory(messages []Message) ([]*genai.Content, []genai.Part) {
	var contents []*genai.Content
	for _, m := range messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, genai.Text(m.Content))
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	last := contents[len(contents)-1]
	if last.Role != "user" {
		return contents, []genai.Part{genai.Text("Please continue.")}
	}
	return contents[:len(contents)-1], last.Parts
}

func responseText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				text.WriteString(string(txt))
			}
		}
	}
	return text.String()
}

func classifyGeminiError(err error) ErrorKind {
	var (
		apiErr     *googleapi.Error
		blockedErr *genai.BlockedError
	)
	switch {
	case errors.As(err, &blockedErr):
		return KindMalformed
	case errors.As(err, &apiErr):
		return classifyStatus(apiErr.Code)
	default:
		return KindNetwork
	}
}
