package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"log/slog"

	"github.com/myrjola/turingtrial/internal/errors"
	"github.com/sashabaranov/go-openai"
)

// GenerateImage draws a scene backdrop with DALL-E and returns the decoded PNG. Errors are *BackendError.
func (c *OpenAIClient) GenerateImage(ctx context.Context, prompt string) (image.Image, error) {
	response, err := c.client.CreateImage(ctx, openai.ImageRequest{ //nolint:exhaustruct // this is better for readability
		Model:          openai.CreateImageModelDallE3,
		Prompt:         prompt,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		N:              1,
	})
	if err != nil {
		return nil, newBackendError(classifyOpenAIError(err), errors.Wrap(err, "create image"))
	}
	if len(response.Data) == 0 {
		return nil, newBackendError(KindMalformed, errors.New("image response without data"))
	}
	imgBytes, err := base64.StdEncoding.DecodeString(response.Data[0].B64JSON)
	if err != nil {
		return nil, newBackendError(KindMalformed, errors.Wrap(err, "decode base64 image"))
	}
	img, err := png.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		return nil, newBackendError(KindMalformed, errors.Wrap(err, "decode PNG",
			slog.Int("bytes", len(imgBytes))))
	}
	return img, nil
}
