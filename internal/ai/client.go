package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/pgmentor/pgmentor/internal/pipeline"
)

// DefaultModel is used when neither the profile nor the command line picks
// one.
const DefaultModel = "claude-sonnet-4-5-20250929"

const defaultMaxTokens = 8192

// Client sends assembled prompts to the inference API. One prompt in, one
// annotated script out; no retries, no streaming.
type Client struct {
	api       *anthropic.Client
	model     string
	maxTokens int
}

func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		api:       anthropic.NewClient(apiKey),
		model:     model,
		maxTokens: defaultMaxTokens,
	}
}

// Annotate sends the prompt and returns the normalized response text.
func (c *Client) Annotate(ctx context.Context, promptText string) (string, error) {
	resp, err := c.api.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &promptText},
			}},
		},
	})
	if err != nil {
		return "", &pipeline.Error{
			Kind:   pipeline.KindInference,
			Stage:  pipeline.StageInfer,
			Detail: err.Error(),
			Err:    fmt.Errorf("calling inference API: %w", err),
		}
	}

	text := extractText(resp)
	if text == "" {
		raw, _ := json.Marshal(resp)
		return "", &pipeline.Error{
			Kind:   pipeline.KindInference,
			Stage:  pipeline.StageInfer,
			Detail: string(raw),
			Err:    fmt.Errorf("response contains no text content"),
		}
	}

	return StripFences(text), nil
}

func extractText(resp anthropic.MessagesResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text
		}
	}
	return ""
}
