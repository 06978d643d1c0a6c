package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
	model          = "claude-3-haiku-20240307"
	maxTokens      = 256
)

// ErrNoCommand is returned when the model could not map the input to an
// operator command.
var ErrNoCommand = errors.New("no command recognised")

const systemPrompt = `You translate messages from mushroom farm operators into exactly one slash command.
Available commands:
/batch <batchId>                          show a batch
/stage <batchId> <STAGE> [notes]          STAGE is one of SPAWN, INCUBATION, FRUITING, HARVEST
/harvest <batchId> <yieldKg> <quality 1-10> [notes]
/env <batchId> temp=<c> hum=<%> co2=<ppm> light=<lux>   only include readings that were mentioned
/log <batchId> <action> [value] [notes]   action is one of watering, co2_adjustment, temperature_check, humidity_check, light_adjustment, contamination_check, substrate_check, other
/expiry                                   list expired and expiring batches
/predict <batchId>                        harvest prediction
Answer with the command only, on a single line. If nothing fits, answer NONE.`

// Client turns free-form operator text into slash commands.
type Client interface {
	TranslateToCommand(ctx context.Context, input string) (string, error)
}

type anthropicClient struct {
	httpClient *resty.Client
}

// Option customises the client.
type Option func(*resty.Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *resty.Client) {
		c.SetBaseURL(strings.TrimSuffix(url, "/"))
	}
}

// NewClient creates a configured Anthropic client.
func NewClient(apiKey string, opts ...Option) Client {
	client := resty.New().
		SetBaseURL(defaultBaseURL).
		SetHeader("x-api-key", apiKey).
		SetHeader("anthropic-version", apiVersion).
		SetHeader("content-type", "application/json").
		SetTimeout(15 * time.Second)

	for _, opt := range opts {
		opt(client)
	}

	return &anthropicClient{httpClient: client}
}

type messageRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// TranslateToCommand asks the model for the slash command matching input.
func (c *anthropicClient) TranslateToCommand(ctx context.Context, input string) (string, error) {
	reqBody := messageRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    systemPrompt,
		Messages:  []message{{Role: "user", Content: input}},
	}

	var respBody messageResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(reqBody).
		SetResult(&respBody).
		Post("/v1/messages")
	if err != nil {
		return "", fmt.Errorf("anthropic api call: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("anthropic api error: status=%d, body=%s", resp.StatusCode(), resp.String())
	}
	if len(respBody.Content) == 0 {
		return "", fmt.Errorf("empty response from ai")
	}

	return extractCommand(respBody.Content[0].Text)
}

// extractCommand keeps the first line that looks like a slash command.
func extractCommand(text string) (string, error) {
	text = strings.Trim(strings.TrimSpace(text), "`")
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "/") {
			return line, nil
		}
	}
	return "", ErrNoCommand
}
