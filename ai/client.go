// Package ai provides a small client for an OpenAI-compatible chat
// completions endpoint, used by the assistant feature.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

const (
	defaultEndpoint = "https://api.perplexity.ai/chat/completions"
	defaultModel    = "sonar-pro"
	systemPrompt    = "You are a helpful AI assistant."
	temperature     = 0.3
)

var (
	// ErrMissingAPIKey is returned when the client was built without a key.
	ErrMissingAPIKey = errors.New("assistant api key is not configured")
	// ErrNoContent is returned when the endpoint answered without any choices.
	ErrNoContent = errors.New("assistant returned no content")
	// ErrInvalidJSON is returned when a JSON answer could not be extracted.
	ErrInvalidJSON = errors.New("assistant did not return valid json")
)

// StatusError reports a non-2xx response from the chat endpoint.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("assistant endpoint returned %d: %s", e.Code, e.Detail)
}

// Client calls the chat completions endpoint with a fixed model and
// temperature.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a Client using the default endpoint and model. The model
// can be overridden with a non-empty value.
func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = defaultModel
	}
	return &Client{
		endpoint:   defaultEndpoint,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Chat sends the prompt and returns the assistant's text answer.
func (c *Client) Chat(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	payload, err := sonic.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	var buf bytes.Buffer
	if _, err = buf.ReadFrom(res.Body); err != nil {
		return "", err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", &StatusError{Code: res.StatusCode, Detail: strings.TrimSpace(buf.String())}
	}

	var parsed chatResponse
	if err = sonic.Unmarshal(buf.Bytes(), &parsed); err != nil {
		return "", fmt.Errorf("unable to parse assistant response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", ErrNoContent
	}
	return parsed.Choices[0].Message.Content, nil
}

// ChatJSON sends the prompt and extracts the first JSON object from the
// answer. Models often wrap JSON in prose or code fences, so the extraction
// spans from the first '{' to the last '}'.
func (c *Client) ChatJSON(ctx context.Context, prompt string) (json.RawMessage, error) {
	text, err := c.Chat(ctx, prompt)
	if err != nil {
		return nil, err
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return nil, ErrInvalidJSON
	}
	doc := json.RawMessage(text[start : end+1])
	if !sonic.Valid(doc) {
		return nil, ErrInvalidJSON
	}
	return doc, nil
}
