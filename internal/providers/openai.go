package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GeminiAPIBase is Gemini's OpenAI-compatible endpoint.
const GeminiAPIBase = "https://generativelanguage.googleapis.com/v1beta/openai"

// OpenAIProvider implements Provider for OpenAI-compatible chat completion
// APIs (Gemini, OpenAI, Groq, OpenRouter, ...). It does not retry; the
// dispatcher owns retries and pacing.
type OpenAIProvider struct {
	name         string
	apiKey       string
	apiBase      string
	chatPath     string
	defaultModel string
	temperature  float64
	maxTokens    int
	client       *http.Client
}

// Options tunes an OpenAIProvider.
type Options struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

func NewOpenAIProvider(name, apiKey, apiBase, defaultModel string, opts Options) *OpenAIProvider {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	apiBase = strings.TrimRight(apiBase, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	return &OpenAIProvider{
		name:         name,
		apiKey:       apiKey,
		apiBase:      apiBase,
		chatPath:     "/chat/completions",
		defaultModel: defaultModel,
		temperature:  opts.Temperature,
		maxTokens:    opts.MaxTokens,
		client:       &http.Client{Timeout: opts.Timeout},
	}
}

// NewGeminiProvider targets Gemini through its OpenAI-compatible surface.
func NewGeminiProvider(apiKey, model string, opts Options) *OpenAIProvider {
	return NewOpenAIProvider("gemini", apiKey, GeminiAPIBase, model, opts)
}

func (p *OpenAIProvider) Name() string         { return p.name }
func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage,omitempty"`
}

func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	body := p.buildRequestBody(req)

	respBody, err := p.doRequest(ctx, body)
	if err != nil {
		return "", err
	}
	defer respBody.Close()

	var resp openAIResponse
	if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: empty response", p.name)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%s: empty reply (finish_reason=%s)", p.name, resp.Choices[0].FinishReason)
	}
	return text, nil
}

func (p *OpenAIProvider) buildRequestBody(req GenerateRequest) openAIRequest {
	msgs := make([]openAIMessage, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, openAIMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.History {
		msgs = append(msgs, openAIMessage{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, openAIMessage{Role: RoleUser, Content: req.Message})

	body := openAIRequest{
		Model:     p.defaultModel,
		Messages:  msgs,
		MaxTokens: p.maxTokens,
	}
	if p.temperature > 0 {
		t := p.temperature
		body.Temperature = &t
	}
	return body
}

func (p *OpenAIProvider) doRequest(ctx context.Context, body interface{}) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", p.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+p.chatPath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", p.name, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", p.name, err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		retryAfter := ParseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			Body:       fmt.Sprintf("%s: %s", p.name, string(respBody)),
			RetryAfter: retryAfter,
		}
	}

	return resp.Body, nil
}
