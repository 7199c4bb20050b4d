package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/riyak972/capstone-chat/internal/domain"
	"github.com/riyak972/capstone-chat/internal/tokens"
)

// DefaultOpenAIBaseURL is the public OpenAI API endpoint.
const DefaultOpenAIBaseURL = "https://api.openai.com"

// OpenAIConfig configures the OpenAI adapter.
type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	Timeout       time.Duration
	SupportsTools bool
	HTTPClient    *http.Client
}

// OpenAI talks to the OpenAI chat completions API.
type OpenAI struct {
	apiKey     string
	baseURL    string
	tools      bool
	httpClient *http.Client
}

// NewOpenAI creates an OpenAI adapter. It is enabled when an API key is set.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAI{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		tools:      cfg.SupportsTools,
		httpClient: client,
	}
}

var _ Adapter = (*OpenAI)(nil)

func (o *OpenAI) Name() string         { return NameOpenAI }
func (o *OpenAI) Enabled() bool        { return o.apiKey != "" }
func (o *OpenAI) SupportsTools() bool  { return o.tools }
func (o *OpenAI) DefaultModel() string { return DefaultOpenAIModel }

type openAIRequest struct {
	Model         string              `json:"model"`
	Messages      []openAIMessage     `json:"messages"`
	Temperature   float64             `json:"temperature"`
	MaxTokens     int                 `json:"max_tokens,omitempty"`
	Stream        bool                `json:"stream,omitempty"`
	StreamOptions *openAIStreamOption `json:"stream_options,omitempty"`
}

type openAIStreamOption struct {
	IncludeUsage bool `json:"include_usage"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChoice struct {
	Index        int            `json:"index"`
	Message      *openAIMessage `json:"message,omitempty"`
	Delta        *openAIMessage `json:"delta,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   *openAIUsage   `json:"usage,omitempty"`
}

type openAIErrorResponse struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code,omitempty"`
	} `json:"error"`
}

// Chat sends the conversation to chat/completions, streaming when emit is set.
func (o *OpenAI) Chat(ctx context.Context, req *Request, emit Emit) (*domain.ChatResponse, error) {
	if !o.Enabled() {
		return nil, unavailable("OpenAI", "Set OPENAI_API_KEY")
	}
	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	model := NormalizeModel(NameOpenAI, req.Model, DefaultOpenAIModel)
	body := openAIRequest{
		Model:       model,
		Messages:    make([]openAIMessage, len(req.Messages)),
		Temperature: temperature(req.Temperature, DefaultTemperature, 0, 2),
		MaxTokens:   req.MaxTokens,
	}
	for i, m := range req.Messages {
		body.Messages[i] = openAIMessage{Role: string(m.Role), Content: m.Content}
	}

	if emit == nil {
		return o.complete(ctx, model, &body)
	}
	return o.stream(ctx, model, req.Messages, &body, emit)
}

func (o *OpenAI) complete(ctx context.Context, model string, body *openAIRequest) (*domain.ChatResponse, error) {
	resp, err := o.do(ctx, body)
	if err != nil {
		return nil, callFailed("OpenAI", err)
	}
	defer resp.Body.Close()

	var result openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, callFailed("OpenAI", fmt.Errorf("failed to unmarshal response: %w", err))
	}

	var content string
	if len(result.Choices) > 0 && result.Choices[0].Message != nil {
		content = result.Choices[0].Message.Content
	}
	out := &domain.ChatResponse{
		ID:       domain.NewID(NameOpenAI),
		Provider: NameOpenAI,
		Model:    model,
		Message:  domain.ChatMessage{Role: domain.RoleAssistant, Content: content},
	}
	if result.Usage != nil {
		out.Usage = &domain.Usage{InputTokens: result.Usage.PromptTokens, OutputTokens: result.Usage.CompletionTokens}
	}
	return out, nil
}

func (o *OpenAI) stream(ctx context.Context, model string, msgs []domain.ChatMessage, body *openAIRequest, emit Emit) (*domain.ChatResponse, error) {
	body.Stream = true
	body.StreamOptions = &openAIStreamOption{IncludeUsage: true}

	emitEvent(emit, domain.EventStart, nil)
	resp, err := o.do(ctx, body)
	if err != nil {
		return nil, callFailed("OpenAI", err)
	}
	defer resp.Body.Close()

	var text strings.Builder
	var usage *openAIUsage
	err = readSSEData(ctx, resp.Body, func(data string) error {
		var chunk openAIResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks
			return nil
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		for _, c := range chunk.Choices {
			if c.Delta != nil && c.Delta.Content != "" {
				text.WriteString(c.Delta.Content)
				emitText(emit, c.Delta.Content)
			}
		}
		return nil
	})
	if err != nil {
		return nil, callFailed("OpenAI", err)
	}
	emitEvent(emit, domain.EventEnd, nil)

	out := &domain.ChatResponse{
		ID:       domain.NewID(NameOpenAI),
		Provider: NameOpenAI,
		Model:    model,
		Message:  domain.ChatMessage{Role: domain.RoleAssistant, Content: text.String()},
	}
	if usage != nil {
		out.Usage = &domain.Usage{InputTokens: usage.PromptTokens, OutputTokens: usage.CompletionTokens}
	} else {
		out.Usage = &domain.Usage{InputTokens: tokens.EstimateMessages(msgs), OutputTokens: tokens.Estimate(text.String())}
	}
	return out, nil
}

func (o *OpenAI) do(ctx context.Context, body *openAIRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		var errResp openAIErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			return nil, fmt.Errorf("[%d] %s (type: %s)", resp.StatusCode, errResp.Error.Message, errResp.Error.Type)
		}
		return nil, fmt.Errorf("[%d] %s", resp.StatusCode, string(respBody))
	}
	return resp, nil
}
