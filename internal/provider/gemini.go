package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/riyak972/capstone-chat/internal/domain"
	"github.com/riyak972/capstone-chat/internal/tokens"
)

// DefaultGeminiBaseURL is the public Generative Language API endpoint.
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiConfig configures the Gemini adapter.
type GeminiConfig struct {
	APIKey        string
	BaseURL       string
	Timeout       time.Duration
	SupportsTools bool
	HTTPClient    *http.Client
}

// Gemini talks to the Gemini generateContent REST API.
type Gemini struct {
	apiKey     string
	baseURL    string
	tools      bool
	httpClient *http.Client
}

// NewGemini creates a Gemini adapter. It is enabled when an API key is set.
func NewGemini(cfg GeminiConfig) *Gemini {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Gemini{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		tools:      cfg.SupportsTools,
		httpClient: client,
	}
}

var _ Adapter = (*Gemini)(nil)

func (g *Gemini) Name() string         { return NameGemini }
func (g *Gemini) Enabled() bool        { return g.apiKey != "" }
func (g *Gemini) SupportsTools() bool  { return g.tools }
func (g *Gemini) DefaultModel() string { return DefaultGeminiModel }

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata,omitempty"`
}

func (r *geminiResponse) text() string {
	var sb strings.Builder
	if len(r.Candidates) > 0 {
		for _, p := range r.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

type geminiErrorResponse struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func buildGeminiRequest(msgs []domain.ChatMessage, temp float64, maxTokens int) *geminiRequest {
	req := &geminiRequest{GenerationConfig: geminiGenerationConfig{Temperature: temp, MaxOutputTokens: maxTokens}}
	var system []geminiPart
	for _, m := range msgs {
		if m.Role == domain.RoleSystem {
			system = append(system, geminiPart{Text: m.Content})
			continue
		}
		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "model"
		}
		req.Contents = append(req.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	if len(system) > 0 {
		req.SystemInstruction = &geminiContent{Parts: system}
	}
	return req
}

// Chat calls generateContent, or streamGenerateContent when emit is set.
func (g *Gemini) Chat(ctx context.Context, req *Request, emit Emit) (*domain.ChatResponse, error) {
	if !g.Enabled() {
		return nil, unavailable("Gemini", "Set GEMINI_API_KEY")
	}
	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	model := NormalizeModel(NameGemini, req.Model, DefaultGeminiModel)
	body := buildGeminiRequest(req.Messages, temperature(req.Temperature, DefaultTemperature, 0, 2), req.MaxTokens)

	var (
		text  string
		usage *domain.Usage
	)
	if emit == nil {
		resp, err := g.do(ctx, model, "generateContent", body)
		if err != nil {
			return nil, callFailed("Gemini", err)
		}
		defer resp.Body.Close()
		var result geminiResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, callFailed("Gemini", fmt.Errorf("failed to unmarshal response: %w", err))
		}
		text = result.text()
		if result.UsageMetadata != nil {
			usage = &domain.Usage{InputTokens: result.UsageMetadata.PromptTokenCount, OutputTokens: result.UsageMetadata.CandidatesTokenCount}
		}
	} else {
		emitEvent(emit, domain.EventStart, nil)
		resp, err := g.do(ctx, model, "streamGenerateContent", body)
		if err != nil {
			return nil, callFailed("Gemini", err)
		}
		defer resp.Body.Close()
		var sb strings.Builder
		err = readSSEData(ctx, resp.Body, func(data string) error {
			var chunk geminiResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return nil
			}
			if chunk.UsageMetadata != nil {
				usage = &domain.Usage{InputTokens: chunk.UsageMetadata.PromptTokenCount, OutputTokens: chunk.UsageMetadata.CandidatesTokenCount}
			}
			delta := chunk.text()
			sb.WriteString(delta)
			emitText(emit, delta)
			return nil
		})
		if err != nil {
			return nil, callFailed("Gemini", err)
		}
		emitEvent(emit, domain.EventEnd, nil)
		text = sb.String()
	}

	if usage == nil {
		usage = &domain.Usage{InputTokens: tokens.EstimateMessages(req.Messages), OutputTokens: tokens.Estimate(text)}
	}
	return &domain.ChatResponse{
		ID:       domain.NewID(NameGemini),
		Provider: NameGemini,
		Model:    model,
		Usage:    usage,
		Message:  domain.ChatMessage{Role: domain.RoleAssistant, Content: text},
	}, nil
}

func (g *Gemini) do(ctx context.Context, model, method string, body *geminiRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:%s", g.baseURL, url.PathEscape(model), method)
	if method == "streamGenerateContent" {
		endpoint += "?alt=sse"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		var errResp geminiErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			return nil, fmt.Errorf("[%d] %s (status: %s)", resp.StatusCode, errResp.Error.Message, errResp.Error.Status)
		}
		return nil, fmt.Errorf("[%d] %s", resp.StatusCode, string(respBody))
	}
	return resp, nil
}
