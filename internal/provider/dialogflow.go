package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/riyak972/capstone-chat/internal/domain"
	"github.com/riyak972/capstone-chat/internal/tokens"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultDialogflowBaseURL is the Dialogflow ES v2 endpoint.
const DefaultDialogflowBaseURL = "https://dialogflow.googleapis.com"

const dialogflowScope = "https://www.googleapis.com/auth/dialogflow"

// DialogflowConfig configures the Dialogflow adapter.
type DialogflowConfig struct {
	CredentialsFile string
	ProjectID       string
	LanguageCode    string
	BaseURL         string
	Timeout         time.Duration
	WordDelay       time.Duration
	// HTTPClient, when set, is used as is and no credentials are loaded.
	HTTPClient *http.Client
}

// Dialogflow sends the last user message to a Dialogflow ES agent's detectIntent.
// Dialogflow has no streaming API, so streamed replies are synthesized word by word.
type Dialogflow struct {
	projectID    string
	languageCode string
	baseURL      string
	wordDelay    time.Duration
	httpClient   *http.Client
}

// NewDialogflow creates a Dialogflow adapter. It is enabled only when a project id
// is set and service account credentials could be loaded.
func NewDialogflow(cfg DialogflowConfig) *Dialogflow {
	d := &Dialogflow{
		projectID:    cfg.ProjectID,
		languageCode: cfg.LanguageCode,
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		wordDelay:    cfg.WordDelay,
		httpClient:   cfg.HTTPClient,
	}
	if d.baseURL == "" {
		d.baseURL = DefaultDialogflowBaseURL
	}
	if d.languageCode == "" {
		d.languageCode = "en"
	}
	if d.httpClient != nil || cfg.ProjectID == "" || cfg.CredentialsFile == "" {
		return d
	}

	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		slog.Warn("failed to read dialogflow credentials", "path", cfg.CredentialsFile, "error", err)
		return d
	}
	creds, err := google.CredentialsFromJSON(context.Background(), data, dialogflowScope)
	if err != nil {
		slog.Warn("failed to parse dialogflow credentials", "path", cfg.CredentialsFile, "error", err)
		return d
	}
	base := &http.Client{Timeout: cfg.Timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	d.httpClient = oauth2.NewClient(ctx, creds.TokenSource)
	d.httpClient.Timeout = cfg.Timeout
	return d
}

var _ Adapter = (*Dialogflow)(nil)

func (d *Dialogflow) Name() string         { return NameDialogflow }
func (d *Dialogflow) Enabled() bool        { return d.projectID != "" && d.httpClient != nil }
func (d *Dialogflow) SupportsTools() bool  { return false }
func (d *Dialogflow) DefaultModel() string { return DefaultDialogflowModel }

type detectIntentRequest struct {
	QueryInput struct {
		Text struct {
			Text         string `json:"text"`
			LanguageCode string `json:"languageCode"`
		} `json:"text"`
	} `json:"queryInput"`
}

type detectIntentResponse struct {
	QueryResult *struct {
		FulfillmentText string `json:"fulfillmentText"`
		Intent          *struct {
			DisplayName string `json:"displayName"`
		} `json:"intent,omitempty"`
	} `json:"queryResult,omitempty"`
}

// Chat detects the intent of the last user message.
func (d *Dialogflow) Chat(ctx context.Context, req *Request, emit Emit) (*domain.ChatResponse, error) {
	if !d.Enabled() {
		return nil, unavailable("Dialogflow", "Set GOOGLE_APPLICATION_CREDENTIALS and DIALOGFLOW_PROJECT_ID")
	}
	last, ok := domain.LastUserMessage(req.Messages)
	if !ok {
		return nil, domain.ErrNoUserMessage
	}
	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	emitEvent(emit, domain.EventStart, nil)
	result, err := d.detectIntent(ctx, req.SessionID, last.Content)
	if err != nil {
		return nil, callFailed("Dialogflow", err)
	}

	text := "No response"
	intent := "default"
	if qr := result.QueryResult; qr != nil {
		if qr.FulfillmentText != "" {
			text = qr.FulfillmentText
		}
		if qr.Intent != nil && qr.Intent.DisplayName != "" {
			intent = qr.Intent.DisplayName
		}
	}

	if err := streamWords(ctx, text, d.wordDelay, emit); err != nil {
		return nil, callFailed("Dialogflow", err)
	}
	emitEvent(emit, domain.EventEnd, nil)

	return &domain.ChatResponse{
		ID:       domain.NewID(NameDialogflow),
		Provider: NameDialogflow,
		Model:    "dialogflow-" + intent,
		Usage: &domain.Usage{
			InputTokens:  tokens.Estimate(last.Content),
			OutputTokens: tokens.Estimate(text),
		},
		Message: domain.ChatMessage{Role: domain.RoleAssistant, Content: text},
	}, nil
}

func (d *Dialogflow) detectIntent(ctx context.Context, sessionID, text string) (*detectIntentResponse, error) {
	var body detectIntentRequest
	body.QueryInput.Text.Text = text
	body.QueryInput.Text.LanguageCode = d.languageCode
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/projects/%s/agent/sessions/%s:detectIntent",
		d.baseURL, url.PathEscape(d.projectID), url.PathEscape(sessionID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("[%d] %s", resp.StatusCode, string(respBody))
	}
	var result detectIntentResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}
