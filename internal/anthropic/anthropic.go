package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/longkey1/flowchat/internal/flowchat"
)

const (
	ProviderName     = "anthropic"
	DefaultBaseURL   = "https://api.anthropic.com/v1"
	DefaultModel     = "claude-sonnet-4-5"
	AnthropicVersion = "2023-06-01"
	defaultMaxTokens = 8192
)

// ModelsAPIResponse represents the response from Anthropic's models endpoint
type ModelsAPIResponse struct {
	Data []ModelData `json:"data"`
}

// ModelData represents a single model in the API response
type ModelData struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// MessagesAPIRequest represents the request body for Anthropic's Messages API
type MessagesAPIRequest struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	System    string         `json:"system,omitempty"`
	Messages  []MessageInput `json:"messages"`
}

// MessageInput represents a message in the conversation
type MessageInput struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

// Content represents a content block: text, image or document
type Content struct {
	Type   string  `json:"type"`
	Text   string  `json:"text,omitempty"`
	Source *Source `json:"source,omitempty"`
}

// Source is the payload of an image or document block
type Source struct {
	Type      string `json:"type"` // "base64" or "text"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// MessagesAPIResponse represents the response from Anthropic's Messages API
type MessagesAPIResponse struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Role       string            `json:"role"`
	Content    []ResponseContent `json:"content"`
	Model      string            `json:"model"`
	StopReason string            `json:"stop_reason"`
	Usage      Usage             `json:"usage"`
	Error      *APIError         `json:"error,omitempty"`
}

// ResponseContent represents a content block in the response
type ResponseContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Usage represents token usage information
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// APIError represents an error in the API response
type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Config defines the configuration interface for the Anthropic backend
type Config interface {
	GetModel() string
	GetBaseURL(provider string) (string, error)
	GetToken(provider string) (string, error)
}

// Backend implements flowchat.Backend for Anthropic's Messages API
type Backend struct {
	config Config
	client *http.Client
	debug  bool
}

// NewBackend creates a new Anthropic backend instance
func NewBackend(config Config) *Backend {
	return &Backend{
		config: config,
		client: &http.Client{},
	}
}

// Name returns the provider name
func (b *Backend) Name() string {
	return ProviderName
}

// SetDebug enables or disables debug mode
func (b *Backend) SetDebug(enabled bool) {
	b.debug = enabled
}

// Speak is not available: Anthropic has no speech synthesis endpoint.
func (b *Backend) Speak(context.Context, string, string, string) (*flowchat.Audio, error) {
	return nil, flowchat.ErrSpeechUnsupported
}

func (b *Backend) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	token, err := b.config.GetToken(ProviderName)
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	baseURL, err := b.config.GetBaseURL(ProviderName)
	if err != nil {
		return nil, fmt.Errorf("failed to get base URL: %w", err)
	}

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("error marshaling request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(baseURL, "/")+path, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("x-api-key", token)
	req.Header.Set("anthropic-version", AnthropicVersion)

	resp, err := b.client.Do(req)
	if err != nil {
		if b.debug {
			return nil, fmt.Errorf("failed to connect to API: %w", err)
		}
		return nil, fmt.Errorf("failed to connect to API. Use --verbose for details")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp MessagesAPIResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != nil {
			if b.debug {
				return nil, fmt.Errorf("API error [%s]: %s (HTTP %d)", errResp.Error.Type, errResp.Error.Message, resp.StatusCode)
			}
			return nil, fmt.Errorf("API error: %s", errResp.Error.Message)
		}
		if b.debug {
			return nil, fmt.Errorf("API request failed (HTTP %d): %s", resp.StatusCode, string(respBody))
		}
		return nil, fmt.Errorf("API request failed (HTTP %d). Use --verbose for details", resp.StatusCode)
	}
	return respBody, nil
}

// ListModels returns the list of supported models from the API
func (b *Backend) ListModels(ctx context.Context) ([]flowchat.ModelInfo, error) {
	body, err := b.do(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}

	var result ModelsAPIResponse
	if err := json.Unmarshal(body, &result); err != nil {
		if b.debug {
			return nil, fmt.Errorf("failed to parse API response: %v\nRaw response: %s", err, string(body))
		}
		return nil, fmt.Errorf("failed to parse API response. Use --verbose for details")
	}

	models := make([]flowchat.ModelInfo, 0, len(result.Data))
	for _, model := range result.Data {
		description := model.DisplayName
		if description == "" && !model.CreatedAt.IsZero() {
			description = fmt.Sprintf("Created: %s", model.CreatedAt.UTC().Format("2006-01-02"))
		}
		models = append(models, flowchat.ModelInfo{ID: model.ID, Description: description})
	}

	// Sort models by ID (descending order)
	sort.Slice(models, func(i, j int) bool {
		return models[i].ID > models[j].ID
	})
	return models, nil
}

// Generate sends one prompt to the Messages API. Structured output is
// requested through the system prompt since the API has no response schema.
func (b *Backend) Generate(ctx context.Context, req flowchat.GenerateRequest) (string, error) {
	modelName := req.Model
	if modelName == "" {
		_, name, err := flowchat.ParseModelString(b.config.GetModel())
		if err != nil {
			return "", fmt.Errorf("invalid model format: %w", err)
		}
		modelName = name
	}

	content := make([]Content, 0, len(req.Media)+1)
	for _, m := range req.Media {
		block, err := mediaBlock(m)
		if err != nil {
			return "", err
		}
		content = append(content, block)
	}
	content = append(content, Content{Type: "text", Text: req.Prompt})

	system := req.System
	if req.Schema != nil {
		system = strings.TrimSpace(system + "\n\n" + req.Schema.Instruction())
	}

	reqBody := MessagesAPIRequest{
		Model:     modelName,
		MaxTokens: defaultMaxTokens,
		System:    system,
		Messages:  []MessageInput{{Role: "user", Content: content}},
	}

	body, err := b.do(ctx, http.MethodPost, "/messages", reqBody)
	if err != nil {
		return "", err
	}

	var result MessagesAPIResponse
	if err := json.Unmarshal(body, &result); err != nil {
		if b.debug {
			return "", fmt.Errorf("failed to parse API response: %v\nRaw response: %s", err, string(body))
		}
		return "", fmt.Errorf("failed to parse API response. Use --verbose for details")
	}
	if result.Error != nil {
		return "", fmt.Errorf("API error: %s", result.Error.Message)
	}

	var textBlocks []string
	for _, c := range result.Content {
		if c.Type == "text" && c.Text != "" {
			textBlocks = append(textBlocks, c.Text)
		}
	}
	if len(textBlocks) == 0 {
		if b.debug {
			return "", fmt.Errorf("no text content found in API response (id=%s)\nRaw response: %s", result.ID, string(body))
		}
		return "", fmt.Errorf("no text content found in API response. Use --verbose for details")
	}
	return strings.Join(textBlocks, "\n"), nil
}

// mediaBlock converts an attachment to an image or document block.
func mediaBlock(m flowchat.Media) (Content, error) {
	switch {
	case strings.HasPrefix(m.MIMEType, "image/"):
		return Content{Type: "image", Source: &Source{Type: "base64", MediaType: m.MIMEType, Data: base64.StdEncoding.EncodeToString(m.Data)}}, nil
	case m.MIMEType == "application/pdf":
		return Content{Type: "document", Source: &Source{Type: "base64", MediaType: m.MIMEType, Data: base64.StdEncoding.EncodeToString(m.Data)}}, nil
	case strings.HasPrefix(m.MIMEType, "text/") || m.MIMEType == "application/json":
		return Content{Type: "document", Source: &Source{Type: "text", MediaType: "text/plain", Data: string(m.Data)}}, nil
	default:
		return Content{}, fmt.Errorf("attachments of type %s are not supported by the %s provider", m.MIMEType, ProviderName)
	}
}
