package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/longkey1/flowchat/internal/flowchat"
)

const (
	ProviderName       = "openai"
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = "gpt-4.1"
	DefaultSpeechModel = "gpt-4o-mini-tts"
	DefaultVoice       = "alloy"
)

// Supported models for Responses API
var responsesAPISupportedModels = []string{
	"gpt-4o",
	"gpt-4.1",
	"o3",
	"o4-mini",
	"gpt-5",
}

// voices accepted by the speech endpoint
var voices = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer", "verse"}

// ResponsesAPIRequest represents the request body for OpenAI's Responses API
type ResponsesAPIRequest struct {
	Model        string         `json:"model"`
	Instructions string         `json:"instructions,omitempty"`
	Input        []InputMessage `json:"input"`
	Text         *TextOptions   `json:"text,omitempty"`
}

// InputMessage is a message of the request input
type InputMessage struct {
	Role    string         `json:"role"`
	Content []InputContent `json:"content"`
}

// InputContent is a text, image or file part of an input message
type InputContent struct {
	Type     string `json:"type"` // "input_text", "input_image" or "input_file"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Filename string `json:"filename,omitempty"`
	FileData string `json:"file_data,omitempty"`
}

// TextOptions configures the output text format
type TextOptions struct {
	Format TextFormat `json:"format"`
}

// TextFormat requests structured output matching a JSON schema
type TextFormat struct {
	Type   string         `json:"type"` // "json_schema"
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

// ResponsesAPIResponse represents the response from OpenAI's Responses API
type ResponsesAPIResponse struct {
	ID     string               `json:"id"`
	Output []ResponsesAPIOutput `json:"output"`
	Error  *APIError            `json:"error,omitempty"`
}

// ResponsesAPIOutput represents an output element
type ResponsesAPIOutput struct {
	Type    string                `json:"type"`
	Content []ResponsesAPIContent `json:"content"`
}

// ResponsesAPIContent represents a content part of an output message
type ResponsesAPIContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// APIError represents an error returned by the API
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error *APIError `json:"error"`
}

// SpeechRequest represents the request body of the speech endpoint
type SpeechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// ModelsAPIResponse represents the response from the models endpoint
type ModelsAPIResponse struct {
	Data []ModelData `json:"data"`
}

// ModelData represents a single model in the API response
type ModelData struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// Config defines the configuration interface for the OpenAI backend
type Config interface {
	GetModel() string
	GetBaseURL(provider string) (string, error)
	GetToken(provider string) (string, error)
}

// Backend implements flowchat.Backend for OpenAI's Responses API
type Backend struct {
	config Config
	client *http.Client
	debug  bool
}

// NewBackend creates a new OpenAI backend instance
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

// isResponsesAPISupported checks if the model is supported by Responses API
func isResponsesAPISupported(model string) bool {
	for _, supported := range responsesAPISupportedModels {
		if strings.HasPrefix(model, supported) {
			return true
		}
	}
	return false
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
	req.Header.Set("Authorization", "Bearer "+token)

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
		var errResp errorResponse
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

// Generate sends one prompt to the Responses API. A schema is passed as a
// json_schema text format.
func (b *Backend) Generate(ctx context.Context, req flowchat.GenerateRequest) (string, error) {
	model := req.Model
	if model == "" {
		_, name, err := flowchat.ParseModelString(b.config.GetModel())
		if err != nil {
			return "", fmt.Errorf("invalid model format: %w", err)
		}
		model = name
	}

	// Check model compatibility
	if !isResponsesAPISupported(model) {
		return "", fmt.Errorf(`model '%s' is not supported with Responses API.

Supported models: gpt-4o, gpt-4.1, o3, o4-mini, gpt-5 series`, model)
	}

	content := make([]InputContent, 0, len(req.Media)+1)
	for i, m := range req.Media {
		content = append(content, mediaContent(m, i))
	}
	content = append(content, InputContent{Type: "input_text", Text: req.Prompt})

	reqBody := ResponsesAPIRequest{
		Model:        model,
		Instructions: req.System,
		Input:        []InputMessage{{Role: "user", Content: content}},
	}
	if req.Schema != nil {
		reqBody.Text = &TextOptions{Format: TextFormat{
			Type:   "json_schema",
			Name:   strings.ReplaceAll(req.Schema.Name, "-", "_"),
			Schema: req.Schema.JSONSchema(),
		}}
	}

	body, err := b.do(ctx, http.MethodPost, "/responses", reqBody)
	if err != nil {
		return "", err
	}

	var result ResponsesAPIResponse
	if err := json.Unmarshal(body, &result); err != nil {
		if b.debug {
			return "", fmt.Errorf("failed to parse API response: %v\nRaw response: %s", err, string(body))
		}
		return "", fmt.Errorf("failed to parse API response. Use --verbose for details")
	}
	if result.Error != nil {
		return "", fmt.Errorf("API error: %s", result.Error.Message)
	}

	var texts []string
	for _, out := range result.Output {
		if out.Type != "" && out.Type != "message" {
			continue
		}
		for _, c := range out.Content {
			if c.Text != "" {
				texts = append(texts, c.Text)
			}
		}
	}
	if len(texts) == 0 {
		return "", fmt.Errorf("no response from API")
	}
	return strings.Join(texts, "\n"), nil
}

func mediaContent(m flowchat.Media, i int) InputContent {
	uri := "data:" + m.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(m.Data)
	if strings.HasPrefix(m.MIMEType, "image/") {
		return InputContent{Type: "input_image", ImageURL: uri}
	}
	return InputContent{Type: "input_file", Filename: fmt.Sprintf("attachment-%d%s", i+1, extensionFor(m.MIMEType)), FileData: uri}
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "application/pdf":
		return ".pdf"
	case "application/zip":
		return ".zip"
	case "text/csv":
		return ".csv"
	case "application/json":
		return ".json"
	}
	if strings.HasPrefix(mimeType, "text/") {
		return ".txt"
	}
	return ""
}

// Speak converts text to WAV audio with the speech endpoint.
func (b *Backend) Speak(ctx context.Context, model, voice, text string) (*flowchat.Audio, error) {
	if model == "" {
		model = DefaultSpeechModel
	}
	if !slices.Contains(voices, strings.ToLower(voice)) {
		voice = DefaultVoice
	}

	body, err := b.do(ctx, http.MethodPost, "/audio/speech", SpeechRequest{
		Model:          model,
		Input:          text,
		Voice:          strings.ToLower(voice),
		ResponseFormat: "wav",
	})
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("no audio returned")
	}
	return &flowchat.Audio{MIMEType: "audio/wav", Data: body}, nil
}

// ListModels returns the models usable with the Responses API
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
	for _, m := range result.Data {
		if !isResponsesAPISupported(m.ID) {
			continue
		}
		description := m.OwnedBy
		if m.Created > 0 {
			description = fmt.Sprintf("Created: %s", time.Unix(m.Created, 0).UTC().Format("2006-01-02"))
		}
		models = append(models, flowchat.ModelInfo{ID: m.ID, Description: description})
	}

	// Sort models by ID (descending order)
	sort.Slice(models, func(i, j int) bool {
		return models[i].ID > models[j].ID
	})
	return models, nil
}
