package gemini

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/longkey1/flowchat/internal/flowchat"
	"google.golang.org/genai"
)

const (
	ProviderName       = "gemini"
	DefaultBaseURL     = "https://generativelanguage.googleapis.com/"
	DefaultModel       = "gemini-2.5-flash"
	DefaultSpeechModel = "gemini-2.5-flash-preview-tts"
	DefaultVoice       = "Algenib"
)

// Config defines the configuration interface for the Gemini backend
type Config interface {
	GetModel() string
	GetBaseURL(provider string) (string, error)
	GetToken(provider string) (string, error)
}

// Backend implements flowchat.Backend on the Google GenAI SDK
type Backend struct {
	config Config
	debug  bool

	mu     sync.Mutex
	client *genai.Client
}

// NewBackend creates a new Gemini backend. The SDK client is created on first use.
func NewBackend(config Config) *Backend {
	return &Backend{config: config}
}

// Name returns the provider name
func (b *Backend) Name() string {
	return ProviderName
}

// SetDebug enables or disables debug mode
func (b *Backend) SetDebug(enabled bool) {
	b.debug = enabled
}

func (b *Backend) getClient(ctx context.Context) (*genai.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return b.client, nil
	}

	token, err := b.config.GetToken(ProviderName)
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	baseURL, err := b.config.GetBaseURL(ProviderName)
	if err != nil {
		return nil, fmt.Errorf("failed to get base URL: %w", err)
	}

	cc := &genai.ClientConfig{
		APIKey:  token,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	b.client = client
	return client, nil
}

func (b *Backend) modelName(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	_, name, err := flowchat.ParseModelString(b.config.GetModel())
	if err != nil {
		return "", fmt.Errorf("invalid model format: %w", err)
	}
	return name, nil
}

// apiError shortens SDK errors unless debug output is on.
func (b *Backend) apiError(op string, err error) error {
	if b.debug {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("API error: %s (HTTP %d)", apiErr.Message, apiErr.Code)
	}
	return fmt.Errorf("%s failed: %w. Use --verbose for details", op, err)
}

// Generate sends one prompt with inline media. A schema is sent as the
// response schema with a JSON response MIME type.
func (b *Backend) Generate(ctx context.Context, req flowchat.GenerateRequest) (string, error) {
	client, err := b.getClient(ctx)
	if err != nil {
		return "", err
	}
	model, err := b.modelName(req.Model)
	if err != nil {
		return "", err
	}

	parts := make([]*genai.Part, 0, len(req.Media)+1)
	for _, m := range req.Media {
		parts = append(parts, genai.NewPartFromBytes(m.Data, m.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = toSchema(req.Schema.Fields)
	}

	resp, err := client.Models.GenerateContent(ctx, model, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, cfg)
	if err != nil {
		return "", b.apiError("generate content", err)
	}

	text := resp.Text()
	if text == "" {
		if b.debug && resp.PromptFeedback != nil {
			return "", fmt.Errorf("API returned empty response (block reason: %s)", resp.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("API returned empty response. Use --verbose for details")
	}
	return text, nil
}

// toSchema converts flow fields to a GenAI object schema.
func toSchema(fields []flowchat.Field) *genai.Schema {
	s := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(fields)),
	}
	for _, f := range fields {
		var prop *genai.Schema
		switch f.Type {
		case flowchat.FieldObject:
			prop = toSchema(f.Fields)
		case flowchat.FieldBoolean:
			prop = &genai.Schema{Type: genai.TypeBoolean}
		default:
			prop = &genai.Schema{Type: genai.TypeString}
		}
		prop.Description = f.Description
		s.Properties[f.Name] = prop
		if f.Required {
			s.Required = append(s.Required, f.Name)
		}
	}
	return s
}

// Speak synthesizes speech with a TTS model; the result is raw PCM as
// returned by the API.
func (b *Backend) Speak(ctx context.Context, model, voice, text string) (*flowchat.Audio, error) {
	client, err := b.getClient(ctx)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultSpeechModel
	}
	if voice == "" {
		voice = DefaultVoice
	}

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
	resp, err := client.Models.GenerateContent(ctx, model, []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, b.apiError("synthesize speech", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return &flowchat.Audio{MIMEType: part.InlineData.MIMEType, Data: part.InlineData.Data}, nil
			}
		}
	}
	return nil, fmt.Errorf("no audio returned")
}

// ListModels returns the models that support content generation
func (b *Backend) ListModels(ctx context.Context) ([]flowchat.ModelInfo, error) {
	client, err := b.getClient(ctx)
	if err != nil {
		return nil, err
	}

	page, err := client.Models.List(ctx, nil)
	if err != nil {
		return nil, b.apiError("list models", err)
	}

	models := make([]flowchat.ModelInfo, 0, len(page.Items))
	for _, m := range page.Items {
		if len(m.SupportedActions) > 0 && !contains(m.SupportedActions, "generateContent") {
			continue
		}
		description := m.Description
		if description == "" {
			description = m.DisplayName
		}
		models = append(models, flowchat.ModelInfo{
			ID:          strings.TrimPrefix(m.Name, "models/"),
			Description: description,
		})
	}

	// Sort models by ID (descending order)
	sort.Slice(models, func(i, j int) bool {
		return models[i].ID > models[j].ID
	})
	return models, nil
}

// contains checks if a slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
