// Package flow invokes the hosted generative flows: each flow renders a
// prompt template, asks the backend for a JSON object of a fixed shape and
// decodes it into a typed output.
package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/longkey1/flowchat/internal/flowchat"
	"github.com/longkey1/flowchat/internal/flowchat/prompt"
	"go.uber.org/zap"
)

// Flow names double as prompt template names.
const (
	FlowRespond          = "respond"
	FlowDetectLanguage   = "detect-language"
	FlowGenerateCode     = "generate-code"
	FlowAnalyzeFile      = "analyze-file"
	FlowAPKGuidance      = "apk-guidance"
	FlowSynthesizeSpeech = "synthesize-speech"
)

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 60 * time.Second

// ReservedVariables are the template placeholders filled by the flows
// themselves; user supplied variables cannot override them.
var ReservedVariables = []string{"query", "language", "text", "prompt", "fileType", "instructions"}

// Client runs flows against a backend.
type Client struct {
	backend  flowchat.Backend
	registry *prompt.Registry
	logger   *zap.Logger

	timeout     time.Duration
	vars        map[string]string
	speechModel string
	speechVoice string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each backend call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithVariables adds template variables available to every flow.
func WithVariables(vars map[string]string) Option {
	return func(c *Client) { maps.Copy(c.vars, vars) }
}

// WithSpeechModel sets the model and voice used by SynthesizeSpeech.
func WithSpeechModel(model, voice string) Option {
	return func(c *Client) {
		c.speechModel = model
		c.speechVoice = voice
	}
}

// NewClient creates a flow client
func NewClient(backend flowchat.Backend, registry *prompt.Registry, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		backend:  backend,
		registry: registry,
		logger:   logger,
		timeout:  DefaultTimeout,
		vars:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Backend returns the backend the client talks to
func (c *Client) Backend() flowchat.Backend {
	return c.backend
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// buildRequest renders the named template into a backend request.
func (c *Client) buildRequest(name string, vars map[string]string) (flowchat.GenerateRequest, error) {
	tmpl, err := c.registry.Get(name)
	if err != nil {
		return flowchat.GenerateRequest{}, err
	}

	all := maps.Clone(c.vars)
	maps.Copy(all, vars)
	system, user := tmpl.Render(all)
	req := flowchat.GenerateRequest{
		System: strings.TrimSpace(system),
		Prompt: strings.TrimSpace(user),
	}

	if tmpl.Model != nil {
		provider, model, err := flowchat.ParseModelString(*tmpl.Model)
		if err != nil {
			return flowchat.GenerateRequest{}, fmt.Errorf("template %s: %w", name, err)
		}
		if provider == c.backend.Name() {
			req.Model = model
		} else {
			c.logger.Warn("Ignoring template model for a different provider",
				zap.String("flow", name), zap.String("model", *tmpl.Model), zap.String("backend", c.backend.Name()))
		}
	}
	return req, nil
}

// generate runs a free-text flow.
func (c *Client) generate(ctx context.Context, name string, vars map[string]string) (string, error) {
	req, err := c.buildRequest(name, vars)
	if err != nil {
		return "", &RemoteServiceError{Flow: name, Err: err}
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	text, err := c.backend.Generate(ctx, req)
	c.logger.Debug("Flow finished", zap.String("flow", name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
	if err != nil {
		return "", &RemoteServiceError{Flow: name, Err: contextError(ctx, err)}
	}
	return text, nil
}

// generateJSON runs a structured flow and decodes its validated output into out.
func (c *Client) generateJSON(ctx context.Context, name string, vars map[string]string, schema *flowchat.Schema, media []flowchat.Media, out any) error {
	req, err := c.buildRequest(name, vars)
	if err != nil {
		return &RemoteServiceError{Flow: name, Err: err}
	}
	req.Schema = schema
	req.Media = media

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	text, err := c.backend.Generate(ctx, req)
	c.logger.Debug("Flow finished", zap.String("flow", name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
	if err != nil {
		return &RemoteServiceError{Flow: name, Err: contextError(ctx, err)}
	}

	if err := decodeOutput(text, schema, out); err != nil {
		c.logger.Debug("Flow output rejected", zap.String("flow", name), zap.String("output", text), zap.Error(err))
		return &RemoteServiceError{Flow: name, Err: err}
	}
	return nil
}

// contextError prefers the deadline error so timeouts are reported as such.
func contextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}

func decodeOutput(text string, schema *flowchat.Schema, out any) error {
	body := StripFences(text)

	var obj map[string]any
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return fmt.Errorf("output is not a JSON object: %w", err)
	}
	if err := schema.Validate(obj); err != nil {
		return fmt.Errorf("output does not match schema %s: %w", schema.Name, err)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("failed to decode output: %w", err)
	}
	return nil
}

// StripFences removes a surrounding markdown code fence (```json ... ```)
// from a model answer.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func requireText(flowName, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Flow: flowName, Field: field, Reason: "must not be empty"}
	}
	return nil
}

func requireDataURI(flowName, field, value string) (flowchat.Media, error) {
	mimeType, data, err := ParseDataURI(value)
	if err != nil {
		return flowchat.Media{}, &ValidationError{Flow: flowName, Field: field, Reason: err.Error()}
	}
	if len(data) == 0 {
		return flowchat.Media{}, &ValidationError{Flow: flowName, Field: field, Reason: "file is empty"}
	}
	return flowchat.Media{MIMEType: mimeType, Data: data}, nil
}
