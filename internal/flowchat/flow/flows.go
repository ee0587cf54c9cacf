package flow

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/longkey1/flowchat/internal/flowchat"
	"github.com/longkey1/flowchat/internal/flowchat/speech"
	"go.uber.org/zap"
)

// Language is a language the assistant answers in.
type Language string

const (
	English  Language = "English"
	Gujarati Language = "Gujarati"
	Hindi    Language = "Hindi"
)

// NormalizeLanguage maps a free-text detector answer to a supported language.
func NormalizeLanguage(answer string) Language {
	a := strings.ToLower(answer)
	switch {
	case strings.Contains(a, "hindi"):
		return Hindi
	case strings.Contains(a, "gujarati"):
		return Gujarati
	default:
		return English
	}
}

// ActionKind identifies a client-side side effect requested by the assistant.
type ActionKind string

// ActionOpenURL asks the client to open URL.
const ActionOpenURL ActionKind = "open_url"

// Action is a side effect the caller may perform after a response.
type Action struct {
	Kind ActionKind `json:"type"`
	URL  string     `json:"url"`
}

type RespondInput struct {
	Query string
}

type RespondOutput struct {
	Response string
	Action   *Action
}

type GenerateCodeInput struct {
	Prompt string
}

type GenerateCodeOutput struct {
	GeneratedText string `json:"generatedText"`
}

type AnalyzeFileInput struct {
	FileDataURI  string
	FileType     string
	Instructions string
}

type AnalyzeFileOutput struct {
	AnalysisResult string `json:"analysisResult"`
}

type APKGuidanceInput struct {
	ProjectZipDataURI string
	Instructions      string
}

type APKGuidanceOutput struct {
	Guidance   string `json:"guidance"`
	IsPossible bool   `json:"isPossible"`
}

type SpeechInput struct {
	Text string
}

// SpeechOutput carries the synthesized audio both as a data URI and raw.
type SpeechOutput struct {
	Media    string
	MIMEType string
	Audio    []byte
}

var (
	respondSchema = &flowchat.Schema{
		Name: FlowRespond,
		Fields: []flowchat.Field{
			{Name: "response", Type: flowchat.FieldString, Required: true, Description: "The answer to the user, in the user's language."},
			{Name: "action", Type: flowchat.FieldObject, Lenient: true, Description: "Optional client action.", Fields: []flowchat.Field{
				{Name: "type", Type: flowchat.FieldString, Required: true, Description: "Always open_url."},
				{Name: "url", Type: flowchat.FieldString, Required: true, Description: "Absolute URL to open."},
			}},
		},
	}
	generateCodeSchema = &flowchat.Schema{
		Name: FlowGenerateCode,
		Fields: []flowchat.Field{
			{Name: "generatedText", Type: flowchat.FieldString, Required: true, Description: "The generated text or code."},
		},
	}
	analyzeFileSchema = &flowchat.Schema{
		Name: FlowAnalyzeFile,
		Fields: []flowchat.Field{
			{Name: "analysisResult", Type: flowchat.FieldString, Required: true, Description: "The result of the file analysis."},
		},
	}
	apkGuidanceSchema = &flowchat.Schema{
		Name: FlowAPKGuidance,
		Fields: []flowchat.Field{
			{Name: "guidance", Type: flowchat.FieldString, Required: true, Description: "Step-by-step guidance or the reason conversion is not possible."},
			{Name: "isPossible", Type: flowchat.FieldBoolean, Required: true, Description: "Whether the project can be converted."},
		},
	}
)

// DetectLanguage identifies the language of text as English, Gujarati or Hindi.
func (c *Client) DetectLanguage(ctx context.Context, text string) (Language, error) {
	if err := requireText(FlowDetectLanguage, "text", text); err != nil {
		return "", err
	}
	answer, err := c.generate(ctx, FlowDetectLanguage, map[string]string{"text": text})
	if err != nil {
		return "", err
	}
	return NormalizeLanguage(answer), nil
}

// Respond answers a general query in the query's language. The answer may
// carry an open-URL action.
func (c *Client) Respond(ctx context.Context, in RespondInput) (*RespondOutput, error) {
	if err := requireText(FlowRespond, "query", in.Query); err != nil {
		return nil, err
	}

	lang, err := c.DetectLanguage(ctx, in.Query)
	if err != nil {
		c.logger.Warn("Language detection failed, answering in English", zap.Error(err))
		lang = English
	}

	var raw struct {
		Response string          `json:"response"`
		Action   json.RawMessage `json:"action"`
	}
	vars := map[string]string{"query": in.Query, "language": string(lang)}
	if err := c.generateJSON(ctx, FlowRespond, vars, respondSchema, nil, &raw); err != nil {
		return nil, err
	}

	out := &RespondOutput{Response: raw.Response}
	if len(raw.Action) == 0 || string(raw.Action) == "null" {
		return out, nil
	}
	var action struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	}
	if err := json.Unmarshal(raw.Action, &action); err != nil {
		c.logger.Debug("Dropping malformed action", zap.ByteString("action", raw.Action), zap.Error(err))
		return out, nil
	}
	if narrowed, ok := narrowAction(action.Type, action.URL); ok {
		out.Action = narrowed
	} else {
		c.logger.Debug("Dropping unsupported action", zap.String("type", action.Type), zap.String("url", action.URL))
	}
	return out, nil
}

// narrowAction accepts only open_url with an absolute http(s) URL.
func narrowAction(kind, rawURL string) (*Action, bool) {
	if ActionKind(kind) != ActionOpenURL {
		return nil, false
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, false
	}
	return &Action{Kind: ActionOpenURL, URL: u.String()}, true
}

// GenerateCode produces text or code, with code in fenced blocks.
func (c *Client) GenerateCode(ctx context.Context, in GenerateCodeInput) (*GenerateCodeOutput, error) {
	if err := requireText(FlowGenerateCode, "prompt", in.Prompt); err != nil {
		return nil, err
	}
	var out GenerateCodeOutput
	if err := c.generateJSON(ctx, FlowGenerateCode, map[string]string{"prompt": in.Prompt}, generateCodeSchema, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzeFile analyzes an attached file according to the instructions.
func (c *Client) AnalyzeFile(ctx context.Context, in AnalyzeFileInput) (*AnalyzeFileOutput, error) {
	if err := requireText(FlowAnalyzeFile, "instructions", in.Instructions); err != nil {
		return nil, err
	}
	if err := requireText(FlowAnalyzeFile, "fileType", in.FileType); err != nil {
		return nil, err
	}
	media, err := requireDataURI(FlowAnalyzeFile, "fileDataUri", in.FileDataURI)
	if err != nil {
		return nil, err
	}

	vars := map[string]string{"fileType": in.FileType, "instructions": in.Instructions}
	var out AnalyzeFileOutput
	if err := c.generateJSON(ctx, FlowAnalyzeFile, vars, analyzeFileSchema, []flowchat.Media{media}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// APKGuidance judges whether a zipped web project can become an Android APK
// and returns instructions. No conversion is performed.
func (c *Client) APKGuidance(ctx context.Context, in APKGuidanceInput) (*APKGuidanceOutput, error) {
	if err := requireText(FlowAPKGuidance, "instructions", in.Instructions); err != nil {
		return nil, err
	}
	media, err := requireDataURI(FlowAPKGuidance, "projectZipDataUri", in.ProjectZipDataURI)
	if err != nil {
		return nil, err
	}

	var out APKGuidanceOutput
	if err := c.generateJSON(ctx, FlowAPKGuidance, map[string]string{"instructions": in.Instructions}, apkGuidanceSchema, []flowchat.Media{media}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SynthesizeSpeech converts text to WAV audio.
func (c *Client) SynthesizeSpeech(ctx context.Context, in SpeechInput) (*SpeechOutput, error) {
	if err := requireText(FlowSynthesizeSpeech, "text", in.Text); err != nil {
		return nil, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	audio, err := c.backend.Speak(ctx, c.speechModel, c.speechVoice, in.Text)
	if err != nil {
		return nil, &RemoteServiceError{Flow: FlowSynthesizeSpeech, Err: contextError(ctx, err)}
	}
	if audio == nil || len(audio.Data) == 0 {
		return nil, &RemoteServiceError{Flow: FlowSynthesizeSpeech, Err: errors.New("no audio returned")}
	}

	mimeType, data, err := speech.ToWAV(audio.MIMEType, audio.Data)
	if err != nil {
		return nil, &RemoteServiceError{Flow: FlowSynthesizeSpeech, Err: err}
	}
	return &SpeechOutput{
		Media:    EncodeDataURI(mimeType, data),
		MIMEType: mimeType,
		Audio:    data,
	}, nil
}
