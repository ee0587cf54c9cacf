package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/longkey1/flowchat/internal/flowchat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type testConfig struct {
	baseURL string
}

func (c testConfig) GetModel() string                  { return "gemini:gemini-2.5-flash" }
func (c testConfig) GetBaseURL(string) (string, error) { return c.baseURL, nil }
func (c testConfig) GetToken(string) (string, error)   { return "test-key", nil }

func newTestBackend(t *testing.T, handler http.HandlerFunc) *Backend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewBackend(testConfig{baseURL: srv.URL + "/"})
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestGenerate(t *testing.T) {
	var body map[string]any
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash:generateContent"), r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		body = decodeBody(t, r)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"response\":\"hola\"}"}]}}]}`))
	})

	schema := &flowchat.Schema{Name: "respond", Fields: []flowchat.Field{{Name: "response", Type: flowchat.FieldString, Required: true}}}
	text, err := b.Generate(context.Background(), flowchat.GenerateRequest{
		System: "Answer in Spanish.",
		Prompt: "hello",
		Schema: schema,
		Media:  []flowchat.Media{{MIMEType: "text/plain", Data: []byte("notes")}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"response":"hola"}`, text)

	require.Contains(t, body, "contents")
	contents := body["contents"].([]any)
	require.Len(t, contents, 1)
	parts := contents[0].(map[string]any)["parts"].([]any)
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0].(map[string]any), "inlineData")
	assert.Equal(t, "hello", parts[1].(map[string]any)["text"])

	assert.Contains(t, body, "systemInstruction")
	genCfg, ok := body["generationConfig"].(map[string]any)
	require.True(t, ok, "generationConfig missing: %v", body)
	assert.Equal(t, "application/json", genCfg["responseMimeType"])
	assert.Contains(t, genCfg, "responseSchema")
}

func TestGenerateAPIError(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	})

	_, err := b.Generate(context.Background(), flowchat.GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, "API error: API key not valid (HTTP 400)", err.Error())
}

func TestGenerateEmptyResponse(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`))
	})

	_, err := b.Generate(context.Background(), flowchat.GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")

	b.SetDebug(true)
	_, err = b.Generate(context.Background(), flowchat.GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestToSchema(t *testing.T) {
	s := toSchema([]flowchat.Field{
		{Name: "guidance", Type: flowchat.FieldString, Required: true},
		{Name: "isPossible", Type: flowchat.FieldBoolean, Required: true},
		{Name: "action", Type: flowchat.FieldObject, Fields: []flowchat.Field{
			{Name: "url", Type: flowchat.FieldString, Required: true},
		}},
	})

	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"guidance", "isPossible"}, s.Required)
	assert.Equal(t, genai.TypeString, s.Properties["guidance"].Type)
	assert.Equal(t, genai.TypeBoolean, s.Properties["isPossible"].Type)
	require.Contains(t, s.Properties, "action")
	assert.Equal(t, genai.TypeObject, s.Properties["action"].Type)
	assert.Equal(t, []string{"url"}, s.Properties["action"].Required)
}

func TestSpeak(t *testing.T) {
	var body map[string]any
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/"+DefaultSpeechModel+":generateContent"), r.URL.Path)
		body = decodeBody(t, r)
		// "AAEC" is base64 for 0x00 0x01 0x02
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"audio/L16;codec=pcm;rate=24000","data":"AAEC"}}]}}]}`))
	})

	audio, err := b.Speak(context.Background(), "", "", "hello")
	require.NoError(t, err)
	assert.Equal(t, "audio/L16;codec=pcm;rate=24000", audio.MIMEType)
	assert.Equal(t, []byte{0, 1, 2}, audio.Data)

	genCfg := body["generationConfig"].(map[string]any)
	assert.Equal(t, []any{"AUDIO"}, genCfg["responseModalities"])
	voice := genCfg["speechConfig"].(map[string]any)["voiceConfig"].(map[string]any)["prebuiltVoiceConfig"].(map[string]any)
	assert.Equal(t, DefaultVoice, voice["voiceName"])
}

func TestSpeakNoAudio(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"no audio"}]}}]}`))
	})

	_, err := b.Speak(context.Background(), "", "", "hello")
	require.Error(t, err)
	assert.Equal(t, "no audio returned", err.Error())
}

func TestListModels(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models"), r.URL.Path)
		w.Write([]byte(`{"models":[
			{"name":"models/gemini-2.5-flash","displayName":"Gemini 2.5 Flash","supportedGenerationMethods":["generateContent","countTokens"]},
			{"name":"models/text-embedding-004","description":"Embeddings","supportedGenerationMethods":["embedContent"]},
			{"name":"models/gemini-2.5-pro","description":"Pro model","supportedGenerationMethods":["generateContent"]}
		]}`))
	})

	models, err := b.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, flowchat.ModelInfo{ID: "gemini-2.5-pro", Description: "Pro model"}, models[0])
	assert.Equal(t, flowchat.ModelInfo{ID: "gemini-2.5-flash", Description: "Gemini 2.5 Flash"}, models[1])
}

func TestContains(t *testing.T) {
	assert.True(t, contains([]string{"a", "b"}, "b"))
	assert.False(t, contains(nil, "a"))
}
