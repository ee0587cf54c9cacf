package flowchat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelString(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantProvider string
		wantModel    string
		wantErr      bool
	}{
		{
			name:         "valid gemini model",
			input:        "gemini:gemini-2.5-flash",
			wantProvider: "gemini",
			wantModel:    "gemini-2.5-flash",
		},
		{
			name:         "valid openai model",
			input:        "openai:gpt-4.1",
			wantProvider: "openai",
			wantModel:    "gpt-4.1",
		},
		{
			name:         "model with colon",
			input:        "openai:o1:2024-12-17",
			wantProvider: "openai",
			wantModel:    "o1:2024-12-17",
		},
		{
			name:         "with whitespace",
			input:        " anthropic : claude-sonnet-4-5 ",
			wantProvider: "anthropic",
			wantModel:    "claude-sonnet-4-5",
		},
		{name: "missing colon", input: "gemini-2.5-flash", wantErr: true},
		{name: "empty provider", input: ":gpt-4", wantErr: true},
		{name: "empty model", input: "openai:", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, model, err := ParseModelString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseModelString() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if provider != tt.wantProvider {
				t.Errorf("ParseModelString() provider = %v, want %v", provider, tt.wantProvider)
			}
			if model != tt.wantModel {
				t.Errorf("ParseModelString() model = %v, want %v", model, tt.wantModel)
			}
		})
	}
}

func TestFormatModelString(t *testing.T) {
	assert.Equal(t, "gemini:gemini-2.5-flash", FormatModelString("gemini", "gemini-2.5-flash"))
}

func TestSchemaValidate(t *testing.T) {
	schema := &Schema{
		Name: "respond",
		Fields: []Field{
			{Name: "response", Type: FieldString, Required: true},
			{Name: "action", Type: FieldObject, Fields: []Field{
				{Name: "type", Type: FieldString, Required: true},
				{Name: "url", Type: FieldString, Required: true},
			}},
		},
	}

	tests := []struct {
		name    string
		obj     map[string]any
		wantErr string
	}{
		{name: "minimal", obj: map[string]any{"response": "hi"}},
		{name: "null optional", obj: map[string]any{"response": "hi", "action": nil}},
		{name: "with action", obj: map[string]any{"response": "hi", "action": map[string]any{"type": "open_url", "url": "https://example.com"}}},
		{name: "missing required", obj: map[string]any{}, wantErr: `missing required field "response"`},
		{name: "wrong type", obj: map[string]any{"response": 3.0}, wantErr: `field "response" must be a string`},
		{name: "nested missing", obj: map[string]any{"response": "hi", "action": map[string]any{"type": "open_url"}}, wantErr: `missing required field "action.url"`},
		{name: "nested wrong shape", obj: map[string]any{"response": "hi", "action": "open"}, wantErr: `field "action" must be an object`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate(tt.obj)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestSchemaValidateLenient(t *testing.T) {
	schema := &Schema{Fields: []Field{
		{Name: "response", Type: FieldString, Required: true},
		{Name: "action", Type: FieldObject, Lenient: true, Fields: []Field{
			{Name: "type", Type: FieldString, Required: true},
		}},
	}}

	for _, action := range []any{"open", map[string]any{}, 3.0, nil} {
		assert.NoError(t, schema.Validate(map[string]any{"response": "hi", "action": action}), "%v", action)
	}
	assert.EqualError(t, schema.Validate(map[string]any{"action": map[string]any{}}), `missing required field "response"`)

	// The model still sees the nested shape.
	props := schema.JSONSchema()["properties"].(map[string]any)
	assert.Equal(t, []string{"type"}, props["action"].(map[string]any)["required"])
}

func TestSchemaJSONSchema(t *testing.T) {
	schema := &Schema{Fields: []Field{
		{Name: "guidance", Type: FieldString, Required: true},
		{Name: "isPossible", Type: FieldBoolean, Required: true},
	}}

	doc := schema.JSONSchema()
	assert.Equal(t, "object", doc["type"])
	assert.Equal(t, []string{"guidance", "isPossible"}, doc["required"])
	props := doc["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "boolean"}, props["isPossible"])
	assert.Contains(t, schema.Instruction(), `"guidance"`)
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.False(t, Role("system").Valid())
}
