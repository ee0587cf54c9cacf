package cmd

import (
	"testing"
	"time"

	"github.com/longkey1/flowchat/internal/flowchat"
	"github.com/longkey1/flowchat/internal/flowchat/config"
	"github.com/longkey1/flowchat/internal/flowchat/conversation"
	"github.com/longkey1/flowchat/internal/flowchat/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "********", maskToken(""))
	assert.Equal(t, "********", maskToken("12345678"))
	assert.Equal(t, "sk-a...wxyz", maskToken("sk-abcdefghijklmnopqrstuvwxyz"))
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("2025-03-14")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.Local), got)

	got, err = parseDate("2025-06")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.Local), got)

	_, err = parseDate("14/03/2025")
	assert.Error(t, err)
}

func TestConfigField(t *testing.T) {
	cfg := config.NewDefaultConfig("/tmp/prompts")
	cfg.GeminiToken = "AIzaSyExampleToken1234"
	cfg.DataDir = "/var/lib/flowchat"

	tests := []struct {
		field string
		want  string
	}{
		{"model", "gemini:gemini-2.5-flash"},
		{"speechmodel", "gemini:gemini-2.5-flash-preview-tts"},
		{"gemini_token", "AIza...1234"},
		{"promptdirs", "/tmp/prompts"},
		{"data_dir", "/var/lib/flowchat"},
		{"request_timeout", "1m0s"},
		{"delete_policy", "clear"},
		{"server_burst", "10"},
	}
	for _, tt := range tests {
		got, ok := configField(cfg, tt.field)
		require.True(t, ok, tt.field)
		assert.Equal(t, tt.want, got, tt.field)
	}

	_, ok := configField(cfg, "web_search")
	assert.False(t, ok)
}

func TestLastAnswerBlocks(t *testing.T) {
	_, err := lastAnswerBlocks(nil)
	assert.Error(t, err)

	conv := &conversation.Conversation{Messages: []flowchat.Message{
		{Role: flowchat.RoleUser, Content: "Write html"},
	}}
	_, err = lastAnswerBlocks(conv)
	assert.Error(t, err)

	conv.Messages = append(conv.Messages,
		flowchat.Message{Role: flowchat.RoleAssistant, Content: "```html\n<p>a</p>\n```\ntext\n```go\nfmt.Println()\n```"},
		flowchat.Message{Role: flowchat.RoleUser, Content: "thanks"},
	)
	blocks, err := lastAnswerBlocks(conv)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "html", blocks[0].Language)
	assert.Equal(t, "go", blocks[1].Language)
}

func TestPickBlock(t *testing.T) {
	one := []render.Block{{Index: 0, Language: "html", Code: "<p>a</p>"}}
	two := append(one, render.Block{Index: 1, Language: "go", Code: "package main"})

	b, err := pickBlock(one, "")
	require.NoError(t, err)
	assert.Equal(t, "html", b.Language)

	_, err = pickBlock(two, "")
	assert.ErrorContains(t, err, "give an index from 0 to 1")

	b, err = pickBlock(two, "1")
	require.NoError(t, err)
	assert.Equal(t, "go", b.Language)

	for _, arg := range []string{"2", "-1", "x"} {
		_, err = pickBlock(two, arg)
		assert.Error(t, err, arg)
	}

	_, err = pickBlock(nil, "0")
	assert.Error(t, err)
}

func TestChatHelpDescribesFileRouting(t *testing.T) {
	assert.NotContains(t, chatCmd.Long, ".zip")
	assert.Contains(t, chatCmd.Long, `mention "apk"`)

	usage := chatCmd.Flags().Lookup("file").Usage
	assert.NotContains(t, usage, ".zip")
	assert.Contains(t, usage, `"apk"`)
}
