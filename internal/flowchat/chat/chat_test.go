package chat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/longkey1/flowchat/internal/flowchat"
	"github.com/longkey1/flowchat/internal/flowchat/conversation"
	"github.com/longkey1/flowchat/internal/flowchat/flow"
	"github.com/longkey1/flowchat/internal/flowchat/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFlows struct {
	mu    sync.Mutex
	calls []string

	respond      func(flow.RespondInput) (*flow.RespondOutput, error)
	generateCode func(flow.GenerateCodeInput) (*flow.GenerateCodeOutput, error)
	analyzeFile  func(flow.AnalyzeFileInput) (*flow.AnalyzeFileOutput, error)
	apkGuidance  func(flow.APKGuidanceInput) (*flow.APKGuidanceOutput, error)
	synthesize   func(flow.SpeechInput) (*flow.SpeechOutput, error)
}

func (f *fakeFlows) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeFlows) Respond(_ context.Context, in flow.RespondInput) (*flow.RespondOutput, error) {
	f.record(flow.FlowRespond)
	return f.respond(in)
}

func (f *fakeFlows) GenerateCode(_ context.Context, in flow.GenerateCodeInput) (*flow.GenerateCodeOutput, error) {
	f.record(flow.FlowGenerateCode)
	return f.generateCode(in)
}

func (f *fakeFlows) AnalyzeFile(_ context.Context, in flow.AnalyzeFileInput) (*flow.AnalyzeFileOutput, error) {
	f.record(flow.FlowAnalyzeFile)
	return f.analyzeFile(in)
}

func (f *fakeFlows) APKGuidance(_ context.Context, in flow.APKGuidanceInput) (*flow.APKGuidanceOutput, error) {
	f.record(flow.FlowAPKGuidance)
	return f.apkGuidance(in)
}

func (f *fakeFlows) SynthesizeSpeech(_ context.Context, in flow.SpeechInput) (*flow.SpeechOutput, error) {
	f.record(flow.FlowSynthesizeSpeech)
	return f.synthesize(in)
}

type fakePlayer struct {
	played [][]byte
	err    error
}

func (p *fakePlayer) Play(_ context.Context, wav []byte) error {
	p.played = append(p.played, wav)
	return p.err
}

func newStore(t *testing.T) *conversation.Store {
	t.Helper()
	s, err := conversation.Open(storage.NewMemoryStorage())
	require.NoError(t, err)
	return s
}

func textAttachment(name, instructions string) *Attachment {
	return &Attachment{Name: name, MIMEType: "text/plain", DataURI: flow.EncodeDataURI("text/plain", []byte(instructions)), Size: 12}
}

func TestCodingRequestUsesGenerateCode(t *testing.T) {
	flows := &fakeFlows{generateCode: func(in flow.GenerateCodeInput) (*flow.GenerateCodeOutput, error) {
		assert.Equal(t, "Write a function to reverse a string", in.Prompt)
		return &flow.GenerateCodeOutput{GeneratedText: "```js\nconst r = s => [...s].reverse().join('')\n```"}, nil
	}}
	store := newStore(t)
	o := New(store, flows)

	res, err := o.Submit(context.Background(), Input{Text: "  Write a function to reverse a string "})
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, []string{flow.FlowGenerateCode}, flows.calls)
	assert.Equal(t, flow.FlowGenerateCode, res.Flow)

	active := store.Active()
	require.NotNil(t, active)
	assert.Equal(t, "Write a function to reverse a...", active.Title)
	require.Len(t, active.Messages, 2)
	assert.Equal(t, "Write a function to reverse a string", active.Messages[0].Content)
	assert.Equal(t, flowchat.RoleAssistant, active.Messages[1].Role)
	assert.True(t, strings.HasPrefix(active.Messages[1].Content, "```js"))
	assert.False(t, o.Busy())
}

func TestGeneralQuestionUsesRespond(t *testing.T) {
	action := &flow.Action{Kind: flow.ActionOpenURL, URL: "https://en.wikipedia.org/wiki/Paris"}
	flows := &fakeFlows{respond: func(in flow.RespondInput) (*flow.RespondOutput, error) {
		return &flow.RespondOutput{Response: "Paris", Action: action}, nil
	}}
	store := newStore(t)

	res, err := New(store, flows).Submit(context.Background(), Input{Text: "What is the capital of France?"})
	require.NoError(t, err)
	assert.Equal(t, []string{flow.FlowRespond}, flows.calls)
	assert.Equal(t, "Paris", res.AssistantMessage.Content)
	assert.Equal(t, action, res.Action)
	assert.Equal(t, res.ConversationID, store.ActiveID())
}

func TestInputGuards(t *testing.T) {
	flows := &fakeFlows{}
	store := newStore(t)
	o := New(store, flows)
	ctx := context.Background()

	_, err := o.Submit(ctx, Input{Text: "  \n "})
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = o.Submit(ctx, Input{Attachment: textAttachment("notes.txt", "x")})
	assert.ErrorIs(t, err, ErrInstructionsRequired)

	big := textAttachment("big.bin", "x")
	big.Size = 6 * 1024 * 1024
	_, err = o.Submit(ctx, Input{Text: "analyze", Attachment: big})
	assert.ErrorIs(t, err, ErrFileTooLarge)

	assert.Empty(t, flows.calls)
	assert.Empty(t, store.List())
	assert.False(t, o.Busy())
}

func TestBusyRejectsConcurrentTurn(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	flows := &fakeFlows{respond: func(flow.RespondInput) (*flow.RespondOutput, error) {
		close(started)
		<-release
		return &flow.RespondOutput{Response: "done"}, nil
	}}
	store := newStore(t)
	o := New(store, flows)

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), Input{Text: "hello there"})
		done <- err
	}()

	<-started
	assert.True(t, o.Busy())
	_, err := o.Submit(context.Background(), Input{Text: "another one"})
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, o.Busy())
	assert.Len(t, store.Active().Messages, 2, "rejected turn is not recorded")
}

func TestFlowFailureRecordsOneFallback(t *testing.T) {
	remote := &flow.RemoteServiceError{Flow: flow.FlowRespond, Err: errors.New("503")}
	flows := &fakeFlows{respond: func(flow.RespondInput) (*flow.RespondOutput, error) {
		return nil, remote
	}}
	store := newStore(t)
	o := New(store, flows, WithSpeech(&fakePlayer{}))

	res, err := o.Submit(context.Background(), Input{Text: "hello there"})
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, remote)
	assert.Equal(t, TextFallback, res.AssistantMessage.Content)
	assert.Nil(t, res.Speech, "fallback answers are not spoken")

	msgs := store.Active().Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, TextFallback, msgs[1].Content)
	assert.False(t, o.Busy())
}

// failAfter accepts the first n writes and rejects the rest.
type failAfter struct {
	*storage.MemoryStorage
	n int
}

func (f *failAfter) Set(key string, value []byte) error {
	if f.n <= 0 {
		return errors.New("disk full")
	}
	f.n--
	return f.MemoryStorage.Set(key, value)
}

func TestReplyNotSaved(t *testing.T) {
	// The user message takes two writes: the list and the active pointer.
	st := &failAfter{MemoryStorage: storage.NewMemoryStorage(), n: 2}
	store, err := conversation.Open(st)
	require.NoError(t, err)
	flows := &fakeFlows{respond: func(flow.RespondInput) (*flow.RespondOutput, error) {
		return &flow.RespondOutput{Response: "Paris."}, nil
	}}
	o := New(store, flows)

	res, err := o.Submit(context.Background(), Input{Text: "What is the capital of France?"})
	assert.Nil(t, res)
	require.ErrorIs(t, err, ErrReplyNotSaved)
	assert.ErrorContains(t, err, "disk full")
	assert.False(t, o.Busy())

	msgs := store.Active().Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, flowchat.RoleUser, msgs[0].Role)
}

func TestFileTurnAnalyzeAndFallback(t *testing.T) {
	var got flow.AnalyzeFileInput
	flows := &fakeFlows{analyzeFile: func(in flow.AnalyzeFileInput) (*flow.AnalyzeFileOutput, error) {
		got = in
		return &flow.AnalyzeFileOutput{AnalysisResult: "Three lines."}, nil
	}}
	store := newStore(t)
	o := New(store, flows)
	att := textAttachment("notes.txt", "a\nb\nc")

	res, err := o.Submit(context.Background(), Input{Text: "Summarize", Attachment: att})
	require.NoError(t, err)
	assert.Equal(t, "File: notes.txt.\nInstructions: Summarize", res.UserMessage.Content)
	assert.Equal(t, "Three lines.", res.AssistantMessage.Content)
	assert.Equal(t, att.DataURI, got.FileDataURI)
	assert.Equal(t, "text/plain", got.FileType)
	assert.Equal(t, "Summarize", got.Instructions)

	flows.analyzeFile = func(flow.AnalyzeFileInput) (*flow.AnalyzeFileOutput, error) {
		return nil, errors.New("bad file")
	}
	res, err = o.Submit(context.Background(), Input{Text: "Summarize", Attachment: att})
	require.NoError(t, err)
	assert.Error(t, res.Err)
	assert.Equal(t, FileFallback, res.AssistantMessage.Content)
}

func TestAPKRouting(t *testing.T) {
	tests := []struct {
		name     string
		out      *flow.APKGuidanceOutput
		wantText string
	}{
		{
			name:     "possible",
			out:      &flow.APKGuidanceOutput{Guidance: "1. Install Capacitor", IsPossible: true},
			wantText: "1. Install Capacitor",
		},
		{
			name:     "not possible",
			out:      &flow.APKGuidanceOutput{Guidance: "This is not a web project.", IsPossible: false},
			wantText: "Sorry, I can't convert this project. This is not a web project.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flows := &fakeFlows{apkGuidance: func(in flow.APKGuidanceInput) (*flow.APKGuidanceOutput, error) {
				assert.Equal(t, "Convert this to APK", in.Instructions)
				return tt.out, nil
			}}
			zip := &Attachment{Name: "site.zip", MIMEType: "application/zip", DataURI: flow.EncodeDataURI("application/zip", []byte("PK")), Size: 2}
			res, err := New(newStore(t), flows).Submit(context.Background(), Input{Text: "Convert this to APK", Attachment: zip})
			require.NoError(t, err)
			assert.Equal(t, []string{flow.FlowAPKGuidance}, flows.calls)
			assert.Equal(t, tt.wantText, res.AssistantMessage.Content)
		})
	}
}

func TestSpeechSpeaksProseOnly(t *testing.T) {
	var spoken string
	flows := &fakeFlows{
		generateCode: func(flow.GenerateCodeInput) (*flow.GenerateCodeOutput, error) {
			return &flow.GenerateCodeOutput{GeneratedText: "Here you go.\n```js\nx()\n```"}, nil
		},
		synthesize: func(in flow.SpeechInput) (*flow.SpeechOutput, error) {
			spoken = in.Text
			return &flow.SpeechOutput{MIMEType: "audio/wav", Audio: []byte("RIFF")}, nil
		},
	}
	player := &fakePlayer{}
	res, err := New(newStore(t), flows, WithSpeech(player)).Submit(context.Background(), Input{Text: "write code"})
	require.NoError(t, err)
	assert.Equal(t, "Here you go.", spoken)
	assert.Equal(t, [][]byte{[]byte("RIFF")}, player.played)
	assert.Empty(t, res.Notices)
}

func TestSpeechSkippedForCodeOnlyAnswer(t *testing.T) {
	flows := &fakeFlows{generateCode: func(flow.GenerateCodeInput) (*flow.GenerateCodeOutput, error) {
		return &flow.GenerateCodeOutput{GeneratedText: "```js\nx()\n```"}, nil
	}}
	res, err := New(newStore(t), flows, WithSpeech(&fakePlayer{})).Submit(context.Background(), Input{Text: "write code"})
	require.NoError(t, err)
	assert.Equal(t, []string{flow.FlowGenerateCode}, flows.calls)
	assert.Nil(t, res.Speech)
}

func TestSpeechFailureBecomesNotice(t *testing.T) {
	flows := &fakeFlows{
		respond: func(flow.RespondInput) (*flow.RespondOutput, error) {
			return &flow.RespondOutput{Response: "Paris"}, nil
		},
		synthesize: func(flow.SpeechInput) (*flow.SpeechOutput, error) {
			return nil, &flow.RemoteServiceError{Flow: flow.FlowSynthesizeSpeech, Err: errors.New("quota")}
		},
	}
	store := newStore(t)
	res, err := New(store, flows, WithSpeech(&fakePlayer{})).Submit(context.Background(), Input{Text: "capital of France"})
	require.NoError(t, err)
	assert.NoError(t, res.Err)
	require.Len(t, res.Notices, 1)
	assert.Equal(t, "Speech Error", res.Notices[0].Title)
	assert.Len(t, store.Active().Messages, 2, "turn is kept")

	flows.synthesize = func(flow.SpeechInput) (*flow.SpeechOutput, error) {
		return &flow.SpeechOutput{Audio: []byte("RIFF")}, nil
	}
	res, err = New(store, flows, WithSpeech(&fakePlayer{err: errors.New("no device")})).Submit(context.Background(), Input{Text: "capital of France"})
	require.NoError(t, err)
	require.Len(t, res.Notices, 1)
	assert.Equal(t, "Playback Error", res.Notices[0].Title)
}

func TestLoadAttachment(t *testing.T) {
	dir := t.TempDir()

	small := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(small, []byte("hello"), 0644))
	att, err := LoadAttachment(small)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", att.Name)
	assert.Equal(t, "text/plain", att.MIMEType)
	assert.Equal(t, int64(5), att.Size)
	assert.Equal(t, "data:text/plain;base64,aGVsbG8=", att.DataURI)

	noExt := filepath.Join(dir, "project")
	require.NoError(t, os.WriteFile(noExt, []byte("PK\x03\x04rest-of-zip"), 0644))
	att, err = LoadAttachment(noExt)
	require.NoError(t, err)
	assert.Equal(t, "application/zip", att.MIMEType)

	big := filepath.Join(dir, "big.bin")
	f, err := os.Create(big)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(6*1024*1024))
	require.NoError(t, f.Close())
	_, err = LoadAttachment(big)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = LoadAttachment(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestAttachmentFromDataURI(t *testing.T) {
	att, err := AttachmentFromDataURI("a.csv", "", "data:text/csv;base64,YSxi")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", att.MIMEType)
	assert.Equal(t, int64(3), att.Size)

	_, err = AttachmentFromDataURI("a.csv", "text/csv", "garbage")
	assert.ErrorIs(t, err, flow.ErrInvalidInput)

	big := flow.EncodeDataURI("application/octet-stream", make([]byte, MaxFileSize+1))
	_, err = AttachmentFromDataURI("big.bin", "", big)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}
