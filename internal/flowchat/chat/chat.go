// Package chat runs a chat turn: it records the user's message, routes the
// turn to the right flow, records the answer (or a fallback) and optionally
// speaks it.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/longkey1/flowchat/internal/flowchat"
	"github.com/longkey1/flowchat/internal/flowchat/classify"
	"github.com/longkey1/flowchat/internal/flowchat/conversation"
	"github.com/longkey1/flowchat/internal/flowchat/flow"
	"github.com/longkey1/flowchat/internal/flowchat/render"
	"github.com/longkey1/flowchat/internal/flowchat/speech"
	"go.uber.org/zap"
)

// Fallback answers recorded when a flow fails.
const (
	TextFallback = "Sorry, I encountered an error. Please try again."
	FileFallback = "Sorry, I couldn't process the file. Please check the file and try again."
	apkRefusal   = "Sorry, I can't convert this project. "
)

var (
	ErrEmptyInput           = errors.New("message is empty")
	ErrBusy                 = errors.New("a message is already being processed")
	ErrInstructionsRequired = errors.New("please provide instructions for the file")
	ErrFileTooLarge         = errors.New("file is too large (maximum 5 MB)")

	// ErrReplyNotSaved reports a turn whose assistant message could not be
	// stored. The user message is kept and the conversation is unchanged otherwise.
	ErrReplyNotSaved = errors.New("reply could not be saved")
)

// Flows is the set of hosted flows a turn may call.
type Flows interface {
	Respond(ctx context.Context, in flow.RespondInput) (*flow.RespondOutput, error)
	GenerateCode(ctx context.Context, in flow.GenerateCodeInput) (*flow.GenerateCodeOutput, error)
	AnalyzeFile(ctx context.Context, in flow.AnalyzeFileInput) (*flow.AnalyzeFileOutput, error)
	APKGuidance(ctx context.Context, in flow.APKGuidanceInput) (*flow.APKGuidanceOutput, error)
	SynthesizeSpeech(ctx context.Context, in flow.SpeechInput) (*flow.SpeechOutput, error)
}

// Input is one user turn.
type Input struct {
	Text       string
	Attachment *Attachment
}

// Notice is a non-fatal problem to show the user.
type Notice struct {
	Title   string
	Message string
}

// Result describes a completed turn.
type Result struct {
	ConversationID   string
	UserMessage      flowchat.Message
	AssistantMessage flowchat.Message
	Flow             string
	Action           *flow.Action
	Speech           *flow.SpeechOutput
	Notices          []Notice
	// Err is the flow failure that produced the fallback answer, if any.
	Err error
}

// Orchestrator runs chat turns one at a time.
type Orchestrator struct {
	store  *conversation.Store
	flows  Flows
	logger *zap.Logger

	speak  bool
	player speech.Player

	busy atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSpeech enables speaking answers. A nil player only synthesizes; the
// audio is returned in Result.Speech for the caller to play.
func WithSpeech(player speech.Player) Option {
	return func(o *Orchestrator) {
		o.speak = true
		o.player = player
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New creates an orchestrator recording turns in store.
func New(store *conversation.Store, flows Flows, opts ...Option) *Orchestrator {
	o := &Orchestrator{store: store, flows: flows, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Busy reports whether a turn is in flight.
func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

// Submit runs one turn. Input errors (ErrEmptyInput, ErrBusy,
// ErrInstructionsRequired, ErrFileTooLarge) are returned before anything is
// recorded. A failing flow is not an error: the fallback answer is recorded
// and the failure is reported in Result.Err.
func (o *Orchestrator) Submit(ctx context.Context, in Input) (*Result, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && in.Attachment == nil {
		return nil, ErrEmptyInput
	}
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer o.busy.Store(false)

	if in.Attachment != nil {
		if text == "" {
			return nil, ErrInstructionsRequired
		}
		if in.Attachment.Size > MaxFileSize {
			return nil, fmt.Errorf("%w: %s is %s", ErrFileTooLarge, in.Attachment.Name, formatSize(in.Attachment.Size))
		}
	}

	userContent := text
	if in.Attachment != nil {
		userContent = fmt.Sprintf("File: %s.\nInstructions: %s", in.Attachment.Name, text)
	}
	userMsg, convID, err := o.store.AppendMessage(flowchat.Message{Role: flowchat.RoleUser, Content: userContent}, true)
	if err != nil {
		return nil, err
	}

	res := &Result{ConversationID: convID, UserMessage: userMsg}
	answer, err := o.dispatch(ctx, text, in.Attachment, res)
	if err != nil {
		o.logger.Error("Flow failed", zap.String("flow", res.Flow), zap.Error(err))
		res.Err = err
		answer = TextFallback
		if in.Attachment != nil {
			answer = FileFallback
		}
	}

	assistantMsg, _, err := o.store.AppendMessage(flowchat.Message{Role: flowchat.RoleAssistant, Content: answer}, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReplyNotSaved, err)
	}
	res.AssistantMessage = assistantMsg

	if res.Err == nil && o.speak {
		o.speakAnswer(ctx, answer, res)
	}
	return res, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, text string, att *Attachment, res *Result) (string, error) {
	if att != nil {
		if strings.Contains(strings.ToLower(text), "apk") {
			res.Flow = flow.FlowAPKGuidance
			out, err := o.flows.APKGuidance(ctx, flow.APKGuidanceInput{ProjectZipDataURI: att.DataURI, Instructions: text})
			if err != nil {
				return "", err
			}
			if !out.IsPossible {
				return apkRefusal + out.Guidance, nil
			}
			return out.Guidance, nil
		}

		res.Flow = flow.FlowAnalyzeFile
		out, err := o.flows.AnalyzeFile(ctx, flow.AnalyzeFileInput{FileDataURI: att.DataURI, FileType: att.MIMEType, Instructions: text})
		if err != nil {
			return "", err
		}
		return out.AnalysisResult, nil
	}

	if classify.IsCodingRequest(text, false) {
		res.Flow = flow.FlowGenerateCode
		out, err := o.flows.GenerateCode(ctx, flow.GenerateCodeInput{Prompt: text})
		if err != nil {
			return "", err
		}
		return out.GeneratedText, nil
	}

	res.Flow = flow.FlowRespond
	out, err := o.flows.Respond(ctx, flow.RespondInput{Query: text})
	if err != nil {
		return "", err
	}
	res.Action = out.Action
	return out.Response, nil
}

// speakAnswer voices the prose before the first code block. Failures become
// notices; the recorded turn stands.
func (o *Orchestrator) speakAnswer(ctx context.Context, answer string, res *Result) {
	text := render.SpeakablePrefix(answer)
	if text == "" {
		return
	}

	out, err := o.flows.SynthesizeSpeech(ctx, flow.SpeechInput{Text: text})
	if err != nil {
		o.logger.Warn("Speech synthesis failed", zap.Error(err))
		res.Notices = append(res.Notices, Notice{Title: "Speech Error", Message: "Could not generate speech: " + err.Error()})
		return
	}
	res.Speech = out

	if o.player == nil {
		return
	}
	if err := o.player.Play(ctx, out.Audio); err != nil {
		o.logger.Warn("Audio playback failed", zap.Error(err))
		res.Notices = append(res.Notices, Notice{Title: "Playback Error", Message: "Could not play audio: " + err.Error()})
	}
}
