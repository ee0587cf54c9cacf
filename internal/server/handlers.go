package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/longkey1/flowchat/internal/flowchat"
	"github.com/longkey1/flowchat/internal/flowchat/auth"
	"github.com/longkey1/flowchat/internal/flowchat/chat"
	"github.com/longkey1/flowchat/internal/flowchat/conversation"
	"github.com/longkey1/flowchat/internal/flowchat/flow"
	"github.com/longkey1/flowchat/internal/flowchat/render"
	"github.com/longkey1/flowchat/internal/flowchat/speech"
	"github.com/longkey1/flowchat/internal/version"
	"go.uber.org/zap"
)

// badRequestError marks a malformed request body.
type badRequestError struct{ err error }

func (e *badRequestError) Error() string { return e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return &badRequestError{err: fmt.Errorf("invalid request body: %w", err)}
	}
	return nil
}

// statusFor maps an error to the HTTP status reported to the client.
func statusFor(err error) int {
	var (
		tooLarge   *http.MaxBytesError
		badRequest *badRequestError
		credential *auth.CredentialError
		ambiguous  *conversation.AmbiguousIDError
		remote     *flow.RemoteServiceError
	)
	switch {
	case errors.Is(err, chat.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, chat.ErrFileTooLarge), errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, chat.ErrEmptyInput), errors.Is(err, chat.ErrInstructionsRequired),
		errors.Is(err, flow.ErrInvalidInput), errors.As(err, &badRequest),
		errors.As(err, &credential), errors.As(err, &ambiguous):
		return http.StatusBadRequest
	case errors.Is(err, conversation.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrNotAuthenticated), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.As(err, &remote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, status, err.Error())
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Backend string `json:"backend"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: version.Short(), Backend: s.app.Backend.Name()})
}

// Auth

type credentialsRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := s.app.Auth.Login(req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := s.app.Auth.Signup(req.Name, req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Auth.Logout(); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Conversations

type conversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	Timestamp    time.Time `json:"timestamp"`
	Active       bool      `json:"active"`
}

type conversationList struct {
	ActiveID      string                `json:"active_id"`
	Conversations []conversationSummary `json:"conversations"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	store := s.app.Conversations
	activeID := store.ActiveID()
	list := conversationList{ActiveID: activeID, Conversations: []conversationSummary{}}
	for _, c := range store.List() {
		list.Conversations = append(list.Conversations, conversationSummary{
			ID:           c.ID,
			Title:        c.Title,
			MessageCount: c.MessageCount(),
			CreatedAt:    c.CreatedAt,
			Timestamp:    c.Timestamp,
			Active:       c.ID == activeID,
		})
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Conversations.NewChat(); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) find(w http.ResponseWriter, r *http.Request) (*conversation.Conversation, bool) {
	conv, err := s.app.Conversations.Find(r.PathValue("id"))
	if err != nil {
		if !errors.Is(err, conversation.ErrNotFound) {
			err = &badRequestError{err: err}
		}
		s.fail(w, r, err)
		return nil, false
	}
	return conv, true
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.find(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleSelectConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.find(w, r)
	if !ok {
		return
	}
	if err := s.app.Conversations.Select(conv.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type renameRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.find(w, r)
	if !ok {
		return
	}
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.app.Conversations.Rename(conv.ID, req.Title); err != nil {
		if !errors.Is(err, conversation.ErrNotFound) {
			err = &badRequestError{err: err}
		}
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.find(w, r)
	if !ok {
		return
	}
	if err := s.app.Conversations.Delete(conv.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var exportTypes = map[conversation.Format]struct{ contentType, ext string }{
	conversation.FormatJSON:     {"application/json", "json"},
	conversation.FormatYAML:     {"application/yaml", "yaml"},
	conversation.FormatMarkdown: {"text/markdown; charset=utf-8", "md"},
}

func (s *Server) handleExportConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.find(w, r)
	if !ok {
		return
	}
	name := r.URL.Query().Get("format")
	if name == "" {
		name = string(conversation.FormatMarkdown)
	}
	format, err := conversation.ParseFormat(name)
	if err != nil {
		s.fail(w, r, &badRequestError{err: err})
		return
	}
	t := exportTypes[format]
	w.Header().Set("Content-Type", t.contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "conversation-"+conv.GetShortID()+"."+t.ext))
	if err := conversation.Export(w, conv, format); err != nil {
		s.logger.Error("Export failed", zap.String("id", conv.ID), zap.Error(err))
	}
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.find(w, r)
	if !ok {
		return
	}
	msgIndex, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || msgIndex < 0 || msgIndex >= len(conv.Messages) {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	blocks := render.Blocks(conv.Messages[msgIndex].Content)
	blockIndex, err := strconv.Atoi(r.PathValue("block"))
	if err != nil || blockIndex < 0 || blockIndex >= len(blocks) {
		writeError(w, http.StatusNotFound, "code block not found")
		return
	}

	page, err := render.PreviewPage(blocks[blockIndex])
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.Header().Set("Content-Security-Policy", render.PreviewCSP)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(page))
}

// Chat

type fileUpload struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	DataURI string `json:"data_uri"`
}

type chatRequest struct {
	Text string      `json:"text"`
	File *fileUpload `json:"file,omitempty"`
}

type speechView struct {
	Media    string `json:"media"`
	MIMEType string `json:"mime_type"`
}

type blockView struct {
	Index       int    `json:"index"`
	Language    string `json:"language"`
	Code        string `json:"code"`
	Previewable bool   `json:"previewable"`
}

type noticeView struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

type chatResponse struct {
	ConversationID   string           `json:"conversation_id"`
	UserMessage      flowchat.Message `json:"user_message"`
	AssistantMessage flowchat.Message `json:"assistant_message"`
	Flow             string           `json:"flow"`
	Action           *flow.Action     `json:"action,omitempty"`
	Blocks           []blockView      `json:"blocks,omitempty"`
	Speech           *speechView      `json:"speech,omitempty"`
	Notices          []noticeView     `json:"notices,omitempty"`
	Error            string           `json:"error,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	in := chat.Input{Text: req.Text}
	if req.File != nil {
		att, err := chat.AttachmentFromDataURI(req.File.Name, req.File.Type, req.File.DataURI)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		in.Attachment = att
	}

	res, err := s.app.Chat.Submit(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := chatResponse{
		ConversationID:   res.ConversationID,
		UserMessage:      res.UserMessage,
		AssistantMessage: res.AssistantMessage,
		Flow:             res.Flow,
		Action:           res.Action,
	}
	for _, b := range render.Blocks(res.AssistantMessage.Content) {
		resp.Blocks = append(resp.Blocks, blockView{Index: b.Index, Language: b.Language, Code: b.Code, Previewable: b.CanPreview()})
	}
	if res.Speech != nil {
		resp.Speech = &speechView{Media: res.Speech.Media, MIMEType: res.Speech.MIMEType}
	}
	for _, n := range res.Notices {
		resp.Notices = append(resp.Notices, noticeView{Title: n.Title, Message: n.Message})
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

type speechRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.app.Flows.SynthesizeSpeech(r.Context(), flow.SpeechInput{Text: req.Text})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, speechView{Media: out.Media, MIMEType: out.MIMEType})
}

// Settings

type languageSetting struct {
	Language string `json:"language"`
	Name     string `json:"name,omitempty"`
}

func (s *Server) handleGetSpeechLanguage(w http.ResponseWriter, r *http.Request) {
	locale, err := speech.LoadLanguage(s.app.Storage)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, languageSetting{Language: locale, Name: speech.LanguageName(locale)})
}

func (s *Server) handlePutSpeechLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageSetting
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := speech.ParseLanguage(req.Language); err != nil {
		s.fail(w, r, &badRequestError{err: err})
		return
	}
	locale, err := speech.SaveLanguage(s.app.Storage, req.Language)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, languageSetting{Language: locale, Name: speech.LanguageName(locale)})
}
