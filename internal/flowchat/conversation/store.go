package conversation

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/longkey1/flowchat/internal/flowchat"
	"github.com/longkey1/flowchat/internal/flowchat/storage"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no conversation has the requested id.
var ErrNotFound = errors.New("conversation not found")

// DeletePolicy decides what becomes active after the active conversation is deleted.
type DeletePolicy string

const (
	// DeleteClear leaves no conversation active (fresh-chat state).
	DeleteClear DeletePolicy = "clear"
	// DeleteMostRecent activates the most recently modified remaining conversation.
	DeleteMostRecent DeletePolicy = "most_recent"
)

// ParseDeletePolicy converts a configuration value. Empty means DeleteClear.
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch DeletePolicy(s) {
	case "", DeleteClear:
		return DeleteClear, nil
	case DeleteMostRecent:
		return DeleteMostRecent, nil
	default:
		return "", fmt.Errorf("invalid delete policy %q (expected %q or %q)", s, DeleteClear, DeleteMostRecent)
	}
}

// Store holds all conversations and the active pointer, persisting both
// after every change. It is safe for concurrent use.
type Store struct {
	storage storage.Storage
	policy  DeletePolicy
	now     func() time.Time
	newID   func() string
	logger  *zap.Logger

	mu            sync.Mutex
	conversations []*Conversation // most recently created first
	activeID      string
}

// Option configures a Store.
type Option func(*Store)

// WithDeletePolicy sets the policy applied when the active conversation is deleted.
func WithDeletePolicy(p DeletePolicy) Option {
	return func(s *Store) { s.policy = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides conversation and message id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open loads the persisted conversations and active pointer from st.
func Open(st storage.Storage, opts ...Option) (*Store, error) {
	s := &Store{
		storage: st,
		policy:  DeleteClear,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	var loaded []*Conversation
	if err := storage.GetJSON(st, storage.KeyConversations, &loaded); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}
	for _, c := range loaded {
		if c != nil && c.ID != "" {
			s.conversations = append(s.conversations, c)
		}
	}

	var active string
	if err := storage.GetJSON(st, storage.KeyActiveConversation, &active); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load active conversation: %w", err)
	}
	if active != "" && s.indexOf(active) < 0 {
		s.logger.Warn("Active conversation no longer exists, starting a new chat", zap.String("id", active))
		active = ""
	}
	s.activeID = active

	s.logger.Debug("Conversations loaded", zap.Int("count", len(s.conversations)), zap.String("active", s.activeID))
	return s, nil
}

func (s *Store) indexOf(id string) int {
	for i, c := range s.conversations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// persist writes the state; both keys are removed when no conversation remains.
func (s *Store) persist() error {
	if len(s.conversations) == 0 {
		if err := s.storage.Delete(storage.KeyConversations); err != nil {
			return fmt.Errorf("failed to save conversations: %w", err)
		}
		if err := s.storage.Delete(storage.KeyActiveConversation); err != nil {
			return fmt.Errorf("failed to save active conversation: %w", err)
		}
		return nil
	}

	if err := storage.SetJSON(s.storage, storage.KeyConversations, s.conversations); err != nil {
		return fmt.Errorf("failed to save conversations: %w", err)
	}
	if s.activeID == "" {
		if err := s.storage.Delete(storage.KeyActiveConversation); err != nil {
			return fmt.Errorf("failed to save active conversation: %w", err)
		}
		return nil
	}
	if err := storage.SetJSON(s.storage, storage.KeyActiveConversation, s.activeID); err != nil {
		return fmt.Errorf("failed to save active conversation: %w", err)
	}
	return nil
}

// commit installs the next state and persists it. On a failed write the
// previous state is restored in memory and written back.
func (s *Store) commit(conversations []*Conversation, activeID string) error {
	prevConversations, prevActiveID := s.conversations, s.activeID
	s.conversations, s.activeID = conversations, activeID
	err := s.persist()
	if err == nil {
		return nil
	}
	s.conversations, s.activeID = prevConversations, prevActiveID
	if rerr := s.persist(); rerr != nil {
		s.logger.Warn("Failed to restore saved conversations", zap.Error(rerr))
	}
	return err
}

// AppendMessage adds msg to the active conversation. Without an active
// conversation a new one is created and activated; its title comes from msg
// when isUserMessage is true and is PlaceholderTitle otherwise.
// Missing id and timestamp are filled in. The stored message is returned
// with the id of the conversation it went to.
func (s *Store) AppendMessage(msg flowchat.Message, isUserMessage bool) (flowchat.Message, string, error) {
	if !msg.Role.Valid() {
		return flowchat.Message{}, "", fmt.Errorf("invalid message role %q", msg.Role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if msg.ID == "" {
		msg.ID = s.newID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}

	var (
		conv *Conversation
		next []*Conversation
	)
	if i := s.indexOf(s.activeID); i >= 0 {
		updated := s.conversations[i].clone()
		updated.Messages = append(updated.Messages, msg)
		updated.Timestamp = now
		conv = &updated
		next = slices.Clone(s.conversations)
		next[i] = conv
	} else {
		title := PlaceholderTitle
		if isUserMessage {
			title = DeriveTitle(msg.Content)
		}
		conv = &Conversation{
			ID:        s.newID(),
			Title:     title,
			Messages:  []flowchat.Message{msg},
			CreatedAt: now,
			Timestamp: now,
		}
		next = append([]*Conversation{conv}, s.conversations...)
	}

	if err := s.commit(next, conv.ID); err != nil {
		return flowchat.Message{}, "", err
	}
	if len(conv.Messages) == 1 {
		s.logger.Debug("Conversation created", zap.String("id", conv.ID), zap.String("title", conv.Title))
	}
	return msg, conv.ID, nil
}

// NewChat clears the active pointer; the next message starts a new conversation.
func (s *Store) NewChat() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commit(s.conversations, "")
}

// Select makes the conversation with the given id active.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(id) < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.commit(s.conversations, id)
}

// Delete removes a conversation. Deleting the active conversation applies
// the delete policy.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := slices.Delete(slices.Clone(s.conversations), i, i+1)

	activeID := s.activeID
	if activeID == id {
		activeID = ""
		if s.policy == DeleteMostRecent {
			if latest := mostRecent(next); latest != nil {
				activeID = latest.ID
			}
		}
		s.logger.Debug("Active conversation deleted", zap.String("id", id), zap.String("policy", string(s.policy)), zap.String("active", activeID))
	}
	return s.commit(next, activeID)
}

// Rename changes a conversation's title.
func (s *Store) Rename(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	renamed := s.conversations[i].clone()
	renamed.Title = title
	next := slices.Clone(s.conversations)
	next[i] = &renamed
	return s.commit(next, s.activeID)
}

// Clear deletes every conversation.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commit(nil, "")
}

// Get returns a copy of the conversation with the given id.
func (s *Store) Get(id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c := s.conversations[i].clone()
	return &c, nil
}

// Active returns a copy of the active conversation, or nil in the
// fresh-chat state.
func (s *Store) Active() *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(s.activeID)
	if i < 0 {
		return nil
	}
	c := s.conversations[i].clone()
	return &c
}

// ActiveID returns the id of the active conversation, or "".
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// List returns copies of all conversations sorted by last modification (newest first)
func (s *Store) List() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		list = append(list, c.clone())
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Timestamp.After(list[j].Timestamp)
	})
	return list
}

func (s *Store) latest() *Conversation {
	return mostRecent(s.conversations)
}

func mostRecent(conversations []*Conversation) *Conversation {
	var latest *Conversation
	for _, c := range conversations {
		if latest == nil || c.Timestamp.After(latest.Timestamp) {
			latest = c
		}
	}
	return latest
}

// Find finds a conversation by id prefix (minimum 4 characters).
// Returns *AmbiguousIDError if multiple conversations match.
// Special case: "latest" returns the most recently modified conversation
func (s *Store) Find(prefix string) (*Conversation, error) {
	if prefix == "latest" {
		s.mu.Lock()
		defer s.mu.Unlock()
		latest := s.latest()
		if latest == nil {
			return nil, fmt.Errorf("%w: no conversations yet", ErrNotFound)
		}
		c := latest.clone()
		return &c, nil
	}

	if len(prefix) < 4 {
		return nil, fmt.Errorf("conversation ID prefix must be at least 4 characters (got %d)", len(prefix))
	}

	var matches []Conversation
	for _, c := range s.List() {
		if c.ID == prefix {
			return &c, nil
		}
		if strings.HasPrefix(c.ID, prefix) {
			matches = append(matches, c)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return &matches[0], nil
	default:
		return nil, &AmbiguousIDError{Prefix: prefix, Matches: matches}
	}
}
