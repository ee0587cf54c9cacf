// Package app assembles the application state: persisted storage, the
// conversation store, the backend and flows, and the chat orchestrator.
package app

import (
	"fmt"
	"path/filepath"

	"github.com/longkey1/flowchat/internal/flowchat"
	"github.com/longkey1/flowchat/internal/flowchat/auth"
	"github.com/longkey1/flowchat/internal/flowchat/chat"
	"github.com/longkey1/flowchat/internal/flowchat/config"
	"github.com/longkey1/flowchat/internal/flowchat/conversation"
	"github.com/longkey1/flowchat/internal/flowchat/flow"
	"github.com/longkey1/flowchat/internal/flowchat/prompt"
	"github.com/longkey1/flowchat/internal/flowchat/speech"
	"github.com/longkey1/flowchat/internal/flowchat/storage"
	"go.uber.org/zap"
)

// SQLiteFile is the database file name inside the data directory
const SQLiteFile = "flowchat.db"

// App is the state shared by the CLI and the HTTP server.
type App struct {
	Config        *config.Config
	Logger        *zap.Logger
	Storage       storage.Storage
	Auth          *auth.Authenticator
	Conversations *conversation.Store
	Backend       flowchat.Backend
	Prompts       *prompt.Registry
	Flows         *flow.Client
	Chat          *chat.Orchestrator
	// Player is nil when answers are not spoken locally.
	Player speech.Player
}

type options struct {
	storage  storage.Storage
	backend  flowchat.Backend
	vars     map[string]string
	debug    bool
	playback bool
}

// Option configures New.
type Option func(*options)

// WithStorage uses st instead of opening the configured storage.
func WithStorage(st storage.Storage) Option {
	return func(o *options) { o.storage = st }
}

// WithBackend uses b instead of the backend named by the model setting.
func WithBackend(b flowchat.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithVariables passes extra template variables to every flow.
func WithVariables(vars map[string]string) Option {
	return func(o *options) { o.vars = vars }
}

// WithDebug turns on verbose backend errors.
func WithDebug(enabled bool) Option {
	return func(o *options) { o.debug = enabled }
}

// WithoutPlayback synthesizes speech without playing it; the audio is left
// in chat.Result.Speech for the caller.
func WithoutPlayback() Option {
	return func(o *options) { o.playback = false }
}

// New opens the application state described by cfg.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &options{playback: true}
	for _, opt := range opts {
		opt(o)
	}

	st := o.storage
	if st == nil {
		var err error
		st, err = OpenStorage(cfg)
		if err != nil {
			return nil, err
		}
	}

	a, err := assemble(cfg, logger, st, o)
	if err != nil {
		if o.storage == nil {
			st.Close()
		}
		return nil, err
	}
	return a, nil
}

func assemble(cfg *config.Config, logger *zap.Logger, st storage.Storage, o *options) (*App, error) {
	policy, err := conversation.ParseDeletePolicy(cfg.DeletePolicy)
	if err != nil {
		return nil, err
	}
	store, err := conversation.Open(st,
		conversation.WithDeletePolicy(policy),
		conversation.WithLogger(logger.Named("conversation")))
	if err != nil {
		return nil, err
	}

	backend := o.backend
	if backend == nil {
		provider, err := cfg.GetProvider()
		if err != nil {
			return nil, fmt.Errorf("invalid model: %w", err)
		}
		backend, err = NewBackend(cfg, provider)
		if err != nil {
			return nil, err
		}
	}
	backend.SetDebug(o.debug)

	model, ok := speechModel(cfg, backend)
	if !ok && cfg.SpeechEnabled {
		logger.Warn("Speech model is not served by the chat provider, using the provider default",
			zap.String("speech_model", cfg.GetSpeechModel()), zap.String("provider", backend.Name()))
	}

	registry := prompt.NewRegistry(cfg.PromptDirs, logger.Named("prompt"))
	flows := flow.NewClient(backend, registry, logger.Named("flow"),
		flow.WithTimeout(cfg.RequestTimeout),
		flow.WithSpeechModel(model, cfg.SpeechVoice),
		flow.WithVariables(o.vars))

	a := &App{
		Config:        cfg,
		Logger:        logger,
		Storage:       st,
		Auth:          auth.New(st, logger.Named("auth")),
		Conversations: store,
		Backend:       backend,
		Prompts:       registry,
		Flows:         flows,
	}

	chatOpts := []chat.Option{chat.WithLogger(logger.Named("chat"))}
	if cfg.SpeechEnabled {
		if o.playback {
			player, err := speech.NewCommandPlayer(cfg.SpeechPlayer)
			if err != nil {
				logger.Warn("Speech output disabled", zap.Error(err))
			} else {
				a.Player = player
				chatOpts = append(chatOpts, chat.WithSpeech(player))
			}
		} else {
			chatOpts = append(chatOpts, chat.WithSpeech(nil))
		}
	}
	a.Chat = chat.New(store, flows, chatOpts...)
	return a, nil
}

// OpenStorage opens the storage backend named by cfg.Storage.
func OpenStorage(cfg *config.Config) (storage.Storage, error) {
	dir, err := cfg.GetDataDir()
	if err != nil {
		return nil, err
	}
	switch cfg.Storage {
	case config.StorageSQLite:
		return storage.NewSQLiteStorage(filepath.Join(dir, SQLiteFile))
	case config.StorageFile, "":
		return storage.NewFileStorage(dir)
	default:
		return nil, fmt.Errorf("unsupported storage: %s", cfg.Storage)
	}
}

// Close releases the storage.
func (a *App) Close() error {
	return a.Storage.Close()
}
