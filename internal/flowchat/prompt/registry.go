package prompt

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

//go:embed defaults/*.toml
var defaultTemplates embed.FS

// BuiltinSource is the Source of templates compiled into the binary.
const BuiltinSource = "builtin"

// Entry describes an available template.
type Entry struct {
	Name   string
	Source string // directory the template was found in, or BuiltinSource
}

// Registry resolves flow templates by name. Templates in prompt directories
// override the built-in ones; later directories take precedence over earlier ones.
type Registry struct {
	dirs   []string
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]*Prompt
}

// NewRegistry creates a registry over the given prompt directories
func NewRegistry(dirs []string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		dirs:   append([]string(nil), dirs...),
		logger: logger,
		cache:  make(map[string]*Prompt),
	}
}

// Get returns the template with the given name
func (r *Registry) Get(name string) (*Prompt, error) {
	name = strings.TrimSuffix(name, ".toml")

	r.mu.RLock()
	p, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, source, err := r.load(name)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Loaded flow template", zap.String("name", name), zap.String("source", source))

	r.mu.Lock()
	r.cache[name] = p
	r.mu.Unlock()
	return p, nil
}

func (r *Registry) load(name string) (*Prompt, string, error) {
	promptFile := name + ".toml"

	// Continue searching to find later occurrences (later directories take precedence)
	var promptPath string
	for _, dir := range r.dirs {
		candidate := filepath.Join(dir, filepath.FromSlash(promptFile))
		if _, err := os.Stat(candidate); err == nil {
			promptPath = candidate
		}
	}
	if promptPath != "" {
		p, err := LoadPrompt(promptPath)
		if err != nil {
			return nil, "", fmt.Errorf("error loading prompt file %s: %w", promptPath, err)
		}
		return p, filepath.Dir(promptPath), nil
	}

	data, err := defaultTemplates.ReadFile(path.Join("defaults", promptFile))
	if err != nil {
		return nil, "", fmt.Errorf("prompt template '%s' not found in any of the prompt directories: %v", name, r.dirs)
	}
	p, err := DecodePrompt(string(data))
	if err != nil {
		return nil, "", fmt.Errorf("error loading built-in prompt %s: %w", name, err)
	}
	return p, BuiltinSource, nil
}

// Invalidate drops all cached templates
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.cache = make(map[string]*Prompt)
	r.mu.Unlock()
}

// List returns every available template, sorted by name. A name found in
// several places is reported once with the source that wins.
func (r *Registry) List() ([]Entry, error) {
	found := make(map[string]string)

	builtin, err := fs.Glob(defaultTemplates, "defaults/*.toml")
	if err != nil {
		return nil, err
	}
	for _, p := range builtin {
		found[strings.TrimSuffix(path.Base(p), ".toml")] = BuiltinSource
	}

	for _, dir := range r.dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			r.logger.Debug("Prompt directory does not exist", zap.String("dir", dir))
			continue
		}
		err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || !strings.HasSuffix(info.Name(), ".toml") {
				return nil
			}
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return nil
			}
			found[filepath.ToSlash(strings.TrimSuffix(rel, ".toml"))] = dir
			return nil
		})
		if err != nil {
			r.logger.Warn("Error walking prompt directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	entries := make([]Entry, 0, len(found))
	for name, source := range found {
		entries = append(entries, Entry{Name: name, Source: source})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// WriteBuiltins copies the built-in templates into dir, skipping names that
// already exist there. It returns the names written.
func WriteBuiltins(dir string) ([]string, error) {
	files, err := fs.Glob(defaultTemplates, "defaults/*.toml")
	if err != nil {
		return nil, err
	}
	var written []string
	for _, f := range files {
		name := path.Base(f)
		target := filepath.Join(dir, name)
		if _, err := os.Stat(target); err == nil {
			continue
		}
		data, err := defaultTemplates.ReadFile(f)
		if err != nil {
			return written, err
		}
		if err := os.WriteFile(target, data, 0644); err != nil {
			return written, err
		}
		written = append(written, strings.TrimSuffix(name, ".toml"))
	}
	return written, nil
}

// Watch invalidates the cache whenever a template in a prompt directory, or
// any directory below it, changes. It blocks until ctx is done.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	watched := 0
	for _, dir := range r.dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		watched += r.watchTree(watcher, dir)
	}
	r.logger.Debug("Watching prompt directories", zap.Int("count", watched))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					r.watchTree(watcher, ev.Name)
					r.Invalidate()
					continue
				}
			}
			if !strings.HasSuffix(ev.Name, ".toml") {
				continue
			}
			r.logger.Info("Flow template changed", zap.String("file", ev.Name), zap.String("op", ev.Op.String()))
			r.Invalidate()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("Prompt watcher error", zap.Error(err))
		}
	}
}

// watchTree adds root and every directory below it, since fsnotify watches
// are not recursive. It returns the number of directories added.
func (r *Registry) watchTree(watcher *fsnotify.Watcher, root string) int {
	added := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(p); err != nil {
			r.logger.Warn("Cannot watch prompt directory", zap.String("dir", p), zap.Error(err))
			return nil
		}
		added++
		return nil
	})
	if err != nil {
		r.logger.Warn("Error walking prompt directory", zap.String("dir", root), zap.Error(err))
	}
	return added
}
