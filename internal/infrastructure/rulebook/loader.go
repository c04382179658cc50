package rulebook

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/hera/autojournal/internal/domain/posting"
	"github.com/hera/autojournal/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Loader reads a rulebook file and watches it for changes. It implements
// posting.RulebookProvider; a journal always sees one complete rulebook.
type Loader struct {
	path     string
	logger   *zap.Logger
	mu       sync.RWMutex
	current  *posting.Rulebook
	onChange []func(*posting.Rulebook)
}

// NewLoader creates a Loader and performs the initial load
func NewLoader(path string, logger *zap.Logger) (*Loader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loader{path: path, logger: logger}
	book, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = book
	return l, nil
}

// Current returns the latest successfully loaded rulebook
func (l *Loader) Current() *posting.Rulebook {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked after every successful reload
func (l *Loader) OnChange(fn func(*posting.Rulebook)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch reloads the rulebook whenever its file is written or replaced.
// The parent directory is watched so editors that save via rename are
// picked up. A file that fails to parse leaves the previous rulebook in
// place. Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("rulebook watcher: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("rulebook watcher add %s: %w", dir, err)
	}
	target := filepath.Clean(l.path)

	done := make(chan struct{})
	var once sync.Once
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						l.logger.Error("Rulebook reload failed, keeping previous version",
							zap.String("path", l.path),
							zap.String("version", l.Current().Version),
							zap.Error(err),
						)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warn("Rulebook watcher error", zap.Error(err))
			case <-done:
				return
			}
		}
	}()

	l.logger.Info("Watching rulebook for changes", zap.String("path", l.path))
	return func() { once.Do(func() { close(done) }) }, nil
}

// Reload forces an immediate re-read of the rulebook file
func (l *Loader) Reload() (*posting.Rulebook, error) {
	book, err := l.load()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	previous := l.current
	l.current = book
	callbacks := make([]func(*posting.Rulebook), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()

	fields := []zap.Field{zap.String("path", l.path), zap.String("version", book.Version)}
	if previous != nil {
		fields = append(fields, zap.String("previous_version", previous.Version))
	}
	l.logger.Info("Rulebook reloaded", fields...)

	for _, fn := range callbacks {
		fn(book)
	}
	return book, nil
}

func (l *Loader) load() (*posting.Rulebook, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read rulebook %s: %w", l.path, err)
	}
	book, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rulebook %s: %w", l.path, err)
	}
	return book, nil
}

// NewProvider returns the rulebook source described by cfg. Without a path
// the built-in table is used. The stop function is always safe to call.
func NewProvider(cfg config.RulebookConfig, logger *zap.Logger) (posting.RulebookProvider, func(), error) {
	noop := func() {}
	if cfg.Path == "" {
		logger.Info("Using built-in rulebook", zap.String("version", posting.DefaultRulebookVersion))
		return posting.StaticRulebook{Book: posting.DefaultRulebook()}, noop, nil
	}

	loader, err := NewLoader(cfg.Path, logger)
	if err != nil {
		return nil, noop, err
	}
	logger.Info("Rulebook loaded",
		zap.String("path", cfg.Path),
		zap.String("version", loader.Current().Version),
		zap.Int("mappings", len(loader.Current().Mappings)),
	)
	if !cfg.Watch {
		return loader, noop, nil
	}
	stop, err := loader.Watch()
	if err != nil {
		return nil, noop, err
	}
	return loader, stop, nil
}

var _ posting.RulebookProvider = (*Loader)(nil)
