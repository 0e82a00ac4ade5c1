// Package watch feeds files dropped into a directory to the ingest pipeline.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 400 * time.Millisecond

// DefaultExtensions are the file types worth ingesting.
var DefaultExtensions = []string{".json", ".xlsx"}

// Handler receives a settled file path.
type Handler func(ctx context.Context, path string)

// Options configures a Watcher.
type Options struct {
	Extensions []string
	Debounce   time.Duration
	Logger     *slog.Logger
}

// Watcher watches one directory and calls its handler once a created or
// written file has been quiet for the debounce interval.
type Watcher struct {
	dir      string
	exts     []string
	debounce time.Duration
	handle   Handler
	log      *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
	wg      sync.WaitGroup
}

// New creates a Watcher for dir.
func New(dir string, handle Handler, opts Options) *Watcher {
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Watcher{
		dir:      filepath.Clean(dir),
		exts:     opts.Extensions,
		debounce: opts.Debounce,
		handle:   handle,
		log:      opts.Logger,
		pending:  make(map[string]*time.Timer),
	}
}

// Run watches until ctx is done. Pending files are dropped on exit; handler
// calls already started are waited for.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch: add %s: %w", w.dir, err)
	}
	w.log.Info("watch: started", "dir", w.dir, "extensions", w.exts)

	defer func() {
		w.mu.Lock()
		w.closed = true
		for p, t := range w.pending {
			t.Stop()
			delete(w.pending, p)
		}
		w.mu.Unlock()
		w.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch: fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if !w.wants(ev.Name) {
		return
	}
	if info, err := os.Stat(ev.Name); err != nil || info.IsDir() {
		return
	}
	w.schedule(ctx, ev.Name)
}

func (w *Watcher) wants(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	return matchExtension(path, w.exts)
}

func matchExtension(path string, exts []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range exts {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		if w.closed || ctx.Err() != nil {
			w.mu.Unlock()
			return
		}
		delete(w.pending, path)
		w.wg.Add(1)
		w.mu.Unlock()
		defer w.wg.Done()

		w.log.Debug("watch: file settled", "path", path)
		w.handle(ctx, path)
	})
}
