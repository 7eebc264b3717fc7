package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/blackwell-systems/envtrack/internal/environment"
)

// DefaultDebounce is how long the filesystem must stay quiet before drift is
// checked. A single conda transaction touches many files.
const DefaultDebounce = 2 * time.Second

// DriftChecker reports how the live environment differs from its snapshot.
// *environment.Environment implements it; Drift is called again on every
// check, so an implementation may reload the recorded state each time.
type DriftChecker interface {
	Drift(ctx context.Context) ([]environment.Drift, error)
}

// Watcher checks an environment for drift whenever its package directories
// change.
type Watcher struct {
	checker  DriftChecker
	onDrift  func([]environment.Drift)
	dirs     []string
	debounce time.Duration
	logger   *slog.Logger

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New returns a Watcher over dirs. onDrift is called with every non-empty
// drift report.
func New(checker DriftChecker, onDrift func([]environment.Drift), dirs ...string) (*Watcher, error) {
	if checker == nil {
		return nil, fmt.Errorf("drift checker cannot be nil")
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("no directories to watch")
	}
	return &Watcher{
		checker:  checker,
		onDrift:  onDrift,
		dirs:     dirs,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		stopCh:   make(chan struct{}),
	}, nil
}

// SetDebounce overrides DefaultDebounce. Call it before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// SetLogger sets the logger.
func (w *Watcher) SetLogger(logger *slog.Logger) {
	w.logger = logger
}

// Dirs returns the package directories under an environment prefix that
// exist: conda-meta, every lib/python*/site-packages and lib/R/library.
func Dirs(prefix string) []string {
	candidates := []string{filepath.Join(prefix, "conda-meta")}
	if sitePackages, err := filepath.Glob(filepath.Join(prefix, "lib", "python*", "site-packages")); err == nil {
		candidates = append(candidates, sitePackages...)
	}
	candidates = append(candidates, filepath.Join(prefix, "lib", "R", "library"))

	var dirs []string
	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// Start adds the watched directories and begins processing events. It
// returns once watching has begun.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	for _, dir := range w.dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	w.fsw = fsw
	w.logger.Debug("watching for drift", "dirs", w.dirs, "debounce", w.debounce)

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// loop debounces filesystem events and checks drift once they settle.
func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("package directory changed", "path", event.Name, "op", event.Op.String())
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", "error", err)

		case <-timer.C:
			w.check(ctx)

		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) check(ctx context.Context) {
	drift, err := w.checker.Drift(ctx)
	if err != nil {
		w.logger.Warn("drift check failed", "error", err)
		return
	}
	if len(drift) == 0 {
		w.logger.Debug("no drift")
		return
	}

	for _, d := range drift {
		w.logger.Info("drift detected",
			"ecosystem", d.Ecosystem,
			"added", len(d.Added),
			"removed", len(d.Removed),
			"changed", len(d.Changed))
	}
	if w.onDrift != nil {
		w.onDrift(drift)
	}
}

// Stop halts the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	select {
	case <-w.stopCh:
		return nil
	default:
		close(w.stopCh)
	}

	var err error
	if w.fsw != nil {
		err = w.fsw.Close()
	}
	w.wg.Wait()
	return err
}
