// Package watch rebuilds the site when the source directory changes and,
// optionally, on a fixed interval.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/photobuilder/internal/build"
	"git.home.luguber.info/inful/photobuilder/internal/logfields"
	"git.home.luguber.info/inful/photobuilder/internal/retry"
)

// DefaultDebounce is the quiet window used when none is configured.
const DefaultDebounce = 500 * time.Millisecond

// Builder runs the stages a change requires.
type Builder interface {
	Run(ctx context.Context, force bool) (*build.Result, error)
	Render(ctx context.Context) (*build.Result, error)
}

// ReloadFunc returns a builder for a freshly loaded configuration.
type ReloadFunc func() (Builder, error)

// Watcher coalesces filesystem events into rebuilds.
type Watcher struct {
	source   string
	ignored  []string
	debounce time.Duration
	every    time.Duration
	logger   *slog.Logger
	onBuild  func(Kind, *build.Result)
	retry    retry.Policy

	configPath string
	reload     ReloadFunc

	builderMu sync.Mutex
	builder   Builder
	buildMu   sync.Mutex

	builds    atomic.Int64
	readyOnce sync.Once
	ready     chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet window before a rebuild starts.
func WithDebounce(d time.Duration) Option { return func(w *Watcher) { w.debounce = d } }

// WithRebuildEvery schedules a full rebuild at a fixed interval. Zero disables it.
func WithRebuildEvery(d time.Duration) Option { return func(w *Watcher) { w.every = d } }

// WithIgnore skips events below the given directories, typically output and cache.
func WithIgnore(dirs ...string) Option {
	return func(w *Watcher) {
		for _, d := range dirs {
			if abs, err := filepath.Abs(d); err == nil {
				w.ignored = append(w.ignored, abs)
			}
		}
	}
}

// WithConfigFile reloads the builder when path changes.
func WithConfigFile(path string, reload ReloadFunc) Option {
	return func(w *Watcher) {
		if abs, err := filepath.Abs(path); err == nil {
			w.configPath = abs
		}
		w.reload = reload
	}
}

func WithLogger(l *slog.Logger) Option { return func(w *Watcher) { w.logger = l } }

// WithRetry retries failed rebuilds. The default never retries.
func WithRetry(p retry.Policy) Option { return func(w *Watcher) { w.retry = p } }

// WithOnBuild is called with the final result of every rebuild that was not canceled.
func WithOnBuild(fn func(Kind, *build.Result)) Option { return func(w *Watcher) { w.onBuild = fn } }

// New creates a watcher for source.
func New(source string, b Builder, opts ...Option) (*Watcher, error) {
	if b == nil {
		return nil, errors.New("builder is required")
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("resolve source path: %w", err)
	}
	w := &Watcher{
		source:   abs,
		builder:  b,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		retry:    retry.Disabled(),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	return w, nil
}

// Ready is closed once every directory is watched.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Builds returns the number of build attempts started, retries included.
func (w *Watcher) Builds() int64 { return w.builds.Load() }

// Run watches until ctx is done. It does not run an initial build.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := w.addTree(fw, w.source); err != nil {
		return err
	}
	if w.configPath != "" && !w.isUnder(w.configPath, w.source) {
		if err := fw.Add(filepath.Dir(w.configPath)); err != nil {
			return fmt.Errorf("watch config directory: %w", err)
		}
	}

	if w.every > 0 {
		sched, err := w.schedule(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := sched.Shutdown(); err != nil {
				w.logger.Warn("Scheduler shutdown failed", logfields.Error(err))
			}
		}()
	}

	w.logger.Info("Watching for changes", logfields.Path(w.source),
		slog.Duration("debounce", w.debounce), slog.Duration("rebuild_every", w.every))
	w.readyOnce.Do(func() { close(w.ready) })
	return w.loop(ctx, fw)
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	var (
		timerC  <-chan time.Time
		pending Kind
	)

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			kind := w.classify(ev)
			if kind == None {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, ev.Name); err != nil {
						w.logger.Warn("Failed to watch new directory", logfields.Path(ev.Name), logfields.Error(err))
					}
				}
			}
			w.logger.Debug("Change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()), slog.String("kind", kind.String()))
			pending = max(pending, kind)
			timer.Reset(w.debounce)
			timerC = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("File watcher error", logfields.Error(err))

		case <-timerC:
			timerC = nil
			kind := pending
			pending = None
			if kind == Reload {
				w.reloadBuilder()
			}
			w.rebuild(ctx, kind)
		}
	}
}

// schedule starts a gocron job for the periodic full rebuild.
func (w *Watcher) schedule(ctx context.Context) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(w.every),
		gocron.NewTask(func() { w.rebuild(ctx, Full) }),
		gocron.WithName("periodic-rebuild"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("create periodic rebuild job: %w", err)
	}
	s.Start()
	return s, nil
}

// rebuild runs one build at a time; concurrent callers wait. A failed build
// is retried according to the retry policy.
func (w *Watcher) rebuild(ctx context.Context, kind Kind) {
	w.buildMu.Lock()
	defer w.buildMu.Unlock()
	if ctx.Err() != nil {
		return
	}

	w.builderMu.Lock()
	b := w.builder
	w.builderMu.Unlock()

	res, err := w.attempt(ctx, b, kind)
	for n := 1; err == nil && !res.Success && n <= w.retry.MaxRetries; n++ {
		delay := w.retry.Delay(n)
		w.logger.Info("Retrying rebuild", slog.String("kind", kind.String()),
			slog.Int("attempt", n), slog.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		res, err = w.attempt(ctx, b, kind)
	}
	if err != nil {
		w.logger.Info("Rebuild canceled", slog.String("kind", kind.String()))
		return
	}
	if w.onBuild != nil {
		w.onBuild(kind, res)
	}
}

func (w *Watcher) attempt(ctx context.Context, b Builder, kind Kind) (*build.Result, error) {
	w.builds.Add(1)
	var (
		res *build.Result
		err error
	)
	if kind == RenderOnly {
		res, err = b.Render(ctx)
	} else {
		res, err = b.Run(ctx, false)
	}
	if err != nil {
		return nil, err
	}
	if res.Success {
		w.logger.Info("Rebuild finished", slog.String("kind", kind.String()), logfields.RunID(res.RunID), slog.String("message", res.Message))
	} else {
		w.logger.Warn("Rebuild failed", slog.String("kind", kind.String()), logfields.RunID(res.RunID), slog.String("message", res.Message))
	}
	return res, nil
}

// reloadBuilder swaps in a builder for the new configuration. On error the
// previous builder stays active.
func (w *Watcher) reloadBuilder() {
	if w.reload == nil {
		return
	}
	b, err := w.reload()
	if err != nil {
		w.logger.Error("Failed to reload configuration", logfields.Path(w.configPath), logfields.Error(err))
		return
	}
	w.builderMu.Lock()
	w.builder = b
	w.builderMu.Unlock()
	w.logger.Info("Configuration reloaded", logfields.Path(w.configPath))
}

// addTree watches root and every directory below it that is not ignored.
func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return fmt.Errorf("watch %s: %w", root, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && (strings.HasPrefix(d.Name(), ".") || w.ignoredPath(p)) {
			return filepath.SkipDir
		}
		if err := fw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

func (w *Watcher) ignoredPath(p string) bool {
	for _, dir := range w.ignored {
		if w.isUnder(p, dir) {
			return true
		}
	}
	return false
}

func (w *Watcher) isUnder(p, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
