// Package intake feeds the engine from a spool directory. External
// collaborators (webhook relays, log shippers, operators with curl) drop one
// alert JSON file per incident; the watcher picks each file up, submits it
// and archives it. Files that cannot be decoded or normalized move aside as
// rejected; files that hit infrastructure trouble stay put for the next
// rescan.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/SkySingh04/DreamOps-sub000/internal/models"
	"github.com/SkySingh04/DreamOps-sub000/internal/signal"
)

// Submitter runs one alert through the engine.
type Submitter interface {
	Submit(ctx context.Context, req models.SubmitRequest) (models.ExecutionReport, error)
}

// Options configures the spool watcher.
type Options struct {
	SpoolDir       string
	ArchiveDir     string
	RescanInterval time.Duration
	MaxConcurrent  int
}

// Watcher drains a spool directory of alert files into the engine.
type Watcher struct {
	submitter Submitter
	logger    *slog.Logger
	opts      Options

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewWatcher constructs a spool watcher. ArchiveDir defaults to a processed/
// subdirectory of the spool.
func NewWatcher(logger *slog.Logger, submitter Submitter, opts Options) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if submitter == nil {
		return nil, errors.New("intake requires a submitter")
	}
	if opts.SpoolDir == "" {
		return nil, errors.New("intake requires a spool directory")
	}
	if opts.ArchiveDir == "" {
		opts.ArchiveDir = filepath.Join(opts.SpoolDir, "processed")
	}
	if opts.RescanInterval <= 0 {
		opts.RescanInterval = 30 * time.Second
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	return &Watcher{
		submitter: submitter,
		logger:    logger,
		opts:      opts,
		inFlight:  make(map[string]bool),
	}, nil
}

// Run watches the spool until ctx ends. The filesystem watcher only cuts
// latency; the rescan tick is the source of truth, so a lost event never
// loses an alert.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.opts.SpoolDir, 0o755); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}
	if err := os.MkdirAll(w.opts.ArchiveDir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start spool watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.opts.SpoolDir); err != nil {
		return fmt.Errorf("watch %s: %w", w.opts.SpoolDir, err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(w.opts.MaxConcurrent)

	ticker := time.NewTicker(w.opts.RescanInterval)
	defer ticker.Stop()

	w.logger.Info("spool intake started",
		slog.String("spool", w.opts.SpoolDir),
		slog.Int("max_concurrent", w.opts.MaxConcurrent))

	w.sweep(groupCtx, group)

	for {
		select {
		case <-ctx.Done():
			group.Wait()
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				group.Wait()
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.schedule(groupCtx, group, event.Name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				group.Wait()
				return nil
			}
			w.logger.Warn("spool watcher error", slog.Any("error", err))
		case <-ticker.C:
			w.sweep(groupCtx, group)
		}
	}
}

func (w *Watcher) sweep(ctx context.Context, group *errgroup.Group) {
	entries, err := os.ReadDir(w.opts.SpoolDir)
	if err != nil {
		w.logger.Warn("listing spool dir", slog.Any("error", err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.schedule(ctx, group, filepath.Join(w.opts.SpoolDir, entry.Name()))
	}
}

// schedule hands one file to a worker. TryGo keeps the event loop responsive
// when all workers are busy; the next rescan retries whatever was shed.
func (w *Watcher) schedule(ctx context.Context, group *errgroup.Group, path string) {
	if filepath.Ext(path) != ".json" {
		return
	}

	w.mu.Lock()
	if w.inFlight[path] {
		w.mu.Unlock()
		return
	}
	w.inFlight[path] = true
	w.mu.Unlock()

	scheduled := group.TryGo(func() error {
		defer w.release(path)
		w.process(ctx, path)
		return nil
	})
	if !scheduled {
		w.release(path)
	}
}

func (w *Watcher) release(path string) {
	w.mu.Lock()
	delete(w.inFlight, path)
	w.mu.Unlock()
}

func (w *Watcher) process(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Already archived by an earlier worker; nothing to do.
		if !errors.Is(err, fs.ErrNotExist) {
			w.logger.Warn("reading spooled alert", slog.String("file", path), slog.Any("error", err))
		}
		return
	}

	var alert models.RawAlert
	if err := json.Unmarshal(data, &alert); err != nil {
		w.logger.Warn("rejecting undecodable alert file",
			slog.String("file", path), slog.Any("error", err))
		w.reject(path)
		return
	}

	report, err := w.submitter.Submit(ctx, models.SubmitRequest{Alert: alert})
	if err != nil {
		if errors.Is(err, signal.ErrInvalidSignal) {
			w.logger.Warn("rejecting invalid alert",
				slog.String("file", path), slog.Any("error", err))
			w.reject(path)
			return
		}
		w.logger.Error("submitting spooled alert",
			slog.String("file", path), slog.Any("error", err))
		return
	}

	w.logger.Info("spooled alert processed",
		slog.String("file", filepath.Base(path)),
		slog.String("run_id", report.RunID),
		slog.String("state", string(report.State)))
	w.archive(path, filepath.Base(path))
}

func (w *Watcher) reject(path string) {
	w.archive(path, filepath.Base(path)+".rejected")
}

func (w *Watcher) archive(path, name string) {
	dest := filepath.Join(w.opts.ArchiveDir, name)
	if err := os.Rename(path, dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.logger.Warn("archiving spooled alert",
			slog.String("file", path), slog.Any("error", err))
	}
}
