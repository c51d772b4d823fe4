// Package watch turns directory-creation notifications under the
// environments root into coordination requests.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"

	"github.com/princespaghetti/envcerts/internal/environment"
	"github.com/princespaghetti/envcerts/internal/metrics"
)

// Event reports that Name was created inside Parent. ID is assigned when the
// event is accepted for dispatch.
type Event struct {
	Parent string
	Name   string
	ID     string
}

// Path returns the created entry's path.
func (e Event) Path() string {
	return filepath.Join(e.Parent, e.Name)
}

// DirectoryWatcher delivers creation events for direct children of one
// directory, in backend order.
type DirectoryWatcher interface {
	Events() <-chan Event
	Errors() <-chan error
	Close() error
}

// Dispatcher receives accepted environments. Dispatch must not block on
// the replacement work.
type Dispatcher interface {
	Dispatch(ctx context.Context, env environment.Environment, eventID string)
}

// Watcher is the single intake loop.
type Watcher struct {
	source     DirectoryWatcher
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	stat       func(string) (fs.FileInfo, error)
	newID      func() string
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger for the watcher.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Watcher) {
		w.metrics = m
	}
}

// New creates a Watcher reading from source.
func New(source DirectoryWatcher, dispatcher Dispatcher, opts ...Option) *Watcher {
	w := &Watcher{
		source:     source,
		dispatcher: dispatcher,
		logger:     slog.Default(),
		stat:       os.Stat,
		newID:      func() string { return ulid.Make().String() },
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Run consumes events until ctx is cancelled or the source closes.
// Backend errors are logged and do not stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("environment watcher started")

	events := w.source.Events()
	errs := w.source.Errors()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				w.logger.Info("watch source closed")
				return nil
			}
			w.handle(ctx, ev)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Error("watch backend error", "error", err)

		case <-ctx.Done():
			w.logger.Info("environment watcher stopping", "reason", ctx.Err())
			return nil
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev Event) {
	if !environment.IsCandidateName(ev.Name) {
		w.logger.Debug("ignoring hidden entry", "name", ev.Name)
		return
	}

	info, err := w.stat(ev.Path())
	if err != nil {
		w.logger.Debug("created entry no longer accessible", "name", ev.Name, "error", err)
		return
	}
	if !info.IsDir() {
		w.logger.Debug("ignoring non-directory entry", "name", ev.Name)
		return
	}

	ev.ID = w.newID()
	w.metrics.EventObserved()
	w.logger.Info("environment created", "env", ev.Name, "event_id", ev.ID)

	w.dispatcher.Dispatch(ctx, environment.New(ev.Path()), ev.ID)
}
