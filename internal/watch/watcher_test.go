package watch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/princespaghetti/envcerts/internal/environment"
	envcertserrors "github.com/princespaghetti/envcerts/internal/errors"
	"github.com/princespaghetti/envcerts/internal/metrics"
)

type fakeSource struct {
	events chan Event
	errs   chan error
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan Event), errs: make(chan error)}
}

func (f *fakeSource) Events() <-chan Event { return f.events }
func (f *fakeSource) Errors() <-chan error { return f.errs }
func (f *fakeSource) Close() error         { return nil }

type dispatched struct {
	env environment.Environment
	id  string
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatched
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, env environment.Environment, eventID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, dispatched{env: env, id: eventID})
}

func (r *recordingDispatcher) All() []dispatched {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dispatched(nil), r.calls...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startWatcher(t *testing.T, src DirectoryWatcher, d Dispatcher, opts ...Option) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := New(src, d, append([]Option{WithLogger(quietLogger())}, opts...)...)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return cancel, done
}

func TestWatcher_DispatchesDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "ml"), 0755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "web"), 0755))

	src := newFakeSource()
	rec := &recordingDispatcher{}
	m := metrics.New()
	cancel, done := startWatcher(t, src, rec, WithMetrics(m))
	defer cancel()

	src.events <- Event{Parent: root, Name: "ml"}
	src.events <- Event{Parent: root, Name: "web"}
	close(src.events)
	require.NoError(t, <-done)

	calls := rec.All()
	require.Len(t, calls, 2)
	assert.Equal(t, "ml", calls[0].env.Name)
	assert.Equal(t, filepath.Join(root, "ml"), calls[0].env.Root)
	assert.Equal(t, "web", calls[1].env.Name)
	assert.NotEmpty(t, calls[0].id)
	assert.NotEqual(t, calls[0].id, calls[1].id)
}

func TestWatcher_SkipsNonCandidates(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(root, ".trash"), 0755))

	src := newFakeSource()
	rec := &recordingDispatcher{}
	cancel, done := startWatcher(t, src, rec)
	defer cancel()

	src.events <- Event{Parent: root, Name: "notes.txt"}
	src.events <- Event{Parent: root, Name: ".trash"}
	src.events <- Event{Parent: root, Name: "vanished"}
	close(src.events)
	require.NoError(t, <-done)

	assert.Empty(t, rec.All())
}

func TestWatcher_BackendErrorsDoNotStopLoop(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "after"), 0755))

	src := newFakeSource()
	rec := &recordingDispatcher{}
	cancel, done := startWatcher(t, src, rec)
	defer cancel()

	src.errs <- errors.New("queue overflow")
	src.events <- Event{Parent: root, Name: "after"}
	close(src.events)
	require.NoError(t, <-done)

	require.Len(t, rec.All(), 1)
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	src := newFakeSource()
	cancel, done := startWatcher(t, src, &recordingDispatcher{})

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}

func TestEvent_Path(t *testing.T) {
	ev := Event{Parent: "/envs", Name: "ml"}
	assert.Equal(t, filepath.Join("/envs", "ml"), ev.Path())
}

func TestNewFSNotify_MissingRoot(t *testing.T) {
	_, err := NewFSNotify(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.True(t, envcertserrors.IsPrecondition(err))
	assert.ErrorIs(t, err, envcertserrors.ErrWatchUnavailable)
}

func TestFSNotify_ReportsDirectChildren(t *testing.T) {
	root := t.TempDir()
	w, err := NewFSNotify(root)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.Mkdir(filepath.Join(root, "fresh"), 0755))

	select {
	case ev := <-w.Events():
		assert.Equal(t, "fresh", ev.Name)
		assert.Equal(t, filepath.Clean(root), ev.Parent)
	case <-time.After(5 * time.Second):
		t.Fatal("no event for created directory")
	}
}

func TestFSNotify_CloseIsIdempotent(t *testing.T) {
	w, err := NewFSNotify(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())

	_, ok := <-w.Events()
	assert.False(t, ok, "events channel closes after Close")
}
