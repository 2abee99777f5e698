package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/photobuilder/internal/build"
	"git.home.luguber.info/inful/photobuilder/internal/retry"
)

type fakeBuilder struct {
	mu       sync.Mutex
	name     string
	failures int // leading Run calls that fail
	runs     int
	renders  int
}

func (f *fakeBuilder) Run(context.Context, bool) (*build.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return &build.Result{Stage: build.StageBuild, Success: f.runs > f.failures, RunID: f.name}, nil
}

func (f *fakeBuilder) Render(context.Context) (*build.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renders++
	return &build.Result{Stage: "render", Success: true, RunID: f.name}, nil
}

func (f *fakeBuilder) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs, f.renders
}

func TestClassify(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(src, "output")
	cfgPath := filepath.Join(t.TempDir(), "photobuilder.yaml")
	w, err := New(src, &fakeBuilder{}, WithIgnore(out), WithConfigFile(cfgPath, nil))
	require.NoError(t, err)

	at := func(rel string) string { return filepath.Join(src, filepath.FromSlash(rel)) }
	cases := []struct {
		name string
		ev   fsnotify.Event
		want Kind
	}{
		{"new image", fsnotify.Event{Name: at("trips/a.jpg"), Op: fsnotify.Create}, Full},
		{"edited image", fsnotify.Event{Name: at("a.jpg"), Op: fsnotify.Write}, Full},
		{"edited prose", fsnotify.Event{Name: at("trips/notes.md"), Op: fsnotify.Write}, RenderOnly},
		{"new prose", fsnotify.Event{Name: at("trips/notes.md"), Op: fsnotify.Create}, Full},
		{"edited index", fsnotify.Event{Name: at("trips/_index.md"), Op: fsnotify.Write}, Full},
		{"navigation", fsnotify.Event{Name: at("_navigation.yaml"), Op: fsnotify.Write}, Full},
		{"template", fsnotify.Event{Name: at("_templates/gallery.html"), Op: fsnotify.Create}, RenderOnly},
		{"data", fsnotify.Event{Name: at("trips/stats.json"), Op: fsnotify.Write}, RenderOnly},
		{"chmod", fsnotify.Event{Name: at("a.jpg"), Op: fsnotify.Chmod}, None},
		{"dotfile", fsnotify.Event{Name: at(".DS_Store"), Op: fsnotify.Create}, None},
		{"dot dir", fsnotify.Event{Name: at(".git/index"), Op: fsnotify.Write}, None},
		{"editor backup", fsnotify.Event{Name: at("notes.md~"), Op: fsnotify.Write}, None},
		{"emacs lock", fsnotify.Event{Name: at("#notes.md#"), Op: fsnotify.Create}, None},
		{"temp file", fsnotify.Event{Name: at("images/a/640.jpg.tmp"), Op: fsnotify.Create}, None},
		{"output", fsnotify.Event{Name: at("output/index.html"), Op: fsnotify.Write}, None},
		{"outside", fsnotify.Event{Name: filepath.Join(t.TempDir(), "x.jpg"), Op: fsnotify.Write}, None},
		{"config", fsnotify.Event{Name: cfgPath, Op: fsnotify.Write}, Reload},
		{"config removed", fsnotify.Event{Name: cfgPath, Op: fsnotify.Remove}, None},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, w.classify(tc.ev))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "render", RenderOnly.String())
	assert.Equal(t, "full", Full.String())
	assert.Equal(t, "reload", Reload.String())
	assert.Equal(t, "none", None.String())
	assert.Equal(t, Reload, max(Full, Reload))
}

func TestNewRequiresBuilder(t *testing.T) {
	_, err := New(t.TempDir(), nil)
	require.Error(t, err)
}

func startWatcher(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	select {
	case <-w.Ready():
	case err := <-done:
		t.Fatalf("watcher exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher not ready")
	}
}

func TestRun_CoalescesBurstIntoOneBuild(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "trips"), 0o755))
	fb := &fakeBuilder{}
	w, err := New(src, fb, WithDebounce(100*time.Millisecond))
	require.NoError(t, err)
	startWatcher(t, w)

	for i := range 5 {
		require.NoError(t, os.WriteFile(filepath.Join(src, "trips", "a.jpg"), []byte{byte(i)}, 0o600))
	}

	require.Eventually(t, func() bool {
		runs, _ := fb.counts()
		return runs == 1
	}, 5*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	runs, renders := fb.counts()
	assert.Equal(t, 1, runs)
	assert.Zero(t, renders)
}

func TestRun_ProseEditOnlyRenders(t *testing.T) {
	src := t.TempDir()
	notes := filepath.Join(src, "notes.md")
	require.NoError(t, os.WriteFile(notes, []byte("one"), 0o600))
	fb := &fakeBuilder{}
	w, err := New(src, fb, WithDebounce(50*time.Millisecond))
	require.NoError(t, err)
	startWatcher(t, w)

	require.NoError(t, os.WriteFile(notes, []byte("two"), 0o600))

	require.Eventually(t, func() bool {
		_, renders := fb.counts()
		return renders >= 1
	}, 5*time.Second, 20*time.Millisecond)
	runs, _ := fb.counts()
	assert.Zero(t, runs)
}

func TestRun_WatchesNewDirectories(t *testing.T) {
	src := t.TempDir()
	fb := &fakeBuilder{}
	var mu sync.Mutex
	var kinds []Kind
	w, err := New(src, fb, WithDebounce(50*time.Millisecond), WithOnBuild(func(k Kind, _ *build.Result) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, k)
	}))
	require.NoError(t, err)
	startWatcher(t, w)

	dir := filepath.Join(src, "new")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.Eventually(t, func() bool { return w.Builds() >= 1 }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0o600))
	require.Eventually(t, func() bool { return w.Builds() >= 2 }, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, Full, kinds[0])
}

func TestRun_PeriodicRebuild(t *testing.T) {
	fb := &fakeBuilder{}
	w, err := New(t.TempDir(), fb, WithRebuildEvery(50*time.Millisecond))
	require.NoError(t, err)
	startWatcher(t, w)

	require.Eventually(t, func() bool {
		runs, _ := fb.counts()
		return runs >= 2
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRun_ConfigReloadSwapsBuilder(t *testing.T) {
	src := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "photobuilder.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("source: a\n"), 0o600))

	first := &fakeBuilder{name: "first"}
	second := &fakeBuilder{name: "second"}
	w, err := New(src, first, WithDebounce(50*time.Millisecond),
		WithConfigFile(cfgPath, func() (Builder, error) { return second, nil }))
	require.NoError(t, err)
	startWatcher(t, w)

	require.NoError(t, os.WriteFile(cfgPath, []byte("source: b\n"), 0o600))
	require.Eventually(t, func() bool {
		runs, _ := second.counts()
		return runs == 1
	}, 5*time.Second, 20*time.Millisecond)
	runs, _ := first.counts()
	assert.Zero(t, runs)
}

func TestRun_RetriesFailedRebuild(t *testing.T) {
	src := t.TempDir()
	fb := &fakeBuilder{failures: 2}
	results := make(chan bool, 4)
	w, err := New(src, fb,
		WithDebounce(50*time.Millisecond),
		WithRetry(retry.NewPolicy(retry.Fixed, 20*time.Millisecond, 20*time.Millisecond, 3)),
		WithOnBuild(func(_ Kind, res *build.Result) { results <- res.Success }))
	require.NoError(t, err)
	startWatcher(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(src, "a.jpg"), []byte{1}, 0o600))

	select {
	case ok := <-results:
		assert.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("no rebuild result")
	}
	runs, _ := fb.counts()
	assert.Equal(t, 3, runs)
	assert.EqualValues(t, 3, w.Builds())
}

func TestRun_GivesUpAfterMaxRetries(t *testing.T) {
	src := t.TempDir()
	fb := &fakeBuilder{failures: 10}
	results := make(chan bool, 4)
	w, err := New(src, fb,
		WithDebounce(50*time.Millisecond),
		WithRetry(retry.NewPolicy(retry.Linear, 10*time.Millisecond, 30*time.Millisecond, 1)),
		WithOnBuild(func(_ Kind, res *build.Result) { results <- res.Success }))
	require.NoError(t, err)
	startWatcher(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(src, "a.jpg"), []byte{1}, 0o600))

	select {
	case ok := <-results:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("no rebuild result")
	}
	runs, _ := fb.counts()
	assert.Equal(t, 2, runs)
}
