package render

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoeti/maps-express/pkg/config"
	"github.com/nanoeti/maps-express/pkg/style"
	"github.com/nanoeti/maps-express/pkg/tile"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

// fakeSource is a config.Source with direct observer push.
type fakeSource struct {
	mu        sync.Mutex
	tree      map[string]any
	observers map[string][]config.Observer
}

func newFakeSource(tree map[string]any) *fakeSource {
	return &fakeSource{tree: tree, observers: make(map[string][]config.Observer)}
}

func (s *fakeSource) Valid() bool { return true }

func (s *fakeSource) Get(path string) *config.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return config.NewValue(s.tree).At(path)
}

func (s *fakeSource) Watch(path string, obs config.Observer) *config.Value {
	s.mu.Lock()
	s.observers[path] = append(s.observers[path], obs)
	s.mu.Unlock()
	return s.Get(path)
}

func (s *fakeSource) push(path string, v any) {
	s.mu.Lock()
	obs := append([]config.Observer(nil), s.observers[path]...)
	s.mu.Unlock()
	for _, o := range obs {
		o.OnUpdate(config.NewValue(v))
	}
}

// fakeEngine compiles nothing and fails on demand.
type fakeEngine struct {
	mu     sync.Mutex
	loads  map[string]int
	failAt map[string]int // style name -> 1-based load count that fails
	block  chan struct{}  // when set, Load waits on it
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{loads: make(map[string]int), failAt: make(map[string]int)}
}

func (e *fakeEngine) Load(info style.Info) (Style, error) {
	e.mu.Lock()
	e.loads[info.Name]++
	n := e.loads[info.Name]
	block := e.block
	e.mu.Unlock()
	if block != nil {
		<-block
	}
	if at, ok := e.failAtFor(info.Name); ok && n == at {
		return nil, fmt.Errorf("load %s failed", info.Name)
	}
	return fakeStyle{name: info.Name}, nil
}

func (e *fakeEngine) failAtFor(name string) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	at, ok := e.failAt[name]
	return at, ok
}

func (e *fakeEngine) loadCount(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loads[name]
}

type fakeStyle struct {
	name string
}

func (s fakeStyle) Render(req *RenderRequest) (Result, error) {
	return Result{Data: []byte(s.name), ContentType: "image/png"}, nil
}

func (s fakeStyle) RenderGrid(req *RenderRequest) (Result, error) {
	return Result{Data: []byte("{}"), ContentType: "application/json"}, nil
}

type passSubtiler struct{}

func (passSubtiler) Subtile(parent []byte, src, dst tile.ID) ([]byte, error) {
	return parent, nil
}

func stylesTree(names ...string) map[string]any {
	styles := make(map[string]any, len(names))
	for _, n := range names {
		styles[n] = map[string]any{"map": "/maps/" + n + ".xml"}
	}
	return styles
}

func renderTree(workers int, names ...string) map[string]any {
	return map[string]any{
		"render": map[string]any{
			"workers": workers,
			"styles":  stylesTree(names...),
		},
	}
}

func waitTask(t *testing.T, task *Task) {
	t.Helper()
	require.Eventually(t, task.Done, waitFor, tick, "task not resolved")
}

func TestRenderSuccess(t *testing.T) {
	src := newFakeSource(renderTree(2, "s1"))
	m := NewManager(src, newFakeEngine(), passSubtiler{})
	defer m.Stop()

	var (
		mu  sync.Mutex
		got []byte
	)
	task := m.Render(&RenderRequest{StyleName: "s1", Tile: tile.New(0, 0, 1)},
		func(res Result) {
			mu.Lock()
			got = res.Data
			mu.Unlock()
		},
		func() { t.Error("unexpected error callback") })
	waitTask(t, task)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []byte("s1"), got)
}

func TestRenderUnknownStyle(t *testing.T) {
	src := newFakeSource(renderTree(1, "s1"))
	m := NewManager(src, newFakeEngine(), passSubtiler{})
	defer m.Stop()

	errored := false
	task := m.Render(&RenderRequest{StyleName: "nope", Tile: tile.New(0, 0, 1)},
		func(Result) { t.Error("unexpected success") },
		func() { errored = true })
	assert.True(t, task.Done(), "admission rejection must resolve synchronously")
	assert.True(t, errored)
}

func TestMakeSubtileInvalidId(t *testing.T) {
	src := newFakeSource(renderTree(1, "s1"))
	m := NewManager(src, newFakeEngine(), passSubtiler{})
	defer m.Stop()

	errored := false
	task := m.MakeSubtile(&SubtileRequest{
		MVT:    []byte{1},
		Source: tile.New(0, 0, 1),
		Target: tile.New(9, 9, 2), // out of range
	}, func(Result) { t.Error("unexpected success") }, func() { errored = true })
	assert.True(t, task.Done())
	assert.True(t, errored)
}

func TestMakeSubtile(t *testing.T) {
	src := newFakeSource(renderTree(1, "s1"))
	m := NewManager(src, newFakeEngine(), passSubtiler{})
	defer m.Stop()

	task := m.MakeSubtile(&SubtileRequest{
		MVT:    []byte{0xca, 0xfe},
		Source: tile.New(0, 0, 1),
		Target: tile.New(1, 1, 3),
	}, func(res Result) {
		assert.Equal(t, []byte{0xca, 0xfe}, res.Data)
	}, func() { t.Error("unexpected error callback") })
	waitTask(t, task)
}

func TestRenderSyncUnimplemented(t *testing.T) {
	src := newFakeSource(renderTree(1, "s1"))
	m := NewManager(src, newFakeEngine(), passSubtiler{})
	defer m.Stop()

	_, err := m.RenderSync(&RenderRequest{StyleName: "s1"})
	require.ErrorIs(t, err, ErrSyncRender)
}

func TestStyleUpdateReplace(t *testing.T) {
	src := newFakeSource(renderTree(2, "s1"))
	m := NewManager(src, newFakeEngine(), passSubtiler{})
	defer m.Stop()

	src.push("render.styles", stylesTree("s2"))

	require.Eventually(t, func() bool {
		return m.HasStyle("s2") && !m.HasStyle("s1")
	}, waitFor, tick, "style set not replaced")

	errored := false
	task := m.Render(&RenderRequest{StyleName: "s1", Tile: tile.New(0, 0, 1)},
		func(Result) { t.Error("unexpected success") },
		func() { errored = true })
	assert.True(t, task.Done())
	assert.True(t, errored)
}

func TestStyleUpdateRollback(t *testing.T) {
	src := newFakeSource(renderTree(3, "s1"))
	engine := newFakeEngine()
	m := NewManager(src, engine, passSubtiler{})
	defer m.Stop()

	// Second worker to prepare fails; the first prepared staging is
	// cancelled and nothing commits.
	engine.mu.Lock()
	engine.failAt["broken"] = 2
	engine.mu.Unlock()

	src.push("render.styles", stylesTree("broken"))

	require.Eventually(t, func() bool {
		return engine.loadCount("broken") == 2
	}, waitFor, tick, "rollback round did not run")
	assert.Never(t, func() bool { return m.HasStyle("broken") }, 100*time.Millisecond, tick)
	assert.True(t, m.HasStyle("s1"), "previous committed set must stay in effect")

	// A subsequent valid update proceeds normally.
	src.push("render.styles", stylesTree("s2"))
	require.Eventually(t, func() bool {
		return m.HasStyle("s2") && !m.HasStyle("s1")
	}, waitFor, tick, "recovery update did not land")
}

func TestStyleUpdateCoalesce(t *testing.T) {
	src := newFakeSource(renderTree(1, "s1"))
	engine := newFakeEngine()
	m := NewManager(src, engine, passSubtiler{})
	defer m.Stop()

	// Hold the in-flight round inside Load while two more snapshots arrive;
	// the round that follows must use only the latest one.
	block := make(chan struct{})
	engine.mu.Lock()
	engine.block = block
	engine.mu.Unlock()

	src.push("render.styles", stylesTree("u1"))
	src.push("render.styles", stylesTree("u2"))
	src.push("render.styles", stylesTree("u3"))

	engine.mu.Lock()
	engine.block = nil
	engine.mu.Unlock()
	close(block)

	require.Eventually(t, func() bool { return m.HasStyle("u3") }, waitFor, tick)
	assert.Equal(t, 0, engine.loadCount("u2"), "intermediate snapshot must be skipped")
}

func TestUpdateRightAfterConstruction(t *testing.T) {
	src := newFakeSource(renderTree(1, "s1"))
	engine := newFakeEngine()
	m := NewManager(src, engine, passSubtiler{})
	defer m.Stop()

	// An update posted right after construction drains without further pushes.
	src.push("render.styles", stylesTree("s9"))
	require.Eventually(t, func() bool { return m.HasStyle("s9") }, waitFor, tick)
}
