package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoeti/maps-express/pkg/style"
	"github.com/nanoeti/maps-express/pkg/tile"
)

func infos(names ...string) []style.Info {
	out := make([]style.Info, len(names))
	for i, n := range names {
		out[i] = style.Info{Name: n, Path: "/maps/" + n + ".xml"}
	}
	return out
}

func TestWorkerPrepareCommit(t *testing.T) {
	w := newWorker(0, newFakeEngine(), passSubtiler{}, infos("s1"))
	w.init()

	upd := &Update{Styles: infos("s2")}
	require.True(t, w.PrepareUpdate(upd))

	// Not yet committed: s1 is still the live style.
	_, live := w.live["s1"]
	assert.True(t, live)
	_, staged := w.live["s2"]
	assert.False(t, staged)

	w.CommitUpdate(upd)
	_, live = w.live["s2"]
	assert.True(t, live)
	_, old := w.live["s1"]
	assert.False(t, old)
	assert.Empty(t, w.staged, "commit must drop all staging")
}

func TestWorkerPrepareFailureRetainsStaging(t *testing.T) {
	engine := newFakeEngine()
	engine.failAt["bad"] = 1
	w := newWorker(0, engine, passSubtiler{}, nil)
	w.init()

	upd := &Update{Styles: infos("ok", "bad")}
	require.False(t, w.PrepareUpdate(upd))
	_, retained := w.staged[upd]
	assert.True(t, retained, "partial staging is retained until cancel")

	w.CancelUpdate(upd)
	_, retained = w.staged[upd]
	assert.False(t, retained)
}

func TestWorkerCommitDropsOtherStaging(t *testing.T) {
	w := newWorker(0, newFakeEngine(), passSubtiler{}, nil)
	w.init()

	stale := &Update{Styles: infos("a")}
	current := &Update{Styles: infos("b")}
	require.True(t, w.PrepareUpdate(stale))
	require.True(t, w.PrepareUpdate(current))
	assert.Len(t, w.staged, 2)

	w.CommitUpdate(current)
	assert.Empty(t, w.staged)
	_, live := w.live["b"]
	assert.True(t, live)
}

func TestWorkerExecuteUnknownStyle(t *testing.T) {
	w := newWorker(0, newFakeEngine(), passSubtiler{}, infos("s1"))
	w.init()

	errored := false
	task := NewTask(func(Result) { t.Error("unexpected success") }, func() { errored = true })
	w.execute(&TileTask{Task: task, Render: &RenderRequest{StyleName: "ghost", Tile: tile.New(0, 0, 0)}})
	assert.True(t, errored)
}

func TestWorkerGridRequiresGridStyle(t *testing.T) {
	engine := newFakeEngine()
	w := newWorker(0, engine, passSubtiler{}, []style.Info{
		{Name: "plain", Path: "/maps/plain.xml"},
		{Name: "grid", Path: "/maps/grid.xml", AllowGridRender: true},
	})
	w.init()

	errored := false
	task := NewTask(func(Result) { t.Error("unexpected success") }, func() { errored = true })
	w.execute(&TileTask{Task: task, Render: &RenderRequest{StyleName: "plain", Grid: true, Tile: tile.New(0, 0, 0)}})
	assert.True(t, errored, "grid render on a non-grid style must fail")

	ok := false
	task = NewTask(func(Result) { ok = true }, func() { t.Error("unexpected error") })
	w.execute(&TileTask{Task: task, Render: &RenderRequest{StyleName: "grid", Grid: true, Tile: tile.New(0, 0, 0)}})
	assert.True(t, ok)
}
