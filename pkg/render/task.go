// Package render contains the render orchestration core: a pool of
// style-bound workers, the task handles flowing through it, and the manager
// driving cross-worker style updates.
package render

import (
	"sync/atomic"

	"github.com/nanoeti/maps-express/pkg/tile"
)

// Result is the output of one tile-work task.
type Result struct {
	Data        []byte
	ContentType string
}

// RenderRequest asks for a rendered (meta)tile in a named style.
type RenderRequest struct {
	StyleName string
	Tile      tile.ID
	Meta      tile.Metatile
	Grid      bool
	GridKey   string
	Layers    []string
}

// SubtileRequest derives a finer-zoom tile from an already-built parent MVT
// without going back to the data provider.
type SubtileRequest struct {
	MVT    []byte
	Source tile.ID
	Target tile.ID
}

// TileTask is one unit of work for a render worker. Exactly one of Render and
// Subtile is set.
type TileTask struct {
	Task    *Task
	Render  *RenderRequest
	Subtile *SubtileRequest
}

// Task is a future-like handle over a posted request. Exactly one of the two
// callbacks fires, exactly once, regardless of how many components try to
// resolve the task.
type Task struct {
	done      atomic.Bool
	onSuccess func(Result)
	onError   func()
}

func NewTask(onSuccess func(Result), onError func()) *Task {
	return &Task{onSuccess: onSuccess, onError: onError}
}

// NotifySuccess resolves the task with a result. Later notifications are
// ignored.
func (t *Task) NotifySuccess(res Result) {
	if t.done.CompareAndSwap(false, true) && t.onSuccess != nil {
		t.onSuccess(res)
	}
}

// NotifyError resolves the task with a failure. Later notifications are
// ignored.
func (t *Task) NotifyError() {
	if t.done.CompareAndSwap(false, true) && t.onError != nil {
		t.onError()
	}
}

// Done reports whether the task has been resolved either way.
func (t *Task) Done() bool {
	return t.done.Load()
}
