package render

import (
	"go.uber.org/zap"

	"github.com/nanoeti/maps-express/pkg/style"
)

// WorkerID identifies a worker within its pool.
type WorkerID int

// Update is one staged style-set replacement. Workers key their staging by
// the update's identity, so a single Update value must be shared across every
// worker taking part in the same protocol round.
type Update struct {
	Styles []style.Info
}

type boundStyle struct {
	style Style
	info  style.Info
}

// Worker owns a set of compiled styles and executes one tile-work task at a
// time. All methods below run on the worker's own goroutine, dispatched
// through the pool; nothing here needs locking.
type Worker struct {
	id       WorkerID
	engine   Engine
	subtiler Subtiler

	initial []style.Info

	live   map[string]boundStyle
	staged map[*Update]map[string]boundStyle
}

func newWorker(id WorkerID, engine Engine, subtiler Subtiler, initial []style.Info) *Worker {
	return &Worker{
		id:       id,
		engine:   engine,
		subtiler: subtiler,
		initial:  initial,
		live:     make(map[string]boundStyle),
		staged:   make(map[*Update]map[string]boundStyle),
	}
}

func (w *Worker) ID() WorkerID {
	return w.id
}

// init compiles the construction-time style set. A style that fails to build
// is simply absent from the live set; tasks naming it fail via their error
// callback.
func (w *Worker) init() {
	for _, info := range w.initial {
		s, err := w.engine.Load(info)
		if err != nil {
			zap.L().Error("initial style load failed",
				zap.Int("worker", int(w.id)), zap.String("style", info.Name), zap.Error(err))
			continue
		}
		w.live[info.Name] = boundStyle{style: s, info: info}
	}
	w.initial = nil
}

func (w *Worker) execute(t *TileTask) {
	switch {
	case t.Render != nil:
		w.executeRender(t.Task, t.Render)
	case t.Subtile != nil:
		w.executeSubtile(t.Task, t.Subtile)
	default:
		t.Task.NotifyError()
	}
}

func (w *Worker) executeRender(task *Task, req *RenderRequest) {
	bound, ok := w.live[req.StyleName]
	if !ok {
		zap.L().Debug("style not loaded on worker",
			zap.Int("worker", int(w.id)), zap.String("style", req.StyleName))
		task.NotifyError()
		return
	}
	var (
		res Result
		err error
	)
	if req.Grid {
		if !bound.info.AllowGridRender {
			task.NotifyError()
			return
		}
		res, err = bound.style.RenderGrid(req)
	} else {
		res, err = bound.style.Render(req)
	}
	if err != nil {
		zap.L().Error("render failed",
			zap.String("style", req.StyleName), zap.Stringer("tile", req.Tile), zap.Error(err))
		task.NotifyError()
		return
	}
	task.NotifySuccess(res)
}

func (w *Worker) executeSubtile(task *Task, req *SubtileRequest) {
	data, err := w.subtiler.Subtile(req.MVT, req.Source, req.Target)
	if err != nil {
		zap.L().Error("subtile failed",
			zap.Stringer("source", req.Source), zap.Stringer("target", req.Target), zap.Error(err))
		task.NotifyError()
		return
	}
	task.NotifySuccess(Result{Data: data, ContentType: "application/x-protobuf"})
}

// PrepareUpdate compiles every style of u into a staging area keyed by u.
// Returns false on the first load failure; the partial staging is retained
// until CancelUpdate or a later commit drops it.
func (w *Worker) PrepareUpdate(u *Update) bool {
	staging := make(map[string]boundStyle, len(u.Styles))
	w.staged[u] = staging
	for _, info := range u.Styles {
		s, err := w.engine.Load(info)
		if err != nil {
			zap.L().Error("style load failed",
				zap.Int("worker", int(w.id)), zap.String("style", info.Name),
				zap.String("path", info.Path), zap.Error(err))
			return false
		}
		staging[info.Name] = boundStyle{style: s, info: info}
	}
	return true
}

// CommitUpdate makes the staging matching u live and drops every other
// staging area.
func (w *Worker) CommitUpdate(u *Update) {
	staging, ok := w.staged[u]
	if !ok {
		zap.L().Warn("commit without matching staging", zap.Int("worker", int(w.id)))
		return
	}
	w.live = staging
	w.staged = make(map[*Update]map[string]boundStyle)
}

// CancelUpdate discards the staging matching u.
func (w *Worker) CancelUpdate(u *Update) {
	delete(w.staged, u)
}
