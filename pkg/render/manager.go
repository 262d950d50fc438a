package render

import (
	"errors"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/nanoeti/maps-express/pkg/config"
	"github.com/nanoeti/maps-express/pkg/style"
)

// ErrSyncRender marks the reserved synchronous rendering entry point.
var ErrSyncRender = errors.New("synchronous rendering is not implemented")

const defaultQueueLimit = 1000

type nameSet map[string]struct{}

// Manager owns the worker pool and the committed style-name set, and drives
// the cross-worker style update protocol off config pushes.
type Manager struct {
	pool *Pool

	styleNames atomic.Pointer[nameSet]

	// Style update protocol state. pendingRaw and updating are touched from
	// any goroutine; the remaining fields only by the goroutine that holds
	// the updating flag (one protocol round at a time).
	pendingRaw atomic.Pointer[config.Value]
	updating   atomic.Bool
	inited     atomic.Bool

	pending  *Update
	toUpdate []WorkerID
	updated  []WorkerID
}

type styleUpdateObserver struct {
	m *Manager
}

func (o styleUpdateObserver) OnUpdate(v *config.Value) {
	o.m.postStyleUpdate(v)
}

// NewManager reads render.queue_limit, render.workers and render.styles from
// cfg, builds the pool with the initial styles and registers for style
// updates. For an update that arrived during construction, the protocol round
// is started before returning; it completes asynchronously on the workers.
func NewManager(cfg config.Source, engine Engine, subtiler Subtiler) *Manager {
	m := &Manager{}

	jlimit := cfg.Get("render.queue_limit")
	queueLimit := uint(defaultQueueLimit)
	if jlimit.IsIntegral() {
		queueLimit = jlimit.UintOr(defaultQueueLimit)
	}

	jstyles := cfg.Watch("render.styles", styleUpdateObserver{m: m})
	names := make(nameSet)
	var initial []style.Info
	if obj, ok := jstyles.Object(); ok {
		for name, raw := range obj {
			info, err := style.ParseInfo(name, config.NewValue(raw))
			if err != nil {
				zap.L().Error("dropping invalid style", zap.String("style", name), zap.Error(err))
				continue
			}
			if _, dup := names[name]; dup {
				zap.L().Error("duplicate style name", zap.String("style", name))
				continue
			}
			names[name] = struct{}{}
			initial = append(initial, info)
		}
	} else {
		zap.L().Warn("no styles provided")
	}
	m.styleNames.Store(&names)

	jworkers := cfg.Get("render.workers")
	numWorkers := runtime.NumCPU()
	if jworkers.IsIntegral() {
		if n := jworkers.IntOr(0); n > 0 {
			numWorkers = n
		}
	}
	workers := make([]*Worker, numWorkers)
	for i := range workers {
		workers[i] = newWorker(WorkerID(i), engine, subtiler, initial)
	}
	m.pool = NewPool(queueLimit, workers)

	// Pick up style updates that raced construction.
	m.inited.Store(true)
	m.tryProcessStyleUpdate()
	return m
}

// HasStyle reports whether name is in the committed style-name set.
func (m *Manager) HasStyle(name string) bool {
	names := m.styleNames.Load()
	if names == nil {
		return false
	}
	_, ok := (*names)[name]
	return ok
}

// StyleNames returns a snapshot of the committed style names.
func (m *Manager) StyleNames() []string {
	names := m.styleNames.Load()
	if names == nil {
		return nil
	}
	out := make([]string, 0, len(*names))
	for name := range *names {
		out = append(out, name)
	}
	return out
}

// Render admits the request against the committed style set and enqueues it.
// The returned task is already resolved on rejection.
func (m *Manager) Render(req *RenderRequest, onSuccess func(Result), onError func()) *Task {
	task := NewTask(onSuccess, onError)
	if !m.HasStyle(req.StyleName) {
		task.NotifyError()
		return task
	}
	_ = m.pool.PostTask(&TileTask{Task: task, Render: req})
	return task
}

// MakeSubtile validates both tile ids and enqueues the request.
func (m *Manager) MakeSubtile(req *SubtileRequest, onSuccess func(Result), onError func()) *Task {
	task := NewTask(onSuccess, onError)
	if !req.Source.Valid() || !req.Target.Valid() {
		zap.L().Error("invalid tile id",
			zap.Stringer("source", req.Source), zap.Stringer("target", req.Target))
		task.NotifyError()
		return task
	}
	_ = m.pool.PostTask(&TileTask{Task: task, Subtile: req})
	return task
}

// RenderSync is reserved and always fails.
func (m *Manager) RenderSync(*RenderRequest) (Result, error) {
	return Result{}, ErrSyncRender
}

// Stop drains the pool; undispatched tasks resolve through their error
// callbacks.
func (m *Manager) Stop() {
	m.pool.Stop()
}

func (m *Manager) postStyleUpdate(v *config.Value) {
	m.pendingRaw.Store(v)
	m.tryProcessStyleUpdate()
}

// tryProcessStyleUpdate starts a protocol round unless one is already in
// flight. The in-flight round re-drains on completion, so a losing caller can
// simply return.
func (m *Manager) tryProcessStyleUpdate() {
	if !m.inited.Load() || m.pendingRaw.Load() == nil {
		return
	}
	if !m.updating.CompareAndSwap(false, true) {
		return
	}
	raw := m.pendingRaw.Swap(nil)
	if raw == nil {
		m.finishUpdate()
		return
	}
	styles, err := style.ParseSet(raw)
	if err != nil {
		zap.L().Error("style update parse failed", zap.Error(err))
		m.finishUpdate()
		return
	}

	m.toUpdate = m.pool.Workers()
	if len(m.toUpdate) == 0 {
		zap.L().Warn("render pool has no workers, skipping update")
		m.finishUpdate()
		return
	}
	m.pending = &Update{Styles: styles}
	m.updated = m.updated[:0]
	m.dispatchUpdate(m.toUpdate[len(m.toUpdate)-1])
}

func (m *Manager) dispatchUpdate(id WorkerID) {
	m.pool.ExecuteOn(id, func(w *Worker) { m.updateWorker(w) })
}

// updateWorker runs on the target worker's goroutine. Workers are updated one
// at a time, back to front, to bound peak memory while styles compile and to
// let a failure cancel earlier stagings without races.
func (m *Manager) updateWorker(w *Worker) {
	if !w.PrepareUpdate(m.pending) {
		zap.L().Error("error updating worker, cancelling update",
			zap.Int("remaining", len(m.toUpdate)))
		upd := m.pending
		for _, id := range m.updated {
			m.pool.ExecuteOn(id, func(w *Worker) { w.CancelUpdate(upd) })
		}
		m.finishUpdate()
		return
	}

	m.updated = append(m.updated, w.ID())
	m.toUpdate = m.toUpdate[:len(m.toUpdate)-1]
	if len(m.toUpdate) > 0 {
		m.dispatchUpdate(m.toUpdate[len(m.toUpdate)-1])
		return
	}

	// Every prepare succeeded: commit everywhere and publish the new names.
	upd := m.pending
	for _, id := range m.updated {
		m.pool.ExecuteOn(id, func(w *Worker) { w.CommitUpdate(upd) })
	}
	names := make(nameSet, len(upd.Styles))
	for _, info := range upd.Styles {
		names[info.Name] = struct{}{}
	}
	m.styleNames.Store(&names)
	zap.L().Info("style set committed", zap.Int("styles", len(names)))
	m.finishUpdate()
}

// finishUpdate clears protocol state, releases the single-flight guard and
// re-drains, picking up any snapshot that arrived mid-round.
func (m *Manager) finishUpdate() {
	m.pending = nil
	m.toUpdate = nil
	m.updated = nil
	m.updating.Store(false)
	m.tryProcessStyleUpdate()
}
