package render

import (
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by PostTask when the combined queue depth has
// reached the configured limit. The task's error callback has already fired.
var ErrQueueFull = errors.New("render queue is full")

// ErrPoolStopped is returned by PostTask after Stop.
var ErrPoolStopped = errors.New("render pool is stopped")

// controlHeadroom is extra per-worker channel capacity reserved for control
// messages, which are never rejected by the depth limit. In-flight control
// traffic is bounded by the update protocol, one message per worker plus the
// final commit/cancel fan-out.
const controlHeadroom = 64

type message struct {
	task *TileTask
	ctrl func(*Worker)
}

// Pool is a bounded FIFO task queue over a fixed set of workers. Each worker
// runs a single goroutine pulling from its own mailbox; tile tasks are
// load-balanced round-robin, control actions target a named worker. The depth
// limit applies to tile tasks across all mailboxes combined.
type Pool struct {
	workers []*Worker
	queues  []chan message

	limit int64
	depth atomic.Int64
	next  atomic.Uint64

	// stopMu serializes sends against Stop closing the mailboxes.
	stopMu  sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

func NewPool(queueLimit uint, workers []*Worker) *Pool {
	if queueLimit == 0 {
		queueLimit = 1
	}
	p := &Pool{
		workers: workers,
		queues:  make([]chan message, len(workers)),
		limit:   int64(queueLimit),
	}
	for i := range workers {
		// Depth accounting bounds tile tasks globally, so a mailbox can
		// never hold more than queueLimit of them.
		p.queues[i] = make(chan message, int(queueLimit)+controlHeadroom)
		p.wg.Add(1)
		go p.run(i)
	}
	return p
}

// PostTask enqueues a tile task, rejecting it immediately when the pool is
// saturated or stopped. On rejection the task's error callback has fired
// before PostTask returns.
func (p *Pool) PostTask(t *TileTask) error {
	p.stopMu.RLock()
	defer p.stopMu.RUnlock()
	if p.stopped {
		t.Task.NotifyError()
		return ErrPoolStopped
	}
	if p.depth.Add(1) > p.limit {
		p.depth.Add(-1)
		t.Task.NotifyError()
		return ErrQueueFull
	}
	i := int(p.next.Add(1) % uint64(len(p.queues)))
	p.queues[i] <- message{task: t}
	return nil
}

// ExecuteOn runs fn on the named worker's goroutine, FIFO with whatever else
// sits in that worker's mailbox. Control actions bypass the depth limit.
func (p *Pool) ExecuteOn(id WorkerID, fn func(*Worker)) {
	p.stopMu.RLock()
	defer p.stopMu.RUnlock()
	if p.stopped {
		return
	}
	p.queues[int(id)] <- message{ctrl: fn}
}

// Workers returns a snapshot of worker ids for targeted dispatch.
func (p *Pool) Workers() []WorkerID {
	ids := make([]WorkerID, len(p.workers))
	for i := range p.workers {
		ids[i] = WorkerID(i)
	}
	return ids
}

// QueueDepth reports the number of tile tasks currently queued.
func (p *Pool) QueueDepth() int {
	return int(p.depth.Load())
}

// Stop drains the pool. Tasks not yet dispatched are dropped through their
// error callback; the current task on each worker finishes first.
func (p *Pool) Stop() {
	p.stopMu.Lock()
	if p.stopped {
		p.stopMu.Unlock()
		return
	}
	p.stopped = true
	for _, q := range p.queues {
		close(q)
	}
	p.stopMu.Unlock()
	p.wg.Wait()
}

func (p *Pool) run(i int) {
	defer p.wg.Done()
	w := p.workers[i]
	w.init()
	for msg := range p.queues[i] {
		switch {
		case msg.task != nil:
			p.depth.Add(-1)
			if p.isStopped() {
				msg.task.Task.NotifyError()
				continue
			}
			p.safeExecute(w, msg.task)
		case msg.ctrl != nil:
			if p.isStopped() {
				continue
			}
			msg.ctrl(w)
		}
	}
}

func (p *Pool) isStopped() bool {
	p.stopMu.RLock()
	defer p.stopMu.RUnlock()
	return p.stopped
}

func (p *Pool) safeExecute(w *Worker, t *TileTask) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("worker recovered panic",
				zap.Int("worker", int(w.id)), zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			t.Task.NotifyError()
		}
	}()
	w.execute(t)
}
