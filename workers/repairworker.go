package workers

import (
	"sync"
	"sync/atomic"
	"time"
)

// RepairDispatcher is the subset of the proxy facade (F) the repair
// worker needs: F owns the lock/metadata/dispatch-to-D sequence, so the
// worker never calls chunkmgr directly (spec §2 data flow: "E (scan) ->
// F (queued list) -> D ... -> F (commit metadata)").
type RepairDispatcher interface {
	Repair(namespaceID byte, name string, version int32) error
}

// RepairWorker drains RepairQueue in batches every recover_interval,
// while the fleet reports at least k alive agents (spec §4.5 "Repair
// worker"). The gate counts agents through NumAliveAgents, not
// individual containers.
type RepairWorker struct {
	t ticker

	queue      *RepairQueue
	dispatcher RepairDispatcher
	liveness   LivenessChecker
	minAlive   int
	batchSize  int

	inFlight int32 // atomic: repair in-flight counter (spec §5 "Shared resources")

	mu      sync.Mutex
	lastErr error
}

// NewRepairWorker builds a worker. minAlive is k, the erasure scheme's
// data-chunk count, compared against the number of alive agents before
// each drain.
func NewRepairWorker(queue *RepairQueue, dispatcher RepairDispatcher, liveness LivenessChecker, minAlive, batchSize int, interval time.Duration) *RepairWorker {
	w := &RepairWorker{queue: queue, dispatcher: dispatcher, liveness: liveness, minAlive: minAlive, batchSize: batchSize}
	w.t = ticker{interval: interval, tick: w.drainOnce}
	return w
}

// Start launches the drain loop.
func (w *RepairWorker) Start() error { return w.t.start() }

// Stop halts the drain loop.
func (w *RepairWorker) Stop() error { return w.t.stop() }

// InFlight reports the number of repairs currently executing, for
// get_bg_task_progress / get_num_to_repair reporting (spec §5, §6).
func (w *RepairWorker) InFlight() int { return int(atomic.LoadInt32(&w.inFlight)) }

// LastError reports the most recent reason a drain tick did nothing -
// ErrNoQuorum while fewer than k agents are alive, or nil once a
// later tick clears it - for get_proxy_status reporting.
func (w *RepairWorker) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *RepairWorker) drainOnce() {
	w.mu.Lock()
	if w.liveness.NumAliveAgents() < w.minAlive {
		w.lastErr = ErrNoQuorum
		w.mu.Unlock()
		return
	}
	w.lastErr = nil
	w.mu.Unlock()

	for _, k := range w.queue.Drain(w.batchSize) {
		atomic.AddInt32(&w.inFlight, 1)
		err := w.dispatcher.Repair(k.namespaceID, k.name, k.version)
		atomic.AddInt32(&w.inFlight, -1)
		if err != nil {
			// Leave it queued for the next tick (spec §4.5).
			w.queue.Enqueue(k.namespaceID, k.name, k.version)
		}
	}
}
