package workers

import "sync"

// repairKey identifies one object version queued for repair.
type repairKey struct {
	namespaceID byte
	name        string
	version     int32
}

// RepairQueue is the FIFO-ish set the repair scanner enqueues into and
// the repair worker drains from (spec §4.5 "Repair scanner ... enqueues
// it for repair" / "Repair worker ... drains the repair queue in
// batches"). Enqueue is idempotent: re-enqueuing an already-queued
// object is a no-op, since the scanner may observe the same failure on
// consecutive ticks before the repair worker gets to it.
type RepairQueue struct {
	mu    sync.Mutex
	order []repairKey
	set   map[repairKey]bool
}

// NewRepairQueue returns an empty queue.
func NewRepairQueue() *RepairQueue {
	return &RepairQueue{set: make(map[repairKey]bool)}
}

// Enqueue adds (namespaceID, name, version) to the queue if not already
// present.
func (q *RepairQueue) Enqueue(namespaceID byte, name string, version int32) {
	k := repairKey{namespaceID, name, version}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.set[k] {
		return
	}
	q.set[k] = true
	q.order = append(q.order, k)
}

// Drain pops up to batchSize queued entries in FIFO order, removing them
// from the queue's membership set; callers that fail to repair an entry
// must Enqueue it again (spec §4.5 "on failure it leaves it queued for
// the next tick").
func (q *RepairQueue) Drain(batchSize int) []repairKey {
	q.mu.Lock()
	defer q.mu.Unlock()
	if batchSize > len(q.order) {
		batchSize = len(q.order)
	}
	batch := append([]repairKey(nil), q.order[:batchSize]...)
	q.order = q.order[batchSize:]
	for _, k := range batch {
		delete(q.set, k)
	}
	return batch
}

// Len reports the current queue depth, used for
// get_num_to_repair/get_bg_task_progress reporting (spec §6).
func (q *RepairQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
