package workers

import (
	"time"

	"github.com/nexoedge-go/proxy/metadata"
)

// JournalResolver is the subset of chunkmgr.Manager the reconciler needs
// to resolve a dangling pre-journal entry (spec §4.5 "Journal
// reconciler").
type JournalResolver interface {
	VerifyChunkAt(namespaceID byte, fuuid string, chunkID, containerID int) (bool, error)
	DeleteChunkAt(namespaceID byte, fuuid string, chunkID, containerID int) error
}

// JournalReconciler resolves every dangling journal entry left behind
// by a crash mid-write, every journal_check_interval (spec §4.5).
type JournalReconciler struct {
	t ticker

	store    MetadataScanner
	liveness LivenessChecker
	resolver JournalResolver
}

// NewJournalReconciler builds a reconciler ticking every interval.
func NewJournalReconciler(store MetadataScanner, liveness LivenessChecker, resolver JournalResolver, interval time.Duration) *JournalReconciler {
	r := &JournalReconciler{store: store, liveness: liveness, resolver: resolver}
	r.t = ticker{interval: interval, tick: r.reconcileOnce}
	return r
}

// Start launches the reconcile loop.
func (r *JournalReconciler) Start() error { return r.t.start() }

// Stop halts the reconcile loop.
func (r *JournalReconciler) Stop() error { return r.t.stop() }

func (r *JournalReconciler) reconcileOnce() {
	entries, err := r.store.PendingJournal()
	if err != nil {
		return
	}
	for _, e := range entries {
		r.resolve(e)
	}
}

// resolve implements the four cases spec §4.5 lists for a dangling
// *pre* entry on an alive container. A pre entry on a dead container is
// left in place for the next tick, once the container is alive again.
func (r *JournalReconciler) resolve(e metadata.JournalEntry) {
	status, _ := r.liveness.CheckLiveness([]int{e.ContainerID}, metadata.UnusedContainerID, true)
	if len(status) == 0 || !status[0] {
		return
	}

	obj, err := r.store.Get(e.NamespaceID, e.Name, e.Version)
	fuuid := ""
	if err == nil {
		fuuid = obj.UUID
	}

	if !e.IsWrite {
		if err := r.resolver.DeleteChunkAt(e.NamespaceID, fuuid, e.ChunkID, e.ContainerID); err != nil {
			return
		}
		_ = r.store.RemoveJournal(e)
		return
	}

	if err == nil && e.ChunkID < len(obj.ContainerIDs) && obj.ContainerIDs[e.ChunkID] == e.ContainerID {
		// The object's committed chunk for this position already matches
		// the journaled write: treat as committed, nothing to fix up.
		_ = r.store.RemoveJournal(e)
		return
	}

	ok, verr := r.resolver.VerifyChunkAt(e.NamespaceID, fuuid, e.ChunkID, e.ContainerID)
	if verr != nil || !ok {
		// Chunk absent or corrupted: nothing was durably written, drop
		// the orphan entry.
		_ = r.store.RemoveJournal(e)
		return
	}

	if err == nil && e.ChunkID < len(obj.ContainerIDs) {
		obj.ContainerIDs[e.ChunkID] = e.ContainerID
		if err := r.store.Put(obj); err != nil {
			return
		}
	}
	_ = r.store.RemoveJournal(e)
}
