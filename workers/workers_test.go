package workers

import (
	"sync"
	"testing"
	"time"

	"github.com/nexoedge-go/proxy/metadata"
	"github.com/nexoedge-go/proxy/staging"
)

// fakeStore is an in-memory MetadataScanner/Journal stand-in.
type fakeStore struct {
	mu      sync.Mutex
	objs    map[metadata.Key]*metadata.Object
	journal []metadata.JournalEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{objs: make(map[metadata.Key]*metadata.Object)}
}

func (s *fakeStore) put(obj *metadata.Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objs[metadata.Key{NamespaceID: obj.NamespaceID, Name: obj.Name, Version: obj.Version}] = obj
}

func (s *fakeStore) List(namespaceID byte, prefix string) ([]*metadata.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*metadata.Object
	for k, obj := range s.objs {
		if k.NamespaceID == namespaceID {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (s *fakeStore) Get(namespaceID byte, name string, version int32) (*metadata.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objs[metadata.Key{NamespaceID: namespaceID, Name: name, Version: version}]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	return obj, nil
}

func (s *fakeStore) Put(obj *metadata.Object) error {
	s.put(obj)
	return nil
}

func (s *fakeStore) PendingJournal() ([]metadata.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]metadata.JournalEntry(nil), s.journal...), nil
}

func (s *fakeStore) RemoveJournal(e metadata.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.journal {
		if cur == e {
			s.journal = append(s.journal[:i], s.journal[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *fakeStore) appendJournal(e metadata.JournalEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = append(s.journal, e)
}

// fakeLiveness reports every container alive except those marked down.
type fakeLiveness struct {
	down map[int]bool
}

func (l *fakeLiveness) CheckLiveness(ids []int, unusedID int, treatUnusedAsOffline bool) ([]bool, int) {
	status := make([]bool, len(ids))
	failed := 0
	for i, id := range ids {
		status[i] = !l.down[id]
		if !status[i] {
			failed++
		}
	}
	return status, failed
}

func (l *fakeLiveness) NumAliveAgents() int {
	return 4 - len(l.down)
}

func TestRepairScannerEnqueuesDownObjects(t *testing.T) {
	store := newFakeStore()
	store.put(&metadata.Object{
		NamespaceID:  1,
		Name:         "a",
		Version:      0,
		ModifyTime:   time.Now().Add(-time.Hour),
		ContainerIDs: []int{1, 2, 3, 4},
	})
	liveness := &fakeLiveness{down: map[int]bool{2: true}}
	queue := NewRepairQueue()

	scanner := NewRepairScanner(store, liveness, queue, []byte{1}, time.Hour, time.Minute)
	scanner.scanOnce()

	if queue.Len() != 1 {
		t.Fatalf("expected 1 queued object, got %d", queue.Len())
	}
}

func TestRepairScannerSkipsRecentlyModified(t *testing.T) {
	store := newFakeStore()
	store.put(&metadata.Object{
		NamespaceID:  1,
		Name:         "a",
		Version:      0,
		ModifyTime:   time.Now(),
		ContainerIDs: []int{1, 2, 3, 4},
	})
	liveness := &fakeLiveness{down: map[int]bool{2: true}}
	queue := NewRepairQueue()

	scanner := NewRepairScanner(store, liveness, queue, []byte{1}, time.Hour, time.Minute)
	scanner.scanOnce()

	if queue.Len() != 0 {
		t.Fatalf("expected recent object to be skipped, got %d queued", queue.Len())
	}
}

func TestRepairQueueEnqueueIsIdempotent(t *testing.T) {
	q := NewRepairQueue()
	q.Enqueue(1, "a", 0)
	q.Enqueue(1, "a", 0)
	if q.Len() != 1 {
		t.Fatalf("expected duplicate enqueue to collapse to 1, got %d", q.Len())
	}
	batch := q.Drain(10)
	if len(batch) != 1 || q.Len() != 0 {
		t.Fatalf("unexpected drain result: %v, remaining %d", batch, q.Len())
	}
}

type fakeDispatcher struct {
	mu      sync.Mutex
	calls   int
	failFor string
}

func (d *fakeDispatcher) Repair(namespaceID byte, name string, version int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if name == d.failFor {
		return errTest
	}
	return nil
}

var errTest = &testError{"repair failed"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func TestRepairWorkerGatesOnQuorum(t *testing.T) {
	queue := NewRepairQueue()
	queue.Enqueue(1, "a", 0)
	dispatcher := &fakeDispatcher{}
	liveness := &fakeLiveness{down: map[int]bool{1: true, 2: true, 3: true}}

	w := NewRepairWorker(queue, dispatcher, liveness, 2, 10, time.Hour)
	w.drainOnce()

	if dispatcher.calls != 0 {
		t.Fatalf("expected no dispatch below quorum, got %d calls", dispatcher.calls)
	}
	if w.LastError() != ErrNoQuorum {
		t.Fatalf("expected ErrNoQuorum, got %v", w.LastError())
	}
	if queue.Len() != 1 {
		t.Fatalf("expected entry to remain queued, got %d", queue.Len())
	}
}

func TestRepairWorkerRequeuesOnFailure(t *testing.T) {
	queue := NewRepairQueue()
	queue.Enqueue(1, "a", 0)
	dispatcher := &fakeDispatcher{failFor: "a"}
	liveness := &fakeLiveness{}

	w := NewRepairWorker(queue, dispatcher, liveness, 2, 10, time.Hour)
	w.drainOnce()

	if dispatcher.calls != 1 {
		t.Fatalf("expected 1 dispatch attempt, got %d", dispatcher.calls)
	}
	if queue.Len() != 1 {
		t.Fatalf("expected failed repair to be requeued, got %d", queue.Len())
	}
}

type fakeVerifier struct {
	corrupted map[int][]int // containerID -> corrupted indices
}

func (v *fakeVerifier) VerifyChunks(containerID int, chunkIDs []int) ([]int, error) {
	return v.corrupted[containerID], nil
}

func TestChecksumScannerMarksCorruptPositionsInvalid(t *testing.T) {
	store := newFakeStore()
	store.put(&metadata.Object{
		NamespaceID:  1,
		Name:         "a",
		Version:      0,
		Policy:       metadata.StoragePolicy{N: 4, ChunksPerNode: 1},
		Chunks:       []metadata.Chunk{{ChunkID: 0}, {ChunkID: 1}, {ChunkID: 2}, {ChunkID: 3}},
		ContainerIDs: []int{10, 11, 12, 13},
		Corrupted:    []bool{false, false, false, false},
	})
	verifier := &fakeVerifier{corrupted: map[int][]int{11: {0}}}
	queue := NewRepairQueue()

	scanner := NewChecksumScanner(store, verifier, queue, []byte{1}, 100, SamplingNone, 1.0, time.Hour)
	scanner.scanOnce()

	obj, _ := store.Get(1, "a", 0)
	if obj.ContainerIDs[1] != metadata.InvalidContainerID {
		t.Fatalf("expected position 1 invalidated, got %v", obj.ContainerIDs)
	}
	if queue.Len() != 1 {
		t.Fatalf("expected object enqueued for repair, got %d", queue.Len())
	}
}

func TestCommitCheckerFlipsBgTaskState(t *testing.T) {
	store := newFakeStore()
	store.put(&metadata.Object{
		NamespaceID:  1,
		Name:         "a",
		Version:      0,
		Policy:       metadata.StoragePolicy{N: 2, ChunksPerNode: 1},
		Chunks:       []metadata.Chunk{{ChunkID: 0}, {ChunkID: 1}},
		ContainerIDs: []int{1, 2},
		BgTask:       metadata.BgTaskPending,
	})
	checker := &fakeFileChecker{missing: []int{1}}

	cc := NewCommitChecker(store, checker, []byte{1}, time.Hour)
	cc.checkOnce()

	obj, _ := store.Get(1, "a", 0)
	if obj.BgTask != metadata.AllBgTasksCompleted {
		t.Fatalf("expected BgTask flipped to completed, got %v", obj.BgTask)
	}
	if obj.ContainerIDs[1] != metadata.InvalidContainerID {
		t.Fatalf("expected missing position invalidated, got %v", obj.ContainerIDs)
	}
}

type fakeFileChecker struct{ missing []int }

func (f *fakeFileChecker) CheckFilePositions(namespaceID byte, fuuid string, containerIDs []int) []int {
	return f.missing
}

type fakeResolver struct {
	verifyOK bool
	deleted  []int
}

func (r *fakeResolver) VerifyChunkAt(namespaceID byte, fuuid string, chunkID, containerID int) (bool, error) {
	return r.verifyOK, nil
}

func (r *fakeResolver) DeleteChunkAt(namespaceID byte, fuuid string, chunkID, containerID int) error {
	r.deleted = append(r.deleted, chunkID)
	return nil
}

func TestJournalReconcilerPromotesVerifiedWrite(t *testing.T) {
	store := newFakeStore()
	store.put(&metadata.Object{NamespaceID: 1, Name: "a", Version: 0, UUID: "fuuid-a", ContainerIDs: []int{metadata.InvalidContainerID}})
	store.appendJournal(metadata.JournalEntry{NamespaceID: 1, Name: "a", Version: 0, ChunkID: 0, ContainerID: 7, IsWrite: true, IsPre: true})

	resolver := &fakeResolver{verifyOK: true}
	r := NewJournalReconciler(store, &fakeLiveness{}, resolver, time.Hour)
	r.reconcileOnce()

	obj, _ := store.Get(1, "a", 0)
	if obj.ContainerIDs[0] != 7 {
		t.Fatalf("expected chunk promoted to container 7, got %v", obj.ContainerIDs)
	}
	pending, _ := store.PendingJournal()
	if len(pending) != 0 {
		t.Fatalf("expected journal entry resolved, got %v", pending)
	}
}

func TestJournalReconcilerResolvesDeleteRecord(t *testing.T) {
	store := newFakeStore()
	store.appendJournal(metadata.JournalEntry{NamespaceID: 1, Name: "a", Version: 0, ChunkID: 3, ContainerID: 7, IsWrite: false, IsPre: true})

	resolver := &fakeResolver{}
	r := NewJournalReconciler(store, &fakeLiveness{}, resolver, time.Hour)
	r.reconcileOnce()

	if len(resolver.deleted) != 1 || resolver.deleted[0] != 3 {
		t.Fatalf("expected DEL_CHUNK reissued for chunk 3, got %v", resolver.deleted)
	}
	pending, _ := store.PendingJournal()
	if len(pending) != 0 {
		t.Fatalf("expected journal entry resolved, got %v", pending)
	}
}

func TestJournalReconcilerSkipsDeadContainer(t *testing.T) {
	store := newFakeStore()
	store.appendJournal(metadata.JournalEntry{NamespaceID: 1, Name: "a", Version: 0, ChunkID: 3, ContainerID: 7, IsWrite: false, IsPre: true})

	resolver := &fakeResolver{}
	r := NewJournalReconciler(store, &fakeLiveness{down: map[int]bool{7: true}}, resolver, time.Hour)
	r.reconcileOnce()

	if len(resolver.deleted) != 0 {
		t.Fatalf("expected no action on dead container, got %v", resolver.deleted)
	}
	pending, _ := store.PendingJournal()
	if len(pending) != 1 {
		t.Fatalf("expected entry to remain pending, got %v", pending)
	}
}

type fakeStagingStore struct {
	mu      sync.Mutex
	entries []staging.Entry
	cleared []int32
}

func (s *fakeStagingStore) PendingWriteback() ([]staging.Entry, error) {
	return s.entries, nil
}

func (s *fakeStagingStore) ReadStaged(namespaceID byte, name string, version int32) ([]byte, error) {
	return []byte("payload"), nil
}

func (s *fakeStagingStore) ClearPin(namespaceID byte, name string, version int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared = append(s.cleared, version)
	return nil
}

type fakeBackendWriter struct {
	mu      sync.Mutex
	written []int32
}

func (w *fakeBackendWriter) WriteStaged(namespaceID byte, name string, version int32, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, version)
	return nil
}

func TestStagingWritebackImmediateDrainsOldEntries(t *testing.T) {
	store := &fakeStagingStore{entries: []staging.Entry{
		{NamespaceID: 1, Name: "a", Version: 0, ModifyTime: time.Now().Add(-time.Hour)},
	}}
	writer := &fakeBackendWriter{}

	w := NewStagingWriteback(store, writer, WritebackImmediate, 0, nil, time.Minute)
	w.tickOnce()

	if len(writer.written) != 1 {
		t.Fatalf("expected 1 entry written back, got %d", len(writer.written))
	}
	if len(store.cleared) != 1 {
		t.Fatalf("expected pin cleared, got %d", len(store.cleared))
	}
}

func TestStagingWritebackSkipsRecentlyModified(t *testing.T) {
	store := &fakeStagingStore{entries: []staging.Entry{
		{NamespaceID: 1, Name: "a", Version: 0, ModifyTime: time.Now()},
	}}
	writer := &fakeBackendWriter{}

	w := NewStagingWriteback(store, writer, WritebackImmediate, 0, nil, time.Minute)
	w.tickOnce()

	if len(writer.written) != 0 {
		t.Fatalf("expected recently modified entry to be skipped, got %d", len(writer.written))
	}
}

func TestStagingWritebackIdlePolicyGatesOnCPULoad(t *testing.T) {
	store := &fakeStagingStore{entries: []staging.Entry{
		{NamespaceID: 1, Name: "a", Version: 0, ModifyTime: time.Now().Add(-time.Hour)},
	}}
	writer := &fakeBackendWriter{}

	busy := func() float64 { return 0.9 }
	w := NewStagingWriteback(store, writer, WritebackIdle, 0, busy, time.Minute)
	w.tickOnce()
	if len(writer.written) != 0 {
		t.Fatalf("expected busy host to skip writeback, got %d", len(writer.written))
	}

	idle := func() float64 { return 0.1 }
	w2 := NewStagingWriteback(store, writer, WritebackIdle, 0, idle, time.Minute)
	w2.tickOnce()
	if len(writer.written) != 1 {
		t.Fatalf("expected idle host to drain writeback, got %d", len(writer.written))
	}
}
