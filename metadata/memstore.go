package metadata

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/uplo-tech/encoding"
	"github.com/uplo-tech/errors"
	"github.com/uplo-tech/writeaheadlog"
)

const journalUpdateName = "journal-entry"

// MemStore is an in-process reference Store implementation: a mutex-
// guarded map for objects plus a writeaheadlog-backed journal. It is
// meant for tests and for operators who do not need a networked
// metadata backend (spec §9: "metadata store implementation is
// interchangeable").
//
// Grounded on the teacher's modules/renter/filesystem/uplofile package
// for the wal-transaction-per-mutation idiom (NewTransaction ->
// SignalSetupComplete -> apply -> SignalUpdatesApplied); the object
// table itself has no on-disk counterpart in the teacher (UploFiles are
// one-file-per-object) so it is a plain map, matching spec.md §9's
// "no suitable library serves an in-process lock table better than
// sync.Mutex" stdlib carve-out.
// objKey identifies one object version in the in-memory table.
type objKey struct {
	namespaceID byte
	name        string
	version     int32
}

// nameOnlyKey identifies all versions of one object name.
type nameOnlyKey struct {
	namespaceID byte
	name        string
}

type MemStore struct {
	wal *writeaheadlog.WAL

	mu sync.Mutex
	// objects holds every stored version.
	objects map[objKey]*Object
	// latest tracks the highest version seen per name.
	latest map[nameOnlyKey]int32
	// locks is the advisory lock table, keyed by name.
	locks map[nameOnlyKey]*sync.Mutex
	// journal holds open entries, keyed by a composite of all fields.
	journal map[string]JournalEntry
}

// NewMemStore opens (or creates) a writeaheadlog at walPath and returns a
// ready MemStore. Any transactions left incomplete by a prior crash are
// replayed as journal entries before returning, so the reconciler (spec
// §4.5) can pick them up on the next tick.
func NewMemStore(walPath string) (*MemStore, error) {
	txns, wal, err := writeaheadlog.New(walPath)
	if err != nil {
		return nil, errors.AddContext(err, "metadata: open wal")
	}

	s := &MemStore{
		wal:     wal,
		objects: make(map[objKey]*Object),
		latest:  make(map[nameOnlyKey]int32),
		locks:   make(map[nameOnlyKey]*sync.Mutex),
		journal: make(map[string]JournalEntry),
	}

	for _, txn := range txns {
		for _, u := range txn.Updates {
			if u.Name != journalUpdateName {
				continue
			}
			var e JournalEntry
			if err := encoding.Unmarshal(u.Instructions, &e); err != nil {
				continue
			}
			s.journal[journalKey(e)] = e
		}
		if err := txn.SignalUpdatesApplied(); err != nil {
			return nil, errors.AddContext(err, "metadata: replay wal transaction")
		}
	}
	return s, nil
}

func journalKey(e JournalEntry) string {
	return fmt.Sprintf("%d/%s/%d/%d/%d/%v/%v", e.NamespaceID, e.Name, e.Version, e.ChunkID, e.ContainerID, e.IsWrite, e.IsPre)
}

// Lock acquires the advisory lock for (namespaceID, name), retrying up
// to retries times with interval back-off (spec §4.6 step 1). A
// process-in-process lock table is sufficient here since MemStore itself
// only ever runs embedded in a single proxy process.
func (s *MemStore) Lock(namespaceID byte, name string, retries int, interval time.Duration) (func(), error) {
	key := nameKey(namespaceID, name)

	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		l.Lock()
		close(acquired)
	}()

	attempt := 0
	for {
		select {
		case <-acquired:
			return func() { l.Unlock() }, nil
		case <-time.After(interval):
			attempt++
			if attempt > retries {
				// The waiter goroutine still queues on l; release the lock
				// on its behalf once it gets it, so the name does not stay
				// locked forever after a timeout.
				go func() {
					<-acquired
					l.Unlock()
				}()
				return nil, ErrLockTimeout
			}
		}
	}
}

// Get returns the current version's object, or a specific version when
// version >= 0.
func (s *MemStore) Get(namespaceID byte, name string, version int32) (*Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := version
	if v < 0 {
		var ok bool
		v, ok = s.latest[nameKey(namespaceID, name)]
		if !ok {
			return nil, ErrNotFound
		}
	}
	obj, ok := s.objects[objectKey(namespaceID, name, v)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *obj
	return &cp, nil
}

// Put persists obj as its own version, advancing the name's latest
// pointer when obj.Version is the new high-water mark.
func (s *MemStore) Put(obj *Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *obj
	s.objects[objectKey(obj.NamespaceID, obj.Name, obj.Version)] = &cp

	nk := nameKey(obj.NamespaceID, obj.Name)
	if cur, ok := s.latest[nk]; !ok || obj.Version >= cur {
		s.latest[nk] = obj.Version
	}
	return nil
}

// Delete removes one version ("version >= 0") or every version sharing
// the name (version < 0), per DESIGN.md Open Question decision 2.
func (s *MemStore) Delete(namespaceID byte, name string, version int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nk := nameKey(namespaceID, name)
	if version < 0 {
		for k, obj := range s.objects {
			if obj.NamespaceID == namespaceID && obj.Name == name {
				delete(s.objects, k)
			}
		}
		delete(s.latest, nk)
		return nil
	}

	delete(s.objects, objectKey(namespaceID, name, version))
	if cur, ok := s.latest[nk]; ok && cur == version {
		delete(s.latest, nk)
		// Recompute the new high-water mark from whatever remains.
		var max int32 = -1
		for k, obj := range s.objects {
			_ = k
			if obj.NamespaceID == namespaceID && obj.Name == name && obj.Version > max {
				max = obj.Version
			}
		}
		if max >= 0 {
			s.latest[nk] = max
		}
	}
	return nil
}

// Rename moves every version's metadata sharing the old (namespaceID,
// oldName) prefix to newName (DESIGN.md Open Question decision 1).
func (s *MemStore) Rename(namespaceID byte, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, obj := range s.objects {
		if obj.NamespaceID != namespaceID || obj.Name != oldName {
			continue
		}
		delete(s.objects, k)
		obj.Name = newName
		s.objects[objectKey(namespaceID, newName, obj.Version)] = obj
	}
	oldKey := nameKey(namespaceID, oldName)
	if v, ok := s.latest[oldKey]; ok {
		delete(s.latest, oldKey)
		s.latest[nameKey(namespaceID, newName)] = v
	}
	return nil
}

// List returns every current-version object under namespaceID whose name
// has the given prefix.
func (s *MemStore) List(namespaceID byte, prefix string) ([]*Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Object
	for nk, v := range s.latest {
		if nk.namespaceID != namespaceID || len(nk.name) < len(prefix) || nk.name[:len(prefix)] != prefix {
			continue
		}
		obj, ok := s.objects[objectKey(namespaceID, nk.name, v)]
		if !ok {
			continue
		}
		cp := *obj
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// AppendJournal records one journal entry, durably logged via the
// writeaheadlog before it is visible to PendingJournal, matching spec
// §3's "pre record is inserted before a chunk write/delete is
// dispatched."
func (s *MemStore) AppendJournal(e JournalEntry) error {
	if err := s.logJournalUpdate(e); err != nil {
		return err
	}
	s.mu.Lock()
	s.journal[journalKey(e)] = e
	s.mu.Unlock()
	return nil
}

// RemoveJournal removes a previously recorded entry once it is resolved.
func (s *MemStore) RemoveJournal(e JournalEntry) error {
	s.mu.Lock()
	delete(s.journal, journalKey(e))
	s.mu.Unlock()
	return nil
}

// PendingJournal returns every still-open journal entry.
func (s *MemStore) PendingJournal() ([]JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JournalEntry, 0, len(s.journal))
	for _, e := range s.journal {
		out = append(out, e)
	}
	return out, nil
}

func (s *MemStore) logJournalUpdate(e JournalEntry) error {
	update := writeaheadlog.Update{
		Name:         journalUpdateName,
		Instructions: encoding.Marshal(e),
	}
	txn, err := s.wal.NewTransaction([]writeaheadlog.Update{update})
	if err != nil {
		return errors.AddContext(err, "metadata: create wal txn")
	}
	if err := <-txn.SignalSetupComplete(); err != nil {
		return errors.AddContext(err, "metadata: signal setup complete")
	}
	if err := txn.SignalUpdatesApplied(); err != nil {
		return errors.AddContext(err, "metadata: signal updates applied")
	}
	return nil
}

// Close releases the underlying writeaheadlog.
func (s *MemStore) Close() error {
	return s.wal.Close()
}

var _ Store = (*MemStore)(nil)
