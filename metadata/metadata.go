// Package metadata defines component G: the abstract key-value,
// advisory-lock, and journal contract that the chunk manager (D) and the
// proxy facade (F) depend on, plus an in-process reference
// implementation suitable for tests and standalone runs.
//
// Grounded on spec.md's data model (§3 Object/Chunk/Journal) and §9's
// note that the metadata store's implementation is interchangeable; the
// on-disk record shape borrows the field layout from the teacher's
// modules/renter/filesystem/uplofile persisted metadata.
package metadata

import (
	"time"

	"github.com/uplo-tech/errors"
)

// InvalidContainerID is the sentinel recorded for a chunk position known
// to be lost (spec §3 Invariant 1).
const InvalidContainerID = -1

// UnusedContainerID marks a stripe position intentionally left empty
// (never dispatched a DEL_CHUNK against, per spec §4.4.4).
const UnusedContainerID = -2

// BgTaskState tracks the deferred-commit lifecycle of an object version
// (spec §4.5 "Deferred-commit checker").
type BgTaskState int

const (
	NoBgTask BgTaskState = iota
	BgTaskPending
	AllBgTasksCompleted
)

// StoragePolicy is the immutable-per-version snapshot of the coding
// parameters an object was written under (spec §3 "Storage class").
type StoragePolicy struct {
	CodingScheme  string
	N, K, F       int
	MaxChunkSize  int64
	ChunksPerNode int
	StateSize     int
	CodingState   []byte
}

// Chunk is one erasure-coded chunk position of an object (spec §3
// "Chunk").
type Chunk struct {
	ChunkID     int
	FileVersion int32
	Size        int64
	MD5         [16]byte
}

// Object is the full metadata record for one (namespace_id, name,
// version) (spec §3 "Object (File)").
type Object struct {
	NamespaceID byte
	Name        string
	Version     int32
	UUID        string

	Size          int64
	StorageClass  string
	Policy        StoragePolicy
	CreateTime    time.Time
	ModifyTime    time.Time
	AccessTime    time.Time
	MD5           [16]byte

	Chunks       []Chunk
	ContainerIDs []int
	Corrupted    []bool

	BgTask BgTaskState
}

// NumStripes returns the number of stripes this object spans.
func (o *Object) NumStripes() int {
	perStripe := o.ChunksPerStripe()
	if perStripe == 0 {
		return 0
	}
	return len(o.Chunks) / perStripe
}

// ChunksPerStripe returns n * chunks_per_node (spec §3 "Stripe").
func (o *Object) ChunksPerStripe() int {
	return o.Policy.N * o.Policy.ChunksPerNode
}

// JournalEntry is one (file, chunk_id, container_id, is_write, is_pre)
// tuple (spec §3 "Journal").
type JournalEntry struct {
	NamespaceID byte
	Name        string
	Version     int32
	ChunkID     int
	ContainerID int
	IsWrite     bool
	IsPre       bool
}

var (
	// ErrNotFound is returned by Get when no object exists at the given key.
	ErrNotFound = errors.New("metadata: object not found")
	// ErrLockTimeout is returned by Lock after exhausting its retry budget
	// (spec §4.6 step 1, §7 MetadataConflict).
	ErrLockTimeout = errors.New("metadata: lock timeout")
	// ErrVersionConflict reports that a concurrent writer already
	// advanced the version past what the caller read. MemStore.Put never
	// returns it: it stores whatever version it is given, and writers
	// are serialized through Lock.
	ErrVersionConflict = errors.New("metadata: version conflict")
)

// Key identifies one object version.
type Key struct {
	NamespaceID byte
	Name        string
	Version     int32
}

// nameKey identifies all versions of one object name, used as the
// advisory-lock and latest-version-pointer table key.
func nameKey(namespaceID byte, name string) nameOnlyKey {
	return nameOnlyKey{namespaceID: namespaceID, name: name}
}

// objectKey identifies one object version in the in-memory object table.
func objectKey(namespaceID byte, name string, version int32) objKey {
	return objKey{namespaceID: namespaceID, name: name, version: version}
}

// Store is the abstract KV + advisory-lock + journal contract spec §3/§9
// describe. D and F depend only on this interface, never on a concrete
// backend.
type Store interface {
	// Lock acquires the advisory lock on (namespace_id, name), retrying
	// up to retries times with interval back-off (spec §4.6 step 1).
	// unlock releases it.
	Lock(namespaceID byte, name string, retries int, interval time.Duration) (unlock func(), err error)

	// Get returns the current (highest) version's metadata, or a
	// specific version when version >= 0.
	Get(namespaceID byte, name string, version int32) (*Object, error)

	// Put persists obj, either as a new version or overwriting the
	// current one depending on obj.Version and the store's own
	// bookkeeping of the latest version per name.
	Put(obj *Object) error

	// Delete removes one version's metadata ("" name deletes nothing).
	// When version < 0 it deletes every version sharing the
	// (namespace_id, name) prefix.
	Delete(namespaceID byte, name string, version int32) error

	// Rename moves every version's metadata sharing the old
	// (namespace_id, name) prefix to the new name (DESIGN.md Open
	// Question decision 1).
	Rename(namespaceID byte, oldName, newName string) error

	// List returns every current-version object whose name has the
	// given prefix under namespaceID.
	List(namespaceID byte, prefix string) ([]*Object, error)

	// AppendJournal records one journal entry.
	AppendJournal(e JournalEntry) error
	// RemoveJournal removes a previously recorded entry (by full field
	// match), called once it is resolved (committed or compensated).
	RemoveJournal(e JournalEntry) error
	// PendingJournal returns every still-open journal entry, used by the
	// reconciler (spec §4.5 "Journal reconciler").
	PendingJournal() ([]JournalEntry, error)
}
