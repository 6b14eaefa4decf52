// Package proxy implements component F: the public facade that owns the
// per-operation lock/read/dispatch/update/unlock sequence described in
// spec §4.6, delegating the actual stripe work to the chunk manager (D)
// and spare-container selection to the placement coordinator (C). It
// never encodes or decodes a chunk itself.
//
// Grounded on _examples/original_source/src/proxy/proxy.cc/.hh and
// proxy_file_ops.cc for the exact per-operation shape, and the teacher's
// modules/renter/renter.go for the Go idiom of a facade that holds its
// collaborators by field and never reaches for a global.
package proxy

import (
	"sync/atomic"
	"time"

	"github.com/uplo-tech/errors"
	"github.com/uplo-tech/fastrand"
	"github.com/uplo-tech/threadgroup"

	"github.com/nexoedge-go/proxy/chunkmgr"
	"github.com/nexoedge-go/proxy/metadata"
	"github.com/nexoedge-go/proxy/persist"
	"github.com/nexoedge-go/proxy/placement"
)

// Sentinel errors, matching spec §7's error-kind taxonomy as it applies
// to the facade.
var (
	// ErrNotFound surfaces metadata.ErrNotFound without requiring callers
	// to import metadata.
	ErrNotFound = errors.New("proxy: object not found")
	// ErrMetadataConflict is returned when the advisory lock cannot be
	// acquired within the configured retry budget (spec §7
	// MetadataConflict).
	ErrMetadataConflict = errors.New("proxy: could not acquire advisory lock")
	// ErrMisaligned covers an append/overwrite request that fails the
	// alignment rules of spec §4.7/§4.8.
	ErrMisaligned = errors.New("proxy: misaligned append or overwrite request")
	// ErrUnknownStorageClass is returned when a write names a storage
	// class the proxy has no policy for.
	ErrUnknownStorageClass = errors.New("proxy: unknown storage class")
)

// ChunkManager is the subset of chunkmgr.Manager the facade dispatches
// stripe work to (spec §4.6 step 3).
type ChunkManager interface {
	WriteStripe(in chunkmgr.StripeWriteInput) (*chunkmgr.StripeWriteResult, error)
	AwaitBackgroundCommit(result *chunkmgr.StripeWriteResult) (committed, failed []int)
	ReadStripe(in chunkmgr.StripeReadInput) ([]byte, error)
	RepairStripe(in chunkmgr.StripeRepairInput) (*chunkmgr.StripeRepairResult, error)
	CopyRange(span chunkmgr.StripeSpan, k int) error
	MoveRange(span chunkmgr.StripeSpan, k int) error
	DeleteFile(namespaceID byte, fuuid string, containerIDs []int, alive []bool) error
	RevertStripe(namespaceID byte, fuuid string, stripeIdx, n int, containerIDs []int, priorVersion uint32)
}

// PlacementCoordinator is the subset of placement.Coordinator the facade
// depends on for spare-container selection and status reporting.
type PlacementCoordinator interface {
	FindSpareContainers(existing []int, status []bool, want int, fsize int64, n, k, f int, policy placement.Policy) ([]int, error)
	CheckLiveness(ids []int, unusedID int, treatUnusedAsOffline bool) (status []bool, numFailed int)
	NumAliveAgents() int
	NumAliveContainers() int
	Snapshot() []placement.AgentSnapshot
}

// StorageClass is one `{coding, n, k, f, max_chunk_size, default}`
// declaration (spec §6 "Each storage class file declares ...").
type StorageClass struct {
	Name         string
	Coding       string
	N, K, F      int
	MaxChunkSize int64
	Default      bool
}

func (sc StorageClass) policy() metadata.StoragePolicy {
	return metadata.StoragePolicy{
		CodingScheme:  sc.Coding,
		N:             sc.N,
		K:             sc.K,
		F:             sc.F,
		MaxChunkSize:  sc.MaxChunkSize,
		ChunksPerNode: 1,
	}
}

// Config holds the facade's tunables (spec §6 proxy./misc./recovery.
// sections as they bear on F).
type Config struct {
	NumRetry       int
	RetryInterval  time.Duration
	OverwriteFiles bool
	PlacementPolicy placement.Policy
	StorageClasses  map[string]StorageClass
	DefaultClass    string
}

func (c Config) storageClass(name string) (StorageClass, error) {
	if name == "" {
		name = c.DefaultClass
	}
	sc, ok := c.StorageClasses[name]
	if !ok {
		return StorageClass{}, ErrUnknownStorageClass
	}
	return sc, nil
}

// Proxy is component F. It owns no chunk-level I/O of its own - the
// chunk manager and placement coordinator are injected - but it does own
// the advisory-lock/version-bookkeeping sequence every mutating
// operation follows (spec §4.6).
type Proxy struct {
	tg threadgroup.ThreadGroup
	log *persist.Logger

	store  metadata.Store
	chunks ChunkManager
	place  PlacementCoordinator
	dedup  Dedup
	stats  *StatsSaver
	host   HostInfoProvider

	bgTasks []BgTaskReporter

	cfg Config

	eventID        uint32 // atomic monotonic event counter (spec §5 "Shared resources")
	repairInFlight int32  // atomic repair in-flight counter (spec §5 "Shared resources")
}

// RepairsInFlight reports the current repair in-flight counter, used to
// fold "under repair" into get_proxy_status / file-count reporting
// (spec §5).
func (p *Proxy) RepairsInFlight() int {
	return int(atomic.LoadInt32(&p.repairInFlight))
}

// New builds a Proxy. store, chunks, and place are shared, already
// constructed collaborators (spec §9 "Global singletons -> dependency
// injection"). A nil dedup defaults to NoopDedup.
func New(cfg Config, store metadata.Store, chunks ChunkManager, place PlacementCoordinator, dedup Dedup, stats *StatsSaver, log *persist.Logger) *Proxy {
	if dedup == nil {
		dedup = NoopDedup{}
	}
	return &Proxy{
		log:    log,
		store:  store,
		chunks: chunks,
		place:  place,
		dedup:  dedup,
		stats:  stats,
		cfg:    cfg,
	}
}

// Close stops accepting new work and waits for in-flight operations to
// finish (spec §5 shutdown description).
func (p *Proxy) Close() error {
	return p.tg.Stop()
}

// nextEventID returns the next value of the monotonic event counter
// (spec §5 "Event id counter: atomic monotonic 32-bit").
func (p *Proxy) nextEventID() uint32 {
	return atomic.AddUint32(&p.eventID, 1)
}

// lock acquires the advisory lock on (namespaceID, name) with the
// configured retry budget (spec §4.6 step 1).
func (p *Proxy) lock(namespaceID byte, name string) (func(), error) {
	unlock, err := p.store.Lock(namespaceID, name, p.cfg.NumRetry, p.cfg.RetryInterval)
	if err != nil {
		return nil, errors.Compose(ErrMetadataConflict, err)
	}
	return unlock, nil
}

func newUUID() string {
	return fastrand.BytesHex(16)
}

// stripeLogicalSize is the maximum logical payload one stripe carries:
// K data chunks of up to MaxChunkSize bytes each (spec §3 "Stripe").
func stripeLogicalSize(policy metadata.StoragePolicy) int64 {
	return policy.MaxChunkSize * int64(policy.K)
}

// numStripesFor returns how many stripes size bytes spans under policy.
func numStripesFor(size int64, policy metadata.StoragePolicy) int {
	stripeSize := stripeLogicalSize(policy)
	if stripeSize <= 0 {
		return 0
	}
	n := size / stripeSize
	if size%stripeSize != 0 {
		n++
	}
	if n == 0 {
		n = 1
	}
	return int(n)
}
