package workers

import (
	"strconv"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/uplo-tech/fastrand"

	"github.com/nexoedge-go/proxy/metadata"
)

// SamplingPolicy selects which chunks a checksum-scan batch actually
// verifies (spec §4.5 checksum-scan sampling table).
type SamplingPolicy int

const (
	SamplingNone SamplingPolicy = iota
	SamplingChunkLevel
	SamplingStripeLevel
	SamplingFileLevel
	SamplingContainerLevel
)

// ChecksumVerifier is the subset of chunkmgr.Manager the checksum
// scanner needs: one batched VRF_CHUNK dispatch per container.
type ChecksumVerifier interface {
	VerifyChunks(containerID int, chunkIDs []int) (corruptedIdx []int, err error)
}

// chunkRef pins one sampled chunk back to the object/position it came
// from so a corrupt verdict can be written back to metadata.
type chunkRef struct {
	obj         *metadata.Object
	chunkIndex  int // index into obj.Chunks / obj.ContainerIDs
	containerID int
	chunkID     int
}

// ChecksumScanner performs the batched chunk-checksum scan: accumulate
// up to batchSize chunks, sample per policy, group survivors by
// container, issue one VRF_CHUNK per container, then fail any reported
// position and enqueue its object for repair (spec §4.5).
type ChecksumScanner struct {
	t ticker

	store    MetadataScanner
	verifier ChecksumVerifier
	queue    *RepairQueue

	namespaces []byte
	batchSize  int
	policy     SamplingPolicy
	rate       float64

	mu      sync.Mutex
	history []float64 // per-tick corruption rate, feeds Health()
}

// NewChecksumScanner builds a scanner ticking every scanInterval
// (spec's `recovery.scan_chunk_interval`).
func NewChecksumScanner(store MetadataScanner, verifier ChecksumVerifier, queue *RepairQueue, namespaces []byte, batchSize int, policy SamplingPolicy, rate float64, scanInterval time.Duration) *ChecksumScanner {
	s := &ChecksumScanner{store: store, verifier: verifier, queue: queue, namespaces: namespaces, batchSize: batchSize, policy: policy, rate: rate}
	s.t = ticker{interval: scanInterval, tick: s.scanOnce}
	return s
}

// Start launches the scan loop.
func (s *ChecksumScanner) Start() error { return s.t.start() }

// Stop halts the scan loop.
func (s *ChecksumScanner) Stop() error { return s.t.stop() }

// Health reports the mean and standard deviation of the corruption rate
// observed across past ticks, alongside the most recent raw sample
// (spec enrichment: scan-health metrics for get_proxy_status).
func (s *ChecksumScanner) Health() (mean, stddev, last float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return 0, 0, 0
	}
	data := stats.Float64Data(s.history)
	mean, _ = stats.Mean(data)
	stddev, _ = stats.StandardDeviation(data)
	return mean, stddev, s.history[len(s.history)-1]
}

func (s *ChecksumScanner) scanOnce() {
	refs := s.collect()
	selected := s.sample(refs)
	if len(selected) == 0 {
		s.recordRate(0)
		return
	}

	byContainer := make(map[int][]chunkRef)
	for _, r := range selected {
		byContainer[r.containerID] = append(byContainer[r.containerID], r)
	}

	dirty := make(map[*metadata.Object]bool)
	var numCorrupted int
	for cid, group := range byContainer {
		chunkIDs := make([]int, len(group))
		for i, r := range group {
			chunkIDs[i] = r.chunkID
		}
		corrupted, err := s.verifier.VerifyChunks(cid, chunkIDs)
		if err != nil {
			continue
		}
		for _, idx := range corrupted {
			if idx < 0 || idx >= len(group) {
				continue
			}
			r := group[idx]
			r.obj.ContainerIDs[r.chunkIndex] = metadata.InvalidContainerID
			if r.chunkIndex < len(r.obj.Corrupted) {
				r.obj.Corrupted[r.chunkIndex] = true
			}
			dirty[r.obj] = true
			numCorrupted++
		}
	}

	for obj := range dirty {
		if err := s.store.Put(obj); err != nil {
			continue
		}
		s.queue.Enqueue(obj.NamespaceID, obj.Name, obj.Version)
	}

	if len(selected) > 0 {
		s.recordRate(float64(numCorrupted) / float64(len(selected)))
	}
}

func (s *ChecksumScanner) recordRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, rate)
	if len(s.history) > 256 {
		s.history = s.history[len(s.history)-256:]
	}
}

// collect walks every object across the configured namespaces,
// accumulating chunk references for live (non-INVALID, non-UNUSED)
// positions up to batchSize.
func (s *ChecksumScanner) collect() []chunkRef {
	var refs []chunkRef
	for _, ns := range s.namespaces {
		objs, err := s.store.List(ns, "")
		if err != nil {
			continue
		}
		for _, obj := range objs {
			for i, cid := range obj.ContainerIDs {
				if cid == metadata.InvalidContainerID || cid == metadata.UnusedContainerID {
					continue
				}
				chunkID := i
				if i < len(obj.Chunks) {
					chunkID = obj.Chunks[i].ChunkID
				}
				refs = append(refs, chunkRef{obj: obj, chunkIndex: i, containerID: cid, chunkID: chunkID})
				if len(refs) >= s.batchSize {
					return refs
				}
			}
		}
	}
	return refs
}

// sample applies the configured policy, grouping chunks by stripe,
// file, or container and keeping or dropping each group as a unit
// (CHUNK-LEVEL draws independently per chunk instead).
func (s *ChecksumScanner) sample(refs []chunkRef) []chunkRef {
	if s.policy == SamplingNone {
		return refs
	}
	if s.policy == SamplingChunkLevel {
		var out []chunkRef
		for _, r := range refs {
			if bernoulli(s.rate) {
				out = append(out, r)
			}
		}
		return out
	}

	groupKeep := make(map[string]bool)
	keyOf := func(r chunkRef) string {
		switch s.policy {
		case SamplingFileLevel:
			return fileKey(r.obj)
		case SamplingContainerLevel:
			return containerKey(r.containerID)
		default: // SamplingStripeLevel
			return stripeKey(r.obj, r.chunkIndex)
		}
	}

	var out []chunkRef
	for _, r := range refs {
		k := keyOf(r)
		keep, seen := groupKeep[k]
		if !seen {
			keep = bernoulli(s.rate)
			groupKeep[k] = keep
		}
		if keep {
			out = append(out, r)
		}
	}
	return out
}

func bernoulli(rate float64) bool {
	if rate <= 0 {
		return false
	}
	if rate >= 1 {
		return true
	}
	return fastrand.Intn(1<<20) < int(rate*float64(1<<20))
}

func fileKey(obj *metadata.Object) string {
	return strconv.Itoa(int(obj.NamespaceID)) + "/" + obj.Name
}

func containerKey(containerID int) string {
	return "c" + strconv.Itoa(containerID)
}

func stripeKey(obj *metadata.Object, chunkIndex int) string {
	perStripe := obj.ChunksPerStripe()
	stripe := 0
	if perStripe > 0 {
		stripe = chunkIndex / perStripe
	}
	return fileKey(obj) + "/" + strconv.Itoa(stripe)
}
