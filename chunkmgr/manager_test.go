package chunkmgr

import (
	"sync"
	"testing"

	"github.com/nexoedge-go/proxy/chunkio"
	"github.com/nexoedge-go/proxy/coding"
	"github.com/nexoedge-go/proxy/metadata"
	"github.com/nexoedge-go/proxy/placement"
)

func newTestCache() *coding.Cache { return coding.NewCache() }

// fakeAgentFleet is an in-memory chunk store keyed by (containerID,
// chunkID), standing in for a fleet of real agents so the stripe
// pipelines can be exercised without a network.
type fakeAgentFleet struct {
	mu      sync.Mutex
	store   map[[2]int][]byte
	downIDs map[int]bool
}

func newFakeAgentFleet() *fakeAgentFleet {
	return &fakeAgentFleet{store: make(map[[2]int][]byte), downIDs: make(map[int]bool)}
}

func (f *fakeAgentFleet) Send(req *chunkio.Request) (*chunkio.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.downIDs[req.ContainerID] {
		return nil, chunkio.ErrTransport
	}

	switch req.Opcode {
	case chunkio.PutChunkReq:
		f.store[[2]int{req.ContainerID, req.Chunk.ChunkID}] = append([]byte(nil), req.ChunkData...)
		return &chunkio.Reply{Opcode: chunkio.PutChunkRepSuccess, Size: uint64(len(req.ChunkData))}, nil
	case chunkio.GetChunkReq:
		data, ok := f.store[[2]int{req.ContainerID, req.Chunk.ChunkID}]
		if !ok {
			return &chunkio.Reply{Opcode: chunkio.GetChunkRepFail}, chunkio.ErrAgentFailure
		}
		return &chunkio.Reply{Opcode: chunkio.GetChunkRepSuccess, ChunkData: data, ChunkMD5: md5Sum(data)}, nil
	case chunkio.DelChunkReq:
		delete(f.store, [2]int{req.ContainerID, req.Chunk.ChunkID})
		return &chunkio.Reply{Opcode: chunkio.DelChunkRepSuccess}, nil
	case chunkio.RvtChunkReq:
		return &chunkio.Reply{Opcode: chunkio.RvtChunkRepSuccess}, nil
	case chunkio.CpyChunkReq:
		data, ok := f.store[[2]int{req.SourceContainerID, req.SrcChunk.ChunkID}]
		if !ok {
			return &chunkio.Reply{Opcode: chunkio.CpyChunkRepFail}, chunkio.ErrAgentFailure
		}
		f.store[[2]int{req.ContainerID, req.Chunk.ChunkID}] = append([]byte(nil), data...)
		return &chunkio.Reply{Opcode: chunkio.CpyChunkRepSuccess, ChunkData: data, ChunkMD5: md5Sum(data)}, nil
	default:
		return &chunkio.Reply{Opcode: chunkio.PutChunkRepFail}, chunkio.ErrAgentFailure
	}
}

func (f *fakeAgentFleet) setDown(containerID int, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downIDs[containerID] = down
}

// fakePlacement answers spare-container requests from a fixed pool,
// excluding anything already alive in existing.
type fakePlacement struct {
	pool []int
}

func (p *fakePlacement) CheckLiveness(ids []int, unusedID int, treatUnusedAsOffline bool) ([]bool, int) {
	status := make([]bool, len(ids))
	for i := range ids {
		status[i] = true
	}
	return status, 0
}

func (p *fakePlacement) FindSpareContainers(existing []int, status []bool, want int, fsize int64, n, k, f int, policy placement.Policy) ([]int, error) {
	excluded := make(map[int]bool, len(existing))
	for i, id := range existing {
		if i < len(status) && status[i] {
			excluded[id] = true
		}
	}
	var out []int
	for _, id := range p.pool {
		if len(out) >= want {
			break
		}
		if excluded[id] {
			continue
		}
		out = append(out, id)
	}
	if len(out) < want {
		return nil, placement.ErrInsufficientCapacity
	}
	return out, nil
}

func (p *fakePlacement) FindChunkGroups(containers []int, status []bool) map[string][]int {
	groups := make(map[string][]int)
	for pos, cid := range containers {
		if pos < len(status) && !status[pos] {
			continue
		}
		groups[intToAgent(cid)] = append(groups[intToAgent(cid)], pos)
	}
	return groups
}

func intToAgent(containerID int) string {
	return "agent-" + string(rune('A'+containerID))
}

type fakeJournal struct{ mu sync.Mutex }

func (j *fakeJournal) AppendJournal(e metadata.JournalEntry) error { return nil }
func (j *fakeJournal) RemoveJournal(e metadata.JournalEntry) error { return nil }

func testPolicy() metadata.StoragePolicy {
	return metadata.StoragePolicy{CodingScheme: "rs", N: 4, K: 2, F: 0, MaxChunkSize: 1 << 20, ChunksPerNode: 1}
}

func TestWriteThenReadStripeRoundTrip(t *testing.T) {
	fleet := newFakeAgentFleet()
	place := &fakePlacement{pool: []int{0, 1, 2, 3, 4, 5}}
	mgr := New(Config{VerifyChecksum: true, NumBackgroundWorkers: 2}, newTestCache(), fleet, place, &fakeJournal{})
	defer mgr.Close()

	policy := testPolicy()
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i)
	}

	res, err := mgr.WriteStripe(StripeWriteInput{
		NamespaceID:  1,
		Name:         "obj",
		Version:      0,
		FUUID:        "fuuid-1",
		StripeIndex:  0,
		Policy:       policy,
		Data:         data,
		ContainerIDs: []int{0, 1, 2, 3},
	})
	if err != nil {
		t.Fatalf("write stripe: %v", err)
	}
	if res.HasBackgroundWork() {
		committed, failed := mgr.AwaitBackgroundCommit(res)
		if len(failed) != 0 {
			t.Fatalf("unexpected background failures: %v", failed)
		}
		_ = committed
	}

	got, err := mgr.ReadStripe(StripeReadInput{
		NamespaceID:  1,
		Name:         "obj",
		Version:      0,
		FUUID:        "fuuid-1",
		StripeIndex:  0,
		Policy:       policy,
		ContainerIDs: []int{0, 1, 2, 3},
		Indicator:    []bool{true, true, true, true},
	})
	if err != nil {
		t.Fatalf("read stripe: %v", err)
	}
	if string(got[:len(data)]) != string(data) {
		t.Fatalf("round-trip mismatch")
	}
}

func TestDegradedReadToleratesNMinusKFailures(t *testing.T) {
	fleet := newFakeAgentFleet()
	place := &fakePlacement{pool: []int{0, 1, 2, 3, 4, 5}}
	mgr := New(Config{NumBackgroundWorkers: 2}, newTestCache(), fleet, place, &fakeJournal{})
	defer mgr.Close()

	policy := testPolicy()
	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(255 - i)
	}

	_, err := mgr.WriteStripe(StripeWriteInput{
		NamespaceID:  1,
		Name:         "obj2",
		Version:      0,
		FUUID:        "fuuid-2",
		StripeIndex:  0,
		Policy:       policy,
		Data:         data,
		ContainerIDs: []int{0, 1, 2, 3},
	})
	if err != nil {
		t.Fatalf("write stripe: %v", err)
	}

	// n=4,k=2: two failures is exactly n-k, still tolerable.
	fleet.setDown(0, true)
	fleet.setDown(3, true)

	got, err := mgr.ReadStripe(StripeReadInput{
		NamespaceID:  1,
		Name:         "obj2",
		Version:      0,
		FUUID:        "fuuid-2",
		StripeIndex:  0,
		Policy:       policy,
		ContainerIDs: []int{0, 1, 2, 3},
		Indicator:    []bool{false, true, true, false},
	})
	if err != nil {
		t.Fatalf("degraded read: %v", err)
	}
	if string(got[:len(data)]) != string(data) {
		t.Fatalf("degraded read content mismatch")
	}
}

func TestDegradedReadRetriesUntriedSurvivorOnTransportFailure(t *testing.T) {
	fleet := newFakeAgentFleet()
	place := &fakePlacement{pool: []int{0, 1, 2, 3, 4, 5}}
	mgr := New(Config{NumBackgroundWorkers: 2}, newTestCache(), fleet, place, &fakeJournal{})
	defer mgr.Close()

	policy := testPolicy()
	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(i)
	}

	_, err := mgr.WriteStripe(StripeWriteInput{
		NamespaceID:  1,
		Name:         "obj2b",
		Version:      0,
		FUUID:        "fuuid-2b",
		StripeIndex:  0,
		Policy:       policy,
		Data:         data,
		ContainerIDs: []int{0, 1, 2, 3},
	})
	if err != nil {
		t.Fatalf("write stripe: %v", err)
	}

	// No position is known lost (Indicator is all-alive), but the first
	// selected survivor's container goes down between write and read. The
	// plan names only k=2 survivors, so this is a per-chunk transport
	// failure that must fall back to an untried survivor rather than
	// returning ErrUnrecoverable outright.
	fleet.setDown(0, true)

	got, err := mgr.ReadStripe(StripeReadInput{
		NamespaceID:  1,
		Name:         "obj2b",
		Version:      0,
		FUUID:        "fuuid-2b",
		StripeIndex:  0,
		Policy:       policy,
		ContainerIDs: []int{0, 1, 2, 3},
		Indicator:    []bool{true, true, true, true},
	})
	if err != nil {
		t.Fatalf("expected a retry against an untried survivor to succeed, got %v", err)
	}
	if string(got[:len(data)]) != string(data) {
		t.Fatalf("degraded read content mismatch")
	}
}

func TestRepairAtProxyRetriesUntriedSurvivorOnTransportFailure(t *testing.T) {
	fleet := newFakeAgentFleet()
	place := &fakePlacement{pool: []int{100, 101}}
	mgr := New(Config{NumBackgroundWorkers: 2}, newTestCache(), fleet, place, &fakeJournal{})
	defer mgr.Close()

	policy := metadata.StoragePolicy{CodingScheme: "rs", N: 6, K: 3, F: 0, MaxChunkSize: 1 << 20, ChunksPerNode: 1}
	data := make([]byte, 3000)
	for i := range data {
		data[i] = byte(i)
	}

	_, err := mgr.WriteStripe(StripeWriteInput{
		NamespaceID:  1,
		Name:         "obj4",
		Version:      0,
		FUUID:        "fuuid-4",
		StripeIndex:  0,
		Policy:       policy,
		Data:         data,
		ContainerIDs: []int{0, 1, 2, 3, 4, 5},
	})
	if err != nil {
		t.Fatalf("write stripe: %v", err)
	}

	// Positions 2 and 5 are known lost. Of the remaining 4 survivors
	// (0,1,3,4), the repair plan names only k=3 of them (0,1,3). If
	// container 0 then suffers a transport failure, repairAtProxy's
	// non-CAR path must retry against the untried 4th survivor instead
	// of failing the whole repair.
	fleet.setDown(0, true)

	result, err := mgr.RepairStripe(StripeRepairInput{
		NamespaceID:  1,
		Name:         "obj4",
		Version:      0,
		FUUID:        "fuuid-4",
		StripeIndex:  0,
		Policy:       policy,
		ContainerIDs: []int{0, 1, 2, 3, 4, 5},
		Indicator:    []bool{true, true, false, true, true, false},
	})
	if err != nil {
		t.Fatalf("expected repair to tolerate the transport failure via an untried survivor, got %v", err)
	}
	if len(result.RepairedPositions) != 2 {
		t.Fatalf("expected 2 repaired positions, got %v", result.RepairedPositions)
	}
}

func TestWriteUnderReplicatedRollsBack(t *testing.T) {
	fleet := newFakeAgentFleet()
	place := &fakePlacement{pool: []int{0, 1, 2, 3}}
	mgr := New(Config{NumBackgroundWorkers: 2}, newTestCache(), fleet, place, &fakeJournal{})
	defer mgr.Close()

	policy := testPolicy()
	data := make([]byte, 64)

	fleet.setDown(1, true)
	fleet.setDown(2, true)
	fleet.setDown(3, true)

	_, err := mgr.WriteStripe(StripeWriteInput{
		NamespaceID:  1,
		Name:         "obj3",
		Version:      0,
		FUUID:        "fuuid-3",
		StripeIndex:  0,
		Policy:       policy,
		Data:         data,
		ContainerIDs: []int{0, 1, 2, 3},
	})
	if err != ErrStripeUnderReplicated {
		t.Fatalf("expected ErrStripeUnderReplicated, got %v", err)
	}

	fleet.mu.Lock()
	defer fleet.mu.Unlock()
	if len(fleet.store) != 0 {
		t.Fatalf("expected the committed chunk to be rolled back, %d chunks remain", len(fleet.store))
	}
}
