package chunkmgr

import (
	"sync"

	"github.com/uplo-tech/errors"

	"github.com/nexoedge-go/proxy/chunkio"
	"github.com/nexoedge-go/proxy/metadata"
)

// StripeSpan names one object's chunk positions spanning the given
// stripe range (spec §4.4.4: "start = offset/stripe_size, end =
// ceil((offset+length)/stripe_size)").
type StripeSpan struct {
	NamespaceID byte // source namespace
	SrcName     string
	SrcFUUID    string
	SrcVersion  int32

	// DstNamespaceID is the resolved destination namespace; the proxy
	// facade sets it even for a same-namespace copy (DESIGN.md Open
	// Question decision 3 resolves the wire sentinel before this point).
	DstNamespaceID byte
	DstName        string
	DstFUUID       string
	DstVersion     int32

	N             int
	StartStripe   int
	EndStripe     int
	ContainerIDs  []int // src container per chunk position, length N*(EndStripe-StartStripe)
	DstContainers []int // dst container per chunk position, same length
}

// CopyRange issues CPY_CHUNK in parallel per node for every stripe in
// [StartStripe, EndStripe); a stripe succeeds once >= k positions
// succeed, otherwise the partially-written destination is rolled back
// via delete (spec §4.4.4).
func (m *Manager) CopyRange(span StripeSpan, k int) error {
	return m.copyOrMove(span, k, chunkio.CpyChunkReq)
}

// MoveRange is CopyRange's MOV_CHUNK counterpart.
func (m *Manager) MoveRange(span StripeSpan, k int) error {
	return m.copyOrMove(span, k, chunkio.MovChunkReq)
}

func (m *Manager) copyOrMove(span StripeSpan, k int, op chunkio.Opcode) error {
	numStripes := span.EndStripe - span.StartStripe
	for s := 0; s < numStripes; s++ {
		if err := m.copyOrMoveStripe(span, s, k, op); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) copyOrMoveStripe(span StripeSpan, stripeOffset, k int, op chunkio.Opcode) error {
	n := span.N
	base := stripeOffset * n
	dstNamespaceID := span.DstNamespaceID

	var wg sync.WaitGroup
	succeeded := make([]bool, n)
	for pos := 0; pos < n; pos++ {
		wg.Add(1)
		go func(pos int) {
			defer wg.Done()
			chunkID := (span.StartStripe+stripeOffset)*n + pos
			req := &chunkio.Request{
				Opcode:            op,
				SourceContainerID: span.ContainerIDs[base+pos],
				SrcChunk:          chunkio.ChunkKey{NamespaceID: span.NamespaceID, FUUID: span.SrcFUUID, ChunkID: chunkID},
				ContainerID:       span.DstContainers[base+pos],
				Chunk:             chunkio.ChunkKey{NamespaceID: dstNamespaceID, FUUID: span.DstFUUID, ChunkID: chunkID},
			}
			_, err := m.sender.Send(req)
			succeeded[pos] = err == nil
		}(pos)
	}
	wg.Wait()

	numSuccess := 0
	for _, ok := range succeeded {
		if ok {
			numSuccess++
		}
	}
	if numSuccess >= k {
		return nil
	}

	// Roll back the partially-written destination (spec §4.4.4).
	m.deleteStripePositions(dstNamespaceID, span.DstFUUID, (span.StartStripe+stripeOffset)*n, span.DstContainers[base:base+n], succeeded)
	return errors.AddContext(ErrStripeUnderReplicated, "chunkmgr: copy/move stripe under-replicated")
}

// DeleteFile dispatches DEL_CHUNK on every alive chunk of an object,
// never on metadata.UnusedContainerID (spec §4.4.4 "Delete"). Per-chunk
// failures are ignored and do not stop the sweep, so DeleteFile always
// returns nil: lost containers' chunks are left as orphans the journal
// reconciler may skip (spec §3 Lifecycle).
func (m *Manager) DeleteFile(namespaceID byte, fuuid string, containerIDs []int, alive []bool) error {
	m.deleteStripePositions(namespaceID, fuuid, 0, containerIDs, alive)
	return nil
}

func (m *Manager) deleteStripePositions(namespaceID byte, fuuid string, baseChunkID int, containerIDs []int, alive []bool) {
	var wg sync.WaitGroup
	for pos, cid := range containerIDs {
		if pos < len(alive) && !alive[pos] {
			continue
		}
		if cid == metadata.UnusedContainerID {
			continue
		}
		wg.Add(1)
		go func(pos, cid int) {
			defer wg.Done()
			m.sender.Send(&chunkio.Request{
				Opcode:      chunkio.DelChunkReq,
				ContainerID: cid,
				Chunk:       chunkio.ChunkKey{NamespaceID: namespaceID, FUUID: fuuid, ChunkID: baseChunkID + pos},
			})
		}(pos, cid)
	}
	wg.Wait()
}

// RevertStripe sends RVT_CHUNK to every destination of a touched stripe
// so the agent restores the previous file_version of each chunk (spec
// §4.8: used when an overwrite fails mid-stripe).
func (m *Manager) RevertStripe(namespaceID byte, fuuid string, stripeIdx, n int, containerIDs []int, priorVersion uint32) {
	var wg sync.WaitGroup
	for pos, cid := range containerIDs {
		wg.Add(1)
		go func(pos, cid int) {
			defer wg.Done()
			m.sender.Send(&chunkio.Request{
				Opcode:      chunkio.RvtChunkReq,
				ContainerID: cid,
				Chunk:       chunkio.ChunkKey{NamespaceID: namespaceID, FUUID: fuuid, ChunkID: stripeIdx*n + pos},
				FileVersion: priorVersion,
			})
		}(pos, cid)
	}
	wg.Wait()
}
