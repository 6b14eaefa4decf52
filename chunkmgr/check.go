package chunkmgr

import (
	"sync"

	"github.com/nexoedge-go/proxy/chunkio"
)

// CheckFile dispatches CHK_CHUNK per chunk and returns the number of
// positions reporting absence (spec §4.4.5 "check_file").
func (m *Manager) CheckFile(namespaceID byte, fuuid string, containerIDs []int) (numMissing int) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	for pos, cid := range containerIDs {
		wg.Add(1)
		go func(pos, cid int) {
			defer wg.Done()
			reply, err := m.sender.Send(&chunkio.Request{
				Opcode:      chunkio.ChkChunkReq,
				ContainerID: cid,
				ChunkIDs:    []int{pos},
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil || len(reply.Corrupted) > 0 {
				numMissing++
			}
		}(pos, cid)
	}
	wg.Wait()
	return numMissing
}

// CheckFilePositions is CheckFile's positional counterpart: it reports
// which indices into containerIDs the agent couldn't confirm, so the
// deferred-commit checker (spec §4.5) knows exactly which stripe
// positions to invalidate instead of only how many.
func (m *Manager) CheckFilePositions(namespaceID byte, fuuid string, containerIDs []int) []int {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var missing []int
	for pos, cid := range containerIDs {
		wg.Add(1)
		go func(pos, cid int) {
			defer wg.Done()
			reply, err := m.sender.Send(&chunkio.Request{
				Opcode:      chunkio.ChkChunkReq,
				ContainerID: cid,
				ChunkIDs:    []int{pos},
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil || len(reply.Corrupted) > 0 {
				missing = append(missing, pos)
			}
		}(pos, cid)
	}
	wg.Wait()
	return missing
}

// VerifyFileChecksums dispatches a single batched VRF_CHUNK request per
// container and returns the count of positions the agent flagged as
// corrupted. When the request itself fails, corruption is reported as
// none for that container - the caller separately updates liveness
// (spec §4.4.5 "verify_file_checksums").
func (m *Manager) VerifyFileChecksums(namespaceID byte, containerIDs []int) (numCorrupted int) {
	byContainer := make(map[int][]int) // containerID -> chunk positions
	for pos, cid := range containerIDs {
		byContainer[cid] = append(byContainer[cid], pos)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for cid, positions := range byContainer {
		wg.Add(1)
		go func(cid int, positions []int) {
			defer wg.Done()
			reply, err := m.sender.Send(&chunkio.Request{
				Opcode:       chunkio.VrfChunkReq,
				ContainerID:  cid,
				ChunkIDs:     positions,
				ContainerIDs: repeatInt(cid, len(positions)),
			})
			if err != nil {
				return
			}
			mu.Lock()
			numCorrupted += len(reply.Corrupted)
			mu.Unlock()
		}(cid, positions)
	}
	wg.Wait()
	return numCorrupted
}

// VerifyChunks issues a single VRF_CHUNK request against one container
// for the given chunk ids and returns the indices into chunkIDs the
// agent reports as absent or checksum-mismatched (spec §4.5 "batched
// chunk-checksum scan"). Used by the checksum scanner, which already
// knows which container each sampled chunk lives on.
func (m *Manager) VerifyChunks(containerID int, chunkIDs []int) ([]int, error) {
	reply, err := m.sender.Send(&chunkio.Request{
		Opcode:       chunkio.VrfChunkReq,
		ContainerID:  containerID,
		ChunkIDs:     chunkIDs,
		ContainerIDs: repeatInt(containerID, len(chunkIDs)),
	})
	if err != nil {
		return nil, err
	}
	return reply.Corrupted, nil
}

// VerifyChunkAt reports whether one chunk is present and checksum-clean
// on its assigned container (spec §4.5 "Journal reconciler" resolution:
// "chunk exists and verifies on the agent").
func (m *Manager) VerifyChunkAt(namespaceID byte, fuuid string, chunkID, containerID int) (bool, error) {
	reply, err := m.sender.Send(&chunkio.Request{
		Opcode:      chunkio.ChkChunkReq,
		ContainerID: containerID,
		ChunkIDs:    []int{chunkID},
	})
	if err != nil {
		return false, err
	}
	return len(reply.Corrupted) == 0, nil
}

// DeleteChunkAt re-issues DEL_CHUNK for one chunk, used by the journal
// reconciler to resolve a dangling delete-journal entry (spec §4.5).
func (m *Manager) DeleteChunkAt(namespaceID byte, fuuid string, chunkID, containerID int) error {
	_, err := m.sender.Send(&chunkio.Request{
		Opcode:      chunkio.DelChunkReq,
		ContainerID: containerID,
		Chunk:       chunkio.ChunkKey{NamespaceID: namespaceID, FUUID: fuuid, ChunkID: chunkID},
	})
	return err
}

func repeatInt(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}
