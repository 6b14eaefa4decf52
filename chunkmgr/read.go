package chunkmgr

import (
	"github.com/uplo-tech/errors"

	"github.com/nexoedge-go/proxy/chunkio"
	"github.com/nexoedge-go/proxy/coding"
	"github.com/nexoedge-go/proxy/metadata"
)

// StripeReadInput describes one stripe to reconstruct (spec §4.4.2).
type StripeReadInput struct {
	NamespaceID byte
	Name        string
	Version     int32
	FUUID       string
	StripeIndex int
	Policy      metadata.StoragePolicy

	// ContainerIDs names the container currently holding each of the n
	// chunk positions; Indicator marks which positions are already known
	// lost (spec §3 Invariant 1: container_id[i]==INVALID iff lost).
	ContainerIDs []int
	Indicator    []bool // true = alive, per position

	// ChunkMD5s holds the digest recorded in metadata for each of the n
	// chunk positions, used to verify GET_CHUNK replies when
	// data_integrity.verify_chunk_checksum is enabled (spec §4.4.1 step 5).
	ChunkMD5s [][16]byte

	// Offset/Length, when Length > 0, limit the returned bytes to a
	// sub-range of the stripe's logical content (spec §4.4.2 step 4).
	Offset, Length int
}

// ReadStripe runs the degraded-read pipeline of spec §4.4.2: build the
// failed set, get a decoding plan, fetch survivors (purging and retrying
// on a per-chunk failure), decode, and slice to the requested range.
func (m *Manager) ReadStripe(in StripeReadInput) ([]byte, error) {
	coder, err := m.coders.Get(coding.Options{
		Scheme: coding.Scheme(in.Policy.CodingScheme),
		N:      in.Policy.N,
		K:      in.Policy.K,
	})
	if err != nil {
		return nil, errors.AddContext(err, "chunkmgr: resolve coder")
	}
	n, k := coder.N(), coder.K()

	// Step 1: build the failed set and a decoding plan.
	failed := failedIDs(in.Indicator, n)
	plan, err := coder.PreDecode(failed, false)
	if err != nil {
		return nil, errors.Compose(ErrUnrecoverable, err)
	}

	// Step 2: dispatch GET_CHUNK for the plan's selected ids, purging and
	// retrying on a per-chunk failure until fewer than k survivors
	// remain untried.
	untried := diffSorted(aliveIDs(in.Indicator, n), plan.InputChunkIDs)
	inputs := make(map[int][]byte, k)
	for _, id := range plan.InputChunkIDs {
		if len(inputs) >= k {
			break
		}
		data, err := m.getChunk(in.NamespaceID, in.Name, in.FUUID, in.StripeIndex*n+id, in.ContainerIDs[id], uint32(in.Version), chunkMD5At(in.ChunkMD5s, id))
		if err == nil {
			inputs[id] = data
			continue
		}
		// Purge this node's contribution and pull a replacement from the
		// untried survivors, if any remain.
		for len(untried) > 0 {
			replacement := untried[0]
			untried = untried[1:]
			data, err := m.getChunk(in.NamespaceID, in.Name, in.FUUID, in.StripeIndex*n+replacement, in.ContainerIDs[replacement], uint32(in.Version), chunkMD5At(in.ChunkMD5s, replacement))
			if err == nil {
				inputs[replacement] = data
				break
			}
		}
	}
	if len(inputs) < k {
		return nil, ErrUnrecoverable
	}

	ordered := make([][]byte, 0, k)
	usedIDs := make([]int, 0, k)
	for id, data := range inputs {
		if len(ordered) >= k {
			break
		}
		ordered = append(ordered, data)
		usedIDs = append(usedIDs, id)
	}
	plan.InputChunkIDs = usedIDs

	// Step 3: reassemble and decode.
	dataChunks, err := coder.Decode(ordered, plan, false)
	if err != nil {
		return nil, errors.AddContext(err, "chunkmgr: decode stripe")
	}

	out := make([]byte, 0, k*len(dataChunks[0]))
	for _, c := range dataChunks {
		out = append(out, c...)
	}

	// Step 4: limit to the requested sub-range within the stripe.
	if in.Length > 0 {
		end := in.Offset + in.Length
		if in.Offset < 0 || end > len(out) {
			return nil, ErrInvalidArguments
		}
		out = out[in.Offset:end]
	}
	return out, nil
}

func (m *Manager) getChunk(namespaceID byte, name, fuuid string, chunkID, containerID int, fileVersion uint32, expectMD5 [16]byte) ([]byte, error) {
	reply, err := m.sender.Send(&chunkio.Request{
		Opcode:      chunkio.GetChunkReq,
		ContainerID: containerID,
		Chunk:       chunkio.ChunkKey{NamespaceID: namespaceID, FUUID: fuuid, ChunkID: chunkID},
		FileVersion: fileVersion,
		ChunkMD5:    expectMD5,
		VerifyMD5:   m.cfg.VerifyChecksum,
	})
	if err != nil {
		return nil, err
	}
	return reply.ChunkData, nil
}

// chunkMD5At returns the recorded digest for chunk position id, or the
// zero digest if md5s doesn't cover that position.
func chunkMD5At(md5s [][16]byte, id int) [16]byte {
	if id < 0 || id >= len(md5s) {
		return [16]byte{}
	}
	return md5s[id]
}

// failedIDs returns the chunk positions indicator marks dead, out of n
// total positions.
func failedIDs(indicator []bool, n int) []int {
	var out []int
	for i := 0; i < n; i++ {
		if i >= len(indicator) || !indicator[i] {
			out = append(out, i)
		}
	}
	return out
}

// aliveIDs returns the chunk positions indicator marks alive.
func aliveIDs(indicator []bool, n int) []int {
	var out []int
	for i := 0; i < n; i++ {
		if i < len(indicator) && indicator[i] {
			out = append(out, i)
		}
	}
	return out
}

// diffSorted returns the elements of all not present in used, preserving
// all's order.
func diffSorted(all, used []int) []int {
	usedSet := make(map[int]bool, len(used))
	for _, u := range used {
		usedSet[u] = true
	}
	var out []int
	for _, id := range all {
		if !usedSet[id] {
			out = append(out, id)
		}
	}
	return out
}
