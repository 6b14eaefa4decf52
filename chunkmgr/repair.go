package chunkmgr

import (
	"sync"

	"github.com/uplo-tech/errors"

	"github.com/nexoedge-go/proxy/chunkio"
	"github.com/nexoedge-go/proxy/coding"
	"github.com/nexoedge-go/proxy/metadata"
	"github.com/nexoedge-go/proxy/placement"
)

// StripeRepairInput describes one stripe to repair (spec §4.4.3).
type StripeRepairInput struct {
	NamespaceID byte
	Name        string
	Version     int32
	FUUID       string
	StripeIndex int
	Policy      metadata.StoragePolicy

	ContainerIDs []int  // current assignment, one per chunk position
	Indicator    []bool // true = alive, per position

	PlacementPolicy placement.Policy
}

// StripeRepairResult reports the positions repaired and their new
// container assignment.
type StripeRepairResult struct {
	RepairedPositions []int
	NewContainerIDs   []int // parallel to RepairedPositions
}

// RepairStripe runs the repair pipeline of spec §4.4.3: build the failed
// set, get a repair plan (with repair matrix), pick spare containers,
// then repair either proxy-side (gather, decode, redistribute) or
// agent-side (one RPR_CHUNK request carrying the repair context).
func (m *Manager) RepairStripe(in StripeRepairInput) (*StripeRepairResult, error) {
	coder, err := m.coders.Get(coding.Options{
		Scheme:         coding.Scheme(in.Policy.CodingScheme),
		N:              in.Policy.N,
		K:              in.Policy.K,
		RepairUsingCAR: m.cfg.RepairUsingCAR,
	})
	if err != nil {
		return nil, errors.AddContext(err, "chunkmgr: resolve coder")
	}
	n, k, f := coder.N(), coder.K(), in.Policy.F

	failed := failedIDs(in.Indicator, n)
	if len(failed) == 0 {
		// Repair idempotence: nothing to do (spec §8 "Repair applied to
		// an object with no missing chunks is a no-op and returns
		// success").
		return &StripeRepairResult{}, nil
	}

	plan, err := coder.PreDecode(failed, true)
	if err != nil {
		return nil, errors.Compose(ErrUnrecoverable, err)
	}

	spares, err := m.place.FindSpareContainers(in.ContainerIDs, in.Indicator, len(failed), in.Policy.MaxChunkSize, n, k, f, in.PlacementPolicy)
	if err != nil {
		return nil, errors.Compose(ErrInsufficientCapacity, err)
	}

	useProxy := m.cfg.RepairAtProxy || len(failed) > 1
	var repaired [][]byte
	if useProxy {
		repaired, err = m.repairAtProxy(in, coder, plan)
	} else {
		// Agent-side repair writes the repaired chunk directly to the
		// spare container; there is nothing left for the proxy to PUT.
		err = m.repairAtAgent(in, plan, spares[0])
	}
	if err != nil {
		return nil, err
	}

	if repaired != nil {
		var wg sync.WaitGroup
		errs := make([]error, len(failed))
		for i, pos := range plan.RepairTargets {
			wg.Add(1)
			go func(i, pos int) {
				defer wg.Done()
				chunkID := in.StripeIndex*n + pos
				_, err := m.sender.Send(&chunkio.Request{
					Opcode:      chunkio.PutChunkReq,
					ContainerID: spares[i],
					Chunk:       chunkio.ChunkKey{NamespaceID: in.NamespaceID, FUUID: in.FUUID, ChunkID: chunkID},
					ChunkData:   repaired[i],
					ChunkMD5:    md5Sum(repaired[i]),
					VerifyMD5:   m.cfg.VerifyChecksum,
				})
				errs[i] = err
			}(i, pos)
		}
		wg.Wait()
		for _, e := range errs {
			if e != nil {
				return nil, errors.AddContext(e, "chunkmgr: repair redistribution failed")
			}
		}
	}

	return &StripeRepairResult{
		RepairedPositions: plan.RepairTargets,
		NewContainerIDs:   spares,
	}, nil
}

// repairAtProxy gathers surviving chunks (using the CAR optimization for
// a single failed node when enabled) and decodes the repair targets on
// the proxy (spec §4.4.3 "Proxy-side").
func (m *Manager) repairAtProxy(in StripeRepairInput, coder coding.Engine, plan coding.DecodingPlan) ([][]byte, error) {
	n := coder.N()

	if m.cfg.RepairUsingCAR && len(plan.RepairTargets) == 1 {
		return m.repairCAR(in, coder, plan)
	}

	// plan.InputChunkIDs names only the k survivors coder.Decode needs; a
	// per-chunk fetch failure here is retried against an untried survivor
	// rather than failing the whole repair (spec §4.4.3 step 4).
	untried := diffSorted(aliveIDs(in.Indicator, n), plan.InputChunkIDs)
	var mu sync.Mutex
	inputs := make([][]byte, len(plan.InputChunkIDs))
	var wg sync.WaitGroup
	errs := make([]error, len(plan.InputChunkIDs))
	for i, id := range plan.InputChunkIDs {
		wg.Add(1)
		go func(i, id int) {
			defer wg.Done()
			data, err := m.getChunk(in.NamespaceID, in.Name, in.FUUID, in.StripeIndex*n+id, in.ContainerIDs[id], uint32(in.Version), [16]byte{})
			if err == nil {
				inputs[i] = data
				return
			}
			for {
				mu.Lock()
				if len(untried) == 0 {
					mu.Unlock()
					break
				}
				replacement := untried[0]
				untried = untried[1:]
				mu.Unlock()
				data, err = m.getChunk(in.NamespaceID, in.Name, in.FUUID, in.StripeIndex*n+replacement, in.ContainerIDs[replacement], uint32(in.Version), [16]byte{})
				if err == nil {
					inputs[i] = data
					return
				}
			}
			errs[i] = err
		}(i, id)
	}
	wg.Wait()
	for _, e := range errs {
		if e != nil {
			return nil, errors.Compose(ErrUnrecoverable, e)
		}
	}

	return coder.Decode(inputs, plan, true)
}

// repairCAR asks each agent group holding surviving chunks to locally
// combine ("partially encode") its contribution toward the single
// failed position, then XORs those partial results on the proxy -
// spec §4.1's CAR special case, §4.4.3's ENC_CHUNK optimization.
func (m *Manager) repairCAR(in StripeRepairInput, coder coding.Engine, plan coding.DecodingPlan) ([][]byte, error) {
	n := coder.N()
	groups := m.place.FindChunkGroups(in.ContainerIDs, in.Indicator)

	target := plan.RepairTargets[0]
	partials := make([][]byte, 0, len(groups))
	var mu sync.Mutex
	var wg sync.WaitGroup
	var firstErr error
	for agentIP, positions := range groups {
		wg.Add(1)
		go func(agentIP string, positions []int) {
			defer wg.Done()
			chunkIDs := make([]int, len(positions))
			for i, p := range positions {
				chunkIDs[i] = in.StripeIndex*n + p
			}
			// Ask whichever container this agent owns among positions
			// for its ENC_CHUNK partial encoding; the first position's
			// container stands in for the agent connection since every
			// position in this group is served by the same agent (spec
			// §4.3 find_chunk_groups).
			reply, err := m.sender.Send(&chunkio.Request{
				Opcode:      chunkio.EncChunkReq,
				ContainerID: in.ContainerIDs[positions[0]],
				ChunkIDs:    chunkIDs,
				CodingMeta:  encodeRepairTarget(target),
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			partials = append(partials, reply.ChunkData)
		}(agentIP, positions)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, errors.Compose(ErrUnrecoverable, firstErr)
	}

	decoded, err := coder.Decode(partials, coding.DecodingPlan{MinNumInputChunks: 1, RepairTargets: plan.RepairTargets}, true)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

// repairAtAgent sends one RPR_CHUNK request to the spare container's
// agent, carrying the repair matrix row, chunk-group map, and agent
// addresses the agent uses to fetch surviving chunks from peers and
// write the repaired chunk locally (spec §4.4.3 "Agent-side"). The
// request carries no container map: the surviving container ids are
// not sent to the agent.
func (m *Manager) repairAtAgent(in StripeRepairInput, plan coding.DecodingPlan, spareContainer int) error {
	groups := m.place.FindChunkGroups(in.ContainerIDs, in.Indicator)
	addrs := make([]string, 0, len(groups))
	for ip := range groups {
		addrs = append(addrs, ip)
	}

	chunkID := in.StripeIndex*len(in.ContainerIDs) + plan.RepairTargets[0]
	_, err := m.sender.Send(&chunkio.Request{
		Opcode:         chunkio.RprChunkReq,
		ContainerID:    spareContainer,
		Chunk:          chunkio.ChunkKey{NamespaceID: in.NamespaceID, FUUID: in.FUUID, ChunkID: chunkID},
		RepairMatrix:   encodeRepairMatrixRow(plan, 0),
		ChunkGroupMap:  groups,
		AgentAddresses: addrs,
	})
	return err
}

// encodeRepairTarget/encodeRepairMatrixRow marshal coding metadata for
// RPR_CHUNK/ENC_CHUNK as opaque blobs; chunkio treats these as plain
// byte frames (spec §4.2).
func encodeRepairTarget(target int) []byte {
	return []byte{byte(target), byte(target >> 8)}
}

func encodeRepairMatrixRow(plan coding.DecodingPlan, i int) []byte {
	return append([]byte(nil), plan.RepairMatrixRow(i)...)
}
