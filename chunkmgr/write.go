package chunkmgr

import (
	"sync"

	"github.com/uplo-tech/errors"

	"github.com/nexoedge-go/proxy/chunkio"
	"github.com/nexoedge-go/proxy/coding"
	"github.com/nexoedge-go/proxy/metadata"
)

// StripeWriteInput is everything WriteStripe needs to encode and
// distribute one stripe (spec §4.4.1).
type StripeWriteInput struct {
	NamespaceID byte
	Name        string
	Version     int32
	FUUID       string
	StripeIndex int
	Policy      metadata.StoragePolicy

	// Data is the stripe's logical payload, at most the stripe size
	// (n.b. the final stripe of an object may be shorter); Encode zero
	// pads it to ChunkSize.
	Data []byte

	// ContainerIDs names the destination container for each of the n
	// chunk positions, already chosen by the caller (fresh spares for a
	// new/append stripe, the existing assignment for an in-place
	// overwrite).
	ContainerIDs []int

	// IsOverwrite selects the failure-recovery strategy: revert (true)
	// vs delete (false) already-dispatched chunks of this stripe (spec
	// §4.4.1 step 6).
	IsOverwrite bool
	// PriorFileVersion is the file_version RVT_CHUNK asks the agent to
	// restore to, meaningful only when IsOverwrite is true.
	PriorFileVersion uint32
}

// StripeWriteResult reports per-position outcomes plus an optional
// background commit handle the caller must eventually wait on via
// AwaitBackgroundCommit (spec §4.4.1 step 7).
type StripeWriteResult struct {
	ChunkSizes []int64
	ChunkMD5s  [][16]byte
	Committed  []bool

	// BgPending holds the positions whose PUT was queued to run in the
	// background rather than awaited synchronously (ack_in_bg).
	BgPending []int
	bgJob     *backgroundCommit
}

// HasBackgroundWork reports whether this stripe has a pending background
// commit the caller must wait on before declaring the object fully
// durable (spec §4.4.1 step 7; §4.5 "Deferred-commit checker").
func (r *StripeWriteResult) HasBackgroundWork() bool { return r.bgJob != nil }

// WriteStripe runs the write-stripe pipeline of spec §4.4.1: encode,
// pre-journal, dispatch, collect foreground results, decide, and queue
// the remainder for background commit.
func (m *Manager) WriteStripe(in StripeWriteInput) (*StripeWriteResult, error) {
	coder, err := m.coders.Get(coding.Options{
		Scheme:         coding.Scheme(in.Policy.CodingScheme),
		N:              in.Policy.N,
		K:              in.Policy.K,
		RepairUsingCAR: m.cfg.RepairUsingCAR,
	})
	if err != nil {
		return nil, errors.AddContext(err, "chunkmgr: resolve coder")
	}
	n, k := coder.N(), coder.K()
	if len(in.ContainerIDs) != n {
		return nil, errors.AddContext(ErrInvalidArguments, "chunkmgr: container list length must equal n")
	}

	// Step 1: encode.
	stripe, err := coder.Encode(in.Data)
	if err != nil {
		return nil, errors.AddContext(err, "chunkmgr: encode stripe")
	}

	// Step 2: schedule. chunksPerNode is 1 for RS (spec §4.1).
	numFg := n
	if m.cfg.AckInBackground {
		numFg = k
	}

	dispatches := make([]stripeDispatch, n)
	for i := 0; i < n; i++ {
		sum := md5Sum(stripe[i])
		dispatches[i] = stripeDispatch{pos: i, containerID: in.ContainerIDs[i], data: stripe[i], md5: sum}
	}

	// Step 3: pre-journal every chunk that will be dispatched.
	for i := 0; i < n; i++ {
		if err := m.preJournal(in.NamespaceID, in.Name, in.Version, in.FUUID, in.StripeIndex*n+i, in.ContainerIDs[i], true); err != nil {
			return nil, errors.AddContext(err, "chunkmgr: pre-journal write")
		}
	}

	send := func(d stripeDispatch) error {
		req := &chunkio.Request{
			Opcode:      chunkio.PutChunkReq,
			ContainerID: d.containerID,
			Chunk:       chunkio.ChunkKey{NamespaceID: in.NamespaceID, FUUID: in.FUUID, ChunkID: in.StripeIndex*n + d.pos},
			ChunkData:   d.data,
			ChunkMD5:    d.md5,
			VerifyMD5:   m.cfg.VerifyChecksum,
		}
		if _, err := m.sender.Send(req); err != nil {
			return err
		}
		if err := m.commitJournal(in.NamespaceID, in.Name, in.Version, in.FUUID, in.StripeIndex*n+d.pos, d.containerID, true); err != nil {
			return err
		}
		return nil
	}

	result := &StripeWriteResult{
		ChunkSizes: make([]int64, n),
		ChunkMD5s:  make([][16]byte, n),
		Committed:  make([]bool, n),
	}
	for i := 0; i < n; i++ {
		result.ChunkSizes[i] = int64(len(stripe[i]))
		result.ChunkMD5s[i] = dispatches[i].md5
	}

	// Step 4+5: dispatch and collect the foreground requests.
	var wg sync.WaitGroup
	errs := make([]error, numFg)
	for i := 0; i < numFg; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = send(dispatches[i])
		}(i)
	}
	wg.Wait()

	numSuccess := 0
	for i := 0; i < numFg; i++ {
		if errs[i] == nil {
			result.Committed[i] = true
			numSuccess++
		}
	}

	// Step 6: decide.
	if numSuccess < k {
		m.rollbackStripe(in, dispatches[:numFg], result.Committed[:numFg])
		return nil, ErrStripeUnderReplicated
	}

	// Step 7: hand off the remainder to the background queue.
	if numFg < n {
		bgDispatches := append([]stripeDispatch(nil), dispatches[numFg:]...)
		for _, pos := range bgDispatches {
			result.BgPending = append(result.BgPending, pos.pos)
		}
		job := backgroundCommit{
			namespaceID: in.NamespaceID,
			name:        in.Name,
			version:     in.Version,
			uuid:        in.FUUID,
			stripeIdx:   in.StripeIndex,
			n:           n,
			pending:     bgDispatches,
			send:        send,
		}
		result.bgJob = &job
		m.bg.enqueue(job)
	}

	return result, nil
}

// AwaitBackgroundCommit blocks on the background dispatches of a stripe
// write and reports which positions ultimately committed, for a caller
// (the deferred-commit checker, spec §4.5) that needs a synchronous
// answer rather than fire-and-forget.
func (m *Manager) AwaitBackgroundCommit(result *StripeWriteResult) (committed, failed []int) {
	if result == nil || result.bgJob == nil {
		return nil, nil
	}
	done := make(chan struct{})
	var c, f []int
	result.bgJob.onDone = func(committedPos, failedPos []int) {
		c, f = committedPos, failedPos
		close(done)
	}
	<-done
	return c, f
}

// rollbackStripe reverts (overwrite) or deletes (write/append) every
// chunk of a stripe that a failed write already dispatched, per spec
// §4.4.1 step 6 / §4.4.4 (RVT_CHUNK / DEL_CHUNK) and §4.8.
func (m *Manager) rollbackStripe(in StripeWriteInput, dispatches []stripeDispatch, committed []bool) {
	n := len(in.ContainerIDs)
	var wg sync.WaitGroup
	for i, d := range dispatches {
		if !committed[i] {
			continue
		}
		wg.Add(1)
		go func(d stripeDispatch) {
			defer wg.Done()
			chunkID := in.StripeIndex*n + d.pos
			if in.IsOverwrite {
				m.sender.Send(&chunkio.Request{
					Opcode:      chunkio.RvtChunkReq,
					ContainerID: d.containerID,
					Chunk:       chunkio.ChunkKey{NamespaceID: in.NamespaceID, FUUID: in.FUUID, ChunkID: chunkID},
					FileVersion: in.PriorFileVersion,
				})
			} else {
				m.sender.Send(&chunkio.Request{
					Opcode:      chunkio.DelChunkReq,
					ContainerID: d.containerID,
					Chunk:       chunkio.ChunkKey{NamespaceID: in.NamespaceID, FUUID: in.FUUID, ChunkID: chunkID},
				})
			}
			m.commitJournal(in.NamespaceID, in.Name, in.Version, in.FUUID, chunkID, d.containerID, true)
		}(d)
	}
	wg.Wait()
}
