package proxy

import (
	"crypto/md5"
	"time"

	"github.com/uplo-tech/errors"

	"github.com/nexoedge-go/proxy/chunkmgr"
	"github.com/nexoedge-go/proxy/metadata"
)

// Write runs the fresh-write operation (spec §4.6 step 1-5, no prior
// object assumed). storageClass names the `{coding, n, k, f,
// max_chunk_size}` declaration to write under; "" selects the
// configured default.
func (p *Proxy) Write(namespaceID byte, name string, data []byte, storageClass string) (*metadata.Object, error) {
	sc, err := p.cfg.storageClass(storageClass)
	if err != nil {
		return nil, err
	}
	policy := sc.policy()

	if dup, ref := p.dedup.Process(namespaceID, name, data); dup {
		p.log.Printf("write: namespace %d name %q deduplicated against %s", namespaceID, name, ref)
	}

	unlock, err := p.lock(namespaceID, name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	prior, err := p.store.Get(namespaceID, name, -1)
	var version int32
	if err == nil {
		version = prior.Version + 1
	} else if !errors.Contains(err, metadata.ErrNotFound) {
		return nil, err
	}

	obj, err := p.writeStripesFresh(namespaceID, name, version, data, sc, policy)
	if err != nil {
		return nil, err
	}
	if err := p.store.Put(obj); err != nil {
		return nil, err
	}
	if p.stats != nil {
		p.stats.AddBytesWritten(int64(len(data)))
	}
	p.nextEventID()
	return obj, nil
}

// writeStripesFresh splits data into stripes, selects fresh spare
// containers for each, dispatches through D, and assembles the metadata
// record (spec §4.4.1, §4.6 step 3-4).
func (p *Proxy) writeStripesFresh(namespaceID byte, name string, version int32, data []byte, sc StorageClass, policy metadata.StoragePolicy) (*metadata.Object, error) {
	fuuid := newUUID()
	stripeSize := stripeLogicalSize(policy)
	numStripes := numStripesFor(int64(len(data)), policy)
	perStripe := policy.N * policy.ChunksPerNode

	obj := &metadata.Object{
		NamespaceID:  namespaceID,
		Name:         name,
		Version:      version,
		UUID:         fuuid,
		Size:         int64(len(data)),
		StorageClass: sc.Name,
		Policy:       policy,
		CreateTime:   time.Now(),
		ModifyTime:   time.Now(),
		AccessTime:   time.Now(),
		MD5:          md5.Sum(data),
		Chunks:       make([]metadata.Chunk, 0, numStripes*perStripe),
		ContainerIDs: make([]int, 0, numStripes*perStripe),
		Corrupted:    make([]bool, 0, numStripes*perStripe),
	}

	hasBg := false
	for s := 0; s < numStripes; s++ {
		lo := int64(s) * stripeSize
		hi := lo + stripeSize
		if hi > int64(len(data)) {
			hi = int64(len(data))
		}
		stripeData := data[lo:hi]

		containers, err := p.place.FindSpareContainers(nil, nil, policy.N, sc.MaxChunkSize, policy.N, policy.K, policy.F, p.cfg.PlacementPolicy)
		if err != nil {
			p.rollbackStripes(namespaceID, fuuid, obj.ContainerIDs, obj.Corrupted)
			return nil, errors.AddContext(err, "proxy: write: select spare containers")
		}

		result, err := p.chunks.WriteStripe(chunkmgr.StripeWriteInput{
			NamespaceID:  namespaceID,
			Name:         name,
			Version:      version,
			FUUID:        fuuid,
			StripeIndex:  s,
			Policy:       policy,
			Data:         stripeData,
			ContainerIDs: containers,
			IsOverwrite:  false,
		})
		if err != nil {
			p.rollbackStripes(namespaceID, fuuid, obj.ContainerIDs, obj.Corrupted)
			return nil, errors.AddContext(err, "proxy: write: stripe")
		}

		for i := 0; i < len(containers); i++ {
			obj.Chunks = append(obj.Chunks, metadata.Chunk{
				ChunkID:     s*len(containers) + i,
				FileVersion: version,
				Size:        result.ChunkSizes[i],
				MD5:         result.ChunkMD5s[i],
			})
			obj.ContainerIDs = append(obj.ContainerIDs, containers[i])
			obj.Corrupted = append(obj.Corrupted, false)
		}
		if result.HasBackgroundWork() {
			hasBg = true
		}
	}

	if hasBg {
		obj.BgTask = metadata.BgTaskPending
	} else {
		obj.BgTask = metadata.AllBgTasksCompleted
	}
	return obj, nil
}

// rollbackStripes deletes every already-dispatched chunk of a failed
// fresh write (spec §7 Partial: "rolls back committed stripes of the
// current mutation via delete").
func (p *Proxy) rollbackStripes(namespaceID byte, fuuid string, containerIDs []int, corrupted []bool) {
	if len(containerIDs) == 0 {
		return
	}
	alive := make([]bool, len(containerIDs))
	for i := range alive {
		alive[i] = true
	}
	_ = p.chunks.DeleteFile(namespaceID, fuuid, containerIDs, alive)
}

// Append runs the append operation of spec §4.7. offset must equal the
// object's current size and length must keep the object aligned to the
// stripe boundary (the final stripe alone may be short).
func (p *Proxy) Append(namespaceID byte, name string, offset int64, data []byte) (*metadata.Object, error) {
	unlock, err := p.lock(namespaceID, name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	obj, err := p.store.Get(namespaceID, name, -1)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		// Append-idempotence of trailing zero (spec §8).
		return obj, nil
	}
	if offset != obj.Size {
		return nil, errors.AddContext(ErrMisaligned, "proxy: append: offset must equal current size")
	}
	stripeSize := stripeLogicalSize(obj.Policy)
	if obj.Size%stripeSize != 0 {
		return nil, errors.AddContext(ErrMisaligned, "proxy: append: object not stripe-aligned")
	}

	next := *obj
	if !p.cfg.OverwriteFiles {
		next.Version = obj.Version + 1
		next.Chunks = append([]metadata.Chunk(nil), obj.Chunks...)
		next.ContainerIDs = append([]int(nil), obj.ContainerIDs...)
		next.Corrupted = append([]bool(nil), obj.Corrupted...)
	}

	perStripe := obj.Policy.N * obj.Policy.ChunksPerNode
	startStripe := int(obj.Size / stripeSize)
	numNewStripes := numStripesFor(int64(len(data)), obj.Policy)

	hasBg := next.BgTask == metadata.BgTaskPending
	for s := 0; s < numNewStripes; s++ {
		lo := int64(s) * stripeSize
		hi := lo + stripeSize
		if hi > int64(len(data)) {
			hi = int64(len(data))
		}
		stripeData := data[lo:hi]

		containers, err := p.place.FindSpareContainers(nil, nil, obj.Policy.N, obj.Policy.MaxChunkSize, obj.Policy.N, obj.Policy.K, obj.Policy.F, p.cfg.PlacementPolicy)
		if err != nil {
			return nil, errors.AddContext(err, "proxy: append: select spare containers")
		}

		result, err := p.chunks.WriteStripe(chunkmgr.StripeWriteInput{
			NamespaceID:  namespaceID,
			Name:         name,
			Version:      next.Version,
			FUUID:        obj.UUID,
			StripeIndex:  startStripe + s,
			Policy:       obj.Policy,
			Data:         stripeData,
			ContainerIDs: containers,
			IsOverwrite:  false,
		})
		if err != nil {
			return nil, errors.AddContext(err, "proxy: append: stripe")
		}

		for i := 0; i < len(containers); i++ {
			next.Chunks = append(next.Chunks, metadata.Chunk{
				ChunkID:     (startStripe+s)*perStripe + i,
				FileVersion: next.Version,
				Size:        result.ChunkSizes[i],
				MD5:         result.ChunkMD5s[i],
			})
			next.ContainerIDs = append(next.ContainerIDs, containers[i])
			next.Corrupted = append(next.Corrupted, false)
		}
		if result.HasBackgroundWork() {
			hasBg = true
		}
	}

	next.Size = obj.Size + int64(len(data))
	next.ModifyTime = time.Now()
	if hasBg {
		next.BgTask = metadata.BgTaskPending
	} else {
		next.BgTask = metadata.AllBgTasksCompleted
	}

	if err := p.store.Put(&next); err != nil {
		return nil, err
	}
	if p.stats != nil {
		p.stats.AddBytesWritten(int64(len(data)))
	}
	p.nextEventID()
	return &next, nil
}

// WriteStaged runs the normal write pipeline against data the staging
// tier already acknowledged to a client, preserving the exact version
// the staging tier pinned it under rather than incrementing it, so the
// writeback worker's own (namespaceID, name, version) key stays valid
// afterwards (spec §4.5 "Staging writeback": "reads the staged bytes,
// runs the normal write pipeline to the backend, then clears the pin").
// It implements workers.BackendWriter.
func (p *Proxy) WriteStaged(namespaceID byte, name string, version int32, data []byte) error {
	unlock, err := p.lock(namespaceID, name)
	if err != nil {
		return err
	}
	defer unlock()

	sc, err := p.cfg.storageClass("")
	if err != nil {
		return err
	}
	obj, err := p.writeStripesFresh(namespaceID, name, version, data, sc, sc.policy())
	if err != nil {
		return err
	}
	if err := p.store.Put(obj); err != nil {
		return err
	}
	if p.stats != nil {
		p.stats.AddBytesWritten(int64(len(data)))
	}
	p.nextEventID()
	return nil
}
