package proxy

import (
	"crypto/md5"
	"time"

	"github.com/uplo-tech/errors"

	"github.com/nexoedge-go/proxy/chunkmgr"
	"github.com/nexoedge-go/proxy/metadata"
)

// Overwrite runs the overwrite operation of spec §4.8. When (offset,
// length) is not stripe-aligned the proxy reads the enclosing stripes,
// patches the requested range in memory, and rewrites the whole
// stripes; untouched stripes keep their chunks and container ids
// unchanged. On a per-stripe failure the touched stripes already
// written in this call are reverted via RVT_CHUNK, not deleted.
func (p *Proxy) Overwrite(namespaceID byte, name string, offset int64, data []byte) (*metadata.Object, error) {
	length := int64(len(data))
	unlock, err := p.lock(namespaceID, name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	obj, err := p.store.Get(namespaceID, name, -1)
	if err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 || offset+length > obj.Size {
		return nil, errors.AddContext(ErrMisaligned, "proxy: overwrite: range exceeds current size")
	}
	if length == 0 {
		return obj, nil
	}

	stripeSize := stripeLogicalSize(obj.Policy)
	startStripe := int(offset / stripeSize)
	endStripe := int((offset + length + stripeSize - 1) / stripeSize)

	// Patch the enclosing stripes in memory: read_partial the whole
	// aligned range, overlay the caller's bytes, rewrite whole stripes
	// (spec §4.8).
	alignedLo := int64(startStripe) * stripeSize
	alignedHi := int64(endStripe) * stripeSize
	if alignedHi > obj.Size {
		alignedHi = obj.Size
	}
	patched, err := p.readRange(obj, alignedLo, alignedHi-alignedLo)
	if err != nil {
		return nil, errors.AddContext(err, "proxy: overwrite: read enclosing stripes")
	}
	copy(patched[offset-alignedLo:], data)

	next := *obj
	var version int32 = obj.Version
	if !p.cfg.OverwriteFiles {
		version = obj.Version + 1
		next.Version = version
		next.ContainerIDs = append([]int(nil), obj.ContainerIDs...)
		next.Chunks = append([]metadata.Chunk(nil), obj.Chunks...)
		next.Corrupted = append([]bool(nil), obj.Corrupted...)
	}

	perStripe := obj.ChunksPerStripe()
	var touchedStripes []int
	revertOnFailure := func() {
		for _, s := range touchedStripes {
			lo, hi := s*perStripe, (s+1)*perStripe
			if hi > len(obj.ContainerIDs) {
				hi = len(obj.ContainerIDs)
			}
			p.chunks.RevertStripe(namespaceID, obj.UUID, s, perStripe, obj.ContainerIDs[lo:hi], uint32(obj.Version))
		}
	}

	for s := startStripe; s < endStripe; s++ {
		lo, hi := s*perStripe, (s+1)*perStripe
		if hi > len(obj.ContainerIDs) {
			hi = len(obj.ContainerIDs)
		}
		containerIDs := obj.ContainerIDs[lo:hi]

		stripeLo := int64(s)*stripeSize - alignedLo
		stripeHi := stripeLo + stripeSize
		if stripeHi > int64(len(patched)) {
			stripeHi = int64(len(patched))
		}
		stripeData := patched[stripeLo:stripeHi]

		result, err := p.chunks.WriteStripe(chunkmgr.StripeWriteInput{
			NamespaceID:      namespaceID,
			Name:             name,
			Version:          version,
			FUUID:            obj.UUID,
			StripeIndex:      s,
			Policy:           obj.Policy,
			Data:             stripeData,
			ContainerIDs:     containerIDs,
			IsOverwrite:      true,
			PriorFileVersion: uint32(obj.Version),
		})
		if err != nil {
			revertOnFailure()
			return nil, errors.AddContext(err, "proxy: overwrite: stripe")
		}
		touchedStripes = append(touchedStripes, s)

		for i := 0; i < len(containerIDs); i++ {
			idx := lo + i
			if idx < len(next.Chunks) {
				next.Chunks[idx] = metadata.Chunk{
					ChunkID:     idx,
					FileVersion: version,
					Size:        result.ChunkSizes[i],
					MD5:         result.ChunkMD5s[i],
				}
			}
		}
	}

	md5sum, err := p.wholeObjectMD5(obj, alignedLo, alignedHi, patched)
	if err != nil {
		return nil, errors.AddContext(err, "proxy: overwrite: recompute md5")
	}
	next.MD5 = md5sum
	next.ModifyTime = time.Now()
	if err := p.store.Put(&next); err != nil {
		return nil, err
	}
	if p.stats != nil {
		p.stats.AddBytesWritten(length)
	}
	p.nextEventID()
	return &next, nil
}

// wholeObjectMD5 recomputes the object's content checksum after an
// in-place overwrite: the unchanged prefix and suffix are re-read from
// their surviving stripes and stitched around the freshly patched range
// (spec §8 requires `read(write(object)) = object` bytes-wise, so the
// stored MD5 must track the overwritten content, not the original).
func (p *Proxy) wholeObjectMD5(obj *metadata.Object, alignedLo, alignedHi int64, patched []byte) ([16]byte, error) {
	h := md5.New()
	if alignedLo > 0 {
		prefix, err := p.readRange(obj, 0, alignedLo)
		if err != nil {
			return [16]byte{}, err
		}
		h.Write(prefix)
	}
	h.Write(patched)
	if alignedHi < obj.Size {
		suffix, err := p.readRange(obj, alignedHi, obj.Size-alignedHi)
		if err != nil {
			return [16]byte{}, err
		}
		h.Write(suffix)
	}
	var sum [16]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}
