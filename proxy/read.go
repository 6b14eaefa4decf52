package proxy

import (
	"time"

	"github.com/uplo-tech/errors"

	"github.com/nexoedge-go/proxy/chunkmgr"
	"github.com/nexoedge-go/proxy/metadata"
)

// Read returns an object's full current content, reassembling every
// stripe across however many containers have gone down since write
// (spec §4.4.2 degraded read, §4.6 "reads may proceed without the
// lock").
func (p *Proxy) Read(namespaceID byte, name string) ([]byte, *metadata.Object, error) {
	obj, err := p.store.Get(namespaceID, name, -1)
	if err != nil {
		return nil, nil, err
	}
	data, err := p.readRange(obj, 0, obj.Size)
	if err != nil {
		return nil, nil, err
	}
	obj.AccessTime = time.Now()
	_ = p.store.Put(obj)
	if p.stats != nil {
		p.stats.AddBytesRead(int64(len(data)))
	}
	return data, obj, nil
}

// ReadPartial returns [offset, offset+length) of an object's content
// (spec §4.6 "read_partial").
func (p *Proxy) ReadPartial(namespaceID byte, name string, offset, length int64) ([]byte, error) {
	obj, err := p.store.Get(namespaceID, name, -1)
	if err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 || offset+length > obj.Size {
		return nil, errors.AddContext(ErrMisaligned, "proxy: read_partial: range exceeds object size")
	}
	data, err := p.readRange(obj, offset, length)
	if err != nil {
		return nil, err
	}
	if p.stats != nil {
		p.stats.AddBytesRead(int64(len(data)))
	}
	return data, nil
}

// readRange reconstructs every stripe overlapping [offset, offset+length)
// and concatenates the requested sub-range (spec §4.4.2 step 4).
func (p *Proxy) readRange(obj *metadata.Object, offset, length int64) ([]byte, error) {
	stripeSize := stripeLogicalSize(obj.Policy)
	if stripeSize <= 0 {
		return nil, errors.AddContext(ErrMisaligned, "proxy: read: zero-size stripe policy")
	}
	perStripe := obj.ChunksPerStripe()

	firstStripe := int(offset / stripeSize)
	lastStripe := int((offset + length - 1) / stripeSize)
	if length == 0 {
		return nil, nil
	}

	out := make([]byte, 0, length)
	for s := firstStripe; s <= lastStripe; s++ {
		lo := s * perStripe
		hi := lo + perStripe
		if hi > len(obj.ContainerIDs) {
			hi = len(obj.ContainerIDs)
		}
		containerIDs := obj.ContainerIDs[lo:hi]
		indicator, _ := p.place.CheckLiveness(containerIDs, metadata.UnusedContainerID, true)
		for i, cid := range containerIDs {
			if cid == metadata.InvalidContainerID && i < len(indicator) {
				indicator[i] = false
			}
		}

		chunkHi := hi
		if chunkHi > len(obj.Chunks) {
			chunkHi = len(obj.Chunks)
		}
		chunkMD5s := make([][16]byte, len(containerIDs))
		for i, c := range obj.Chunks[lo:chunkHi] {
			chunkMD5s[i] = c.MD5
		}

		stripeBytes, err := p.chunks.ReadStripe(chunkmgr.StripeReadInput{
			NamespaceID:  obj.NamespaceID,
			Name:         obj.Name,
			Version:      obj.Version,
			FUUID:        obj.UUID,
			StripeIndex:  s,
			Policy:       obj.Policy,
			ContainerIDs: containerIDs,
			Indicator:    indicator,
			ChunkMD5s:    chunkMD5s,
		})
		if err != nil {
			return nil, errors.AddContext(err, "proxy: read: stripe")
		}

		stripeStart := int64(s) * stripeSize
		wantLo := offset - stripeStart
		if wantLo < 0 {
			wantLo = 0
		}
		wantHi := int64(len(stripeBytes))
		if end := offset + length - stripeStart; end < wantHi {
			wantHi = end
		}
		if wantLo < wantHi {
			out = append(out, stripeBytes[wantLo:wantHi]...)
		}
	}
	return out, nil
}

// GetFileSize returns an object's current logical size (spec §4.6
// "get_file_size").
func (p *Proxy) GetFileSize(namespaceID byte, name string) (int64, error) {
	obj, err := p.store.Get(namespaceID, name, -1)
	if err != nil {
		return 0, err
	}
	return obj.Size, nil
}

// GetExpectedAppendSize returns the per-call append length a storage
// class enforces (one stripe's logical size), used by clients to decide
// how much to buffer before issuing `append` (spec §6
// GET_APPEND_SIZE_REQ).
func (p *Proxy) GetExpectedAppendSize(storageClass string) (int64, error) {
	sc, err := p.cfg.storageClass(storageClass)
	if err != nil {
		return 0, err
	}
	return stripeLogicalSize(sc.policy()), nil
}

// GetExpectedReadSize returns an object's current size, the same value
// `GET_READ_SIZE_REQ` reports to a client sizing its receive buffer.
func (p *Proxy) GetExpectedReadSize(namespaceID byte, name string) (int64, error) {
	return p.GetFileSize(namespaceID, name)
}
