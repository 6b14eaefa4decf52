package proxy

import (
	"time"

	"github.com/uplo-tech/errors"

	"github.com/nexoedge-go/proxy/chunkmgr"
	"github.com/nexoedge-go/proxy/metadata"
)

// unspecifiedNamespace is the `0xFF` sentinel a client passes as a copy
// destination namespace to mean "same as source" (DESIGN.md Open
// Question decision 3).
const unspecifiedNamespace = 0xFF

// Delete removes one version's metadata and its chunks. version < 0
// deletes only the current (named) version, never historical ones
// (DESIGN.md Open Question decision 2).
func (p *Proxy) Delete(namespaceID byte, name string, version int32) error {
	unlock, err := p.lock(namespaceID, name)
	if err != nil {
		return err
	}
	defer unlock()

	obj, err := p.store.Get(namespaceID, name, version)
	if err != nil {
		return err
	}

	alive := make([]bool, len(obj.ContainerIDs))
	for i := range alive {
		alive[i] = true
	}
	if err := p.chunks.DeleteFile(namespaceID, obj.UUID, obj.ContainerIDs, alive); err != nil {
		return err
	}
	if err := p.store.Delete(namespaceID, name, obj.Version); err != nil {
		return err
	}
	p.nextEventID()
	return nil
}

// Rename moves every version's metadata sharing (namespaceID, oldName)
// to newName; chunk ids and container assignments are untouched
// (DESIGN.md Open Question decision 1, spec §8 "Rename preserves content
// and chunk ids").
func (p *Proxy) Rename(namespaceID byte, oldName, newName string) error {
	unlockOld, err := p.lock(namespaceID, oldName)
	if err != nil {
		return err
	}
	defer unlockOld()
	unlockNew, err := p.lock(namespaceID, newName)
	if err != nil {
		return err
	}
	defer unlockNew()

	if err := p.store.Rename(namespaceID, oldName, newName); err != nil {
		return err
	}
	p.nextEventID()
	return nil
}

// Copy duplicates the current version of (namespaceID, srcName) as a
// fresh object at (dstNamespaceID, dstName), preserving content and MD5
// (spec §8 "Copy preserves MD5"). dstNamespaceID == unspecifiedNamespace
// copies within the source namespace (DESIGN.md Open Question decision
// 3).
func (p *Proxy) Copy(namespaceID byte, srcName string, dstNamespaceID byte, dstName string) (*metadata.Object, error) {
	if dstNamespaceID == unspecifiedNamespace {
		dstNamespaceID = namespaceID
	}

	unlockSrc, err := p.lock(namespaceID, srcName)
	if err != nil {
		return nil, err
	}
	defer unlockSrc()
	unlockDst, err := p.lock(dstNamespaceID, dstName)
	if err != nil {
		return nil, err
	}
	defer unlockDst()

	src, err := p.store.Get(namespaceID, srcName, -1)
	if err != nil {
		return nil, err
	}

	dst := *src
	dst.NamespaceID = dstNamespaceID
	dst.Name = dstName
	dst.UUID = newUUID()
	dst.Version = 0
	dst.CreateTime = time.Now()
	dst.ModifyTime = time.Now()
	dst.ContainerIDs = append([]int(nil), src.ContainerIDs...)
	dst.Corrupted = make([]bool, len(src.Corrupted))
	dst.Chunks = append([]metadata.Chunk(nil), src.Chunks...)

	perStripe := src.ChunksPerStripe()
	numStripes := src.NumStripes()
	k := src.Policy.K

	for s := 0; s < numStripes; s++ {
		lo, hi := s*perStripe, (s+1)*perStripe
		spanN := perStripe
		dstContainers, err := p.place.FindSpareContainers(nil, nil, spanN, src.Policy.MaxChunkSize, src.Policy.N, k, src.Policy.F, p.cfg.PlacementPolicy)
		if err != nil {
			return nil, errors.AddContext(err, "proxy: copy: select spare containers")
		}
		copy(dst.ContainerIDs[lo:hi], dstContainers)

		err = p.chunks.CopyRange(chunkmgr.StripeSpan{
			NamespaceID:    namespaceID,
			SrcName:        srcName,
			SrcFUUID:       src.UUID,
			SrcVersion:     src.Version,
			DstNamespaceID: dstNamespaceID,
			DstName:        dstName,
			DstFUUID:       dst.UUID,
			DstVersion:     dst.Version,
			N:              perStripe,
			StartStripe:    s,
			EndStripe:      s + 1,
			ContainerIDs:   src.ContainerIDs[lo:hi],
			DstContainers:  dstContainers,
		}, k)
		if err != nil {
			_ = p.chunks.DeleteFile(dstNamespaceID, dst.UUID, dst.ContainerIDs[:hi], nil)
			return nil, errors.AddContext(err, "proxy: copy: stripe")
		}
	}

	if err := p.store.Put(&dst); err != nil {
		return nil, err
	}
	p.nextEventID()
	return &dst, nil
}
