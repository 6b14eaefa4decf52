package proxy

import (
	"sync/atomic"

	"github.com/nexoedge-go/proxy/chunkmgr"
	"github.com/nexoedge-go/proxy/metadata"
)

// Repair re-derives every stripe of (namespaceID, name) with a missing
// or corrupted chunk, assigning fresh spare containers for the repaired
// positions (spec §4.4.3). Repair on an object with no missing chunks is
// a no-op returning success (spec §8 "Repair idempotence"). It
// implements workers.RepairDispatcher so the repair worker can dispatch
// through it directly.
func (p *Proxy) Repair(namespaceID byte, name string, version int32) error {
	unlock, err := p.lock(namespaceID, name)
	if err != nil {
		return err
	}
	defer unlock()

	obj, err := p.store.Get(namespaceID, name, version)
	if err != nil {
		return err
	}

	atomic.AddInt32(&p.repairInFlight, 1)
	defer atomic.AddInt32(&p.repairInFlight, -1)

	perStripe := obj.ChunksPerStripe()
	if perStripe == 0 {
		return nil
	}
	numStripes := obj.NumStripes()

	anyRepaired := false
	for s := 0; s < numStripes; s++ {
		lo, hi := s*perStripe, (s+1)*perStripe
		if hi > len(obj.ContainerIDs) {
			hi = len(obj.ContainerIDs)
		}
		containerIDs := obj.ContainerIDs[lo:hi]

		indicator, numFailed := p.place.CheckLiveness(containerIDs, metadata.UnusedContainerID, true)
		for i, cid := range containerIDs {
			if cid == metadata.InvalidContainerID && i < len(indicator) {
				indicator[i] = false
			}
		}
		if numFailed == 0 {
			continue
		}

		result, err := p.chunks.RepairStripe(chunkmgr.StripeRepairInput{
			NamespaceID:     namespaceID,
			Name:            name,
			Version:         obj.Version,
			FUUID:           obj.UUID,
			StripeIndex:     s,
			Policy:          obj.Policy,
			ContainerIDs:    containerIDs,
			Indicator:       indicator,
			PlacementPolicy: p.cfg.PlacementPolicy,
		})
		if err != nil {
			return err
		}
		for i, pos := range result.RepairedPositions {
			idx := lo + pos
			if idx >= len(obj.ContainerIDs) {
				continue
			}
			obj.ContainerIDs[idx] = result.NewContainerIDs[i]
			if idx < len(obj.Corrupted) {
				obj.Corrupted[idx] = false
			}
			anyRepaired = true
		}
	}

	if !anyRepaired {
		return nil
	}
	obj.UUID = newUUID()
	if err := p.store.Put(obj); err != nil {
		return err
	}
	if p.stats != nil {
		p.stats.IncRepair()
	}
	p.nextEventID()
	return nil
}

// NumToRepair reports how many distinct objects currently carry at
// least one INVALID chunk position across the given namespaces (spec §6
// GET_REPAIR_STATS_REQ's repair_count).
func (p *Proxy) NumToRepair(namespaces []byte) (int, error) {
	count := 0
	for _, ns := range namespaces {
		objs, err := p.store.List(ns, "")
		if err != nil {
			return 0, err
		}
		for _, obj := range objs {
			for _, cid := range obj.ContainerIDs {
				if cid == metadata.InvalidContainerID {
					count++
					break
				}
			}
		}
	}
	return count, nil
}
