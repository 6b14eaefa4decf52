package workers

import (
	"time"

	"github.com/nexoedge-go/proxy/metadata"
)

// RepairScanner walks every object every file_scan_interval and enqueues
// any whose chunks have a down position, skipping objects modified
// within the last recover_interval (spec §4.5 "Repair scanner").
type RepairScanner struct {
	t ticker

	store    MetadataScanner
	liveness LivenessChecker
	queue    *RepairQueue

	recoverInterval time.Duration
	now             func() time.Time

	namespaces []byte
}

// NewRepairScanner builds a scanner over every object in namespaces,
// ticking every scanInterval.
func NewRepairScanner(store MetadataScanner, liveness LivenessChecker, queue *RepairQueue, namespaces []byte, scanInterval, recoverInterval time.Duration) *RepairScanner {
	s := &RepairScanner{
		store:           store,
		liveness:        liveness,
		queue:           queue,
		recoverInterval: recoverInterval,
		now:             time.Now,
		namespaces:      namespaces,
	}
	s.t = ticker{interval: scanInterval, tick: s.scanOnce}
	return s
}

// Start launches the scan loop.
func (s *RepairScanner) Start() error { return s.t.start() }

// Stop halts the scan loop and waits for the in-flight scan, if any, to
// finish.
func (s *RepairScanner) Stop() error { return s.t.stop() }

func (s *RepairScanner) scanOnce() {
	for _, ns := range s.namespaces {
		objs, err := s.store.List(ns, "")
		if err != nil {
			continue
		}
		for _, obj := range objs {
			s.scanObject(obj)
		}
	}
}

func (s *RepairScanner) scanObject(obj *metadata.Object) {
	if s.now().Sub(obj.ModifyTime) < s.recoverInterval {
		return
	}
	status, numFailed := s.liveness.CheckLiveness(obj.ContainerIDs, metadata.UnusedContainerID, true)
	if numFailed == 0 {
		return
	}
	_ = status
	s.queue.Enqueue(obj.NamespaceID, obj.Name, obj.Version)
}
