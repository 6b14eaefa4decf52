// Package workers implements component E: the background task machinery
// that keeps a running proxy healthy without a client in the loop - the
// repair scanner and queue, the chunk-checksum scanner with sampling,
// the deferred-commit checker, the journal reconciler, and staging
// writeback. Every worker here runs its own tick loop on a configurable
// interval and checks a shared running flag between ticks, matching
// spec §4.5/§5.
//
// Grounded on _examples/original_source/src/proxy/chunk_manager.cc's
// scan/repair-queue sections and the teacher's modules/renter/repair.go
// threadedUploadAndRepair tick-loop idiom.
package workers

import (
	"sync"
	"time"

	"github.com/uplo-tech/errors"
	"github.com/uplo-tech/fastrand"
	"github.com/uplo-tech/threadgroup"

	"github.com/nexoedge-go/proxy/metadata"
)

// MetadataScanner is the subset of metadata.Store every scanning worker
// needs: full enumeration plus a single object's read/write.
type MetadataScanner interface {
	List(namespaceID byte, prefix string) ([]*metadata.Object, error)
	Get(namespaceID byte, name string, version int32) (*metadata.Object, error)
	Put(obj *metadata.Object) error
	PendingJournal() ([]metadata.JournalEntry, error)
	RemoveJournal(e metadata.JournalEntry) error
}

// LivenessChecker is the subset of placement.Coordinator the scanners
// need to decide whether a chunk position is currently reachable.
type LivenessChecker interface {
	CheckLiveness(ids []int, unusedID int, treatUnusedAsOffline bool) (status []bool, numFailed int)
	NumAliveAgents() int
}

// ticker is the shared tick-loop skeleton every worker in this package
// embeds: a threadgroup-scoped goroutine that runs tick on an interval
// until stopped, matching spec §5 "Background workers: sleep until
// next_tick ... check a shared running flag between ticks."
type ticker struct {
	tg       threadgroup.ThreadGroup
	interval time.Duration
	tick     func()

	once sync.Once
}

func (t *ticker) start() error {
	if err := t.tg.Add(); err != nil {
		return err
	}
	go func() {
		defer t.tg.Done()
		// Jitter the first tick so many workers started at once don't
		// all fire their first scan in lockstep (spec §9 "tick jitter").
		jitter := time.Duration(fastrand.Intn(int(t.interval/2) + 1))
		timer := time.NewTimer(jitter)
		defer timer.Stop()
		for {
			select {
			case <-t.tg.StopChan():
				return
			case <-timer.C:
				t.tick()
				timer.Reset(t.interval)
			}
		}
	}()
	return nil
}

func (t *ticker) stop() error {
	return t.tg.Stop()
}

// ErrNoQuorum is returned by the repair worker's gate when fewer than k
// agents are alive fleet-wide (spec §4.5 "Repair worker"); alive
// containers are not counted.
var ErrNoQuorum = errors.New("workers: insufficient alive agents for repair")
