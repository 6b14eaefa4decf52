package workers

import (
	"time"

	"github.com/nexoedge-go/proxy/metadata"
)

// FileChecker is the subset of chunkmgr.Manager the commit checker
// needs: one check_file dispatch per stripe (spec §4.4.5).
type FileChecker interface {
	CheckFilePositions(namespaceID byte, fuuid string, containerIDs []int) (missing []int)
}

// CommitChecker walks every object flagged BG_TASK_PENDING and verifies
// the chunks a background worker committed actually landed, rewriting
// any that didn't to InvalidContainerID before flipping the object to
// AllBgTasksCompleted (spec §4.5 "Deferred-commit checker").
type CommitChecker struct {
	t ticker

	store      MetadataScanner
	checker    FileChecker
	namespaces []byte
}

// NewCommitChecker builds a checker ticking every interval (the spec's
// `background_write.background_task_check_interval`).
func NewCommitChecker(store MetadataScanner, checker FileChecker, namespaces []byte, interval time.Duration) *CommitChecker {
	c := &CommitChecker{store: store, checker: checker, namespaces: namespaces}
	c.t = ticker{interval: interval, tick: c.checkOnce}
	return c
}

// Start launches the check loop.
func (c *CommitChecker) Start() error { return c.t.start() }

// Stop halts the check loop.
func (c *CommitChecker) Stop() error { return c.t.stop() }

func (c *CommitChecker) checkOnce() {
	for _, ns := range c.namespaces {
		objs, err := c.store.List(ns, "")
		if err != nil {
			continue
		}
		for _, obj := range objs {
			if obj.BgTask == metadata.BgTaskPending {
				c.checkObject(obj)
			}
		}
	}
}

func (c *CommitChecker) checkObject(obj *metadata.Object) {
	perStripe := obj.ChunksPerStripe()
	if perStripe == 0 {
		return
	}
	for stripe := 0; stripe < obj.NumStripes(); stripe++ {
		lo, hi := stripe*perStripe, (stripe+1)*perStripe
		missing := c.checker.CheckFilePositions(obj.NamespaceID, obj.UUID, obj.ContainerIDs[lo:hi])
		for _, rel := range missing {
			idx := lo + rel
			if idx < len(obj.ContainerIDs) && obj.ContainerIDs[idx] != metadata.UnusedContainerID {
				obj.ContainerIDs[idx] = metadata.InvalidContainerID
			}
		}
	}
	obj.BgTask = metadata.AllBgTasksCompleted
	_ = c.store.Put(obj)
}
