package workers

import (
	"time"

	"github.com/nexoedge-go/proxy/staging"
)

// WritebackPolicy selects when the staging writeback worker pops its
// backlog (spec §4.5 "Staging writeback"; config key
// staging.bgwrite_policy).
type WritebackPolicy int

const (
	// WritebackNone disables the worker entirely.
	WritebackNone WritebackPolicy = iota
	// WritebackImmediate drains the backlog on every tick.
	WritebackImmediate
	// WritebackScheduled only drains once per day, at a configured
	// HH:MM.
	WritebackScheduled
	// WritebackIdle only drains while the host is judged idle
	// (average CPU load below 50%).
	WritebackIdle
)

// BackendWriter is the normal write pipeline the staging worker hands a
// staged object's bytes to once it decides to flush it (spec §4.5:
// "runs the normal write pipeline to the backend").
type BackendWriter interface {
	WriteStaged(namespaceID byte, name string, version int32, data []byte) error
}

// CPULoadSampler reports the current average CPU load as a fraction in
// [0,1], used by the idle writeback policy. The staging tier's idle
// detector is itself an external collaborator (spec §1); a nil sampler
// passed to NewStagingWriteback always reports idle.
type CPULoadSampler func() float64

// StagingWriteback pops the staging tier's pending-writeback list
// according to policy and runs each entry through the normal write
// pipeline, then clears its pin (spec §4.5 "Staging writeback").
type StagingWriteback struct {
	t ticker

	store  staging.Store
	writer BackendWriter

	policy        WritebackPolicy
	scheduledAt   time.Duration // time-of-day offset for WritebackScheduled
	cpuLoad       CPULoadSampler
	scanInterval  time.Duration
	lastScheduled time.Time
	now           func() time.Time
}

// NewStagingWriteback builds a worker ticking every scanInterval
// (staging.bgwrite_scan_interval). scheduledAt is only consulted under
// WritebackScheduled and is the time-of-day offset parsed from the
// configured HH:MM.
func NewStagingWriteback(store staging.Store, writer BackendWriter, policy WritebackPolicy, scheduledAt time.Duration, cpuLoad CPULoadSampler, scanInterval time.Duration) *StagingWriteback {
	if cpuLoad == nil {
		cpuLoad = func() float64 { return 0 }
	}
	w := &StagingWriteback{
		store:        store,
		writer:       writer,
		policy:       policy,
		scheduledAt:  scheduledAt,
		cpuLoad:      cpuLoad,
		scanInterval: scanInterval,
		now:          time.Now,
	}
	w.t = ticker{interval: scanInterval, tick: w.tickOnce}
	return w
}

// Start launches the writeback loop.
func (w *StagingWriteback) Start() error {
	if w.policy == WritebackNone {
		return nil
	}
	return w.t.start()
}

// Stop halts the writeback loop.
func (w *StagingWriteback) Stop() error { return w.t.stop() }

func (w *StagingWriteback) tickOnce() {
	if !w.shouldRun() {
		return
	}

	entries, err := w.store.PendingWriteback()
	if err != nil {
		return
	}
	cutoff := w.now().Add(-2 * w.scanInterval)
	for _, e := range entries {
		if e.ModifyTime.After(cutoff) {
			continue
		}
		data, err := w.store.ReadStaged(e.NamespaceID, e.Name, e.Version)
		if err != nil {
			continue
		}
		if err := w.writer.WriteStaged(e.NamespaceID, e.Name, e.Version, data); err != nil {
			continue
		}
		_ = w.store.ClearPin(e.NamespaceID, e.Name, e.Version)
	}

	if w.policy == WritebackScheduled {
		w.lastScheduled = w.now()
	}
}

func (w *StagingWriteback) shouldRun() bool {
	switch w.policy {
	case WritebackImmediate:
		return true
	case WritebackIdle:
		return w.cpuLoad() < 0.5
	case WritebackScheduled:
		now := w.now()
		if !w.lastScheduled.IsZero() && now.Sub(w.lastScheduled) < 23*time.Hour {
			return false
		}
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		due := midnight.Add(w.scheduledAt)
		return !now.Before(due)
	default:
		return false
	}
}
