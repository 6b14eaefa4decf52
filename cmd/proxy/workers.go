package main

import (
	"github.com/nexoedge-go/proxy/chunkmgr"
	"github.com/nexoedge-go/proxy/config"
	"github.com/nexoedge-go/proxy/metadata"
	"github.com/nexoedge-go/proxy/placement"
	"github.com/nexoedge-go/proxy/proxy"
	"github.com/nexoedge-go/proxy/workers"
)

// backgroundWorkers bundles every tick-loop worker this binary runs so
// startCmd can start and stop them as one unit.
type backgroundWorkers struct {
	repairScanner *workers.RepairScanner
	repairWorker  *workers.RepairWorker
	checksum      *workers.ChecksumScanner
	commitChecker *workers.CommitChecker
	journal       *workers.JournalReconciler
}

func (b *backgroundWorkers) stop() {
	if b.repairScanner != nil {
		b.repairScanner.Stop()
	}
	if b.repairWorker != nil {
		b.repairWorker.Stop()
	}
	if b.checksum != nil {
		b.checksum.Stop()
	}
	if b.commitChecker != nil {
		b.commitChecker.Stop()
	}
	if b.journal != nil {
		b.journal.Stop()
	}
}

// startBackgroundWorkers wires and starts every scanner/worker spec §4.5
// describes, sharing the repair queue between the scanner that fills it
// and the worker that drains it.
func startBackgroundWorkers(cfg *config.Config, store *metadata.MemStore, place *placement.Coordinator, mgr *chunkmgr.Manager, px *proxy.Proxy) *backgroundWorkers {
	namespaces := namespaceRange()
	queue := workers.NewRepairQueue()

	minAlive := 1
	for _, sc := range cfg.Proxy.StorageClasses {
		if sc.K > 0 {
			minAlive = sc.K
			break
		}
	}

	b := &backgroundWorkers{
		repairScanner: workers.NewRepairScanner(store, place, queue, namespaces, cfg.Recovery.ScanInterval, cfg.Recovery.TriggerStartInterval),
		repairWorker:  workers.NewRepairWorker(queue, px, place, minAlive, cfg.Recovery.BatchSize, cfg.Recovery.ScanInterval),
		checksum:      workers.NewChecksumScanner(store, mgr, queue, namespaces, cfg.Recovery.ScanChunkBatchSize, cfg.Recovery.ChunkScanSamplingPolicy, cfg.Recovery.ChunkScanSamplingRate, cfg.Recovery.ScanChunkInterval),
		commitChecker: workers.NewCommitChecker(store, mgr, namespaces, cfg.Misc.JournalCheckInterval),
		journal:       workers.NewJournalReconciler(store, place, mgr, cfg.Misc.JournalCheckInterval),
	}

	if err := b.repairScanner.Start(); err != nil {
		die("could not start repair scanner:", err)
	}
	if err := b.repairWorker.Start(); err != nil {
		die("could not start repair worker:", err)
	}
	if err := b.checksum.Start(); err != nil {
		die("could not start checksum scanner:", err)
	}
	if err := b.commitChecker.Start(); err != nil {
		die("could not start commit checker:", err)
	}
	if err := b.journal.Start(); err != nil {
		die("could not start journal reconciler:", err)
	}

	px.RegisterBgTask(repairQueueTask{queue})
	px.RegisterBgTask(repairWorkerTask{b.repairWorker})
	px.RegisterBgTask(checksumHealthTask{b.checksum})

	// Staging is an external write-back cache (spec §1: "only its
	// capability set is specified"); this binary has no concrete
	// staging.Store to drive workers.NewStagingWriteback against, so it
	// exits with a fatal error when staging is enabled rather than
	// fabricating a local implementation.
	if cfg.Staging.Enabled {
		die("staging.enabled requires a staging.Store backend; none is wired in this build")
	}

	return b
}

// repairQueueTask reports the number of objects still waiting for a
// repair dispatch, satisfying proxy.BgTaskReporter for get_bg_task_progress.
type repairQueueTask struct{ queue *workers.RepairQueue }

func (t repairQueueTask) Name() string    { return "repair_queue" }
func (t repairQueueTask) Progress() int32 { return int32(t.queue.Len()) }

// repairWorkerTask reports how many repairs the worker currently has
// in flight.
type repairWorkerTask struct{ worker *workers.RepairWorker }

func (t repairWorkerTask) Name() string    { return "repair_worker" }
func (t repairWorkerTask) Progress() int32 { return int32(t.worker.InFlight()) }

// checksumHealthTask reports the most recent checksum-scan corruption
// rate as a percentage, out of the scanner's running health stats.
type checksumHealthTask struct{ scanner *workers.ChecksumScanner }

func (t checksumHealthTask) Name() string { return "checksum_scan" }
func (t checksumHealthTask) Progress() int32 {
	_, _, last := t.scanner.Health()
	return int32(last * 100)
}
