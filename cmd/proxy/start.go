package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/uplo-tech/ratelimit"

	"github.com/nexoedge-go/proxy/build"
	"github.com/nexoedge-go/proxy/chunkio"
	"github.com/nexoedge-go/proxy/chunkmgr"
	"github.com/nexoedge-go/proxy/coding"
	"github.com/nexoedge-go/proxy/config"
	"github.com/nexoedge-go/proxy/metadata"
	"github.com/nexoedge-go/proxy/persist"
	"github.com/nexoedge-go/proxy/placement"
	"github.com/nexoedge-go/proxy/proxy"
)

var configPath string

// namespaceRange lists every namespace this proxy's background workers
// scan; the reference deployment covers the 256 possible namespace ids.
func namespaceRange() []byte {
	ns := make([]byte, 256)
	for i := range ns {
		ns[i] = byte(i)
	}
	return ns
}

func startCmd(*cobra.Command, []string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		die("could not load configuration:", err)
	}

	if err := os.MkdirAll(build.DataDir(), 0700); err != nil {
		die("could not create data directory:", err)
	}

	log, err := persist.NewFileLogger(filepath.Join(build.DataDir(), "proxy.log"))
	if err != nil {
		die("could not open log file:", err)
	}
	defer log.Close()

	store, err := metadata.NewMemStore(filepath.Join(build.DataDir(), "journal.wal"))
	if err != nil {
		die("could not open metadata store:", err)
	}
	defer store.Close()

	place := placement.New(cfg.Misc.LivenessCacheTime)
	defer place.Close()

	if len(cfg.Misc.AgentList) > 0 {
		presets := make([]placement.PresetAgent, 0, len(cfg.Misc.AgentList))
		for _, addr := range cfg.Misc.AgentList {
			host, portStr, err := net.SplitHostPort(addr)
			if err != nil {
				log.Printf("skipping malformed agent_list entry %q: %v", addr, err)
				continue
			}
			port, err := strconv.Atoi(portStr)
			if err != nil {
				log.Printf("skipping malformed agent_list entry %q: %v", addr, err)
				continue
			}
			presets = append(presets, placement.PresetAgent{IP: host, CoordPort: port})
		}
		if err := place.RegisterPresetAgents(presets); err != nil {
			log.Printf("could not register preset agents: %v", err)
		}
	}

	stopMonitor, err := place.StartMonitor(cfg.FailureDetection.Timeout, coordinatorPinger(cfg.FailureDetection.Timeout))
	if err != nil {
		die("could not start liveness monitor:", err)
	}
	defer stopMonitor()

	dialer := chunkDialer(place, cfg.FailureDetection.Timeout)
	rl := ratelimit.NewRateLimit(int64(cfg.Network.TCPBufferSize), int64(cfg.Network.TCPBufferSize), 0)
	chunkClient := chunkio.NewClient(dialer, cfg.FailureDetection.Timeout, rl)

	coders := coding.NewCache()

	mgr := chunkmgr.New(chunkmgr.Config{
		AckInBackground:      cfg.BackgroundWrite.AckRedundancyInBackground,
		VerifyChecksum:       cfg.DataIntegrity.VerifyChunkChecksum,
		RepairAtProxy:        cfg.Misc.RepairAtProxy,
		RepairUsingCAR:       cfg.Misc.RepairUsingCAR,
		NumBackgroundWorkers: cfg.BackgroundWrite.NumBackgroundChunkWorker,
	}, coders, chunkClient, place, store)
	defer mgr.Close()

	classes := make(map[string]proxy.StorageClass, len(cfg.Proxy.StorageClasses))
	defaultClass := ""
	for _, c := range cfg.Proxy.StorageClasses {
		classes[c.Name] = proxy.StorageClass{
			Name:         c.Name,
			Coding:       c.Coding,
			N:            c.N,
			K:            c.K,
			F:            c.F,
			MaxChunkSize: c.MaxChunkSize,
			Default:      c.Default,
		}
		if c.Default {
			defaultClass = c.Name
		}
	}
	if len(classes) == 0 {
		die("no storage classes configured; set proxy.storage_class.path to a directory of storage class declarations")
	}
	if defaultClass == "" {
		for name := range classes {
			defaultClass = name
			break
		}
	}

	stats := proxy.NewStatsSaver(filepath.Join(build.DataDir(), "stats.json"), time.Minute)
	if err := stats.Start(); err != nil {
		die("could not start stats saver:", err)
	}
	defer stats.Stop()

	px := proxy.New(proxy.Config{
		NumRetry:        cfg.Retry.Num,
		RetryInterval:   cfg.Retry.Interval,
		OverwriteFiles:  cfg.Misc.OverwriteFiles,
		PlacementPolicy: cfg.DataDistribution.Policy,
		StorageClasses:  classes,
		DefaultClass:    defaultClass,
	}, store, mgr, place, proxy.NoopDedup{}, stats, log)
	defer px.Close()
	px.SetHostInfoProvider(gopsutilHostInfo{})

	bg := startBackgroundWorkers(cfg, store, place, mgr, px)
	defer bg.stop()

	if err := serve(cfg, px, log); err != nil {
		die("could not bind listener:", err)
	}
	if err := serveCoordinator(cfg, place, log); err != nil {
		die("could not bind coordinator listener:", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")
	os.Exit(exitCodeClean)
}

// coordinatorPinger returns a placement.Pinger that dials an agent's
// coordinator port with a short timeout, matching the monitor loop's
// "poll liveness proactively" half of spec §4.3.
func coordinatorPinger(timeout time.Duration) placement.Pinger {
	return func(ip string, coordPort int) bool {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", ip, coordPort), timeout)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}
}

// chunkDialer resolves a container id to a connected socket via the
// placement coordinator, the concrete Dialer chunkio.Client needs (spec
// §9 "agent addresses are looked up by id through the coordinator, not
// stored in the chunk").
func chunkDialer(place *placement.Coordinator, timeout time.Duration) chunkio.Dialer {
	return func(containerID int) (net.Conn, error) {
		ip, port, ok := place.AgentAddrFor(containerID)
		if !ok {
			return nil, fmt.Errorf("chunk dialer: no agent owns container %d", containerID)
		}
		return net.DialTimeout("tcp", fmt.Sprintf("%s:%d", ip, port), timeout)
	}
}
