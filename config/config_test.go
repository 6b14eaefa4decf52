package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nexoedge-go/proxy/placement"
	"github.com/nexoedge-go/proxy/workers"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxy.yaml")
	if err := os.WriteFile(path, []byte("proxy:\n  num: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Proxy.Interface != "0.0.0.0:9000" {
		t.Fatalf("unexpected default interface: %q", cfg.Proxy.Interface)
	}
	if cfg.Retry.Num != 3 {
		t.Fatalf("unexpected default retry.num: %d", cfg.Retry.Num)
	}
	if cfg.FailureDetection.Timeout != 5*time.Second {
		t.Fatalf("unexpected default failure_detection.timeout: %v", cfg.FailureDetection.Timeout)
	}
	if cfg.DataDistribution.Policy != placement.Static {
		t.Fatalf("expected default placement policy Static, got %v", cfg.DataDistribution.Policy)
	}
	if cfg.Recovery.ChunkScanSamplingPolicy != workers.SamplingNone {
		t.Fatalf("expected default sampling policy SamplingNone, got %v", cfg.Recovery.ChunkScanSamplingPolicy)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Proxy.Num != 1 {
		t.Fatalf("unexpected default proxy.num: %d", cfg.Proxy.Num)
	}
	if cfg.Network.TCPBufferSize != 1<<20 {
		t.Fatalf("unexpected default tcp_buffer_size: %d", cfg.Network.TCPBufferSize)
	}
}

func TestLoadOverridesAndProxyEndpoints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxy.yaml")
	contents := `
proxy:
  num: 2
  namespace_id: 1
  interface: "0.0.0.0:9500"
proxy0:
  ip: 10.0.0.1
  coord_port: 9600
proxy1:
  ip: 10.0.0.2
  coord_port: 9601
data_distribution:
  policy: round_robin
recovery:
  chunk_scan_sampling_policy: stripe
misc:
  agent_list:
    - 10.1.0.1:9700
    - 10.1.0.2:9700
`
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Proxy.Interface != "0.0.0.0:9500" {
		t.Fatalf("unexpected interface override: %q", cfg.Proxy.Interface)
	}
	if len(cfg.Proxy.Endpoints) != 2 {
		t.Fatalf("expected 2 proxy endpoints, got %d: %+v", len(cfg.Proxy.Endpoints), cfg.Proxy.Endpoints)
	}
	if ep := cfg.Proxy.Endpoints[1]; ep.IP != "10.0.0.2" || ep.CoordPort != 9601 {
		t.Fatalf("unexpected proxy1 endpoint: %+v", ep)
	}
	if cfg.DataDistribution.Policy != placement.RoundRobin {
		t.Fatalf("expected RoundRobin policy, got %v", cfg.DataDistribution.Policy)
	}
	if cfg.Recovery.ChunkScanSamplingPolicy != workers.SamplingStripeLevel {
		t.Fatalf("expected SamplingStripeLevel, got %v", cfg.Recovery.ChunkScanSamplingPolicy)
	}
	if len(cfg.Misc.AgentList) != 2 || cfg.Misc.AgentList[1] != "10.1.0.2:9700" {
		t.Fatalf("unexpected agent list: %+v", cfg.Misc.AgentList)
	}
}

func TestLoadStorageClassDirectory(t *testing.T) {
	dir := t.TempDir()
	classDir := filepath.Join(dir, "classes")
	if err := os.Mkdir(classDir, 0700); err != nil {
		t.Fatal(err)
	}
	hot := "coding: rs\nn: 6\nk: 4\nf: 1\nmax_chunk_size: 1048576\ndefault: true\n"
	if err := os.WriteFile(filepath.Join(classDir, "hot.yaml"), []byte(hot), 0600); err != nil {
		t.Fatal(err)
	}
	cold := "coding: rs\nn: 10\nk: 6\nf: 2\nmax_chunk_size: 4194304\ndefault: false\n"
	if err := os.WriteFile(filepath.Join(classDir, "cold.yaml"), []byte(cold), 0600); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "proxy.yaml")
	contents := "proxy:\n  storage_class:\n    path: " + classDir + "\n"
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Proxy.StorageClasses) != 2 {
		t.Fatalf("expected 2 storage classes, got %d: %+v", len(cfg.Proxy.StorageClasses), cfg.Proxy.StorageClasses)
	}
	byName := map[string]StorageClassFile{}
	for _, c := range cfg.Proxy.StorageClasses {
		byName[c.Name] = c
	}
	if hot, ok := byName["hot"]; !ok || hot.N != 6 || hot.K != 4 || !hot.Default {
		t.Fatalf("unexpected hot class: %+v", byName["hot"])
	}
	if cold, ok := byName["cold"]; !ok || cold.MaxChunkSize != 4194304 || cold.Default {
		t.Fatalf("unexpected cold class: %+v", byName["cold"])
	}
}
