package main

import (
	"testing"

	"github.com/nexoedge-go/proxy/config"
)

func TestCoordinatorAddrResolvesFromNamespaceID(t *testing.T) {
	var cfg config.Config
	cfg.Proxy.NamespaceID = 1
	cfg.Proxy.Endpoints = map[int]config.ProxyEndpoint{
		0: {IP: "10.0.0.1", CoordPort: 9600},
		1: {IP: "10.0.0.2", CoordPort: 9601},
	}

	addr, ok := coordinatorAddr(&cfg)
	if !ok {
		t.Fatal("expected an address to resolve")
	}
	if addr != "10.0.0.2:9601" {
		t.Fatalf("unexpected address: %q", addr)
	}
}

func TestCoordinatorAddrMissingEndpoint(t *testing.T) {
	var cfg config.Config
	cfg.Proxy.NamespaceID = 5
	cfg.Proxy.Endpoints = map[int]config.ProxyEndpoint{0: {IP: "10.0.0.1", CoordPort: 9600}}

	if _, ok := coordinatorAddr(&cfg); ok {
		t.Fatal("expected no address when namespace id has no proxyNN entry")
	}
}

func TestCoordinatorAddrZeroPort(t *testing.T) {
	var cfg config.Config
	cfg.Proxy.Endpoints = map[int]config.ProxyEndpoint{0: {IP: "10.0.0.1", CoordPort: 0}}

	if _, ok := coordinatorAddr(&cfg); ok {
		t.Fatal("expected no address for an unset coord_port")
	}
}

func TestNamespaceRangeCoversAllByteValues(t *testing.T) {
	ns := namespaceRange()
	if len(ns) != 256 {
		t.Fatalf("expected 256 namespace ids, got %d", len(ns))
	}
	if ns[0] != 0 || ns[255] != 255 {
		t.Fatalf("unexpected boundary values: first=%d last=%d", ns[0], ns[255])
	}
}
