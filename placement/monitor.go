package placement

import (
	"time"
)

// Pinger probes one agent's coordinator port and reports whether it
// answered. The chunkio package supplies the concrete implementation (a
// short-timeout coordinator-protocol round trip); placement stays
// transport-agnostic so it can be unit tested without a network.
type Pinger func(ip string, coordPort int) bool

// StartMonitor launches a background loop that pings every registered
// agent every interval and updates its liveness, mirroring
// _examples/original_source/src/common/coordinator.cc's pingAgents
// polling loop. The returned function stops the loop.
func (c *Coordinator) StartMonitor(interval time.Duration, ping Pinger) (stop func(), err error) {
	if err := c.tg.Add(); err != nil {
		return nil, err
	}

	stopCh := make(chan struct{})
	go func() {
		defer c.tg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-c.tg.StopChan():
				return
			case <-ticker.C:
				c.pingAll(ping)
			}
		}
	}()

	return func() { close(stopCh) }, nil
}

func (c *Coordinator) pingAll(ping Pinger) {
	c.mu.Lock()
	snapshot := make(map[string]int, len(c.agents))
	for ip, a := range c.agents {
		snapshot[ip] = a.CoordPort
	}
	c.mu.Unlock()

	for ip, port := range snapshot {
		alive := ping(ip, port)
		c.SetAgentAlive(ip, alive)
	}
}

// RegisterPresetAgents pre-populates the registry from a static list of
// (ip, coordPort, near) entries read at startup, before any agent has
// actively registered itself, matching registerPresetAgents in the
// original coordinator. Agents are marked alive optimistically; the next
// monitor tick corrects stale entries.
func (c *Coordinator) RegisterPresetAgents(entries []PresetAgent) error {
	if len(entries) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		if _, ok := c.agents[e.IP]; ok {
			continue
		}
		c.agents[e.IP] = &Agent{
			IP:                e.IP,
			CoordPort:         e.CoordPort,
			Near:              e.Near,
			Alive:             true,
			containerUsage:    make(map[int]uint64),
			containerCapacity: make(map[int]uint64),
			containerType:     make(map[int]byte),
		}
	}
	return nil
}

// PresetAgent is one statically configured agent entry (agents.preset in
// the proxy configuration, spec §6).
type PresetAgent struct {
	IP        string
	CoordPort int
	Near      bool
}
