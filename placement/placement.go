// Package placement implements component C: the container-to-agent
// registry, liveness tracking, and spare-container selection the chunk
// manager consults when placing or repairing chunks.
//
// Grounded on _examples/original_source/src/proxy/coordinator.hh/.cc (same
// responsibilities: agent registry, liveness check, find_spare,
// find_chunk_groups) and the Go idiom of a single-mutex registry guarded
// struct from _examples/wl4g-collect-goGFS's chunkServerManager.
package placement

import (
	"sync"
	"time"

	"github.com/uplo-tech/errors"
	"github.com/uplo-tech/threadgroup"
)

// InvalidContainerID is the sentinel value for a lost chunk's container id
// (spec §3 Invariants #1).
const InvalidContainerID = -1

// Policy selects the spare-container placement strategy (spec §4.3).
type Policy int

const (
	// Static prefers near agents, only falling back to the far-agent pool
	// when the near pool is exhausted.
	Static Policy = iota
	// RoundRobin advances the starting agent and per-agent starting
	// container index on every call.
	RoundRobin
	// LeastUsed iterates each agent's containers in ascending utilization.
	LeastUsed
)

var (
	// ErrInsufficientCapacity is returned when find_spare cannot satisfy
	// the requested count under the capacity/placement constraints.
	ErrInsufficientCapacity = errors.New("placement: insufficient capacity or eligible agents for spare selection")
)

// Container describes one storage container as registered by its owning
// agent (spec §3 Container).
type Container struct {
	ID       int
	AgentIP  string
	Type     byte
	Usage    uint64
	Capacity uint64
}

// Agent describes one storage agent and the containers it currently owns
// (spec §3 Agent).
type Agent struct {
	IP         string
	CoordPort  int
	HostType   byte
	Alive      bool
	Near       bool
	Containers []int

	startingContainerIdx int
	// containerUsage/containerCapacity/containerType are keyed by
	// container id for O(1) lookup during spare selection.
	containerUsage    map[int]uint64
	containerCapacity map[int]uint64
	containerType     map[int]byte
}

// Coordinator owns the agent registry and the container-to-agent map. All
// exported methods are safe for concurrent use (spec §5 "agents,
// container_to_agent guarded by a single mutex; short critical sections
// only").
type Coordinator struct {
	tg threadgroup.ThreadGroup

	mu               sync.Mutex
	agents           map[string]*Agent
	containerToAgent map[int]string

	startingAgentIdx int

	livenessCacheFor time.Duration
}

// New creates an empty coordinator. livenessCacheFor
// (misc.liveness_cache_time, spec §6) is stored on the coordinator but
// not consulted: CheckLiveness always reports the registry's current
// liveness flags.
func New(livenessCacheFor time.Duration) *Coordinator {
	return &Coordinator{
		agents:           make(map[string]*Agent),
		containerToAgent: make(map[int]string),
		livenessCacheFor: livenessCacheFor,
	}
}

// Close signals shutdown and waits for in-flight placement operations to
// finish (spec §5 shutdown description).
func (c *Coordinator) Close() error {
	return c.tg.Stop()
}

// RegisterAgent registers a batch of containers for the given agent
// address. A container id already owned by a different, reachable agent is
// rejected (spec §3 Container: "duplicate registration replaces the older
// mapping only if the previous owner is unreachable").
func (c *Coordinator) RegisterAgent(ip string, coordPort int, hostType byte, near bool, containers []Container) error {
	if err := c.tg.Add(); err != nil {
		return err
	}
	defer c.tg.Done()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ct := range containers {
		if owner, ok := c.containerToAgent[ct.ID]; ok && owner != ip {
			if prev, ok := c.agents[owner]; ok && prev.Alive {
				return errors.New("placement: container already owned by a reachable agent")
			}
		}
	}

	a, ok := c.agents[ip]
	if !ok {
		a = &Agent{
			IP:                ip,
			containerUsage:    make(map[int]uint64),
			containerCapacity: make(map[int]uint64),
			containerType:     make(map[int]byte),
		}
		c.agents[ip] = a
	}
	a.CoordPort = coordPort
	a.HostType = hostType
	a.Near = near
	a.Alive = true

	for _, ct := range containers {
		if prevOwner, ok := c.containerToAgent[ct.ID]; ok && prevOwner != ip {
			c.removeContainerLocked(prevOwner, ct.ID)
		}
		c.containerToAgent[ct.ID] = ip
		a.Containers = appendUnique(a.Containers, ct.ID)
		a.containerUsage[ct.ID] = ct.Usage
		a.containerCapacity[ct.ID] = ct.Capacity
		a.containerType[ct.ID] = ct.Type
	}
	return nil
}

func (c *Coordinator) removeContainerLocked(ip string, containerID int) {
	a, ok := c.agents[ip]
	if !ok {
		return
	}
	for i, id := range a.Containers {
		if id == containerID {
			a.Containers = append(a.Containers[:i], a.Containers[i+1:]...)
			break
		}
	}
	delete(a.containerUsage, containerID)
	delete(a.containerCapacity, containerID)
	delete(a.containerType, containerID)
}

func appendUnique(ids []int, id int) []int {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// SetAgentAlive marks an agent's liveness, used by the monitor loop on
// ping success/failure and by transport-error-triggered rechecks (spec
// §4.3 "Liveness is refreshed ... upon receipt of a transport disconnect
// event").
func (c *Coordinator) SetAgentAlive(ip string, alive bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.agents[ip]; ok {
		a.Alive = alive
	}
}

// UpdateContainerUsage refreshes one container's reported usage, called
// when an agent reports updated sysinfo.
func (c *Coordinator) UpdateContainerUsage(containerID int, usage uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ip, ok := c.containerToAgent[containerID]
	if !ok {
		return
	}
	if a, ok := c.agents[ip]; ok {
		a.containerUsage[containerID] = usage
	}
}

// AgentAddrFor resolves the owning agent's address for a container id,
// used by a chunkio.Dialer implementation to turn a container id into a
// connectable address (spec §4.2 "send(container_id, request)" names
// only the container id; resolving it to a socket is the dialer's job,
// spec §9 "agent addresses are looked up by id through the coordinator,
// not stored in the chunk").
func (c *Coordinator) AgentAddrFor(containerID int) (ip string, coordPort int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	agentIP, ok := c.containerToAgent[containerID]
	if !ok {
		return "", 0, false
	}
	a, ok := c.agents[agentIP]
	if !ok {
		return "", 0, false
	}
	return a.IP, a.CoordPort, true
}

// AgentSnapshot is a point-in-time, lock-free copy of one agent and its
// containers, for status reporting (spec §6 GET_AGENT_STATUS_REQ).
type AgentSnapshot struct {
	IP         string
	CoordPort  int
	HostType   byte
	Alive      bool
	Containers []Container
}

// Snapshot copies every registered agent and its containers under the
// registry lock, for GET_AGENT_STATUS_REQ (spec §6).
func (c *Coordinator) Snapshot() []AgentSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]AgentSnapshot, 0, len(c.agents))
	for ip, a := range c.agents {
		containers := make([]Container, 0, len(a.Containers))
		for _, id := range a.Containers {
			containers = append(containers, Container{
				ID:       id,
				AgentIP:  ip,
				Type:     a.containerType[id],
				Usage:    a.containerUsage[id],
				Capacity: a.containerCapacity[id],
			})
		}
		out = append(out, AgentSnapshot{
			IP:         ip,
			CoordPort:  a.CoordPort,
			HostType:   a.HostType,
			Alive:      a.Alive,
			Containers: containers,
		})
	}
	return out
}

// CheckLiveness sets status[i]=false when ids[i] is unmapped, its owning
// agent is down, or (if treatUnusedAsOffline) ids[i] equals unusedID. It
// returns the number of ids found failed (spec §4.3 check()).
func (c *Coordinator) CheckLiveness(ids []int, unusedID int, treatUnusedAsOffline bool) (status []bool, numFailed int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status = make([]bool, len(ids))
	for i, id := range ids {
		if treatUnusedAsOffline && id == unusedID {
			status[i] = false
			numFailed++
			continue
		}
		ip, ok := c.containerToAgent[id]
		if !ok {
			status[i] = false
			numFailed++
			continue
		}
		a, ok := c.agents[ip]
		if !ok || !a.Alive {
			status[i] = false
			numFailed++
			continue
		}
		status[i] = true
	}
	return status, numFailed
}
