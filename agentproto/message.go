package agentproto

import (
	"github.com/nexoedge-go/proxy/wire"
)

// ContainerDecl is one container an agent declares at registration or
// update time (spec §6 "per-container: id, type, usage, capacity").
type ContainerDecl struct {
	ID       int32
	Type     byte
	Usage    uint64
	Capacity uint64
}

// RegisterAgent is the decoded REG_AGENT_REQ body (spec §6: "agent id,
// host type, address, coord port, container count, then per-container
// ...").
type RegisterAgent struct {
	AgentID    string
	HostType   byte
	Address    string
	CoordPort  int32
	Containers []ContainerDecl
}

// UpdateAgent is the decoded UPD_AGENT_REQ body: the same per-container
// declaration list as registration, replacing the agent's previously
// reported set (spec §6 "UPD_AGENT_REQ/REP updates that list").
type UpdateAgent struct {
	AgentID    string
	Containers []ContainerDecl
}

// RegResult is the decoded REG_AGENT_REP / UPD_AGENT_REP body: whether
// the registry accepted the declaration, and - on rejection - why (spec
// §3 Container: "duplicate registration replaces the older mapping only
// if the previous owner is unreachable").
type RegResult struct {
	Accepted bool
	Reason   string
}

// Sysinfo is the GET_SYSINFO_REP body, the same `sysinfo` shape spec §6
// defines once and reuses across both protocols.
type Sysinfo = wire.SysInfo
