package wire

// SysInfo mirrors spec §6's `sysinfo` frame: "cpu_num(i8), cpu_usage[f32 x
// cpu_num], mem_total(u32), mem_free(u32), net_in(f64), net_out(f64),
// host_type(u8)". It travels in both the client protocol
// (GET_AGENT_STATUS_REQ, GET_PROXY_STATUS_REQ replies) and the
// proxy<->agent coordinator protocol (agentproto.GetSysinfoRep).
type SysInfo struct {
	CPUUsage []float32
	MemTotal uint32
	MemFree  uint32
	NetIn    float64
	NetOut   float64
	HostType byte
}

// FileListEntry is one entry of a GET_FILE_LIST_REQ reply (spec §6:
// "name size(u64) ctime atime mtime (u64 each)").
type FileListEntry struct {
	Name       string
	Size       uint64
	CreateTime uint64
	AccessTime uint64
	ModifyTime uint64
}

// ContainerEntry is one container's fields within a GET_AGENT_STATUS_REQ
// reply's per-agent block (spec §6: "container_ids[] container_type[]
// container_usage[] container_capacity[]").
type ContainerEntry struct {
	ID       int32
	Type     byte
	Usage    uint64
	Capacity uint64
}

// AgentEntry is one agent's block of a GET_AGENT_STATUS_REQ reply (spec
// §6: "alive(1) ip host_type(1) sysinfo num_containers(i32)
// container_ids[] ...").
type AgentEntry struct {
	Alive      bool
	IP         string
	HostType   byte
	Sysinfo    SysInfo
	Containers []ContainerEntry
}

// BgTaskEntry is one entry of a GET_BG_TASK_PRG_REQ reply (spec §6:
// "name progress(i32)").
type BgTaskEntry struct {
	Name     string
	Progress int32
}

// dataOrCachePath is the `is_cached(1) {cache_path | data}` alternative
// spec §6 repeats across WRITE/READ/APPEND/OVERWRITE/COPY: either the
// payload travels inline, or a staging-tier path names where the agent
// (or the caller, for a read) should find/leave it (spec §1 "staging
// tier" external collaborator).
type dataOrCachePath struct {
	IsCached  bool
	CachePath string
	Data      []byte
}

// Request is the decoded form of one client-protocol request: the
// opcode frame plus whichever of the following fields its opcode uses
// (spec §6 table). Unused fields for a given opcode are left zero.
type Request struct {
	Opcode Opcode

	NamespaceID byte
	Name        string
	OldName     string
	NewName     string
	DstName     string
	Prefix      string

	Size         uint64
	Offset       uint64
	StorageClass string

	IsCached  bool
	CachePath string
	Data      []byte
}

// Reply is the decoded form of one client-protocol reply. On failure
// (Opcode is a *_REP_FAIL mate) every other field is zero.
type Reply struct {
	Opcode Opcode

	Size   uint64
	Offset uint64

	IsCached  bool
	CachePath string
	Data      []byte

	UsageBytes    uint64
	CapacityBytes uint64
	FileCount     uint64
	FileLimit     uint64

	Length uint64

	Files []FileListEntry

	Agents []AgentEntry

	Sysinfo SysInfo

	BgTasks []BgTaskEntry

	RepairFileCount   uint64
	RepairRepairCount uint64
}
