package proxy

// FileInfo is one entry of a list_files reply (spec §6
// GET_FILE_LIST_REQ: "name size(u64) ctime atime mtime").
type FileInfo struct {
	Name       string
	Size       int64
	CreateTime int64
	AccessTime int64
	ModifyTime int64
}

// ListFiles returns every current-version object under namespaceID
// whose name has the given prefix (spec §4.6 "list_files").
func (p *Proxy) ListFiles(namespaceID byte, prefix string) ([]FileInfo, error) {
	objs, err := p.store.List(namespaceID, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]FileInfo, 0, len(objs))
	for _, obj := range objs {
		out = append(out, FileInfo{
			Name:       obj.Name,
			Size:       obj.Size,
			CreateTime: obj.CreateTime.Unix(),
			AccessTime: obj.AccessTime.Unix(),
			ModifyTime: obj.ModifyTime.Unix(),
		})
	}
	return out, nil
}

// StorageUsage is the reply shape of `GET_CAPACITY_REQ` (spec §6:
// "usage(u64) capacity(u64) file_count(u64) file_limit(u64)").
type StorageUsage struct {
	UsageBytes    uint64
	CapacityBytes uint64
	FileCount     uint64
	FileLimit     uint64
}

// GetStorageUsage aggregates capacity and usage across every registered
// container and counts files across namespaces (spec §4.6
// "get_storage_usage"). fileLimit is a configured ceiling, 0 meaning
// unbounded.
func (p *Proxy) GetStorageUsage(namespaces []byte, fileLimit uint64) (StorageUsage, error) {
	var usage StorageUsage
	usage.FileLimit = fileLimit
	for _, a := range p.place.Snapshot() {
		for _, c := range a.Containers {
			usage.UsageBytes += c.Usage
			usage.CapacityBytes += c.Capacity
		}
	}
	for _, ns := range namespaces {
		objs, err := p.store.List(ns, "")
		if err != nil {
			return StorageUsage{}, err
		}
		usage.FileCount += uint64(len(objs))
	}
	return usage, nil
}

// ContainerStatus is one container entry of a GET_AGENT_STATUS_REQ reply.
type ContainerStatus struct {
	ID       int
	Type     byte
	Usage    uint64
	Capacity uint64
}

// AgentStatus is one agent entry of a GET_AGENT_STATUS_REQ reply (spec
// §6: "alive(1) ip host_type(1) sysinfo num_containers(i32)
// container_ids[] ...").
type AgentStatus struct {
	IP         string
	Alive      bool
	HostType   byte
	Containers []ContainerStatus
}

// GetAgentStatus reports every registered agent and its containers
// (spec §4.6 "get_agent_status").
func (p *Proxy) GetAgentStatus() []AgentStatus {
	snap := p.place.Snapshot()
	out := make([]AgentStatus, 0, len(snap))
	for _, a := range snap {
		containers := make([]ContainerStatus, 0, len(a.Containers))
		for _, c := range a.Containers {
			containers = append(containers, ContainerStatus{ID: c.ID, Type: c.Type, Usage: c.Usage, Capacity: c.Capacity})
		}
		out = append(out, AgentStatus{IP: a.IP, Alive: a.Alive, HostType: a.HostType, Containers: containers})
	}
	return out
}

// HostInfo is the proxy process's own `sysinfo` frame (spec §6:
// "cpu_num(i8), cpu_usage[f32 x cpu_num], mem_total(u32), mem_free(u32),
// net_in(f64), net_out(f64), host_type(u8)"). Gathering real host stats
// is an external collaborator's job (spec §1); HostInfoProvider is the
// hook cmd/proxy wires a real sampler into.
type HostInfo struct {
	CPUUsage []float32
	MemTotal uint32
	MemFree  uint32
	NetIn    float64
	NetOut   float64
	HostType byte
}

// HostInfoProvider reports the local process's resource usage.
type HostInfoProvider interface {
	HostInfo() HostInfo
}

// SetHostInfoProvider wires the sampler GetProxyStatus reports through.
// A nil provider (the default) reports a zero-valued HostInfo.
func (p *Proxy) SetHostInfoProvider(provider HostInfoProvider) {
	p.host = provider
}

// GetProxyStatus returns the proxy process's own resource snapshot
// (spec §6 "GET_PROXY_STATUS_REQ").
func (p *Proxy) GetProxyStatus() HostInfo {
	if p.host == nil {
		return HostInfo{}
	}
	return p.host.HostInfo()
}

// BgTaskStatus is one entry of a GET_BG_TASK_PRG_REQ reply (spec §6:
// "name progress(i32)").
type BgTaskStatus struct {
	Name     string
	Progress int32
}

// BgTaskReporter is implemented by a background worker that can report
// its own progress; cmd/proxy registers adapters over the workers
// package's RepairWorker/ChecksumScanner/etc. for get_bg_task_progress.
type BgTaskReporter interface {
	Name() string
	Progress() int32
}

// RegisterBgTask adds a reporter consulted by GetBgTaskProgress.
func (p *Proxy) RegisterBgTask(r BgTaskReporter) {
	p.bgTasks = append(p.bgTasks, r)
}

// GetBgTaskProgress returns every registered background task's current
// progress (spec §4.6 "get_bg_task_progress").
func (p *Proxy) GetBgTaskProgress() []BgTaskStatus {
	out := make([]BgTaskStatus, 0, len(p.bgTasks))
	for _, t := range p.bgTasks {
		out = append(out, BgTaskStatus{Name: t.Name(), Progress: t.Progress()})
	}
	return out
}
