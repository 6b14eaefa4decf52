package main

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	gopsnet "github.com/shirou/gopsutil/v3/net"

	"github.com/nexoedge-go/proxy/proxy"
)

// gopsutilHostInfo samples the local process's host the way spec §6's
// `sysinfo` frame wants it (per-cpu usage, free/total memory, cumulative
// network counters), the concrete proxy.HostInfoProvider cmd/proxy wires
// into GET_PROXY_STATUS_REQ.
type gopsutilHostInfo struct{}

func (h gopsutilHostInfo) HostInfo() proxy.HostInfo {
	info := proxy.HostInfo{}

	if pct, err := cpu.Percent(0, true); err == nil {
		info.CPUUsage = make([]float32, len(pct))
		for i, p := range pct {
			info.CPUUsage[i] = float32(p)
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemTotal = uint32(vm.Total / 1024)
		info.MemFree = uint32(vm.Available / 1024)
	}

	if counters, err := gopsnet.IOCounters(false); err == nil && len(counters) > 0 {
		info.NetIn = float64(counters[0].BytesRecv)
		info.NetOut = float64(counters[0].BytesSent)
	}

	return info
}
