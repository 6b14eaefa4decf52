package main

import (
	"github.com/uplo-tech/errors"

	"github.com/nexoedge-go/proxy/proxy"
	"github.com/nexoedge-go/proxy/wire"
)

var errUnknownOpcode = errors.New("cmd/proxy: unrecognized request opcode")

// dispatch runs one decoded request against px and builds the matching
// success reply, or returns an error so the caller can write the
// opcode's fail mate instead (spec §6 reply table).
func dispatch(req *wire.Request, px *proxy.Proxy) (*wire.Reply, error) {
	switch req.Opcode {
	case wire.WriteFileReq:
		if _, err := px.Write(req.NamespaceID, req.Name, req.Data, req.StorageClass); err != nil {
			return nil, err
		}
		return &wire.Reply{Opcode: wire.WriteFileRepSuccess}, nil

	case wire.ReadFileReq:
		data, _, err := px.Read(req.NamespaceID, req.Name)
		if err != nil {
			return nil, err
		}
		return &wire.Reply{Opcode: wire.ReadFileRepSuccess, Size: uint64(len(data)), Data: data}, nil

	case wire.ReadFileRangeReq:
		data, err := px.ReadPartial(req.NamespaceID, req.Name, int64(req.Offset), int64(req.Size))
		if err != nil {
			return nil, err
		}
		return &wire.Reply{Opcode: wire.ReadFileRangeRepSuccess, Offset: req.Offset, Size: uint64(len(data)), Data: data}, nil

	case wire.GetReadSizeReq:
		size, err := px.GetExpectedReadSize(req.NamespaceID, req.Name)
		if err != nil {
			return nil, err
		}
		return &wire.Reply{Opcode: wire.GetReadSizeRepSuccess, Length: uint64(size)}, nil

	case wire.AppendFileReq:
		obj, err := px.Append(req.NamespaceID, req.Name, int64(req.Offset), req.Data)
		if err != nil {
			return nil, err
		}
		return &wire.Reply{Opcode: wire.AppendFileRepSuccess, Size: uint64(obj.Size)}, nil

	case wire.GetAppendSizeReq:
		size, err := px.GetExpectedAppendSize(req.StorageClass)
		if err != nil {
			return nil, err
		}
		return &wire.Reply{Opcode: wire.GetAppendSizeRepSuccess, Length: uint64(size)}, nil

	case wire.OverwriteFileReq:
		obj, err := px.Overwrite(req.NamespaceID, req.Name, int64(req.Offset), req.Data)
		if err != nil {
			return nil, err
		}
		return &wire.Reply{Opcode: wire.OverwriteFileRepSuccess, Size: uint64(obj.Size)}, nil

	case wire.DelFileReq:
		if err := px.Delete(req.NamespaceID, req.Name, -1); err != nil {
			return nil, err
		}
		return &wire.Reply{Opcode: wire.DelFileRepSuccess}, nil

	case wire.RenameFileReq:
		if err := px.Rename(req.NamespaceID, req.OldName, req.NewName); err != nil {
			return nil, err
		}
		return &wire.Reply{Opcode: wire.RenameFileRepSuccess}, nil

	case wire.CopyFileReq:
		// req.Offset doubles as the destination namespace id for this
		// opcode (wire/codec.go CopyFileReq frame layout).
		obj, err := px.Copy(req.NamespaceID, req.Name, byte(req.Offset), req.DstName)
		if err != nil {
			return nil, err
		}
		return &wire.Reply{Opcode: wire.CopyFileRepSuccess, Size: uint64(obj.Size)}, nil

	case wire.GetCapacityReq:
		usage, err := px.GetStorageUsage(namespaceRange(), 0)
		if err != nil {
			return nil, err
		}
		return &wire.Reply{
			Opcode:        wire.GetCapacityRepSuccess,
			UsageBytes:    usage.UsageBytes,
			CapacityBytes: usage.CapacityBytes,
			FileCount:     usage.FileCount,
			FileLimit:     usage.FileLimit,
		}, nil

	case wire.GetFileListReq:
		files, err := px.ListFiles(req.NamespaceID, req.Prefix)
		if err != nil {
			return nil, err
		}
		entries := make([]wire.FileListEntry, len(files))
		for i, f := range files {
			entries[i] = wire.FileListEntry{
				Name:       f.Name,
				Size:       uint64(f.Size),
				CreateTime: uint64(f.CreateTime),
				AccessTime: uint64(f.AccessTime),
				ModifyTime: uint64(f.ModifyTime),
			}
		}
		return &wire.Reply{Opcode: wire.GetFileListRepSuccess, Files: entries}, nil

	case wire.GetAgentStatusReq:
		agents := px.GetAgentStatus()
		entries := make([]wire.AgentEntry, len(agents))
		for i, a := range agents {
			containers := make([]wire.ContainerEntry, len(a.Containers))
			for j, c := range a.Containers {
				containers[j] = wire.ContainerEntry{ID: int32(c.ID), Type: c.Type, Usage: c.Usage, Capacity: c.Capacity}
			}
			entries[i] = wire.AgentEntry{Alive: a.Alive, IP: a.IP, HostType: a.HostType, Containers: containers}
		}
		return &wire.Reply{Opcode: wire.GetAgentStatusRepSuccess, Agents: entries}, nil

	case wire.GetBgTaskPrgReq:
		tasks := px.GetBgTaskProgress()
		entries := make([]wire.BgTaskEntry, len(tasks))
		for i, t := range tasks {
			entries[i] = wire.BgTaskEntry{Name: t.Name, Progress: t.Progress}
		}
		return &wire.Reply{Opcode: wire.GetBgTaskPrgRepSuccess, BgTasks: entries}, nil

	case wire.GetRepairStatsReq:
		n, err := px.NumToRepair(namespaceRange())
		if err != nil {
			return nil, err
		}
		return &wire.Reply{Opcode: wire.GetRepairStatsRepSuccess, RepairRepairCount: uint64(n)}, nil

	case wire.GetProxyStatusReq:
		info := px.GetProxyStatus()
		return &wire.Reply{
			Opcode: wire.GetProxyStatusRepSuccess,
			Sysinfo: wire.SysInfo{
				CPUUsage: info.CPUUsage,
				MemTotal: info.MemTotal,
				MemFree:  info.MemFree,
				NetIn:    info.NetIn,
				NetOut:   info.NetOut,
				HostType: info.HostType,
			},
		}, nil

	default:
		return nil, errUnknownOpcode
	}
}
