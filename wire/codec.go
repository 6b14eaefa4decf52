package wire

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/uplo-tech/encoding"
	"github.com/uplo-tech/errors"
)

// ErrTransport wraps a connection-level failure reading or writing a
// frame, distinct from a decoded *_REP_FAIL reply.
var ErrTransport = errors.New("wire: transport error")

// frame is one length-prefixed byte frame, matching chunkio's codec
// idiom (spec §6: "a request and its reply are sequences of
// length-prefixed byte frames").
type frame []byte

func writeFrames(w io.Writer, frames []frame) error {
	for _, f := range frames {
		if _, err := w.Write(encoding.Marshal(uint64(len(f)))); err != nil {
			return errors.Compose(ErrTransport, err)
		}
		if len(f) == 0 {
			continue
		}
		if _, err := w.Write(f); err != nil {
			return errors.Compose(ErrTransport, err)
		}
	}
	return nil
}

func readFrameInto(r *bufio.Reader, v interface{}) error {
	var length uint64
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return errors.Compose(ErrTransport, err)
	}
	buf := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return errors.Compose(ErrTransport, err)
		}
	}
	if b, ok := v.(*[]byte); ok {
		*b = buf
		return nil
	}
	if err := encoding.Unmarshal(buf, v); err != nil {
		return errors.AddContext(err, "wire: decode frame")
	}
	return nil
}

func marshalDataOrCache(d dataOrCachePath) []frame {
	if d.IsCached {
		return []frame{encoding.Marshal(true), encoding.Marshal(d.CachePath)}
	}
	return []frame{encoding.Marshal(false), d.Data}
}

func readDataOrCache(r *bufio.Reader, d *dataOrCachePath) error {
	if err := readFrameInto(r, &d.IsCached); err != nil {
		return err
	}
	if d.IsCached {
		return readFrameInto(r, &d.CachePath)
	}
	return readFrameInto(r, &d.Data)
}

// EncodeRequest serializes req as the length-prefixed frame sequence a
// client sends for its opcode (spec §6 "Request frames after opcode"
// column).
func EncodeRequest(w io.Writer, req *Request) error {
	frames := []frame{encoding.Marshal(uint32(req.Opcode))}

	switch req.Opcode {
	case WriteFileReq:
		frames = append(frames,
			encoding.Marshal(req.NamespaceID),
			encoding.Marshal(req.Name),
			encoding.Marshal(req.Size),
			encoding.Marshal(req.StorageClass),
		)
		frames = append(frames, marshalDataOrCache(dataOrCachePath{req.IsCached, req.CachePath, req.Data})...)
	case ReadFileReq:
		frames = append(frames,
			encoding.Marshal(req.NamespaceID),
			encoding.Marshal(req.Name),
			encoding.Marshal(req.IsCached),
		)
		if req.IsCached {
			frames = append(frames, encoding.Marshal(req.CachePath))
		}
	case ReadFileRangeReq:
		frames = append(frames,
			encoding.Marshal(req.NamespaceID),
			encoding.Marshal(req.Name),
			encoding.Marshal(req.Size),
			encoding.Marshal(req.Offset),
		)
		frames = append(frames, marshalDataOrCache(dataOrCachePath{req.IsCached, req.CachePath, req.Data})...)
	case AppendFileReq, OverwriteFileReq:
		frames = append(frames,
			encoding.Marshal(req.NamespaceID),
			encoding.Marshal(req.Name),
			encoding.Marshal(req.Size),
			encoding.Marshal(req.Offset),
		)
		frames = append(frames, marshalDataOrCache(dataOrCachePath{req.IsCached, req.CachePath, req.Data})...)
	case DelFileReq:
		frames = append(frames,
			encoding.Marshal(req.NamespaceID),
			encoding.Marshal(req.Name),
		)
	case RenameFileReq:
		frames = append(frames,
			encoding.Marshal(req.NamespaceID),
			encoding.Marshal(req.OldName),
			encoding.Marshal(true), // is_cached=1, fixed per spec §6
			encoding.Marshal(req.NewName),
		)
	case CopyFileReq:
		frames = append(frames,
			encoding.Marshal(req.NamespaceID),
			encoding.Marshal(req.Name),
			encoding.Marshal(req.Size),
			encoding.Marshal(req.Offset),
			encoding.Marshal(true), // is_cached=1, fixed per spec §6
			encoding.Marshal(req.DstName),
		)
	case GetCapacityReq:
		// no further frames
	case GetFileListReq:
		frames = append(frames,
			encoding.Marshal(req.NamespaceID),
			encoding.Marshal(req.Prefix),
		)
	case GetAppendSizeReq:
		frames = append(frames, encoding.Marshal(req.StorageClass))
	case GetReadSizeReq:
		frames = append(frames,
			encoding.Marshal(req.NamespaceID),
			encoding.Marshal(req.Name),
		)
	case GetAgentStatusReq, GetProxyStatusReq, GetBgTaskPrgReq, GetRepairStatsReq:
		// no further frames
	}
	return writeFrames(w, frames)
}

// DecodeRequest reads one opcode-prefixed frame sequence from r and
// returns the decoded Request. The external wire I/O loop (spec §1,
// out of scope) is expected to call this once per accepted request.
func DecodeRequest(r io.Reader) (*Request, error) {
	br := bufio.NewReader(r)

	var opRaw uint32
	if err := readFrameInto(br, &opRaw); err != nil {
		return nil, errors.AddContext(err, "wire: read request opcode")
	}
	req := &Request{Opcode: Opcode(opRaw)}

	switch req.Opcode {
	case WriteFileReq:
		if err := readFields(br, &req.NamespaceID, &req.Name, &req.Size, &req.StorageClass); err != nil {
			return nil, err
		}
		d := dataOrCachePath{}
		if err := readDataOrCache(br, &d); err != nil {
			return nil, err
		}
		req.IsCached, req.CachePath, req.Data = d.IsCached, d.CachePath, d.Data
	case ReadFileReq:
		if err := readFields(br, &req.NamespaceID, &req.Name, &req.IsCached); err != nil {
			return nil, err
		}
		if req.IsCached {
			if err := readFrameInto(br, &req.CachePath); err != nil {
				return nil, err
			}
		}
	case ReadFileRangeReq:
		if err := readFields(br, &req.NamespaceID, &req.Name, &req.Size, &req.Offset); err != nil {
			return nil, err
		}
		d := dataOrCachePath{}
		if err := readDataOrCache(br, &d); err != nil {
			return nil, err
		}
		req.IsCached, req.CachePath, req.Data = d.IsCached, d.CachePath, d.Data
	case AppendFileReq, OverwriteFileReq:
		if err := readFields(br, &req.NamespaceID, &req.Name, &req.Size, &req.Offset); err != nil {
			return nil, err
		}
		d := dataOrCachePath{}
		if err := readDataOrCache(br, &d); err != nil {
			return nil, err
		}
		req.IsCached, req.CachePath, req.Data = d.IsCached, d.CachePath, d.Data
	case DelFileReq:
		if err := readFields(br, &req.NamespaceID, &req.Name); err != nil {
			return nil, err
		}
	case RenameFileReq:
		var isCached bool
		if err := readFields(br, &req.NamespaceID, &req.OldName, &isCached, &req.NewName); err != nil {
			return nil, err
		}
	case CopyFileReq:
		var isCached bool
		if err := readFields(br, &req.NamespaceID, &req.Name, &req.Size, &req.Offset, &isCached, &req.DstName); err != nil {
			return nil, err
		}
	case GetFileListReq:
		if err := readFields(br, &req.NamespaceID, &req.Prefix); err != nil {
			return nil, err
		}
	case GetAppendSizeReq:
		if err := readFields(br, &req.StorageClass); err != nil {
			return nil, err
		}
	case GetReadSizeReq:
		if err := readFields(br, &req.NamespaceID, &req.Name); err != nil {
			return nil, err
		}
	case GetCapacityReq, GetAgentStatusReq, GetProxyStatusReq, GetBgTaskPrgReq, GetRepairStatsReq:
		// no further frames
	}
	return req, nil
}

// readFields reads one frame into each of dst, in order, stopping at
// the first error.
func readFields(r *bufio.Reader, dst ...interface{}) error {
	for _, d := range dst {
		if err := readFrameInto(r, d); err != nil {
			return err
		}
	}
	return nil
}

func marshalSysinfo(s SysInfo) []frame {
	return []frame{
		encoding.Marshal(int8(len(s.CPUUsage))),
		encoding.Marshal(s.CPUUsage),
		encoding.Marshal(s.MemTotal),
		encoding.Marshal(s.MemFree),
		encoding.Marshal(s.NetIn),
		encoding.Marshal(s.NetOut),
		encoding.Marshal(s.HostType),
	}
}

func readSysinfo(r *bufio.Reader, s *SysInfo) error {
	var cpuNum int8
	if err := readFrameInto(r, &cpuNum); err != nil {
		return err
	}
	if err := readFrameInto(r, &s.CPUUsage); err != nil {
		return err
	}
	return readFields(r, &s.MemTotal, &s.MemFree, &s.NetIn, &s.NetOut, &s.HostType)
}

// EncodeReply serializes a success reply for op, or the *_REP_FAIL mate
// when reply is nil (spec §6: "Reply frames for failed operations
// consist of exactly one opcode frame with the *_FAIL mate").
func EncodeReply(w io.Writer, op Opcode, reply *Reply) error {
	if reply == nil {
		return writeFrames(w, []frame{encoding.Marshal(uint32(op.FailMate()))})
	}

	frames := []frame{encoding.Marshal(uint32(reply.Opcode))}
	switch reply.Opcode {
	case WriteFileRepSuccess, DelFileRepSuccess, RenameFileRepSuccess:
		// opcode frame only
	case ReadFileRepSuccess:
		frames = append(frames, encoding.Marshal(reply.Size))
		frames = append(frames, marshalDataOrCache(dataOrCachePath{reply.IsCached, reply.CachePath, reply.Data})...)
	case ReadFileRangeRepSuccess:
		frames = append(frames, encoding.Marshal(reply.Offset), encoding.Marshal(reply.Size))
		frames = append(frames, marshalDataOrCache(dataOrCachePath{reply.IsCached, reply.CachePath, reply.Data})...)
	case AppendFileRepSuccess, OverwriteFileRepSuccess, CopyFileRepSuccess:
		frames = append(frames, encoding.Marshal(reply.Size))
	case GetCapacityRepSuccess:
		frames = append(frames,
			encoding.Marshal(reply.UsageBytes),
			encoding.Marshal(reply.CapacityBytes),
			encoding.Marshal(reply.FileCount),
			encoding.Marshal(reply.FileLimit),
		)
	case GetFileListRepSuccess:
		frames = append(frames, encoding.Marshal(uint32(len(reply.Files))))
		for _, f := range reply.Files {
			frames = append(frames,
				encoding.Marshal(f.Name),
				encoding.Marshal(f.Size),
				encoding.Marshal(f.CreateTime),
				encoding.Marshal(f.AccessTime),
				encoding.Marshal(f.ModifyTime),
			)
		}
	case GetAppendSizeRepSuccess, GetReadSizeRepSuccess:
		frames = append(frames, encoding.Marshal(reply.Length))
	case GetAgentStatusRepSuccess:
		frames = append(frames, encoding.Marshal(uint32(len(reply.Agents))))
		for _, a := range reply.Agents {
			frames = append(frames,
				encoding.Marshal(a.Alive),
				encoding.Marshal(a.IP),
				encoding.Marshal(a.HostType),
			)
			frames = append(frames, marshalSysinfo(a.Sysinfo)...)
			frames = append(frames, encoding.Marshal(int32(len(a.Containers))))
			ids := make([]int32, len(a.Containers))
			types := make([]byte, len(a.Containers))
			usages := make([]uint64, len(a.Containers))
			caps := make([]uint64, len(a.Containers))
			for i, c := range a.Containers {
				ids[i], types[i], usages[i], caps[i] = c.ID, c.Type, c.Usage, c.Capacity
			}
			frames = append(frames,
				encoding.Marshal(ids),
				encoding.Marshal(types),
				encoding.Marshal(usages),
				encoding.Marshal(caps),
			)
		}
	case GetBgTaskPrgRepSuccess:
		frames = append(frames, encoding.Marshal(uint32(len(reply.BgTasks))))
		for _, t := range reply.BgTasks {
			frames = append(frames, encoding.Marshal(t.Name), encoding.Marshal(t.Progress))
		}
	case GetRepairStatsRepSuccess:
		frames = append(frames, encoding.Marshal(reply.RepairFileCount), encoding.Marshal(reply.RepairRepairCount))
	case GetProxyStatusRepSuccess:
		frames = append(frames, marshalSysinfo(reply.Sysinfo)...)
	}
	return writeFrames(w, frames)
}

// DecodeReply reads exactly one opcode frame and, on success, the
// opcode's success-mate frames, from r (spec §6).
func DecodeReply(r io.Reader) (*Reply, error) {
	br := bufio.NewReader(r)

	var opRaw uint32
	if err := readFrameInto(br, &opRaw); err != nil {
		return nil, errors.AddContext(err, "wire: read reply opcode")
	}
	reply := &Reply{Opcode: Opcode(opRaw)}
	if !reply.Opcode.IsSuccess() {
		return reply, nil
	}

	switch reply.Opcode {
	case ReadFileRepSuccess:
		if err := readFrameInto(br, &reply.Size); err != nil {
			return nil, err
		}
		d := dataOrCachePath{}
		if err := readDataOrCache(br, &d); err != nil {
			return nil, err
		}
		reply.IsCached, reply.CachePath, reply.Data = d.IsCached, d.CachePath, d.Data
	case ReadFileRangeRepSuccess:
		if err := readFields(br, &reply.Offset, &reply.Size); err != nil {
			return nil, err
		}
		d := dataOrCachePath{}
		if err := readDataOrCache(br, &d); err != nil {
			return nil, err
		}
		reply.IsCached, reply.CachePath, reply.Data = d.IsCached, d.CachePath, d.Data
	case AppendFileRepSuccess, OverwriteFileRepSuccess, CopyFileRepSuccess:
		if err := readFrameInto(br, &reply.Size); err != nil {
			return nil, err
		}
	case GetCapacityRepSuccess:
		if err := readFields(br, &reply.UsageBytes, &reply.CapacityBytes, &reply.FileCount, &reply.FileLimit); err != nil {
			return nil, err
		}
	case GetFileListRepSuccess:
		var total uint32
		if err := readFrameInto(br, &total); err != nil {
			return nil, err
		}
		reply.Files = make([]FileListEntry, total)
		for i := range reply.Files {
			f := &reply.Files[i]
			if err := readFields(br, &f.Name, &f.Size, &f.CreateTime, &f.AccessTime, &f.ModifyTime); err != nil {
				return nil, err
			}
		}
	case GetAppendSizeRepSuccess, GetReadSizeRepSuccess:
		if err := readFrameInto(br, &reply.Length); err != nil {
			return nil, err
		}
	case GetAgentStatusRepSuccess:
		var total uint32
		if err := readFrameInto(br, &total); err != nil {
			return nil, err
		}
		reply.Agents = make([]AgentEntry, total)
		for i := range reply.Agents {
			a := &reply.Agents[i]
			if err := readFields(br, &a.Alive, &a.IP, &a.HostType); err != nil {
				return nil, err
			}
			if err := readSysinfo(br, &a.Sysinfo); err != nil {
				return nil, err
			}
			var numContainers int32
			if err := readFrameInto(br, &numContainers); err != nil {
				return nil, err
			}
			var ids []int32
			var types []byte
			var usages, caps []uint64
			if err := readFields(br, &ids, &types, &usages, &caps); err != nil {
				return nil, err
			}
			a.Containers = make([]ContainerEntry, numContainers)
			for j := range a.Containers {
				a.Containers[j] = ContainerEntry{ID: ids[j], Type: types[j], Usage: usages[j], Capacity: caps[j]}
			}
		}
	case GetBgTaskPrgRepSuccess:
		var total uint32
		if err := readFrameInto(br, &total); err != nil {
			return nil, err
		}
		reply.BgTasks = make([]BgTaskEntry, total)
		for i := range reply.BgTasks {
			t := &reply.BgTasks[i]
			if err := readFields(br, &t.Name, &t.Progress); err != nil {
				return nil, err
			}
		}
	case GetRepairStatsRepSuccess:
		if err := readFields(br, &reply.RepairFileCount, &reply.RepairRepairCount); err != nil {
			return nil, err
		}
	case GetProxyStatusRepSuccess:
		if err := readSysinfo(br, &reply.Sysinfo); err != nil {
			return nil, err
		}
	}
	return reply, nil
}
