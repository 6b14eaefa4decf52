package agentproto

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/uplo-tech/encoding"
	"github.com/uplo-tech/errors"
)

// ErrTransport wraps a connection-level failure distinct from a decoded
// rejection (RegResult.Accepted == false).
var ErrTransport = errors.New("agentproto: transport error")

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
		return errors.AddContext(err, "agentproto: decode frame")
	}
	return nil
}

func readFields(r *bufio.Reader, dst ...interface{}) error {
	for _, d := range dst {
		if err := readFrameInto(r, d); err != nil {
			return err
		}
	}
	return nil
}

func marshalContainers(cs []ContainerDecl) []frame {
	ids := make([]int32, len(cs))
	types := make([]byte, len(cs))
	usages := make([]uint64, len(cs))
	caps := make([]uint64, len(cs))
	for i, c := range cs {
		ids[i], types[i], usages[i], caps[i] = c.ID, c.Type, c.Usage, c.Capacity
	}
	return []frame{
		encoding.Marshal(int32(len(cs))),
		encoding.Marshal(ids),
		encoding.Marshal(types),
		encoding.Marshal(usages),
		encoding.Marshal(caps),
	}
}

func readContainers(r *bufio.Reader) ([]ContainerDecl, error) {
	var count int32
	if err := readFrameInto(r, &count); err != nil {
		return nil, err
	}
	var ids []int32
	var types []byte
	var usages, caps []uint64
	if err := readFields(r, &ids, &types, &usages, &caps); err != nil {
		return nil, err
	}
	out := make([]ContainerDecl, count)
	for i := range out {
		out[i] = ContainerDecl{ID: ids[i], Type: types[i], Usage: usages[i], Capacity: caps[i]}
	}
	return out, nil
}

func marshalSysinfo(s Sysinfo) []frame {
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

func readSysinfo(r *bufio.Reader) (Sysinfo, error) {
	var s Sysinfo
	var cpuNum int8
	if err := readFrameInto(r, &cpuNum); err != nil {
		return s, err
	}
	if err := readFrameInto(r, &s.CPUUsage); err != nil {
		return s, err
	}
	err := readFields(r, &s.MemTotal, &s.MemFree, &s.NetIn, &s.NetOut, &s.HostType)
	return s, err
}

// EncodeRegisterAgent writes a REG_AGENT_REQ message.
func EncodeRegisterAgent(w io.Writer, m RegisterAgent) error {
	frames := []frame{
		encoding.Marshal(uint32(RegAgentReq)),
		encoding.Marshal(m.AgentID),
		encoding.Marshal(m.HostType),
		encoding.Marshal(m.Address),
		encoding.Marshal(m.CoordPort),
	}
	frames = append(frames, marshalContainers(m.Containers)...)
	return writeFrames(w, frames)
}

// DecodeRegisterAgent reads a REG_AGENT_REQ message body (the opcode
// frame must already have been consumed and matched by the caller's
// dispatch loop, mirroring chunkio/wire's split between opcode framing
// and payload decode).
func DecodeRegisterAgent(r io.Reader) (RegisterAgent, error) {
	br := bufio.NewReader(r)
	var m RegisterAgent
	if err := readFields(br, &m.AgentID, &m.HostType, &m.Address, &m.CoordPort); err != nil {
		return m, err
	}
	containers, err := readContainers(br)
	if err != nil {
		return m, err
	}
	m.Containers = containers
	return m, nil
}

// EncodeUpdateAgent writes an UPD_AGENT_REQ message.
func EncodeUpdateAgent(w io.Writer, m UpdateAgent) error {
	frames := []frame{
		encoding.Marshal(uint32(UpdAgentReq)),
		encoding.Marshal(m.AgentID),
	}
	frames = append(frames, marshalContainers(m.Containers)...)
	return writeFrames(w, frames)
}

// DecodeUpdateAgent reads an UPD_AGENT_REQ message body.
func DecodeUpdateAgent(r io.Reader) (UpdateAgent, error) {
	br := bufio.NewReader(r)
	var m UpdateAgent
	if err := readFrameInto(br, &m.AgentID); err != nil {
		return m, err
	}
	containers, err := readContainers(br)
	if err != nil {
		return m, err
	}
	m.Containers = containers
	return m, nil
}

// EncodeRegResult writes a REG_AGENT_REP/UPD_AGENT_REP message. op
// selects which mate to emit.
func EncodeRegResult(w io.Writer, op Opcode, res RegResult) error {
	return writeFrames(w, []frame{
		encoding.Marshal(uint32(op)),
		encoding.Marshal(res.Accepted),
		encoding.Marshal(res.Reason),
	})
}

// DecodeRegResult reads a REG_AGENT_REP/UPD_AGENT_REP message body.
func DecodeRegResult(r io.Reader) (RegResult, error) {
	br := bufio.NewReader(r)
	var res RegResult
	err := readFields(br, &res.Accepted, &res.Reason)
	return res, err
}

// EncodePing writes the opcode-only SYN_PING or ACK_PING frame (spec §6
// "keepalive").
func EncodePing(w io.Writer, op Opcode) error {
	return writeFrames(w, []frame{encoding.Marshal(uint32(op))})
}

// EncodeSysinfoReq writes the opcode-only GET_SYSINFO_REQ frame.
func EncodeSysinfoReq(w io.Writer) error {
	return writeFrames(w, []frame{encoding.Marshal(uint32(GetSysinfoReq))})
}

// EncodeSysinfoRep writes a GET_SYSINFO_REP message.
func EncodeSysinfoRep(w io.Writer, s Sysinfo) error {
	frames := append([]frame{encoding.Marshal(uint32(GetSysinfoRep))}, marshalSysinfo(s)...)
	return writeFrames(w, frames)
}

// DecodeSysinfoRep reads a GET_SYSINFO_REP message body.
func DecodeSysinfoRep(r io.Reader) (Sysinfo, error) {
	return readSysinfo(bufio.NewReader(r))
}

// ReadOpcode reads just the leading opcode frame, letting a dispatch
// loop decide which Decode* function to call next for the remaining
// frames.
func ReadOpcode(r io.Reader) (Opcode, *bufio.Reader, error) {
	br := bufio.NewReader(r)
	var opRaw uint32
	if err := readFrameInto(br, &opRaw); err != nil {
		return 0, nil, err
	}
	return Opcode(opRaw), br, nil
}
