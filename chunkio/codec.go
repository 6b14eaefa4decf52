package chunkio

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/uplo-tech/encoding"
	"github.com/uplo-tech/errors"
)

// encodeRequest turns a Request into the length-prefixed frame sequence
// spec §6 describes: opcode frame first, then zero or more frames whose
// presence depends on the opcode.
func encodeRequest(req *Request) []frame {
	frames := []frame{encoding.Marshal(uint32(req.Opcode))}

	switch req.Opcode {
	case PutChunkReq:
		frames = append(frames,
			encoding.Marshal(uint64(req.ContainerID)),
			encoding.Marshal(req.Chunk),
			req.ChunkData,
			encoding.Marshal(req.VerifyMD5),
			req.ChunkMD5[:],
		)
	case GetChunkReq:
		frames = append(frames,
			encoding.Marshal(uint64(req.ContainerID)),
			encoding.Marshal(req.Chunk),
			encoding.Marshal(req.FileVersion),
		)
	case DelChunkReq:
		frames = append(frames,
			encoding.Marshal(uint64(req.ContainerID)),
			encoding.Marshal(req.Chunk),
		)
	case CpyChunkReq, MovChunkReq:
		frames = append(frames,
			encoding.Marshal(uint64(req.SourceContainerID)),
			encoding.Marshal(req.SrcChunk),
			encoding.Marshal(uint64(req.ContainerID)),
			encoding.Marshal(req.Chunk),
		)
	case RprChunkReq:
		frames = append(frames,
			encoding.Marshal(uint64(req.ContainerID)),
			encoding.Marshal(req.Chunk),
			req.CodingMeta,
			req.RepairMatrix,
			encoding.Marshal(req.ChunkGroupMap),
			encoding.Marshal(req.AgentAddresses),
		)
	case EncChunkReq:
		frames = append(frames,
			encoding.Marshal(intSliceToUint64(req.ChunkIDs)),
			req.CodingMeta,
			req.RepairMatrix,
		)
	case ChkChunkReq, VrfChunkReq:
		frames = append(frames,
			encoding.Marshal(intSliceToUint64(req.ChunkIDs)),
			encoding.Marshal(intSliceToUint64(req.ContainerIDs)),
		)
	case RvtChunkReq:
		frames = append(frames,
			encoding.Marshal(uint64(req.ContainerID)),
			encoding.Marshal(req.Chunk),
			encoding.Marshal(req.FileVersion),
		)
	}
	return frames
}

func intSliceToUint64(in []int) []uint64 {
	out := make([]uint64, len(in))
	for i, v := range in {
		out[i] = uint64(v)
	}
	return out
}

// readReply reads exactly one opcode frame and, on success, the opcode's
// success-mate frames, from r.
func readReply(r io.Reader) (*Reply, error) {
	br := bufio.NewReader(r)

	var opRaw uint32
	if err := readFrameInto(br, &opRaw); err != nil {
		return nil, errors.AddContext(err, "chunkio: read reply opcode")
	}
	reply := &Reply{Opcode: Opcode(opRaw)}
	if !reply.Opcode.IsSuccess() {
		return reply, nil
	}

	switch reply.Opcode {
	case PutChunkRepSuccess:
		if err := readFrameInto(br, &reply.Size); err != nil {
			return nil, err
		}
		if err := readFrameInto(br, &reply.ChunkMD5); err != nil {
			return nil, err
		}
	case GetChunkRepSuccess, CpyChunkRepSuccess:
		var data []byte
		if err := readFrameInto(br, &data); err != nil {
			return nil, err
		}
		reply.ChunkData = data
		if err := readFrameInto(br, &reply.ChunkMD5); err != nil {
			return nil, err
		}
	case ChkChunkRepSuccess, VrfChunkRepSuccess:
		var corrupted []uint64
		if err := readFrameInto(br, &corrupted); err != nil {
			return nil, err
		}
		reply.Corrupted = make([]int, len(corrupted))
		for i, v := range corrupted {
			reply.Corrupted[i] = int(v)
		}
	}
	return reply, nil
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
		return errors.AddContext(err, "chunkio: decode frame")
	}
	return nil
}
