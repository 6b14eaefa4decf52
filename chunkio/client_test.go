package chunkio

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/uplo-tech/encoding"
)

// fakeAgent drains exactly numRequestFrames length-prefixed frames off
// conn, then writes back replyFrames, mimicking a single request/reply
// agent round trip. net.Pipe is synchronous, so every request frame the
// client writes must be read before the agent's reply can be written.
func fakeAgent(t *testing.T, conn net.Conn, numRequestFrames int, replyFrames [][]byte) {
	t.Helper()
	go func() {
		defer conn.Close()
		buf := make([]byte, 65536)
		conn.SetDeadline(time.Now().Add(2 * time.Second))
		for i := 0; i < numRequestFrames; i++ {
			var length uint64
			if err := binary.Read(conn, binary.LittleEndian, &length); err != nil {
				return
			}
			if length == 0 {
				continue
			}
			if int(length) > len(buf) {
				buf = make([]byte, length)
			}
			if _, err := readFull(conn, buf[:length]); err != nil {
				return
			}
		}

		for _, f := range replyFrames {
			lenBuf := make([]byte, 8)
			binary.LittleEndian.PutUint64(lenBuf, uint64(len(f)))
			if _, err := conn.Write(lenBuf); err != nil {
				return
			}
			if len(f) > 0 {
				if _, err := conn.Write(f); err != nil {
					return
				}
			}
		}
	}()
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestSendPutChunkSuccess(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	fakeAgent(t, server, 6, [][]byte{
		encoding.Marshal(uint32(PutChunkRepSuccess)),
		encoding.Marshal(uint64(4)),
		make([]byte, 16),
	})

	c := NewClient(func(containerID int) (net.Conn, error) { return client, nil }, 2*time.Second, nil)
	reply, err := c.Send(&Request{Opcode: PutChunkReq, ContainerID: 1, ChunkData: []byte("data")})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Opcode != PutChunkRepSuccess {
		t.Fatalf("unexpected reply opcode %v", reply.Opcode)
	}
	if reply.Size != 4 {
		t.Fatalf("expected size 4, got %d", reply.Size)
	}
}

func TestSendAgentFailure(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	fakeAgent(t, server, 6, [][]byte{
		encoding.Marshal(uint32(PutChunkRepFail)),
	})

	c := NewClient(func(containerID int) (net.Conn, error) { return client, nil }, 2*time.Second, nil)
	_, err := c.Send(&Request{Opcode: PutChunkReq, ContainerID: 1, ChunkData: []byte("x")})
	if err != ErrAgentFailure {
		t.Fatalf("expected ErrAgentFailure, got %v", err)
	}
}

func TestSendDialFailure(t *testing.T) {
	c := NewClient(func(containerID int) (net.Conn, error) {
		return nil, net.ErrClosed
	}, time.Second, nil)
	_, err := c.Send(&Request{Opcode: DelChunkReq, ContainerID: 1})
	if err == nil {
		t.Fatal("expected transport error on dial failure")
	}
}

func TestSendChecksumMismatch(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	fakeAgent(t, server, 4, [][]byte{
		encoding.Marshal(uint32(GetChunkRepSuccess)),
		[]byte("payload"),
		make([]byte, 16),
	})

	c := NewClient(func(containerID int) (net.Conn, error) { return client, nil }, 2*time.Second, nil)
	req := &Request{Opcode: GetChunkReq, ContainerID: 1, VerifyMD5: true}
	req.ChunkMD5[0] = 0xFF // deliberately does not match the all-zero reply digest
	_, err := c.Send(req)
	if err != ErrChecksumMismatch {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestSendPutChunkChecksumMismatch(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	fakeAgent(t, server, 6, [][]byte{
		encoding.Marshal(uint32(PutChunkRepSuccess)),
		encoding.Marshal(uint64(4)),
		make([]byte, 16),
	})

	c := NewClient(func(containerID int) (net.Conn, error) { return client, nil }, 2*time.Second, nil)
	req := &Request{Opcode: PutChunkReq, ContainerID: 1, ChunkData: []byte("data"), VerifyMD5: true}
	req.ChunkMD5[0] = 0xFF // deliberately does not match the all-zero reply digest
	_, err := c.Send(req)
	if err != ErrChecksumMismatch {
		t.Fatalf("expected ErrChecksumMismatch on a PUT whose echoed digest differs, got %v", err)
	}
}

func TestOpcodeString(t *testing.T) {
	if PutChunkReq.String() != "PUT_CHUNK_REQ" {
		t.Fatalf("unexpected string: %s", PutChunkReq.String())
	}
	if !PutChunkRepSuccess.IsSuccess() {
		t.Fatal("expected PutChunkRepSuccess to report success")
	}
	if PutChunkRepFail.IsSuccess() {
		t.Fatal("expected PutChunkRepFail to report non-success")
	}
}
