package chunkio

import (
	"net"
	"time"

	"github.com/uplo-tech/encoding"
	"github.com/uplo-tech/errors"
	"github.com/uplo-tech/ratelimit"
)

var (
	// ErrTransport wraps a connection-level failure (dial, write, read,
	// or timeout) distinct from an agent-reported *_REP_FAIL.
	ErrTransport = errors.New("chunkio: transport error")
	// ErrAgentFailure is returned when the agent replies with the
	// request's *_REP_FAIL opcode.
	ErrAgentFailure = errors.New("chunkio: agent reported failure")
	// ErrChecksumMismatch is returned on GET_CHUNK/CPY_CHUNK/PUT_CHUNK,
	// when the request asks for verification, if the MD5 in the reply
	// differs from the digest the request carried.
	ErrChecksumMismatch = errors.New("chunkio: checksum mismatch")
)

// Dialer resolves a container id to a live TCP connection to its owning
// agent. chunkmgr supplies the concrete implementation backed by
// placement.Coordinator; chunkio itself knows nothing about the agent
// registry (spec §4.2 names only send(container_id, request)).
type Dialer func(containerID int) (net.Conn, error)

// Client is the single request/reply chunk I/O client of spec §4.2. It
// performs no retry of its own; the caller decides whether and how to
// retry a failed send.
type Client struct {
	dial    Dialer
	timeout time.Duration
	limiter *ratelimit.RateLimit
}

// NewClient builds a Client. timeout bounds both the dial and the
// request/reply round trip. rl, if non-nil, rate limits every connection
// the client opens (misc.reuse_data_connection's sibling knob,
// network.tcp_buffer_size in spec §6).
func NewClient(dial Dialer, timeout time.Duration, rl *ratelimit.RateLimit) *Client {
	return &Client{dial: dial, timeout: timeout, limiter: rl}
}

// Send performs one request/reply exchange with the agent owning
// req.ContainerID, per spec §4.2's contract: "send(container_id,
// request) -> reply returns a transport error, or a reply whose opcode
// is one of the *_SUCCESS / *_FAIL mates."
func (c *Client) Send(req *Request) (*Reply, error) {
	conn, err := c.dial(req.ContainerID)
	if err != nil {
		return nil, errors.Compose(ErrTransport, err)
	}
	defer conn.Close()

	rl := c.limiter
	if rl == nil {
		rl = ratelimit.NewRateLimit(0, 0, 0)
	}
	rlConn := ratelimit.NewRLConn(conn, rl, nil)

	deadline := time.Now().Add(c.timeout)
	if err := rlConn.SetDeadline(deadline); err != nil {
		return nil, errors.Compose(ErrTransport, err)
	}

	if err := writeFrames(rlConn, encodeRequest(req)); err != nil {
		return nil, errors.Compose(ErrTransport, err)
	}

	reply, err := readReply(rlConn)
	if err != nil {
		return nil, errors.Compose(ErrTransport, err)
	}

	if !reply.Opcode.IsSuccess() {
		return reply, ErrAgentFailure
	}

	if req.VerifyMD5 && (req.Opcode == GetChunkReq || req.Opcode == CpyChunkReq || req.Opcode == PutChunkReq) {
		if reply.ChunkMD5 != req.ChunkMD5 {
			return reply, ErrChecksumMismatch
		}
	}
	return reply, nil
}

// frame is one length-prefixed byte frame of the request/reply sequence
// (spec §6 "A request and its reply are sequences of length-prefixed
// byte frames").
type frame []byte

func writeFrames(w netWriter, frames []frame) error {
	for _, f := range frames {
		if _, err := w.Write(encoding.Marshal(uint64(len(f)))); err != nil {
			return err
		}
		if len(f) == 0 {
			continue
		}
		if _, err := w.Write(f); err != nil {
			return err
		}
	}
	return nil
}

type netWriter interface {
	Write(p []byte) (int, error)
}
