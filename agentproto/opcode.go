// Package agentproto implements the proxy<->agent coordinator protocol
// of spec §6: agent registration, liveness keepalive, and sysinfo
// polling. It shares the client protocol's length-prefixed frame shape
// (package wire) but carries a distinct opcode vocabulary, since the two
// protocols run over separate listeners (spec §5 "coordinator listener
// + monitor (2 threads)").
//
// Grounded on _examples/original_source/src/common/coordinator.cc/.hh
// for the REG/UPD/ping/sysinfo message shapes, reusing wire's frame
// codec idiom.
package agentproto

// Opcode identifies one coordinator-protocol message (spec §6
// "Proxy<->agent coordinator protocol").
type Opcode uint32

const (
	RegAgentReq Opcode = iota + 1
	RegAgentRep

	UpdAgentReq
	UpdAgentRep

	SynPing
	AckPing

	GetSysinfoReq
	GetSysinfoRep
)

func (op Opcode) String() string {
	switch op {
	case RegAgentReq:
		return "REG_AGENT_REQ"
	case RegAgentRep:
		return "REG_AGENT_REP"
	case UpdAgentReq:
		return "UPD_AGENT_REQ"
	case UpdAgentRep:
		return "UPD_AGENT_REP"
	case SynPing:
		return "SYN_PING"
	case AckPing:
		return "ACK_PING"
	case GetSysinfoReq:
		return "GET_SYSINFO_REQ"
	case GetSysinfoRep:
		return "GET_SYSINFO_REP"
	default:
		return "UNKNOWN_COORD_OP"
	}
}
