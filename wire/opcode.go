// Package wire implements the client-facing wire protocol of spec §6: a
// request and its reply are sequences of length-prefixed byte frames, the
// first of which is always a little-endian 32-bit opcode.
//
// Grounded on _examples/original_source/src/common/zmq_int_define.hh for
// the opcode vocabulary and _examples/original_source/src/ds/request_reply.hh
// for which fields travel with which opcode, and on the teacher's
// chunkio package for the Go idiom of a length-prefixed frame codec built
// on github.com/uplo-tech/encoding.
package wire

// Opcode identifies one client-facing operation (spec §6 table).
type Opcode uint32

const (
	WriteFileReq Opcode = iota + 1
	WriteFileRepSuccess
	WriteFileRepFail

	ReadFileReq
	ReadFileRepSuccess
	ReadFileRepFail

	AppendFileReq
	AppendFileRepSuccess
	AppendFileRepFail
	GetAppendSizeReq
	GetAppendSizeRepSuccess
	GetAppendSizeRepFail

	DelFileReq
	DelFileRepSuccess
	DelFileRepFail

	ReadFileRangeReq
	ReadFileRangeRepSuccess
	ReadFileRangeRepFail
	GetReadSizeReq
	GetReadSizeRepSuccess
	GetReadSizeRepFail

	RenameFileReq
	RenameFileRepSuccess
	RenameFileRepFail

	GetCapacityReq
	GetCapacityRepSuccess
	GetCapacityRepFail

	GetFileListReq
	GetFileListRepSuccess
	GetFileListRepFail

	GetAgentStatusReq
	GetAgentStatusRepSuccess
	GetAgentStatusRepFail

	OverwriteFileReq
	OverwriteFileRepSuccess
	OverwriteFileRepFail

	GetBgTaskPrgReq
	GetBgTaskPrgRepSuccess
	GetBgTaskPrgRepFail

	CopyFileReq
	CopyFileRepSuccess
	CopyFileRepFail

	GetRepairStatsReq
	GetRepairStatsRepSuccess
	GetRepairStatsRepFail

	GetProxyStatusReq
	GetProxyStatusRepSuccess
	GetProxyStatusRepFail

	UnknownClientOp
)

// IsSuccess reports whether op is one of the *_REP_SUCCESS mates.
func (op Opcode) IsSuccess() bool {
	switch op {
	case WriteFileRepSuccess, ReadFileRepSuccess, AppendFileRepSuccess,
		GetAppendSizeRepSuccess, DelFileRepSuccess, ReadFileRangeRepSuccess,
		GetReadSizeRepSuccess, RenameFileRepSuccess, GetCapacityRepSuccess,
		GetFileListRepSuccess, GetAgentStatusRepSuccess, OverwriteFileRepSuccess,
		GetBgTaskPrgRepSuccess, CopyFileRepSuccess, GetRepairStatsRepSuccess,
		GetProxyStatusRepSuccess:
		return true
	}
	return false
}

// FailMate returns the *_REP_FAIL opcode that answers a *_REQ opcode.
func (op Opcode) FailMate() Opcode {
	switch op {
	case WriteFileReq:
		return WriteFileRepFail
	case ReadFileReq:
		return ReadFileRepFail
	case AppendFileReq:
		return AppendFileRepFail
	case GetAppendSizeReq:
		return GetAppendSizeRepFail
	case DelFileReq:
		return DelFileRepFail
	case ReadFileRangeReq:
		return ReadFileRangeRepFail
	case GetReadSizeReq:
		return GetReadSizeRepFail
	case RenameFileReq:
		return RenameFileRepFail
	case GetCapacityReq:
		return GetCapacityRepFail
	case GetFileListReq:
		return GetFileListRepFail
	case GetAgentStatusReq:
		return GetAgentStatusRepFail
	case OverwriteFileReq:
		return OverwriteFileRepFail
	case GetBgTaskPrgReq:
		return GetBgTaskPrgRepFail
	case CopyFileReq:
		return CopyFileRepFail
	case GetRepairStatsReq:
		return GetRepairStatsRepFail
	case GetProxyStatusReq:
		return GetProxyStatusRepFail
	default:
		return UnknownClientOp
	}
}

func (op Opcode) String() string {
	switch op {
	case WriteFileReq:
		return "WRITE_FILE_REQ"
	case WriteFileRepSuccess:
		return "WRITE_FILE_REP_SUCCESS"
	case WriteFileRepFail:
		return "WRITE_FILE_REP_FAIL"
	case ReadFileReq:
		return "READ_FILE_REQ"
	case ReadFileRepSuccess:
		return "READ_FILE_REP_SUCCESS"
	case ReadFileRepFail:
		return "READ_FILE_REP_FAIL"
	case AppendFileReq:
		return "APPEND_FILE_REQ"
	case AppendFileRepSuccess:
		return "APPEND_FILE_REP_SUCCESS"
	case AppendFileRepFail:
		return "APPEND_FILE_REP_FAIL"
	case GetAppendSizeReq:
		return "GET_APPEND_SIZE_REQ"
	case GetAppendSizeRepSuccess:
		return "GET_APPEND_SIZE_REP_SUCCESS"
	case GetAppendSizeRepFail:
		return "GET_APPEND_SIZE_REP_FAIL"
	case DelFileReq:
		return "DEL_FILE_REQ"
	case DelFileRepSuccess:
		return "DEL_FILE_REP_SUCCESS"
	case DelFileRepFail:
		return "DEL_FILE_REP_FAIL"
	case ReadFileRangeReq:
		return "READ_FILE_RANGE_REQ"
	case ReadFileRangeRepSuccess:
		return "READ_FILE_RANGE_REP_SUCCESS"
	case ReadFileRangeRepFail:
		return "READ_FILE_RANGE_REP_FAIL"
	case GetReadSizeReq:
		return "GET_READ_SIZE_REQ"
	case GetReadSizeRepSuccess:
		return "GET_READ_SIZE_REP_SUCCESS"
	case GetReadSizeRepFail:
		return "GET_READ_SIZE_REP_FAIL"
	case RenameFileReq:
		return "RENAME_FILE_REQ"
	case RenameFileRepSuccess:
		return "RENAME_FILE_REP_SUCCESS"
	case RenameFileRepFail:
		return "RENAME_FILE_REP_FAIL"
	case GetCapacityReq:
		return "GET_CAPACITY_REQ"
	case GetCapacityRepSuccess:
		return "GET_CAPACITY_REP_SUCCESS"
	case GetCapacityRepFail:
		return "GET_CAPACITY_REP_FAIL"
	case GetFileListReq:
		return "GET_FILE_LIST_REQ"
	case GetFileListRepSuccess:
		return "GET_FILE_LIST_REP_SUCCESS"
	case GetFileListRepFail:
		return "GET_FILE_LIST_REP_FAIL"
	case GetAgentStatusReq:
		return "GET_AGENT_STATUS_REQ"
	case GetAgentStatusRepSuccess:
		return "GET_AGENT_STATUS_REP_SUCCESS"
	case GetAgentStatusRepFail:
		return "GET_AGENT_STATUS_REP_FAIL"
	case OverwriteFileReq:
		return "OVERWRITE_FILE_REQ"
	case OverwriteFileRepSuccess:
		return "OVERWRITE_FILE_REP_SUCCESS"
	case OverwriteFileRepFail:
		return "OVERWRITE_FILE_REP_FAIL"
	case GetBgTaskPrgReq:
		return "GET_BG_TASK_PRG_REQ"
	case GetBgTaskPrgRepSuccess:
		return "GET_BG_TASK_PRG_REP_SUCCESS"
	case GetBgTaskPrgRepFail:
		return "GET_BG_TASK_PRG_REP_FAIL"
	case CopyFileReq:
		return "COPY_FILE_REQ"
	case CopyFileRepSuccess:
		return "COPY_FILE_REP_SUCCESS"
	case CopyFileRepFail:
		return "COPY_FILE_REP_FAIL"
	case GetRepairStatsReq:
		return "GET_REPAIR_STATS_REQ"
	case GetRepairStatsRepSuccess:
		return "GET_REPAIR_STATS_REP_SUCCESS"
	case GetRepairStatsRepFail:
		return "GET_REPAIR_STATS_REP_FAIL"
	case GetProxyStatusReq:
		return "GET_PROXY_STATUS_REQ"
	case GetProxyStatusRepSuccess:
		return "GET_PROXY_STATUS_REP_SUCCESS"
	case GetProxyStatusRepFail:
		return "GET_PROXY_STATUS_REP_FAIL"
	default:
		return "UNKNOWN_CLIENT_OP"
	}
}
