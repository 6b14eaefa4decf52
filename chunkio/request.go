package chunkio

// ChunkKey names one chunk the way spec §3 describes: "chunk name =
// canonical concatenation of (namespace_id, fuuid, chunk_id)".
type ChunkKey struct {
	NamespaceID byte
	FUUID       string
	ChunkID     int
}

// Request is what B sends to one agent connection for one chunk
// operation (spec §4.2: "A request carries the chunk list, the
// container-id list, the coding metadata (for RPR/ENC), and for RPR also
// the chunk-group map and the agent-address list").
type Request struct {
	Opcode Opcode

	// ContainerID is the destination/source container for this request.
	ContainerID int

	// Chunk identifies the chunk this request addresses (destination for
	// PUT/CPY/MOV, the chunk itself for GET/DEL/RVT).
	Chunk ChunkKey
	// SrcChunk is the source chunk identity for CPY/MOV, whose fuuid
	// differs from Chunk's when the destination belongs to a new file
	// version.
	SrcChunk ChunkKey

	// ChunkData carries the chunk payload for PUT; nil otherwise.
	ChunkData []byte
	// ChunkMD5 is the pre-send digest attached when verification is
	// enabled (spec §4.4.1 "attach MD5 digests if verification is
	// enabled").
	ChunkMD5 [16]byte
	VerifyMD5 bool

	// ChunkIDs/ContainerIDs describe a stripe's chunk positions for
	// batched operations (VRF_CHUNK, CHK_CHUNK).
	ChunkIDs     []int
	ContainerIDs []int

	// SourceContainerID is the CPY/MOV source.
	SourceContainerID int

	// FileVersion selects which stored version a GET/RVT targets.
	FileVersion uint32

	// CodingMeta/RepairMatrix/ChunkGroupMap/AgentAddresses carry the
	// repair context for RPR_CHUNK and ENC_CHUNK, left as opaque byte
	// blobs here: the concrete coding.Options/DecodingPlan marshaling
	// lives in chunkmgr, which is the only caller that constructs these.
	CodingMeta     []byte
	RepairMatrix   []byte
	ChunkGroupMap  map[string][]int
	AgentAddresses []string
}

// Reply is what B receives in answer to a Request.
type Reply struct {
	Opcode Opcode

	ChunkData []byte
	ChunkMD5  [16]byte
	Size      uint64

	// Corrupted lists, for a batched VRF_CHUNK/CHK_CHUNK reply, the
	// positions the agent reports as absent or checksum-mismatched.
	Corrupted []int
}
