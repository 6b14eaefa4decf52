package coding

// DecodingPlan is produced by PreDecode and consumed by Decode. It names
// which surviving chunk ids to fetch and, for a repair, the precomputed
// repair matrix (spec §4.1 pre_decode/DecodingPlan).
type DecodingPlan struct {
	// InputChunkIDs are the chunk ids selected as decode/repair input, in
	// the order they must be supplied to Decode.
	InputChunkIDs []int

	// MinNumInputChunks is the minimum number of chunks that must actually
	// be supplied to Decode (normally K; a CAR single-chunk repair can
	// proceed with fewer).
	MinNumInputChunks int

	// RepairTargets are the failed chunk ids Decode will reconstruct, set
	// only when the plan was built with isRepair=true.
	RepairTargets []int

	// repairMatrix holds one row per entry in RepairTargets, K bytes each,
	// row i being the GF(2^8) coefficients to combine the InputChunkIDs
	// data with in order to reconstruct RepairTargets[i].
	repairMatrix matrix
}

// RepairMatrixRow returns the repair-matrix row for the i-th repair target.
func (p DecodingPlan) RepairMatrixRow(i int) []byte {
	if p.repairMatrix.cols == 0 {
		return nil
	}
	return p.repairMatrix.row(i)
}
