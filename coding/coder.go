// Package coding implements component A of the proxy: a Reed-Solomon
// erasure-coding engine over GF(2^8), producing and consuming decoding
// plans for normal reads, degraded reads, and repair (including the CAR
// cross-rack-aware single-failure optimization).
//
// Grounded on _examples/original_source/src/common/coding/rs.cc (same
// systematic-Vandermonde-matrix algorithm, same repair-matrix derivation).
package coding

import (
	"github.com/uplo-tech/errors"
)

// Sentinel errors surfaced to callers, matching spec §4.1's failure modes.
var (
	// ErrInvalidParams is returned when N or K fail the basic parameter
	// invariant (n<=0, k<=0, or n<k).
	ErrInvalidParams = errors.New("coding: invalid n/k parameters")

	// ErrUnrecoverable is returned by PreDecode when fewer than K chunks
	// survive.
	ErrUnrecoverable = errors.New("coding: fewer than k chunks available, stripe unrecoverable")

	// ErrOutOfMemory is returned if a chunk buffer cannot be allocated.
	ErrOutOfMemory = errors.New("coding: failed to allocate chunk buffer")
)

// Engine is the interface the chunk manager (component D) depends on. RS is
// the only implementor here; the factory in cache.go is the extension point
// for additional schemes (spec §9).
type Engine interface {
	// N returns the total chunks per stripe.
	N() int
	// K returns the number of data chunks per stripe.
	K() int
	// ChunksPerNode returns the number of chunks a single storage position
	// (node) holds; 1 for RS (spec §4.1 "parameter invariant").
	ChunksPerNode() int
	// StateSize returns the size in bytes of the scheme's per-object coding
	// state blob; 0 for RS, which is stateless.
	StateSize() int
	// ChunkSize returns ceil(dataSize/K), the padded per-chunk size.
	ChunkSize(dataSize int) int

	// Encode splits and encodes data into N chunks, zero-padded to
	// ChunkSize(len(data)).
	Encode(data []byte) (stripe [][]byte, err error)

	// PreDecode selects a decoding plan given the stripe's failed chunk
	// ids. When isRepair is true the plan also carries the repair matrix.
	PreDecode(failedIDs []int, isRepair bool) (DecodingPlan, error)

	// Decode reconstructs either the original K data chunks (isRepair
	// false) or exactly the chunks named in plan.RepairTargets
	// (isRepair true), from the chunks named by plan.InputChunkIDs supplied
	// in inputChunks (in that same order).
	Decode(inputChunks [][]byte, plan DecodingPlan, isRepair bool) ([][]byte, error)
}

// RSCoder is the reference Reed-Solomon implementation of Engine.
type RSCoder struct {
	opts Options

	// generator is the n x k systematic generator matrix: rows [0,k) are
	// the identity, rows [k,n) carry the parity coefficients.
	generator matrix
}

// NewRSCoder builds a Reed-Solomon engine for the given options, failing
// with ErrInvalidParams on a malformed n/k pair (spec §4.1 encode()).
func NewRSCoder(opts Options) (*RSCoder, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	v := vandermonde(opts.N, opts.K)
	top, ok := v.subMatrix(opts.K).invert()
	if !ok {
		// A Vandermonde top-k submatrix built from distinct row markers
		// (1..n) is always invertible; this would only trip on a coding
		// bug, not a caller error.
		return nil, errors.New("coding: vandermonde top submatrix is singular")
	}
	return &RSCoder{opts: opts, generator: v.multiply(top)}, nil
}

func (c *RSCoder) N() int             { return c.opts.N }
func (c *RSCoder) K() int             { return c.opts.K }
func (c *RSCoder) ChunksPerNode() int { return 1 }
func (c *RSCoder) StateSize() int     { return 0 }

func (c *RSCoder) ChunkSize(dataSize int) int {
	k := c.opts.K
	return (dataSize + k - 1) / k
}

// Encode implements Engine.
func (c *RSCoder) Encode(data []byte) ([][]byte, error) {
	n, k := c.opts.N, c.opts.K
	chunkSize := c.ChunkSize(len(data))
	stripe := make([][]byte, n)

	for i := 0; i < k; i++ {
		chunk := make([]byte, chunkSize)
		start := i * chunkSize
		end := start + chunkSize
		if start < len(data) {
			if end > len(data) {
				end = len(data)
			}
			copy(chunk, data[start:end])
		}
		stripe[i] = chunk
	}
	for i := k; i < n; i++ {
		parity := make([]byte, chunkSize)
		row := c.generator.row(i)
		for j := 0; j < k; j++ {
			coef := row[j]
			if coef == 0 {
				continue
			}
			src := stripe[j]
			for b := 0; b < chunkSize; b++ {
				parity[b] = gfAdd(parity[b], gfMul(coef, src[b]))
			}
		}
		stripe[i] = parity
	}
	return stripe, nil
}

// PreDecode implements Engine.
func (c *RSCoder) PreDecode(failedIDs []int, isRepair bool) (DecodingPlan, error) {
	n, k := c.opts.N, c.opts.K
	if len(failedIDs) > n-k {
		return DecodingPlan{}, ErrUnrecoverable
	}

	failed := make(map[int]bool, len(failedIDs))
	for _, id := range failedIDs {
		failed[id] = true
	}

	var survivorIDs []int
	for i := 0; i < n; i++ {
		if failed[i] {
			continue
		}
		survivorIDs = append(survivorIDs, i)
	}
	if len(survivorIDs) < k {
		return DecodingPlan{}, ErrUnrecoverable
	}

	// A plan names only as many survivors as Decode will ever consume
	// (k*ChunksPerNode()), not every surviving id, so that callers can
	// tell the untried remainder from the chosen input set and retry
	// against it on a per-chunk failure.
	plan := DecodingPlan{MinNumInputChunks: k}
	need := k * c.ChunksPerNode()
	if need > len(survivorIDs) {
		need = len(survivorIDs)
	}
	plan.InputChunkIDs = survivorIDs[:need]

	if isRepair {
		plan.RepairTargets = append([]int(nil), failedIDs...)
	}

	if !isRepair {
		return plan, nil
	}

	// Build the repair matrix: invert the submatrix of surviving rows,
	// then for each failed id pick or derive the corresponding row (spec
	// §4.1 repair matrix construction).
	survivors := plan.InputChunkIDs[:k]
	surviving := c.generator.selectRows(survivors)
	inverted, ok := surviving.invert()
	if !ok {
		return DecodingPlan{}, ErrUnrecoverable
	}

	repair := newMatrix(len(plan.RepairTargets), k)
	for i, failedID := range plan.RepairTargets {
		if failedID < k {
			copy(repair.row(i), inverted.row(failedID))
			continue
		}
		genRow := c.generator.row(failedID)
		for col := 0; col < k; col++ {
			var s byte
			for l := 0; l < k; l++ {
				s = gfAdd(s, gfMul(inverted.at(l, col), genRow[l]))
			}
			repair.set(i, col, s)
		}
	}
	plan.repairMatrix = repair
	return plan, nil
}

// Decode implements Engine.
func (c *RSCoder) Decode(inputChunks [][]byte, plan DecodingPlan, isRepair bool) ([][]byte, error) {
	if len(inputChunks) < plan.MinNumInputChunks {
		return nil, ErrUnrecoverable
	}

	// CAR special case: a single-target repair where the inputs are
	// already partially-encoded (XOR-combined) chunks from each surviving
	// rack, so the "decode" step is itself just an XOR of whatever arrived
	// (spec §4.1 "Special case").
	if isRepair && c.opts.RepairUsingCAR && len(plan.RepairTargets) == 1 {
		return [][]byte{carXOR(inputChunks)}, nil
	}

	k := c.opts.K
	chunkSize := 0
	if len(inputChunks) > 0 {
		chunkSize = len(inputChunks[0])
	}

	if !isRepair {
		return c.decodeNormal(inputChunks[:k], plan, chunkSize)
	}
	return c.decodeRepair(inputChunks[:k], plan, chunkSize)
}

func (c *RSCoder) decodeNormal(inputChunks [][]byte, plan DecodingPlan, chunkSize int) ([][]byte, error) {
	k := c.opts.K
	surviving := c.generator.selectRows(plan.InputChunkIDs[:k])
	inverted, ok := surviving.invert()
	if !ok {
		return nil, ErrUnrecoverable
	}
	out := make([][]byte, k)
	for i := 0; i < k; i++ {
		row := inverted.row(i)
		dst := make([]byte, chunkSize)
		for j := 0; j < k; j++ {
			coef := row[j]
			if coef == 0 {
				continue
			}
			src := inputChunks[j]
			for b := 0; b < chunkSize; b++ {
				dst[b] = gfAdd(dst[b], gfMul(coef, src[b]))
			}
		}
		out[i] = dst
	}
	return out, nil
}

func (c *RSCoder) decodeRepair(inputChunks [][]byte, plan DecodingPlan, chunkSize int) ([][]byte, error) {
	k := c.opts.K
	out := make([][]byte, len(plan.RepairTargets))
	for i := range plan.RepairTargets {
		row := plan.RepairMatrixRow(i)
		dst := make([]byte, chunkSize)
		for j := 0; j < k; j++ {
			coef := row[j]
			if coef == 0 {
				continue
			}
			src := inputChunks[j]
			for b := 0; b < chunkSize; b++ {
				dst[b] = gfAdd(dst[b], gfMul(coef, src[b]))
			}
		}
		out[i] = dst
	}
	return out, nil
}

// carXOR combines partially-encoded per-rack chunks by a straight XOR, the
// final step of CAR single-failure repair (spec §4.1, rs.cc
// carRepairFinalize): with only one input chunk no combination is needed.
func carXOR(chunks [][]byte) []byte {
	if len(chunks) == 1 {
		out := make([]byte, len(chunks[0]))
		copy(out, chunks[0])
		return out
	}
	size := len(chunks[0])
	out := make([]byte, size)
	for _, c := range chunks {
		for b := 0; b < size; b++ {
			out[b] ^= c[b]
		}
	}
	return out
}
