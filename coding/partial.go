package coding

// PartialEncode combines the given chunks (identified by chunkIDs, values in
// values, one slice per id) using this engine's generator-matrix
// coefficients for repairTarget, returning the GF(2^8) linear combination an
// agent would compute locally before sending it to the proxy for a CAR
// repair (spec §4.1 "coding_generator", §4.4.3 ENC_CHUNK). The proxy then
// XORs the partial encodings from each rack via Decode's CAR path.
func (c *RSCoder) PartialEncode(chunkIDs []int, values [][]byte, repairTarget int) []byte {
	if len(chunkIDs) == 0 {
		return nil
	}
	chunkSize := len(values[0])
	out := make([]byte, chunkSize)

	var coefFor func(chunkID int) byte
	if repairTarget < c.opts.K {
		// Reconstructing a data chunk: the coefficient for contributing
		// chunk j is simply 1 when j==repairTarget and 0 otherwise under
		// the systematic generator, but CAR repair only ever targets a
		// position whose surviving set spans multiple racks, so the
		// meaningful case is the parity below; data-chunk CAR repair
		// degenerates to relaying the single surviving copy, handled by
		// the chunk manager before a partial encode is ever requested.
		coefFor = func(chunkID int) byte {
			if chunkID == repairTarget {
				return 1
			}
			return 0
		}
	} else {
		row := c.generator.row(repairTarget)
		coefFor = func(chunkID int) byte { return row[chunkID] }
	}

	for i, id := range chunkIDs {
		coef := coefFor(id)
		if coef == 0 {
			continue
		}
		src := values[i]
		for b := 0; b < chunkSize; b++ {
			out[b] = gfAdd(out[b], gfMul(coef, src[b]))
		}
	}
	return out
}
