package coding

// GF(2^8) arithmetic over the primitive polynomial x^8+x^4+x^3+x^2+1 (0x11d),
// the same field klauspost/reedsolomon and ISA-L's erasure_code use, so a
// chunk encoded through our Vandermonde matrix and one run through the
// library's encoder disagree only in which generator matrix they chose, not
// in the underlying field.
const primitivePolynomial = 0x11d

var (
	gfExp [512]byte
	gfLog [256]byte
)

func init() {
	x := 1
	for i := 0; i < 255; i++ {
		gfExp[i] = byte(x)
		gfLog[x] = byte(i)
		x <<= 1
		if x&0x100 != 0 {
			x ^= primitivePolynomial
		}
	}
	for i := 255; i < 512; i++ {
		gfExp[i] = gfExp[i-255]
	}
}

func gfAdd(a, b byte) byte {
	return a ^ b
}

func gfMul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return gfExp[int(gfLog[a])+int(gfLog[b])]
}

func gfDiv(a, b byte) byte {
	if a == 0 {
		return 0
	}
	if b == 0 {
		panic("coding: division by zero in GF(2^8)")
	}
	logA := int(gfLog[a])
	logB := int(gfLog[b])
	diff := logA - logB
	if diff < 0 {
		diff += 255
	}
	return gfExp[diff]
}

func gfPow(a byte, power int) byte {
	if power == 0 {
		return 1
	}
	if a == 0 {
		return 0
	}
	logA := int(gfLog[a])
	e := (logA * power) % 255
	if e < 0 {
		e += 255
	}
	return gfExp[e]
}

// matrix is a row-major byte matrix over GF(2^8).
type matrix struct {
	rows, cols int
	data       []byte
}

func newMatrix(rows, cols int) matrix {
	return matrix{rows: rows, cols: cols, data: make([]byte, rows*cols)}
}

func (m matrix) at(r, c int) byte      { return m.data[r*m.cols+c] }
func (m matrix) set(r, c int, v byte)  { m.data[r*m.cols+c] = v }
func (m matrix) row(r int) []byte      { return m.data[r*m.cols : (r+1)*m.cols] }

// identity returns the n x n identity matrix.
func identity(n int) matrix {
	m := newMatrix(n, n)
	for i := 0; i < n; i++ {
		m.set(i, i, 1)
	}
	return m
}

// vandermonde builds the rows x cols matrix where entry (r, c) = r^c,
// using 1-indexed row coordinates (r+1) so that the first row (r=0) is never
// the degenerate all-zero-power row for c=0 only.
func vandermonde(rows, cols int) matrix {
	m := newMatrix(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.set(r, c, gfPow(byte(r+1), c))
		}
	}
	return m
}

// multiply returns a*b.
func (m matrix) multiply(b matrix) matrix {
	if m.cols != b.rows {
		panic("coding: matrix dimension mismatch in multiply")
	}
	out := newMatrix(m.rows, b.cols)
	for r := 0; r < m.rows; r++ {
		for c := 0; c < b.cols; c++ {
			var sum byte
			for k := 0; k < m.cols; k++ {
				sum = gfAdd(sum, gfMul(m.at(r, k), b.at(k, c)))
			}
			out.set(r, c, sum)
		}
	}
	return out
}

// subMatrix returns the rows [0,n) of m, all columns.
func (m matrix) subMatrix(rows int) matrix {
	out := newMatrix(rows, m.cols)
	copy(out.data, m.data[:rows*m.cols])
	return out
}

// selectRows returns a new matrix containing only the given row indices, in
// order.
func (m matrix) selectRows(idx []int) matrix {
	out := newMatrix(len(idx), m.cols)
	for i, r := range idx {
		copy(out.row(i), m.row(r))
	}
	return out
}

// invert computes the inverse of a square matrix via Gauss-Jordan
// elimination over GF(2^8). Returns false if the matrix is singular.
func (m matrix) invert() (matrix, bool) {
	if m.rows != m.cols {
		panic("coding: invert requires a square matrix")
	}
	n := m.rows
	work := newMatrix(n, 2*n)
	for r := 0; r < n; r++ {
		copy(work.row(r)[:n], m.row(r))
		work.set(r, n+r, 1)
	}

	for col := 0; col < n; col++ {
		// find a pivot
		pivot := -1
		for r := col; r < n; r++ {
			if work.at(r, col) != 0 {
				pivot = r
				break
			}
		}
		if pivot == -1 {
			return matrix{}, false
		}
		if pivot != col {
			swapRows(work, pivot, col)
		}
		inv := gfDiv(1, work.at(col, col))
		if inv != 1 {
			scaleRow(work, col, inv)
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := work.at(r, col)
			if factor == 0 {
				continue
			}
			addScaledRow(work, r, col, factor)
		}
	}

	out := newMatrix(n, n)
	for r := 0; r < n; r++ {
		copy(out.row(r), work.row(r)[n:])
	}
	return out, true
}

func swapRows(m matrix, a, b int) {
	ra, rb := m.row(a), m.row(b)
	for i := range ra {
		ra[i], rb[i] = rb[i], ra[i]
	}
}

func scaleRow(m matrix, r int, factor byte) {
	row := m.row(r)
	for i := range row {
		row[i] = gfMul(row[i], factor)
	}
}

func addScaledRow(m matrix, dst, src int, factor byte) {
	d, s := m.row(dst), m.row(src)
	for i := range d {
		d[i] = gfAdd(d[i], gfMul(s[i], factor))
	}
}
