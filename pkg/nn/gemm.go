package nn

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

func general(rows, cols int, data []float32) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}

func trans(t bool) blas.Transpose {
	if t {
		return blas.Trans
	}
	return blas.NoTrans
}

// gemm computes c = alpha*op(a)*op(b) + beta*c, where a is stored as
// ar x ac and b as br x bc (before transposition).
func gemm(ta, tb bool, alpha float32, a []float32, ar, ac int, b []float32, br, bc int, beta float32, c []float32) {
	m, n := ar, bc
	if ta {
		m = ac
	}
	if tb {
		n = br
	}
	if m == 0 || n == 0 {
		return
	}
	blas32.Gemm(trans(ta), trans(tb), alpha, general(ar, ac, a), general(br, bc, b), beta, general(m, n, c))
}

// addBias adds bias to every row of an r x len(bias) matrix.
func addBias(x []float32, bias []float32) {
	n := len(bias)
	for off := 0; off < len(x); off += n {
		row := x[off : off+n]
		for j, b := range bias {
			row[j] += b
		}
	}
}

// sumRows accumulates the column sums of an r x len(dst) matrix into dst.
func sumRows(dst, x []float32) {
	n := len(dst)
	for off := 0; off < len(x); off += n {
		for j, v := range x[off : off+n] {
			dst[j] += v
		}
	}
}
