package sim

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidCorrelationModel is fatal at construction: the simulator must not
// run with a correlation matrix that does not admit a Cholesky factorization.
var ErrInvalidCorrelationModel = errors.New("correlation matrix is not positive definite")

// correlationMatrix builds the basket correlation matrix: 1.0 on the
// diagonal, the cluster's intra coefficient for same-cluster pairs, and the
// cross coefficient for everything else. Tickers with no cluster fall into
// the cross tier against everyone. Symmetry comes for free from SymDense.
func correlationMatrix(tickers []string, clusters map[string]string, intra map[string]float64, cross float64) *mat.SymDense {
	n := len(tickers)
	m := mat.NewSymDense(n, nil)

	for i := 0; i < n; i++ {
		m.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			rho := cross
			ci, cj := clusters[tickers[i]], clusters[tickers[j]]
			if ci != "" && ci == cj {
				if r, ok := intra[ci]; ok {
					rho = r
				}
			}
			m.SetSym(i, j, rho)
		}
	}
	return m
}

// choleskyFactor returns the lower-triangular factor L with L·Lᵗ equal to m,
// or ErrInvalidCorrelationModel when m is not positive definite.
func choleskyFactor(m *mat.SymDense) (*mat.TriDense, error) {
	var chol mat.Cholesky
	if !chol.Factorize(m) {
		return nil, ErrInvalidCorrelationModel
	}

	var l mat.TriDense
	chol.LTo(&l)
	return &l, nil
}

// correlate applies the lower-triangular factor to a vector of independent
// standard-normal draws, producing correlated shocks.
func correlate(l *mat.TriDense, z []float64) []float64 {
	out := make([]float64, len(z))
	for i := range z {
		var s float64
		for j := 0; j <= i; j++ {
			s += l.At(i, j) * z[j]
		}
		out[i] = s
	}
	return out
}
