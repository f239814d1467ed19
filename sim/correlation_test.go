package sim

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func defaultClusters() (tickers []string, clusters map[string]string, intra map[string]float64) {
	tickers = []string{"AAPL", "AMZN", "GOOGL", "JPM", "META", "MSFT", "NFLX", "NVDA", "TSLA", "V"}
	clusters = map[string]string{
		"AAPL": "tech", "AMZN": "tech", "GOOGL": "tech", "META": "tech",
		"MSFT": "tech", "NFLX": "tech", "NVDA": "tech", "TSLA": "tech",
		"JPM": "finance", "V": "finance",
	}
	intra = map[string]float64{"tech": 0.6, "finance": 0.5}
	return
}

func TestCorrelationMatrixShape(t *testing.T) {
	tickers, clusters, intra := defaultClusters()
	m := correlationMatrix(tickers, clusters, intra, 0.2)

	n := len(tickers)
	for i := 0; i < n; i++ {
		if got := m.At(i, i); got != 1.0 {
			t.Fatalf("diagonal [%d][%d] = %v, want 1.0", i, i, got)
		}
		for j := 0; j < n; j++ {
			if m.At(i, j) != m.At(j, i) {
				t.Fatalf("matrix not symmetric at (%d,%d)", i, j)
			}
		}
	}

	// Spot-check the tiers.
	idx := map[string]int{}
	for i, tk := range tickers {
		idx[tk] = i
	}
	if got := m.At(idx["AAPL"], idx["MSFT"]); got != 0.6 {
		t.Fatalf("tech pair correlation = %v, want 0.6", got)
	}
	if got := m.At(idx["JPM"], idx["V"]); got != 0.5 {
		t.Fatalf("finance pair correlation = %v, want 0.5", got)
	}
	if got := m.At(idx["AAPL"], idx["JPM"]); got != 0.2 {
		t.Fatalf("cross pair correlation = %v, want 0.2", got)
	}
}

func TestCorrelationMatrixFactorizes(t *testing.T) {
	tickers, clusters, intra := defaultClusters()
	m := correlationMatrix(tickers, clusters, intra, 0.2)

	l, err := choleskyFactor(m)
	if err != nil {
		t.Fatalf("default cluster configuration must be positive definite: %v", err)
	}

	// L·Lᵗ should reproduce the matrix.
	n := len(tickers)
	var prod mat.Dense
	prod.Mul(l, l.T())
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if diff := math.Abs(prod.At(i, j) - m.At(i, j)); diff > 1e-9 {
				t.Fatalf("L·Lᵗ differs from matrix at (%d,%d) by %v", i, j, diff)
			}
		}
	}
}

func TestCorrelationMatrixNotPositiveDefinite(t *testing.T) {
	// Cross correlation higher than intra makes the matrix indefinite for
	// enough tickers; the factorization must be refused.
	tickers := []string{"A", "B", "C", "D"}
	clusters := map[string]string{"A": "x", "B": "x", "C": "y", "D": "y"}
	intra := map[string]float64{"x": 0.0, "y": 0.0}

	m := correlationMatrix(tickers, clusters, intra, 0.99)
	if _, err := choleskyFactor(m); err == nil {
		t.Fatal("expected factorization to fail for an indefinite matrix")
	}
}

func TestCorrelateIdentity(t *testing.T) {
	// With a single uncorrelated ticker the factor is the identity and the
	// shock passes through unchanged.
	m := correlationMatrix([]string{"A"}, map[string]string{"A": ""}, nil, 0.2)
	l, err := choleskyFactor(m)
	if err != nil {
		t.Fatal(err)
	}

	out := correlate(l, []float64{1.25})
	if math.Abs(out[0]-1.25) > 1e-12 {
		t.Fatalf("got %v, want 1.25", out[0])
	}
}
