package sizing

import "strings"

// CorrelationSource supplies trailing pairwise correlations. The engine does
// not own return history, so live implementations come from the caller; the
// static matrix below is the configured fallback.
type CorrelationSource interface {
	// Correlation returns the trailing correlation between two symbols,
	// in [-1, 1]. Unknown pairs return 0.
	Correlation(a, b string) float64
}

// StaticMatrix is a CorrelationSource backed by configured pair values keyed
// "SYM1:SYM2" (order-insensitive).
type StaticMatrix struct {
	pairs map[string]float64
}

// NewStaticMatrix builds a matrix from configuration pairs.
func NewStaticMatrix(pairs map[string]float64) *StaticMatrix {
	m := &StaticMatrix{pairs: make(map[string]float64, len(pairs))}
	for key, v := range pairs {
		m.pairs[normalizeKey(key)] = v
	}
	return m
}

func (m *StaticMatrix) Correlation(a, b string) float64 {
	if a == b {
		return 1
	}
	return m.pairs[pairKey(a, b)]
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

func normalizeKey(key string) string {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 {
		return key
	}
	return pairKey(parts[0], parts[1])
}
