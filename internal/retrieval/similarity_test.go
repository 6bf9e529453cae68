package retrieval

import "testing"

func TestSimilarity(t *testing.T) {
	tests := []struct {
		distance float64
		want     float64
	}{
		{0, 1.0},
		{0.25, 0.75},
		{1, 0},
		{2.5, 0},      // distances past 1 clamp to zero similarity
		{-1, 0.5},     // score-like backends: 1/(1+|d|)
		{-0.5, 1.0 / 1.5},
		{-100, 1.0 / 101.0},
	}

	for _, tt := range tests {
		if got := Similarity(tt.distance); !almostEqual(got, tt.want) {
			t.Errorf("Similarity(%v) = %v, want %v", tt.distance, got, tt.want)
		}
	}
}

func TestSimilarityStaysInUnitInterval(t *testing.T) {
	for _, d := range []float64{-1e9, -3.7, -1, -0.001, 0, 0.001, 0.999, 1, 7, 1e9} {
		got := Similarity(d)
		if got < 0 || got > 1 {
			t.Errorf("Similarity(%v) = %v, outside [0,1]", d, got)
		}
	}
}

func almostEqual(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}
