package cache

import (
	"errors"
	"math"
	"testing"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{0.3, -1.2, 4.5, 0.01}
	got, err := CosineSimilarity(v, v)
	if err != nil {
		t.Fatalf("CosineSimilarity returned error: %v", err)
	}
	if math.Abs(float64(got)-1.0) > 1e-6 {
		t.Errorf("cosine(v, v) = %f, want 1.0", got)
	}
}

func TestCosineSimilarityBounds(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
	}{
		{"orthogonal", []float32{1, 0}, []float32{0, 1}},
		{"opposite", []float32{1, 2, 3}, []float32{-1, -2, -3}},
		{"arbitrary", []float32{0.5, -0.25, 3}, []float32{-2, 0.75, 1.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			if err != nil {
				t.Fatalf("CosineSimilarity returned error: %v", err)
			}
			if got < -1.0-1e-6 || got > 1.0+1e-6 {
				t.Errorf("cosine = %f, want within [-1, 1]", got)
			}
		})
	}
}

func TestCosineSimilarityOpposite(t *testing.T) {
	got, err := CosineSimilarity([]float32{1, 2}, []float32{-1, -2})
	if err != nil {
		t.Fatalf("CosineSimilarity returned error: %v", err)
	}
	if math.Abs(float64(got)+1.0) > 1e-6 {
		t.Errorf("cosine(v, -v) = %f, want -1.0", got)
	}
}

func TestCosineSimilarityZeroNorm(t *testing.T) {
	got, err := CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3})
	if err != nil {
		t.Fatalf("CosineSimilarity returned error: %v", err)
	}
	if got != 0 {
		t.Errorf("cosine(zero, v) = %f, want 0", got)
	}
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2})
	if err == nil {
		t.Fatal("expected dimension mismatch error, got nil")
	}
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("error %v does not wrap ErrDimensionMismatch", err)
	}
}
