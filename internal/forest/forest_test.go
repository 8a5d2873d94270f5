package forest

import (
	"math"
	"math/rand"
	"testing"
)

// trainingCloud builds a deterministic two-dimensional cluster around (100, 0).
func trainingCloud(n int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	points := make([][]float64, n)
	for i := range points {
		points[i] = []float64{100 + rng.Float64()*10, rng.Float64()*2 - 1}
	}
	return points
}

func TestTrainInsufficientData(t *testing.T) {
	if _, err := Train(nil, Options{}); err != ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData for empty window, got %v", err)
	}
	if _, err := Train([][]float64{{1, 2}}, Options{}); err != ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData for single point, got %v", err)
	}
}

func TestTrainDefaults(t *testing.T) {
	model, err := Train(trainingCloud(300, 1), Options{Seed: 1})
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	if model.NumTrees() != 100 {
		t.Fatalf("expected 100 trees by default, got %d", model.NumTrees())
	}
	if model.SampleSize() != 256 {
		t.Fatalf("expected 256-point sub-samples by default, got %d", model.SampleSize())
	}
	if model.Dimensions() != 2 {
		t.Fatalf("expected 2 dimensions, got %d", model.Dimensions())
	}
}

func TestSampleSizeCappedAtWindow(t *testing.T) {
	model, err := Train(trainingCloud(40, 2), Options{Seed: 2})
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	if model.SampleSize() != 40 {
		t.Fatalf("sample size must cap at window size, got %d", model.SampleSize())
	}
}

func TestScoreSeparatesOutliers(t *testing.T) {
	model, err := Train(trainingCloud(400, 3), Options{NumTrees: 150, Seed: 3})
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}

	inlier := model.Score([]float64{105, 0})
	outlier := model.Score([]float64{5000, 40})

	if outlier >= inlier {
		t.Fatalf("outlier must score below inlier: outlier=%f inlier=%f", outlier, inlier)
	}
	if outlier >= 0 {
		t.Fatalf("far outlier must score negative, got %f", outlier)
	}
	if inlier < -0.1 {
		t.Fatalf("central inlier should score near zero, got %f", inlier)
	}
}

func TestScoreDeterministicForFixedSeed(t *testing.T) {
	data := trainingCloud(200, 4)
	a, err := Train(data, Options{Seed: 99})
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	b, err := Train(data, Options{Seed: 99})
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}

	point := []float64{102, 0.5}
	if a.Score(point) != b.Score(point) {
		t.Fatalf("identical seeds must yield identical scores")
	}
}

func TestScoreBounds(t *testing.T) {
	model, err := Train(trainingCloud(300, 5), Options{Seed: 5})
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	for _, point := range [][]float64{{100, 0}, {0, 0}, {1e6, 1e3}, {-1e6, -1e3}} {
		score := model.Score(point)
		if score < -0.5 || score > 0.5 {
			t.Fatalf("score outside [-0.5, 0.5]: %f for %v", score, point)
		}
	}
}

func TestAvgPathNorm(t *testing.T) {
	tests := []struct {
		n    int
		want float64
	}{
		{0, 0},
		{1, 0},
		{2, 0.1544},
		{256, 10.2445},
	}
	for _, tc := range tests {
		got := avgPathNorm(tc.n)
		if math.Abs(got-tc.want) > 0.001 {
			t.Errorf("avgPathNorm(%d) = %f, want %f", tc.n, got, tc.want)
		}
	}
}

func TestConstantDataYieldsNeutralScores(t *testing.T) {
	constant := make([][]float64, 50)
	for i := range constant {
		constant[i] = []float64{100, 1}
	}
	model, err := Train(constant, Options{Seed: 6})
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	// No feature has spread, so every tree is a single leaf and every point
	// lands on the neutral score.
	if score := model.Score([]float64{100, 1}); math.Abs(score) > 1e-9 {
		t.Fatalf("constant training data must score 0, got %f", score)
	}
}
