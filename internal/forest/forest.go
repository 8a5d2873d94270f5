// Package forest implements an isolation-forest style outlier ensemble:
// randomized partition trees score points by how quickly they separate from
// the training population. Models are immutable snapshots; the pipeline swaps
// them atomically.
package forest

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

// eulerMascheroni is the constant used in the average-path normalisation term.
const eulerMascheroni = 0.5772156649

// ErrInsufficientData is returned when the training window is too small to
// build even one tree.
var ErrInsufficientData = errors.New("forest: insufficient training data")

// Options tunes ensemble construction. Zero values fall back to the
// conventional defaults (100 trees, 256-point sub-samples, depth
// ceil(log2(sampleSize))).
type Options struct {
	NumTrees   int
	SampleSize int
	MaxDepth   int
	// Seed fixes the random source for reproducible tests; 0 seeds from the
	// wall clock.
	Seed int64
}

// Model is one trained ensemble snapshot. It is never mutated after Train
// returns, so concurrent Score calls need no locking.
type Model struct {
	trees      []*node
	sampleSize int
	dims       int
	trainedAt  time.Time
	norm       float64
}

type node struct {
	feature int
	split   float64
	left    *node
	right   *node
	size    int
}

func (n *node) leaf() bool { return n.left == nil && n.right == nil }

// Train builds a new ensemble from the supplied trailing window of feature
// vectors. Each tree is grown from an independent random sub-sample.
func Train(vectors [][]float64, opts Options) (*Model, error) {
	if len(vectors) < 2 {
		return nil, ErrInsufficientData
	}

	numTrees := opts.NumTrees
	if numTrees <= 0 {
		numTrees = 100
	}
	sampleSize := opts.SampleSize
	if sampleSize <= 0 {
		sampleSize = 256
	}
	if sampleSize > len(vectors) {
		sampleSize = len(vectors)
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = int(math.Ceil(math.Log2(float64(sampleSize))))
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	dims := len(vectors[0])
	trees := make([]*node, numTrees)
	subsample := make([][]float64, sampleSize)
	for i := range trees {
		perm := rng.Perm(len(vectors))
		for j := 0; j < sampleSize; j++ {
			subsample[j] = vectors[perm[j]]
		}
		trees[i] = grow(subsample, 0, maxDepth, dims, rng)
	}

	return &Model{
		trees:      trees,
		sampleSize: sampleSize,
		dims:       dims,
		trainedAt:  time.Now().UTC(),
		norm:       avgPathNorm(sampleSize),
	}, nil
}

func grow(data [][]float64, depth, maxDepth, dims int, rng *rand.Rand) *node {
	if depth >= maxDepth || len(data) <= 1 {
		return &node{size: len(data)}
	}

	feature, lo, hi, ok := pickSplitFeature(data, dims, rng)
	if !ok {
		// Every feature is constant across this node's points.
		return &node{size: len(data)}
	}
	split := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, point := range data {
		if point[feature] < split {
			left = append(left, point)
		} else {
			right = append(right, point)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &node{size: len(data)}
	}

	return &node{
		feature: feature,
		split:   split,
		left:    grow(left, depth+1, maxDepth, dims, rng),
		right:   grow(right, depth+1, maxDepth, dims, rng),
	}
}

// pickSplitFeature draws features uniformly at random until it finds one with
// spread inside this node, trying each feature at most once.
func pickSplitFeature(data [][]float64, dims int, rng *rand.Rand) (feature int, lo, hi float64, ok bool) {
	for _, f := range rng.Perm(dims) {
		lo, hi = data[0][f], data[0][f]
		for _, point := range data[1:] {
			if point[f] < lo {
				lo = point[f]
			}
			if point[f] > hi {
				hi = point[f]
			}
		}
		if hi > lo {
			return f, lo, hi, true
		}
	}
	return 0, 0, 0, false
}

// Score rates a point on the rebased anomaly axis: values near zero are
// typical, negative values flag outliers, more negative means more anomalous.
func (m *Model) Score(point []float64) float64 {
	total := 0.0
	for _, tree := range m.trees {
		total += pathLength(tree, point, 0)
	}
	avg := total / float64(len(m.trees))
	return 0.5 - math.Exp2(-avg/m.norm)
}

func pathLength(n *node, point []float64, depth float64) float64 {
	if n.leaf() {
		return depth + avgPathNorm(n.size)
	}
	if point[n.feature] < n.split {
		return pathLength(n.left, point, depth+1)
	}
	return pathLength(n.right, point, depth+1)
}

// avgPathNorm is c(n), the expected path length of an unsuccessful BST search
// among n points. It corrects for trees terminated before full isolation.
func avgPathNorm(n int) float64 {
	if n <= 1 {
		return 0
	}
	f := float64(n)
	return 2*(math.Log(f-1)+eulerMascheroni) - 2*(f-1)/f
}

// TrainedAt reports when this snapshot was built.
func (m *Model) TrainedAt() time.Time { return m.trainedAt }

// SampleSize reports the sub-sample size used for path normalisation.
func (m *Model) SampleSize() int { return m.sampleSize }

// NumTrees reports the ensemble size.
func (m *Model) NumTrees() int { return len(m.trees) }

// Dimensions reports the feature dimensionality the model was trained on.
func (m *Model) Dimensions() int { return m.dims }
