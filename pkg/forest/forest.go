// Package forest implements a random forest regressor: bootstrapped CART
// trees split on squared error, averaged at prediction time.
package forest

import (
	"cmp"
	"math/rand"
	"slices"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotFitted  = goerr.New("forest is not fitted")
	ErrBadShape   = goerr.New("feature matrix has an unexpected shape")
	ErrEmptyInput = goerr.New("no training rows")
)

type ForestConfig struct {
	NTrees         int   // default 100
	MaxDepth       int   // 0 grows until leaves are pure or too small
	MinSamplesLeaf int   // default 1
	MaxFeatures    int   // features tried per split, 0 means all
	Seed           int64 // default 42
	Workers        int   // trees fitted in parallel, default 4
}

type Forest struct {
	config    ForestConfig
	trees     []tree
	nFeatures int
}

func New() *Forest {
	return NewWithConfig(ForestConfig{})
}

func NewWithConfig(config ForestConfig) *Forest {
	if config.NTrees <= 0 {
		config.NTrees = 100
	}
	if config.MinSamplesLeaf <= 0 {
		config.MinSamplesLeaf = 1
	}
	if config.Seed == 0 {
		config.Seed = 42
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	return &Forest{config: config}
}

func (f *Forest) Config() ForestConfig {
	return f.config
}

// Fit trains every tree on a bootstrap sample of X. The result depends only
// on the data and the seed, not on Workers.
func (f *Forest) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return ErrEmptyInput
	}
	if len(X) != len(y) {
		return goerr.Wrap(ErrBadShape, "rows and labels differ", goerr.V("rows", len(X)), goerr.V("labels", len(y)))
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return goerr.Wrap(ErrBadShape, "ragged feature matrix", goerr.V("row", i), goerr.V("width", len(row)), goerr.V("want", width))
		}
	}

	master := rand.New(rand.NewSource(f.config.Seed))
	seeds := make([]int64, f.config.NTrees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]tree, f.config.NTrees)
	var eg errgroup.Group
	eg.SetLimit(f.config.Workers)
	for i := range trees {
		eg.Go(func() error {
			trees[i] = f.fitTree(X, y, rand.New(rand.NewSource(seeds[i])))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	f.trees = trees
	f.nFeatures = width
	return nil
}

func (f *Forest) fitTree(X [][]float64, y []float64, rng *rand.Rand) tree {
	n := len(X)
	sample := make([]int, n)
	for i := range sample {
		sample[i] = rng.Intn(n)
	}
	b := &builder{
		X:        X,
		y:        y,
		rng:      rng,
		maxDepth: f.config.MaxDepth,
		minLeaf:  f.config.MinSamplesLeaf,
		features: f.config.MaxFeatures,
	}
	b.grow(sample, 0)
	return tree{nodes: b.nodes}
}

// Predict averages the trees' outputs for one row.
func (f *Forest) Predict(row []float64) (float64, error) {
	if len(f.trees) == 0 {
		return 0, ErrNotFitted
	}
	if len(row) != f.nFeatures {
		return 0, goerr.Wrap(ErrBadShape, "predict", goerr.V("width", len(row)), goerr.V("want", f.nFeatures))
	}
	var sum float64
	for _, t := range f.trees {
		sum += t.predict(row)
	}
	return sum / float64(len(f.trees)), nil
}

func (f *Forest) PredictAll(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		v, err := f.Predict(row)
		if err != nil {
			return nil, goerr.Wrap(err, "predict batch", goerr.V("row", i))
		}
		out[i] = v
	}
	return out, nil
}

// NumFeatures is the row width seen by Fit.
func (f *Forest) NumFeatures() int {
	return f.nFeatures
}

type node struct {
	feature   int
	threshold float64
	left      int
	right     int
	value     float64
	leaf      bool
}

type tree struct {
	nodes []node
}

func (t tree) predict(row []float64) float64 {
	i := 0
	for {
		n := t.nodes[i]
		if n.leaf {
			return n.value
		}
		if row[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

type builder struct {
	X        [][]float64
	y        []float64
	rng      *rand.Rand
	maxDepth int
	minLeaf  int
	features int
	nodes    []node
}

func (b *builder) grow(idx []int, depth int) int {
	var sum float64
	for _, i := range idx {
		sum += b.y[i]
	}
	id := len(b.nodes)
	b.nodes = append(b.nodes, node{leaf: true, value: sum / float64(len(idx))})

	if b.maxDepth > 0 && depth >= b.maxDepth {
		return id
	}
	if len(idx) < 2*b.minLeaf || b.pure(idx) {
		return id
	}

	feature, threshold, ok := b.bestSplit(idx, sum)
	if !ok {
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return id
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id] = node{feature: feature, threshold: threshold, left: l, right: r, value: b.nodes[id].value}
	return id
}

func (b *builder) pure(idx []int) bool {
	first := b.y[idx[0]]
	for _, i := range idx[1:] {
		if b.y[i] != first {
			return false
		}
	}
	return true
}

func (b *builder) candidates() []int {
	width := len(b.X[0])
	if b.features <= 0 || b.features >= width {
		all := make([]int, width)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rng.Perm(width)[:b.features]
}

// bestSplit maximises sumL²/nL + sumR²/nR, which is the same as minimising
// the children's total squared error.
func (b *builder) bestSplit(idx []int, total float64) (int, float64, bool) {
	n := len(idx)
	parent := total * total / float64(n)
	best := parent
	bestFeature, bestThreshold, found := -1, 0.0, false

	order := make([]int, n)
	for _, feature := range b.candidates() {
		copy(order, idx)
		slices.SortStableFunc(order, func(a, c int) int {
			return cmp.Compare(b.X[a][feature], b.X[c][feature])
		})

		var leftSum float64
		for i := 0; i < n-1; i++ {
			leftSum += b.y[order[i]]
			nl, nr := i+1, n-i-1
			lo, hi := b.X[order[i]][feature], b.X[order[i+1]][feature]
			if lo == hi || nl < b.minLeaf || nr < b.minLeaf {
				continue
			}
			rightSum := total - leftSum
			score := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(nr)
			if score > best+1e-9 {
				best = score
				bestFeature = feature
				bestThreshold = midpoint(lo, hi)
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

// midpoint returns a threshold t with lo <= t < hi. For adjacent floats the
// plain midpoint rounds up to hi, so lo is used instead.
func midpoint(lo, hi float64) float64 {
	t := lo + (hi-lo)/2
	if t >= hi {
		t = lo
	}
	return t
}
