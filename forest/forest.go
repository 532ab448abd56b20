// Package forest implements a bagged random-forest binary classifier with
// balanced class weighting. Models serialise to plain JSON so a snapshot can
// be loaded without the training code.
package forest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

var (
	ErrEmpty       = errors.New("empty training set")
	ErrSingleClass = errors.New("training labels contain a single class")
	ErrShape       = errors.New("feature rows have inconsistent width")
)

// Params are the forest hyperparameters.
type Params struct {
	Trees           int `json:"trees"`
	MaxDepth        int `json:"max_depth"`
	MinSamplesSplit int `json:"min_samples_split"`
	MinSamplesLeaf  int `json:"min_samples_leaf"`
	// MaxFeatures is the number of candidate features per split; 0 means
	// sqrt(n_features).
	MaxFeatures int `json:"max_features"`
}

// DefaultParams match the settings the dashboard model has always used.
func DefaultParams() Params {
	return Params{
		Trees:           100,
		MaxDepth:        15,
		MinSamplesSplit: 10,
		MinSamplesLeaf:  5,
	}
}

// Forest is a trained classifier. It is immutable after Fit and safe for
// concurrent prediction.
type Forest struct {
	Trees       []Tree    `json:"trees"`
	NFeatures   int       `json:"n_features"`
	Importances []float64 `json:"importances"`
	Params      Params    `json:"params"`
}

// BalancedWeights returns n / (2 * n_c) for each class.
func BalancedWeights(y []int) ([2]float64, error) {
	var counts [2]int
	for _, c := range y {
		if c != 0 && c != 1 {
			return [2]float64{}, fmt.Errorf("label %d is not binary", c)
		}
		counts[c]++
	}
	if counts[0] == 0 || counts[1] == 0 {
		return [2]float64{}, ErrSingleClass
	}
	n := float64(len(y))
	return [2]float64{n / (2 * float64(counts[0])), n / (2 * float64(counts[1]))}, nil
}

// Fit grows p.Trees trees in parallel. Each tree draws its bootstrap sample
// and feature subsets from a generator derived from seed and its index, so a
// given seed always yields the same forest.
func Fit(ctx context.Context, x [][]float64, y []int, p Params, seed uint64) (*Forest, error) {
	if len(x) == 0 {
		return nil, ErrEmpty
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("%d feature rows but %d labels", len(x), len(y))
	}
	width := len(x[0])
	if width == 0 {
		return nil, ErrShape
	}
	for _, row := range x {
		if len(row) != width {
			return nil, ErrShape
		}
	}
	classWeights, err := BalancedWeights(y)
	if err != nil {
		return nil, err
	}

	p = withDefaults(p, width)
	trees := make([]Tree, p.Trees)
	importances := make([][]float64, p.Trees)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < p.Trees; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(seed, uint64(i)))
			tree, imp := growTree(x, y, classWeights, p, rng)
			trees[i] = tree
			importances[i] = imp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Forest{
		Trees:       trees,
		NFeatures:   width,
		Importances: averageImportances(importances, width),
		Params:      p,
	}, nil
}

func withDefaults(p Params, width int) Params {
	d := DefaultParams()
	if p.Trees <= 0 {
		p.Trees = d.Trees
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = d.MaxDepth
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	if p.MaxFeatures <= 0 || p.MaxFeatures > width {
		p.MaxFeatures = max(1, int(math.Sqrt(float64(width))))
	}
	return p
}

func growTree(x [][]float64, y []int, classWeights [2]float64, p Params, rng *rand.Rand) (Tree, []float64) {
	n := len(x)
	counts := make([]int, n)
	for i := 0; i < n; i++ {
		counts[rng.IntN(n)]++
	}

	weights := make([]float64, n)
	samples := make([]int, 0, n)
	for i, c := range counts {
		if c == 0 {
			continue
		}
		weights[i] = float64(c) * classWeights[y[i]]
		samples = append(samples, i)
	}

	b := &builder{
		x:           x,
		y:           y,
		weights:     weights,
		params:      p,
		rng:         rng,
		importances: make([]float64, len(x[0])),
	}
	b.grow(samples, 0)
	return Tree{Nodes: b.nodes}, b.importances
}

func averageImportances(perTree [][]float64, width int) []float64 {
	out := make([]float64, width)
	for _, imp := range perTree {
		var total float64
		for _, v := range imp {
			total += v
		}
		if total == 0 {
			continue
		}
		for j, v := range imp {
			out[j] += v / total
		}
	}
	var total float64
	for _, v := range out {
		total += v
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}

// PredictProba averages the tree distributions for x: [P(0), P(1)].
func (f *Forest) PredictProba(x []float64) ([2]float64, error) {
	if len(x) != f.NFeatures {
		return [2]float64{}, fmt.Errorf("%w: got %d features, model expects %d", ErrShape, len(x), f.NFeatures)
	}
	if len(f.Trees) == 0 {
		return [2]float64{}, errors.New("forest has no trees")
	}
	var sum [2]float64
	for i := range f.Trees {
		p := f.Trees[i].PredictProba(x)
		sum[0] += p[0]
		sum[1] += p[1]
	}
	n := float64(len(f.Trees))
	return [2]float64{sum[0] / n, sum[1] / n}, nil
}

// Predict returns the most probable class for x.
func (f *Forest) Predict(x []float64) (int, error) {
	p, err := f.PredictProba(x)
	if err != nil {
		return 0, err
	}
	if p[1] > p[0] {
		return 1, nil
	}
	return 0, nil
}

// Validate checks that every node reference is in range so a decoded model
// cannot panic at prediction time.
func (f *Forest) Validate() error {
	if len(f.Trees) == 0 {
		return errors.New("forest has no trees")
	}
	if f.NFeatures <= 0 {
		return errors.New("forest has no features")
	}
	for t, tree := range f.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", t)
		}
		for i, n := range tree.Nodes {
			if n.Feature == leaf {
				continue
			}
			if n.Feature < 0 || n.Feature >= f.NFeatures {
				return fmt.Errorf("tree %d node %d: feature %d out of range", t, i, n.Feature)
			}
			if n.Left <= i || n.Left >= len(tree.Nodes) || n.Right <= i || n.Right >= len(tree.Nodes) {
				return fmt.Errorf("tree %d node %d: child index out of range", t, i)
			}
		}
	}
	return nil
}

// FeatureImportances returns a copy of the mean normalized impurity decrease
// per feature.
func (f *Forest) FeatureImportances() []float64 {
	return slices.Clone(f.Importances)
}
