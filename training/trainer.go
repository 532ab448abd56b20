// Package training fits the completion classifier on an encoded feature
// matrix and reports held-out metrics and a feature-importance ranking.
package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"city311-api/forest"
)

// CompletedStatuses are the statuses counted as a completed request.
var CompletedStatuses = []string{"Closed", "Completed"}

// ErrDegenerate is returned when the data cannot produce a usable model.
var ErrDegenerate = errors.New("degenerate training data")

// Label maps a trimmed status to the binary target.
func Label(status string) int {
	if slices.Contains(CompletedStatuses, status) {
		return 1
	}
	return 0
}

// Options configure a training run.
type Options struct {
	TestFraction float64
	Seed         uint64
	Params       forest.Params
	TopN         int
}

// DefaultOptions is a 70/30 split with seed 42 and the top 10 features.
func DefaultOptions() Options {
	return Options{
		TestFraction: 0.3,
		Seed:         42,
		Params:       forest.DefaultParams(),
		TopN:         10,
	}
}

// FeatureScore is one entry of the importance ranking.
type FeatureScore struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// Result is everything a training run produces.
type Result struct {
	Forest         *forest.Forest
	Metrics        Metrics
	Ranking        []FeatureScore
	CompletionRate float64
	TrainSize      int
	TestSize       int
}

// Train splits x/labels, fits the forest on the training part and evaluates
// it on the held-out part. Empty or single-class data is rejected.
func Train(ctx context.Context, x [][]float64, labels []int, columns []string, opts Options) (*Result, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrDegenerate)
	}
	if len(x) != len(labels) {
		return nil, fmt.Errorf("%w: %d rows but %d labels", ErrDegenerate, len(x), len(labels))
	}
	for i, row := range x {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrDegenerate, i, len(row), len(columns))
		}
	}
	if _, err := forest.BalancedWeights(labels); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	if opts.TestFraction <= 0 || opts.TestFraction >= 1 {
		opts.TestFraction = DefaultOptions().TestFraction
	}
	if opts.TopN <= 0 {
		opts.TopN = DefaultOptions().TopN
	}

	rng := rand.New(rand.NewPCG(opts.Seed, 0))
	trainIdx, testIdx := StratifiedSplit(labels, opts.TestFraction, rng)

	xTrain, yTrain := subset(x, labels, trainIdx)
	f, err := forest.Fit(ctx, xTrain, yTrain, opts.Params, opts.Seed)
	if err != nil {
		if errors.Is(err, forest.ErrSingleClass) || errors.Is(err, forest.ErrEmpty) {
			return nil, fmt.Errorf("%w: %v", ErrDegenerate, err)
		}
		return nil, fmt.Errorf("fit forest: %w", err)
	}

	xTest, yTest := subset(x, labels, testIdx)
	predicted := make([]int, len(xTest))
	for i, row := range xTest {
		if predicted[i], err = f.Predict(row); err != nil {
			return nil, fmt.Errorf("evaluate: %w", err)
		}
	}

	asFloat := make([]float64, len(labels))
	for i, l := range labels {
		asFloat[i] = float64(l)
	}

	return &Result{
		Forest:         f,
		Metrics:        Evaluate(yTest, predicted),
		Ranking:        Rank(columns, f.FeatureImportances(), opts.TopN),
		CompletionRate: stat.Mean(asFloat, nil),
		TrainSize:      len(trainIdx),
		TestSize:       len(testIdx),
	}, nil
}

// StratifiedSplit shuffles each class separately and sends round(frac*n_c)
// of it to the test partition, keeping at least one row of every class for
// training. Both index lists are returned in ascending order.
func StratifiedSplit(labels []int, frac float64, rng *rand.Rand) (train, test []int) {
	byClass := map[int][]int{}
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	slices.Sort(classes)

	for _, c := range classes {
		idx := byClass[c]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		nTest := int(math.Round(frac * float64(len(idx))))
		if nTest >= len(idx) {
			nTest = len(idx) - 1
		}
		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}
	slices.Sort(train)
	slices.Sort(test)
	return train, test
}

func subset(x [][]float64, y []int, idx []int) ([][]float64, []int) {
	xs := make([][]float64, len(idx))
	ys := make([]int, len(idx))
	for i, j := range idx {
		xs[i] = x[j]
		ys[i] = y[j]
	}
	return xs, ys
}

// Rank returns the topN columns by importance, descending, rounded to four
// decimals. Ties keep column order.
func Rank(columns []string, importances []float64, topN int) []FeatureScore {
	n := min(len(columns), len(importances))
	neg := make([]float64, n)
	for i := 0; i < n; i++ {
		neg[i] = -importances[i]
	}
	inds := make([]int, n)
	floats.ArgsortStable(neg, inds)

	if topN > n {
		topN = n
	}
	out := make([]FeatureScore, 0, topN)
	for _, i := range inds[:topN] {
		out = append(out, FeatureScore{
			Feature:    columns[i],
			Importance: math.Round(importances[i]*1e4) / 1e4,
		})
	}
	return out
}
