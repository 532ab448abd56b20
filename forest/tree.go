package forest

import (
	"cmp"
	"math/rand/v2"
	"slices"
)

const leaf = -1

// Node is one entry of a flattened decision tree. Leaves have Feature == -1
// and carry the weighted class distribution in Value.
type Node struct {
	Feature   int        `json:"f"`
	Threshold float64    `json:"t,omitempty"`
	Left      int        `json:"l,omitempty"`
	Right     int        `json:"r,omitempty"`
	Value     [2]float64 `json:"v"`
}

// Tree is a binary CART classifier stored as a flat node slice, root first.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// PredictProba walks the tree for x and returns the leaf distribution.
func (t *Tree) PredictProba(x []float64) [2]float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Feature == leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// builder grows one tree over a weighted bootstrap sample.
type builder struct {
	x       [][]float64
	y       []int
	weights []float64
	params  Params
	rng     *rand.Rand

	nodes       []Node
	importances []float64
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	pos       int
}

func gini(w [2]float64) float64 {
	total := w[0] + w[1]
	if total <= 0 {
		return 0
	}
	p0, p1 := w[0]/total, w[1]/total
	return 1 - p0*p0 - p1*p1
}

func (b *builder) classWeights(samples []int) [2]float64 {
	var w [2]float64
	for _, s := range samples {
		w[b.y[s]] += b.weights[s]
	}
	return w
}

// grow appends the subtree for samples and returns its node index.
func (b *builder) grow(samples []int, depth int) int {
	w := b.classWeights(samples)
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: leaf, Value: normalize(w)})

	impurity := gini(w)
	if depth >= b.params.MaxDepth ||
		len(samples) < b.params.MinSamplesSplit ||
		len(samples) < 2*b.params.MinSamplesLeaf ||
		impurity == 0 {
		return idx
	}

	best, ok := b.bestSplit(samples, w, impurity)
	if !ok {
		return idx
	}

	slices.SortFunc(samples, func(a, c int) int {
		return cmp.Compare(b.x[a][best.feature], b.x[c][best.feature])
	})
	left := samples[:best.pos]
	right := samples[best.pos:]

	b.importances[best.feature] += best.gain

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[idx] = Node{
		Feature:   best.feature,
		Threshold: best.threshold,
		Left:      l,
		Right:     r,
		Value:     normalize(w),
	}
	return idx
}

// bestSplit evaluates up to MaxFeatures non-constant features drawn at random
// and returns the split with the largest weighted impurity decrease.
func (b *builder) bestSplit(samples []int, parent [2]float64, impurity float64) (split, bool) {
	nFeatures := len(b.x[0])
	order := b.rng.Perm(nFeatures)
	parentWeight := parent[0] + parent[1]

	best := split{gain: 0}
	found := false
	visited := 0
	sorted := make([]int, len(samples))

	for _, f := range order {
		if visited >= b.params.MaxFeatures {
			break
		}
		if b.constant(samples, f) {
			continue
		}
		visited++

		copy(sorted, samples)
		slices.SortFunc(sorted, func(a, c int) int {
			return cmp.Compare(b.x[a][f], b.x[c][f])
		})

		var lw [2]float64
		for i := 0; i < len(sorted)-1; i++ {
			s := sorted[i]
			lw[b.y[s]] += b.weights[s]

			cur, next := b.x[s][f], b.x[sorted[i+1]][f]
			if cur == next {
				continue
			}
			nLeft := i + 1
			if nLeft < b.params.MinSamplesLeaf || len(sorted)-nLeft < b.params.MinSamplesLeaf {
				continue
			}

			rw := [2]float64{parent[0] - lw[0], parent[1] - lw[1]}
			lTotal, rTotal := lw[0]+lw[1], rw[0]+rw[1]
			gain := parentWeight*impurity - lTotal*gini(lw) - rTotal*gini(rw)
			if gain > best.gain+1e-12 {
				best = split{feature: f, threshold: (cur + next) / 2, gain: gain, pos: nLeft}
				found = true
			}
		}
	}
	return best, found
}

func (b *builder) constant(samples []int, f int) bool {
	first := b.x[samples[0]][f]
	for _, s := range samples[1:] {
		if b.x[s][f] != first {
			return false
		}
	}
	return true
}

func normalize(w [2]float64) [2]float64 {
	total := w[0] + w[1]
	if total <= 0 {
		return [2]float64{0.5, 0.5}
	}
	return [2]float64{w[0] / total, w[1] / total}
}
