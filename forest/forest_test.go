package forest

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand/v2"
	"reflect"
	"testing"
)

// separable builds rows where feature 0 decides the label and feature 1 is
// noise.
func separable(n int) ([][]float64, []int) {
	rng := rand.New(rand.NewPCG(7, 7))
	x := make([][]float64, n)
	y := make([]int, n)
	for i := range x {
		signal := float64(i % 2)
		x[i] = []float64{signal, rng.Float64()}
		y[i] = i % 2
	}
	return x, y
}

func smallParams() Params {
	return Params{Trees: 15, MaxDepth: 5, MinSamplesSplit: 4, MinSamplesLeaf: 2}
}

func TestFitSeparable(t *testing.T) {
	x, y := separable(200)
	f, err := Fit(context.Background(), x, y, smallParams(), 42)
	if err != nil {
		t.Fatalf("Fit() error: %v", err)
	}

	for _, tc := range []struct {
		row  []float64
		want int
	}{
		{[]float64{1, 0.3}, 1},
		{[]float64{0, 0.3}, 0},
	} {
		got, err := f.Predict(tc.row)
		if err != nil {
			t.Fatalf("Predict() error: %v", err)
		}
		if got != tc.want {
			t.Errorf("Predict(%v) = %d, want %d", tc.row, got, tc.want)
		}
	}

	p, err := f.PredictProba([]float64{1, 0.5})
	if err != nil {
		t.Fatalf("PredictProba() error: %v", err)
	}
	if math.Abs(p[0]+p[1]-1) > 1e-9 {
		t.Errorf("probabilities sum to %v, want 1", p[0]+p[1])
	}
	if p[1] < 0.9 {
		t.Errorf("P(1) = %v, want >= 0.9 for a perfectly separable feature", p[1])
	}
}

func TestFitImportances(t *testing.T) {
	x, y := separable(200)
	f, err := Fit(context.Background(), x, y, smallParams(), 42)
	if err != nil {
		t.Fatalf("Fit() error: %v", err)
	}
	if len(f.Importances) != 2 {
		t.Fatalf("len(Importances) = %d, want 2", len(f.Importances))
	}
	sum := f.Importances[0] + f.Importances[1]
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("importances sum to %v, want 1", sum)
	}
	if f.Importances[0] <= f.Importances[1] {
		t.Errorf("signal importance %v should exceed noise %v", f.Importances[0], f.Importances[1])
	}
}

func TestFitDeterministic(t *testing.T) {
	x, y := separable(120)
	a, err := Fit(context.Background(), x, y, smallParams(), 99)
	if err != nil {
		t.Fatalf("Fit() error: %v", err)
	}
	b, err := Fit(context.Background(), x, y, smallParams(), 99)
	if err != nil {
		t.Fatalf("Fit() error: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed produced different forests")
	}
}

func TestFitErrors(t *testing.T) {
	ctx := context.Background()

	if _, err := Fit(ctx, nil, nil, smallParams(), 1); !errors.Is(err, ErrEmpty) {
		t.Errorf("empty: expected ErrEmpty, got %v", err)
	}

	x := [][]float64{{1}, {2}, {3}}
	if _, err := Fit(ctx, x, []int{1, 1, 1}, smallParams(), 1); !errors.Is(err, ErrSingleClass) {
		t.Errorf("single class: expected ErrSingleClass, got %v", err)
	}

	ragged := [][]float64{{1, 2}, {3}}
	if _, err := Fit(ctx, ragged, []int{0, 1}, smallParams(), 1); !errors.Is(err, ErrShape) {
		t.Errorf("ragged: expected ErrShape, got %v", err)
	}

	if _, err := Fit(ctx, x, []int{0, 1}, smallParams(), 1); err == nil {
		t.Error("expected error for label count mismatch")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	xs, ys := separable(50)
	if _, err := Fit(cancelled, xs, ys, smallParams(), 1); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled: expected context.Canceled, got %v", err)
	}
}

func TestBalancedWeights(t *testing.T) {
	w, err := BalancedWeights([]int{0, 0, 0, 1})
	if err != nil {
		t.Fatalf("BalancedWeights() error: %v", err)
	}
	if math.Abs(w[0]-4.0/6.0) > 1e-9 || math.Abs(w[1]-2.0) > 1e-9 {
		t.Errorf("BalancedWeights = %v, want [0.667 2]", w)
	}
	if _, err := BalancedWeights([]int{0, 2}); err == nil {
		t.Error("expected error for non-binary label")
	}
}

func TestPredictProbaShape(t *testing.T) {
	x, y := separable(40)
	f, err := Fit(context.Background(), x, y, smallParams(), 3)
	if err != nil {
		t.Fatalf("Fit() error: %v", err)
	}
	if _, err := f.PredictProba([]float64{1}); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
}

func TestJSONRoundTripPredictsSame(t *testing.T) {
	x, y := separable(80)
	f, err := Fit(context.Background(), x, y, smallParams(), 5)
	if err != nil {
		t.Fatalf("Fit() error: %v", err)
	}
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded Forest
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if err := decoded.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	for _, row := range x[:10] {
		want, _ := f.PredictProba(row)
		got, _ := decoded.PredictProba(row)
		if want != got {
			t.Errorf("PredictProba(%v) = %v after round trip, want %v", row, got, want)
		}
	}
}

func TestValidateRejectsBadNodes(t *testing.T) {
	f := &Forest{
		NFeatures: 1,
		Trees: []Tree{{Nodes: []Node{
			{Feature: 3, Threshold: 0.5, Left: 1, Right: 2},
			{Feature: leaf, Value: [2]float64{1, 0}},
			{Feature: leaf, Value: [2]float64{0, 1}},
		}}},
	}
	if err := f.Validate(); err == nil {
		t.Error("expected error for out-of-range feature")
	}
	f.Trees[0].Nodes[0].Feature = 0
	f.Trees[0].Nodes[0].Right = 7
	if err := f.Validate(); err == nil {
		t.Error("expected error for out-of-range child")
	}
	if err := (&Forest{NFeatures: 1}).Validate(); err == nil {
		t.Error("expected error for forest without trees")
	}
}
