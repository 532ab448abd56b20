package prediction

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"city311-api/artifact"
	"city311-api/features"
	"city311-api/forest"
	"city311-api/ingest"
)

var marchClock = func() time.Time { return time.Date(2025, 3, 20, 16, 0, 0, 0, time.UTC) }

var testColumns = []string{
	"Service Request Type_Pothole",
	"Division_Transportation",
	"Ward_12",
	"Month", "Weekday", "Hour",
}

// constantArtifact returns an artifact whose single-leaf forest always
// answers p(completed) = p1.
func constantArtifact(p1 float64) *artifact.Artifact {
	return &artifact.Artifact{
		Version:     artifact.FormatVersion,
		ColumnOrder: testColumns,
		CategoricalValues: features.Domain{
			ingest.ColServiceType: {"Graffiti", "Pothole"},
			ingest.ColDivision:    {"Parks", "Transportation"},
			ingest.ColWard:        {"03", "12"},
		},
		Model: &forest.Forest{
			Trees:     []forest.Tree{{Nodes: []forest.Node{{Feature: -1, Value: [2]float64{1 - p1, p1}}}}},
			NFeatures: len(testColumns),
		},
	}
}

func newPredictor(t *testing.T, p1 float64) *Predictor {
	t.Helper()
	p, err := New(constantArtifact(p1), WithClock(marchClock))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return p
}

func TestLabel(t *testing.T) {
	tests := []struct {
		percent float64
		want    string
	}{
		{82, LabelHighlyLikely},
		{70, LabelHighlyLikely},
		{55, LabelLikely},
		{50, LabelLikely},
		{35, LabelMaybe},
		{30, LabelMaybe},
		{10, LabelUnlikely},
		{0, LabelUnlikely},
	}
	for _, tt := range tests {
		if got := Label(tt.percent); got != tt.want {
			t.Errorf("Label(%v) = %q, want %q", tt.percent, got, tt.want)
		}
	}
}

func TestValidateMissingWard(t *testing.T) {
	p := newPredictor(t, 0.5)
	_, err := p.Predict(Request{ServiceType: "Pothole", Division: "Transportation", Ward: "  "})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if !reflect.DeepEqual(verr.Missing, []string{"ward"}) {
		t.Errorf("Missing = %v, want [ward]", verr.Missing)
	}
	if verr.Error() != "Missing required fields: ward" {
		t.Errorf("Error() = %q", verr.Error())
	}
}

func TestValidateOrder(t *testing.T) {
	err := Request{}.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	want := []string{"service_type", "ward", "division"}
	if !reflect.DeepEqual(verr.Missing, want) {
		t.Errorf("Missing = %v, want %v", verr.Missing, want)
	}
}

func TestVectorScenario(t *testing.T) {
	p := newPredictor(t, 0.5)
	vec, err := p.Vector(Request{
		ServiceType: "Pothole",
		Ward:        "12",
		Division:    "Transportation",
		TimeOfDay:   "morning",
		DayOfWeek:   "monday",
	})
	if err != nil {
		t.Fatalf("Vector() error: %v", err)
	}
	want := []float64{1, 1, 1, 3, 0, 9}
	if !reflect.DeepEqual(vec, want) {
		t.Errorf("Vector() = %v, want %v", vec, want)
	}
}

func TestPredictUnknownServiceType(t *testing.T) {
	p := newPredictor(t, 0.5)
	req := Request{ServiceType: "UnknownTypeXYZ", Ward: "12", Division: "Transportation"}

	vec, err := p.Vector(req)
	if err != nil {
		t.Fatalf("Vector() error: %v", err)
	}
	if vec[0] != 0 {
		t.Errorf("service type indicator = %v, want 0", vec[0])
	}
	if _, err := p.Predict(req); err != nil {
		t.Errorf("Predict() error: %v", err)
	}
}

func TestPredictResult(t *testing.T) {
	p := newPredictor(t, 0.82)
	got, err := p.Predict(Request{ServiceType: "Pothole", Ward: "12", Division: "Transportation"})
	if err != nil {
		t.Fatalf("Predict() error: %v", err)
	}
	if got.Prediction != LabelHighlyLikely {
		t.Errorf("Prediction = %q, want %q", got.Prediction, LabelHighlyLikely)
	}
	if got.CompletionProbability != "82.0" {
		t.Errorf("CompletionProbability = %q, want 82.0", got.CompletionProbability)
	}
	if got.Confidence != "82.0" {
		t.Errorf("Confidence = %q, want 82.0", got.Confidence)
	}
	want := []string{"Service Type: Pothole", "Ward: 12", "Division: Transportation", RemarkHigh}
	if !reflect.DeepEqual(got.Factors, want) {
		t.Errorf("Factors = %v, want %v", got.Factors, want)
	}
}

func TestPredictConcurrent(t *testing.T) {
	p := newPredictor(t, 0.64)
	reqs := []Request{
		{ServiceType: "Pothole", Ward: "12", Division: "Transportation", TimeOfDay: "evening", DayOfWeek: "friday"},
		{ServiceType: "Graffiti", Ward: "03", Division: "Parks"},
	}
	want := make([]*Result, len(reqs))
	for i, req := range reqs {
		res, err := p.Predict(req)
		if err != nil {
			t.Fatalf("Predict() error: %v", err)
		}
		want[i] = res
	}

	var wg sync.WaitGroup
	for g := 0; g < 32; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				i := (g + j) % len(reqs)
				got, err := p.Predict(reqs[i])
				if err != nil {
					t.Errorf("Predict() error: %v", err)
					return
				}
				if !reflect.DeepEqual(got, want[i]) {
					t.Errorf("Predict() = %+v, want %+v", got, want[i])
					return
				}
			}
		}(g)
	}
	wg.Wait()
}

func TestConfidenceIsMaxClass(t *testing.T) {
	p := newPredictor(t, 0.1)
	got, err := p.Predict(Request{ServiceType: "Pothole", Ward: "12", Division: "Transportation"})
	if err != nil {
		t.Fatalf("Predict() error: %v", err)
	}
	if got.CompletionProbability != "10.0" || got.Confidence != "90.0" {
		t.Errorf("probability/confidence = %s/%s, want 10.0/90.0", got.CompletionProbability, got.Confidence)
	}
	if got.Prediction != LabelUnlikely {
		t.Errorf("Prediction = %q, want %q", got.Prediction, LabelUnlikely)
	}
}

func TestFactors(t *testing.T) {
	full := Request{ServiceType: "Pothole", Ward: "12", Division: "Transportation", TimeOfDay: "morning", DayOfWeek: "MONDAY"}
	tests := []struct {
		name    string
		req     Request
		percent float64
		want    []string
	}{
		{
			name:    "capped at five",
			req:     full,
			percent: 90,
			want:    []string{"Service Type: Pothole", "Ward: 12", "Division: Transportation", "Time of Day: Morning", "Day of Week: Monday"},
		},
		{
			name:    "moderate",
			req:     Request{ServiceType: "Pothole", Ward: "12", Division: "Parks"},
			percent: 65,
			want:    []string{"Service Type: Pothole", "Ward: 12", "Division: Parks", RemarkModerate},
		},
		{
			name:    "no remark between 40 and 60",
			req:     Request{ServiceType: "Pothole", Ward: "12", Division: "Parks"},
			percent: 45,
			want:    []string{"Service Type: Pothole", "Ward: 12", "Division: Parks"},
		},
		{
			name:    "low",
			req:     Request{ServiceType: "Pothole", Ward: "12", Division: "Parks", TimeOfDay: "night"},
			percent: 20,
			want:    []string{"Service Type: Pothole", "Ward: 12", "Division: Parks", "Time of Day: Night", RemarkLow},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Factors(tt.req, tt.percent); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Factors() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestModelUnavailable(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("New(nil) error = %v, want ErrModelUnavailable", err)
	}

	a := constantArtifact(0.5)
	a.ColumnOrder = nil
	if _, err := New(a); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("New(no columns) error = %v, want ErrModelUnavailable", err)
	}

	var p *Predictor
	if _, err := p.Predict(Request{ServiceType: "Pothole", Ward: "12", Division: "Parks"}); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("nil Predict() error = %v, want ErrModelUnavailable", err)
	}
}
