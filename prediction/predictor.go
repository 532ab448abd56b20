// Package prediction answers "will this request be completed?" for a partial,
// human-entered request using a loaded model artifact.
package prediction

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"city311-api/artifact"
	"city311-api/features"
	"city311-api/forest"
	"city311-api/ingest"
)

const (
	LabelHighlyLikely = "Highly Likely to be Completed"
	LabelLikely       = "Likely to be Completed"
	LabelMaybe        = "May be Completed"
	LabelUnlikely     = "Unlikely to be Completed"

	RemarkHigh     = "Historical data shows high completion rate for similar requests"
	RemarkModerate = "Moderate completion likelihood based on patterns"
	RemarkLow      = "Lower completion rate - may need follow-up"

	MaxFactors = 5
)

var ErrModelUnavailable = errors.New("ML model not available")

// ValidationError lists required request fields that were empty.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "Missing required fields: " + strings.Join(e.Missing, ", ")
}

// Request is the body of a prediction call.
type Request struct {
	ServiceType string `json:"service_type"`
	Ward        string `json:"ward"`
	Division    string `json:"division"`
	TimeOfDay   string `json:"time_of_day,omitempty"`
	DayOfWeek   string `json:"day_of_week,omitempty"`
}

// Validate reports the missing identifying fields in service_type, ward,
// division order.
func (r Request) Validate() error {
	var missing []string
	if strings.TrimSpace(r.ServiceType) == "" {
		missing = append(missing, "service_type")
	}
	if strings.TrimSpace(r.Ward) == "" {
		missing = append(missing, "ward")
	}
	if strings.TrimSpace(r.Division) == "" {
		missing = append(missing, "division")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// Result is the qualitative answer. Probability and Confidence are
// percentages; the JSON form carries them as one-decimal strings.
type Result struct {
	Prediction            string   `json:"prediction"`
	CompletionProbability string   `json:"completion_probability"`
	Confidence            string   `json:"confidence"`
	Factors               []string `json:"factors"`

	Probability    float64 `json:"-"`
	ConfidenceRate float64 `json:"-"`
}

// Predictor is immutable and safe for concurrent use.
type Predictor struct {
	schema *features.Schema
	model  *forest.Forest
	now    func() time.Time
}

type Option func(*Predictor)

// WithClock overrides the clock that supplies the Month feature.
func WithClock(now func() time.Time) Option {
	return func(p *Predictor) { p.now = now }
}

// New builds a predictor from a validated artifact. A missing or corrupt
// artifact yields ErrModelUnavailable.
func New(a *artifact.Artifact, opts ...Option) (*Predictor, error) {
	if a == nil {
		return nil, ErrModelUnavailable
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	schema, err := a.Schema()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	p := &Predictor{schema: schema, model: a.Model, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Vector validates req and maps it into the artifact's column layout.
func (p *Predictor) Vector(req Request) ([]float64, error) {
	if p == nil || p.schema == nil || p.model == nil {
		return nil, ErrModelUnavailable
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	vec, err := p.schema.EncodeOne(features.Input{
		Categories: map[string]string{
			ingest.ColServiceType: req.ServiceType,
			ingest.ColDivision:    req.Division,
			ingest.ColWard:        req.Ward,
		},
		TimeOfDay: req.TimeOfDay,
		DayOfWeek: req.DayOfWeek,
	}, p.now())
	if errors.Is(err, features.ErrNoColumns) {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return vec, err
}

// Predict scores req. Errors are either *ValidationError,
// ErrModelUnavailable or an internal failure.
func (p *Predictor) Predict(req Request) (*Result, error) {
	vec, err := p.Vector(req)
	if err != nil {
		return nil, err
	}
	proba, err := p.model.PredictProba(vec)
	if err != nil {
		return nil, fmt.Errorf("score request: %w", err)
	}

	probability := proba[1] * 100
	confidence := max(proba[0], proba[1]) * 100
	return &Result{
		Prediction:            Label(probability),
		CompletionProbability: fmt.Sprintf("%.1f", probability),
		Confidence:            fmt.Sprintf("%.1f", confidence),
		Factors:               Factors(req, probability),
		Probability:           probability,
		ConfidenceRate:        confidence,
	}, nil
}

// Label maps a completion percentage to its qualitative band.
func Label(percent float64) string {
	switch {
	case percent >= 70:
		return LabelHighlyLikely
	case percent >= 50:
		return LabelLikely
	case percent >= 30:
		return LabelMaybe
	default:
		return LabelUnlikely
	}
}

// Factors echoes the supplied inputs followed by a probability-banded remark,
// capped at MaxFactors. The list is explanatory text only.
func Factors(req Request, percent float64) []string {
	title := cases.Title(language.English)

	var out []string
	add := func(name, value string) {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, name+": "+value)
		}
	}
	add("Service Type", req.ServiceType)
	add("Ward", req.Ward)
	add("Division", req.Division)
	add("Time of Day", title.String(strings.TrimSpace(req.TimeOfDay)))
	add("Day of Week", title.String(strings.TrimSpace(req.DayOfWeek)))

	switch {
	case percent > 80:
		out = append(out, RemarkHigh)
	case percent > 60:
		out = append(out, RemarkModerate)
	case percent < 40:
		out = append(out, RemarkLow)
	}

	if len(out) > MaxFactors {
		out = out[:MaxFactors]
	}
	return out
}
