// Package serving holds the read-only state the API answers from. A Snapshot
// is built once at startup and shared by every request goroutine.
package serving

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"city311-api/artifact"
	"city311-api/insights"
	"city311-api/prediction"
)

// Snapshot is immutable after Load. Either part may be absent; handlers
// report that as service unavailable.
type Snapshot struct {
	report    *insights.Report
	artifact  *artifact.Artifact
	predictor *prediction.Predictor
	loadedAt  time.Time
}

type Option func(*options)

type options struct {
	clock func() time.Time
}

// WithClock sets the clock used by the predictor for the Month feature.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// Load reads the report and the model artifact from store. Missing or corrupt
// objects are logged and leave that part of the snapshot empty; only a
// cancelled context is returned as an error.
func Load(ctx context.Context, store artifact.Store, logger *zap.Logger, opts ...Option) (*Snapshot, error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Snapshot{loadedAt: o.clock()}

	report, err := insights.Load(ctx, store)
	switch {
	case err == nil:
		s.report = report
		logger.Info("dashboard data loaded",
			zap.Int("total_records", report.TotalRecords),
			zap.Time("generated_at", report.GeneratedAt),
		)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, artifact.ErrNotFound):
		logger.Warn("dashboard data not found, run the pipeline first", zap.Error(err))
	default:
		logger.Error("dashboard data unreadable", zap.Error(err))
	}

	a, err := artifact.Load(ctx, store)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, artifact.ErrNotFound):
		logger.Warn("model artifact not found, run the pipeline first", zap.Error(err))
		return s, nil
	default:
		logger.Error("model artifact unreadable", zap.Error(err))
		return s, nil
	}

	p, err := prediction.New(a, prediction.WithClock(o.clock))
	if err != nil {
		logger.Error("model artifact rejected", zap.Error(err))
		return s, nil
	}
	s.artifact = a
	s.predictor = p
	logger.Info("model loaded",
		zap.String("run_id", a.RunID),
		zap.Time("trained_at", a.TrainedAt),
		zap.Int("features", len(a.ColumnOrder)),
	)
	return s, nil
}

// New assembles a snapshot from already loaded parts.
func New(report *insights.Report, a *artifact.Artifact, p *prediction.Predictor) *Snapshot {
	return &Snapshot{report: report, artifact: a, predictor: p, loadedAt: time.Now()}
}

func (s *Snapshot) Report() *insights.Report { return s.report }

func (s *Snapshot) Artifact() *artifact.Artifact { return s.artifact }

// Predictor is nil when no usable model was loaded.
func (s *Snapshot) Predictor() *prediction.Predictor { return s.predictor }

func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

func (s *Snapshot) ReportAvailable() bool { return s.report != nil }

func (s *Snapshot) ModelAvailable() bool { return s.predictor != nil }

// CategoricalValues returns the dropdown domains, preferring the report and
// falling back to the model artifact.
func (s *Snapshot) CategoricalValues() (insights.CategoricalValues, bool) {
	if s.report != nil {
		return s.report.CategoricalValues, true
	}
	if s.artifact != nil {
		return insights.CategoricalValuesOf(s.artifact.CategoricalValues), true
	}
	return insights.CategoricalValues{}, false
}
