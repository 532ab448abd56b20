// Package pipeline runs one batch: load and clean the export, build the
// dashboard report, encode, train, and persist the report and model artifact.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"city311-api/artifact"
	"city311-api/features"
	"city311-api/ingest"
	"city311-api/insights"
	"city311-api/metrics"
	"city311-api/models"
	"city311-api/training"
)

// Recorder persists the run history.
type Recorder interface {
	RecordRun(ctx context.Context, run *models.ModelRun) error
}

// Publisher fans run events out to live listeners.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

type Options struct {
	// Fields are the categorical fields to encode; empty means
	// features.DefaultFields.
	Fields   []string
	Training training.Options
}

func DefaultOptions() Options {
	return Options{Training: training.DefaultOptions()}
}

// Summary is everything one successful run produced.
type Summary struct {
	Run      *models.ModelRun
	Stats    ingest.Stats
	Report   *insights.Report
	Artifact *artifact.Artifact
	Result   *training.Result
}

type Runner struct {
	store     artifact.Store
	recorder  Recorder
	publisher Publisher
	channel   string
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

type Option func(*Runner)

func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

func WithPublisher(pub Publisher, channel string) Option {
	return func(r *Runner) {
		r.publisher = pub
		r.channel = channel
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func NewRunner(store artifact.Store, opts ...Option) *Runner {
	r := &Runner{
		store:  store,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunFile runs the pipeline over a CSV export on disk.
func (r *Runner) RunFile(ctx context.Context, path string, opts Options) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return r.Run(ctx, f, path, opts)
}

// Run executes one batch over src. The run is recorded and published when it
// starts and again when it finishes, whatever the outcome.
func (r *Runner) Run(ctx context.Context, src io.Reader, source string, opts Options) (*Summary, error) {
	start := time.Now()
	defer func() {
		metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	}()

	run := &models.ModelRun{
		RunID:     r.newID(),
		Status:    models.RunStarted,
		Source:    source,
		StartedAt: r.now(),
	}
	log := r.logger.With(zap.String("run_id", run.RunID), zap.String("source", source))
	log.Info("pipeline started")
	r.report(ctx, log, run)

	sum, err := r.execute(ctx, log, src, run, opts)

	finished := r.now()
	run.FinishedAt = &finished
	if err != nil {
		run.Status = models.RunFailed
		run.Error = err.Error()
		metrics.PipelineRuns.WithLabelValues(models.RunFailed).Inc()
		log.Error("pipeline failed", zap.Error(err))
	} else {
		run.Status = models.RunSucceeded
		metrics.PipelineRuns.WithLabelValues(models.RunSucceeded).Inc()
		log.Info("pipeline completed",
			zap.Int("records", run.RecordsKept),
			zap.Float64("accuracy", sum.Result.Metrics.Accuracy),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	// The final record must land even when ctx was cancelled mid-run.
	r.report(context.WithoutCancel(ctx), log, run)

	if err != nil {
		return nil, err
	}
	return sum, nil
}

func (r *Runner) execute(ctx context.Context, log *zap.Logger, src io.Reader, run *models.ModelRun, opts Options) (*Summary, error) {
	records, stats, err := ingest.LoadAndClean(ctx, src, log)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	run.RowsRead = stats.Rows
	run.RecordsKept = stats.Kept
	run.RecordsDropped = stats.Dropped()
	metrics.RecordsLoaded.Add(float64(stats.Kept))
	metrics.RecordsDropped.WithLabelValues("malformed").Add(float64(stats.Malformed))
	metrics.RecordsDropped.WithLabelValues("missing_fields").Add(float64(stats.MissingFields))
	metrics.RecordsDropped.WithLabelValues("bad_timestamp").Add(float64(stats.BadTimestamp))
	if len(records) == 0 {
		return nil, fmt.Errorf("no usable records: %w", features.ErrNoRecords)
	}

	now := r.now()
	report, err := insights.Build(records, now)
	if err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}

	enc, err := features.Fit(records, opts.Fields)
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	labels := make([]int, len(records))
	for i, rec := range records {
		labels[i] = training.Label(rec.Status)
	}
	log.Info("features encoded",
		zap.Int("rows", len(enc.Matrix)),
		zap.Int("columns", enc.Schema.Width()),
	)

	res, err := training.Train(ctx, enc.Matrix, labels, enc.Schema.Columns, opts.Training)
	if err != nil {
		return nil, fmt.Errorf("train model: %w", err)
	}
	run.TrainSize = res.TrainSize
	run.TestSize = res.TestSize
	run.Accuracy = &res.Metrics.Accuracy
	run.PrecisionScore = &res.Metrics.Precision
	run.Recall = &res.Metrics.Recall
	run.F1Score = &res.Metrics.F1
	run.CompletionRate = &res.CompletionRate
	metrics.ModelAccuracy.Set(res.Metrics.Accuracy)

	art := &artifact.Artifact{
		Version:           artifact.FormatVersion,
		RunID:             run.RunID,
		TrainedAt:         now,
		ColumnOrder:       enc.Schema.Columns,
		Fields:            enc.Schema.Fields(),
		CategoricalValues: enc.Schema.Domain,
		Metrics:           res.Metrics,
		FeatureImportance: res.Ranking,
		Model:             res.Forest,
	}
	if err := artifact.Save(ctx, r.store, art); err != nil {
		return nil, fmt.Errorf("save artifact: %w", err)
	}
	run.ArtifactKey = artifact.ModelKey

	report.AttachModel(res, enc.Schema.Domain)
	if err := insights.Save(ctx, r.store, report); err != nil {
		return nil, fmt.Errorf("save insights: %w", err)
	}

	return &Summary{
		Run:      run,
		Stats:    stats,
		Report:   report,
		Artifact: art,
		Result:   res,
	}, nil
}

// report records and publishes the current run state. Failures here never
// fail the run.
func (r *Runner) report(ctx context.Context, log *zap.Logger, run *models.ModelRun) {
	if r.recorder != nil {
		if err := r.recorder.RecordRun(ctx, run); err != nil {
			log.Warn("record run failed", zap.String("status", run.Status), zap.Error(err))
		}
	}
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, r.channel, run); err != nil {
			log.Warn("publish run event failed", zap.String("status", run.Status), zap.Error(err))
		}
	}
}
