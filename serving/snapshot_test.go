package serving

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"city311-api/artifact"
	"city311-api/features"
	"city311-api/forest"
	"city311-api/ingest"
	"city311-api/insights"
)

func testArtifact() *artifact.Artifact {
	columns := []string{"Ward_12", "Month", "Weekday", "Hour"}
	return &artifact.Artifact{
		Version:           artifact.FormatVersion,
		RunID:             "run-1",
		ColumnOrder:       columns,
		CategoricalValues: features.Domain{ingest.ColWard: {"03", "12"}},
		Model: &forest.Forest{
			Trees:     []forest.Tree{{Nodes: []forest.Node{{Feature: -1, Value: [2]float64{0.25, 0.75}}}}},
			NFeatures: len(columns),
		},
	}
}

func newStore(t *testing.T) artifact.Store {
	t.Helper()
	store, err := artifact.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestLoadEmptyStore(t *testing.T) {
	s, err := Load(context.Background(), newStore(t), zap.NewNop())
	require.NoError(t, err)
	assert.False(t, s.ReportAvailable())
	assert.False(t, s.ModelAvailable())
	assert.Nil(t, s.Predictor())

	_, ok := s.CategoricalValues()
	assert.False(t, ok)
}

func TestLoadComplete(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, artifact.Save(ctx, store, testArtifact()))
	require.NoError(t, insights.Save(ctx, store, &insights.Report{
		TotalRecords:      3,
		CategoricalValues: insights.CategoricalValues{Wards: []string{"03", "12", "20"}},
	}))

	clock := func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	s, err := Load(ctx, store, zap.NewNop(), WithClock(clock))
	require.NoError(t, err)
	assert.True(t, s.ReportAvailable())
	assert.True(t, s.ModelAvailable())
	assert.Equal(t, "run-1", s.Artifact().RunID)
	assert.Equal(t, clock(), s.LoadedAt())

	values, ok := s.CategoricalValues()
	require.True(t, ok)
	assert.Equal(t, []string{"03", "12", "20"}, values.Wards)
}

func TestLoadCorruptArtifact(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Put(ctx, artifact.ModelKey, []byte(`{"version": 1, "column_order": []}`)))

	s, err := Load(ctx, store, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, s.ModelAvailable())
}

func TestCategoricalValuesFallsBackToArtifact(t *testing.T) {
	s := New(nil, testArtifact(), nil)
	values, ok := s.CategoricalValues()
	require.True(t, ok)
	assert.Equal(t, []string{"03", "12"}, values.Wards)
	assert.Equal(t, []string{}, values.ServiceTypes)
}

func TestLoadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Load(ctx, newStore(t), zap.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
}
