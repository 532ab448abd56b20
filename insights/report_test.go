package insights

import (
	"bytes"
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"city311-api/artifact"
	"city311-api/features"
	"city311-api/ingest"
	"city311-api/training"
)

func rec(status, service, division, ward, created string) ingest.Record {
	ts, ok := ingest.ParseTimestamp(created)
	if !ok {
		panic("bad timestamp " + created)
	}
	return ingest.Record{
		Status:      status,
		ServiceType: service,
		Division:    division,
		Ward:        ward,
		CreatedAt:   ts,
		Month:       int(ts.Month()),
		Weekday:     ingest.MondayWeekday(ts.Weekday()),
		Hour:        ts.Hour(),
	}
}

func sampleRecords() []ingest.Record {
	return []ingest.Record{
		rec("Completed", "Pothole", "Transportation", "12", "2025-03-10 09:15:00"),
		rec("Closed", "Pothole", "Transportation", "12", "2025-03-10 14:00:00"),
		rec("Cancelled", "Graffiti", "Parks", "03", "2025-03-11 19:30:00"),
		rec("Completed", "Graffiti", "Parks", "12", "2025-03-12 09:00:00"),
		rec("In-progress", "Pothole", "Transportation", "03", "2025-03-12 02:00:00"),
	}
}

var generated = time.Date(2025, 3, 20, 8, 0, 0, 0, time.UTC)

func TestCounterTop(t *testing.T) {
	c := NewCounter()
	for _, k := range []string{"b", "a", "c", "a", "b", "d"} {
		c.Add(k)
	}
	want := []Count{{"a", 2}, {"b", 2}, {"c", 1}}
	if got := c.Top(3); !reflect.DeepEqual(got, want) {
		t.Errorf("Top(3) = %v, want %v", got, want)
	}
	if got := c.Top(0); len(got) != 4 {
		t.Errorf("Top(0) returned %d keys, want 4", len(got))
	}
	if c.Get("a") != 2 || c.Get("zzz") != 0 || c.Len() != 4 {
		t.Errorf("unexpected Get/Len: a=%d zzz=%d len=%d", c.Get("a"), c.Get("zzz"), c.Len())
	}
}

func TestBuild(t *testing.T) {
	rep, err := Build(sampleRecords(), generated)
	require.NoError(t, err)

	assert.Equal(t, 5, rep.TotalRecords)
	assert.Equal(t, DateRange{Start: "2025-03-10T09:15:00", End: "2025-03-12T09:00:00"}, rep.DateRange)
	assert.Equal(t, []string{"2025-03-10", "2025-03-11", "2025-03-12"}, rep.TimeSeries.Dates)
	assert.Equal(t, []int{2, 1, 2}, rep.TimeSeries.Counts)
	assert.Equal(t, []string{"12", "03"}, rep.WardDistribution.Wards)
	assert.Equal(t, []string{"Completed", "Cancelled", "Closed", "In-progress"}, rep.StatusDistribution.Statuses)
	assert.Equal(t, []int{2, 1, 1, 1}, rep.StatusDistribution.Counts)
	assert.Equal(t, []string{"Pothole", "Graffiti"}, rep.ServiceTypes.Types)
	assert.Equal(t, []string{"Transportation", "Parks"}, rep.DivisionDistribution.Divisions)

	require.Len(t, rep.HourlyPattern.Counts, 24)
	assert.Equal(t, 2, rep.HourlyPattern.Counts[9])
	assert.Equal(t, 1, rep.HourlyPattern.Counts[2])
	assert.Equal(t, 23, rep.HourlyPattern.Hours[23])
	assert.Equal(t, []int{2, 1, 2, 0, 0, 0, 0}, rep.WeekdayPattern.Counts)
	assert.Equal(t, "Monday", rep.WeekdayPattern.Days[0])
}

func TestBuildKPIs(t *testing.T) {
	rep, err := Build(sampleRecords(), generated)
	require.NoError(t, err)

	k := rep.KPIs
	assert.Equal(t, 60.0, k.CompletionRate)
	assert.Equal(t, "12", k.TopWard)
	assert.Equal(t, "Pothole", k.TopServiceType)
	assert.Equal(t, Efficiency{Name: "Pothole", Rate: 66.67, Cases: 3}, k.BestServiceType)
	assert.Equal(t, Efficiency{Name: "12", Rate: 100, Cases: 3}, k.BestWard)
	assert.Equal(t, Efficiency{Name: "Transportation", Rate: 66.67, Cases: 3}, k.BestDivision)
}

func TestBuildTimeSeriesKeepsLastDays(t *testing.T) {
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	var records []ingest.Record
	for d := 0; d < 35; d++ {
		records = append(records, rec("Completed", "Pothole", "Parks", "1", start.AddDate(0, 0, d).Format("2006-01-02 15:04:05")))
	}
	rep, err := Build(records, generated)
	require.NoError(t, err)

	require.Len(t, rep.TimeSeries.Dates, TimeSeriesDays)
	assert.Equal(t, "2025-01-06", rep.TimeSeries.Dates[0])
	assert.Equal(t, "2025-02-04", rep.TimeSeries.Dates[TimeSeriesDays-1])
}

func TestBuildEmpty(t *testing.T) {
	_, err := Build(nil, generated)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestAttachModel(t *testing.T) {
	rep, err := Build(sampleRecords(), generated)
	require.NoError(t, err)

	res := &training.Result{
		Metrics: training.Metrics{Accuracy: 0.9, F1: 0.8},
		Ranking: []training.FeatureScore{{Feature: "Hour", Importance: 0.5}, {Feature: "Ward_12", Importance: 0.25}},
	}
	rep.AttachModel(res, features.Domain{
		ingest.ColServiceType: {"Graffiti", "Pothole"},
		ingest.ColWard:        {"03", "12"},
	})

	require.NotNil(t, rep.ModelMetrics)
	assert.Equal(t, 0.9, rep.ModelMetrics.Accuracy)
	assert.Equal(t, []string{"Hour", "Ward_12"}, rep.FeatureImportance.Features)
	assert.Equal(t, []float64{0.5, 0.25}, rep.FeatureImportance.Importance)
	assert.Equal(t, []string{"Graffiti", "Pothole"}, rep.CategoricalValues.ServiceTypes)
	assert.Equal(t, []string{}, rep.CategoricalValues.Divisions)
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	store, err := artifact.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	rep, err := Build(sampleRecords(), generated)
	require.NoError(t, err)
	require.NoError(t, Save(ctx, store, rep))

	got, err := Load(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, rep.TotalRecords, got.TotalRecords)
	assert.Equal(t, rep.KPIs, got.KPIs)
	assert.True(t, rep.GeneratedAt.Equal(got.GeneratedAt))
}

func TestExportXLSX(t *testing.T) {
	rep, err := Build(sampleRecords(), generated)
	require.NoError(t, err)
	rep.AttachModel(&training.Result{
		Metrics: training.Metrics{Accuracy: 0.9},
		Ranking: []training.FeatureScore{{Feature: "Hour", Importance: 0.5}},
	}, nil)

	data, err := ExportXLSX(rep)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	assert.Contains(t, sheets, sheetSummary)
	assert.Contains(t, sheets, sheetWards)
	assert.Contains(t, sheets, sheetFeatures)

	v, err := f.GetCellValue(sheetWards, "A2")
	require.NoError(t, err)
	assert.Equal(t, "12", v)
	v, err = f.GetCellValue(sheetWards, "B2")
	require.NoError(t, err)
	assert.Equal(t, "3", v)
	v, err = f.GetCellValue(sheetSummary, "B3")
	require.NoError(t, err)
	assert.Equal(t, "5", v)
}
