// Package insights derives the chart-ready aggregates served by the dashboard
// from a cleaned record set.
package insights

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"city311-api/artifact"
	"city311-api/features"
	"city311-api/ingest"
	"city311-api/training"
)

const (
	TimeSeriesDays = 30
	TopWards       = 15
	TopTypes       = 15
	TopDivisions   = 10

	isoLayout = "2006-01-02T15:04:05"
)

var WeekdayNames = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

var ErrEmpty = errors.New("no records to summarise")

type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type TimeSeries struct {
	Dates  []string `json:"dates"`
	Counts []int    `json:"counts"`
}

type WardDistribution struct {
	Wards  []string `json:"wards"`
	Counts []int    `json:"counts"`
}

type StatusDistribution struct {
	Statuses []string `json:"statuses"`
	Counts   []int    `json:"counts"`
}

type ServiceTypes struct {
	Types  []string `json:"types"`
	Counts []int    `json:"counts"`
}

type DivisionDistribution struct {
	Divisions []string `json:"divisions"`
	Counts    []int    `json:"counts"`
}

type HourlyPattern struct {
	Hours  []int `json:"hours"`
	Counts []int `json:"counts"`
}

type WeekdayPattern struct {
	Days   []string `json:"days"`
	Counts []int    `json:"counts"`
}

// Efficiency is the completed share of one category value, in percent.
type Efficiency struct {
	Name  string  `json:"name"`
	Rate  float64 `json:"rate"`
	Cases int     `json:"cases"`
}

type KPIs struct {
	CompletionRate  float64    `json:"completion_rate"`
	TopWard         string     `json:"top_ward"`
	TopServiceType  string     `json:"top_service_type"`
	BestServiceType Efficiency `json:"best_service_type"`
	BestWard        Efficiency `json:"best_ward"`
	BestDivision    Efficiency `json:"best_division"`
}

type FeatureImportance struct {
	Features   []string  `json:"features"`
	Importance []float64 `json:"importance"`
}

type CategoricalValues struct {
	ServiceTypes []string `json:"service_types"`
	Divisions    []string `json:"divisions"`
	Wards        []string `json:"wards"`
}

// Report is the insights.json document.
type Report struct {
	GeneratedAt          time.Time            `json:"generated_at"`
	TotalRecords         int                  `json:"total_records"`
	DateRange            DateRange            `json:"date_range"`
	TimeSeries           TimeSeries           `json:"time_series"`
	WardDistribution     WardDistribution     `json:"ward_distribution"`
	StatusDistribution   StatusDistribution   `json:"status_distribution"`
	ServiceTypes         ServiceTypes         `json:"service_types"`
	DivisionDistribution DivisionDistribution `json:"division_distribution"`
	HourlyPattern        HourlyPattern        `json:"hourly_pattern"`
	WeekdayPattern       WeekdayPattern       `json:"weekday_pattern"`
	KPIs                 KPIs                 `json:"kpis"`
	ModelMetrics         *training.Metrics    `json:"model_metrics,omitempty"`
	FeatureImportance    FeatureImportance    `json:"feature_importance"`
	CategoricalValues    CategoricalValues    `json:"categorical_values"`
}

// Build computes every descriptive block of the report. Model-derived blocks
// are filled in by AttachModel.
func Build(records []ingest.Record, now time.Time) (*Report, error) {
	if len(records) == 0 {
		return nil, ErrEmpty
	}

	days := NewCounter()
	wards := NewCounter()
	statuses := NewCounter()
	types := NewCounter()
	divisions := NewCounter()
	var hours [24]int
	var weekdays [7]int
	completed := 0

	start, end := records[0].CreatedAt, records[0].CreatedAt
	for _, r := range records {
		days.Add(r.Date())
		wards.Add(r.Ward)
		statuses.Add(r.Status)
		types.Add(r.ServiceType)
		divisions.Add(r.Division)
		hours[r.Hour]++
		weekdays[r.Weekday]++
		completed += training.Label(r.Status)
		if r.CreatedAt.Before(start) {
			start = r.CreatedAt
		}
		if r.CreatedAt.After(end) {
			end = r.CreatedAt
		}
	}

	rep := &Report{
		GeneratedAt:  now,
		TotalRecords: len(records),
		DateRange:    DateRange{Start: start.Format(isoLayout), End: end.Format(isoLayout)},
	}

	daily := days.Sorted()
	if len(daily) > TimeSeriesDays {
		daily = daily[len(daily)-TimeSeriesDays:]
	}
	rep.TimeSeries.Dates, rep.TimeSeries.Counts = split(daily)
	rep.WardDistribution.Wards, rep.WardDistribution.Counts = split(wards.Top(TopWards))
	rep.StatusDistribution.Statuses, rep.StatusDistribution.Counts = split(statuses.Top(0))
	rep.ServiceTypes.Types, rep.ServiceTypes.Counts = split(types.Top(TopTypes))
	rep.DivisionDistribution.Divisions, rep.DivisionDistribution.Counts = split(divisions.Top(TopDivisions))

	rep.HourlyPattern.Hours = make([]int, 24)
	for h := range rep.HourlyPattern.Hours {
		rep.HourlyPattern.Hours[h] = h
	}
	rep.HourlyPattern.Counts = hours[:]
	rep.WeekdayPattern.Days = slices.Clone(WeekdayNames)
	rep.WeekdayPattern.Counts = weekdays[:]

	rep.KPIs = KPIs{
		CompletionRate:  round2(100 * float64(completed) / float64(len(records))),
		TopWard:         rep.WardDistribution.Wards[0],
		TopServiceType:  rep.ServiceTypes.Types[0],
		BestServiceType: mostEfficient(records, ingest.ColServiceType),
		BestWard:        mostEfficient(records, ingest.ColWard),
		BestDivision:    mostEfficient(records, ingest.ColDivision),
	}
	return rep, nil
}

// AttachModel adds the trainer's metrics, the ranked importances and the
// dropdown domains recorded in the artifact.
func (r *Report) AttachModel(res *training.Result, domain features.Domain) {
	if res != nil {
		m := res.Metrics
		r.ModelMetrics = &m
		r.FeatureImportance = FeatureImportance{
			Features:   make([]string, len(res.Ranking)),
			Importance: make([]float64, len(res.Ranking)),
		}
		for i, s := range res.Ranking {
			r.FeatureImportance.Features[i] = s.Feature
			r.FeatureImportance.Importance[i] = s.Importance
		}
	}
	r.CategoricalValues = CategoricalValuesOf(domain)
}

// CategoricalValuesOf exposes a category domain in dropdown form.
func CategoricalValuesOf(domain features.Domain) CategoricalValues {
	nonNil := func(v []string) []string {
		if v == nil {
			return []string{}
		}
		return v
	}
	return CategoricalValues{
		ServiceTypes: nonNil(domain[ingest.ColServiceType]),
		Divisions:    nonNil(domain[ingest.ColDivision]),
		Wards:        nonNil(domain[ingest.ColWard]),
	}
}

// mostEfficient returns the value of field with the highest completed share.
// Ties prefer more cases, then the smaller name.
func mostEfficient(records []ingest.Record, field string) Efficiency {
	type tally struct{ cases, done int }
	tallies := make(map[string]*tally)
	for _, r := range records {
		k := r.Field(field)
		t, ok := tallies[k]
		if !ok {
			t = &tally{}
			tallies[k] = t
		}
		t.cases++
		t.done += training.Label(r.Status)
	}

	all := make([]Efficiency, 0, len(tallies))
	for k, t := range tallies {
		all = append(all, Efficiency{Name: k, Rate: 100 * float64(t.done) / float64(t.cases), Cases: t.cases})
	}
	slices.SortFunc(all, func(a, b Efficiency) int {
		if a.Rate != b.Rate {
			return cmp.Compare(b.Rate, a.Rate)
		}
		if a.Cases != b.Cases {
			return cmp.Compare(b.Cases, a.Cases)
		}
		return cmp.Compare(a.Name, b.Name)
	})
	best := all[0]
	best.Rate = round2(best.Rate)
	return best
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Save writes the report under artifact.InsightsKey.
func Save(ctx context.Context, store artifact.Store, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode insights: %w", err)
	}
	return store.Put(ctx, artifact.InsightsKey, data)
}

// Load reads the report stored under artifact.InsightsKey.
func Load(ctx context.Context, store artifact.Store) (*Report, error) {
	data, err := store.Get(ctx, artifact.InsightsKey)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode insights: %w", err)
	}
	return &r, nil
}
