package insights

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary  = "Summary"
	sheetDaily    = "Daily"
	sheetWards    = "Wards"
	sheetStatuses = "Statuses"
	sheetTypes    = "Service Types"
	sheetDivision = "Divisions"
	sheetHourly   = "Hourly"
	sheetWeekday  = "Weekdays"
	sheetFeatures = "Feature Importance"
)

// ExportXLSX renders the report as a workbook with one sheet per chart.
func ExportXLSX(r *Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// The default workbook ships with "Sheet1"; reuse it as the summary.
	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, err
	}
	summary := [][]any{
		{"Generated At", r.GeneratedAt.Format(isoLayout)},
		{"Total Records", r.TotalRecords},
		{"Date Range Start", r.DateRange.Start},
		{"Date Range End", r.DateRange.End},
		{"Completion Rate (%)", r.KPIs.CompletionRate},
		{"Top Ward", r.KPIs.TopWard},
		{"Top Service Type", r.KPIs.TopServiceType},
		{"Best Service Type", fmt.Sprintf("%s (%.2f%%)", r.KPIs.BestServiceType.Name, r.KPIs.BestServiceType.Rate)},
		{"Best Ward", fmt.Sprintf("%s (%.2f%%)", r.KPIs.BestWard.Name, r.KPIs.BestWard.Rate)},
		{"Best Division", fmt.Sprintf("%s (%.2f%%)", r.KPIs.BestDivision.Name, r.KPIs.BestDivision.Rate)},
	}
	if m := r.ModelMetrics; m != nil {
		summary = append(summary,
			[]any{"Model Accuracy", m.Accuracy},
			[]any{"Model Precision", m.Precision},
			[]any{"Model Recall", m.Recall},
			[]any{"Model F1", m.F1},
		)
	}
	if err := writeRows(f, sheetSummary, []string{"Metric", "Value"}, summary); err != nil {
		return nil, err
	}
	_ = f.SetColWidth(sheetSummary, "A", "A", 22)
	_ = f.SetColWidth(sheetSummary, "B", "B", 40)

	tables := []struct {
		sheet  string
		header string
		keys   []string
		counts []int
	}{
		{sheetDaily, "Date", r.TimeSeries.Dates, r.TimeSeries.Counts},
		{sheetWards, "Ward", r.WardDistribution.Wards, r.WardDistribution.Counts},
		{sheetStatuses, "Status", r.StatusDistribution.Statuses, r.StatusDistribution.Counts},
		{sheetTypes, "Service Request Type", r.ServiceTypes.Types, r.ServiceTypes.Counts},
		{sheetDivision, "Division", r.DivisionDistribution.Divisions, r.DivisionDistribution.Counts},
		{sheetHourly, "Hour", hourLabels(r.HourlyPattern.Hours), r.HourlyPattern.Counts},
		{sheetWeekday, "Day", r.WeekdayPattern.Days, r.WeekdayPattern.Counts},
	}
	for _, t := range tables {
		if _, err := f.NewSheet(t.sheet); err != nil {
			return nil, err
		}
		rows := make([][]any, len(t.keys))
		for i := range t.keys {
			rows[i] = []any{t.keys[i], t.counts[i]}
		}
		if err := writeRows(f, t.sheet, []string{t.header, "Requests"}, rows); err != nil {
			return nil, err
		}
		_ = f.SetColWidth(t.sheet, "A", "A", 28)
	}

	if len(r.FeatureImportance.Features) > 0 {
		if _, err := f.NewSheet(sheetFeatures); err != nil {
			return nil, err
		}
		rows := make([][]any, len(r.FeatureImportance.Features))
		for i, name := range r.FeatureImportance.Features {
			rows[i] = []any{name, r.FeatureImportance.Importance[i]}
		}
		if err := writeRows(f, sheetFeatures, []string{"Feature", "Importance"}, rows); err != nil {
			return nil, err
		}
		_ = f.SetColWidth(sheetFeatures, "A", "A", 40)
	}

	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func hourLabels(hours []int) []string {
	out := make([]string, len(hours))
	for i, h := range hours {
		out[i] = strconv.Itoa(h)
	}
	return out
}
