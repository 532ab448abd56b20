package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

const sampleCSV = ` Status ,Service Request Type , Division,Ward,Creation Date ,First 3 Chars of Postal Code
Completed,Pothole,Transportation,12,2025-03-10 09:15:00,M5V
  Closed  ,Graffiti,Municipal Licensing,4,2025-03-11 14:00:00,M4C
In-progress,Pothole,Transportation,12,2025-03-12 22:30:00,
,Pothole,Transportation,12,2025-03-12 22:30:00,M5V
Completed,,Transportation,12,2025-03-12 22:30:00,M5V
Completed,Pothole,Transportation,12,not-a-date,M5V
Completed,Pothole,Transportation,12,2025-03-12 22:30:00,M5V,extra,fields
Cancelled,Missing / Damaged Street or Traffic Sign,Transportation,NA,2025-03-13,M6K
Cancelled,Missing / Damaged Street or Traffic Sign,Transportation,3,2025-03-13,M6K
Completed,Graffiti,Parks,7,2025-03-14 08:00:00
`

func TestLoadAndClean(t *testing.T) {
	records, stats, err := LoadAndClean(context.Background(), strings.NewReader(sampleCSV), nil)
	if err != nil {
		t.Fatalf("LoadAndClean() error: %v", err)
	}

	if stats.Rows != 10 {
		t.Errorf("Rows = %d, want 10", stats.Rows)
	}
	if stats.Kept != 5 {
		t.Errorf("Kept = %d, want 5", stats.Kept)
	}
	if stats.Malformed != 1 {
		t.Errorf("Malformed = %d, want 1", stats.Malformed)
	}
	if stats.MissingFields != 3 {
		t.Errorf("MissingFields = %d, want 3", stats.MissingFields)
	}
	if stats.BadTimestamp != 1 {
		t.Errorf("BadTimestamp = %d, want 1", stats.BadTimestamp)
	}
	if stats.Dropped()+stats.Kept != stats.Rows {
		t.Errorf("dropped %d + kept %d != rows %d", stats.Dropped(), stats.Kept, stats.Rows)
	}
	if len(records) != stats.Kept {
		t.Fatalf("len(records) = %d, want %d", len(records), stats.Kept)
	}

	for i, r := range records {
		for _, col := range EssentialColumns[:4] {
			if r.Field(col) == "" {
				t.Errorf("record %d has empty %s", i, col)
			}
		}
		if r.CreatedAt.IsZero() {
			t.Errorf("record %d has zero creation time", i)
		}
	}
}

func TestLoadAndCleanScenario(t *testing.T) {
	records, _, err := LoadAndClean(context.Background(), strings.NewReader(sampleCSV), nil)
	if err != nil {
		t.Fatalf("LoadAndClean() error: %v", err)
	}

	r := records[0]
	if r.Status != "Completed" || r.ServiceType != "Pothole" || r.Ward != "12" || r.Division != "Transportation" {
		t.Fatalf("unexpected first record: %+v", r)
	}
	if r.Month != 3 {
		t.Errorf("Month = %d, want 3", r.Month)
	}
	if r.Weekday != 0 {
		t.Errorf("Weekday = %d, want 0 (Monday)", r.Weekday)
	}
	if r.Hour != 9 {
		t.Errorf("Hour = %d, want 9", r.Hour)
	}
	if r.Date() != "2025-03-10" {
		t.Errorf("Date() = %q, want %q", r.Date(), "2025-03-10")
	}
	if r.PostalPrefix != "M5V" {
		t.Errorf("PostalPrefix = %q, want %q", r.PostalPrefix, "M5V")
	}
}

func TestLoadAndCleanKeepsShortRows(t *testing.T) {
	records, _, err := LoadAndClean(context.Background(), strings.NewReader(sampleCSV), nil)
	if err != nil {
		t.Fatalf("LoadAndClean() error: %v", err)
	}
	// The last row omits the trailing postal code column.
	r := records[len(records)-1]
	if r.ServiceType != "Graffiti" || r.Ward != "7" || r.Division != "Parks" {
		t.Fatalf("unexpected short-row record: %+v", r)
	}
	if r.PostalPrefix != "" {
		t.Errorf("PostalPrefix = %q, want empty", r.PostalPrefix)
	}
}

func TestLoadAndCleanTrimsStatus(t *testing.T) {
	records, _, err := LoadAndClean(context.Background(), strings.NewReader(sampleCSV), nil)
	if err != nil {
		t.Fatalf("LoadAndClean() error: %v", err)
	}
	if records[1].Status != "Closed" {
		t.Errorf("Status = %q, want %q", records[1].Status, "Closed")
	}
}

func TestLoadAndCleanAppliesServiceTypeAliases(t *testing.T) {
	records, _, err := LoadAndClean(context.Background(), strings.NewReader(sampleCSV), nil)
	if err != nil {
		t.Fatalf("LoadAndClean() error: %v", err)
	}
	last := records[len(records)-2]
	if last.ServiceType != "Faulty Traffic Sign" {
		t.Errorf("ServiceType = %q, want %q", last.ServiceType, "Faulty Traffic Sign")
	}
	if last.Hour != 0 {
		t.Errorf("date-only timestamp Hour = %d, want 0", last.Hour)
	}
}

func TestLoadAndCleanMissingColumn(t *testing.T) {
	input := "Status,Service Request Type,Division,Creation Date\nCompleted,Pothole,Transportation,2025-03-10 09:15:00\n"
	_, _, err := LoadAndClean(context.Background(), strings.NewReader(input), nil)
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
	if !strings.Contains(err.Error(), "Ward") {
		t.Errorf("error should name the missing column, got %q", err.Error())
	}
}

func TestLoadAndCleanLatin1(t *testing.T) {
	// 0xE9 is "é" in ISO-8859-1 and invalid on its own in UTF-8.
	input := "Status,Service Request Type,Division,Ward,Creation Date\n" +
		"Completed,Caf\xe9 Noise,Municipal Licensing,Spadina-Fort York (10),2025-01-06 10:00:00\n"
	records, _, err := LoadAndClean(context.Background(), strings.NewReader(input), nil)
	if err != nil {
		t.Fatalf("LoadAndClean() error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	if records[0].ServiceType != "Café Noise" {
		t.Errorf("ServiceType = %q, want %q", records[0].ServiceType, "Café Noise")
	}
}

func TestLoadAndCleanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := LoadAndClean(ctx, strings.NewReader(sampleCSV), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want time.Time
	}{
		{"2025-03-10 09:15:00", true, time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)},
		{"2025-03-10T09:15:00", true, time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)},
		{" 2025-03-10 09:15 ", true, time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)},
		{"2025-03-10", true, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{"10/03/2025", false, time.Time{}},
		{"", false, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.in)
			if ok != tt.ok {
				t.Fatalf("ParseTimestamp(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestMondayWeekday(t *testing.T) {
	tests := []struct {
		day  time.Weekday
		want int
	}{
		{time.Monday, 0},
		{time.Tuesday, 1},
		{time.Saturday, 5},
		{time.Sunday, 6},
	}
	for _, tt := range tests {
		if got := MondayWeekday(tt.day); got != tt.want {
			t.Errorf("MondayWeekday(%s) = %d, want %d", tt.day, got, tt.want)
		}
	}
}
