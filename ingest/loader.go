package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

// ErrMissingColumn is returned when the header lacks an essential column.
var ErrMissingColumn = errors.New("missing required column")

// isNA reports whether a trimmed cell is one of the placeholders spreadsheet
// exports of the 311 feed write for blank cells.
func isNA(v string) bool {
	switch v {
	case "", "NA", "N/A", "n/a", "NaN", "nan", "NULL", "null", "None":
		return true
	}
	return false
}

// LoadFile opens path and runs LoadAndClean on it.
func LoadFile(ctx context.Context, path string, logger *zap.Logger) ([]Record, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return LoadAndClean(ctx, f, logger)
}

// LoadAndClean reads a Latin-1 CSV export and returns the cleaned records.
// Unparseable rows, rows missing an essential field and rows with a bad
// Creation Date are skipped and counted in Stats. A header without an
// essential column aborts the load with ErrMissingColumn.
func LoadAndClean(ctx context.Context, src io.Reader, logger *zap.Logger) ([]Record, Stats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	reader := csv.NewReader(charmap.ISO8859_1.NewDecoder().Reader(src))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, Stats{}, fmt.Errorf("read header: %w", err)
	}
	index, err := headerIndex(header)
	if err != nil {
		return nil, Stats{}, err
	}
	width := len(header)

	var (
		stats   Stats
		records []Record
	)
	for {
		if stats.Rows%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		stats.Rows++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				stats.Malformed++
				continue
			}
			return nil, stats, fmt.Errorf("read row %d: %w", stats.Rows, err)
		}
		if len(row) > width {
			stats.Malformed++
			continue
		}

		rec, reason := cleanRow(row, index)
		switch reason {
		case dropMissing:
			stats.MissingFields++
			continue
		case dropTimestamp:
			stats.BadTimestamp++
			continue
		}
		records = append(records, rec)
	}
	stats.Kept = len(records)

	logger.Info("loaded service requests",
		zap.Int("rows", stats.Rows),
		zap.Int("kept", stats.Kept),
		zap.Int("malformed", stats.Malformed),
		zap.Int("missing_fields", stats.MissingFields),
		zap.Int("bad_timestamp", stats.BadTimestamp),
	)
	return records, stats, nil
}

type dropReason int

const (
	keep dropReason = iota
	dropMissing
	dropTimestamp
)

func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if i == 0 {
			name = strings.TrimPrefix(name, "\u00ef\u00bb\u00bf")
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}

	var missing []string
	for _, col := range EssentialColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return index, nil
}

func cell(row []string, index map[string]int, column string) string {
	i, ok := index[column]
	if !ok || i >= len(row) {
		return ""
	}
	v := strings.TrimSpace(row[i])
	if isNA(v) {
		return ""
	}
	return v
}

func cleanRow(row []string, index map[string]int) (Record, dropReason) {
	for _, col := range EssentialColumns {
		if cell(row, index, col) == "" {
			return Record{}, dropMissing
		}
	}

	created, ok := ParseTimestamp(cell(row, index, ColCreationDate))
	if !ok {
		return Record{}, dropTimestamp
	}

	serviceType := cell(row, index, ColServiceType)
	if alias, ok := ServiceTypeAliases[serviceType]; ok {
		serviceType = alias
	}

	return Record{
		Status:       cell(row, index, ColStatus),
		ServiceType:  serviceType,
		Division:     cell(row, index, ColDivision),
		Ward:         cell(row, index, ColWard),
		CreatedAt:    created,
		PostalPrefix: cell(row, index, ColPostalPrefix),
		Intersection: cell(row, index, ColIntersection),
		CrossStreet:  cell(row, index, ColCrossStreet),
		Month:        int(created.Month()),
		Weekday:      MondayWeekday(created.Weekday()),
		Hour:         created.Hour(),
	}, keep
}

// ParseTimestamp parses a Creation Date value using TimestampLayouts.
// Timestamps carry no zone and are interpreted as UTC wall-clock time.
func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range TimestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
