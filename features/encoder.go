// Package features turns cleaned service requests into fixed-width numeric
// vectors. The column layout produced by Fit is the contract between training
// and inference: Schema.EncodeOne must reproduce it exactly for a single,
// partially filled request.
package features

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"city311-api/ingest"
)

const (
	ColMonth   = "Month"
	ColWeekday = "Weekday"
	ColHour    = "Hour"

	separator = "_"
)

// TemporalColumns always close the feature vector, in this order.
var TemporalColumns = []string{ColMonth, ColWeekday, ColHour}

// DefaultFields is the declared categorical order used by the trainer.
var DefaultFields = []string{ingest.ColServiceType, ingest.ColDivision, ingest.ColWard}

var (
	ErrNoColumns = errors.New("feature column order is empty")
	ErrNoRecords = errors.New("no records to encode")
)

// Domain maps a categorical field to its sorted training-time values.
type Domain map[string][]string

// Contains reports whether value was seen for field at training time.
func (d Domain) Contains(field, value string) bool {
	values := d[field]
	i := sort.SearchStrings(values, value)
	return i < len(values) && values[i] == value
}

// Validate checks that every field's values are sorted and distinct, which
// Contains relies on.
func (d Domain) Validate() error {
	for field, values := range d {
		for i := 1; i < len(values); i++ {
			if values[i-1] >= values[i] {
				return fmt.Errorf("domain of %q is not sorted and distinct at %q", field, values[i])
			}
		}
	}
	return nil
}

// ColumnName builds the indicator column name for a category value.
func ColumnName(field, value string) string {
	return field + separator + value
}

// Encoding is the result of fitting on a training set.
type Encoding struct {
	Matrix [][]float64
	Schema *Schema
}

// Fit computes category domains for fields, lays out the columns and encodes
// every record. The first sorted value of each field is the reference
// category and gets no column.
func Fit(records []ingest.Record, fields []string) (*Encoding, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	if len(fields) == 0 {
		fields = DefaultFields
	}

	domain := make(Domain, len(fields))
	var columns []string
	for _, field := range fields {
		values := distinct(records, field)
		domain[field] = values
		for _, v := range values[1:] {
			columns = append(columns, ColumnName(field, v))
		}
	}
	columns = append(columns, TemporalColumns...)

	schema, err := NewSchema(columns, domain, fields...)
	if err != nil {
		return nil, err
	}

	matrix := make([][]float64, len(records))
	for i, r := range records {
		matrix[i] = schema.encodeRecord(r)
	}
	return &Encoding{Matrix: matrix, Schema: schema}, nil
}

func distinct(records []ingest.Record, field string) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		seen[r.Field(field)] = struct{}{}
	}
	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// Schema is the frozen column layout plus category domains. It is safe for
// concurrent use once built.
type Schema struct {
	Columns []string
	Domain  Domain

	fields []string
	index  map[string]int
}

// NewSchema validates a column order loaded from an artifact. An empty order
// means the artifact is missing or corrupt. fields is the categorical order
// used at training time; when empty it is derived from the domain, declared
// fields first and any others by name.
func NewSchema(columns []string, domain Domain, fields ...string) (*Schema, error) {
	if len(columns) == 0 {
		return nil, ErrNoColumns
	}
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("duplicate feature column %q", c)
		}
		index[c] = i
	}
	if domain == nil {
		domain = Domain{}
	}
	if err := domain.Validate(); err != nil {
		return nil, err
	}

	s := &Schema{Columns: columns, Domain: domain, index: index}
	if len(fields) > 0 {
		for _, field := range fields {
			if _, ok := domain[field]; !ok {
				return nil, fmt.Errorf("field %q has no domain", field)
			}
		}
		s.fields = slices.Clone(fields)
		return s, nil
	}

	for _, field := range DefaultFields {
		if _, ok := domain[field]; ok {
			s.fields = append(s.fields, field)
		}
	}
	var extra []string
	for field := range domain {
		if !slices.Contains(DefaultFields, field) {
			extra = append(extra, field)
		}
	}
	sort.Strings(extra)
	s.fields = append(s.fields, extra...)
	return s, nil
}

// Fields returns the categorical fields in encoding order.
func (s *Schema) Fields() []string { return slices.Clone(s.fields) }

// Width is the feature vector length.
func (s *Schema) Width() int { return len(s.Columns) }

// Index returns the position of a column, or -1.
func (s *Schema) Index(column string) int {
	if i, ok := s.index[column]; ok {
		return i
	}
	return -1
}

func (s *Schema) set(vec []float64, column string, v float64) {
	if i, ok := s.index[column]; ok {
		vec[i] = v
	}
}

func (s *Schema) encodeRecord(r ingest.Record) []float64 {
	vec := make([]float64, len(s.Columns))
	for _, field := range s.fields {
		s.set(vec, ColumnName(field, r.Field(field)), 1)
	}
	s.set(vec, ColMonth, float64(r.Month))
	s.set(vec, ColWeekday, float64(r.Weekday))
	s.set(vec, ColHour, float64(r.Hour))
	return vec
}

// Decode recovers the categorical assignment from a vector. A field with no
// indicator set decodes to its reference (first) value.
func (s *Schema) Decode(vec []float64) map[string]string {
	out := make(map[string]string, len(s.fields))
	for _, field := range s.fields {
		values := s.Domain[field]
		if len(values) > 0 {
			out[field] = values[0]
		}
		prefix := field + separator
		for i, c := range s.Columns {
			if vec[i] == 1 && strings.HasPrefix(c, prefix) {
				v := strings.TrimPrefix(c, prefix)
				if s.Domain.Contains(field, v) {
					out[field] = v
				}
			}
		}
	}
	return out
}
