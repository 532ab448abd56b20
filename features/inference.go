package features

import (
	"strings"
	"time"
)

const (
	DefaultHour    = 12
	DefaultWeekday = 1
)

// TimeOfDayHours maps the informal time-of-day label to a representative hour.
var TimeOfDayHours = map[string]int{
	"morning":   9,
	"afternoon": 14,
	"evening":   19,
	"night":     2,
}

// DayOfWeekIndex maps a day name to its Monday=0 index.
var DayOfWeekIndex = map[string]int{
	"monday":    0,
	"tuesday":   1,
	"wednesday": 2,
	"thursday":  3,
	"friday":    4,
	"saturday":  5,
	"sunday":    6,
}

// Input is a partial, human-entered request. Categorical values are keyed by
// field name; missing keys leave the field at its reference category.
type Input struct {
	Categories map[string]string
	TimeOfDay  string
	DayOfWeek  string
}

// HourFor resolves a time-of-day label, defaulting to noon.
func HourFor(label string) int {
	if h, ok := TimeOfDayHours[strings.ToLower(strings.TrimSpace(label))]; ok {
		return h
	}
	return DefaultHour
}

// WeekdayFor resolves a day-of-week label, defaulting to Tuesday.
func WeekdayFor(label string) int {
	if d, ok := DayOfWeekIndex[strings.ToLower(strings.TrimSpace(label))]; ok {
		return d
	}
	return DefaultWeekday
}

// EncodeOne maps a partial request into the training column layout. Only the
// exact column field_value is ever set; a value unseen at training time (or
// the reference value) sets nothing. Month comes from now because a
// hypothetical request has no creation date.
func (s *Schema) EncodeOne(in Input, now time.Time) ([]float64, error) {
	if s == nil || len(s.Columns) == 0 {
		return nil, ErrNoColumns
	}

	vec := make([]float64, len(s.Columns))
	for field, value := range in.Categories {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		s.set(vec, ColumnName(field, value), 1)
	}
	s.set(vec, ColMonth, float64(now.Month()))
	s.set(vec, ColWeekday, float64(WeekdayFor(in.DayOfWeek)))
	s.set(vec, ColHour, float64(HourFor(in.TimeOfDay)))
	return vec, nil
}
