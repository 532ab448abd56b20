package ingest

import "time"

// Column names as they appear (after trimming) in the 311 export.
const (
	ColStatus       = "Status"
	ColServiceType  = "Service Request Type"
	ColDivision     = "Division"
	ColWard         = "Ward"
	ColCreationDate = "Creation Date"
	ColPostalPrefix = "First 3 Chars of Postal Code"
	ColIntersection = "Intersection Street 1"
	ColCrossStreet  = "Intersection Street 2"
)

// EssentialColumns must exist in the header and be non-empty on every kept row.
var EssentialColumns = []string{ColStatus, ColServiceType, ColDivision, ColWard, ColCreationDate}

// TimestampLayouts are tried in order when parsing Creation Date.
var TimestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ServiceTypeAliases maps legacy service request type names to the names the
// city publishes today.
var ServiceTypeAliases = map[string]string{
	"Waste or Illegal Dumping on Private Property":         "Illegal Dumping on Private Property",
	"Long Grass and Prohibited Plants on Private Property": "Unlawful Grass/Plants on Private Property",
	"Waste Set Out - Wrong Location / Time/ Day":           "Incorrect Waste Set Out (Location/day/time)",
	"Residential: Bin: Wrong Delivery or Bin Return":       "Wrong Residential Bin Delivery",
	"Missing / Damaged Street or Traffic Sign":             "Faulty Traffic Sign",
	"Property Standards and Maintenance Violations":        "Property Maintenance Violations",
}

// Record is a cleaned service request. Every Record has all essential fields
// set and a parsed creation timestamp.
type Record struct {
	Status       string
	ServiceType  string
	Division     string
	Ward         string
	CreatedAt    time.Time
	PostalPrefix string
	Intersection string
	CrossStreet  string

	Month   int // 1-12
	Weekday int // Monday=0
	Hour    int // 0-23
}

// Date returns the creation day as YYYY-MM-DD.
func (r Record) Date() string {
	return r.CreatedAt.Format("2006-01-02")
}

// Field returns the value of a categorical column by its export name.
func (r Record) Field(column string) string {
	switch column {
	case ColStatus:
		return r.Status
	case ColServiceType:
		return r.ServiceType
	case ColDivision:
		return r.Division
	case ColWard:
		return r.Ward
	case ColPostalPrefix:
		return r.PostalPrefix
	case ColIntersection:
		return r.Intersection
	case ColCrossStreet:
		return r.CrossStreet
	}
	return ""
}

// MondayWeekday converts Go's Sunday=0 weekday to the Monday=0 convention.
func MondayWeekday(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// Stats summarises a load.
type Stats struct {
	Rows          int `json:"rows"`
	Malformed     int `json:"malformed"`
	MissingFields int `json:"missing_fields"`
	BadTimestamp  int `json:"bad_timestamp"`
	Kept          int `json:"kept"`
}

// Dropped is the number of rows that did not make it into the cleaned set.
func (s Stats) Dropped() int {
	return s.Malformed + s.MissingFields + s.BadTimestamp
}
