package fhir

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidDateParam is matched by every InvalidDateParamError.
var ErrInvalidDateParam = errors.New("invalid date parameter")

// InvalidDateParamError is returned when a date search value cannot be parsed.
type InvalidDateParamError struct {
	Value  string
	Reason string
}

func (e *InvalidDateParamError) Error() string {
	return fmt.Sprintf("invalid date parameter %q: %s", e.Value, e.Reason)
}

func (e *InvalidDateParamError) Is(target error) bool {
	return target == ErrInvalidDateParam
}

// DatePrecision is the granularity of a date literal.
type DatePrecision int

const (
	PrecisionYear DatePrecision = iota
	PrecisionMonth
	PrecisionDay
	PrecisionMinute
	PrecisionSecond
	PrecisionMillisecond
)

func (p DatePrecision) String() string {
	switch p {
	case PrecisionYear:
		return "year"
	case PrecisionMonth:
		return "month"
	case PrecisionDay:
		return "day"
	case PrecisionMinute:
		return "minute"
	case PrecisionSecond:
		return "second"
	case PrecisionMillisecond:
		return "millisecond"
	default:
		return "unknown"
	}
}

// Add advances t by n units of the precision. Calendar units use AddDate.
func (p DatePrecision) Add(t time.Time, n int) time.Time {
	switch p {
	case PrecisionYear:
		return t.AddDate(n, 0, 0)
	case PrecisionMonth:
		return t.AddDate(0, n, 0)
	case PrecisionDay:
		return t.AddDate(0, 0, n)
	case PrecisionMinute:
		return t.Add(time.Duration(n) * time.Minute)
	case PrecisionSecond:
		return t.Add(time.Duration(n) * time.Second)
	default:
		return t.Add(time.Duration(n) * time.Millisecond)
	}
}

// Truncate returns the start of the unit containing t, in t's location.
func (p DatePrecision) Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	loc := t.Location()
	switch p {
	case PrecisionYear:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	case PrecisionMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case PrecisionDay:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	case PrecisionMinute:
		return time.Date(y, m, d, hh, mm, 0, 0, loc)
	case PrecisionSecond:
		return time.Date(y, m, d, hh, mm, ss, 0, loc)
	default:
		ms := t.Nanosecond() / int(time.Millisecond)
		return time.Date(y, m, d, hh, mm, ss, ms*int(time.Millisecond), loc)
	}
}

// DateParam is a parsed date search value. It denotes the half-open
// interval [Start, End).
type DateParam struct {
	Raw       string
	Prefix    SearchPrefix
	Start     time.Time
	End       time.Time
	Precision DatePrecision
}

func (d DateParam) String() string {
	return fmt.Sprintf("%s[%s, %s) %s", d.Prefix, d.Start.Format(time.RFC3339Nano), d.End.Format(time.RFC3339Nano), d.Precision)
}

// DateParser parses FHIR date search values. Literals with a time of day
// but no explicit offset are read in Location. Year, month and day literals
// are calendar dates in UTC.
type DateParser struct {
	Location *time.Location
}

// NewDateParser returns a parser for loc. A nil loc means UTC.
func NewDateParser(loc *time.Location) *DateParser {
	if loc == nil {
		loc = time.UTC
	}
	return &DateParser{Location: loc}
}

func (p *DateParser) location() *time.Location {
	if p == nil || p.Location == nil {
		return time.UTC
	}
	return p.Location
}

type dateFormat struct {
	shape     *regexp.Regexp
	layout    string
	precision DatePrecision
}

// exactFormats are tried in order. The shape guard keeps time.Parse from
// accepting fractional seconds on the plain seconds layout.
var exactFormats = []dateFormat{
	{regexp.MustCompile(`^\d{4}$`), "2006", PrecisionYear},
	{regexp.MustCompile(`^\d{4}-\d{2}$`), "2006-01", PrecisionMonth},
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`), "2006-01-02", PrecisionDay},
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}$`), "2006-01-02T15:04", PrecisionMinute},
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`), "2006-01-02T15:04:05", PrecisionSecond},
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{1,3}$`), "2006-01-02T15:04:05.999", PrecisionMillisecond},
}

var lenientLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
	"2006/01",
	"2006-1-2",
	"2006-1",
}

var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04Z07:00",
	"2006-01-02Z07:00",
}

var fourDigits = regexp.MustCompile(`^\d{4}$`)

// Parse parses a single date search value such as "ge2010-01-01".
func (p *DateParser) Parse(raw string) (DateParam, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return DateParam{}, &InvalidDateParamError{Value: raw, Reason: "empty value"}
	}

	prefix, literal := ParseSearchPrefix(value)
	literal = strings.ToUpper(strings.TrimSpace(literal))
	if literal == "" {
		return DateParam{}, &InvalidDateParamError{Value: raw, Reason: "missing date value"}
	}

	var (
		t         time.Time
		precision DatePrecision
		ok        bool
	)
	offsetAware := hasOffset(literal)
	if offsetAware {
		t, ok = parseLayouts(literal, offsetLayouts, nil)
		precision = inferPrecision(literal)
	} else {
		t, precision, ok = p.parseExact(literal)
		if !ok {
			t, ok = parseLayouts(literal, lenientLayouts, p.location())
			precision = inferPrecision(literal)
		}
	}
	if !ok {
		return DateParam{}, &InvalidDateParamError{Value: raw, Reason: "unrecognized date format"}
	}

	start := precision.Truncate(t)
	switch {
	case offsetAware:
		start = start.UTC()
	case precision <= PrecisionDay:
		// Calendar dates have no zone. They line up with birth dates,
		// which are stored at UTC midnight.
		start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	}
	return DateParam{
		Raw:       raw,
		Prefix:    prefix,
		Start:     start,
		End:       precision.Add(start, 1),
		Precision: precision,
	}, nil
}

func (p *DateParser) parseExact(literal string) (time.Time, DatePrecision, bool) {
	for _, f := range exactFormats {
		if !f.shape.MatchString(literal) {
			continue
		}
		t, err := time.ParseInLocation(f.layout, literal, p.location())
		if err != nil {
			return time.Time{}, 0, false
		}
		return t, f.precision, true
	}
	return time.Time{}, 0, false
}

// parseLayouts tries each layout in turn. A nil loc parses with the
// offset carried by the literal.
func parseLayouts(literal string, layouts []string, loc *time.Location) (time.Time, bool) {
	for _, layout := range layouts {
		var (
			t   time.Time
			err error
		)
		if loc == nil {
			t, err = time.Parse(layout, literal)
		} else {
			t, err = time.ParseInLocation(layout, literal, loc)
		}
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// hasOffset reports whether the literal carries a UTC marker or a numeric
// offset. Dashes in the date part are separators, not offsets.
func hasOffset(literal string) bool {
	if strings.HasSuffix(literal, "Z") || strings.Contains(literal, "+") {
		return true
	}
	_, timePart, found := splitDateTime(literal)
	return found && strings.Contains(timePart, "-")
}

func splitDateTime(literal string) (string, string, bool) {
	if i := strings.IndexAny(literal, "T "); i >= 0 {
		return literal[:i], literal[i+1:], true
	}
	return literal, "", false
}

func stripOffset(timePart string) string {
	timePart = strings.TrimSuffix(timePart, "Z")
	if i := strings.IndexAny(timePart, "+-"); i >= 0 {
		return timePart[:i]
	}
	return timePart
}

// inferPrecision guesses a precision from the shape of a literal that no
// exact format matched.
func inferPrecision(literal string) DatePrecision {
	if fourDigits.MatchString(literal) {
		return PrecisionYear
	}
	datePart, timePart, found := splitDateTime(literal)
	if found {
		timePart = stripOffset(timePart)
		switch {
		case strings.Contains(timePart, "."):
			return PrecisionMillisecond
		case strings.Count(timePart, ":") >= 2:
			return PrecisionSecond
		default:
			return PrecisionMinute
		}
	}
	datePart = strings.TrimSuffix(datePart, "Z")
	if i := strings.Index(datePart, "+"); i >= 0 {
		datePart = datePart[:i]
	}
	switch strings.Count(datePart, "-") + strings.Count(datePart, "/") {
	case 1:
		return PrecisionMonth
	default:
		return PrecisionDay
	}
}
