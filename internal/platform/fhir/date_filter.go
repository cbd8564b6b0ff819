package fhir

import (
	"fmt"
	"time"
)

// RecordInterval returns the interval a stored instant stands for. A value
// at midnight is treated as a whole day, anything else as a single instant.
// A genuine midnight timestamp is indistinguishable from a date and is
// widened the same way.
func RecordInterval(instant time.Time) (time.Time, time.Time) {
	hh, mm, ss := instant.Clock()
	if hh == 0 && mm == 0 && ss == 0 && instant.Nanosecond() == 0 {
		return instant, instant.AddDate(0, 0, 1)
	}
	return instant, instant.Add(time.Nanosecond)
}

func intersects(a0, a1, b0, b1 time.Time) bool {
	return a0.Before(b1) && b0.Before(a1)
}

// approximateRange widens [Start, End) by one unit of the precision on each
// side. Sub-day precisions widen by one hour.
func (d DateParam) approximateRange() (time.Time, time.Time) {
	switch d.Precision {
	case PrecisionYear:
		return d.Start.AddDate(-1, 0, 0), d.End.AddDate(1, 0, 0)
	case PrecisionMonth:
		return d.Start.AddDate(0, -1, 0), d.End.AddDate(0, 1, 0)
	case PrecisionDay:
		return d.Start.AddDate(0, 0, -1), d.End.AddDate(0, 0, 1)
	default:
		return d.Start.Add(-time.Hour), d.End.Add(time.Hour)
	}
}

// Matches reports whether a record stored at instant satisfies the
// parameter. Less-than comparisons use the start of the record's interval
// and greater-than comparisons use its end, so a whole-day record is not
// dropped when it straddles the literal boundary.
func (d DateParam) Matches(instant time.Time) bool {
	rs, re := RecordInterval(instant)
	switch d.Prefix {
	case PrefixNe:
		return !intersects(rs, re, d.Start, d.End)
	case PrefixLt:
		return rs.Before(d.Start)
	case PrefixGt:
		return re.After(d.End)
	// le and ge are strict on purpose. With <= and >= a whole-day record
	// would match the day after an le literal.
	case PrefixLe:
		return rs.Before(d.End)
	case PrefixGe:
		return re.After(d.Start)
	case PrefixSa:
		return !rs.Before(d.End)
	case PrefixEb:
		return !re.After(d.Start)
	case PrefixAp:
		as, ae := d.approximateRange()
		return intersects(rs, re, as, ae)
	default:
		return intersects(rs, re, d.Start, d.End)
	}
}

// DateBounds is a half-open range on a timestamp column. Lower is inclusive,
// Upper is exclusive and a nil bound is open.
type DateBounds struct {
	Lower *time.Time
	Upper *time.Time
}

// PushdownBounds returns the range a store can pre-filter on. It may admit
// records that Matches rejects, so Matches must run over whatever the store
// returns. The second result is false when the prefix cannot be narrowed.
//
// Lower bounds are moved back to UTC midnight: a whole-day record stored at
// midnight overlaps every instant later that day.
func (d DateParam) PushdownBounds() (DateBounds, bool) {
	start, end := d.Start, d.End
	switch d.Prefix {
	case PrefixEq:
		lower := dayFloor(start)
		return DateBounds{Lower: &lower, Upper: &end}, true
	case PrefixGe:
		lower := dayFloor(start)
		return DateBounds{Lower: &lower}, true
	case PrefixLe:
		return DateBounds{Upper: &end}, true
	case PrefixLt:
		return DateBounds{Upper: &start}, true
	case PrefixGt:
		lower := dayFloor(end)
		return DateBounds{Lower: &lower}, true
	default:
		return DateBounds{}, false
	}
}

func dayFloor(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Intersect returns the tighter of both ranges on each side.
func (b DateBounds) Intersect(other DateBounds) DateBounds {
	out := b
	if other.Lower != nil && (out.Lower == nil || other.Lower.After(*out.Lower)) {
		out.Lower = other.Lower
	}
	if other.Upper != nil && (out.Upper == nil || other.Upper.Before(*out.Upper)) {
		out.Upper = other.Upper
	}
	return out
}

// Contains reports whether t lies in [Lower, Upper).
func (b DateBounds) Contains(t time.Time) bool {
	if b.Lower != nil && t.Before(*b.Lower) {
		return false
	}
	if b.Upper != nil && !t.Before(*b.Upper) {
		return false
	}
	return true
}

func (b DateBounds) IsUnbounded() bool {
	return b.Lower == nil && b.Upper == nil
}

// IsEmpty reports whether no instant can satisfy the range.
func (b DateBounds) IsEmpty() bool {
	return b.Lower != nil && b.Upper != nil && !b.Lower.Before(*b.Upper)
}

func (b DateBounds) String() string {
	format := func(t *time.Time, open string) string {
		if t == nil {
			return open
		}
		return t.Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("[%s, %s)", format(b.Lower, "-inf"), format(b.Upper, "+inf"))
}
