package fhir

import (
	"errors"
	"testing"
	"time"
)

func mustParse(t *testing.T, raw string) DateParam {
	t.Helper()
	d, err := NewDateParser(time.UTC).Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%q): %v", raw, err)
	}
	return d
}

func TestRecordInterval(t *testing.T) {
	start, end := RecordInterval(utc(2010, 1, 1, 0, 0, 0, 0))
	if !end.Equal(utc(2010, 1, 2, 0, 0, 0, 0)) {
		t.Errorf("midnight record should span one day, got [%v, %v)", start, end)
	}

	instant := utc(2010, 1, 1, 13, 45, 0, 0)
	start, end = RecordInterval(instant)
	if !start.Equal(instant) || end.Sub(start) != time.Nanosecond {
		t.Errorf("sub-day record should span one tick, got [%v, %v)", start, end)
	}

	start, end = RecordInterval(utc(2010, 1, 1, 0, 0, 0, 1))
	if end.Sub(start) != time.Nanosecond {
		t.Errorf("record one nanosecond after midnight should span one tick, got %v", end.Sub(start))
	}
}

func TestDateParam_Matches(t *testing.T) {
	tests := []struct {
		name   string
		param  string
		record time.Time
		want   bool
	}{
		{"eq same day", "eq2010-01-01", utc(2010, 1, 1, 0, 0, 0, 0), true},
		{"eq instant within day", "2010-01-01", utc(2010, 1, 1, 23, 59, 59, 0), true},
		{"eq previous day", "2010-01-01", utc(2009, 12, 31, 0, 0, 0, 0), false},
		{"eq next day", "2010-01-01", utc(2010, 1, 2, 0, 0, 0, 0), false},
		{"eq day inside year", "2010", utc(2010, 7, 4, 0, 0, 0, 0), true},
		{"eq minute", "2010-01-01T10:30", utc(2010, 1, 1, 10, 30, 15, 0), true},
		{"eq minute whole-day record", "2010-01-01T10:30", utc(2010, 1, 1, 0, 0, 0, 0), true},

		{"ne same day", "ne2010-01-01", utc(2010, 1, 1, 0, 0, 0, 0), false},
		{"ne other day", "ne2010-01-01", utc(2010, 1, 2, 0, 0, 0, 0), true},

		{"lt day before", "lt2010-01-01", utc(2009, 12, 31, 0, 0, 0, 0), true},
		{"lt same day", "lt2010-01-01", utc(2010, 1, 1, 0, 0, 0, 0), false},
		{"lt instant before midnight", "lt2010-01-01", utc(2009, 12, 31, 23, 59, 59, 0), true},

		{"gt same day", "gt2010-01-01", utc(2010, 1, 1, 0, 0, 0, 0), false},
		{"gt later instant same day", "gt2010-01-01", utc(2010, 1, 1, 12, 0, 0, 0), false},
		{"gt next day", "gt2010-01-01", utc(2010, 1, 2, 0, 0, 0, 0), true},

		{"le same day", "le2010-01-01", utc(2010, 1, 1, 0, 0, 0, 0), true},
		{"le instant same day", "le2010-01-01", utc(2010, 1, 1, 23, 0, 0, 0), true},
		{"le next day", "le2010-01-01", utc(2010, 1, 2, 0, 0, 0, 0), false},

		{"ge same day", "ge2010-01-01", utc(2010, 1, 1, 0, 0, 0, 0), true},
		{"ge day before", "ge2010-01-01", utc(2009, 12, 31, 0, 0, 0, 0), false},
		{"ge instant before midnight", "ge2010-01-01", utc(2009, 12, 31, 23, 59, 59, 0), false},

		{"sa next day", "sa2010-01-01", utc(2010, 1, 2, 0, 0, 0, 0), true},
		{"sa same day", "sa2010-01-01", utc(2010, 1, 1, 23, 59, 0, 0), false},

		{"eb day before", "eb2010-01-01", utc(2009, 12, 31, 0, 0, 0, 0), true},
		{"eb instant before", "eb2010-01-01", utc(2009, 12, 31, 23, 59, 59, 0), true},
		{"eb same day", "eb2010-01-01", utc(2010, 1, 1, 0, 0, 0, 0), false},

		{"ap year inside expansion", "ap2020", utc(2021, 6, 1, 0, 0, 0, 0), true},
		{"ap year before expansion", "ap2020", utc(2018, 12, 31, 0, 0, 0, 0), false},
		{"ap year after expansion", "ap2020", utc(2022, 1, 1, 0, 0, 0, 0), false},
		{"ap month", "ap2020-05", utc(2020, 4, 1, 0, 0, 0, 0), true},
		{"ap month outside", "ap2020-05", utc(2020, 3, 31, 0, 0, 0, 0), false},
		{"ap day", "ap2020-05-15", utc(2020, 5, 16, 0, 0, 0, 0), true},
		{"ap day outside", "ap2020-05-15", utc(2020, 5, 17, 0, 0, 0, 0), false},
		{"ap minute within hour", "ap2020-05-15T10:30", utc(2020, 5, 15, 11, 15, 0, 0), true},
		{"ap minute outside hour", "ap2020-05-15T10:30", utc(2020, 5, 15, 11, 45, 0, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustParse(t, tt.param)
			if got := d.Matches(tt.record); got != tt.want {
				t.Errorf("%s.Matches(%v) = %v, want %v", tt.param, tt.record, got, tt.want)
			}
		})
	}
}

func TestDateParam_PushdownBounds(t *testing.T) {
	day := utc(2010, 1, 1, 0, 0, 0, 0)
	next := utc(2010, 1, 2, 0, 0, 0, 0)

	tests := []struct {
		param string
		lower *time.Time
		upper *time.Time
		ok    bool
	}{
		{"eq2010-01-01", &day, &next, true},
		{"ge2010-01-01", &day, nil, true},
		{"le2010-01-01", nil, &next, true},
		{"lt2010-01-01", nil, &day, true},
		{"gt2010-01-01", &next, nil, true},
		{"ne2010-01-01", nil, nil, false},
		{"sa2010-01-01", nil, nil, false},
		{"eb2010-01-01", nil, nil, false},
		{"ap2010-01-01", nil, nil, false},
		{"eq2010-01-01T10:30", &day, ptrTime(utc(2010, 1, 1, 10, 31, 0, 0)), true},
		{"ge2010-01-01T10:30:15", &day, nil, true},
		{"gt2010-01-01T23:59:59.5", &day, nil, true},
		{"lt2010-01-01T10:30", nil, ptrTime(utc(2010, 1, 1, 10, 30, 0, 0)), true},
		{"le2010-01-01T10:30", nil, ptrTime(utc(2010, 1, 1, 10, 31, 0, 0)), true},
	}

	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			b, ok := mustParse(t, tt.param).PushdownBounds()
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !sameBound(b.Lower, tt.lower) {
				t.Errorf("lower = %v, want %v", b.Lower, tt.lower)
			}
			if !sameBound(b.Upper, tt.upper) {
				t.Errorf("upper = %v, want %v", b.Upper, tt.upper)
			}
		})
	}
}

func sameBound(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func TestDateBounds(t *testing.T) {
	a := utc(2010, 1, 1, 0, 0, 0, 0)
	b := utc(2011, 1, 1, 0, 0, 0, 0)
	c := utc(2012, 1, 1, 0, 0, 0, 0)

	t.Run("intersect tightens both sides", func(t *testing.T) {
		got := DateBounds{Lower: &a, Upper: &c}.Intersect(DateBounds{Lower: &b})
		if !sameBound(got.Lower, &b) || !sameBound(got.Upper, &c) {
			t.Errorf("got %s", got)
		}
	})

	t.Run("intersect with unbounded is identity", func(t *testing.T) {
		got := DateBounds{}.Intersect(DateBounds{Upper: &b})
		if got.Lower != nil || !sameBound(got.Upper, &b) {
			t.Errorf("got %s", got)
		}
	})

	t.Run("contains is half-open", func(t *testing.T) {
		r := DateBounds{Lower: &a, Upper: &b}
		if !r.Contains(a) {
			t.Error("lower bound should be inclusive")
		}
		if r.Contains(b) {
			t.Error("upper bound should be exclusive")
		}
		if r.Contains(c) {
			t.Error("value past upper bound should not be contained")
		}
	})

	t.Run("unbounded and empty", func(t *testing.T) {
		if !(DateBounds{}).IsUnbounded() {
			t.Error("zero bounds should be unbounded")
		}
		if !(DateBounds{}).Contains(a) {
			t.Error("unbounded range should contain everything")
		}
		if !(DateBounds{Lower: &b, Upper: &a}).IsEmpty() {
			t.Error("inverted bounds should be empty")
		}
		if !(DateBounds{Lower: &a, Upper: &a}).IsEmpty() {
			t.Error("equal bounds should be empty")
		}
		if (DateBounds{Lower: &a}).IsEmpty() {
			t.Error("half-open bounds should not be empty")
		}
	})
}

// sampleRecords covers whole-day and sub-day records across a few years.
func sampleRecords() []time.Time {
	var out []time.Time
	base := utc(2008, 11, 1, 0, 0, 0, 0)
	for d := 0; d < 3*366; d += 3 {
		day := base.AddDate(0, 0, d)
		out = append(out, day, day.Add(13*time.Hour+7*time.Minute), day.Add(-time.Nanosecond))
	}
	return out
}

var sampleLiterals = []string{"2010", "2010-01", "2009-12", "2010-01-01", "2010-06-15", "2010-12-31"}

func TestMatches_MonotonicAtDayPrecision(t *testing.T) {
	for _, literal := range []string{"2010-01-01", "2010-06-15", "2010-12-31"} {
		lt, eq, gt := mustParse(t, "lt"+literal), mustParse(t, "eq"+literal), mustParse(t, "gt"+literal)
		for d := -40; d <= 40; d++ {
			record := eq.Start.AddDate(0, 0, d)
			n := 0
			for _, q := range []DateParam{lt, eq, gt} {
				if q.Matches(record) {
					n++
				}
			}
			if n != 1 {
				t.Errorf("%s vs %v: %d of lt/eq/gt matched, want exactly 1", literal, record, n)
			}
		}
	}
}

func TestMatches_NotEqualIsNegation(t *testing.T) {
	for _, literal := range append(sampleLiterals, "2010-01-01T10:30", "2010-01-01T10:30:00.5") {
		eq, ne := mustParse(t, "eq"+literal), mustParse(t, "ne"+literal)
		for _, r := range sampleRecords() {
			if ne.Matches(r) == eq.Matches(r) {
				t.Errorf("%s: ne and eq agree for %v", literal, r)
			}
		}
	}
}

func TestMatches_ApproximateIsSuperset(t *testing.T) {
	for _, literal := range append(sampleLiterals, "2010-01-01T10:30") {
		eq, ap := mustParse(t, "eq"+literal), mustParse(t, "ap"+literal)
		for _, r := range sampleRecords() {
			if eq.Matches(r) && !ap.Matches(r) {
				t.Errorf("%s: eq matches %v but ap does not", literal, r)
			}
		}
	}
}

var subDayLiterals = []string{
	"2010-01-01T10:30",
	"2010-01-01T00:00:30",
	"2009-12-31T23:59:59.5",
	"2010-01-01T10:30+05:00",
	"2010-01-01T22:00-05:00",
}

func TestPushdownBounds_NeverExcludeAMatch(t *testing.T) {
	parsers := map[string]*DateParser{
		"UTC":    NewDateParser(time.UTC),
		"UTC-5":  NewDateParser(time.FixedZone("UTC-5", -5*3600)),
		"UTC+10": NewDateParser(time.FixedZone("UTC+10", 10*3600)),
	}
	literals := append(append([]string{}, sampleLiterals...), subDayLiterals...)
	records := append(sampleRecords(), utc(2009, 12, 31, 0, 0, 0, 0), utc(2010, 1, 2, 0, 0, 0, 0))

	for name, p := range parsers {
		for _, prefix := range []SearchPrefix{PrefixEq, PrefixGe, PrefixLe, PrefixLt, PrefixGt} {
			for _, literal := range literals {
				q, err := p.Parse(string(prefix) + literal)
				if err != nil {
					t.Fatalf("%s: Parse(%s%s): %v", name, prefix, literal, err)
				}
				bounds, ok := q.PushdownBounds()
				if !ok {
					t.Fatalf("%s%s: expected pushdown bounds", prefix, literal)
				}
				for _, r := range records {
					if q.Matches(r) && !bounds.Contains(r) {
						t.Errorf("%s %s%s: pushdown %s excludes matching record %v", name, prefix, literal, bounds, r)
					}
				}
			}
		}
	}
}

func TestPushdownBounds_WholeDayRecordAtSubDayPrecision(t *testing.T) {
	record := utc(2010, 1, 1, 0, 0, 0, 0)
	for _, raw := range []string{"eq2010-01-01T10:30", "ge2010-01-01T10:30", "ge2010-01-01T10:30:15", "eq2010-01-01T10:30:15.250"} {
		q := mustParse(t, raw)
		bounds, _ := q.PushdownBounds()
		if !q.Matches(record) {
			t.Errorf("%s: expected the whole-day record to match", raw)
		}
		if !bounds.Contains(record) {
			t.Errorf("%s: pushdown %s drops the whole-day record", raw, bounds)
		}
	}
}

func TestMatches_DayLiteralIgnoresParserLocation(t *testing.T) {
	p := NewDateParser(time.FixedZone("UTC-5", -5*3600))
	q, err := p.Parse("eq2010-01-01")
	if err != nil {
		t.Fatal(err)
	}
	bounds, _ := q.PushdownBounds()

	if !q.Matches(utc(2010, 1, 1, 0, 0, 0, 0)) || !bounds.Contains(utc(2010, 1, 1, 0, 0, 0, 0)) {
		t.Errorf("expected 2010-01-01 to match and pass pushdown %s", bounds)
	}
	if q.Matches(utc(2010, 1, 2, 0, 0, 0, 0)) {
		t.Error("2010-01-02 should not match eq2010-01-01")
	}
	if q.Matches(utc(2009, 12, 31, 0, 0, 0, 0)) {
		t.Error("2009-12-31 should not match eq2010-01-01")
	}
}

func TestScenarios(t *testing.T) {
	p := NewDateParser(time.UTC)

	t.Run("eq day literal", func(t *testing.T) {
		d, err := p.Parse("eq2020-05-15")
		if err != nil {
			t.Fatal(err)
		}
		if d.Prefix != PrefixEq || d.Precision != PrecisionDay ||
			!d.Start.Equal(utc(2020, 5, 15, 0, 0, 0, 0)) || !d.End.Equal(utc(2020, 5, 16, 0, 0, 0, 0)) {
			t.Errorf("unexpected param %s", d)
		}
	})

	t.Run("ge includes the boundary day", func(t *testing.T) {
		if !mustParse(t, "ge2010-01-01").Matches(utc(2010, 1, 1, 0, 0, 0, 0)) {
			t.Error("expected match")
		}
	})

	t.Run("le excludes the following day", func(t *testing.T) {
		if mustParse(t, "le2011-12-31").Matches(utc(2012, 1, 1, 0, 0, 0, 0)) {
			t.Error("expected no match")
		}
	})

	t.Run("ap year widens by one year", func(t *testing.T) {
		if !mustParse(t, "ap2020").Matches(utc(2021, 6, 1, 0, 0, 0, 0)) {
			t.Error("expected match")
		}
	})

	t.Run("bogus is rejected", func(t *testing.T) {
		_, err := p.Parse("bogus")
		if !errors.Is(err, ErrInvalidDateParam) {
			t.Errorf("expected ErrInvalidDateParam, got %v", err)
		}
	})

	t.Run("ge and lt select one calendar year", func(t *testing.T) {
		criteria, err := p.ParseAll([]string{"ge2010-01-01", "lt2011-01-01"})
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range sampleRecords() {
			want := r.Year() == 2010
			if got := criteria.Matches(r); got != want {
				t.Errorf("Matches(%v) = %v, want %v", r, got, want)
			}
		}
	})
}
