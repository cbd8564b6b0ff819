package fhir

import (
	"strings"
	"time"
)

// DateCriteria is a conjunction of date parameters. An empty criteria
// matches everything.
type DateCriteria []DateParam

// ParseAll parses every value and stops at the first error. Blank values
// are skipped.
func (p *DateParser) ParseAll(raws []string) (DateCriteria, error) {
	criteria := make(DateCriteria, 0, len(raws))
	for _, raw := range raws {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		param, err := p.Parse(raw)
		if err != nil {
			return nil, err
		}
		criteria = append(criteria, param)
	}
	return criteria, nil
}

// Bounds intersects the pushdown bounds of every parameter. Parameters
// without a pushdown form leave the range unchanged.
func (c DateCriteria) Bounds() DateBounds {
	var bounds DateBounds
	for _, param := range c {
		if b, ok := param.PushdownBounds(); ok {
			bounds = bounds.Intersect(b)
		}
	}
	return bounds
}

// Matches reports whether instant satisfies every parameter.
func (c DateCriteria) Matches(instant time.Time) bool {
	for _, param := range c {
		if !param.Matches(instant) {
			return false
		}
	}
	return true
}

// FilterByDate returns the items whose instant satisfies the criteria. The
// input slice is not modified.
func FilterByDate[T any](items []T, criteria DateCriteria, instant func(T) time.Time) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if criteria.Matches(instant(item)) {
			out = append(out, item)
		}
	}
	return out
}
