package analytics

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/firmd/internal/records"
)

// ErrInvalidRange is returned for unparsable months, From after To, or
// ranges longer than MaxMonths.
var ErrInvalidRange = errors.New("invalid range")

const (
	monthLayout = "2006-01"

	// DefaultMonths is the length of the range used when none is given.
	DefaultMonths = 12
	// MaxMonths bounds a single query.
	MaxMonths = 120
)

// Range is an inclusive span of calendar months. Only year and month of
// From and To are significant.
type Range struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ParseRange parses "YYYY-MM" bounds; either may be empty.
func ParseRange(from, to string) (Range, error) {
	var r Range
	var err error
	if from != "" {
		if r.From, err = time.Parse(monthLayout, from); err != nil {
			return Range{}, fmt.Errorf("%w: from %q", ErrInvalidRange, from)
		}
	}
	if to != "" {
		if r.To, err = time.Parse(monthLayout, to); err != nil {
			return Range{}, fmt.Errorf("%w: to %q", ErrInvalidRange, to)
		}
	}
	return r, nil
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Resolve fills missing bounds relative to now and validates the result.
// An empty range covers the DefaultMonths months ending with now's month.
func (r Range) Resolve(now time.Time) (Range, error) {
	switch {
	case r.From.IsZero() && r.To.IsZero():
		r.To = monthStart(now)
		r.From = r.To.AddDate(0, -(DefaultMonths - 1), 0)
	case r.From.IsZero():
		r.To = monthStart(r.To)
		r.From = r.To.AddDate(0, -(DefaultMonths - 1), 0)
	case r.To.IsZero():
		r.From = monthStart(r.From)
		r.To = monthStart(now)
	default:
		r.From, r.To = monthStart(r.From), monthStart(r.To)
	}
	if r.From.After(r.To) {
		return Range{}, fmt.Errorf("%w: from %s is after to %s", ErrInvalidRange,
			r.From.Format(monthLayout), r.To.Format(monthLayout))
	}
	if len(r.Months()) > MaxMonths {
		return Range{}, fmt.Errorf("%w: more than %d months", ErrInvalidRange, MaxMonths)
	}
	return r, nil
}

// Months lists every month of the range as "YYYY-MM".
func (r Range) Months() []string {
	var out []string
	for m := monthStart(r.From); !m.After(r.To); m = m.AddDate(0, 1, 0) {
		out = append(out, m.Format(monthLayout))
		if len(out) > MaxMonths {
			break
		}
	}
	return out
}

// Span converts the range for store queries.
func (r Range) Span() records.MonthSpan {
	return records.MonthSpan{From: r.From.Format(monthLayout), To: r.To.Format(monthLayout)}
}

// String renders the range as "YYYY-MM..YYYY-MM".
func (r Range) String() string {
	return r.From.Format(monthLayout) + ".." + r.To.Format(monthLayout)
}
