package tariff

import (
	"fmt"
	"sort"
	"time"
)

// validationHorizon bounds how far past the latest anchor the pairwise
// overlap check expands recurrences. Periods that only collide beyond the
// horizon are accepted; four years covers every repeat alignment the file
// format can express in practice (leap years included).
const validationHorizon = 4 * 366 * 24 * time.Hour

// Tariff is a validated, ordered set of non-overlapping periods. It is
// immutable once constructed; reloading builds a new Tariff.
type Tariff struct {
	name    string
	periods []*Period
}

// New validates the given periods and constructs a Tariff. Periods are
// sorted by their first start. At least one period is required, and no two
// periods may overlap, including through their recurrences.
func New(name string, periods []*Period) (*Tariff, error) {
	if name == "" {
		return nil, &ValidationError{msg: "tariff name must not be empty"}
	}
	if len(periods) == 0 {
		return nil, &ValidationError{msg: "tariff must contain at least one period"}
	}
	sorted := make([]*Period, len(periods))
	copy(sorted, periods)
	sort.SliceStable(sorted, func(i, j int) bool {
		return firstStart(sorted[i]).Before(firstStart(sorted[j]))
	})
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if overlaps(sorted[i], sorted[j]) {
				return nil, &ValidationError{
					msg: fmt.Sprintf("periods %d and %d overlap", i, j),
				}
			}
		}
	}
	return &Tariff{name: name, periods: sorted}, nil
}

// Name returns the tariff's name.
func (t *Tariff) Name() string { return t.name }

// Periods returns the tariff's periods, ordered by first start. The slice
// must not be modified.
func (t *Tariff) Periods() []*Period { return t.periods }

// Lookup returns the period that applies at the given instant, or nil when
// the instant falls in none. A nil result means no tariff constraint
// applies (unrestricted).
func (t *Tariff) Lookup(when time.Time) *Period {
	for _, p := range t.periods {
		if _, _, ok := p.Contains(when); ok {
			return p
		}
	}
	return nil
}

// Classify returns the classification that applies at now, plus the instant
// of the next period boundary (start or end of any period's recurrence)
// strictly after now. hasNext is false when no boundary remains.
func (t *Tariff) Classify(now time.Time) (class Classification, next time.Time, hasNext bool) {
	class = Unrestricted
	if p := t.Lookup(now); p != nil {
		class = p.Classification()
	}
	for _, p := range t.periods {
		if b, ok := p.NextBoundary(now); ok {
			if !hasNext || b.Before(next) {
				next, hasNext = b, true
			}
		}
	}
	return class, next, hasNext
}

// firstStart returns the first instant a period can ever cover, used for
// ordering. Cron periods have no anchor, so their first tick after the zero
// time is approximated by the next tick after a fixed ancient reference.
func firstStart(p *Period) time.Time {
	if p.cron == "" {
		return p.start
	}
	if s, ok := p.nextStart(time.Unix(0, 0).UTC()); ok {
		return s
	}
	return time.Unix(0, 0).UTC()
}

// overlaps reports whether any recurrence of a intersects any recurrence of
// b within the validation horizon.
func overlaps(a, b *Period) bool {
	// No intersection can exist before both periods do.
	from := firstStart(a)
	if fb := firstStart(b); fb.After(from) {
		from = fb
	}
	limit := from.Add(validationHorizon)

	// A recurrence already in progress at from is invisible to the walk
	// below, so probe the first starts directly.
	if _, _, ok := a.Contains(firstStart(b)); ok {
		return true
	}
	if _, _, ok := b.Contains(firstStart(a)); ok {
		return true
	}

	// Walk a's recurrences and probe b at each span.
	cursor := from.Add(-time.Nanosecond)
	for i := 0; i < 100000; i++ {
		s, ok := a.nextStart(cursor)
		if !ok || s.After(limit) {
			return false
		}
		_, e, inside := a.Contains(s)
		if !inside {
			// A recurrence always contains its own start.
			return false
		}
		// b overlaps [s, e) iff b covers s, or a recurrence of b starts
		// inside [s, e).
		if _, _, ok := b.Contains(s); ok {
			return true
		}
		if bs, ok := b.nextStart(s); ok && bs.Before(e) {
			return true
		}
		cursor = s
	}
	return false
}
