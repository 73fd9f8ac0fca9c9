// Package tariff models time-partitioned network cost descriptions: a
// tariff is an ordered set of non-overlapping, possibly recurring periods,
// each classified as unrestricted or capped. The scheduler consults the
// loaded tariff to decide whether the current instant is cost-favorable.
package tariff

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// RepeatType is the unit a period's recurrence is counted in.
type RepeatType int

const (
	RepeatNone RepeatType = iota
	RepeatHour
	RepeatDay
	RepeatWeek
	RepeatMonth
	RepeatYear
)

// String returns the textual form used in tariff files.
func (r RepeatType) String() string {
	switch r {
	case RepeatNone:
		return "none"
	case RepeatHour:
		return "hour"
	case RepeatDay:
		return "day"
	case RepeatWeek:
		return "week"
	case RepeatMonth:
		return "month"
	case RepeatYear:
		return "year"
	default:
		return fmt.Sprintf("RepeatType(%d)", int(r))
	}
}

// ParseRepeatType parses the textual form used in tariff files.
func ParseRepeatType(s string) (RepeatType, error) {
	switch s {
	case "", "none":
		return RepeatNone, nil
	case "hour":
		return RepeatHour, nil
	case "day":
		return RepeatDay, nil
	case "week":
		return RepeatWeek, nil
	case "month":
		return RepeatMonth, nil
	case "year":
		return RepeatYear, nil
	default:
		return RepeatNone, fmt.Errorf("unknown repeat type %q", s)
	}
}

// Classification describes the cost of network use within a period.
type Classification int

const (
	// Unrestricted means transfers are cost-favorable during the period.
	Unrestricted Classification = iota

	// Capped means the period is costly or capacity-limited; transfers
	// without an explicit override must not run.
	Capped
)

// String returns the textual form used in tariff files.
func (c Classification) String() string {
	if c == Capped {
		return "capped"
	}
	return "unrestricted"
}

// ParseClassification parses the textual form used in tariff files.
func ParseClassification(s string) (Classification, error) {
	switch s {
	case "unrestricted":
		return Unrestricted, nil
	case "capped", "costly":
		return Capped, nil
	default:
		return Unrestricted, fmt.Errorf("unknown classification %q", s)
	}
}

// Period is one contiguous or recurring time window within a tariff. It is
// immutable after construction. A period is either anchored (a concrete
// [start, end) span plus an optional repeat rule) or cron-ruled (a cron
// expression for recurrence starts plus a fixed span).
type Period struct {
	start    time.Time
	end      time.Time
	repeat   RepeatType
	interval int

	cron string
	span time.Duration

	class Classification
}

// maxAdjust bounds the recurrence-index correction loops. The duration
// estimate for month/year strides is off by at most a few percent, so the
// correction is tiny in practice; the bound exists to guarantee termination
// on pathological inputs.
const maxAdjust = 10000

// NewPeriod creates an anchored period covering [start, end), recurring per
// repeat and interval. interval must be zero exactly when repeat is
// RepeatNone. Recurrences of the same period must not overlap each other:
// the span must fit within one repeat stride.
func NewPeriod(start, end time.Time, repeat RepeatType, interval int, class Classification) (*Period, error) {
	if !start.Before(end) {
		return nil, &ValidationError{msg: "period start must precede its end"}
	}
	if repeat < RepeatNone || repeat > RepeatYear {
		return nil, &ValidationError{msg: "invalid repeat type for period"}
	}
	if (repeat == RepeatNone) != (interval == 0) {
		return nil, &ValidationError{msg: "repeat interval must be set exactly when a repeat type is"}
	}
	if interval < 0 {
		return nil, &ValidationError{msg: "repeat interval must be positive"}
	}
	p := &Period{start: start, end: end, repeat: repeat, interval: interval, class: class}
	if repeat != RepeatNone {
		// Self-overlap check across the first few recurrences; calendar
		// strides (month, year) are not constant, so one check is not
		// enough.
		for k := 0; k < 4; k++ {
			_, e := p.recurrence(k)
			s2, _ := p.recurrence(k + 1)
			if e.After(s2) {
				return nil, &ValidationError{msg: "period span exceeds its repeat stride"}
			}
		}
	}
	return p, nil
}

// NewCronPeriod creates a period whose recurrences start at each tick of a
// cron expression and last for span. The expression is validated with the
// same cron dialect the daemon uses elsewhere.
func NewCronPeriod(expr string, span time.Duration, class Classification) (*Period, error) {
	if span <= 0 {
		return nil, &ValidationError{msg: "cron period span must be positive"}
	}
	if !gronx.New().IsValid(expr) {
		return nil, &ValidationError{msg: fmt.Sprintf("invalid cron expression %q", expr)}
	}
	return &Period{cron: expr, span: span, class: class}, nil
}

// Start returns the anchor start of an anchored period, or the zero time
// for a cron-ruled period.
func (p *Period) Start() time.Time { return p.start }

// End returns the anchor end of an anchored period, or the zero time for a
// cron-ruled period.
func (p *Period) End() time.Time { return p.end }

// Repeat returns the period's repeat type; RepeatNone for cron periods.
func (p *Period) Repeat() RepeatType { return p.repeat }

// Interval returns the repeat interval in Repeat units.
func (p *Period) Interval() int { return p.interval }

// Cron returns the cron expression of a cron-ruled period, or "".
func (p *Period) Cron() string { return p.cron }

// Span returns the recurrence length of a cron-ruled period.
func (p *Period) Span() time.Duration { return p.span }

// Classification returns the period's cost classification.
func (p *Period) Classification() Classification { return p.class }

// recurrence returns the start and end of the k-th recurrence of an
// anchored period. Recurrence 0 is the anchor span itself. Month and year
// strides follow the calendar, so recurrences are not equally spaced in
// absolute time.
func (p *Period) recurrence(k int) (time.Time, time.Time) {
	if k == 0 || p.repeat == RepeatNone {
		return p.start, p.end
	}
	n := k * p.interval
	switch p.repeat {
	case RepeatHour:
		d := time.Duration(n) * time.Hour
		return p.start.Add(d), p.end.Add(d)
	case RepeatDay:
		return p.start.AddDate(0, 0, n), p.end.AddDate(0, 0, n)
	case RepeatWeek:
		return p.start.AddDate(0, 0, 7*n), p.end.AddDate(0, 0, 7*n)
	case RepeatMonth:
		return p.start.AddDate(0, n, 0), p.end.AddDate(0, n, 0)
	case RepeatYear:
		return p.start.AddDate(n, 0, 0), p.end.AddDate(n, 0, 0)
	default:
		return p.start, p.end
	}
}

// approxStride estimates the length of one repeat stride, used only to seed
// the recurrence-index search.
func (p *Period) approxStride() time.Duration {
	n := time.Duration(p.interval)
	switch p.repeat {
	case RepeatHour:
		return n * time.Hour
	case RepeatDay:
		return n * 24 * time.Hour
	case RepeatWeek:
		return n * 7 * 24 * time.Hour
	case RepeatMonth:
		return n * 28 * 24 * time.Hour
	case RepeatYear:
		return n * 365 * 24 * time.Hour
	default:
		return 0
	}
}

// indexFor returns the largest recurrence index k whose start is not after
// when. Callers must ensure when is not before the anchor start and the
// period repeats.
func (p *Period) indexFor(when time.Time) int {
	k := int(when.Sub(p.start) / p.approxStride())
	if k < 0 {
		k = 0
	}
	for i := 0; i < maxAdjust; i++ {
		s, _ := p.recurrence(k)
		if s.After(when) && k > 0 {
			k--
			continue
		}
		next, _ := p.recurrence(k + 1)
		if !next.After(when) {
			k++
			continue
		}
		break
	}
	return k
}

// Contains reports whether when lies within the period or any of its
// recurrences, returning the bounds of the containing recurrence.
func (p *Period) Contains(when time.Time) (start, end time.Time, ok bool) {
	if p.cron != "" {
		prev, err := gronx.PrevTickBefore(p.cron, when, true)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		end := prev.Add(p.span)
		if when.Before(end) && !when.Before(prev) {
			return prev, end, true
		}
		return time.Time{}, time.Time{}, false
	}

	if when.Before(p.start) {
		return time.Time{}, time.Time{}, false
	}
	if p.repeat == RepeatNone {
		if when.Before(p.end) {
			return p.start, p.end, true
		}
		return time.Time{}, time.Time{}, false
	}
	s, e := p.recurrence(p.indexFor(when))
	if !when.Before(s) && when.Before(e) {
		return s, e, true
	}
	return time.Time{}, time.Time{}, false
}

// NextBoundary returns the first recurrence start or end strictly after
// now, or ok false when the period has no boundary after now.
func (p *Period) NextBoundary(now time.Time) (time.Time, bool) {
	if p.cron != "" {
		if _, e, inside := p.Contains(now); inside {
			// The recurrence end, unless the next recurrence starts
			// earlier (overlapping cron spans collapse into one
			// continuous window).
			next, err := gronx.NextTickAfter(p.cron, now, false)
			if err == nil && next.Before(e) {
				return next, true
			}
			return e, true
		}
		next, err := gronx.NextTickAfter(p.cron, now, false)
		if err != nil {
			return time.Time{}, false
		}
		return next, true
	}

	if now.Before(p.start) {
		return p.start, true
	}
	if p.repeat == RepeatNone {
		if now.Before(p.end) {
			return p.end, true
		}
		return time.Time{}, false
	}
	k := p.indexFor(now)
	if _, e := p.recurrence(k); now.Before(e) {
		return e, true
	}
	s, _ := p.recurrence(k + 1)
	return s, true
}

// nextStart returns the first recurrence start strictly after now, or ok
// false when none exists. Used by tariff overlap validation.
func (p *Period) nextStart(now time.Time) (time.Time, bool) {
	if p.cron != "" {
		next, err := gronx.NextTickAfter(p.cron, now, false)
		if err != nil {
			return time.Time{}, false
		}
		return next, true
	}
	if now.Before(p.start) {
		return p.start, true
	}
	if p.repeat == RepeatNone {
		return time.Time{}, false
	}
	k := p.indexFor(now)
	s, _ := p.recurrence(k + 1)
	return s, true
}
