package tariff

import "time"

// Builder assembles a Tariff incrementally. Periods are validated as they
// are added; the first error sticks and is returned by Tariff().
type Builder struct {
	name    string
	periods []*Period
	err     error
}

// NewBuilder creates a Builder for a tariff with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// AddPeriod appends an anchored period. Returns the builder for chaining.
func (b *Builder) AddPeriod(start, end time.Time, repeat RepeatType, interval int, class Classification) *Builder {
	if b.err != nil {
		return b
	}
	p, err := NewPeriod(start, end, repeat, interval, class)
	if err != nil {
		b.err = err
		return b
	}
	b.periods = append(b.periods, p)
	return b
}

// AddCronPeriod appends a cron-ruled period. Returns the builder for
// chaining.
func (b *Builder) AddCronPeriod(expr string, span time.Duration, class Classification) *Builder {
	if b.err != nil {
		return b
	}
	p, err := NewCronPeriod(expr, span, class)
	if err != nil {
		b.err = err
		return b
	}
	b.periods = append(b.periods, p)
	return b
}

// Tariff validates the accumulated periods and returns the finished Tariff.
func (b *Builder) Tariff() (*Tariff, error) {
	if b.err != nil {
		return nil, b.err
	}
	return New(b.name, b.periods)
}
