package tariff

import (
	"testing"
	"time"
)

func date(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("bad test date %q: %v", value, err)
	}
	return ts
}

func mustPeriod(t *testing.T, start, end string, repeat RepeatType, interval int, class Classification) *Period {
	t.Helper()
	p, err := NewPeriod(date(t, start), date(t, end), repeat, interval, class)
	if err != nil {
		t.Fatalf("NewPeriod: %v", err)
	}
	return p
}

func TestNewPeriodValidation(t *testing.T) {
	start := date(t, "2024-01-01T22:00:00Z")
	end := date(t, "2024-01-02T06:00:00Z")

	tests := []struct {
		name     string
		start    time.Time
		end      time.Time
		repeat   RepeatType
		interval int
	}{
		{"start equals end", start, start, RepeatNone, 0},
		{"start after end", end, start, RepeatNone, 0},
		{"repeat without interval", start, end, RepeatDay, 0},
		{"interval without repeat", start, end, RepeatNone, 1},
		{"negative interval", start, end, RepeatDay, -1},
		{"span exceeds stride", start, start.Add(30 * time.Hour), RepeatDay, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewPeriod(tc.start, tc.end, tc.repeat, tc.interval, Unrestricted); err == nil {
				t.Errorf("NewPeriod accepted invalid input")
			}
		})
	}

	if _, err := NewPeriod(start, end, RepeatDay, 1, Unrestricted); err != nil {
		t.Errorf("NewPeriod rejected valid input: %v", err)
	}
}

func TestPeriodDailyWraparound(t *testing.T) {
	// Daily 22:00-06:00, checked across three consecutive days.
	p := mustPeriod(t, "2024-01-01T22:00:00Z", "2024-01-02T06:00:00Z", RepeatDay, 1, Unrestricted)

	for day := 2; day <= 4; day++ {
		base := time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)

		if _, _, ok := p.Contains(base.Add(23 * time.Hour)); !ok {
			t.Errorf("day %d: 23:00 should be inside", day)
		}
		if _, _, ok := p.Contains(base.Add(1 * time.Hour)); !ok {
			t.Errorf("day %d: 01:00 should be inside", day)
		}
		if _, _, ok := p.Contains(base.Add(12 * time.Hour)); ok {
			t.Errorf("day %d: 12:00 should be outside", day)
		}
	}
}

func TestPeriodContainsBounds(t *testing.T) {
	p := mustPeriod(t, "2024-01-01T22:00:00Z", "2024-01-02T06:00:00Z", RepeatDay, 1, Unrestricted)

	when := date(t, "2024-01-05T01:00:00Z")
	start, end, ok := p.Contains(when)
	if !ok {
		t.Fatalf("Contains(%v) = false, want true", when)
	}
	if want := date(t, "2024-01-04T22:00:00Z"); !start.Equal(want) {
		t.Errorf("recurrence start = %v, want %v", start, want)
	}
	if want := date(t, "2024-01-05T06:00:00Z"); !end.Equal(want) {
		t.Errorf("recurrence end = %v, want %v", end, want)
	}

	if _, _, ok := p.Contains(date(t, "2023-12-31T23:00:00Z")); ok {
		t.Error("instant before the anchor should be outside")
	}
}

func TestPeriodNextBoundary(t *testing.T) {
	p := mustPeriod(t, "2024-01-01T22:00:00Z", "2024-01-02T06:00:00Z", RepeatDay, 1, Unrestricted)

	tests := []struct {
		now  string
		want string
	}{
		{"2023-12-30T12:00:00Z", "2024-01-01T22:00:00Z"}, // before anchor: first start
		{"2024-01-02T01:00:00Z", "2024-01-02T06:00:00Z"}, // inside: recurrence end
		{"2024-01-02T12:00:00Z", "2024-01-02T22:00:00Z"}, // between: next start
	}
	for _, tc := range tests {
		got, ok := p.NextBoundary(date(t, tc.now))
		if !ok {
			t.Errorf("NextBoundary(%s): no boundary", tc.now)
			continue
		}
		if want := date(t, tc.want); !got.Equal(want) {
			t.Errorf("NextBoundary(%s) = %v, want %v", tc.now, got, want)
		}
	}
}

func TestPeriodNoRepeatBoundaryExhaustion(t *testing.T) {
	p := mustPeriod(t, "2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z", RepeatNone, 0, Capped)

	if _, ok := p.NextBoundary(date(t, "2024-01-03T00:00:00Z")); ok {
		t.Error("one-shot period past its end should have no next boundary")
	}
}

func TestPeriodMonthlyRepeat(t *testing.T) {
	// First three days of every month.
	p := mustPeriod(t, "2024-01-01T00:00:00Z", "2024-01-04T00:00:00Z", RepeatMonth, 1, Capped)

	inside := []string{
		"2024-02-02T10:00:00Z",
		"2024-07-01T00:00:00Z",
		"2025-03-03T23:59:00Z",
	}
	for _, s := range inside {
		if _, _, ok := p.Contains(date(t, s)); !ok {
			t.Errorf("%s should be inside", s)
		}
	}
	outside := []string{
		"2024-02-10T10:00:00Z",
		"2024-06-30T23:59:00Z",
	}
	for _, s := range outside {
		if _, _, ok := p.Contains(date(t, s)); ok {
			t.Errorf("%s should be outside", s)
		}
	}
}

func TestCronPeriod(t *testing.T) {
	// Daily at 22:00 for 8 hours, expressed as a cron rule.
	p, err := NewCronPeriod("0 22 * * *", 8*time.Hour, Unrestricted)
	if err != nil {
		t.Fatalf("NewCronPeriod: %v", err)
	}

	if _, _, ok := p.Contains(date(t, "2024-01-02T23:00:00Z")); !ok {
		t.Error("23:00 should be inside")
	}
	if _, _, ok := p.Contains(date(t, "2024-01-03T01:00:00Z")); !ok {
		t.Error("01:00 should be inside")
	}
	if _, _, ok := p.Contains(date(t, "2024-01-03T12:00:00Z")); ok {
		t.Error("12:00 should be outside")
	}

	got, ok := p.NextBoundary(date(t, "2024-01-03T12:00:00Z"))
	if !ok {
		t.Fatal("cron period should always have a next boundary")
	}
	if want := date(t, "2024-01-03T22:00:00Z"); !got.Equal(want) {
		t.Errorf("NextBoundary = %v, want %v", got, want)
	}
}

func TestNewCronPeriodValidation(t *testing.T) {
	if _, err := NewCronPeriod("not a cron", time.Hour, Capped); err == nil {
		t.Error("invalid cron expression accepted")
	}
	if _, err := NewCronPeriod("0 22 * * *", 0, Capped); err == nil {
		t.Error("zero span accepted")
	}
}
