package tariff

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/afero"
)

// periodFile is the serialized form of one period. Exactly one of
// (start, end) or (cron, span) must be present.
type periodFile struct {
	Start          string `json:"start,omitempty"`
	End            string `json:"end,omitempty"`
	Repeat         string `json:"repeat,omitempty"`
	Interval       int    `json:"interval,omitempty"`
	Cron           string `json:"cron,omitempty"`
	Span           string `json:"span,omitempty"`
	Classification string `json:"classification"`
}

// tariffFile is the serialized form of a tariff.
type tariffFile struct {
	Name    string       `json:"name"`
	Periods []periodFile `json:"periods"`
}

// Loader reads tariff files. The filesystem is abstracted so tests can load
// from memory.
type Loader struct {
	fs afero.Fs
}

// NewLoader creates a Loader reading from the given filesystem. Pass
// afero.NewOsFs() for the real one.
func NewLoader(fs afero.Fs) *Loader {
	return &Loader{fs: fs}
}

// LoadFile reads and validates a tariff file. On any error the caller's
// previously loaded tariff remains valid and should stay in use.
func (l *Loader) LoadFile(path string) (*Tariff, error) {
	b, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read tariff %s: %w", path, err)
	}
	return l.LoadBytes(b)
}

// LoadBytes parses and validates a serialized tariff.
func (l *Loader) LoadBytes(b []byte) (*Tariff, error) {
	var f tariffFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, &ValidationError{msg: "malformed tariff document", err: err}
	}
	builder := NewBuilder(f.Name)
	for i, pf := range f.Periods {
		class, err := ParseClassification(pf.Classification)
		if err != nil {
			return nil, &ValidationError{msg: fmt.Sprintf("period %d", i), err: err}
		}
		switch {
		case pf.Cron != "":
			if pf.Start != "" || pf.End != "" {
				return nil, &ValidationError{msg: fmt.Sprintf("period %d mixes cron and start/end rules", i)}
			}
			span, err := time.ParseDuration(pf.Span)
			if err != nil {
				return nil, &ValidationError{msg: fmt.Sprintf("period %d span", i), err: err}
			}
			builder.AddCronPeriod(pf.Cron, span, class)
		default:
			start, err := time.Parse(time.RFC3339, pf.Start)
			if err != nil {
				return nil, &ValidationError{msg: fmt.Sprintf("period %d start", i), err: err}
			}
			end, err := time.Parse(time.RFC3339, pf.End)
			if err != nil {
				return nil, &ValidationError{msg: fmt.Sprintf("period %d end", i), err: err}
			}
			repeat, err := ParseRepeatType(pf.Repeat)
			if err != nil {
				return nil, &ValidationError{msg: fmt.Sprintf("period %d", i), err: err}
			}
			builder.AddPeriod(start, end, repeat, pf.Interval, class)
		}
	}
	return builder.Tariff()
}
