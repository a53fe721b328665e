package domain

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// RunKey identifies one measurement, or a merged set of measurements from the
// same year. Merged runs are kept sorted.
type RunKey struct {
	Year   int   `json:"year" yaml:"year"`
	Run    int   `json:"run" yaml:"run"`
	Merged []int `json:"merged,omitempty" yaml:"merged,omitempty"`
}

// NewRunKey builds a key for a single run.
func NewRunKey(year, run int) RunKey {
	return RunKey{Year: year, Run: run}
}

// MergedRunKey builds a key for several runs combined into one dataset. The
// lowest run number becomes the primary run.
func MergedRunKey(year int, runs ...int) (RunKey, error) {
	if len(runs) == 0 {
		return RunKey{}, fmt.Errorf("merged run key requires at least one run")
	}
	sorted := append([]int(nil), runs...)
	sort.Ints(sorted)
	key := RunKey{Year: year, Run: sorted[0]}
	if len(sorted) > 1 {
		key.Merged = sorted[1:]
	}
	return key, nil
}

// String renders the key as year.run or year.run+run+... for merged runs.
func (k RunKey) String() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(k.Year))
	b.WriteByte('.')
	b.WriteString(strconv.Itoa(k.Run))
	for _, r := range k.Merged {
		b.WriteByte('+')
		b.WriteString(strconv.Itoa(r))
	}
	return b.String()
}

// ParseRunKey parses the String form.
func ParseRunKey(s string) (RunKey, error) {
	year, rest, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return RunKey{}, fmt.Errorf("run key %q: expected year.run", s)
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return RunKey{}, fmt.Errorf("run key %q: year: %w", s, err)
	}
	parts := strings.Split(rest, "+")
	runs := make([]int, 0, len(parts))
	for _, p := range parts {
		r, err := strconv.Atoi(p)
		if err != nil {
			return RunKey{}, fmt.Errorf("run key %q: run: %w", s, err)
		}
		runs = append(runs, r)
	}
	return MergedRunKey(y, runs...)
}

// Less orders keys by year, then run, then merged tail.
func (k RunKey) Less(other RunKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	if k.Run != other.Run {
		return k.Run < other.Run
	}
	return k.String() < other.String()
}

// RunData exposes the fields the engine needs from a loaded measurement. It is
// an explicit accessor surface: anything not listed here is not available to
// the engine.
type RunData interface {
	Key() RunKey
	// Mode is the run-type tag selecting the applicable fit functions.
	Mode() string
	Title() string
	Field() float64
	Temperature() float64
	Bias() float64
}

// RunProvider loads run data. A failure means the run cannot be added.
type RunProvider interface {
	Fetch(ctx context.Context, key RunKey) (RunData, error)
}

// RunProviderFunc adapts a function to RunProvider.
type RunProviderFunc func(ctx context.Context, key RunKey) (RunData, error)

// Fetch calls f.
func (f RunProviderFunc) Fetch(ctx context.Context, key RunKey) (RunData, error) {
	return f(ctx, key)
}
