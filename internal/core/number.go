package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Display defaults.
const (
	DefaultRounding     = 5
	DefaultChiThreshold = 1.5
	chiDecimals         = 2
)

// ParseNumber converts field text to a float. Empty text is the unset value
// (NaN); anything else must parse as a float.
func ParseNumber(text string) (float64, error) {
	t := strings.TrimSpace(text)
	if t == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", text, err)
	}
	return v, nil
}

// FormatNumber renders an input value as field text. NaN renders empty, and
// the shortest representation is used so that ParseNumber(FormatNumber(v))
// returns v exactly.
func FormatNumber(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// FormatResult renders a solver output with a fixed number of decimals.
func FormatResult(v float64, decimals int) string {
	if math.IsNaN(v) {
		return ""
	}
	if decimals < 0 {
		decimals = 0
	}
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

// BadFit reports whether a chi-square exceeds the threshold.
func BadFit(chi, threshold float64) bool {
	return !math.IsNaN(chi) && chi > threshold
}

func nan() float64 { return math.NaN() }
