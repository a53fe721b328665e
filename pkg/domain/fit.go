package domain

import (
	"context"
	"fmt"
)

// Guess is one initial-guess row: starting value, bounds and whether the
// parameter starts out fixed.
type Guess struct {
	P0    float64 `json:"p0" yaml:"p0"`
	Lo    float64 `json:"blo" yaml:"blo"`
	Hi    float64 `json:"bhi" yaml:"bhi"`
	Fixed bool    `json:"fixed,omitempty" yaml:"fixed,omitempty"`
}

// FittedFunc evaluates a fitted model at x with the given parameter values in
// the order of FitResult.Names.
type FittedFunc func(x float64, params ...float64) float64

// FitResult is the solver output for one run. Values and Errors are aligned
// with Names.
type FitResult struct {
	Names     []string
	Values    []float64
	Errors    []float64
	ChiSquare float64
	Fn        FittedFunc
}

// Validate checks the slices are aligned.
func (r FitResult) Validate() error {
	if len(r.Values) != len(r.Names) || len(r.Errors) != len(r.Names) {
		return fmt.Errorf("fit result: %d names, %d values, %d errors", len(r.Names), len(r.Values), len(r.Errors))
	}
	return nil
}

// ValueOf returns the fitted value for name.
func (r FitResult) ValueOf(name string) (float64, bool) {
	for i, n := range r.Names {
		if n == name && i < len(r.Values) {
			return r.Values[i], true
		}
	}
	return 0, false
}

// ParamInput is one parameter row handed to the solver.
type ParamInput struct {
	P0     float64
	Lo     float64
	Hi     float64
	Fixed  bool
	Shared bool
}

// FitInput packages one run for the solver.
type FitInput struct {
	Run     RunData
	Params  map[string]ParamInput
	Options map[string]string
}

// FitRequest is a whole fit batch.
type FitRequest struct {
	Function   string
	Components int
	Inputs     []FitInput
	XLo        float64
	XHi        float64
	AsymMode   string
}

// Routines is the fitting-routine collaborator. ParamNames and InitialGuess
// must fail with an error wrapping ErrUnknownFunction for functions they do
// not recognise. Fit returns results keyed by RunKey.String() and the global
// chi-square of the batch.
type Routines interface {
	Name() string
	FunctionNames(mode string) []string
	ParamNames(fn string, ncomp int) ([]string, error)
	InitialGuess(fn string, ncomp int, run RunData, asymMode string) (map[string]Guess, error)
	Fit(ctx context.Context, req FitRequest) (map[string]FitResult, float64, error)
}
