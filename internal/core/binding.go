package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"fitsync/pkg/domain"
)

var errNoRoutines = errors.New("no fitting routines installed")

// ModelBinding adapts the fitting routines to the engine: it normalises
// parameter naming, wraps lookup failures as model mismatches and decides
// when a parameter set has to be reshaped.
type ModelBinding struct {
	routines domain.Routines
}

// NewModelBinding wraps routines. A nil routines value yields a binding that
// rejects every function.
func NewModelBinding(routines domain.Routines) *ModelBinding {
	return &ModelBinding{routines: routines}
}

// Routines returns the wrapped collaborator.
func (b *ModelBinding) Routines() domain.Routines { return b.routines }

// FunctionNames lists the fit functions available for a run mode.
func (b *ModelBinding) FunctionNames(mode string) []string {
	if b == nil || b.routines == nil {
		return nil
	}
	return b.routines.FunctionNames(mode)
}

func (b *ModelBinding) mismatch(fn string, ncomp int, err error) error {
	if !errors.Is(err, domain.ErrUnknownFunction) {
		err = fmt.Errorf("%w: %w", domain.ErrUnknownFunction, err)
	}
	return domain.ModelMismatchError{Function: fn, Components: ncomp, Err: err}
}

// ParameterNames returns the sorted parameter names of fn with ncomp
// components.
func (b *ModelBinding) ParameterNames(fn string, ncomp int) ([]string, error) {
	if b == nil || b.routines == nil {
		return nil, b.mismatch(fn, ncomp, errNoRoutines)
	}
	if fn == "" {
		return nil, b.mismatch(fn, ncomp, domain.ErrUnknownFunction)
	}
	if ncomp < 1 {
		return nil, b.mismatch(fn, ncomp, fmt.Errorf("component count %d", ncomp))
	}
	names, err := b.routines.ParamNames(fn, ncomp)
	if err != nil {
		return nil, b.mismatch(fn, ncomp, err)
	}
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out, nil
}

// InitialGuess returns the routine's starting values for run. Every name of
// ParameterNames is present in the result; missing guesses are unset.
func (b *ModelBinding) InitialGuess(fn string, ncomp int, run domain.RunData, asymMode string) (map[string]domain.Guess, error) {
	names, err := b.ParameterNames(fn, ncomp)
	if err != nil {
		return nil, err
	}
	guesses, err := b.routines.InitialGuess(fn, ncomp, run, asymMode)
	if err != nil {
		return nil, b.mismatch(fn, ncomp, err)
	}
	out := make(map[string]domain.Guess, len(names))
	for _, name := range names {
		g, ok := guesses[name]
		if !ok {
			g = domain.Guess{P0: nan(), Lo: nan(), Hi: nan()}
		}
		out[name] = g
	}
	return out, nil
}

// NeedsReshape reports whether set's names differ from those of fn.
func (b *ModelBinding) NeedsReshape(set *ParameterSet, fn string, ncomp int) (bool, error) {
	names, err := b.ParameterNames(fn, ncomp)
	if err != nil {
		return false, err
	}
	have := set.Names()
	if len(have) != len(names) {
		return true, nil
	}
	for i := range names {
		if names[i] != have[i] {
			return true, nil
		}
	}
	return false, nil
}

// Fit hands the batch to the routines. Any failure is reported as a
// SolverError.
func (b *ModelBinding) Fit(ctx context.Context, req domain.FitRequest) (map[string]domain.FitResult, float64, error) {
	if b == nil || b.routines == nil {
		return nil, 0, domain.SolverError{Function: req.Function, Err: errNoRoutines}
	}
	results, chi, err := b.routines.Fit(ctx, req)
	if err != nil {
		return nil, 0, domain.SolverError{Function: req.Function, Err: err}
	}
	return results, chi, nil
}
