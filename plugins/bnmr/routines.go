package bnmr

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"

	"fitsync/pkg/domain"
)

// Solver minimises the model against the data of every input in the batch.
// Results are keyed by RunKey.String(); fn evaluates the model with
// parameters in the order of names.
type Solver interface {
	Solve(ctx context.Context, fn domain.FittedFunc, names []string, req domain.FitRequest) (map[string]domain.FitResult, float64, error)
}

// SolverFunc adapts a function to Solver.
type SolverFunc func(ctx context.Context, fn domain.FittedFunc, names []string, req domain.FitRequest) (map[string]domain.FitResult, float64, error)

// Solve calls f.
func (f SolverFunc) Solve(ctx context.Context, fn domain.FittedFunc, names []string, req domain.FitRequest) (map[string]domain.FitResult, float64, error) {
	return f(ctx, fn, names, req)
}

// ErrNoSolver is returned by Fit when the routines were built without a
// solver.
var ErrNoSolver = errors.New("bnmr: no solver configured")

// Routines names parameters and generates initial guesses for the BNMR fit
// functions. Fitting is delegated to the injected Solver.
type Routines struct {
	solver Solver
}

// NewRoutines builds routines around solver, which may be nil when only
// naming and guesses are needed.
func NewRoutines(solver Solver) *Routines {
	return &Routines{solver: solver}
}

func (*Routines) Name() string { return "bnmr" }

// FunctionNames returns the functions applicable to a run mode, default first.
func (*Routines) FunctionNames(mode string) []string {
	return slices.Clone(functionsByMode[mode])
}

func (*Routines) ParamNames(fn string, ncomp int) ([]string, error) {
	return paramNames(fn, ncomp)
}

// InitialGuess seeds every parameter. Relaxation rates of successive
// components are spread by decades; resonance peaks start at the 8Li Larmor
// frequency of the run's field (Hz, field in T) and are spaced by one width.
func (*Routines) InitialGuess(fn string, ncomp int, run domain.RunData, asymMode string) (map[string]domain.Guess, error) {
	if _, err := paramNames(fn, ncomp); err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("initial guess for %s: no run data", fn)
	}
	if !slices.Contains(functionsByMode[run.Mode()], fn) {
		return nil, fmt.Errorf("%q for run mode %q: %w", fn, run.Mode(), domain.ErrUnknownFunction)
	}
	maxAmp := 1.0
	if asymMode == "h" {
		// split helicities carry half the combined asymmetry each
		maxAmp = 0.5
	}
	suffix := func(name string, i int) string {
		if ncomp == 1 {
			return name
		}
		return name + "_" + strconv.Itoa(i)
	}
	inf := math.Inf(1)
	out := make(map[string]domain.Guess)
	for i := 1; i <= ncomp; i++ {
		switch fn {
		case FuncExp, FuncStrExp:
			out[suffix("1_T1", i)] = domain.Guess{P0: math.Pow(10, float64(i-1)), Lo: 0, Hi: inf}
			out[suffix("amp", i)] = domain.Guess{P0: 0.1 * maxAmp / float64(ncomp), Lo: 0, Hi: maxAmp}
			if fn == FuncStrExp {
				out[suffix("beta", i)] = domain.Guess{P0: 0.5, Lo: 0, Hi: 1}
			}
		default:
			const width = 2e3
			larmor := GammaLi8 * 1e6 * run.Field()
			out[suffix("peak", i)] = domain.Guess{P0: larmor + float64(i-1)*width, Lo: 0, Hi: inf}
			out[suffix("width", i)] = domain.Guess{P0: width, Lo: 0, Hi: inf}
			out[suffix("height", i)] = domain.Guess{P0: 0.01 * maxAmp, Lo: 0, Hi: maxAmp}
		}
	}
	if isResonance(fn) {
		out["baseline"] = domain.Guess{P0: 0, Lo: -inf, Hi: inf}
	}
	return out, nil
}

// Fit runs the solver and attaches the model function to results that lack
// one.
func (r *Routines) Fit(ctx context.Context, req domain.FitRequest) (map[string]domain.FitResult, float64, error) {
	if r.solver == nil {
		return nil, 0, ErrNoSolver
	}
	names, err := paramNames(req.Function, req.Components)
	if err != nil {
		return nil, 0, err
	}
	fn, err := model(req.Function, req.Components)
	if err != nil {
		return nil, 0, err
	}
	results, chi, err := r.solver.Solve(ctx, fn, names, req)
	if err != nil {
		return nil, 0, err
	}
	for id, res := range results {
		if res.Fn == nil {
			res.Fn = fn
		}
		if len(res.Names) == 0 {
			res.Names = names
		}
		results[id] = res
	}
	return results, chi, nil
}
