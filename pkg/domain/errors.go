package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownFunction is wrapped when a fit function/component combination
	// is not recognised by the fitting routines.
	ErrUnknownFunction = errors.New("unknown fit function")
	// ErrUnknownParameter is wrapped when a parameter name is absent from a
	// run's parameter set.
	ErrUnknownParameter = errors.New("unknown parameter")
	// ErrUnknownRun is returned when a run is not part of the session.
	ErrUnknownRun = errors.New("unknown run")
	// ErrReadOnlyColumn is returned when a solver-owned column is written from
	// the input side.
	ErrReadOnlyColumn = errors.New("read-only column")
)

// InputError reports non-numeric text typed into a numeric column. The cell
// keeps its previous valid text.
type InputError struct {
	Run       string
	Parameter string
	Column    Column
	Text      string
	Err       error
}

func (e InputError) Error() string {
	where := e.Parameter
	if e.Run != "" {
		where = fmt.Sprintf("%s (run %s)", e.Parameter, e.Run)
	}
	if where == "" {
		return fmt.Sprintf("bad input %q for %s", e.Text, e.Column)
	}
	return fmt.Sprintf("bad input %q for %s of %s", e.Text, e.Column, where)
}

func (e InputError) Unwrap() error { return e.Err }

// ModelMismatchError aborts populate or result write-back when the model and
// the parameter set disagree.
type ModelMismatchError struct {
	Function   string
	Components int
	Run        string
	Parameter  string
	Err        error
}

func (e ModelMismatchError) Error() string {
	switch {
	case e.Parameter != "" && e.Run != "":
		return fmt.Sprintf("model mismatch: parameter %s not in run %s: %v", e.Parameter, e.Run, e.Err)
	case e.Parameter != "":
		return fmt.Sprintf("model mismatch: parameter %s: %v", e.Parameter, e.Err)
	default:
		return fmt.Sprintf("model mismatch: %q with %d components: %v", e.Function, e.Components, e.Err)
	}
}

func (e ModelMismatchError) Unwrap() error { return e.Err }

// SolverError wraps a failure of the external fit call.
type SolverError struct {
	Function string
	Err      error
}

func (e SolverError) Error() string {
	return fmt.Sprintf("fit %q failed: %v", e.Function, e.Err)
}

func (e SolverError) Unwrap() error { return e.Err }
