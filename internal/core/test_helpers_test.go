package core

import (
	"context"
	"fmt"
	"math"
	"sort"
	"testing"

	"fitsync/pkg/domain"
)

type fakeRun struct {
	key   domain.RunKey
	mode  string
	field float64
}

func (r fakeRun) Key() domain.RunKey   { return r.key }
func (r fakeRun) Mode() string         { return r.mode }
func (r fakeRun) Title() string        { return "run " + r.key.String() }
func (r fakeRun) Field() float64       { return r.field }
func (r fakeRun) Temperature() float64 { return 300 }
func (r fakeRun) Bias() float64        { return 0 }

func runKey(run int) domain.RunKey { return domain.NewRunKey(2024, run) }

func guess(p0, lo, hi float64) domain.Guess { return domain.Guess{P0: p0, Lo: lo, Hi: hi} }

type fitCall struct {
	req domain.FitRequest
}

// fakeRoutines offers "Exp" (1_T1, amp) and "Str Exp" (1_T1, amp, beta) for
// mode "20". Multi-component names get a _i suffix.
type fakeRoutines struct {
	guesses map[string]domain.Guess
	chi     map[string]float64
	fit     func(req domain.FitRequest) (map[string]domain.FitResult, float64, error)
	calls   []fitCall
}

func newFakeRoutines() *fakeRoutines {
	return &fakeRoutines{
		guesses: map[string]domain.Guess{
			"1_T1": guess(1.2, 0, math.Inf(1)),
			"amp":  guess(0.1, -1, 1),
			"beta": guess(0.5, 0, 1),
		},
		chi: make(map[string]float64),
	}
}

func (f *fakeRoutines) Name() string { return "fake" }

func (f *fakeRoutines) FunctionNames(mode string) []string {
	if mode == "20" {
		return []string{"Exp", "Str Exp"}
	}
	return nil
}

func (f *fakeRoutines) ParamNames(fn string, ncomp int) ([]string, error) {
	var base []string
	switch fn {
	case "Exp":
		base = []string{"1_T1", "amp"}
	case "Str Exp":
		base = []string{"1_T1", "amp", "beta"}
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownFunction, fn)
	}
	if ncomp == 1 {
		return base, nil
	}
	var out []string
	for i := 0; i < ncomp; i++ {
		for _, b := range base {
			out = append(out, fmt.Sprintf("%s_%d", b, i))
		}
	}
	return out, nil
}

func (f *fakeRoutines) InitialGuess(fn string, ncomp int, _ domain.RunData, _ string) (map[string]domain.Guess, error) {
	names, err := f.ParamNames(fn, ncomp)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Guess, len(names))
	for _, n := range names {
		base := n
		if ncomp > 1 {
			base = n[:len(n)-2]
		}
		out[n] = f.guesses[base]
	}
	return out, nil
}

// Fit returns p0+1 for every parameter unless fit is overridden.
func (f *fakeRoutines) Fit(_ context.Context, req domain.FitRequest) (map[string]domain.FitResult, float64, error) {
	f.calls = append(f.calls, fitCall{req: req})
	if f.fit != nil {
		return f.fit(req)
	}
	out := make(map[string]domain.FitResult, len(req.Inputs))
	for _, in := range req.Inputs {
		id := in.Run.Key().String()
		names := make([]string, 0, len(in.Params))
		for n := range in.Params {
			names = append(names, n)
		}
		sort.Strings(names)
		r := domain.FitResult{Names: names, ChiSquare: 0.8, Fn: func(x float64, p ...float64) float64 { return p[0] * x }}
		if chi, ok := f.chi[id]; ok {
			r.ChiSquare = chi
		}
		for _, n := range names {
			r.Values = append(r.Values, in.Params[n].P0+1)
			r.Errors = append(r.Errors, 0.01)
		}
		out[id] = r
	}
	return out, 0.9, nil
}

func fakeProvider(fail ...int) domain.RunProvider {
	return domain.RunProviderFunc(func(_ context.Context, key domain.RunKey) (domain.RunData, error) {
		for _, f := range fail {
			if key.Run == f {
				return nil, fmt.Errorf("run %s not on disk", key)
			}
		}
		return fakeRun{key: key, mode: "20", field: 6.55}, nil
	})
}

// newTestSession builds a session over fakeRoutines with the given runs of
// year 2024 already added.
func newTestSession(t *testing.T, runs ...int) (*Session, *fakeRoutines) {
	t.Helper()
	routines := newFakeRoutines()
	s := NewSession(fakeProvider(), WithRoutines(routines))
	for _, r := range runs {
		if err := s.AddRun(context.Background(), runKey(r)); err != nil {
			t.Fatalf("add run %d: %v", r, err)
		}
	}
	return s, routines
}

func mustLine(t *testing.T, s *Session, run int) *FitLine {
	t.Helper()
	l, ok := s.Line(runKey(run))
	if !ok {
		t.Fatalf("run %d not in session", run)
	}
	return l
}

func mustText(t *testing.T, l *FitLine, name string, col domain.Column) string {
	t.Helper()
	text, err := l.Text(name, col)
	if err != nil {
		t.Fatalf("text %s/%s: %v", name, col, err)
	}
	return text
}

func mustGet(t *testing.T, s *Session, run int, name string, col domain.Column) domain.Value {
	t.Helper()
	v, err := s.Get(runKey(run), name, col)
	if err != nil {
		t.Fatalf("get %d %s/%s: %v", run, name, col, err)
	}
	return v
}
