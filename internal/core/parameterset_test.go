package core

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"fitsync/pkg/domain"
)

func newSet(t *testing.T, run int, reg *SharedRegistry, names ...string) *ParameterSet {
	t.Helper()
	s := NewParameterSet(runKey(run), reg)
	seeds := make(map[string]domain.Guess, len(names))
	for i, n := range names {
		seeds[n] = guess(float64(i+1), 0, 10)
	}
	s.Reshape(names, seeds)
	return s
}

func TestFixedAndSharedAreExclusive(t *testing.T) {
	reg := NewSharedRegistry()
	a := newSet(t, 1, reg, "amp")
	b := newSet(t, 2, reg, "amp")

	if err := b.Set("amp", domain.ColumnFixed, domain.Bool(true)); err != nil {
		t.Fatalf("fix: %v", err)
	}
	if err := a.Set("amp", domain.ColumnShared, domain.Bool(true)); err != nil {
		t.Fatalf("share: %v", err)
	}
	if v, _ := b.Get("amp", domain.ColumnFixed); v.Flag {
		t.Fatalf("sharing through run 1 must unfix run 2")
	}
	if v, _ := b.Get("amp", domain.ColumnShared); !v.Flag {
		t.Fatalf("shared flag must be visible from run 2")
	}

	if err := a.Set("amp", domain.ColumnFixed, domain.Bool(true)); err != nil {
		t.Fatalf("fix: %v", err)
	}
	if reg.IsShared("amp") {
		t.Fatalf("fixing must clear the shared flag")
	}
	for _, s := range []*ParameterSet{a, b} {
		for _, row := range s.Rows() {
			if row.Fixed && row.Shared {
				t.Fatalf("row %s of %s is fixed and shared", row.Name, s.Run())
			}
		}
	}
}

func TestReshapePreservesKeptValuesAndIsIdempotent(t *testing.T) {
	reg := NewSharedRegistry()
	s := newSet(t, 1, reg, "1_T1", "amp")
	if err := s.Set("1_T1", domain.ColumnP0, domain.Num(3.25)); err != nil {
		t.Fatalf("set: %v", err)
	}
	seeds := map[string]domain.Guess{"1_T1": guess(9, 9, 9), "beta": guess(0.5, 0, 1)}

	part := s.Reshape([]string{"1_T1", "beta"}, seeds)
	want := Partition{Kept: []string{"1_T1"}, Added: []string{"beta"}, Removed: []string{"amp"}}
	if !reflect.DeepEqual(part, want) {
		t.Fatalf("expected %+v, got %+v", want, part)
	}
	if v, _ := s.Get("1_T1", domain.ColumnP0); v.Number != 3.25 {
		t.Fatalf("kept parameter lost its value: %v", v.Number)
	}
	if v, _ := s.Get("beta", domain.ColumnP0); v.Number != 0.5 {
		t.Fatalf("added parameter not seeded: %v", v.Number)
	}
	if reg.RefCount("amp") != 0 {
		t.Fatalf("removed parameter still referenced")
	}

	again := s.Reshape([]string{"beta", "1_T1"}, seeds)
	if again.Changed() {
		t.Fatalf("second reshape must be a no-op, got %+v", again)
	}
	if v, _ := s.Get("1_T1", domain.ColumnP0); v.Number != 3.25 {
		t.Fatalf("no-op reshape changed values")
	}
}

func TestReshapeAddsUnseededAsUnset(t *testing.T) {
	s := NewParameterSet(runKey(1), nil)
	s.Reshape([]string{"amp"}, nil)
	v, err := s.Get("amp", domain.ColumnLo)
	if err != nil || !v.IsUnset() {
		t.Fatalf("expected unset lower bound, got %v %v", v, err)
	}
}

func TestSetResultIsAllOrNothing(t *testing.T) {
	s := newSet(t, 1, nil, "1_T1", "amp")
	bad := domain.FitResult{Names: []string{"amp", "ghost"}, Values: []float64{1, 2}, Errors: []float64{0.1, 0.2}, ChiSquare: 1}
	err := s.SetResult(bad)
	var mm domain.ModelMismatchError
	if !errors.As(err, &mm) || !errors.Is(err, domain.ErrUnknownParameter) {
		t.Fatalf("expected model mismatch, got %v", err)
	}
	if v, _ := s.Get("amp", domain.ColumnRes); !v.IsUnset() {
		t.Fatalf("partial write on failure: %v", v.Number)
	}
	if s.Fitted() {
		t.Fatalf("set must not be fitted after rejected result")
	}

	misaligned := domain.FitResult{Names: []string{"amp"}, Values: []float64{1}}
	if err := s.SetResult(misaligned); err == nil {
		t.Fatalf("expected misaligned result to fail")
	}
}

func TestSetResultWritesChiToEveryParameter(t *testing.T) {
	s := newSet(t, 1, nil, "1_T1", "amp", "beta")
	fn := func(x float64, p ...float64) float64 { return p[0] + p[1]*x }
	r := domain.FitResult{Names: []string{"1_T1", "amp"}, Values: []float64{1.5, 0.25}, Errors: []float64{0.1, 0.01}, ChiSquare: 1.7, Fn: fn}
	if err := s.SetResult(r); err != nil {
		t.Fatalf("set result: %v", err)
	}
	for _, name := range s.Names() {
		if v, _ := s.Get(name, domain.ColumnChi); v.Number != 1.7 {
			t.Fatalf("chi of %s = %v", name, v.Number)
		}
	}
	if v, _ := s.Get("beta", domain.ColumnRes); !v.IsUnset() {
		t.Fatalf("beta was not in the result")
	}
	got, names, values, ok := s.Curve()
	if !ok || !reflect.DeepEqual(names, []string{"1_T1", "amp"}) || !reflect.DeepEqual(values, []float64{1.5, 0.25}) {
		t.Fatalf("unexpected curve %v %v %v", names, values, ok)
	}
	if got(2, values...) != 2 {
		t.Fatalf("curve evaluates to %v", got(2, values...))
	}
	if s.ChiSquare() != 1.7 || !s.Fitted() {
		t.Fatalf("expected fitted with chi 1.7")
	}
}

func TestOutputColumnsAreReadOnly(t *testing.T) {
	s := newSet(t, 1, nil, "amp")
	for _, col := range domain.OutputColumns {
		if err := s.Set("amp", col, domain.Num(1)); !errors.Is(err, domain.ErrReadOnlyColumn) {
			t.Fatalf("expected read-only error for %s, got %v", col, err)
		}
	}
	if _, err := s.Get("ghost", domain.ColumnP0); !errors.Is(err, domain.ErrUnknownParameter) {
		t.Fatalf("expected unknown parameter, got %v", err)
	}
}

func TestRestoreRowPrefersShared(t *testing.T) {
	reg := NewSharedRegistry()
	s := newSet(t, 1, reg, "amp")
	row := domain.ParameterRow{Name: "amp", P0: 2, Lo: domain.Float(math.NaN()), Hi: 4, Res: 2.5, DRes: 0.1, Chi: 1.1, Fixed: true, Shared: true}
	if err := s.Restore(row); err != nil {
		t.Fatalf("restore: %v", err)
	}
	rows := s.Rows()
	if rows[0].Fixed || !rows[0].Shared {
		t.Fatalf("expected shared to win, got %+v", rows[0])
	}
	if !math.IsNaN(float64(rows[0].Lo)) || rows[0].Res != 2.5 || s.ChiSquare() != 1.1 {
		t.Fatalf("unexpected restored row %+v", rows[0])
	}
}

func TestCloseReleasesHandles(t *testing.T) {
	reg := NewSharedRegistry()
	s := newSet(t, 1, reg, "1_T1", "amp")
	other := newSet(t, 2, reg, "amp")
	s.Close()
	if reg.RefCount("1_T1") != 0 || reg.RefCount("amp") != 1 {
		t.Fatalf("unexpected refs after close: %v", reg.Names())
	}
	if other.Len() != 1 || s.Len() != 0 {
		t.Fatalf("close must only affect its own set")
	}
}
