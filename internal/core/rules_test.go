package core

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"fitsync/pkg/domain"
)

func snapshotWith(runs ...domain.RunSnapshot) domain.Snapshot {
	return domain.Snapshot{Version: domain.SnapshotVersion, Function: "Exp", Components: 1, Runs: runs}
}

func row(name string, p0, lo, hi float64, fixed, shared bool) domain.ParameterRow {
	nan := domain.Float(math.NaN())
	return domain.ParameterRow{Name: name, P0: domain.Float(p0), Lo: domain.Float(lo), Hi: domain.Float(hi), Res: nan, DRes: nan, Chi: nan, Fixed: fixed, Shared: shared}
}

func TestDefaultRulesEngineOrder(t *testing.T) {
	want := []string{"fixed_shared_exclusion", "shared_consistency", "bounds_order"}
	if got := NewDefaultRulesEngine().Rules(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestFixedSharedExclusionRule(t *testing.T) {
	snap := snapshotWith(domain.RunSnapshot{Key: runKey(1), Parameters: []domain.ParameterRow{row("amp", 0.1, 0, 1, true, true)}})
	res, err := NewFixedSharedExclusionRule().Evaluate(context.Background(), snap, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() || res.Violations[0].Parameter != "amp" || res.Violations[0].Run != "2024.1" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSharedConsistencyRule(t *testing.T) {
	snap := snapshotWith(
		domain.RunSnapshot{Key: runKey(1), Parameters: []domain.ParameterRow{row("amp", 0.1, 0, 1, false, true)}},
		domain.RunSnapshot{Key: runKey(2), Parameters: []domain.ParameterRow{row("amp", 0.1, 0, 1, false, false)}},
	)
	res, err := NewSharedConsistencyRule().Evaluate(context.Background(), snap, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 || res.Violations[0].Run != "2024.2" || !res.HasBlocking() {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestBoundsOrderRuleWarns(t *testing.T) {
	snap := snapshotWith(domain.RunSnapshot{Key: runKey(1), Parameters: []domain.ParameterRow{
		row("inverted", 0.5, 1, 0, false, false),
		row("below", -1, 0, 1, false, false),
		row("above", 2, 0, 1, false, false),
		row("open", 5, math.NaN(), math.NaN(), false, false),
	}})
	res, err := NewBoundsOrderRule().Evaluate(context.Background(), snap, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 3 || res.HasBlocking() {
		t.Fatalf("expected three warnings, got %+v", res)
	}
}

func TestValidateReportsWarnings(t *testing.T) {
	s, _ := newTestSession(t, 1)
	if err := s.Edit(runKey(1), "amp", domain.ColumnP0, "4"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	res, err := s.Validate(context.Background())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(res.Violations) != 1 || res.Violations[0].Severity != SeverityWarn {
		t.Fatalf("unexpected result %+v", res)
	}
}

type failingRule struct{}

func (failingRule) Name() string { return "failing" }
func (failingRule) Evaluate(context.Context, domain.RuleView, []domain.Change) (domain.Result, error) {
	return domain.Result{}, errors.New("rule crashed")
}

func TestRulesEngineStopsOnRuleError(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(NewBoundsOrderRule())
	engine.Register(failingRule{})
	if _, err := engine.Evaluate(context.Background(), snapshotWith(), nil); err == nil {
		t.Fatalf("expected rule error")
	}
}
