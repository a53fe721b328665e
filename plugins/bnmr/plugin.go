// Package bnmr provides the fitting routines for beta-detected NMR runs:
// SLR relaxation (Exp, Str Exp) and resonance lineshapes (Lorentzian,
// Gaussian).
package bnmr

import (
	"context"
	"fmt"
	"math"
	"strings"

	"fitsync/internal/core"
	"fitsync/pkg/domain"
)

// Plugin contributes the bnmr routines and their sanity rule.
type Plugin struct {
	solver Solver
}

// New constructs a plugin whose routines fit with solver.
func New(solver Solver) Plugin {
	return Plugin{solver: solver}
}

func (Plugin) Name() string { return "bnmr" }

func (Plugin) Version() string { return "0.1.0" }

// Register wires the routines and the stretch exponent rule.
func (p Plugin) Register(registry *core.PluginRegistry) error {
	if err := registry.RegisterRoutines(NewRoutines(p.solver)); err != nil {
		return err
	}
	registry.RegisterRule(stretchRangeRule{})
	return nil
}

type stretchRangeRule struct{}

func (stretchRangeRule) Name() string { return "bnmr_stretch_range" }

// Evaluate warns when a stretching exponent starts outside (0, 1].
func (stretchRangeRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	var result domain.Result
	for _, run := range view.ListRuns() {
		for _, p := range run.Parameters {
			if p.Name != "beta" && !strings.HasPrefix(p.Name, "beta_") {
				continue
			}
			v := float64(p.P0)
			if math.IsNaN(v) || (v > 0 && v <= 1) {
				continue
			}
			result.Violations = append(result.Violations, domain.Violation{
				Rule:      "bnmr_stretch_range",
				Severity:  domain.SeverityWarn,
				Message:   fmt.Sprintf("stretching exponent %s of run %s is %g, outside (0, 1]", p.Name, run.Key, v),
				Run:       run.Key.String(),
				Parameter: p.Name,
			})
		}
	}
	return result, nil
}
