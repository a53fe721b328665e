package core

import (
	"context"
	"fmt"
	"math"

	"fitsync/pkg/domain"
)

// NewBoundsOrderRule warns about initial values outside their bounds and
// about inverted bounds. The solver decides what to do with them.
func NewBoundsOrderRule() domain.Rule {
	return boundsOrderRule{}
}

type boundsOrderRule struct{}

func (boundsOrderRule) Name() string { return "bounds_order" }

func (boundsOrderRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, run := range view.ListRuns() {
		for _, p := range run.Parameters {
			lo, hi, p0 := float64(p.Lo), float64(p.Hi), float64(p.P0)
			var msg string
			switch {
			case !math.IsNaN(lo) && !math.IsNaN(hi) && lo > hi:
				msg = fmt.Sprintf("parameter %s of run %s has lower bound %g above upper bound %g", p.Name, run.Key, lo, hi)
			case !math.IsNaN(p0) && !math.IsNaN(lo) && p0 < lo:
				msg = fmt.Sprintf("parameter %s of run %s starts at %g below its lower bound %g", p.Name, run.Key, p0, lo)
			case !math.IsNaN(p0) && !math.IsNaN(hi) && p0 > hi:
				msg = fmt.Sprintf("parameter %s of run %s starts at %g above its upper bound %g", p.Name, run.Key, p0, hi)
			default:
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:      "bounds_order",
				Severity:  domain.SeverityWarn,
				Message:   msg,
				Run:       run.Key.String(),
				Parameter: p.Name,
			})
		}
	}
	return res, nil
}
