package core

import (
	"context"
	"fitsync/pkg/domain"
	"fmt"
)

// NewFixedSharedExclusionRule rejects state in which a parameter is both fixed
// and shared.
func NewFixedSharedExclusionRule() domain.Rule {
	return fixedSharedExclusionRule{}
}

type fixedSharedExclusionRule struct{}

func (fixedSharedExclusionRule) Name() string { return "fixed_shared_exclusion" }

func (fixedSharedExclusionRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, run := range view.ListRuns() {
		for _, p := range run.Parameters {
			if p.Fixed && p.Shared {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:      "fixed_shared_exclusion",
					Severity:  domain.SeverityBlock,
					Message:   fmt.Sprintf("parameter %s of run %s is both fixed and shared", p.Name, run.Key),
					Run:       run.Key.String(),
					Parameter: p.Name,
				})
			}
		}
	}
	return res, nil
}
