package core

import (
	"context"
	"fmt"
	"sort"

	"fitsync/pkg/domain"
)

// NewSharedConsistencyRule rejects state in which one run marks a name shared
// and another run carrying the same name does not. The shared flag is keyed by
// name, so such state cannot be represented.
func NewSharedConsistencyRule() domain.Rule {
	return sharedConsistencyRule{}
}

type sharedConsistencyRule struct{}

func (sharedConsistencyRule) Name() string { return "shared_consistency" }

func (sharedConsistencyRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	shared := make(map[string]struct{})
	for _, name := range view.SharedNames() {
		shared[name] = struct{}{}
	}
	res := domain.Result{}
	for _, run := range view.ListRuns() {
		var missing []string
		for _, p := range run.Parameters {
			if _, ok := shared[p.Name]; ok && !p.Shared {
				missing = append(missing, p.Name)
			}
		}
		sort.Strings(missing)
		for _, name := range missing {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:      "shared_consistency",
				Severity:  domain.SeverityBlock,
				Message:   fmt.Sprintf("parameter %s is shared elsewhere but not in run %s", name, run.Key),
				Run:       run.Key.String(),
				Parameter: name,
			})
		}
	}
	return res, nil
}
