package domain

import (
	"context"
	"fmt"
	"strings"
)

// RuleView provides read-only access to session state for rule evaluation.
type RuleView interface {
	ListRuns() []RunSnapshot
	FindRun(key string) (RunSnapshot, bool)
	SharedNames() []string
}

// Change records one cell write captured while restoring or editing state.
type Change struct {
	Run       string
	Parameter string
	Column    Column
	Before    Value
	After     Value
}

// Severity describes the impact of a rule violation.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock rejects the operation.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows the operation.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation is a single rule finding.
type Violation struct {
	Rule      string
	Severity  Severity
	Message   string
	Run       string
	Parameter string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	var msgs []string
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			msgs = append(msgs, v.Message)
		}
	}
	if len(msgs) == 0 {
		return "blocked by rules"
	}
	return fmt.Sprintf("blocked by rules: %s", strings.Join(msgs, "; "))
}

// Rule defines an evaluation over a session view.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rule names in evaluation order.
func (e *RulesEngine) Rules() []string {
	names := make([]string, 0, len(e.rules))
	for _, r := range e.rules {
		names = append(names, r.Name())
	}
	return names
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
