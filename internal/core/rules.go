package core

import "fitsync/pkg/domain"

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewFixedSharedExclusionRule())
	engine.Register(NewSharedConsistencyRule())
	engine.Register(NewBoundsOrderRule())
	return engine
}
