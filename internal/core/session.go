package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"fitsync/pkg/domain"
)

// Clock supplies timestamps for snapshots and operation timings.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(m MetricsRecorder) SessionOption {
	return func(s *Session) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the operation tracer.
func WithTracer(t Tracer) SessionOption {
	return func(s *Session) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithRulesEngine replaces the default rules engine.
func WithRulesEngine(engine *RulesEngine) SessionOption {
	return func(s *Session) {
		if engine != nil {
			s.engine = engine
		}
	}
}

// WithRoutines installs fitting routines directly, without a plugin.
func WithRoutines(r domain.Routines) SessionOption {
	return func(s *Session) {
		if r != nil {
			s.binding = NewModelBinding(r)
		}
	}
}

// WithRounding sets the number of decimals shown for res and dres.
func WithRounding(decimals int) SessionOption {
	return func(s *Session) {
		if decimals >= 0 {
			s.rounding = decimals
		}
	}
}

// WithChiThreshold sets the chi-square above which a fit is flagged bad.
func WithChiThreshold(v float64) SessionOption {
	return func(s *Session) {
		if v > 0 {
			s.chiThreshold = v
		}
	}
}

// WithAsymMode sets the asymmetry mode passed to the routines.
func WithAsymMode(mode string) SessionOption {
	return func(s *Session) { s.selection.AsymMode = mode }
}

// WithClock overrides the session clock.
func WithClock(c Clock) SessionOption {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// Session is one fit tab: the runs being fit together, their lines, the
// shared registry and the broadcaster connecting them. A Session is not safe
// for concurrent use.
type Session struct {
	binding     *ModelBinding
	provider    domain.RunProvider
	registry    *SharedRegistry
	broadcaster *Broadcaster
	selection   *Selection
	engine      *RulesEngine

	lines []*FitLine
	index map[string]*FitLine

	xlo, xhi  string
	globalChi float64

	rounding     int
	chiThreshold float64

	plugins map[string]PluginMetadata
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	clock   Clock
}

// NewSession constructs an empty session. Runs are fetched from provider.
func NewSession(provider domain.RunProvider, opts ...SessionOption) *Session {
	s := &Session{
		binding:      NewModelBinding(nil),
		provider:     provider,
		registry:     NewSharedRegistry(),
		selection:    &Selection{Components: 1},
		engine:       NewDefaultRulesEngine(),
		index:        make(map[string]*FitLine),
		globalChi:    math.NaN(),
		rounding:     DefaultRounding,
		chiThreshold: DefaultChiThreshold,
		plugins:      make(map[string]PluginMetadata),
		logger:       noopLogger{},
		metrics:      noopMetricsRecorder{},
		tracer:       noopTracer{},
		clock:        ClockFunc(time.Now),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.broadcaster = NewBroadcaster(s.logger)
	return s
}

func (s *Session) run(ctx context.Context, op string, fn func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, s.clock.Now().Sub(start))
	if err != nil {
		s.logger.Warn("session operation failed", "operation", op, "error", err)
	} else {
		s.logger.Debug("session operation", "operation", op)
	}
	return err
}

// InstallPlugin registers a plugin, wiring its rules into the engine and its
// routines into the model binding.
func (s *Session) InstallPlugin(plugin Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, fmt.Errorf("plugin cannot be nil")
	}
	if _, ok := s.plugins[plugin.Name()]; ok {
		return PluginMetadata{}, fmt.Errorf("plugin %s already registered", plugin.Name())
	}
	registry := NewPluginRegistry()
	if err := plugin.Register(registry); err != nil {
		return PluginMetadata{}, err
	}
	routines := registry.Routines()
	if routines != nil && s.binding.Routines() != nil {
		return PluginMetadata{}, fmt.Errorf("plugin %s: routines %s already installed", plugin.Name(), s.binding.Routines().Name())
	}
	meta := PluginMetadata{Name: plugin.Name(), Version: plugin.Version()}
	for _, rule := range registry.Rules() {
		s.engine.Register(rule)
		meta.Rules = append(meta.Rules, rule.Name())
	}
	if routines != nil {
		s.binding = NewModelBinding(routines)
		meta.Routines = routines.Name()
	}
	s.plugins[plugin.Name()] = meta
	return meta, nil
}

// RegisteredPlugins returns metadata describing installed plugins.
func (s *Session) RegisteredPlugins() []PluginMetadata {
	out := make([]PluginMetadata, 0, len(s.plugins))
	for _, meta := range s.plugins {
		out = append(out, meta)
	}
	return out
}

// Binding returns the model binding.
func (s *Session) Binding() *ModelBinding { return s.binding }

// Registry returns the shared registry.
func (s *Session) Registry() *SharedRegistry { return s.registry }

// Broadcaster returns the broadcaster.
func (s *Session) Broadcaster() *Broadcaster { return s.broadcaster }

// RulesEngine returns the active rules engine.
func (s *Session) RulesEngine() *RulesEngine { return s.engine }

// Selection returns a copy of the current model selection.
func (s *Session) Selection() Selection { return *s.selection }

// Runs returns the run keys in the order they were added.
func (s *Session) Runs() []domain.RunKey {
	out := make([]domain.RunKey, len(s.lines))
	for i, l := range s.lines {
		out[i] = l.Key()
	}
	return out
}

// Line returns the line of a run.
func (s *Session) Line(key domain.RunKey) (*FitLine, bool) {
	l, ok := s.index[key.String()]
	return l, ok
}

func (s *Session) line(key domain.RunKey) (*FitLine, error) {
	l, ok := s.index[key.String()]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", key, domain.ErrUnknownRun)
	}
	return l, nil
}

// ParameterSet returns the parameter set of a run.
func (s *Session) ParameterSet(key domain.RunKey) (*ParameterSet, bool) {
	l, ok := s.Line(key)
	if !ok {
		return nil, false
	}
	return l.set, true
}

// AddRun fetches a run and adds its line. When no function is selected yet,
// the first function offered for the run's mode is chosen. A model mismatch
// while populating is logged and leaves the line empty.
func (s *Session) AddRun(ctx context.Context, key domain.RunKey) error {
	return s.run(ctx, "add_run", func(ctx context.Context) error {
		if _, ok := s.index[key.String()]; ok {
			return nil
		}
		data, err := s.fetch(ctx, key)
		if err != nil {
			return err
		}
		s.addLine(data)
		return nil
	})
}

func (s *Session) fetch(ctx context.Context, key domain.RunKey) (domain.RunData, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("add run %s: no run provider", key)
	}
	data, err := s.provider.Fetch(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch run %s: %w", key, err)
	}
	if data == nil || data.Key().String() != key.String() {
		return nil, fmt.Errorf("fetch run %s: provider returned a different run", key)
	}
	return data, nil
}

func (s *Session) addLine(data domain.RunData) *FitLine {
	if s.selection.Function == "" {
		if fns := s.binding.FunctionNames(data.Mode()); len(fns) > 0 {
			s.selection.Function = fns[0]
		}
	}
	line := newFitLine(data, lineConfig{
		registry:     s.registry,
		binding:      s.binding,
		broadcaster:  s.broadcaster,
		selection:    s.selection,
		prior:        s.priorFor,
		logger:       s.logger,
		rounding:     s.rounding,
		chiThreshold: s.chiThreshold,
	})
	s.lines = append(s.lines, line)
	s.index[line.ID()] = line
	s.broadcaster.Register(line)
	err := s.broadcaster.WithModifyAllDisabled(func() error {
		return line.Populate(false)
	})
	if err != nil {
		s.logger.Warn("run added without parameters", "run", line.ID(), "error", err)
	}
	return line
}

// RemoveRun drops a run and releases its registry handles.
func (s *Session) RemoveRun(key domain.RunKey) error {
	l, err := s.line(key)
	if err != nil {
		return err
	}
	l.Close()
	delete(s.index, l.ID())
	for i, other := range s.lines {
		if other == l {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
			break
		}
	}
	return nil
}

// Clear removes every run.
func (s *Session) Clear() {
	for _, l := range s.lines {
		l.Close()
	}
	s.lines = nil
	s.index = make(map[string]*FitLine)
	s.globalChi = math.NaN()
}

// priorFor returns the parameter set of the fitted run with the highest key,
// excluding the asking line.
func (s *Session) priorFor(asking *FitLine) *ParameterSet {
	var best *FitLine
	for _, l := range s.lines {
		if l == asking || !l.set.Fitted() {
			continue
		}
		if best == nil || best.Key().Less(l.Key()) {
			best = l
		}
	}
	if best == nil {
		return nil
	}
	return best.set
}

// Populate repopulates every line with modify-all disabled.
func (s *Session) Populate(force bool) error {
	return s.run(context.Background(), "populate", func(context.Context) error {
		return s.populate(force)
	})
}

func (s *Session) populate(force bool) error {
	// Every line is planned before any is reshaped, so a failed guess leaves
	// the whole session untouched.
	if _, err := s.binding.ParameterNames(s.selection.Function, s.selection.Components); err != nil {
		return err
	}
	plans := make([]linePlan, len(s.lines))
	for i, l := range s.lines {
		plan, err := l.plan()
		if err != nil {
			return fmt.Errorf("run %s: %w", l.ID(), err)
		}
		plans[i] = plan
	}
	return s.broadcaster.WithModifyAllDisabled(func() error {
		var errs []error
		for i, l := range s.lines {
			if err := l.apply(plans[i], force); err != nil {
				errs = append(errs, fmt.Errorf("run %s: %w", l.ID(), err))
			}
		}
		return errors.Join(errs...)
	})
}

// SetFitFunction selects a fit function and repopulates from scratch. On a
// model mismatch the previous selection is kept.
func (s *Session) SetFitFunction(name string) error {
	return s.run(context.Background(), "set_fit_function", func(context.Context) error {
		prev := s.selection.Function
		s.selection.Function = name
		if err := s.populate(true); err != nil {
			s.selection.Function = prev
			return err
		}
		return nil
	})
}

// SetComponents selects the number of components. Parameters whose names
// survive the change keep their values; only new names are seeded.
func (s *Session) SetComponents(n int) error {
	return s.run(context.Background(), "set_components", func(context.Context) error {
		if n < 1 {
			return fmt.Errorf("component count must be positive, got %d", n)
		}
		prev := s.selection.Components
		s.selection.Components = n
		if err := s.populate(false); err != nil {
			s.selection.Components = prev
			return err
		}
		return nil
	})
}

// SetAsymMode changes the asymmetry mode used for guesses and fits.
func (s *Session) SetAsymMode(mode string) { s.selection.AsymMode = mode }

// SetModifyAll switches modify-all mode.
func (s *Session) SetModifyAll(on bool) { s.broadcaster.SetModifyAll(on) }

// ModifyAll reports whether modify-all mode is on.
func (s *Session) ModifyAll() bool { return s.broadcaster.ModifyAll() }

// SetPriorSeeding makes newly seeded parameters start from the most recent
// fitted run's results.
func (s *Session) SetPriorSeeding(on bool) { s.selection.PriorSeeding = on }

// SetXLimits sets the fit range as text. Empty text means unbounded.
func (s *Session) SetXLimits(lo, hi string) error {
	if _, err := ParseNumber(lo); err != nil {
		return domain.InputError{Column: "xlo", Text: lo, Err: err}
	}
	if _, err := ParseNumber(hi); err != nil {
		return domain.InputError{Column: "xhi", Text: hi, Err: err}
	}
	s.xlo, s.xhi = lo, hi
	return nil
}

// XLimits returns the fit range, with unbounded ends as infinities.
func (s *Session) XLimits() (float64, float64) {
	lo, _ := ParseNumber(s.xlo)
	hi, _ := ParseNumber(s.xhi)
	if math.IsNaN(lo) {
		lo = math.Inf(-1)
	}
	if math.IsNaN(hi) {
		hi = math.Inf(1)
	}
	return lo, hi
}

// Edit types text into a run's input field.
func (s *Session) Edit(key domain.RunKey, name string, col domain.Column, text string) error {
	l, err := s.line(key)
	if err != nil {
		return err
	}
	return l.Edit(name, col, text)
}

// SetFlag toggles fixed or shared on a run's parameter.
func (s *Session) SetFlag(key domain.RunKey, name string, col domain.Column, v bool) error {
	l, err := s.line(key)
	if err != nil {
		return err
	}
	return l.SetFlag(name, col, v)
}

// Get reads one value of a run's parameter set.
func (s *Session) Get(key domain.RunKey, name string, col domain.Column) (domain.Value, error) {
	l, err := s.line(key)
	if err != nil {
		return domain.Value{}, err
	}
	return l.set.Get(name, col)
}

// GlobalChi returns the chi-square of the last batch fit.
func (s *Session) GlobalChi() float64 { return s.globalChi }

// Curve returns the fitted function of a run with its parameters.
func (s *Session) Curve(key domain.RunKey) (domain.FittedFunc, []string, []float64, bool) {
	l, ok := s.Line(key)
	if !ok {
		return nil, nil, nil, false
	}
	return l.set.Curve()
}

// Fit runs the solver over every line and writes the results back. Results
// are validated for every run before any is written; on failure nothing
// changes.
func (s *Session) Fit(ctx context.Context) (float64, error) {
	var chi float64
	err := s.run(ctx, "fit", func(ctx context.Context) error {
		if len(s.lines) == 0 {
			return fmt.Errorf("fit: no runs")
		}
		xlo, xhi := s.XLimits()
		req := domain.FitRequest{
			Function:   s.selection.Function,
			Components: s.selection.Components,
			XLo:        xlo,
			XHi:        xhi,
			AsymMode:   s.selection.AsymMode,
		}
		for _, l := range s.lines {
			req.Inputs = append(req.Inputs, domain.FitInput{
				Run:     l.run,
				Params:  l.set.Inputs(),
				Options: map[string]string{"mode": l.run.Mode()},
			})
		}
		results, global, err := s.binding.Fit(ctx, req)
		if err != nil {
			return err
		}
		for id, r := range results {
			l, ok := s.index[id]
			if !ok {
				return domain.ModelMismatchError{Function: req.Function, Components: req.Components, Run: id, Err: domain.ErrUnknownRun}
			}
			if err := l.set.ValidateResult(r); err != nil {
				return err
			}
		}
		for _, l := range s.lines {
			r, ok := results[l.ID()]
			if !ok {
				continue
			}
			if err := l.set.SetResult(r); err != nil {
				return err
			}
			l.ShowFitResult()
		}
		s.globalChi = global
		chi = global
		return nil
	})
	return chi, err
}

// SetResultAsInitial copies every fitted value into its p0 field.
func (s *Session) SetResultAsInitial() {
	_ = s.broadcaster.WithModifyAllDisabled(func() error {
		for _, l := range s.lines {
			l.adoptResults()
		}
		return nil
	})
}

// ResetInitial reseeds every input field from the routine's initial guess.
func (s *Session) ResetInitial() error {
	return s.Populate(true)
}

// BadFits returns the runs whose chi-square exceeds the threshold.
func (s *Session) BadFits() []domain.RunKey {
	var out []domain.RunKey
	for _, l := range s.lines {
		if l.BadFit() {
			out = append(out, l.Key())
		}
	}
	return out
}
