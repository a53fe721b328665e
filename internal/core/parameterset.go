package core

import (
	"fmt"
	"math"
	"sort"

	"fitsync/pkg/domain"
)

type parameter struct {
	name   string
	p0     *Cell[float64]
	lo     *Cell[float64]
	hi     *Cell[float64]
	res    *Cell[float64]
	dres   *Cell[float64]
	chi    *Cell[float64]
	fixed  *Cell[bool]
	handle SharedHandle
}

func newParameter(name string, g domain.Guess) *parameter {
	return &parameter{
		name:  name,
		p0:    NewCell(g.P0),
		lo:    NewCell(g.Lo),
		hi:    NewCell(g.Hi),
		res:   NewCell(math.NaN()),
		dres:  NewCell(math.NaN()),
		chi:   NewCell(math.NaN()),
		fixed: NewCell(g.Fixed),
	}
}

func (p *parameter) numeric(col domain.Column) *Cell[float64] {
	switch col {
	case domain.ColumnP0:
		return p.p0
	case domain.ColumnLo:
		return p.lo
	case domain.ColumnHi:
		return p.hi
	case domain.ColumnRes:
		return p.res
	case domain.ColumnDRes:
		return p.dres
	case domain.ColumnChi:
		return p.chi
	}
	return nil
}

// Partition describes how Reshape changed a parameter set.
type Partition struct {
	Kept    []string
	Added   []string
	Removed []string
}

// Changed reports whether any name was added or removed.
func (p Partition) Changed() bool {
	return len(p.Added) > 0 || len(p.Removed) > 0
}

// ParameterSet holds the authoritative values of one run's parameters. The
// shared column is not stored here: it is read through a handle into the
// session's SharedRegistry.
type ParameterSet struct {
	run      domain.RunKey
	id       string
	registry *SharedRegistry
	params   map[string]*parameter

	chi         float64
	fn          domain.FittedFunc
	resultNames []string
}

// NewParameterSet constructs an empty set for run.
func NewParameterSet(run domain.RunKey, registry *SharedRegistry) *ParameterSet {
	if registry == nil {
		registry = NewSharedRegistry()
	}
	return &ParameterSet{
		run:      run,
		id:       run.String(),
		registry: registry,
		params:   make(map[string]*parameter),
		chi:      math.NaN(),
	}
}

// Run returns the run key.
func (s *ParameterSet) Run() domain.RunKey { return s.run }

// Names returns the parameter names, sorted.
func (s *ParameterSet) Names() []string {
	out := make([]string, 0, len(s.params))
	for name := range s.params {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Has reports whether name is present.
func (s *ParameterSet) Has(name string) bool {
	_, ok := s.params[name]
	return ok
}

// Len returns the number of parameters.
func (s *ParameterSet) Len() int { return len(s.params) }

func (s *ParameterSet) lookup(name string) (*parameter, error) {
	p, ok := s.params[name]
	if !ok {
		return nil, domain.ModelMismatchError{Run: s.id, Parameter: name, Err: domain.ErrUnknownParameter}
	}
	return p, nil
}

// Get reads one column.
func (s *ParameterSet) Get(name string, col domain.Column) (domain.Value, error) {
	p, err := s.lookup(name)
	if err != nil {
		return domain.Value{}, err
	}
	switch col {
	case domain.ColumnFixed:
		return domain.Bool(p.fixed.Get()), nil
	case domain.ColumnShared:
		return domain.Bool(s.registry.IsShared(name)), nil
	}
	if c := p.numeric(col); c != nil {
		return domain.Num(c.Get()), nil
	}
	return domain.Value{}, fmt.Errorf("unknown column %q", col)
}

// Set writes one input column. Solver columns are read-only here; use
// SetResult. Setting fixed or shared to true clears the other.
func (s *ParameterSet) Set(name string, col domain.Column, v domain.Value) error {
	p, err := s.lookup(name)
	if err != nil {
		return err
	}
	switch {
	case col == domain.ColumnFixed:
		p.fixed.Set(v.Flag)
	case col == domain.ColumnShared:
		s.registry.Toggle(name).Set(v.Flag)
	case col.Output():
		return fmt.Errorf("set %s of %s: %w", col, name, domain.ErrReadOnlyColumn)
	case col.Numeric():
		p.numeric(col).Set(v.Number)
	default:
		return fmt.Errorf("unknown column %q", col)
	}
	return nil
}

// SetInitial writes the three input numbers of name at once.
func (s *ParameterSet) SetInitial(name string, p0, lo, hi float64) error {
	p, err := s.lookup(name)
	if err != nil {
		return err
	}
	p.p0.Set(p0)
	p.lo.Set(lo)
	p.hi.Set(hi)
	return nil
}

// Cell exposes the numeric cell of name and col for binding.
func (s *ParameterSet) Cell(name string, col domain.Column) (*Cell[float64], error) {
	p, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	c := p.numeric(col)
	if c == nil {
		return nil, fmt.Errorf("column %q is not numeric", col)
	}
	return c, nil
}

// Fixed exposes the fixed flag cell of name.
func (s *ParameterSet) Fixed(name string) (*Cell[bool], error) {
	p, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return p.fixed, nil
}

// Shared exposes the registry flag cell of name. The cell is common to every
// run carrying name.
func (s *ParameterSet) Shared(name string) (*Cell[bool], error) {
	if _, err := s.lookup(name); err != nil {
		return nil, err
	}
	return s.registry.Toggle(name), nil
}

// Input returns the solver view of one parameter.
func (s *ParameterSet) Input(name string) (domain.ParamInput, error) {
	p, err := s.lookup(name)
	if err != nil {
		return domain.ParamInput{}, err
	}
	return domain.ParamInput{
		P0:     p.p0.Get(),
		Lo:     p.lo.Get(),
		Hi:     p.hi.Get(),
		Fixed:  p.fixed.Get(),
		Shared: s.registry.IsShared(name),
	}, nil
}

// Inputs returns the solver view of every parameter.
func (s *ParameterSet) Inputs() map[string]domain.ParamInput {
	out := make(map[string]domain.ParamInput, len(s.params))
	for name := range s.params {
		in, _ := s.Input(name)
		out[name] = in
	}
	return out
}

// ValidateResult checks r can be written without touching any cell.
func (s *ParameterSet) ValidateResult(r domain.FitResult) error {
	if err := r.Validate(); err != nil {
		return domain.ModelMismatchError{Run: s.id, Err: err}
	}
	for _, name := range r.Names {
		if _, err := s.lookup(name); err != nil {
			return err
		}
	}
	return nil
}

// SetResult writes res/dres for every name of r and the run's chi-square to
// every parameter. Nothing is written when r names an unknown parameter.
func (s *ParameterSet) SetResult(r domain.FitResult) error {
	if err := s.ValidateResult(r); err != nil {
		return err
	}
	for i, name := range r.Names {
		p := s.params[name]
		p.res.Set(r.Values[i])
		p.dres.Set(r.Errors[i])
	}
	for _, name := range s.Names() {
		s.params[name].chi.Set(r.ChiSquare)
	}
	s.chi = r.ChiSquare
	s.fn = r.Fn
	s.resultNames = append([]string(nil), r.Names...)
	return nil
}

// Fitted reports whether a result has been written.
func (s *ParameterSet) Fitted() bool {
	return !math.IsNaN(s.chi)
}

// ChiSquare returns the run's chi-square, NaN before the first fit.
func (s *ParameterSet) ChiSquare() float64 { return s.chi }

// Curve returns the fitted function with its parameter names and values.
func (s *ParameterSet) Curve() (domain.FittedFunc, []string, []float64, bool) {
	if s.fn == nil {
		return nil, nil, nil, false
	}
	names := append([]string(nil), s.resultNames...)
	values := make([]float64, len(names))
	for i, name := range names {
		if p, ok := s.params[name]; ok {
			values[i] = p.res.Get()
		} else {
			values[i] = math.NaN()
		}
	}
	return s.fn, names, values, true
}

// Reshape makes the name set equal to names. Kept parameters keep every
// value, added ones start from seeds and removed ones are detached. Calling it
// again with the same names is a no-op.
func (s *ParameterSet) Reshape(names []string, seeds map[string]domain.Guess) Partition {
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	var part Partition
	for _, name := range s.Names() {
		if _, ok := want[name]; ok {
			part.Kept = append(part.Kept, name)
			continue
		}
		s.detach(s.params[name])
		delete(s.params, name)
		part.Removed = append(part.Removed, name)
	}
	sorted := make([]string, 0, len(want))
	for n := range want {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)
	for _, name := range sorted {
		if _, ok := s.params[name]; ok {
			continue
		}
		g, ok := seeds[name]
		if !ok {
			g = domain.Guess{P0: math.NaN(), Lo: math.NaN(), Hi: math.NaN()}
		}
		s.params[name] = s.attach(newParameter(name, g))
		part.Added = append(part.Added, name)
	}
	if len(part.Removed) > 0 {
		s.fn = nil
		s.resultNames = nil
	}
	return part
}

// attach wires the exclusion slots and the registry handle.
func (s *ParameterSet) attach(p *parameter) *parameter {
	name := p.name
	p.handle = s.registry.Acquire(name, s.id, func(v float64) {
		p.p0.Set(v)
	})
	flag := s.registry.Toggle(name)
	p.fixed.Subscribe(SlotExclusive, func(fixed bool) {
		if fixed && flag.Get() {
			flag.Set(false)
		}
	})
	flag.Subscribe(s.exclusiveSlot(), func(shared bool) {
		if shared && p.fixed.Get() {
			p.fixed.Set(false)
		}
	})
	if flag.Get() && p.fixed.Get() {
		p.fixed.Set(false)
	}
	return p
}

func (s *ParameterSet) detach(p *parameter) {
	s.registry.Toggle(p.name).Unsubscribe(s.exclusiveSlot())
	p.fixed.Unsubscribe(SlotExclusive)
	s.registry.Release(p.handle)
}

func (s *ParameterSet) exclusiveSlot() string {
	return SlotExclusive + ":" + s.id
}

// Rows returns every parameter as a snapshot row, sorted by name.
func (s *ParameterSet) Rows() []domain.ParameterRow {
	names := s.Names()
	out := make([]domain.ParameterRow, 0, len(names))
	for _, name := range names {
		p := s.params[name]
		out = append(out, domain.ParameterRow{
			Name:   name,
			P0:     domain.Float(p.p0.Get()),
			Lo:     domain.Float(p.lo.Get()),
			Hi:     domain.Float(p.hi.Get()),
			Res:    domain.Float(p.res.Get()),
			DRes:   domain.Float(p.dres.Get()),
			Chi:    domain.Float(p.chi.Get()),
			Fixed:  p.fixed.Get(),
			Shared: s.registry.IsShared(name),
		})
	}
	return out
}

// Restore writes a snapshot row back, results included.
func (s *ParameterSet) Restore(row domain.ParameterRow) error {
	p, err := s.lookup(row.Name)
	if err != nil {
		return err
	}
	p.p0.Set(float64(row.P0))
	p.lo.Set(float64(row.Lo))
	p.hi.Set(float64(row.Hi))
	p.res.Set(float64(row.Res))
	p.dres.Set(float64(row.DRes))
	p.chi.Set(float64(row.Chi))
	if !math.IsNaN(float64(row.Chi)) {
		s.chi = float64(row.Chi)
	}
	if row.Shared {
		p.fixed.Set(false)
		s.registry.Toggle(row.Name).Set(true)
	} else {
		p.fixed.Set(row.Fixed)
	}
	return nil
}

// Close detaches every parameter from the registry.
func (s *ParameterSet) Close() {
	for _, p := range s.params {
		s.detach(p)
	}
	s.params = make(map[string]*parameter)
}
