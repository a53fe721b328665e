package core

import (
	"fmt"
	"math"

	"fitsync/pkg/domain"
)

// Selection is the model choice shared by every line of a session.
type Selection struct {
	Function     string
	Components   int
	AsymMode     string
	PriorSeeding bool
}

type lineFields struct {
	text     map[domain.Column]*Cell[string]
	valid    map[domain.Column]string
	disabled bool
}

func newLineFields() *lineFields {
	lf := &lineFields{
		text:  make(map[domain.Column]*Cell[string], 6),
		valid: make(map[domain.Column]string, 3),
	}
	for _, col := range domain.InputColumns {
		lf.text[col] = NewCell("")
	}
	for _, col := range domain.OutputColumns {
		lf.text[col] = NewCell("")
	}
	return lf
}

// FitLine binds the editable text fields of one run to its ParameterSet.
// Field edits are persisted into the set and broadcast to the other lines;
// set changes made elsewhere are mirrored back into the fields.
type FitLine struct {
	run         domain.RunData
	id          string
	set         *ParameterSet
	binding     *ModelBinding
	broadcaster *Broadcaster
	selection   *Selection
	prior       func(*FitLine) *ParameterSet
	logger      Logger

	rounding     int
	chiThreshold float64

	fields  map[string]*lineFields
	syncing bool
	lastErr error
}

type lineConfig struct {
	registry     *SharedRegistry
	binding      *ModelBinding
	broadcaster  *Broadcaster
	selection    *Selection
	prior        func(*FitLine) *ParameterSet
	logger       Logger
	rounding     int
	chiThreshold float64
}

func newFitLine(run domain.RunData, cfg lineConfig) *FitLine {
	if cfg.logger == nil {
		cfg.logger = noopLogger{}
	}
	if cfg.selection == nil {
		cfg.selection = &Selection{Components: 1}
	}
	if cfg.broadcaster == nil {
		cfg.broadcaster = NewBroadcaster(cfg.logger)
	}
	key := run.Key()
	return &FitLine{
		run:          run,
		id:           key.String(),
		set:          NewParameterSet(key, cfg.registry),
		binding:      cfg.binding,
		broadcaster:  cfg.broadcaster,
		selection:    cfg.selection,
		prior:        cfg.prior,
		logger:       cfg.logger,
		rounding:     cfg.rounding,
		chiThreshold: cfg.chiThreshold,
		fields:       make(map[string]*lineFields),
	}
}

// ID returns the run key string.
func (l *FitLine) ID() string { return l.id }

// Key returns the run key.
func (l *FitLine) Key() domain.RunKey { return l.set.run }

// Run returns the run data the line was built for.
func (l *FitLine) Run() domain.RunData { return l.run }

// ParameterSet returns the authoritative values of the line.
func (l *FitLine) ParameterSet() *ParameterSet { return l.set }

// Names returns the parameter names shown on the line.
func (l *FitLine) Names() []string { return l.set.Names() }

// LastInputError returns the last rejected field text, if any.
func (l *FitLine) LastInputError() error { return l.lastErr }

// Populate builds the fields for the current model selection. Fields of
// kept parameters keep their text unless force is set; empty fields are
// seeded from the initial guess. On a model mismatch nothing changes.
func (l *FitLine) Populate(force bool) error {
	plan, err := l.plan()
	if err != nil {
		return err
	}
	return l.apply(plan, force)
}

// linePlan is the resolved model of one line, ready to be applied.
type linePlan struct {
	names   []string
	guesses map[string]domain.Guess
}

func (l *FitLine) plan() (linePlan, error) {
	sel := *l.selection
	names, err := l.binding.ParameterNames(sel.Function, sel.Components)
	if err != nil {
		return linePlan{}, err
	}
	guesses, err := l.binding.InitialGuess(sel.Function, sel.Components, l.run, sel.AsymMode)
	if err != nil {
		return linePlan{}, err
	}
	if sel.PriorSeeding && l.prior != nil {
		if prior := l.prior(l); prior != nil && prior != l.set {
			seedFromPrior(guesses, prior)
		}
	}
	return linePlan{names: names, guesses: guesses}, nil
}

func (l *FitLine) apply(plan linePlan, force bool) error {
	names, guesses := plan.names, plan.guesses
	part := l.set.Reshape(names, guesses)
	for _, name := range part.Removed {
		delete(l.fields, name)
	}
	for _, name := range part.Added {
		if err := l.bind(name); err != nil {
			return err
		}
	}

	for _, name := range names {
		lf := l.fields[name]
		g := guesses[name]
		if force {
			if fixed, err := l.set.Fixed(name); err == nil {
				fixed.SetSuppressing(g.Fixed, SlotBroadcast)
			}
			for _, col := range domain.OutputColumns {
				lf.text[col].Set("")
			}
		}
		for _, col := range domain.InputColumns {
			field := lf.text[col]
			if force {
				field.SetSuppressing("", SlotPersist, SlotBroadcast)
				lf.valid[col] = ""
			}
			if field.Get() == "" {
				field.SetSuppressing(FormatNumber(guessValue(g, col)), SlotBroadcast)
			}
		}
	}
	if part.Changed() {
		l.logger.Debug("line reshaped", "run", l.id, "added", len(part.Added), "removed", len(part.Removed))
	}
	return nil
}

func guessValue(g domain.Guess, col domain.Column) float64 {
	switch col {
	case domain.ColumnP0:
		return g.P0
	case domain.ColumnLo:
		return g.Lo
	case domain.ColumnHi:
		return g.Hi
	}
	return math.NaN()
}

func seedFromPrior(guesses map[string]domain.Guess, prior *ParameterSet) {
	for name := range guesses {
		in, err := prior.Input(name)
		if err != nil {
			continue
		}
		res, _ := prior.Get(name, domain.ColumnRes)
		if res.IsUnset() {
			continue
		}
		guesses[name] = domain.Guess{P0: res.Number, Lo: in.Lo, Hi: in.Hi, Fixed: in.Fixed}
	}
}

// bind creates the fields of name and installs the persist, broadcast and
// display slots.
func (l *FitLine) bind(name string) error {
	lf := newLineFields()
	for _, col := range domain.InputColumns {
		col := col
		cell, err := l.set.Cell(name, col)
		if err != nil {
			return err
		}
		field := lf.text[col]
		field.Subscribe(SlotPersist, func(text string) { l.persist(name, col, text) })
		field.Subscribe(SlotBroadcast, func(text string) {
			if _, err := ParseNumber(text); err == nil {
				l.broadcaster.Propagate(l, name, col)
			}
		})
		cell.Subscribe(SlotDisplay, func(v float64) {
			if l.syncing {
				return
			}
			l.display(name, col, v)
		})
	}
	fixed, err := l.set.Fixed(name)
	if err != nil {
		return err
	}
	fixed.Subscribe(SlotBroadcast, func(bool) {
		l.broadcaster.Propagate(l, name, domain.ColumnFixed)
	})
	l.fields[name] = lf
	return nil
}

func (l *FitLine) persist(name string, col domain.Column, text string) {
	lf, ok := l.fields[name]
	if !ok {
		return
	}
	v, err := ParseNumber(text)
	if err != nil {
		l.lastErr = domain.InputError{Run: l.id, Parameter: name, Column: col, Text: text, Err: err}
		l.logger.Warn("rejected field input", "run", l.id, "parameter", name, "column", string(col), "text", text)
		lf.text[col].SetSuppressing(lf.valid[col], SlotPersist, SlotBroadcast)
		return
	}
	lf.valid[col] = text
	cell, err := l.set.Cell(name, col)
	if err != nil {
		return
	}
	l.syncing = true
	defer func() { l.syncing = false }()
	cell.Set(v)
}

func (l *FitLine) display(name string, col domain.Column, v float64) {
	lf, ok := l.fields[name]
	if !ok {
		return
	}
	text := FormatNumber(v)
	lf.valid[col] = text
	lf.text[col].SetSuppressing(text, SlotPersist, SlotBroadcast)
}

func (l *FitLine) receiveText(name string, col domain.Column, text string) error {
	field, err := l.Field(name, col)
	if err != nil {
		return err
	}
	if _, err := ParseNumber(text); err != nil {
		return domain.InputError{Run: l.id, Parameter: name, Column: col, Text: text, Err: err}
	}
	field.SetSuppressing(text, SlotBroadcast)
	return nil
}

func (l *FitLine) receiveFlag(name string, v bool) error {
	cell, err := l.set.Fixed(name)
	if err != nil {
		return err
	}
	cell.SetSuppressing(v, SlotBroadcast)
	return nil
}

// Field exposes the text cell of name/col. Output columns are display-only.
func (l *FitLine) Field(name string, col domain.Column) (*Cell[string], error) {
	lf, ok := l.fields[name]
	if !ok {
		return nil, domain.ModelMismatchError{Run: l.id, Parameter: name, Err: domain.ErrUnknownParameter}
	}
	cell, ok := lf.text[col]
	if !ok {
		return nil, fmt.Errorf("column %q has no text field", col)
	}
	return cell, nil
}

// Text returns the current text of name/col.
func (l *FitLine) Text(name string, col domain.Column) (string, error) {
	cell, err := l.Field(name, col)
	if err != nil {
		return "", err
	}
	return cell.Get(), nil
}

// Edit types text into an input field, as a user would. Non-numeric text is
// rejected with an InputError and leaves the field untouched.
func (l *FitLine) Edit(name string, col domain.Column, text string) error {
	if col.Output() {
		return fmt.Errorf("edit %s of %s: %w", col, name, domain.ErrReadOnlyColumn)
	}
	if col.Flag() {
		return fmt.Errorf("edit %s of %s: flag columns take SetFlag", col, name)
	}
	field, err := l.Field(name, col)
	if err != nil {
		return err
	}
	if l.fields[name].disabled {
		return fmt.Errorf("edit %s of constrained %s: %w", col, name, domain.ErrReadOnlyColumn)
	}
	if _, err := ParseNumber(text); err != nil {
		l.lastErr = domain.InputError{Run: l.id, Parameter: name, Column: col, Text: text, Err: err}
		return l.lastErr
	}
	field.Set(text)
	return nil
}

// Fields returns the current text of every field of name.
func (l *FitLine) Fields(name string) (map[domain.Column]string, error) {
	lf, ok := l.fields[name]
	if !ok {
		return nil, domain.ModelMismatchError{Run: l.id, Parameter: name, Err: domain.ErrUnknownParameter}
	}
	out := make(map[domain.Column]string, len(lf.text))
	for col, cell := range lf.text {
		out[col] = cell.Get()
	}
	return out, nil
}

// Disable makes the input fields of name read-only, as for a parameter
// constrained by another one. Values still change through broadcast and
// display.
func (l *FitLine) Disable(name string) error { return l.setEnabled(name, false) }

// Enable reverses Disable.
func (l *FitLine) Enable(name string) error { return l.setEnabled(name, true) }

// Enabled reports whether the input fields of name accept edits.
func (l *FitLine) Enabled(name string) bool {
	lf, ok := l.fields[name]
	return ok && !lf.disabled
}

func (l *FitLine) setEnabled(name string, on bool) error {
	lf, ok := l.fields[name]
	if !ok {
		return domain.ModelMismatchError{Run: l.id, Parameter: name, Err: domain.ErrUnknownParameter}
	}
	lf.disabled = !on
	return nil
}

// SetFlag toggles fixed or shared for name.
func (l *FitLine) SetFlag(name string, col domain.Column, v bool) error {
	switch col {
	case domain.ColumnFixed:
		cell, err := l.set.Fixed(name)
		if err != nil {
			return err
		}
		cell.Set(v)
	case domain.ColumnShared:
		cell, err := l.set.Shared(name)
		if err != nil {
			return err
		}
		cell.Set(v)
	default:
		return fmt.Errorf("column %q is not a flag", col)
	}
	return nil
}

// ShowFitResult renders res/dres with the configured rounding and chi with
// two decimals. It does nothing before the first fit.
func (l *FitLine) ShowFitResult() {
	if !l.set.Fitted() {
		return
	}
	for name, lf := range l.fields {
		for _, col := range domain.OutputColumns {
			v, err := l.set.Get(name, col)
			if err != nil {
				continue
			}
			decimals := l.rounding
			if col == domain.ColumnChi {
				decimals = chiDecimals
			}
			lf.text[col].Set(FormatResult(v.Number, decimals))
		}
	}
}

// BadFit reports whether the run's chi-square exceeds the threshold.
func (l *FitLine) BadFit() bool {
	return BadFit(l.set.ChiSquare(), l.chiThreshold)
}

// adoptResults copies every fitted value into p0 without broadcasting.
func (l *FitLine) adoptResults() {
	for _, name := range l.set.Names() {
		res, err := l.set.Get(name, domain.ColumnRes)
		if err != nil || res.IsUnset() {
			continue
		}
		if field, err := l.Field(name, domain.ColumnP0); err == nil {
			field.SetSuppressing(FormatNumber(res.Number), SlotBroadcast)
		}
	}
}

// Close detaches the line from the registry and the broadcaster.
func (l *FitLine) Close() {
	l.broadcaster.Unregister(l)
	l.set.Close()
	l.fields = make(map[string]*lineFields)
}
