package core

import (
	"fitsync/pkg/domain"
)

// Broadcaster fans edits out from one line to the others of a session. A
// target is updated when modify-all is on, or when the parameter is shared
// and the column is not fixed. Targets are written with their own broadcast
// slot suppressed, so an edit propagates exactly once.
type Broadcaster struct {
	lines     []*FitLine
	modifyAll bool
	logger    Logger
}

// NewBroadcaster constructs a broadcaster with modify-all off.
func NewBroadcaster(logger Logger) *Broadcaster {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Broadcaster{logger: logger}
}

// Register adds a line. Registering a line twice has no effect.
func (b *Broadcaster) Register(line *FitLine) {
	for _, l := range b.lines {
		if l == line {
			return
		}
	}
	b.lines = append(b.lines, line)
}

// Unregister removes a line.
func (b *Broadcaster) Unregister(line *FitLine) {
	for i, l := range b.lines {
		if l == line {
			b.lines = append(b.lines[:i], b.lines[i+1:]...)
			return
		}
	}
}

// Lines returns the registered lines in registration order.
func (b *Broadcaster) Lines() []*FitLine {
	out := make([]*FitLine, len(b.lines))
	copy(out, b.lines)
	return out
}

// SetModifyAll switches modify-all mode.
func (b *Broadcaster) SetModifyAll(on bool) { b.modifyAll = on }

// ModifyAll reports whether modify-all mode is on.
func (b *Broadcaster) ModifyAll() bool { return b.modifyAll }

// WithModifyAllDisabled runs fn with modify-all off and restores the previous
// mode afterwards.
func (b *Broadcaster) WithModifyAllDisabled(fn func() error) error {
	prev := b.modifyAll
	b.modifyAll = false
	defer func() { b.modifyAll = prev }()
	return fn()
}

func (b *Broadcaster) reaches(col domain.Column, shared bool) bool {
	if b.modifyAll {
		return true
	}
	return shared && col != domain.ColumnFixed
}

// Propagate copies the source line's current value of name/col to every other
// registered line that carries name. It returns the number of lines written.
func (b *Broadcaster) Propagate(source *FitLine, name string, col domain.Column) int {
	if source == nil || !col.Editable() || col == domain.ColumnShared {
		return 0
	}
	if !b.reaches(col, source.set.registry.IsShared(name)) {
		return 0
	}
	var (
		text string
		flag bool
	)
	if col == domain.ColumnFixed {
		cell, err := source.set.Fixed(name)
		if err != nil {
			return 0
		}
		flag = cell.Get()
	} else {
		var err error
		if text, err = source.Text(name, col); err != nil {
			return 0
		}
	}
	written := 0
	for _, target := range b.Lines() {
		if target == source || !target.set.Has(name) {
			continue
		}
		var err error
		if col == domain.ColumnFixed {
			err = target.receiveFlag(name, flag)
		} else {
			err = target.receiveText(name, col, text)
		}
		if err != nil {
			b.logger.Warn("broadcast skipped target", "run", target.ID(), "parameter", name, "column", string(col), "error", err)
			continue
		}
		written++
	}
	if written > 0 {
		b.logger.Debug("broadcast edit", "run", source.ID(), "parameter", name, "column", string(col), "targets", written)
	}
	return written
}
