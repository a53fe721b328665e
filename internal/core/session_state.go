package core

import (
	"context"
	"fmt"

	"fitsync/pkg/domain"
)

// Snapshot captures the full session state.
func (s *Session) Snapshot() domain.Snapshot {
	snap := domain.Snapshot{
		Version:    domain.SnapshotVersion,
		SavedAt:    s.clock.Now().UTC(),
		Function:   s.selection.Function,
		Components: s.selection.Components,
		XLo:        s.xlo,
		XHi:        s.xhi,
		ModifyAll:  s.broadcaster.ModifyAll(),
		AsymMode:   s.selection.AsymMode,
		GlobalChi:  domain.Float(s.globalChi),
	}
	if r := s.binding.Routines(); r != nil {
		snap.Routine = r.Name()
	}
	for _, l := range s.lines {
		snap.Runs = append(snap.Runs, domain.RunSnapshot{
			Key:        l.Key(),
			Parameters: l.set.Rows(),
		})
	}
	return snap
}

// Validate evaluates the rules engine over the current state.
func (s *Session) Validate(ctx context.Context) (Result, error) {
	return s.engine.Evaluate(ctx, s.Snapshot(), nil)
}

// Restore replaces the session state with snap. The snapshot is checked
// against the rules and the model before anything is cleared, so a rejected
// snapshot leaves the session as it was.
func (s *Session) Restore(ctx context.Context, snap domain.Snapshot) (Result, error) {
	var res Result
	err := s.run(ctx, "restore", func(ctx context.Context) error {
		if snap.Version > domain.SnapshotVersion {
			return fmt.Errorf("snapshot version %d is newer than %d", snap.Version, domain.SnapshotVersion)
		}
		var err error
		res, err = s.engine.Evaluate(ctx, snap, nil)
		if err != nil {
			return err
		}
		if res.HasBlocking() {
			return RuleViolationError{Result: res}
		}
		names, err := s.binding.ParameterNames(snap.Function, snap.Components)
		if err != nil {
			return err
		}
		known := make(map[string]struct{}, len(names))
		for _, n := range names {
			known[n] = struct{}{}
		}
		for _, rs := range snap.Runs {
			for _, row := range rs.Parameters {
				if _, ok := known[row.Name]; !ok {
					return domain.ModelMismatchError{Function: snap.Function, Components: snap.Components, Run: rs.Key.String(), Parameter: row.Name, Err: domain.ErrUnknownParameter}
				}
			}
		}
		if _, err := ParseNumber(snap.XLo); err != nil {
			return domain.InputError{Column: "xlo", Text: snap.XLo, Err: err}
		}
		if _, err := ParseNumber(snap.XHi); err != nil {
			return domain.InputError{Column: "xhi", Text: snap.XHi, Err: err}
		}
		runs := make([]domain.RunData, 0, len(snap.Runs))
		for _, rs := range snap.Runs {
			data, err := s.fetch(ctx, rs.Key)
			if err != nil {
				return err
			}
			runs = append(runs, data)
		}
		return s.restore(snap, runs)
	})
	return res, err
}

// restore swaps in snap over runs already fetched for each of its entries.
func (s *Session) restore(snap domain.Snapshot, runs []domain.RunData) error {
	s.Clear()
	s.selection.Function = snap.Function
	s.selection.Components = snap.Components
	s.selection.AsymMode = snap.AsymMode
	s.xlo, s.xhi = snap.XLo, snap.XHi
	s.broadcaster.SetModifyAll(false)

	lines := make([]*FitLine, len(runs))
	for i, data := range runs {
		if l, ok := s.index[data.Key().String()]; ok {
			lines[i] = l
			continue
		}
		lines[i] = s.addLine(data)
	}
	for i, rs := range snap.Runs {
		for _, row := range rs.Parameters {
			if err := lines[i].set.Restore(row); err != nil {
				return err
			}
		}
		lines[i].ShowFitResult()
	}
	s.globalChi = float64(snap.GlobalChi)
	s.broadcaster.SetModifyAll(snap.ModifyAll)
	return nil
}

// SaveTo stores the current snapshot under name.
func (s *Session) SaveTo(ctx context.Context, store domain.SnapshotStore, name string) error {
	return s.run(ctx, "save", func(ctx context.Context) error {
		if store == nil {
			return fmt.Errorf("save %s: no snapshot store", name)
		}
		return store.Save(ctx, name, s.Snapshot())
	})
}

// LoadFrom restores the snapshot stored under name.
func (s *Session) LoadFrom(ctx context.Context, store domain.SnapshotStore, name string) (Result, error) {
	if store == nil {
		return Result{}, fmt.Errorf("load %s: no snapshot store", name)
	}
	snap, err := store.Load(ctx, name)
	if err != nil {
		return Result{}, err
	}
	return s.Restore(ctx, snap)
}
