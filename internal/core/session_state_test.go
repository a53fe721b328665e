package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"fitsync/internal/infra/persistence/memory"
	"fitsync/pkg/domain"
)

// snapshotJSON compares snapshots bit for bit; NaN defeats reflect.DeepEqual.
func snapshotJSON(t *testing.T, snap domain.Snapshot) string {
	t.Helper()
	snap.SavedAt = time.Time{}
	b, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func populatedSession(t *testing.T) *Session {
	t.Helper()
	s, _ := newTestSession(t, 1, 2)
	ctx := context.Background()
	if err := s.SetFlag(runKey(1), "amp", domain.ColumnShared, true); err != nil {
		t.Fatalf("share: %v", err)
	}
	if err := s.SetFlag(runKey(2), "1_T1", domain.ColumnFixed, true); err != nil {
		t.Fatalf("fix: %v", err)
	}
	if err := s.Edit(runKey(1), "1_T1", domain.ColumnHi, ""); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := s.Edit(runKey(2), "amp", domain.ColumnP0, "0.123456789012345"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := s.SetXLimits("0.25", ""); err != nil {
		t.Fatalf("xlims: %v", err)
	}
	if _, err := s.Fit(ctx); err != nil {
		t.Fatalf("fit: %v", err)
	}
	s.SetModifyAll(true)
	return s
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	src := populatedSession(t)
	before := src.Snapshot()

	dst, _ := newTestSession(t, 5)
	res, err := dst.Restore(context.Background(), before)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if res.HasBlocking() {
		t.Fatalf("unexpected blocking result %+v", res)
	}
	after := dst.Snapshot()
	if got, want := snapshotJSON(t, after), snapshotJSON(t, before); got != want {
		t.Fatalf("round trip differs:\nwant %s\n got %s", want, got)
	}
	if !dst.ModifyAll() || dst.Registry().RefCount("amp") != 2 || !dst.Registry().IsShared("amp") {
		t.Fatalf("registry or mode not restored")
	}
	if _, ok := dst.Line(runKey(5)); ok {
		t.Fatalf("restore must replace the previous runs")
	}
	if got := mustText(t, mustLine(t, dst, 1), "amp", domain.ColumnChi); got != "0.80" {
		t.Fatalf("results not displayed after restore: %q", got)
	}
}

func TestRestoreBlockedByRulesLeavesStateAlone(t *testing.T) {
	s := populatedSession(t)
	before := snapshotJSON(t, s.Snapshot())

	bad := s.Snapshot()
	bad.Runs[0].Parameters[0].Fixed = true
	bad.Runs[0].Parameters[0].Shared = true
	_, err := s.Restore(context.Background(), bad)
	var rv RuleViolationError
	if !errors.As(err, &rv) || !rv.Result.HasBlocking() {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if got := snapshotJSON(t, s.Snapshot()); got != before {
		t.Fatalf("state changed by rejected restore")
	}
}

func TestRestoreModelMismatchLeavesStateAlone(t *testing.T) {
	s := populatedSession(t)
	before := snapshotJSON(t, s.Snapshot())

	bad := s.Snapshot()
	bad.Runs[1].Parameters = append(bad.Runs[1].Parameters, row("ghost", 1, 0, 2, false, false))
	if _, err := s.Restore(context.Background(), bad); !errors.Is(err, domain.ErrUnknownParameter) {
		t.Fatalf("expected unknown parameter, got %v", err)
	}
	other := s.Snapshot()
	other.Function = "Gaussian"
	if _, err := s.Restore(context.Background(), other); !errors.Is(err, domain.ErrUnknownFunction) {
		t.Fatalf("expected unknown function, got %v", err)
	}
	newer := s.Snapshot()
	newer.Version = domain.SnapshotVersion + 1
	if _, err := s.Restore(context.Background(), newer); err == nil {
		t.Fatalf("expected version error")
	}
	if got := snapshotJSON(t, s.Snapshot()); got != before {
		t.Fatalf("state changed by rejected restore")
	}
}

func TestRestoreFetchFailureLeavesStateAlone(t *testing.T) {
	routines := newFakeRoutines()
	s := NewSession(fakeProvider(9), WithRoutines(routines))
	ctx := context.Background()
	if err := s.AddRun(ctx, runKey(1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Edit(runKey(1), "amp", domain.ColumnP0, "0.11"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := s.SetXLimits("0.5", "4"); err != nil {
		t.Fatalf("xlims: %v", err)
	}
	before := snapshotJSON(t, s.Snapshot())

	snap := populatedSession(t).Snapshot()
	snap.XLo = "0"
	snap.Runs = append(snap.Runs, domain.RunSnapshot{Key: runKey(9)})
	if _, err := s.Restore(ctx, snap); err == nil {
		t.Fatalf("expected fetch failure")
	}
	if got := snapshotJSON(t, s.Snapshot()); got != before {
		t.Fatalf("state changed by failed restore:\nwant %s\n got %s", before, got)
	}
	if v := mustGet(t, s, 1, "amp", domain.ColumnP0); v.Number != 0.11 {
		t.Fatalf("edit lost: %v", v.Number)
	}
}

func TestSaveToLoadFrom(t *testing.T) {
	ctx := context.Background()
	src := populatedSession(t)
	store := memory.NewStore()
	if err := src.SaveTo(ctx, store, "tab-1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	dst, _ := newTestSession(t)
	if _, err := dst.LoadFrom(ctx, store, "tab-1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got, want := snapshotJSON(t, dst.Snapshot()), snapshotJSON(t, src.Snapshot()); got != want {
		t.Fatalf("loaded state differs")
	}
	if _, err := dst.LoadFrom(ctx, store, "missing"); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := src.SaveTo(ctx, nil, "x"); err == nil {
		t.Fatalf("expected nil store error")
	}
}

func TestOpenSnapshotStore(t *testing.T) {
	ctx := context.Background()
	mem, err := OpenSnapshotStore(ctx, StorageOptions{Driver: StorageMemory})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := mem.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", mem)
	}
	path := filepath.Join(t.TempDir(), "sessions.db")
	lite, err := OpenSnapshotStore(ctx, StorageOptions{SQLitePath: path})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(func() { _ = lite.(io.Closer).Close() })
	src := populatedSession(t)
	if err := src.SaveTo(ctx, lite, "tab-1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	infos, err := lite.List(ctx)
	if err != nil || len(infos) != 1 || infos[0].Runs != 2 {
		t.Fatalf("unexpected list %+v %v", infos, err)
	}
	if _, err := OpenSnapshotStore(ctx, StorageOptions{Driver: "etcd"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
