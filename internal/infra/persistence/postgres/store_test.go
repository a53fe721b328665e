package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"fitsync/internal/infra/persistence/postgres/testutil"
	"fitsync/pkg/domain"
)

func sampleSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Version:    domain.SnapshotVersion,
		Function:   "Lorentzian",
		Components: 1,
		GlobalChi:  domain.Float(math.NaN()),
		Runs: []domain.RunSnapshot{{
			Key:        domain.NewRunKey(2020, 40001),
			Parameters: []domain.ParameterRow{{Name: "peak", P0: 41.2e6, Lo: 0, Hi: domain.Float(math.Inf(1)), Res: domain.Float(math.NaN()), DRes: domain.Float(math.NaN()), Chi: domain.Float(math.NaN())}},
		}},
	}
}

func openStub(t *testing.T) (*Store, *testutil.StubConn, *sql.DB) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn, db
}

func TestNewStoreCreatesTableAndLoadsRows(t *testing.T) {
	ctx := context.Background()
	db, conn := testutil.NewStubDB()
	payload, err := json.Marshal(sampleSnapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	conn.Tables["sessions"] = []map[string]any{{"name": "seeded", "payload": payload}}

	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	store, err := NewStore(ctx, "postgres://example")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS SESSIONS") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected sessions DDL, got %v", conn.Execs)
	}
	got, err := store.Load(ctx, "seeded")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Function != "Lorentzian" || len(got.Runs) != 1 {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}

func TestSaveAndDeleteWriteThrough(t *testing.T) {
	ctx := context.Background()
	store, conn, _ := openStub(t)
	if err := store.Save(ctx, "tab", sampleSnapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, "tab", sampleSnapshot()); err != nil {
		t.Fatalf("save again: %v", err)
	}
	if rows := conn.Tables["sessions"]; len(rows) != 1 || rows[0]["name"] != "tab" {
		t.Fatalf("expected one upserted row, got %v", rows)
	}
	if removed, err := store.Delete(ctx, "tab"); err != nil || !removed {
		t.Fatalf("delete: %v %v", removed, err)
	}
	if rows := conn.Tables["sessions"]; len(rows) != 0 {
		t.Fatalf("expected row deleted, got %v", rows)
	}
}

func TestSaveFailureLeavesMemoryUntouched(t *testing.T) {
	ctx := context.Background()
	store, conn, _ := openStub(t)
	conn.FailCommit = true
	if err := store.Save(ctx, "tab", sampleSnapshot()); err == nil {
		t.Fatalf("expected commit failure")
	}
	if infos, _ := store.List(ctx); len(infos) != 0 {
		t.Fatalf("expected nothing saved, got %+v", infos)
	}
}

func TestNewStorePingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), ""); err == nil {
		t.Fatalf("expected ping failure")
	}
}
