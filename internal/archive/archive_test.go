package archive

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"fitsync/internal/blob"
	"fitsync/pkg/domain"
)

func sampleSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Version:    domain.SnapshotVersion,
		SavedAt:    time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC),
		Routine:    "bnmr",
		Function:   "Str Exp",
		Components: 1,
		XLo:        "0.25",
		ModifyAll:  true,
		GlobalChi:  domain.Float(math.NaN()),
		Runs: []domain.RunSnapshot{{
			Key: domain.RunKey{Year: 2024, Run: 40123, Merged: []int{40124}},
			Parameters: []domain.ParameterRow{
				{Name: "1_T1", P0: 1.2, Lo: 0, Hi: domain.Float(math.Inf(1)), Res: domain.Float(math.NaN()), DRes: domain.Float(math.NaN()), Chi: domain.Float(math.NaN()), Fixed: true},
				{Name: "amp", P0: 0.1, Lo: domain.Float(math.Inf(-1)), Hi: 1, Res: 0.09, DRes: 0.001, Chi: 0.8, Shared: true},
			},
		}},
	}
}

func asJSON(t *testing.T, snap domain.Snapshot) string {
	t.Helper()
	b, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func sequentialIDs() func() uuid.UUID {
	var n byte
	return func() uuid.UUID {
		n++
		var id uuid.UUID
		id[15] = n
		return id
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	stores := map[string]blob.Store{
		"memory": blob.NewMemory(),
		"s3":     blob.NewMockS3ForTests(),
	}
	fsStore, err := blob.NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("fs store: %v", err)
	}
	stores["fs"] = fsStore

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			a := New(store)
			snap := sampleSnapshot()
			entry, err := a.Export(ctx, "tab-1", snap)
			if err != nil {
				t.Fatalf("export: %v", err)
			}
			if !strings.HasPrefix(entry.Key, DefaultPrefix) || !strings.HasSuffix(entry.Key, ".yaml") {
				t.Fatalf("unexpected key %s", entry.Key)
			}
			if _, err := uuid.Parse(strings.TrimSuffix(strings.TrimPrefix(entry.Key, DefaultPrefix), ".yaml")); err != nil {
				t.Fatalf("key does not carry a uuid: %v", err)
			}
			got, err := a.Import(ctx, entry.Key)
			if err != nil {
				t.Fatalf("import: %v", err)
			}
			if !got.SavedAt.Equal(snap.SavedAt) {
				t.Fatalf("saved_at changed: %v", got.SavedAt)
			}
			got.SavedAt, snap.SavedAt = time.Time{}, time.Time{}
			if asJSON(t, got) != asJSON(t, snap) {
				t.Fatalf("round trip differs:\nwant %s\n got %s", asJSON(t, snap), asJSON(t, got))
			}
		})
	}
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	a := New(store, WithPrefix("archives"), WithIDGenerator(sequentialIDs()))
	first, err := a.Export(ctx, "tab-1", sampleSnapshot())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if first.Key != "archives/00000000-0000-0000-0000-000000000001.yaml" {
		t.Fatalf("unexpected key %s", first.Key)
	}
	if _, err := a.Export(ctx, "", sampleSnapshot()); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := store.Put(ctx, "archives/readme.txt", strings.NewReader("x"), blob.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}

	entries, err := a.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two archives, got %+v", entries)
	}
	byKey := map[string]Entry{}
	for _, e := range entries {
		byKey[e.Key] = e
	}
	e := byKey[first.Key]
	if e.Session != "tab-1" || e.Function != "Str Exp" || e.Runs != 1 || e.Size == 0 {
		t.Fatalf("unexpected entry %+v", e)
	}

	if st, err := a.Stat(ctx, first.Key); err != nil || st.Session != "tab-1" {
		t.Fatalf("stat: %+v %v", st, err)
	}
	if ok, err := a.Delete(ctx, first.Key); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, _ := a.Delete(ctx, first.Key); ok {
		t.Fatalf("second delete must report false")
	}
	if _, err := a.Import(ctx, first.Key); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := a.Delete(ctx, "archives/readme.txt"); !errors.Is(err, ErrNotArchive) {
		t.Fatalf("expected not an archive, got %v", err)
	}
	if _, err := a.Import(ctx, "other/x.yaml"); !errors.Is(err, ErrNotArchive) {
		t.Fatalf("expected not an archive, got %v", err)
	}
}

func TestDecodeRejectsBadDocuments(t *testing.T) {
	if _, err := Decode(strings.NewReader("version: 99\nfit_function: Exp\n")); err == nil {
		t.Fatalf("expected version error")
	}
	if _, err := Decode(strings.NewReader("version: 1\nsurprise: true\n")); err == nil {
		t.Fatalf("expected unknown field error")
	}
	snap, err := Decode(strings.NewReader("version: 1\nfit_function: Exp\nglobal_chi: .nan\nruns: []\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Function != "Exp" || !math.IsNaN(float64(snap.GlobalChi)) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, err := New(nil).Export(context.Background(), "", snap); err == nil {
		t.Fatalf("expected missing store error")
	}
}
