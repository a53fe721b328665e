package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("filesystem: %v", err)
	}
	return map[string]Store{
		"memory": NewMemory(),
		"fs":     fsStore,
		"s3":     NewMockS3ForTests(),
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			payload := []byte("version: 1\nfit_function: Exp\n")
			info, err := store.Put(ctx, "sessions/a.yaml", bytes.NewReader(payload), PutOptions{
				ContentType: "application/yaml",
				Metadata:    map[string]string{"session": "tab-1"},
			})
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if info.Key != "sessions/a.yaml" || info.Size != int64(len(payload)) {
				t.Fatalf("unexpected put info %+v", info)
			}
			if _, err := store.Put(ctx, "sessions/a.yaml", bytes.NewReader(payload), PutOptions{}); !errors.Is(err, ErrExists) {
				t.Fatalf("expected ErrExists, got %v", err)
			}

			got, rc, err := store.Get(ctx, "sessions/a.yaml")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			body, _ := io.ReadAll(rc)
			_ = rc.Close()
			if !bytes.Equal(body, payload) {
				t.Fatalf("body mismatch: %q", body)
			}
			if got.ContentType != "application/yaml" || got.Metadata["session"] != "tab-1" {
				t.Fatalf("unexpected metadata %+v", got)
			}

			if _, err := store.Put(ctx, "other/b.yaml", bytes.NewReader([]byte("x")), PutOptions{}); err != nil {
				t.Fatalf("put other: %v", err)
			}
			list, err := store.List(ctx, "sessions/")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 1 || list[0].Key != "sessions/a.yaml" {
				t.Fatalf("unexpected list %+v", list)
			}

			removed, err := store.Delete(ctx, "sessions/a.yaml")
			if err != nil || !removed {
				t.Fatalf("delete: %v %v", removed, err)
			}
			if removed, err := store.Delete(ctx, "sessions/a.yaml"); err != nil || removed {
				t.Fatalf("second delete: %v %v", removed, err)
			}
			if _, err := store.Head(ctx, "sessions/a.yaml"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound from head, got %v", err)
			}
			if _, _, err := store.Get(ctx, "sessions/a.yaml"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound from get, got %v", err)
			}
		})
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		opts Options
		want Driver
	}{
		{Options{Driver: DriverMemory}, DriverMemory},
		{Options{FSRoot: t.TempDir()}, DriverFilesystem},
		{Options{Driver: DriverFilesystem, FSRoot: t.TempDir()}, DriverFilesystem},
	}
	for _, c := range cases {
		store, err := Open(ctx, c.opts)
		if err != nil {
			t.Fatalf("open %+v: %v", c.opts, err)
		}
		if store.Driver() != c.want {
			t.Fatalf("expected %s, got %s", c.want, store.Driver())
		}
	}
	if _, err := Open(ctx, Options{Driver: "ftp"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(ctx, Options{Driver: DriverS3}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}
