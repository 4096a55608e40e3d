package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*FilesystemStore)(nil)
	_ Store = (*S3Store)(nil)
)

func testStoreRoundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	info, err := store.Put(ctx, "reports/run-1/waiting.json", strings.NewReader(`{"entries":[]}`), PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"report": "waiting-list"},
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Size != int64(len(`{"entries":[]}`)) {
		t.Fatalf("size = %d", info.Size)
	}
	if info.ETag == "" {
		t.Fatal("etag not computed")
	}

	// Create-only: a second write to the same key must fail.
	if _, err := store.Put(ctx, "reports/run-1/waiting.json", strings.NewReader("x"), PutOptions{}); err == nil {
		t.Fatal("overwrite must fail")
	}

	got, rc, err := store.Get(ctx, "reports/run-1/waiting.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != `{"entries":[]}` {
		t.Fatalf("body = %q", body)
	}
	if got.ContentType != "application/json" || got.Metadata["report"] != "waiting-list" {
		t.Fatalf("metadata lost: %+v", got)
	}

	head, err := store.Head(ctx, "reports/run-1/waiting.json")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.ETag != info.ETag {
		t.Fatalf("head etag %q != put etag %q", head.ETag, info.ETag)
	}

	if _, err := store.Put(ctx, "reports/run-2/allocations.csv", strings.NewReader("organ,recipient\n"), PutOptions{ContentType: "text/csv"}); err != nil {
		t.Fatalf("Put second: %v", err)
	}
	infos, err := store.List(ctx, "reports/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("listed %d blobs, want 2", len(infos))
	}
	if infos[0].Key > infos[1].Key {
		t.Fatalf("list not key ordered: %s, %s", infos[0].Key, infos[1].Key)
	}
	only, err := store.List(ctx, "reports/run-2/")
	if err != nil {
		t.Fatalf("List prefix: %v", err)
	}
	if len(only) != 1 || only[0].Key != "reports/run-2/allocations.csv" {
		t.Fatalf("prefix filter broken: %+v", only)
	}

	deleted, err := store.Delete(ctx, "reports/run-1/waiting.json")
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v", deleted, err)
	}
	deleted, err = store.Delete(ctx, "reports/run-1/waiting.json")
	if err != nil || deleted {
		t.Fatalf("second Delete = %v, %v; want false, nil", deleted, err)
	}
	if _, _, err := store.Get(ctx, "reports/run-1/waiting.json"); err == nil {
		t.Fatal("deleted blob still readable")
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	testStoreRoundTrip(t, NewMemory())
}

func TestFilesystemStoreRoundTrip(t *testing.T) {
	store, err := NewFilesystem(filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	testStoreRoundTrip(t, store)
}

func TestFilesystemStoreRejectsTraversal(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"", "  ", "../escape", "/abs/path", "a/../../b"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("key %q must be rejected", key)
		}
	}
}

func TestFilesystemStoreMissingKey(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	_, _, err = store.Get(context.Background(), "missing/key")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	t.Setenv("ORGANCORE_BLOB_DRIVER", "memory")
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("driver = %s, want memory", store.Driver())
	}

	t.Setenv("ORGANCORE_BLOB_DRIVER", "bogus")
	if _, err := Open(context.Background()); err == nil {
		t.Fatal("unknown driver must fail")
	}

	t.Setenv("ORGANCORE_BLOB_DRIVER", "fs")
	t.Setenv("ORGANCORE_BLOB_FS_ROOT", filepath.Join(t.TempDir(), "root"))
	store, err = Open(context.Background())
	if err != nil {
		t.Fatalf("Open fs: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("driver = %s, want fs", store.Driver())
	}
}
