package storage_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"archivecore/internal/storage"
)

func TestOpenSelectsDriverFromEnvironment(t *testing.T) {
	ctx := context.Background()

	t.Setenv("ARCHIVECORE_STORAGE_DRIVER", "memory")
	store, err := storage.Open(ctx)
	if err != nil {
		t.Fatalf("open memory driver: %v", err)
	}
	if store.Driver() != storage.DriverMemory {
		t.Fatalf("expected driver %s, got %s", storage.DriverMemory, store.Driver())
	}

	t.Setenv("ARCHIVECORE_STORAGE_DRIVER", "fs")
	t.Setenv("ARCHIVECORE_STORAGE_FS_ROOT", t.TempDir())
	store, err = storage.Open(ctx)
	if err != nil {
		t.Fatalf("open fs driver: %v", err)
	}
	if store.Driver() != storage.DriverFilesystem {
		t.Fatalf("expected driver %s, got %s", storage.DriverFilesystem, store.Driver())
	}
	if _, err := store.Put(ctx, "a/b.txt", bytes.NewReader([]byte("payload")), storage.PutOptions{}); err != nil {
		t.Fatalf("put through fs driver: %v", err)
	}
	_, rc, err := store.Get(ctx, "a/b.txt")
	if err != nil {
		t.Fatalf("get through fs driver: %v", err)
	}
	b, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || string(b) != "payload" {
		t.Fatalf("expected payload roundtrip, got %q (%v)", b, err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Setenv("ARCHIVECORE_STORAGE_DRIVER", "tape")
	if _, err := storage.Open(context.Background()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestOpenS3RequiresBucket(t *testing.T) {
	t.Setenv("ARCHIVECORE_STORAGE_DRIVER", "s3")
	t.Setenv("ARCHIVECORE_STORAGE_S3_BUCKET", "")
	if _, err := storage.Open(context.Background()); err == nil {
		t.Fatalf("expected error without a bucket")
	}
}
