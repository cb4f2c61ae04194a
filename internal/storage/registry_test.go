package storage_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"archivecore/internal/storage"
)

func TestRegistryAccessibility(t *testing.T) {
	reg := storage.NewRegistry()
	reg.Register("local", storage.NewMemory(), true)
	reg.Register("trsa", storage.NewMemory(), false)

	if !reg.Accessible("local") {
		t.Fatalf("expected local driver accessible")
	}
	if reg.Accessible("trsa") {
		t.Fatalf("expected remote driver inaccessible")
	}
	if reg.Accessible("unknown") {
		t.Fatalf("expected unregistered driver inaccessible")
	}
	if _, ok := reg.Lookup("trsa"); !ok {
		t.Fatalf("expected inaccessible driver still registered")
	}
}

func TestRegistryOpen(t *testing.T) {
	reg := storage.NewRegistry()
	mem := storage.NewMemory()
	reg.Register("local", mem, true)
	ctx := context.Background()

	if _, err := mem.Put(ctx, "k1", strings.NewReader("payload"), storage.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}

	rc, err := reg.Open(ctx, "local", "k1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "payload" {
		t.Fatalf("unexpected body %q", body)
	}

	if _, err := reg.Open(ctx, "missing", "k1"); err == nil {
		t.Fatalf("expected unregistered driver error")
	}
}
