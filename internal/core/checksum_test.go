package core_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"archivecore/internal/core"
	"archivecore/internal/index"
	memorystore "archivecore/internal/infra/storage/memory"
	"archivecore/internal/notify"
	"archivecore/internal/storage"
	"archivecore/pkg/domain"
)

func checksumFixture(t *testing.T, blob *memorystore.Store, key string, payload []byte) domain.Checksum {
	t.Helper()
	if _, err := blob.Put(context.Background(), key, bytes.NewReader(payload), storage.PutOptions{}); err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
	sum := sha256.Sum256(payload)
	return domain.Checksum{Type: domain.ChecksumSHA256, Value: hex.EncodeToString(sum[:])}
}

func validationSettings() core.Settings {
	settings := core.DefaultSettings()
	settings.FileValidationEnabled = true
	return settings
}

func TestFinalizeValidatesChecksumsAndArchives(t *testing.T) {
	blob := memorystore.New()
	registry := storage.NewRegistry()
	registry.Register("mem", blob, true)
	svc := newTestService(t, core.WithStorage(registry), core.WithSettings(validationSettings()))
	ctx := context.Background()

	dv := releasedDataverse(t, svc, "root")
	payload := []byte("observation data")
	checksum := checksumFixture(t, blob, "f1.bin", payload)
	ds := draftDataset(t, svc, dv.ID, func(d *domain.Dataset) {
		d.Files = []domain.DataFile{{
			ID:            "f1",
			StorageDriver: "mem",
			StorageKey:    "f1.bin",
			Size:          int64(len(payload)),
			Checksum:      checksum,
		}}
	})
	req := core.Request{User: archiveUser()}

	if _, err := svc.ArchiveDataset(ctx, ds.ID, req); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := svc.FinalizeArchive(ctx, ds.ID, req); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	stored := mustGetDataset(t, svc, ds.ID)
	if stored.LatestVersion().State != domain.StateLongtermArchived {
		t.Fatalf("expected archived state, got %s", stored.LatestVersion().State)
	}
}

func TestChecksumMismatchConvertsFinalizeLock(t *testing.T) {
	blob := memorystore.New()
	registry := storage.NewRegistry()
	registry.Register("mem", blob, true)
	notifier := notify.NewMemory()
	indexer := index.NewMemory()
	svc := newTestService(t,
		core.WithStorage(registry),
		core.WithSettings(validationSettings()),
		core.WithNotifier(notifier),
		core.WithIndex(indexer),
	)
	ctx := context.Background()

	dv := releasedDataverse(t, svc, "root")
	payload := []byte("observation data")
	checksum := checksumFixture(t, blob, "f1.bin", payload)
	ds := draftDataset(t, svc, dv.ID, func(d *domain.Dataset) {
		d.Files = []domain.DataFile{{
			ID:            "f1",
			StorageDriver: "mem",
			StorageKey:    "f1.bin",
			Size:          int64(len(payload)),
			Checksum:      checksum,
		}}
	})
	req := core.Request{User: archiveUser()}

	if _, err := svc.ArchiveDataset(ctx, ds.ID, req); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !blob.Corrupt("f1.bin", []byte("corrupted bytes")) {
		t.Fatalf("corrupt object")
	}

	err := svc.FinalizeArchive(ctx, ds.ID, req)
	if !core.IsFileValidation(err) {
		t.Fatalf("expected FileValidationError, got %v", err)
	}

	stored := mustGetDataset(t, svc, ds.ID)
	if stored.LatestVersion().State != domain.StateDraft {
		t.Fatalf("expected version to stay in draft, got %s", stored.LatestVersion().State)
	}
	if len(stored.Locks) != 1 {
		t.Fatalf("expected exactly one lock, got %+v", stored.Locks)
	}
	lock := stored.Locks[0]
	if lock.Reason != domain.LockFileValidationFailed {
		t.Fatalf("expected lock converted to %s, got %s", domain.LockFileValidationFailed, lock.Reason)
	}
	if lock.Info != core.FileValidationErrorInfo {
		t.Fatalf("expected lock info %q, got %q", core.FileValidationErrorInfo, lock.Info)
	}
	if len(notifier.Sent()) != 0 {
		t.Fatalf("expected no notifications, got %+v", notifier.Sent())
	}
	if len(indexer.Datasets()) != 0 {
		t.Fatalf("expected no indexing submission, got %v", indexer.Datasets())
	}
}

func TestChecksumValidationSkipsDatasetOverSizeLimit(t *testing.T) {
	blob := memorystore.New()
	registry := storage.NewRegistry()
	registry.Register("mem", blob, true)
	settings := validationSettings()
	settings.DatasetSizeLimit = 4
	svc := newTestService(t, core.WithStorage(registry), core.WithSettings(settings))
	ctx := context.Background()

	dv := releasedDataverse(t, svc, "root")
	ds := draftDataset(t, svc, dv.ID, func(d *domain.Dataset) {
		// Over the dataset limit, and deliberately carrying a bogus checksum:
		// the gate must skip validation entirely.
		d.Files = []domain.DataFile{{
			ID:            "f1",
			StorageDriver: "mem",
			StorageKey:    "missing.bin",
			Size:          100,
			Checksum:      domain.Checksum{Type: domain.ChecksumSHA256, Value: "bogus"},
		}}
	})
	req := core.Request{User: archiveUser()}

	if _, err := svc.ArchiveDataset(ctx, ds.ID, req); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := svc.FinalizeArchive(ctx, ds.ID, req); err != nil {
		t.Fatalf("finalize should skip oversized dataset: %v", err)
	}
}

func TestChecksumValidationSkipsInaccessibleDriverAndOversizedFile(t *testing.T) {
	blob := memorystore.New()
	registry := storage.NewRegistry()
	registry.Register("mem", blob, true)
	registry.Register("tape", blob, false)
	settings := validationSettings()
	settings.FileSizeLimit = 8
	svc := newTestService(t, core.WithStorage(registry), core.WithSettings(settings))
	ctx := context.Background()

	dv := releasedDataverse(t, svc, "root")
	ds := draftDataset(t, svc, dv.ID, func(d *domain.Dataset) {
		d.Files = []domain.DataFile{
			// Inaccessible driver: skipped regardless of checksum.
			{ID: "f1", StorageDriver: "tape", StorageKey: "missing.bin", Size: 2, Checksum: domain.Checksum{Type: domain.ChecksumSHA256, Value: "bogus"}},
			// Over the per-file limit: skipped.
			{ID: "f2", StorageDriver: "mem", StorageKey: "missing.bin", Size: 16, Checksum: domain.Checksum{Type: domain.ChecksumSHA256, Value: "bogus"}},
		}
	})
	req := core.Request{User: archiveUser()}

	if _, err := svc.ArchiveDataset(ctx, ds.ID, req); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := svc.FinalizeArchive(ctx, ds.ID, req); err != nil {
		t.Fatalf("finalize should skip both files: %v", err)
	}
}
