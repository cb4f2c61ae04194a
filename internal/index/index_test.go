package index_test

import (
	"context"
	"errors"
	"testing"

	"archivecore/internal/index"
)

func TestMemoryRecordsSubmissions(t *testing.T) {
	idx := index.NewMemory()
	ctx := context.Background()

	if err := idx.IndexDataset(ctx, "ds1"); err != nil {
		t.Fatalf("index dataset: %v", err)
	}
	if err := idx.IndexDataverse(ctx, "dv1"); err != nil {
		t.Fatalf("index dataverse: %v", err)
	}
	if got := idx.Datasets(); len(got) != 1 || got[0] != "ds1" {
		t.Fatalf("unexpected datasets %v", got)
	}
	if got := idx.Dataverses(); len(got) != 1 || got[0] != "dv1" {
		t.Fatalf("unexpected dataverses %v", got)
	}
}

func TestMemoryFailureInjection(t *testing.T) {
	idx := index.NewMemory()
	ctx := context.Background()
	boom := errors.New("solr down")

	idx.FailDatasets(boom)
	idx.FailDataverse("dv1", boom)

	if err := idx.IndexDataset(ctx, "ds1"); !errors.Is(err, boom) {
		t.Fatalf("expected injected dataset error, got %v", err)
	}
	if err := idx.IndexDataverse(ctx, "dv1"); !errors.Is(err, boom) {
		t.Fatalf("expected injected dataverse error, got %v", err)
	}
	if err := idx.IndexDataverse(ctx, "dv2"); err != nil {
		t.Fatalf("expected other dataverse to index: %v", err)
	}
	if got := idx.Datasets(); len(got) != 0 {
		t.Fatalf("failed submissions must not be recorded, got %v", got)
	}
}
