package notify_test

import (
	"context"
	"errors"
	"testing"

	"archivecore/internal/notify"
)

func TestMemoryRecordsDeliveries(t *testing.T) {
	svc := notify.NewMemory()
	ctx := context.Background()

	n := notify.Notification{UserID: "curator", Type: notify.TypePublishedDataset, DatasetID: "ds1", VersionID: "v1"}
	if err := svc.Send(ctx, n); err != nil {
		t.Fatalf("send: %v", err)
	}
	sent := svc.Sent()
	if len(sent) != 1 || sent[0].UserID != "curator" || sent[0].Type != notify.TypePublishedDataset {
		t.Fatalf("unexpected deliveries %+v", sent)
	}
}

func TestMemoryFailureInjection(t *testing.T) {
	svc := notify.NewMemory()
	boom := errors.New("smtp down")
	svc.Fail(boom)

	if err := svc.Send(context.Background(), notify.Notification{UserID: "u"}); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if got := svc.Sent(); len(got) != 0 {
		t.Fatalf("failed sends must not be recorded, got %+v", got)
	}
}
