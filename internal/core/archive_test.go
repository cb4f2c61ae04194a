package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"archivecore/internal/core"
	"archivecore/internal/workflow"
	"archivecore/pkg/domain"
)

func TestArchiveInstallsFinalizeLockAndAssignsFirstVersionNumber(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dv := releasedDataverse(t, svc, "root")
	ds := draftDataset(t, svc, dv.ID, nil)

	result, err := svc.ArchiveDataset(ctx, ds.ID, core.Request{User: archiveUser()})
	if err != nil {
		t.Fatalf("archive dataset: %v", err)
	}
	if result.Status != core.StatusInProgress {
		t.Fatalf("expected status %s, got %s", core.StatusInProgress, result.Status)
	}

	stored := mustGetDataset(t, svc, ds.ID)
	version := stored.LatestVersion()
	if version.MajorVersion != 1 || version.MinorVersion != 0 {
		t.Fatalf("expected version 1.0, got %d.%d", version.MajorVersion, version.MinorVersion)
	}
	lock := stored.LockFor(domain.LockFinalizePublication)
	if lock == nil {
		t.Fatalf("expected finalizePublication lock, got locks %+v", stored.Locks)
	}
	if lock.UserID != "@curator" {
		t.Fatalf("expected lock owner @curator, got %s", lock.UserID)
	}
	if !strings.HasPrefix(lock.Info, "Archiving the dataset") {
		t.Fatalf("unexpected lock info %q", lock.Info)
	}
}

func TestArchiveAssignsNextMajorForPreviouslyPublishedDataset(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dv := releasedDataverse(t, svc, "root")
	published := testNow.Add(-48 * time.Hour)
	ds := draftDataset(t, svc, dv.ID, func(d *domain.Dataset) {
		d.PublicationDate = &published
		release := published
		d.Versions = []domain.DatasetVersion{
			{
				ID:           "v1",
				State:        domain.StateLongtermArchived,
				MajorVersion: 2,
				MinorVersion: 0,
				ReleaseTime:  &release,
				Terms:        &domain.TermsOfUseAndAccess{License: &domain.License{Name: "CC0 1.0"}},
			},
			{
				ID:    "v-draft",
				State: domain.StateDraft,
				Terms: &domain.TermsOfUseAndAccess{License: &domain.License{Name: "CC0 1.0"}},
			},
		}
	})

	result, err := svc.ArchiveDataset(ctx, ds.ID, core.Request{User: archiveUser()})
	if err != nil {
		t.Fatalf("archive dataset: %v", err)
	}
	version := result.Dataset.LatestVersion()
	if version.MajorVersion != 3 || version.MinorVersion != 0 {
		t.Fatalf("expected version 3.0, got %d.%d", version.MajorVersion, version.MinorVersion)
	}
}

func TestArchiveRejectsUnreleasedHostDataverse(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dv, err := svc.CreateDataverse(ctx, domain.Dataverse{Alias: "sandbox", Name: "Sandbox"})
	if err != nil {
		t.Fatalf("create dataverse: %v", err)
	}
	ds := draftDataset(t, svc, dv.ID, nil)

	_, err = svc.ArchiveDataset(ctx, ds.ID, core.Request{User: archiveUser()})
	if !core.IsIllegalCommand(err) {
		t.Fatalf("expected IllegalCommandError, got %v", err)
	}
	if !strings.Contains(err.Error(), "sandbox") {
		t.Fatalf("expected message to name the dataverse alias, got %q", err.Error())
	}

	stored := mustGetDataset(t, svc, ds.ID)
	if stored.LatestVersion().MajorVersion != 0 {
		t.Fatalf("expected no version number persisted, got %d", stored.LatestVersion().MajorVersion)
	}
	if len(stored.Locks) != 0 {
		t.Fatalf("expected no locks, got %+v", stored.Locks)
	}
}

func TestArchiveRejectsUnauthenticatedUser(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dv := releasedDataverse(t, svc, "root")
	ds := draftDataset(t, svc, dv.ID, nil)

	_, err := svc.ArchiveDataset(ctx, ds.ID, core.Request{})
	if !core.IsIllegalCommand(err) {
		t.Fatalf("expected IllegalCommandError, got %v", err)
	}
	if !strings.Contains(err.Error(), "authenticated") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestArchiveRejectsMissingTerms(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dv := releasedDataverse(t, svc, "root")
	ds := draftDataset(t, svc, dv.ID, func(d *domain.Dataset) {
		d.Versions[0].Terms = &domain.TermsOfUseAndAccess{}
	})

	_, err := svc.ArchiveDataset(ctx, ds.ID, core.Request{User: archiveUser()})
	if !core.IsIllegalCommand(err) {
		t.Fatalf("expected IllegalCommandError, got %v", err)
	}
	if !strings.Contains(err.Error(), "license") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestArchiveRejectsLockedDatasetNamingAllReasons(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dv := releasedDataverse(t, svc, "root")
	ds := draftDataset(t, svc, dv.ID, nil)

	if _, err := svc.AddLock(ctx, ds.ID, domain.LockIngest, archiveUser(), ""); err != nil {
		t.Fatalf("add ingest lock: %v", err)
	}
	if _, err := svc.AddLock(ctx, ds.ID, domain.LockEditInProgress, archiveUser(), ""); err != nil {
		t.Fatalf("add edit lock: %v", err)
	}

	_, err := svc.ArchiveDataset(ctx, ds.ID, core.Request{User: archiveUser()})
	if !core.IsIllegalCommand(err) {
		t.Fatalf("expected IllegalCommandError, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, string(domain.LockIngest)) || !strings.Contains(msg, string(domain.LockEditInProgress)) {
		t.Fatalf("expected message to name both lock reasons, got %q", msg)
	}
	if !strings.Contains(msg, ",") {
		t.Fatalf("expected reasons joined by comma, got %q", msg)
	}
}

func TestArchiveLockMessageIncludesNonBlockingLocks(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dv := releasedDataverse(t, svc, "root")
	ds := draftDataset(t, svc, dv.ID, nil)

	// InReview alone does not block, but it must still appear in the message
	// once a blocking lock rejects the request.
	if _, err := svc.AddLock(ctx, ds.ID, domain.LockInReview, archiveUser(), ""); err != nil {
		t.Fatalf("add in-review lock: %v", err)
	}
	if _, err := svc.AddLock(ctx, ds.ID, domain.LockIngest, archiveUser(), ""); err != nil {
		t.Fatalf("add ingest lock: %v", err)
	}

	_, err := svc.ArchiveDataset(ctx, ds.ID, core.Request{User: archiveUser()})
	if !core.IsIllegalCommand(err) {
		t.Fatalf("expected IllegalCommandError, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, string(domain.LockIngest)) || !strings.Contains(msg, string(domain.LockInReview)) {
		t.Fatalf("expected message to list every held lock, got %q", msg)
	}
}

func TestArchiveAllowsMatchingWorkflowInvocation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dv := releasedDataverse(t, svc, "root")
	ds := draftDataset(t, svc, dv.ID, nil)

	if _, err := svc.AddWorkflowLock(ctx, ds.ID, archiveUser(), "inv-42"); err != nil {
		t.Fatalf("add workflow lock: %v", err)
	}

	_, err := svc.ArchiveDataset(ctx, ds.ID, core.Request{User: archiveUser()})
	if !core.IsIllegalCommand(err) {
		t.Fatalf("expected rejection without matching invocation, got %v", err)
	}

	_, err = svc.ArchiveDataset(ctx, ds.ID, core.Request{User: archiveUser(), WorkflowInvocationID: "inv-42"})
	if err != nil {
		t.Fatalf("expected matching invocation to pass lock check, got %v", err)
	}
}

func TestArchiveRejectsFileValidationFailedLock(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dv := releasedDataverse(t, svc, "root")
	ds := draftDataset(t, svc, dv.ID, nil)

	if _, err := svc.AddLock(ctx, ds.ID, domain.LockFileValidationFailed, archiveUser(), core.FileValidationErrorInfo); err != nil {
		t.Fatalf("add lock: %v", err)
	}

	_, err := svc.ArchiveDataset(ctx, ds.ID, core.Request{User: archiveUser()})
	if !core.IsIllegalCommand(err) {
		t.Fatalf("expected IllegalCommandError, got %v", err)
	}
	if !strings.Contains(err.Error(), "support") {
		t.Fatalf("expected message to direct to support, got %q", err.Error())
	}
}

func TestArchiveRejectsAlreadyReleasedLatestVersion(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dv := releasedDataverse(t, svc, "root")
	release := testNow.Add(-time.Hour)
	ds := draftDataset(t, svc, dv.ID, func(d *domain.Dataset) {
		d.PublicationDate = &release
		d.Versions[0].State = domain.StateLongtermArchived
		d.Versions[0].MajorVersion = 1
		d.Versions[0].ReleaseTime = &release
	})

	_, err := svc.ArchiveDataset(ctx, ds.ID, core.Request{User: archiveUser()})
	if !core.IsIllegalCommand(err) {
		t.Fatalf("expected IllegalCommandError, got %v", err)
	}
	if !strings.Contains(err.Error(), "already released") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestArchiveExternallyReleasedRequiresReleasedVersion(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dv := releasedDataverse(t, svc, "root")
	ds := draftDataset(t, svc, dv.ID, nil)

	_, err := svc.ArchiveExternallyReleasedDataset(ctx, ds.ID, core.Request{User: archiveUser()})
	if !core.IsIllegalCommand(err) {
		t.Fatalf("expected IllegalCommandError for draft version, got %v", err)
	}
}

func TestArchiveExternallyReleasedSkipsFinalizeLock(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dv := releasedDataverse(t, svc, "root")
	release := testNow.Add(-time.Hour)
	ds := draftDataset(t, svc, dv.ID, func(d *domain.Dataset) {
		d.Versions[0].State = domain.StateReleased
		d.Versions[0].ReleaseTime = &release
	})

	result, err := svc.ArchiveExternallyReleasedDataset(ctx, ds.ID, core.Request{User: archiveUser()})
	if err != nil {
		t.Fatalf("archive externally released: %v", err)
	}
	if result.Status != core.StatusInProgress {
		t.Fatalf("expected status %s, got %s", core.StatusInProgress, result.Status)
	}
	if len(result.Dataset.Locks) != 0 {
		t.Fatalf("expected no locks on externally released path, got %+v", result.Dataset.Locks)
	}
}

func TestArchiveDelegatesToDefaultWorkflow(t *testing.T) {
	registry := workflow.NewRegistry()
	wf := workflow.Workflow{ID: "wf-archive", Name: "External archival", Trigger: workflow.TriggerArchiveDataset}
	if err := registry.Register(wf, nil); err != nil {
		t.Fatalf("register workflow: %v", err)
	}
	if err := registry.SetDefault(workflow.TriggerArchiveDataset, wf.ID); err != nil {
		t.Fatalf("set default workflow: %v", err)
	}

	svc := newTestService(t, core.WithWorkflows(registry))
	ctx := context.Background()
	dv := releasedDataverse(t, svc, "root")
	ds := draftDataset(t, svc, dv.ID, nil)

	result, err := svc.ArchiveDataset(ctx, ds.ID, core.Request{User: archiveUser()})
	if err != nil {
		t.Fatalf("archive dataset: %v", err)
	}
	if result.Status != core.StatusWorkflow {
		t.Fatalf("expected status %s, got %s", core.StatusWorkflow, result.Status)
	}

	stored := mustGetDataset(t, svc, ds.ID)
	if stored.LatestVersion().MajorVersion != 1 {
		t.Fatalf("expected version number persisted before workflow start")
	}
	if stored.IsLockedFor(domain.LockFinalizePublication) {
		t.Fatalf("workflow path must not install the finalize lock")
	}

	started := registry.Started()
	if len(started) != 1 {
		t.Fatalf("expected one workflow run, got %d", len(started))
	}
	if started[0].DatasetID != ds.ID || started[0].Trigger != workflow.TriggerArchiveDataset {
		t.Fatalf("unexpected workflow context %+v", started[0])
	}
	if started[0].InvocationID == "" {
		t.Fatalf("expected a minted invocation id")
	}
	if started[0].ExternallyReleased {
		t.Fatalf("expected externallyReleased=false")
	}
}

func TestArchiveUnknownDatasetReturnsNotFound(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.ArchiveDataset(context.Background(), "missing", core.Request{User: archiveUser()})
	var nf *core.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
