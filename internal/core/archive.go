package core

import (
	"context"

	"archivecore/internal/workflow"
	"archivecore/pkg/domain"

	"github.com/google/uuid"
)

// ArchiveStatus reports how a kick-off concluded.
type ArchiveStatus string

const (
	// StatusWorkflow means a default workflow was started; it will invoke the
	// finalize phase when it completes.
	StatusWorkflow ArchiveStatus = "Workflow"
	// StatusInProgress means the finalize lock is installed and the finalize
	// phase was dispatched asynchronously.
	StatusInProgress ArchiveStatus = "InProgress"
)

// ArchiveResult is the outcome of a kick-off.
type ArchiveResult struct {
	Dataset domain.Dataset
	Status  ArchiveStatus
	// JobID identifies the dispatched finalize job, when one was enqueued.
	JobID string
}

// ArchiveDataset starts the archival of a dataset's draft version. It
// validates the request, assigns the next version number, and either hands
// off to the default workflow or installs the finalize lock and dispatches
// the finalize phase asynchronously.
func (s *Service) ArchiveDataset(ctx context.Context, datasetID string, req Request) (ArchiveResult, error) {
	return s.archiveDataset(ctx, datasetID, req, false)
}

// ArchiveExternallyReleasedDataset archives a dataset whose latest version
// was already released by an external system, e.g. a harvesting import. No
// finalize lock is installed.
func (s *Service) ArchiveExternallyReleasedDataset(ctx context.Context, datasetID string, req Request) (ArchiveResult, error) {
	return s.archiveDataset(ctx, datasetID, req, true)
}

func (s *Service) archiveDataset(ctx context.Context, datasetID string, req Request, externallyReleased bool) (result ArchiveResult, err error) {
	start := s.nowFn()
	defer func() { s.observe(ctx, "archive_dataset", start, err) }()

	ds, ok := s.store.GetDataset(datasetID)
	if !ok {
		return ArchiveResult{}, &NotFoundError{Entity: "dataset", ID: datasetID}
	}
	owner, ok := s.store.GetDataverse(ds.OwnerID)
	if !ok {
		return ArchiveResult{}, &NotFoundError{Entity: "dataverse", ID: ds.OwnerID}
	}
	if err = s.verifyArchiveRequest(ds, owner, req, externallyReleased); err != nil {
		return ArchiveResult{}, err
	}

	major, minor := s.nextVersionNumber(ds)

	// External validation sees the version exactly as it would be persisted.
	// Nothing is written until it accepts.
	candidate := ds
	candidate.Versions = append([]domain.DatasetVersion(nil), ds.Versions...)
	numberVersion(&candidate, major, minor)
	if err = s.validateMetadataExternally(ctx, candidate, req); err != nil {
		return ArchiveResult{}, err
	}

	// The workflow decision observed here is authoritative for the rest of
	// the call, even if configuration changes concurrently.
	wf, hasWorkflow := workflow.Workflow{}, false
	if s.workflows != nil {
		wf, hasWorkflow = s.workflows.DefaultWorkflow(workflow.TriggerArchiveDataset)
	}

	if hasWorkflow {
		var updated domain.Dataset
		_, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			updated, txErr = tx.UpdateDataset(datasetID, func(d *domain.Dataset) error {
				numberVersion(d, major, minor)
				return nil
			})
			return txErr
		})
		if err != nil {
			return ArchiveResult{}, err
		}
		wctx := workflow.Context{
			DatasetID:          datasetID,
			Trigger:            workflow.TriggerArchiveDataset,
			User:               req.User.Identifier,
			ExternallyReleased: externallyReleased,
		}
		if _, err = s.workflows.Start(ctx, wf, wctx); err != nil {
			return ArchiveResult{}, err
		}
		s.log.Infow("archive delegated to workflow", "dataset", ds.GlobalID, "workflow", wf.ID)
		return ArchiveResult{Dataset: updated, Status: StatusWorkflow}, nil
	}

	info := "Archiving the dataset; "
	if s.settings.FileValidationEnabled {
		info += "Validating Datafiles Asynchronously"
	}
	var updated domain.Dataset
	_, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		updated, txErr = tx.UpdateDataset(datasetID, func(d *domain.Dataset) error {
			numberVersion(d, major, minor)
			return nil
		})
		if txErr != nil {
			return txErr
		}
		if externallyReleased {
			return nil
		}
		_, txErr = tx.AddDatasetLock(datasetID, domain.DatasetLock{
			ID:        uuid.NewString(),
			DatasetID: datasetID,
			Reason:    domain.LockFinalizePublication,
			UserID:    req.User.Identifier,
			Info:      info,
			CreatedAt: s.now(),
		})
		return txErr
	})
	if err != nil {
		return ArchiveResult{}, err
	}

	// The transaction has committed; the finalize dispatch below will observe
	// the lock.
	result = ArchiveResult{Dataset: updated, Status: StatusInProgress}
	if s.dispatch != nil {
		job, dispatchErr := s.dispatch.Enqueue(datasetID, func(jobCtx context.Context) error {
			return s.FinalizeArchive(jobCtx, datasetID, req)
		})
		if dispatchErr != nil {
			s.log.Errorw("finalize dispatch failed", "dataset", ds.GlobalID, "error", dispatchErr)
		} else {
			result.JobID = job.ID
		}
	}
	s.log.Infow("archive in progress", "dataset", ds.GlobalID, "major", major, "minor", minor)
	return result, nil
}

// nextVersionNumber picks the version number the archived version will carry:
// 1.0 for a first release, otherwise the next major.
func (s *Service) nextVersionNumber(ds domain.Dataset) (int64, int64) {
	if ds.PublicationDate == nil {
		return 1, 0
	}
	return ds.VersionNumber() + 1, 0
}

func numberVersion(d *domain.Dataset, major, minor int64) {
	if v := d.LatestVersion(); v != nil {
		v.MajorVersion = major
		v.MinorVersion = minor
	}
}
