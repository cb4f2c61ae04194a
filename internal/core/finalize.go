package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"archivecore/internal/notify"
	"archivecore/pkg/domain"
)

// FinalizeArchive performs the terminal mutations of the archival process:
// release timestamps, file publication, subject propagation, the transition
// to LONGTERM_ARCHIVED, and unlocking. It runs in its own transaction, joined
// to the kick-off only through the finalizePublication lock. On failure the
// lock stays in place for operator recovery, except for file validation
// failures, which convert it to the FileValidationFailed diagnostic.
func (s *Service) FinalizeArchive(ctx context.Context, datasetID string, req Request) (err error) {
	start := s.nowFn()
	defer func() { s.observe(ctx, "finalize_archive", start, err) }()

	ds, ok := s.store.GetDataset(datasetID)
	if !ok {
		return &NotFoundError{Entity: "dataset", ID: datasetID}
	}
	version := ds.LatestVersion()
	if version == nil {
		return &FinalizeError{DatasetID: datasetID, Err: fmt.Errorf("dataset has no versions")}
	}
	s.log.Infow("finalizing archive", "dataset", ds.GlobalID, "version", version.ID)

	if version.State != domain.StateLongtermArchived && version.MinorVersion == 0 && s.settings.FileValidationEnabled {
		if err = s.validateDataFiles(ctx, ds, req); err != nil {
			return err
		}
	}

	now := s.now()
	var newlyPublished []string
	var grownDataverses []string
	_, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		updated, txErr := tx.UpdateDataset(datasetID, func(d *domain.Dataset) error {
			v := d.LatestVersion()
			if v == nil {
				return fmt.Errorf("dataset %s has no versions", d.ID)
			}
			if d.PublicationDate == nil {
				d.PublicationDate = &now
				d.ReleaseUserID = req.User.Identifier
				if s.settings.EmbargoCitationDateEnabled {
					d.EmbargoCitationDate = latestEmbargoDate(d.Files)
				}
			}
			v.ExternalStatusLabel = ""
			if v.ReleaseTime == nil {
				// Migrated releases arrive with historical release times;
				// those are preserved.
				release := now
				v.ReleaseTime = &release
			}
			v.LastUpdateTime = now
			d.ModificationTime = now
			if v.Terms != nil {
				d.FileAccessRequest = v.Terms.FileAccessRequest
			}
			newlyPublished = publishFiles(d, v)
			if v.State != domain.StateLongtermArchived {
				v.State = domain.StateLongtermArchived
			}
			d.PrivateURLToken = ""
			return nil
		})
		if txErr != nil {
			return txErr
		}

		final := updated.LatestVersion()
		if _, txErr = tx.UpsertVersionUser(domain.DatasetVersionUser{
			DatasetID:      datasetID,
			VersionID:      final.ID,
			UserID:         strings.TrimPrefix(req.User.Identifier, "@"),
			LastUpdateDate: now,
		}); txErr != nil {
			return txErr
		}

		grownDataverses, txErr = propagateSubjects(tx, updated)
		if txErr != nil {
			return txErr
		}

		return s.releaseLocks(tx, datasetID, req)
	})
	if err != nil {
		return &FinalizeError{DatasetID: datasetID, Err: err}
	}

	s.onFinalizeSuccess(ctx, datasetID, req, newlyPublished, grownDataverses, now)
	s.log.Infow("archive finalized", "dataset", ds.GlobalID)
	return nil
}

// releaseLocks removes the locks the archival process holds. Workflow locks
// belonging to other invocations stay untouched; those are post-publication
// workflows this engine did not install.
func (s *Service) releaseLocks(tx domain.Transaction, datasetID string, req Request) error {
	current, ok := tx.FindDataset(datasetID)
	if !ok {
		return &NotFoundError{Entity: "dataset", ID: datasetID}
	}
	if lock := current.LockFor(domain.LockWorkflow); lock != nil {
		if lock.WorkflowInvocationID == "" || lock.WorkflowInvocationID == req.WorkflowInvocationID {
			if _, err := tx.RemoveDatasetLocks(datasetID, domain.LockWorkflow); err != nil {
				return err
			}
		}
	}
	if _, err := tx.RemoveDatasetLocks(datasetID, domain.LockFinalizePublication); err != nil {
		return err
	}
	if _, err := tx.RemoveDatasetLocks(datasetID, domain.LockInReview); err != nil {
		return err
	}
	return nil
}

// publishFiles stamps publication dates on never-published files, synchronizes
// the restricted flag from the latest version's file metadata, and detaches a
// restricted thumbnail. It returns the ids of files published for the first
// time.
func publishFiles(d *domain.Dataset, v *domain.DatasetVersion) []string {
	var newlyPublished []string
	for i := range d.Files {
		file := &d.Files[i]
		if file.PublicationDate == nil {
			release := *v.ReleaseTime
			file.PublicationDate = &release
			newlyPublished = append(newlyPublished, file.ID)
		}
		if file.Metadata != nil && file.Metadata.VersionID == v.ID {
			file.Restricted = file.Metadata.Restricted
		}
		if file.Restricted && d.ThumbnailFileID == file.ID {
			d.ThumbnailFileID = ""
		}
	}
	return newlyPublished
}

// latestEmbargoDate returns the latest embargo availability date over the
// given files, or nil when none are embargoed.
func latestEmbargoDate(files []domain.DataFile) *time.Time {
	var latest *time.Time
	for i := range files {
		embargo := files[i].Embargo
		if embargo == nil {
			continue
		}
		if latest == nil || embargo.DateAvailable.After(*latest) {
			d := embargo.DateAvailable
			latest = &d
		}
	}
	return latest
}

// onFinalizeSuccess runs the post-commit fan-out: notifications, dataset
// indexing, and re-indexing of dataverses whose subject sets grew. All of it
// is best-effort; failures are logged, and indexing failures additionally
// land in the persistent failure log.
func (s *Service) onFinalizeSuccess(ctx context.Context, datasetID string, req Request, newlyPublished, grownDataverses []string, now time.Time) {
	ds, ok := s.store.GetDataset(datasetID)
	if !ok {
		return
	}
	version := ds.LatestVersion()

	if s.notify != nil {
		notified := make(map[string]bool)
		for _, ra := range ds.RoleAssignments {
			if ra.FileID != "" || notified[ra.AssigneeID] {
				continue
			}
			if !ra.HasPermission(domain.PermissionViewUnpublishedDataset) && !ra.HasPermission(domain.PermissionDownloadFile) {
				continue
			}
			notified[ra.AssigneeID] = true
			n := notify.Notification{
				UserID:    ra.AssigneeID,
				Type:      notify.TypePublishedDataset,
				DatasetID: ds.ID,
				VersionID: version.ID,
				SentAt:    now,
			}
			if err := s.notify.Send(ctx, n); err != nil {
				s.log.Warnw("publish notification failed", "dataset", ds.GlobalID, "user", ra.AssigneeID, "error", err)
			}
		}
		s.notifyFileDownloaders(ctx, ds, version, newlyPublished, now)
	}

	if s.index != nil {
		if err := s.index.IndexDataset(ctx, ds.ID); err != nil {
			s.recordFanoutFailure(ctx, ds.ID, fmt.Sprintf("dataset indexing failed: %v", err))
		}
		for _, dvID := range grownDataverses {
			if err := s.index.IndexDataverse(ctx, dvID); err != nil {
				s.recordFanoutFailure(ctx, ds.ID, fmt.Sprintf("re-indexing dataverse %s failed: %v", dvID, err))
			}
		}
	}
}

// notifyFileDownloaders sends file-download notifications to principals with
// DownloadFile on files that were published for the first time.
func (s *Service) notifyFileDownloaders(ctx context.Context, ds domain.Dataset, version *domain.DatasetVersion, newlyPublished []string, now time.Time) {
	for _, fileID := range newlyPublished {
		notified := make(map[string]bool)
		for _, ra := range ds.RoleAssignments {
			if ra.FileID != fileID || notified[ra.AssigneeID] || !ra.HasPermission(domain.PermissionDownloadFile) {
				continue
			}
			notified[ra.AssigneeID] = true
			n := notify.Notification{
				UserID:    ra.AssigneeID,
				Type:      notify.TypeFileDownloadAccess,
				DatasetID: ds.ID,
				VersionID: version.ID,
				FileID:    fileID,
				SentAt:    now,
			}
			if err := s.notify.Send(ctx, n); err != nil {
				s.log.Warnw("file download notification failed", "dataset", ds.GlobalID, "file", fileID, "user", ra.AssigneeID, "error", err)
			}
		}
	}
}

// recordFanoutFailure logs a post-commit failure and appends it to the
// dataset's persistent failure log.
func (s *Service) recordFanoutFailure(ctx context.Context, datasetID, message string) {
	s.log.Errorw("post-archive fan-out failure", "dataset", datasetID, "message", message)
	if _, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.AppendFailureLog(domain.FailureLogEntry{
			DatasetID:  datasetID,
			Message:    message,
			OccurredAt: s.now(),
		})
	}); err != nil {
		s.log.Errorw("recording fan-out failure failed", "dataset", datasetID, "error", err)
	}
}
