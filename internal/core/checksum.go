package core

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"archivecore/pkg/domain"

	"github.com/google/uuid"
)

// FileValidationErrorInfo is the info string written onto the diagnostic lock
// when physical file validation fails.
const FileValidationErrorInfo = "FILE VALIDATION ERROR"

// validateDataFiles recomputes and compares checksums for every accessible
// file within the configured size limits. On any failure it installs a
// FileValidationFailed lock (converting a live finalizePublication lock in
// place) and returns a FileValidationError.
func (s *Service) validateDataFiles(ctx context.Context, ds domain.Dataset, req Request) error {
	if limit := s.settings.DatasetSizeLimit; limit != -1 && ds.DownloadSize() > limit {
		s.log.Infow("skipping file validation, dataset exceeds size limit",
			"dataset", ds.GlobalID, "size", ds.DownloadSize(), "limit", limit)
		return nil
	}
	for i := range ds.Files {
		file := &ds.Files[i]
		if s.storage == nil || !s.storage.Accessible(file.StorageDriver) {
			s.log.Infow("skipping file validation, storage driver not accessible",
				"dataset", ds.GlobalID, "file", file.ID, "driver", file.StorageDriver)
			continue
		}
		if limit := s.settings.FileSizeLimit; limit != -1 && file.Size > limit {
			s.log.Infow("skipping file validation, file exceeds size limit",
				"dataset", ds.GlobalID, "file", file.ID, "size", file.Size, "limit", limit)
			continue
		}
		if err := s.verifyChecksum(ctx, file); err != nil {
			s.log.Errorw("file validation failed",
				"dataset", ds.GlobalID, "file", file.ID, "error", err)
			if lockErr := s.installFileValidationLock(ctx, ds.ID, req); lockErr != nil {
				s.log.Errorw("installing file validation lock failed",
					"dataset", ds.GlobalID, "error", lockErr)
			}
			return &FileValidationError{
				DatasetID: ds.ID,
				FileID:    file.ID,
				Message:   fmt.Sprintf("Dataset %s cannot be archived: file %s failed physical validation.", ds.GlobalID, file.ID),
				Err:       err,
			}
		}
	}
	return nil
}

// verifyChecksum reads the file's bytes from its storage driver and compares
// the recomputed digest against the recorded one.
func (s *Service) verifyChecksum(ctx context.Context, file *domain.DataFile) error {
	rc, err := s.storage.Open(ctx, file.StorageDriver, file.StorageKey)
	if err != nil {
		return fmt.Errorf("open %s: %w", file.StorageKey, err)
	}
	defer func() { _ = rc.Close() }()

	var h hash.Hash
	switch file.Checksum.Type {
	case domain.ChecksumMD5:
		h = md5.New()
	case domain.ChecksumSHA1:
		h = sha1.New()
	case domain.ChecksumSHA256:
		h = sha256.New()
	default:
		return fmt.Errorf("unsupported checksum type %q", file.Checksum.Type)
	}
	if _, err := io.Copy(h, rc); err != nil {
		return fmt.Errorf("read %s: %w", file.StorageKey, err)
	}
	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, file.Checksum.Value) {
		return fmt.Errorf("checksum mismatch: recorded %s, computed %s", file.Checksum.Value, got)
	}
	return nil
}

// installFileValidationLock converts a live finalizePublication lock into the
// FileValidationFailed diagnostic lock, or installs a fresh one. This is the
// only path that mutates a lock's reason in place.
func (s *Service) installFileValidationLock(ctx context.Context, datasetID string, req Request) error {
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		current, ok := tx.FindDataset(datasetID)
		if !ok {
			return &NotFoundError{Entity: "dataset", ID: datasetID}
		}
		if current.IsLockedFor(domain.LockFinalizePublication) {
			_, err := tx.UpdateDatasetLock(datasetID, domain.LockFinalizePublication, func(lock *domain.DatasetLock) error {
				lock.Reason = domain.LockFileValidationFailed
				lock.Info = FileValidationErrorInfo
				return nil
			})
			return err
		}
		if current.IsLockedFor(domain.LockFileValidationFailed) {
			return nil
		}
		_, err := tx.AddDatasetLock(datasetID, domain.DatasetLock{
			ID:        uuid.NewString(),
			DatasetID: datasetID,
			Reason:    domain.LockFileValidationFailed,
			UserID:    req.User.Identifier,
			Info:      FileValidationErrorInfo,
			CreatedAt: s.now(),
		})
		return err
	})
	return err
}
