package core

import (
	"context"

	"archivecore/pkg/domain"

	"github.com/google/uuid"
)

// AddLock installs a lock on a dataset. It fails when a lock with the same
// reason is already present.
func (s *Service) AddLock(ctx context.Context, datasetID string, reason domain.LockReason, user domain.User, info string) (domain.DatasetLock, error) {
	lock := domain.DatasetLock{
		ID:        uuid.NewString(),
		DatasetID: datasetID,
		Reason:    reason,
		UserID:    user.Identifier,
		Info:      info,
		CreatedAt: s.now(),
	}
	var added domain.DatasetLock
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		added, err = tx.AddDatasetLock(datasetID, lock)
		return err
	})
	if err != nil {
		return domain.DatasetLock{}, err
	}
	return added, nil
}

// AddWorkflowLock installs a Workflow lock carrying the invocation id of the
// run that owns it.
func (s *Service) AddWorkflowLock(ctx context.Context, datasetID string, user domain.User, invocationID string) (domain.DatasetLock, error) {
	lock := domain.DatasetLock{
		ID:                   uuid.NewString(),
		DatasetID:            datasetID,
		Reason:               domain.LockWorkflow,
		UserID:               user.Identifier,
		WorkflowInvocationID: invocationID,
		CreatedAt:            s.now(),
	}
	var added domain.DatasetLock
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		added, err = tx.AddDatasetLock(datasetID, lock)
		return err
	})
	if err != nil {
		return domain.DatasetLock{}, err
	}
	return added, nil
}

// RemoveLocks removes all locks with the given reason from the dataset.
// Removing an absent lock is a no-op; the count of removed locks is returned.
func (s *Service) RemoveLocks(ctx context.Context, datasetID string, reason domain.LockReason) (int, error) {
	var removed int
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		removed, err = tx.RemoveDatasetLocks(datasetID, reason)
		return err
	})
	return removed, err
}

// ListLocks returns the locks currently held on the dataset.
func (s *Service) ListLocks(datasetID string) ([]domain.DatasetLock, error) {
	ds, ok := s.store.GetDataset(datasetID)
	if !ok {
		return nil, &NotFoundError{Entity: "dataset", ID: datasetID}
	}
	locks := make([]domain.DatasetLock, len(ds.Locks))
	copy(locks, ds.Locks)
	return locks, nil
}
