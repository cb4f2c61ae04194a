package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Lock mutations are first-class
// operations because lock state is the only coordination point between the
// kick-off and finalize phases.
type Transaction interface {
	Snapshot() TransactionView
	CreateDataverse(Dataverse) (Dataverse, error)
	UpdateDataverse(id string, mutator func(*Dataverse) error) (Dataverse, error)
	CreateDataset(Dataset) (Dataset, error)
	UpdateDataset(id string, mutator func(*Dataset) error) (Dataset, error)
	DeleteDataset(id string) error
	// AddDatasetLock fails if a lock with the same reason already exists.
	AddDatasetLock(datasetID string, lock DatasetLock) (DatasetLock, error)
	// RemoveDatasetLocks removes all locks with the given reason and returns
	// how many were removed. Removing an absent lock is a no-op.
	RemoveDatasetLocks(datasetID string, reason LockReason) (int, error)
	// UpdateDatasetLock replaces fields of the existing lock with the given
	// reason atomically. This is the only path that mutates a lock in place.
	UpdateDatasetLock(datasetID string, reason LockReason, mutator func(*DatasetLock) error) (DatasetLock, error)
	UpsertVersionUser(DatasetVersionUser) (DatasetVersionUser, error)
	AppendFailureLog(FailureLogEntry) error
	FindDataset(id string) (Dataset, bool)
	FindDataverse(id string) (Dataverse, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// queries.
type TransactionView interface {
	ListDatasets() []Dataset
	ListDataverses() []Dataverse
	FindDataset(id string) (Dataset, bool)
	FindDataverse(id string) (Dataverse, bool)
	FindVersionUser(versionID, userID string) (DatasetVersionUser, bool)
	FailureLog(datasetID string) []FailureLogEntry
}

// PersistentStore is a minimal abstraction over durable backends. Lock state
// written through it must be visible to all concurrent actors once
// RunInTransaction returns.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetDataset(id string) (Dataset, bool)
	ListDatasets() []Dataset
	GetDataverse(id string) (Dataverse, bool)
	ListDataverses() []Dataverse
	FindVersionUser(versionID, userID string) (DatasetVersionUser, bool)
	FailureLog(datasetID string) []FailureLogEntry
}
