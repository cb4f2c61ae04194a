package core

import (
	"errors"
	"fmt"
)

// NotFoundError reports a missing dataset or dataverse.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// IllegalCommandError rejects a command whose preconditions do not hold. No
// state has been mutated when it is returned.
type IllegalCommandError struct {
	Reason string
}

func (e *IllegalCommandError) Error() string {
	return e.Reason
}

// ValidationRejectedError reports that the external metadata validator
// rejected the dataset. No lock is installed.
type ValidationRejectedError struct {
	Message string
}

func (e *ValidationRejectedError) Error() string {
	return e.Message
}

// FileValidationError reports a checksum or read failure during physical file
// validation. By the time it is returned, a FileValidationFailed lock has been
// installed (or the finalize lock converted) on the dataset.
type FileValidationError struct {
	DatasetID string
	FileID    string
	Message   string
	Err       error
}

func (e *FileValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("file validation failed for dataset %s file %s", e.DatasetID, e.FileID)
}

func (e *FileValidationError) Unwrap() error { return e.Err }

// FinalizeError reports a failure inside the finalize transaction. The
// finalizePublication lock written by the kick-off remains in place and must
// be cleared by operator action.
type FinalizeError struct {
	DatasetID string
	Err       error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("finalize archive of dataset %s: %v", e.DatasetID, e.Err)
}

func (e *FinalizeError) Unwrap() error { return e.Err }

// StateConflictError reports an optimistic-concurrency collision. Re-driving
// the command is the prescribed recovery.
type StateConflictError struct {
	Entity string
	ID     string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("concurrent modification of %s %s", e.Entity, e.ID)
}

// IsIllegalCommand reports whether err is a precondition rejection.
func IsIllegalCommand(err error) bool {
	var ice *IllegalCommandError
	return errors.As(err, &ice)
}

// IsFileValidation reports whether err came from the checksum validator.
func IsFileValidation(err error) bool {
	var fve *FileValidationError
	return errors.As(err, &fve)
}
