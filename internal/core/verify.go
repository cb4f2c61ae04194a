package core

import (
	"fmt"
	"strings"

	"archivecore/pkg/domain"
)

// blockingLockReasons are the lock reasons that reject a kick-off outright.
// Workflow locks are handled separately because a matching invocation id may
// hold one legitimately.
var blockingLockReasons = []domain.LockReason{
	domain.LockIngest,
	domain.LockFinalizePublication,
	domain.LockEditInProgress,
}

// verifyArchiveRequest checks every kick-off precondition and returns an
// IllegalCommandError naming the first failing condition. It never mutates
// state.
func (s *Service) verifyArchiveRequest(ds domain.Dataset, owner domain.Dataverse, req Request, externallyReleased bool) error {
	if !owner.IsReleased() {
		return &IllegalCommandError{Reason: fmt.Sprintf(
			"This dataset may not be archived because its host dataverse (%s) has not been released.", owner.Alias)}
	}
	if !req.User.Authenticated() {
		return &IllegalCommandError{Reason: "Only authenticated users can archive a dataset. Please authenticate and try again."}
	}
	version := ds.LatestVersion()
	if version == nil {
		return &IllegalCommandError{Reason: fmt.Sprintf("Dataset %s has no versions.", ds.GlobalID)}
	}
	if !version.Terms.HasLicenseOrTerms() {
		return &IllegalCommandError{Reason: "Datasets must have a valid license or custom terms of use configured before they can be archived."}
	}
	if err := s.verifyNotLocked(ds, req); err != nil {
		return err
	}
	if ds.IsLockedFor(domain.LockFileValidationFailed) {
		return &IllegalCommandError{Reason: "This dataset cannot be archived because some files have been found missing or corrupted. Please contact support to address this."}
	}
	if !externallyReleased && version.IsReleased() {
		return &IllegalCommandError{Reason: fmt.Sprintf(
			"Latest version of dataset %s is already released. Only draft versions can be archived.", ds.GlobalID)}
	}
	if externallyReleased && !version.IsReleased() {
		return &IllegalCommandError{Reason: fmt.Sprintf(
			"Latest version of dataset %s has not been released by the external system.", ds.GlobalID)}
	}
	return nil
}

// verifyNotLocked rejects the request when any blocking lock is present. A
// Workflow lock with the caller's invocation id does not block. The rejection
// message lists every lock held on the dataset, blocking or not.
func (s *Service) verifyNotLocked(ds domain.Dataset, req Request) error {
	blocked := false
	if lock := ds.LockFor(domain.LockWorkflow); lock != nil {
		if req.WorkflowInvocationID == "" || lock.WorkflowInvocationID != req.WorkflowInvocationID {
			blocked = true
		}
	}
	for _, reason := range blockingLockReasons {
		if ds.IsLockedFor(reason) {
			blocked = true
		}
	}
	if !blocked {
		return nil
	}
	reasons := make([]string, 0, len(ds.Locks))
	for _, lock := range ds.Locks {
		reasons = append(reasons, string(lock.Reason))
	}
	return &IllegalCommandError{Reason: fmt.Sprintf(
		"This dataset is locked. Reason: %s. Please try archiving later.", strings.Join(reasons, ","))}
}
