package core

import (
	"context"
	"fmt"

	"archivecore/pkg/domain"
)

// LockConsistencyRule blocks transactions that leave a dataset with more than
// one lock per reason, or with a Workflow lock missing its invocation id.
func LockConsistencyRule() domain.Rule {
	return lockConsistencyRule{}
}

type lockConsistencyRule struct{}

func (lockConsistencyRule) Name() string { return "lock_consistency" }

func (lockConsistencyRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityDataset || change.Action == domain.ActionDelete {
			continue
		}
		dataset, ok := change.After.(domain.Dataset)
		if !ok {
			continue
		}
		counts := make(map[domain.LockReason]int, len(dataset.Locks))
		for _, lock := range dataset.Locks {
			counts[lock.Reason]++
			if lock.Reason == domain.LockWorkflow && lock.WorkflowInvocationID == "" {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "lock_consistency",
					Severity: domain.SeverityWarn,
					Message:  fmt.Sprintf("dataset %s carries a workflow lock without an invocation id", dataset.ID),
					Entity:   domain.EntityDataset,
					EntityID: dataset.ID,
				})
			}
		}
		for reason, n := range counts {
			if n > 1 {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "lock_consistency",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("dataset %s holds %d locks with reason %s", dataset.ID, n, reason),
					Entity:   domain.EntityDataset,
					EntityID: dataset.ID,
				})
			}
		}
	}
	return res, nil
}

// NewDefaultRulesEngine returns a rules engine with the publication rules the
// service expects.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(ReleaseIntegrityRule())
	engine.Register(LockConsistencyRule())
	return engine
}
