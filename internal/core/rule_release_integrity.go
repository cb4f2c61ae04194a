package core

import (
	"context"
	"fmt"

	"archivecore/pkg/domain"
)

// ReleaseIntegrityRule blocks transactions that would leave a long-term
// archived version without the metadata a release requires: usage terms, an
// assigned major version, and a release timestamp.
func ReleaseIntegrityRule() domain.Rule {
	return releaseIntegrityRule{}
}

type releaseIntegrityRule struct{}

func (releaseIntegrityRule) Name() string { return "release_integrity" }

func (releaseIntegrityRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityDataset || change.Action == domain.ActionDelete {
			continue
		}
		dataset, ok := change.After.(domain.Dataset)
		if !ok {
			continue
		}
		version := dataset.LatestVersion()
		if version == nil || version.State != domain.StateLongtermArchived {
			continue
		}
		if !version.Terms.HasLicenseOrTerms() {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "release_integrity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("dataset %s released without a license or custom terms of use", dataset.ID),
				Entity:   domain.EntityDataset,
				EntityID: dataset.ID,
			})
		}
		if version.MajorVersion < 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "release_integrity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("dataset %s released without an assigned version number", dataset.ID),
				Entity:   domain.EntityDataset,
				EntityID: dataset.ID,
			})
		}
		if version.ReleaseTime == nil {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "release_integrity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("dataset %s released without a release time", dataset.ID),
				Entity:   domain.EntityDataset,
				EntityID: dataset.ID,
			})
		}
	}
	return res, nil
}
