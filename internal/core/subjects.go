package core

import (
	"archivecore/pkg/domain"
)

// propagateSubjects merges the controlled-vocabulary values of the version's
// subject field into every dataverse on the ownership path from the dataset
// to the root. It returns the ids of dataverses whose subject set actually
// grew, for post-commit re-indexing. Only the first subject field is
// processed; versions are expected to carry at most one.
func propagateSubjects(tx domain.Transaction, ds domain.Dataset) ([]string, error) {
	version := ds.LatestVersion()
	if version == nil {
		return nil, nil
	}
	var field *domain.DatasetField
	for i := range version.Fields {
		if version.Fields[i].TypeName == domain.FieldTypeSubject {
			field = &version.Fields[i]
			break
		}
	}
	if field == nil || len(field.VocabularyValues) == 0 {
		return nil, nil
	}

	var grown []string
	ownerID := ds.OwnerID
	for ownerID != "" {
		dv, ok := tx.FindDataverse(ownerID)
		if !ok {
			break
		}
		var missing []string
		for _, value := range field.VocabularyValues {
			if !dv.HasSubject(value) {
				missing = append(missing, value)
			}
		}
		if len(missing) > 0 {
			if _, err := tx.UpdateDataverse(dv.ID, func(target *domain.Dataverse) error {
				for _, value := range missing {
					if !target.HasSubject(value) {
						target.Subjects = append(target.Subjects, value)
					}
				}
				return nil
			}); err != nil {
				return nil, err
			}
			grown = append(grown, dv.ID)
		}
		ownerID = dv.OwnerID
	}
	return grown, nil
}
