// Package domain defines the persistent entities, value types, and rule
// evaluation primitives of the archivecore publication engine.
package domain

import (
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityDataset identifies a dataset aggregate.
	EntityDataset EntityType = "dataset"
	// EntityDataverse identifies a dataverse container record.
	EntityDataverse EntityType = "dataverse"
	// EntityDatasetLock identifies a dataset lock record.
	EntityDatasetLock EntityType = "dataset_lock"
	// EntityVersionUser identifies a dataset-version/user contribution record.
	EntityVersionUser EntityType = "version_user"
)

// VersionState enumerates the lifecycle states of a dataset version.
type VersionState string

// Canonical dataset version states.
const (
	// StateDraft is the mutable pre-publication state.
	StateDraft VersionState = "DRAFT"
	// StateReleased marks a version published but not yet archived. Imported
	// releases may enter the engine already in this state.
	StateReleased VersionState = "RELEASED"
	// StateLongtermArchived is the terminal state written by the finalize
	// processor.
	StateLongtermArchived VersionState = "LONGTERM_ARCHIVED"
	// StateDeaccessioned marks a version withdrawn from public view.
	StateDeaccessioned VersionState = "DEACCESSIONED"
)

// LockReason enumerates why a dataset is currently non-editable.
type LockReason string

// Lock reasons. Ingest, EditInProgress and InReview are installed by other
// subsystems; the engine only observes them.
const (
	LockFinalizePublication LockReason = "finalizePublication"
	LockWorkflow            LockReason = "Workflow"
	LockIngest              LockReason = "Ingest"
	LockEditInProgress      LockReason = "EditInProgress"
	LockInReview            LockReason = "InReview"
	// LockFileValidationFailed is a terminal diagnostic lock; clearing it
	// requires operator intervention.
	LockFileValidationFailed LockReason = "FileValidationFailed"
)

// ChecksumType names the digest algorithm recorded for a data file.
type ChecksumType string

// Supported checksum algorithms.
const (
	ChecksumMD5    ChecksumType = "MD5"
	ChecksumSHA1   ChecksumType = "SHA-1"
	ChecksumSHA256 ChecksumType = "SHA-256"
)

// Checksum pairs a digest algorithm with its hex-encoded value.
type Checksum struct {
	Type  ChecksumType `json:"type"`
	Value string       `json:"value"`
}

// Embargo withholds a file until its availability date.
type Embargo struct {
	DateAvailable time.Time `json:"date_available"`
	Reason        string    `json:"reason,omitempty"`
}

// License identifies a standard license attached to a version's terms.
type License struct {
	Name string `json:"name"`
	URI  string `json:"uri,omitempty"`
}

// TermsOfUseAndAccess carries the usage terms of a dataset version. A version
// is publishable only when it carries a license or non-empty custom terms.
type TermsOfUseAndAccess struct {
	License           *License `json:"license,omitempty"`
	TermsOfUse        string   `json:"terms_of_use,omitempty"`
	FileAccessRequest bool     `json:"file_access_request"`
}

// HasLicenseOrTerms reports whether the terms satisfy the publication
// precondition.
func (t *TermsOfUseAndAccess) HasLicenseOrTerms() bool {
	if t == nil {
		return false
	}
	return t.License != nil || t.TermsOfUse != ""
}

// FieldTypeSubject is the field type name whose controlled-vocabulary values
// are propagated up the dataverse tree on publication.
const FieldTypeSubject = "subject"

// DatasetField is a typed metadata field of a dataset version.
type DatasetField struct {
	TypeName string `json:"type_name"`
	// Values holds free-text field values.
	Values []string `json:"values,omitempty"`
	// VocabularyValues holds controlled-vocabulary entries.
	VocabularyValues []string `json:"vocabulary_values,omitempty"`
}

// FileMetadata is the per-version metadata record of a data file.
type FileMetadata struct {
	Label      string `json:"label"`
	Restricted bool   `json:"restricted"`
	VersionID  string `json:"version_id"`
}

// DataFile is a physical file owned by a dataset.
type DataFile struct {
	ID            string     `json:"id"`
	StorageDriver string     `json:"storage_driver"`
	StorageKey    string     `json:"storage_key"`
	Size          int64      `json:"size_bytes"`
	Checksum      Checksum   `json:"checksum"`
	Restricted    bool       `json:"restricted"`
	// PublicationDate is nil for files that have never been published.
	PublicationDate *time.Time    `json:"publication_date,omitempty"`
	Embargo         *Embargo      `json:"embargo,omitempty"`
	Metadata        *FileMetadata `json:"metadata,omitempty"`
}

// DatasetVersion is a single version of a dataset. The engine only mutates
// the latest version.
type DatasetVersion struct {
	ID    string       `json:"id"`
	State VersionState `json:"state"`
	// MajorVersion is 0 until the coordinator assigns a version number.
	MajorVersion        int64                `json:"major_version"`
	MinorVersion        int64                `json:"minor_version"`
	ReleaseTime         *time.Time           `json:"release_time,omitempty"`
	LastUpdateTime      time.Time            `json:"last_update_time"`
	Terms               *TermsOfUseAndAccess `json:"terms,omitempty"`
	ExternalStatusLabel string               `json:"external_status_label,omitempty"`
	Fields              []DatasetField       `json:"fields,omitempty"`
}

// IsDraft reports whether the version is still in the mutable draft state.
func (v *DatasetVersion) IsDraft() bool { return v.State == StateDraft }

// IsReleased reports whether the version has left the draft state through
// publication.
func (v *DatasetVersion) IsReleased() bool {
	return v.State == StateReleased || v.State == StateLongtermArchived
}

// DatasetLock associates a dataset with a named lock. At most one lock per
// reason may exist on a dataset.
type DatasetLock struct {
	ID        string     `json:"id"`
	DatasetID string     `json:"dataset_id"`
	Reason    LockReason `json:"reason"`
	UserID    string     `json:"user_id"`
	Info      string     `json:"info,omitempty"`
	// WorkflowInvocationID is set on Workflow locks only.
	WorkflowInvocationID string    `json:"workflow_invocation_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// Permission enumerates the rights relevant to publication notifications.
type Permission string

// Permissions checked by the engine.
const (
	PermissionPublishDataset         Permission = "PublishDataset"
	PermissionViewUnpublishedDataset Permission = "ViewUnpublishedDataset"
	PermissionDownloadFile           Permission = "DownloadFile"
)

// RoleAssignment grants a set of permissions to an assignee, scoped to the
// owning dataset or to a single file within it.
type RoleAssignment struct {
	AssigneeID  string       `json:"assignee_id"`
	Permissions []Permission `json:"permissions"`
	// FileID narrows the assignment to one file; empty means dataset scope.
	FileID string `json:"file_id,omitempty"`
}

// HasPermission reports whether the assignment carries the given permission.
func (r RoleAssignment) HasPermission(p Permission) bool {
	for _, got := range r.Permissions {
		if got == p {
			return true
		}
	}
	return false
}

// Dataset is the root aggregate driven through the publication process.
type Dataset struct {
	ID string `json:"id"`
	// GlobalID is the stable persistent identifier, e.g. "doi:10.5072/FK2/ABCDE".
	GlobalID string `json:"global_id"`
	// OwnerID references the parent dataverse.
	OwnerID string `json:"owner_id"`
	// PublicationDate is nil for datasets that have never been published.
	PublicationDate *time.Time `json:"publication_date,omitempty"`
	// EmbargoCitationDate is the latest embargo availability date over the
	// files of the first published version, when that feature is enabled.
	EmbargoCitationDate *time.Time `json:"embargo_citation_date,omitempty"`
	ReleaseUserID       string     `json:"release_user_id,omitempty"`
	ModificationTime    time.Time  `json:"modification_time"`
	FileAccessRequest   bool       `json:"file_access_request"`
	ThumbnailFileID     string     `json:"thumbnail_file_id,omitempty"`
	// PrivateURLToken is non-empty while an unauthenticated review link exists.
	PrivateURLToken string           `json:"private_url_token,omitempty"`
	Versions        []DatasetVersion `json:"versions"`
	Files           []DataFile       `json:"files,omitempty"`
	Locks           []DatasetLock    `json:"locks,omitempty"`
	RoleAssignments []RoleAssignment `json:"role_assignments,omitempty"`
}

// LatestVersion returns a pointer to the most recent version, or nil when the
// dataset has no versions. Versions are ordered oldest first.
func (d *Dataset) LatestVersion() *DatasetVersion {
	if len(d.Versions) == 0 {
		return nil
	}
	return &d.Versions[len(d.Versions)-1]
}

// VersionNumber returns the highest major version among released versions.
func (d *Dataset) VersionNumber() int64 {
	var major int64
	for i := range d.Versions {
		v := &d.Versions[i]
		if v.IsReleased() && v.MajorVersion > major {
			major = v.MajorVersion
		}
	}
	return major
}

// IsLockedFor reports whether a lock with the given reason is present.
func (d *Dataset) IsLockedFor(reason LockReason) bool {
	return d.LockFor(reason) != nil
}

// LockFor returns the lock with the given reason, or nil.
func (d *Dataset) LockFor(reason LockReason) *DatasetLock {
	for i := range d.Locks {
		if d.Locks[i].Reason == reason {
			return &d.Locks[i]
		}
	}
	return nil
}

// FindFile returns a pointer to the file with the given id, or nil.
func (d *Dataset) FindFile(id string) *DataFile {
	for i := range d.Files {
		if d.Files[i].ID == id {
			return &d.Files[i]
		}
	}
	return nil
}

// DownloadSize is the aggregate size of all files, used by the checksum
// validator's dataset-level size gate.
func (d *Dataset) DownloadSize() int64 {
	var total int64
	for i := range d.Files {
		total += d.Files[i].Size
	}
	return total
}

// Dataverse is a hierarchical container that owns datasets and child
// dataverses, forming a rooted tree.
type Dataverse struct {
	ID    string `json:"id"`
	Alias string `json:"alias"`
	Name  string `json:"name"`
	// OwnerID references the parent dataverse; empty for the root.
	OwnerID         string     `json:"owner_id,omitempty"`
	PublicationDate *time.Time `json:"publication_date,omitempty"`
	// Subjects is the accumulated controlled-vocabulary subject set.
	Subjects []string `json:"subjects,omitempty"`
}

// IsReleased reports whether the dataverse has been published.
func (dv *Dataverse) IsReleased() bool { return dv.PublicationDate != nil }

// HasSubject reports whether the subject set already contains value.
func (dv *Dataverse) HasSubject(value string) bool {
	for _, s := range dv.Subjects {
		if s == value {
			return true
		}
	}
	return false
}

// User identifies the caller of a command.
type User struct {
	// Identifier is the account identifier, conventionally "@name".
	Identifier string `json:"identifier"`
	Superuser  bool   `json:"superuser,omitempty"`
}

// Authenticated reports whether the user carries a real identity.
func (u User) Authenticated() bool { return u.Identifier != "" }

// DatasetVersionUser records a user's contribution against a dataset version.
type DatasetVersionUser struct {
	DatasetID      string    `json:"dataset_id"`
	VersionID      string    `json:"version_id"`
	UserID         string    `json:"user_id"`
	LastUpdateDate time.Time `json:"last_update_date"`
}

// FailureLogEntry is a persistent record of a non-fatal post-commit failure,
// keyed by dataset.
type FailureLogEntry struct {
	DatasetID  string    `json:"dataset_id"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions captured for rule evaluation and audit.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity classifies a rule violation.
type Severity string

// Violation severities.
const (
	// SeverityBlock aborts the enclosing transaction.
	SeverityBlock Severity = "block"
	// SeverityWarn is reported without aborting.
	SeverityWarn Severity = "warn"
)
