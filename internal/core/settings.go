package core

// Settings groups the feature flags and limits that shape a publication run.
// Values are read once per command; toggling a flag mid-operation does not
// affect calls already past the point where the flag was consulted.
type Settings struct {
	// ExternalValidationEnabled gates the pre-publication metadata validator.
	ExternalValidationEnabled bool
	// ExternalValidationAdminOverride lets superusers bypass external
	// validation when it is enabled.
	ExternalValidationAdminOverride bool
	// ValidationExecutable is the program spawned by the metadata validator.
	// The dataset is serialized as JSON on its standard input.
	ValidationExecutable string
	// ValidationSuccessMarker must appear on the executable's standard output
	// for the dataset to be accepted.
	ValidationSuccessMarker string
	// ValidationFailureMessage is surfaced to the caller on rejection.
	ValidationFailureMessage string

	// FileValidationEnabled gates physical checksum validation on first
	// publication of a major version.
	FileValidationEnabled bool
	// DatasetSizeLimit skips checksum validation entirely for datasets whose
	// aggregate download size exceeds it. -1 means unbounded.
	DatasetSizeLimit int64
	// FileSizeLimit skips individual files larger than it. -1 means unbounded.
	FileSizeLimit int64

	// EmbargoCitationDateEnabled stamps the dataset citation date from the
	// latest file embargo on first publication.
	EmbargoCitationDateEnabled bool
}

// DefaultSettings returns the engine defaults: validation features off, size
// limits unbounded.
func DefaultSettings() Settings {
	return Settings{
		ValidationSuccessMarker:  "OK",
		ValidationFailureMessage: "This dataset cannot be archived because it failed an external metadata validation step.",
		DatasetSizeLimit:         -1,
		FileSizeLimit:            -1,
	}
}
