package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"archivecore/pkg/domain"
)

// validateMetadataExternally runs the configured validation executable with
// the serialized dataset on stdin. The dataset is accepted when the process
// exits zero and prints the success marker; anything else surfaces the
// configured rejection message. Superusers skip validation when the admin
// override is enabled.
func (s *Service) validateMetadataExternally(ctx context.Context, ds domain.Dataset, req Request) error {
	if !s.settings.ExternalValidationEnabled {
		return nil
	}
	if req.User.Superuser && s.settings.ExternalValidationAdminOverride {
		s.log.Infow("external validation skipped by admin override", "dataset", ds.GlobalID, "user", req.User.Identifier)
		return nil
	}
	if s.settings.ValidationExecutable == "" {
		return fmt.Errorf("external validation enabled but no executable configured")
	}

	payload, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("serialize dataset for validation: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.settings.ValidationExecutable)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		s.log.Warnw("external validation rejected dataset",
			"dataset", ds.GlobalID, "executable", s.settings.ValidationExecutable, "error", err)
		return &ValidationRejectedError{Message: s.settings.ValidationFailureMessage}
	}
	if marker := s.settings.ValidationSuccessMarker; marker != "" && !strings.Contains(stdout.String(), marker) {
		s.log.Warnw("external validation output missing success marker",
			"dataset", ds.GlobalID, "executable", s.settings.ValidationExecutable)
		return &ValidationRejectedError{Message: s.settings.ValidationFailureMessage}
	}
	return nil
}
