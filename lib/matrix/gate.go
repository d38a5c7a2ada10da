package matrix

import "errors"

// ErrApprovalIncomplete is returned when thresholds are enforced on a matrix
// that has not been approved.
var ErrApprovalIncomplete = errors.New("benchmark matrix approval is not complete")

// AssertApprovedForThresholdEnforcement fails only when thresholds are
// enforced, unapproved matrices are not allowed and the matrix status is not
// approved. Every other combination passes.
func AssertApprovedForThresholdEnforcement(cfg *Config, enforceThresholds, allowUnapprovedMatrix bool) error {
	if !enforceThresholds || allowUnapprovedMatrix {
		return nil
	}
	if cfg.Approval.Status == StatusApproved {
		return nil
	}
	return &gateError{status: cfg.Approval.Status}
}

type gateError struct {
	status ApprovalStatus
}

func (e *gateError) Error() string {
	return ErrApprovalIncomplete.Error() + " (status " + string(e.status) + "); approve the matrix or allow unapproved matrices to enforce thresholds"
}

func (e *gateError) Unwrap() error {
	return ErrApprovalIncomplete
}
