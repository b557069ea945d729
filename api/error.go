package api

import (
	"errors"
	"fmt"
)

// Error codes the gateway attaches to failed calls. Callers branch on these
// to pick a recovery path instead of showing a generic failure.
const CODE_FACE_CONSENT_REQUIRED = "face_consent_required"
const CODE_MISSING_ANGLES = "missing_angles"

// Error is the gateway's error contract: an HTTP-like status, a machine
// code and a human-readable message.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway: %d: %s", e.Status, e.Message)
}

// IsInsufficientCredits reports the 402 the gateway returns when the user's
// search credits are used up.
func IsInsufficientCredits(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Status == 402
}

// IsMissingConsent reports the 403 returned when a face search is attempted
// without a granted consent.
func IsMissingConsent(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Status == 403 && ae.Code == CODE_FACE_CONSENT_REQUIRED
}

// IsIncompleteEnrollment reports the 400 returned when the biometric
// enrollment is missing face angles.
func IsIncompleteEnrollment(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Status == 400 && ae.Code == CODE_MISSING_ANGLES
}
