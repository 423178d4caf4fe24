package services

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable result code surfaced to the gateway.
type ErrorCode string

const (
	CodeAlreadyClaimedToday     ErrorCode = "ALREADY_CLAIMED_TODAY"
	CodeTrialAlreadyActive      ErrorCode = "TRIAL_ALREADY_ACTIVE"
	CodeTrialAlreadyUsed        ErrorCode = "TRIAL_ALREADY_USED"
	CodeReferralCodeNotFound    ErrorCode = "REFERRAL_CODE_NOT_FOUND"
	CodeReferralAlreadyUsed     ErrorCode = "REFERRAL_ALREADY_USED"
	CodeInvalidReferralCodeSelf ErrorCode = "INVALID_REFERRAL_CODE_SELF"
	CodeBadgeNotEligible        ErrorCode = "BADGE_NOT_ELIGIBLE"
	CodeStorageConflict         ErrorCode = "STORAGE_CONFLICT"
	CodeTransientIO             ErrorCode = "TRANSIENT_IO_ERROR"
)

// EngineError is a terminal, caller-facing outcome. Validation failures and
// lost uniqueness races end up here; they must not be retried automatically.
type EngineError struct {
	Code    ErrorCode
	Message string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func engineErr(code ErrorCode, format string, args ...interface{}) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the taxonomy code from err, or TRANSIENT_IO_ERROR when err
// is not a terminal engine outcome. A failed credit is never reported as a
// success; anything unexplained stays retryable.
func CodeOf(err error) ErrorCode {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return CodeTransientIO
}

// IsTerminal reports whether err is a terminal result rather than a
// retryable storage/network failure.
func IsTerminal(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee)
}
