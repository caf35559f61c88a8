package flasher

import "errors"

var (
	// ErrVerificationMismatch means the device read-back did not match the
	// image as written. The destination must be re-flashed; re-running
	// verification alone cannot succeed.
	ErrVerificationMismatch = errors.New("verification mismatch")
)
