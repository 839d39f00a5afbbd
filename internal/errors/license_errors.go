package errors

import "errors"

// License error taxonomy. The classes matter more than the individual
// values: transient errors are retried by the sync loop, rejected and
// integrity errors are terminal and downgrade the feature tier
// immediately.
var (
	// Transient: authority unreachable, retry on the next sync tick
	ErrNetworkError = errors.New("license authority unreachable")

	// Authority-rejected: key invalid or revoked, terminal for that key
	ErrLicenseRejected = errors.New("license rejected by authority")

	// Local-integrity: tamper, hardware mismatch, or malformed cache;
	// treated identically to "never activated"
	ErrIntegrityFailure = errors.New("local license integrity failure")

	// Expired: time-based, downgrade is mandatory
	ErrLicenseExpired = errors.New("license expired")

	ErrLicenseNotActivated  = errors.New("license not activated")
	ErrInvalidLicenseKey    = errors.New("invalid license key")
	ErrInvalidLicenseFormat = errors.New("invalid license key format")
)

// IsTransient reports whether an error should be retried by the sync loop
// rather than downgrading the feature tier.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetworkError)
}

// IsTerminal reports whether an error permanently invalidates the cached
// license for the current key.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrLicenseRejected) ||
		errors.Is(err, ErrIntegrityFailure) ||
		errors.Is(err, ErrLicenseExpired)
}
