package core

import "github.com/samber/oops"

// Error codes shared across the authentication pipeline and the account
// store. Every error crossing a package boundary carries one of these, so
// callers branch on ErrorCode instead of string-matching messages.
const (
	// Retryable transport failure (timeout, DNS, 5xx after bounded retries).
	CodeTransientNetwork = "TRANSIENT_NETWORK"

	// Interim device-flow states. Not failures: the poll loop absorbs them.
	CodeAuthPending = "AUTH_PENDING"
	CodeSlowDown    = "SLOW_DOWN"

	// Terminal OAuth outcomes. The interactive/device flow must restart.
	CodeInvalidGrant      = "INVALID_GRANT"
	CodeAccessDenied      = "ACCESS_DENIED"
	CodeDeviceCodeExpired = "DEVICE_CODE_EXPIRED"

	// XSTS denial. The raw XErr value rides along in the "xerr" attribute.
	CodeXboxAuthDenied = "XBOX_AUTH_DENIED"

	// Game-service terminal outcomes.
	CodeNotEntitled = "NOT_ENTITLED"
	CodeNoProfile   = "NO_PROFILE"

	// Stored refresh token rejected; the account survives but is flagged.
	CodeReauthRequired = "REAUTH_REQUIRED"

	// Account file read/write failure. In-memory state keeps serving.
	CodePersistence = "PERSISTENCE"
)

// ErrorCode extracts the pipeline code from err, or "" for nil and
// untagged errors.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if o, ok := oops.AsOops(err); ok {
		return o.Code()
	}
	return ""
}

// IsCode reports whether err carries the given pipeline code.
func IsCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}
