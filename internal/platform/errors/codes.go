package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Auth errors
	CodeAuthMissingCredential   Code = "AUTH_MISSING_CREDENTIAL"
	CodeAuthInvalidToken        Code = "AUTH_INVALID_TOKEN"
	CodeAuthIdentifierMismatch  Code = "AUTH_IDENTIFIER_MISMATCH"
	CodeAuthParticipantNotFound Code = "AUTH_PARTICIPANT_NOT_FOUND"

	// Canvas errors
	CodeCanvasOutOfBounds  Code = "CANVAS_OUT_OF_BOUNDS"
	CodeCanvasInvalidColor Code = "CANVAS_INVALID_COLOR"

	// Quota errors
	CodeQuotaExhausted          Code = "QUOTA_EXHAUSTED"
	CodeQuotaParticipantUnknown Code = "QUOTA_PARTICIPANT_UNKNOWN"

	// Storage errors
	CodeNotFound           Code = "NOT_FOUND"
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"

	// Request errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
)

// WireCode maps a domain code to the error code carried on websocket error
// frames. Codes are already wire-safe strings, so unknown codes pass through.
func (c Code) WireCode() string {
	if c == "" {
		return string(CodeUnknown)
	}
	return string(c)
}

// Retryable reports whether a request that failed with this code can be
// safely replayed by the client. Placements are idempotent by coordinate, so
// transient storage failures are replayable.
func (c Code) Retryable() bool {
	return c == CodeStorageUnavailable
}
