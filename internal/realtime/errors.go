package realtime

import (
	"errors"
	"fmt"
)

// Stage identifies which part of the session lifecycle an error came from.
// Each stage maps to a distinct user-facing failure message and retryability.
type Stage string

const (
	StageCredential Stage = "credential"
	StageAudio      Stage = "audio"
	StageNegotiate  Stage = "negotiate"
	StageTool       Stage = "tool"
	StageTransport  Stage = "transport"
)

// SessionError wraps a lifecycle failure with its stage.
type SessionError struct {
	Stage Stage
	Err   error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// CredentialError covers failures minting or validating the ephemeral
// realtime credential. Not retryable without operator action.
func CredentialError(err error) *SessionError {
	return &SessionError{Stage: StageCredential, Err: err}
}

// PermissionError covers failures attaching the audio capture pipeline.
func PermissionError(err error) *SessionError {
	return &SessionError{Stage: StageAudio, Err: err}
}

// NegotiationError covers peer connection and SDP exchange failures.
func NegotiationError(err error) *SessionError {
	return &SessionError{Stage: StageNegotiate, Err: err}
}

// ToolExecutionError covers tool handler failures. These are never fatal to
// the session; they are reported to the model as structured results.
func ToolExecutionError(err error) *SessionError {
	return &SessionError{Stage: StageTool, Err: err}
}

// TransportClosedError covers sends attempted after the data channel closed.
// Callers swallow it after logging; a closed transport means the session is
// already over.
func TransportClosedError(err error) *SessionError {
	return &SessionError{Stage: StageTransport, Err: err}
}

// StageOf extracts the lifecycle stage from an error chain, or "" if the
// error did not come from the session lifecycle.
func StageOf(err error) Stage {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
