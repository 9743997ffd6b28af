package liveroom

import (
	"errors"
	"fmt"
)

// ErrorKind classifies session failures for user-facing handling.
type ErrorKind int

const (
	ErrorKindUnknown ErrorKind = iota
	// ErrorKindConfiguration means the application is missing credentials or
	// required settings; the room cannot open at all.
	ErrorKindConfiguration
	// ErrorKindCredential means token issuance failed or the transport
	// rejected the credential. Fatal for the join attempt; a stale credential
	// does not become valid by retrying.
	ErrorKindCredential
	// ErrorKindDevice means a microphone or camera is unavailable or its
	// permission was denied. Non-fatal: the session degrades to
	// listen-only/camera-off.
	ErrorKindDevice
	// ErrorKindAuthorization means a moderation intent was attempted by an
	// unauthorized role. Silently dropped, never surfaced.
	ErrorKindAuthorization
	// ErrorKindTransient means a publish/subscribe call failed for a reason
	// other than device or permission. Logged; retried only on the next
	// genuine role or snapshot change.
	ErrorKindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindConfiguration:
		return "configuration"
	case ErrorKindCredential:
		return "credential"
	case ErrorKindDevice:
		return "device"
	case ErrorKindAuthorization:
		return "authorization"
	case ErrorKindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Sentinel causes surfaced by transport implementations, matched with
// errors.Is when classifying failures.
var (
	ErrDeviceNotFound   = errors.New("media device not found")
	ErrPermissionDenied = errors.New("media device permission denied")
	ErrNotJoined        = errors.New("not joined to a media session")
	ErrRoomEnded        = errors.New("room has ended")
)

// SessionError wraps a failure with its classification and the operation
// that produced it.
type SessionError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func newSessionError(kind ErrorKind, op string, err error) *SessionError {
	return &SessionError{Kind: kind, Op: op, Err: err}
}

// Classify maps an arbitrary error to its ErrorKind. Errors that are not
// SessionErrors and carry no known device cause are treated as transient.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorKindUnknown
	}
	var se *SessionError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, ErrDeviceNotFound) || errors.Is(err, ErrPermissionDenied) {
		return ErrorKindDevice
	}
	return ErrorKindTransient
}

// UserMessage reduces an error to the single human-readable message the
// presentation layer shows. Device and credential failures get a cause
// classification; everything else collapses to a generic message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch Classify(err) {
	case ErrorKindConfiguration:
		return "the room cannot be opened: the application is not configured"
	case ErrorKindCredential:
		return "could not join the room: the session credential was rejected"
	case ErrorKindDevice:
		if errors.Is(err, ErrPermissionDenied) {
			return "microphone or camera permission was denied"
		}
		return "microphone or camera is not available"
	default:
		return "something went wrong with the live session"
	}
}
