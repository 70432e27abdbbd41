package domain

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// ValidationError reports malformed input rejected before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return "validation: " + e.Field + ": " + e.Message
}

// AuthReason classifies why a session is not usable.
type AuthReason int

const (
	Unauthenticated AuthReason = iota + 1
	InvalidToken
	Expired
)

func (r AuthReason) String() string {
	switch r {
	case Unauthenticated:
		return "unauthenticated"
	case InvalidToken:
		return "invalid token"
	case Expired:
		return "expired"
	}
	return "auth reason " + strconv.Itoa(int(r))
}

// AuthError means the session is invalid and the user has to log in again.
type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason.String()
}

func (e *AuthError) Unwrap() error { return e.Err }

// RemoteError reports a non-success answer from the remote service. A zero
// StatusCode means the request never produced a response (transport failure,
// timeout) or the response could not be decoded.
type RemoteError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return "remote: " + e.Message
	}
	return fmt.Sprintf("remote: %d: %s", e.StatusCode, e.Message)
}

func (e *RemoteError) Unwrap() error { return e.Err }

const maxErrorMessage = 512

// RemoteErrorFromBody builds a RemoteError from a non-success response body.
// JSON bodies of the form {"message": ...} or {"error": ...} contribute their
// text; anything else is used verbatim, truncated.
func RemoteErrorFromBody(status int, body []byte) *RemoteError {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := ""
	if err := sonic.ConfigStd.Unmarshal(body, &payload); err == nil {
		msg = payload.Message
		if msg == "" {
			msg = payload.Error
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if len(msg) > maxErrorMessage {
		msg = msg[:maxErrorMessage]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &RemoteError{StatusCode: status, Message: msg}
}

// SyncError means optimistic local state diverged from the remote and had to
// be reconciled.
type SyncError struct {
	TaskID     string
	RolledBack bool
	Err        error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync: task %s: %v", e.TaskID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
