package collabsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnauthorized matches (via errors.Is) a rejection that ended the session.
var ErrUnauthorized = errors.New("session expired; log in again")

// UnreachableMessage is shown whenever the server could not be reached.
const UnreachableMessage = "server did not respond; make sure the API is running and try again"

// RejectedError is a non-2xx answer from the server.
type RejectedError struct {
	StatusCode int
	Code       string
	Message    string
	// SessionLost is set when the rejection cleared the local session.
	SessionLost bool
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed: %s", http.StatusText(e.StatusCode))
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrUnauthorized && e.SessionLost
}

// UnreachableError means no response arrived: dial failure, reset or timeout.
type UnreachableError struct {
	Err error
}

func (e *UnreachableError) Error() string { return UnreachableMessage }

func (e *UnreachableError) Unwrap() error { return e.Err }

// IsNotFound reports a 404 rejection.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsForbidden reports a 403 rejection.
func IsForbidden(err error) bool {
	return hasStatus(err, http.StatusForbidden)
}

// IsConflict reports a 409 rejection.
func IsConflict(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

func hasStatus(err error, status int) bool {
	var re *RejectedError
	return errors.As(err, &re) && re.StatusCode == status
}

// errorBody accepts both {"message": ...} and {"error": {"message": ...}}.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newRejected(status int, raw []byte) *RejectedError {
	e := &RejectedError{StatusCode: status}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return e
	}
	e.Code, e.Message = body.Code, strings.TrimSpace(body.Message)
	if body.Error != nil {
		if e.Code == "" {
			e.Code = body.Error.Code
		}
		if e.Message == "" {
			e.Message = strings.TrimSpace(body.Error.Message)
		}
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(body.Detail)
	}
	return e
}

// fallback fills in msg when the server gave no message of its own.
func fallback(err error, msg string) error {
	var re *RejectedError
	if errors.As(err, &re) && re.Message == "" {
		re.Message = msg
	}
	return err
}
