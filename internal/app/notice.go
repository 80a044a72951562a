package app

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"collab/internal/access"
	"collab/internal/validate"
	"collab/internal/workflow"
	collabsdk "collab/sdk/go"
)

// LoginSignal is raised when the server refused the session's credential and
// the user has to log in again.
type LoginSignal struct {
	mu      sync.Mutex
	pending bool
}

func (s *LoginSignal) Raise() {
	s.mu.Lock()
	s.pending = true
	s.mu.Unlock()
}

func (s *LoginSignal) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Consume reports whether the signal was pending and resets it.
func (s *LoginSignal) Consume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.pending
	s.pending = false
	return was
}

// Notice turns an operation error into the one-line message shown to the
// user. Superseded and caller-canceled operations produce no message.
func Notice(err error) string {
	if err == nil || errors.Is(err, ErrSuperseded) || errors.Is(err, context.Canceled) {
		return ""
	}
	var (
		verr       *validate.ValidationError
		rejected   *collabsdk.RejectedError
		unreach    *collabsdk.UnreachableError
		forbidden  *access.ForbiddenError
		transition *workflow.TransitionError
	)
	switch {
	case errors.Is(err, ErrNotLoggedIn):
		return "you are not logged in; run `collab login`"
	case errors.Is(err, collabsdk.ErrUnauthorized):
		return "your session has expired; run `collab login` to continue"
	case errors.As(err, &verr):
		return "invalid input: " + verr.Error()
	case errors.As(err, &unreach):
		return collabsdk.UnreachableMessage
	case errors.As(err, &rejected):
		return rejected.Error()
	case errors.As(err, &forbidden), errors.As(err, &transition):
		return err.Error()
	default:
		return err.Error()
	}
}

// Report logs err for developers and returns its user notice.
func (c *Client) Report(op string, err error) string {
	msg := Notice(err)
	if msg != "" {
		c.log.Warn("operation failed", zap.String("op", op), zap.Error(err))
	}
	return msg
}
