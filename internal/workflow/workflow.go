// Package workflow holds the task status model: which shortcuts a view offers
// for a status, and which transitions a status update may perform.
package workflow

import (
	"fmt"
	"strings"

	"collab/internal/domain"
)

// Shortcut is a one-step status change offered next to a task.
type Shortcut struct {
	Name   string
	Target domain.TaskStatus
}

var (
	Start    = Shortcut{Name: "start", Target: domain.TaskInProgress}
	Complete = Shortcut{Name: "complete", Target: domain.TaskCompleted}
	Cancel   = Shortcut{Name: "cancel", Target: domain.TaskCanceled}
	Restart  = Shortcut{Name: "restart", Target: domain.TaskInProgress}
)

// Shortcuts returns the contextual actions for a task in status s.
func Shortcuts(s domain.TaskStatus) []Shortcut {
	switch s {
	case domain.TaskPending:
		return []Shortcut{Start, Cancel}
	case domain.TaskInProgress:
		return []Shortcut{Complete, Cancel}
	case domain.TaskCompleted, domain.TaskCanceled:
		return []Shortcut{Restart}
	default:
		return nil
	}
}

// ShortcutFor looks up a shortcut by name for a task in status s.
func ShortcutFor(s domain.TaskStatus, name string) (Shortcut, bool) {
	for _, sc := range Shortcuts(s) {
		if sc.Name == name {
			return sc, true
		}
	}
	return Shortcut{}, false
}

// ParseStatus normalizes user input ("in_progress", "IN-PROGRESS") to a status.
func ParseStatus(s string) (domain.TaskStatus, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	st := domain.TaskStatus(norm)
	if !st.Valid() {
		return "", fmt.Errorf("invalid status %q (PENDING, IN_PROGRESS, COMPLETED, CANCELED)", s)
	}
	return st, nil
}

// TransitionError reports a status change the active policy refuses.
type TransitionError struct {
	From, To domain.TaskStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move task from %s to %s", e.From, e.To)
}

// Policy decides whether a status update from one status to another is allowed.
type Policy struct {
	strict bool
}

// Permissive accepts any valid target status from any status.
func Permissive() Policy { return Policy{} }

// Strict accepts only the transitions in the table below.
func Strict() Policy { return Policy{strict: true} }

// FromConfig picks the policy for the strict_transitions setting.
func FromConfig(strict bool) Policy {
	if strict {
		return Strict()
	}
	return Permissive()
}

func (p Policy) IsStrict() bool { return p.strict }

var strictTable = map[domain.TaskStatus][]domain.TaskStatus{
	domain.TaskPending:    {domain.TaskInProgress, domain.TaskCanceled},
	domain.TaskInProgress: {domain.TaskCompleted, domain.TaskCanceled},
	domain.TaskCompleted:  {domain.TaskInProgress},
	domain.TaskCanceled:   {domain.TaskInProgress},
}

// Check returns nil when the update is allowed.
func (p Policy) Check(from, to domain.TaskStatus) error {
	if !to.Valid() {
		return fmt.Errorf("invalid status %q", to)
	}
	if !p.strict {
		return nil
	}
	for _, allowed := range strictTable[from] {
		if allowed == to {
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}

// Targets lists the statuses reachable from s under the policy.
func (p Policy) Targets(s domain.TaskStatus) []domain.TaskStatus {
	var out []domain.TaskStatus
	for _, st := range domain.TaskStatuses {
		if st == s {
			continue
		}
		if p.Check(s, st) == nil {
			out = append(out, st)
		}
	}
	return out
}
