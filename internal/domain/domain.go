package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskCanceled   TaskStatus = "CANCELED"
)

// TaskStatuses lists every status in display order.
var TaskStatuses = []TaskStatus{TaskPending, TaskInProgress, TaskCompleted, TaskCanceled}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskCanceled:
		return true
	}
	return false
}

// InvitationStatus is the state of a project invitation. Only PENDING is not terminal.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationRejected InvitationStatus = "REJECTED"
)

// UserRef is the embedded, immutable view of a user inside projects and tasks.
type UserRef struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// FullName joins first and last name.
func (u UserRef) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Session is the authenticated identity of this client and its bearer credential.
type Session struct {
	UserID    int64  `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Token     string `json:"token"`
}

// Valid reports whether the session carries enough to authenticate and compute roles.
func (s Session) Valid() bool {
	return s.Token != "" && s.UserID != 0
}

// User returns the session identity as a UserRef.
func (s Session) User() UserRef {
	return UserRef{ID: s.UserID, FirstName: s.FirstName, LastName: s.LastName, Email: s.Email}
}

type Project struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Subject  string    `json:"subject"`
	Deadline *Date     `json:"deadline,omitempty"`
	Creator  UserRef   `json:"creator"`
	Admins   []UserRef `json:"admins"`
	Members  []UserRef `json:"members"`
}

type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Deadline    *Date      `json:"deadline,omitempty"`
	ProjectID   int64      `json:"projectId"`
	ProjectName string     `json:"projectName,omitempty"`
	AssignedTo  UserRef    `json:"assignedTo"`
	Status      TaskStatus `json:"status"`
}

type Invitation struct {
	ID             int64            `json:"id"`
	ProjectID      int64            `json:"projectId"`
	ProjectName    string           `json:"projectName"`
	ProjectSubject string           `json:"projectSubject"`
	InviterName    string           `json:"inviterName"`
	CreatedAt      time.Time        `json:"createdAt"`
	Status         InvitationStatus `json:"status"`
}

const dateLayout = "2006-01-02"

// Date is a calendar date without time of day. It encodes as "2006-01-02" and
// decodes either that form or an RFC 3339 timestamp.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts "2006-01-02" or RFC 3339.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return NewDate(t), nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Event is one entry of the server's append-only activity log.
type Event struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts"`
	Type       string          `json:"type"`
	ProjectID  int64           `json:"projectId,omitempty"`
	EntityKind string          `json:"entityKind"`
	EntityID   int64           `json:"entityId,omitempty"`
	ActorID    int64           `json:"actorId,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}
