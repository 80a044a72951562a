package collabsdk

import "collab/internal/domain"

// Resource shapes are shared with the rest of the module.
type (
	User       = domain.UserRef
	Project    = domain.Project
	Task       = domain.Task
	Invitation = domain.Invitation
	TaskStatus = domain.TaskStatus
	Date       = domain.Date
	Event      = domain.Event
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Token     string `json:"token"`
}

// Session converts a successful response into the session record.
func (r AuthResponse) Session() domain.Session {
	return domain.Session{
		UserID:    r.ID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Token:     r.Token,
	}
}

type CreateProjectRequest struct {
	Name         string   `json:"name"`
	Subject      string   `json:"subject"`
	Deadline     *Date    `json:"deadline,omitempty"`
	MemberEmails []string `json:"memberEmails"`
}

type CreateTaskRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Deadline     *Date  `json:"deadline,omitempty"`
	ProjectID    int64  `json:"projectId"`
	AssignedToID int64  `json:"assignedToId"`
}

// UpdateTaskRequest replaces the editable fields of a task.
type UpdateTaskRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Deadline     *Date  `json:"deadline,omitempty"`
	AssignedToID int64  `json:"assignedToId"`
}

type respondRequest struct {
	Accept bool `json:"accept"`
}
