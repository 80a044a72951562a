package server

import (
	"encoding/json"
	"time"

	"collab/internal/domain"
)

// Request payloads

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

type CreateProjectRequest struct {
	Name         string   `json:"name"`
	Subject      string   `json:"subject"`
	Deadline     string   `json:"deadline,omitempty" example:"2026-12-31"`
	MemberEmails []string `json:"memberEmails,omitempty"`
}

type CreateTaskRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Deadline     string `json:"deadline,omitempty" example:"2026-12-31"`
	ProjectID    int64  `json:"projectId"`
	AssignedToID int64  `json:"assignedToId"`
}

type UpdateTaskRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Deadline     string `json:"deadline,omitempty" example:"2026-12-31"`
	AssignedToID int64  `json:"assignedToId"`
}

type RespondInvitationRequest struct {
	Accept bool `json:"accept"`
}

// Response payloads

type AuthResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Token     string `json:"token"`
}

type UserResponse struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

type ProjectResponse struct {
	ID       int64          `json:"id"`
	Name     string         `json:"name"`
	Subject  string         `json:"subject"`
	Deadline string         `json:"deadline,omitempty" format:"date"`
	Creator  UserResponse   `json:"creator"`
	Admins   []UserResponse `json:"admins"`
	Members  []UserResponse `json:"members"`
}

type TaskResponse struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Deadline    string       `json:"deadline,omitempty" format:"date"`
	ProjectID   int64        `json:"projectId"`
	ProjectName string       `json:"projectName,omitempty"`
	AssignedTo  UserResponse `json:"assignedTo"`
	Status      string       `json:"status" enum:"PENDING,IN_PROGRESS,COMPLETED,CANCELED"`
}

type InvitationResponse struct {
	ID             int64  `json:"id"`
	ProjectID      int64  `json:"projectId"`
	ProjectName    string `json:"projectName"`
	ProjectSubject string `json:"projectSubject"`
	InviterName    string `json:"inviterName"`
	CreatedAt      string `json:"createdAt" format:"date-time"`
	Status         string `json:"status" enum:"PENDING,ACCEPTED,REJECTED"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  int64          `json:"projectId,omitempty"`
	EntityKind string         `json:"entityKind"`
	EntityID   int64          `json:"entityId,omitempty"`
	ActorID    int64          `json:"actorId,omitempty"`
	Payload    map[string]any `json:"payload"`
}

// Conversion helpers

func authResponse(u domain.UserRef, token string) AuthResponse {
	return AuthResponse{
		Success:   true,
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Token:     token,
	}
}

func userResponse(u domain.UserRef) UserResponse {
	return UserResponse(u)
}

func userResponses(in []domain.UserRef) []UserResponse {
	out := make([]UserResponse, 0, len(in))
	for _, u := range in {
		out = append(out, userResponse(u))
	}
	return out
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:       p.ID,
		Name:     p.Name,
		Subject:  p.Subject,
		Deadline: dateString(p.Deadline),
		Creator:  userResponse(p.Creator),
		Admins:   userResponses(p.Admins),
		Members:  userResponses(p.Members),
	}
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Deadline:    dateString(t.Deadline),
		ProjectID:   t.ProjectID,
		ProjectName: t.ProjectName,
		AssignedTo:  userResponse(t.AssignedTo),
		Status:      string(t.Status),
	}
}

func invitationResponse(inv domain.Invitation) InvitationResponse {
	return InvitationResponse{
		ID:             inv.ID,
		ProjectID:      inv.ProjectID,
		ProjectName:    inv.ProjectName,
		ProjectSubject: inv.ProjectSubject,
		InviterName:    inv.InviterName,
		CreatedAt:      inv.CreatedAt.UTC().Format(time.RFC3339),
		Status:         string(inv.Status),
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func mapSlice[T, R any](items []T, fn func(T) R) []R {
	out := make([]R, 0, len(items))
	for _, it := range items {
		out = append(out, fn(it))
	}
	return out
}

func dateString(d *domain.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

// parseDeadline treats an empty string as no deadline.
func parseDeadline(s string) (*domain.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func decodeJSONMap(raw json.RawMessage) map[string]any {
	out := map[string]any{}
	if len(raw) == 0 {
		return out
	}
	var tmp any
	if err := json.Unmarshal(raw, &tmp); err != nil {
		return out
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return out
}
