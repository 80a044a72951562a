package collabsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// AuthService covers login, registration and the connectivity probe. Its calls
// never carry a credential.
type AuthService struct{ client *Client }

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (AuthResponse, error) {
	var resp AuthResponse
	err := s.client.doAnonymous(ctx, http.MethodPost, "auth/login", req, &resp)
	return resp, fallback(err, "login failed")
}

func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (AuthResponse, error) {
	var resp AuthResponse
	err := s.client.doAnonymous(ctx, http.MethodPost, "auth/register", req, &resp)
	return resp, fallback(err, "registration failed")
}

// Health returns nil when the API answered within HealthTimeout.
func (s *AuthService) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()
	return fallback(s.client.doAnonymous(ctx, http.MethodGet, "auth/health", nil, nil), "health check failed")
}

type ProjectService struct{ client *Client }

func (s *ProjectService) List(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := s.client.do(ctx, http.MethodGet, "projects", nil, &resp)
	return resp, fallback(err, "could not load projects")
}

func (s *ProjectService) Get(ctx context.Context, id int64) (Project, error) {
	var resp Project
	err := s.client.do(ctx, http.MethodGet, fmt.Sprintf("projects/%d", id), nil, &resp)
	return resp, fallback(err, "could not load project")
}

func (s *ProjectService) Create(ctx context.Context, req CreateProjectRequest) (Project, error) {
	if req.MemberEmails == nil {
		req.MemberEmails = []string{}
	}
	var resp Project
	err := s.client.do(ctx, http.MethodPost, "projects", req, &resp)
	return resp, fallback(err, "could not create project")
}

func (s *ProjectService) GrantAdmin(ctx context.Context, projectID, userID int64) (Project, error) {
	var resp Project
	err := s.client.do(ctx, http.MethodPost, fmt.Sprintf("projects/%d/admins/%d", projectID, userID), nil, &resp)
	return resp, fallback(err, "could not grant admin rights")
}

func (s *ProjectService) RevokeAdmin(ctx context.Context, projectID, userID int64) (Project, error) {
	var resp Project
	err := s.client.do(ctx, http.MethodDelete, fmt.Sprintf("projects/%d/admins/%d", projectID, userID), nil, &resp)
	return resp, fallback(err, "could not revoke admin rights")
}

// Events returns up to limit recent activity entries of a project, newest
// first. A zero limit uses the server default.
func (s *ProjectService) Events(ctx context.Context, projectID int64, limit int) ([]Event, error) {
	endpoint := fmt.Sprintf("projects/%d/events", projectID)
	if limit > 0 {
		endpoint += fmt.Sprintf("?limit=%d", limit)
	}
	var resp []Event
	err := s.client.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, fallback(err, "could not load project activity")
}

type TaskService struct{ client *Client }

// ListMine returns the tasks assigned to the session user.
func (s *TaskService) ListMine(ctx context.Context) ([]Task, error) {
	var resp []Task
	err := s.client.do(ctx, http.MethodGet, "tasks/user", nil, &resp)
	return resp, fallback(err, "could not load tasks")
}

func (s *TaskService) ListByProject(ctx context.Context, projectID int64) ([]Task, error) {
	var resp []Task
	err := s.client.do(ctx, http.MethodGet, fmt.Sprintf("tasks/project/%d", projectID), nil, &resp)
	return resp, fallback(err, "could not load project tasks")
}

func (s *TaskService) Create(ctx context.Context, req CreateTaskRequest) (Task, error) {
	var resp Task
	err := s.client.do(ctx, http.MethodPost, "tasks", req, &resp)
	return resp, fallback(err, "could not create task")
}

func (s *TaskService) UpdateStatus(ctx context.Context, taskID int64, status TaskStatus) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("tasks/%d/status?status=%s", taskID, url.QueryEscape(string(status)))
	err := s.client.do(ctx, http.MethodPut, endpoint, nil, &resp)
	return resp, fallback(err, "could not update task status")
}

func (s *TaskService) Get(ctx context.Context, taskID int64) (Task, error) {
	var resp Task
	err := s.client.do(ctx, http.MethodGet, fmt.Sprintf("tasks/%d", taskID), nil, &resp)
	return resp, fallback(err, "could not load task")
}

func (s *TaskService) Update(ctx context.Context, taskID int64, req UpdateTaskRequest) (Task, error) {
	var resp Task
	err := s.client.do(ctx, http.MethodPut, fmt.Sprintf("tasks/%d", taskID), req, &resp)
	return resp, fallback(err, "could not update task")
}

func (s *TaskService) Delete(ctx context.Context, taskID int64) error {
	err := s.client.do(ctx, http.MethodDelete, fmt.Sprintf("tasks/%d", taskID), nil, nil)
	return fallback(err, "could not delete task")
}

type InvitationService struct{ client *Client }

// List returns the invitations addressed to the session user.
func (s *InvitationService) List(ctx context.Context) ([]Invitation, error) {
	var resp []Invitation
	err := s.client.do(ctx, http.MethodGet, "invitations", nil, &resp)
	return resp, fallback(err, "could not load invitations")
}

func (s *InvitationService) Respond(ctx context.Context, invitationID int64, accept bool) (Invitation, error) {
	var resp Invitation
	err := s.client.do(ctx, http.MethodPost, fmt.Sprintf("invitations/%d/respond", invitationID), respondRequest{Accept: accept}, &resp)
	return resp, fallback(err, "could not respond to invitation")
}
