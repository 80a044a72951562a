// Package app composes the session store, the API client and the role and
// workflow models into the operations a user performs.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"collab/internal/access"
	"collab/internal/domain"
	"collab/internal/logging"
	"collab/internal/session"
	"collab/internal/validate"
	"collab/internal/workflow"
	collabsdk "collab/sdk/go"
)

// ErrNotLoggedIn is returned by operations that need a session.
var ErrNotLoggedIn = errors.New("not logged in")

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Store      *session.Store
	Policy     workflow.Policy
	Logger     *zap.Logger
}

// Client runs user operations for the session held in Store.
type Client struct {
	Store  *session.Store
	API    *collabsdk.Client
	Policy workflow.Policy
	Signal *LoginSignal

	log *zap.Logger
}

func New(opts Options) *Client {
	log := logging.OrNop(opts.Logger)
	store := opts.Store
	if store == nil {
		store = session.Open(&session.MemoryPersister{}, log)
	}
	signal := &LoginSignal{}
	sdkOpts := []collabsdk.Option{
		collabsdk.WithSession(store),
		collabsdk.WithAuthLost(signal.Raise),
		collabsdk.WithLogger(log.Named("api")),
	}
	if opts.Timeout > 0 {
		sdkOpts = append(sdkOpts, collabsdk.WithTimeout(opts.Timeout))
	}
	if opts.HTTPClient != nil {
		sdkOpts = append(sdkOpts, collabsdk.WithHTTPClient(opts.HTTPClient))
	}
	c := &Client{
		Store:  store,
		API:    collabsdk.New(opts.BaseURL, sdkOpts...),
		Policy: opts.Policy,
		Signal: signal,
		log:    log,
	}
	store.Subscribe(func(s domain.Session, ok bool) {
		if ok {
			c.log.Info("session started", zap.Int64("user_id", s.UserID), zap.String("email", s.Email))
		} else {
			c.log.Info("session ended")
		}
	})
	return c
}

// Viewer is the session user.
func (c *Client) Viewer() (domain.UserRef, error) {
	s, ok := c.Store.Current()
	if !ok {
		return domain.UserRef{}, ErrNotLoggedIn
	}
	return s.User(), nil
}

// Login validates the form, authenticates and starts a session. No session is
// stored unless the server reports success.
func (c *Client) Login(ctx context.Context, form validate.LoginForm) (domain.Session, error) {
	if err := form.Validate(); err != nil {
		return domain.Session{}, err
	}
	resp, err := c.API.Auth.Login(ctx, collabsdk.LoginRequest{Email: form.Email, Password: form.Password})
	if err != nil {
		return domain.Session{}, err
	}
	return c.startSession(resp, "login failed")
}

func (c *Client) Register(ctx context.Context, form validate.RegisterForm) (domain.Session, error) {
	if err := form.Validate(); err != nil {
		return domain.Session{}, err
	}
	resp, err := c.API.Auth.Register(ctx, collabsdk.RegisterRequest{
		FirstName: form.FirstName,
		LastName:  form.LastName,
		Email:     form.Email,
		Password:  form.Password,
	})
	if err != nil {
		return domain.Session{}, err
	}
	return c.startSession(resp, "registration failed")
}

func (c *Client) startSession(resp collabsdk.AuthResponse, failure string) (domain.Session, error) {
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = failure
		}
		return domain.Session{}, &collabsdk.RejectedError{StatusCode: http.StatusOK, Message: msg}
	}
	sess := resp.Session()
	if !sess.Valid() {
		return domain.Session{}, fmt.Errorf("%s: server response lacks token or user id", failure)
	}
	if err := c.Store.Set(sess); err != nil {
		return domain.Session{}, err
	}
	c.Signal.Consume()
	return sess, nil
}

// Logout ends the session locally.
func (c *Client) Logout() error {
	return c.Store.Clear()
}

// Health probes the API.
func (c *Client) Health(ctx context.Context) error {
	return c.API.Auth.Health(ctx)
}

func (c *Client) CreateProject(ctx context.Context, form validate.ProjectForm) (domain.Project, error) {
	if _, err := c.Viewer(); err != nil {
		return domain.Project{}, err
	}
	in, err := form.Parse()
	if err != nil {
		return domain.Project{}, err
	}
	return c.API.Projects.Create(ctx, collabsdk.CreateProjectRequest{
		Name:         in.Name,
		Subject:      in.Subject,
		Deadline:     in.Deadline,
		MemberEmails: in.MemberEmails,
	})
}

func (c *Client) GrantAdmin(ctx context.Context, projectID, userID int64) (domain.Project, error) {
	viewer, p, err := c.viewerAndProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	return c.grantAdmin(ctx, viewer, p, userID)
}

func (c *Client) grantAdmin(ctx context.Context, viewer domain.UserRef, p domain.Project, userID int64) (domain.Project, error) {
	if err := access.CheckGrantAdmin(p, viewer, userID); err != nil {
		return domain.Project{}, err
	}
	return c.API.Projects.GrantAdmin(ctx, p.ID, userID)
}

func (c *Client) RevokeAdmin(ctx context.Context, projectID, userID int64) (domain.Project, error) {
	viewer, p, err := c.viewerAndProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	return c.revokeAdmin(ctx, viewer, p, userID)
}

func (c *Client) revokeAdmin(ctx context.Context, viewer domain.UserRef, p domain.Project, userID int64) (domain.Project, error) {
	if err := access.CheckRevokeAdmin(p, viewer, userID); err != nil {
		return domain.Project{}, err
	}
	return c.API.Projects.RevokeAdmin(ctx, p.ID, userID)
}

func (c *Client) CreateTask(ctx context.Context, form validate.TaskForm) (domain.Task, error) {
	in, err := form.Parse()
	if err != nil {
		return domain.Task{}, err
	}
	viewer, p, err := c.viewerAndProject(ctx, in.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	return c.createTask(ctx, viewer, p, in)
}

func (c *Client) createTask(ctx context.Context, viewer domain.UserRef, p domain.Project, in validate.TaskInput) (domain.Task, error) {
	if err := access.CheckCreateTask(p, viewer, in.AssignedToID); err != nil {
		return domain.Task{}, err
	}
	return c.API.Tasks.Create(ctx, collabsdk.CreateTaskRequest{
		Title:        in.Title,
		Description:  in.Description,
		Deadline:     in.Deadline,
		ProjectID:    p.ID,
		AssignedToID: in.AssignedToID,
	})
}

// UpdateTask replaces title, description, deadline and assignee. Admins only.
func (c *Client) UpdateTask(ctx context.Context, taskID int64, form validate.TaskForm) (domain.Task, error) {
	viewer, t, p, err := c.viewerTaskProject(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	form.ProjectID = p.ID
	in, err := form.Parse()
	if err != nil {
		return domain.Task{}, err
	}
	if err := access.CheckCreateTask(p, viewer, in.AssignedToID); err != nil {
		return domain.Task{}, err
	}
	return c.API.Tasks.Update(ctx, t.ID, collabsdk.UpdateTaskRequest{
		Title:        in.Title,
		Description:  in.Description,
		Deadline:     in.Deadline,
		AssignedToID: in.AssignedToID,
	})
}

// SetTaskStatus moves a task to status after the role and transition checks.
func (c *Client) SetTaskStatus(ctx context.Context, taskID int64, status domain.TaskStatus) (domain.Task, error) {
	viewer, t, p, err := c.viewerTaskProject(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	return c.setTaskStatus(ctx, viewer, p, t, status)
}

func (c *Client) setTaskStatus(ctx context.Context, viewer domain.UserRef, p domain.Project, t domain.Task, status domain.TaskStatus) (domain.Task, error) {
	if !status.Valid() {
		return domain.Task{}, &validate.ValidationError{Fields: []validate.FieldError{{Field: "status", Message: "is invalid"}}}
	}
	if err := access.CheckUpdateTaskStatus(p, t, viewer); err != nil {
		return domain.Task{}, err
	}
	if err := c.Policy.Check(t.Status, status); err != nil {
		return domain.Task{}, err
	}
	return c.API.Tasks.UpdateStatus(ctx, t.ID, status)
}

// ApplyShortcut runs a named shortcut ("start", "complete", ...) offered for
// the task's current status.
func (c *Client) ApplyShortcut(ctx context.Context, taskID int64, name string) (domain.Task, error) {
	viewer, t, p, err := c.viewerTaskProject(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	return c.applyShortcut(ctx, viewer, p, t, name)
}

func (c *Client) applyShortcut(ctx context.Context, viewer domain.UserRef, p domain.Project, t domain.Task, name string) (domain.Task, error) {
	sc, ok := workflow.ShortcutFor(t.Status, name)
	if !ok {
		return domain.Task{}, fmt.Errorf("%q is not available for a %s task", name, t.Status)
	}
	return c.setTaskStatus(ctx, viewer, p, t, sc.Target)
}

func (c *Client) DeleteTask(ctx context.Context, taskID int64) error {
	viewer, t, p, err := c.viewerTaskProject(ctx, taskID)
	if err != nil {
		return err
	}
	return c.deleteTask(ctx, viewer, p, t)
}

func (c *Client) deleteTask(ctx context.Context, viewer domain.UserRef, p domain.Project, t domain.Task) error {
	if err := access.CheckDeleteTask(p, viewer); err != nil {
		return err
	}
	return c.API.Tasks.Delete(ctx, t.ID)
}

// ProjectActivity returns the latest events of a project the viewer belongs to.
func (c *Client) ProjectActivity(ctx context.Context, projectID int64, limit int) ([]domain.Event, error) {
	if _, err := c.Viewer(); err != nil {
		return nil, err
	}
	return c.API.Projects.Events(ctx, projectID, limit)
}

// RespondInvitation accepts or rejects a pending invitation.
func (c *Client) RespondInvitation(ctx context.Context, invitationID int64, accept bool) (domain.Invitation, error) {
	if _, err := c.Viewer(); err != nil {
		return domain.Invitation{}, err
	}
	invs, err := c.API.Invitations.List(ctx)
	if err != nil {
		return domain.Invitation{}, err
	}
	for _, inv := range invs {
		if inv.ID != invitationID {
			continue
		}
		if err := access.CheckRespond(inv); err != nil {
			return domain.Invitation{}, err
		}
		return c.API.Invitations.Respond(ctx, invitationID, accept)
	}
	return domain.Invitation{}, fmt.Errorf("invitation %d not found", invitationID)
}

func (c *Client) viewerAndProject(ctx context.Context, projectID int64) (domain.UserRef, domain.Project, error) {
	viewer, err := c.Viewer()
	if err != nil {
		return domain.UserRef{}, domain.Project{}, err
	}
	p, err := c.API.Projects.Get(ctx, projectID)
	if err != nil {
		return domain.UserRef{}, domain.Project{}, err
	}
	return viewer, p, nil
}

func (c *Client) viewerTaskProject(ctx context.Context, taskID int64) (domain.UserRef, domain.Task, domain.Project, error) {
	viewer, err := c.Viewer()
	if err != nil {
		return domain.UserRef{}, domain.Task{}, domain.Project{}, err
	}
	t, err := c.API.Tasks.Get(ctx, taskID)
	if err != nil {
		return domain.UserRef{}, domain.Task{}, domain.Project{}, err
	}
	p, err := c.API.Projects.Get(ctx, t.ProjectID)
	if err != nil {
		return domain.UserRef{}, domain.Task{}, domain.Project{}, err
	}
	return viewer, t, p, nil
}
