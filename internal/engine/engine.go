package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"collab/internal/access"
	"collab/internal/domain"
	"collab/internal/engine/auth"
	"collab/internal/events"
	"collab/internal/repo"
	"collab/internal/validate"
	"collab/internal/workflow"
)

// ConflictError reports a request that is well-formed but clashes with the
// current state, such as answering an invitation twice.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Policy workflow.Policy
	Now    func() time.Time
}

func New(db *sql.DB, policy workflow.Policy) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Policy: policy,
		Now:    time.Now,
	}
}

// WithClock pins the engine and its event writer to now.
func (e Engine) WithClock(now func() time.Time) Engine {
	e.Now = now
	e.Events.Now = now
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// inTx runs fn with a transaction-bound repo and commits when fn succeeds.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx, r repo.Repo) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx, e.Repo.WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit()
}

// RegisterOptions are parameters for creating an account.
type RegisterOptions struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

func (e Engine) Register(ctx context.Context, opts RegisterOptions) (domain.UserRef, error) {
	opts.FirstName = strings.TrimSpace(opts.FirstName)
	opts.LastName = strings.TrimSpace(opts.LastName)
	opts.Email = strings.TrimSpace(opts.Email)
	form := validate.RegisterForm{
		FirstName:       opts.FirstName,
		LastName:        opts.LastName,
		Email:           opts.Email,
		Password:        opts.Password,
		ConfirmPassword: opts.Password,
	}
	if err := form.Validate(); err != nil {
		return domain.UserRef{}, err
	}
	hash, err := auth.HashPassword(opts.Password)
	if err != nil {
		return domain.UserRef{}, err
	}
	u := repo.User{
		UserRef:      domain.UserRef{FirstName: opts.FirstName, LastName: opts.LastName, Email: opts.Email},
		PasswordHash: hash,
		CreatedAt:    e.stamp(),
	}
	err = e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		id, err := r.InsertUser(ctx, u)
		if errors.Is(err, repo.ErrDuplicate) {
			return &ConflictError{Msg: "an account with this email already exists"}
		}
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		u.ID = id
		return e.Events.Append(ctx, tx, events.UserRegistered, 0, "user", id, id, nil)
	})
	return u.UserRef, err
}

// Authenticate checks credentials; unknown e-mails and wrong passwords both
// yield auth.ErrInvalidCredentials.
func (e Engine) Authenticate(ctx context.Context, email, password string) (domain.UserRef, error) {
	u, err := e.Repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.UserRef{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return domain.UserRef{}, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return domain.UserRef{}, err
	}
	return u.UserRef, nil
}

func (e Engine) User(ctx context.Context, id int64) (domain.UserRef, error) {
	u, err := e.Repo.GetUser(ctx, id)
	return u.UserRef, err
}

func (e Engine) ListProjects(ctx context.Context, viewer domain.UserRef) ([]domain.Project, error) {
	return e.Repo.ListProjectsForUser(ctx, viewer.ID)
}

// GetProject hides projects the viewer is not a member of behind ErrNotFound.
func (e Engine) GetProject(ctx context.Context, viewer domain.UserRef, id int64) (domain.Project, error) {
	return visibleProject(ctx, e.Repo, viewer, id)
}

func visibleProject(ctx context.Context, r repo.Repo, viewer domain.UserRef, id int64) (domain.Project, error) {
	p, err := r.GetProject(ctx, id)
	if err != nil {
		return p, err
	}
	if access.CheckView(p, viewer) != nil {
		return domain.Project{}, repo.ErrNotFound
	}
	return p, nil
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	Name         string
	Subject      string
	Deadline     *domain.Date
	MemberEmails []string
}

// CreateProject makes viewer the creator, first member and first admin, and
// invites every listed address other than the creator's own.
func (e Engine) CreateProject(ctx context.Context, viewer domain.UserRef, opts ProjectCreateOptions) (domain.Project, error) {
	emails := make([]string, 0, len(opts.MemberEmails))
	for _, em := range opts.MemberEmails {
		emails = append(emails, strings.TrimSpace(em))
	}
	form := validate.ProjectForm{
		Name:         opts.Name,
		Subject:      opts.Subject,
		MemberEmails: strings.Join(emails, ","),
	}
	in, err := form.Parse()
	if err != nil {
		return domain.Project{}, err
	}

	var id int64
	err = e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		now := e.stamp()
		pid, err := r.InsertProject(ctx, in.Name, in.Subject, opts.Deadline, viewer.ID, now)
		if err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		id = pid
		if err := r.AddMember(ctx, id, viewer.ID, now); err != nil {
			return fmt.Errorf("add creator: %w", err)
		}
		if err := r.GrantAdmin(ctx, id, viewer.ID, now); err != nil {
			return fmt.Errorf("grant creator admin: %w", err)
		}
		if err := e.Events.Append(ctx, tx, events.ProjectCreated, id, "project", id, viewer.ID, events.EventPayload{"name": in.Name}); err != nil {
			return err
		}
		seen := map[string]bool{strings.ToLower(viewer.Email): true}
		for _, email := range in.MemberEmails {
			key := strings.ToLower(email)
			if seen[key] {
				continue
			}
			seen[key] = true
			invID, err := r.InsertInvitation(ctx, id, viewer.ID, email, now)
			if err != nil {
				return fmt.Errorf("invite %s: %w", email, err)
			}
			if err := e.Events.Append(ctx, tx, events.InvitationCreated, id, "invitation", invID, viewer.ID, events.EventPayload{"email": email}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, id)
}

func (e Engine) GrantAdmin(ctx context.Context, viewer domain.UserRef, projectID, userID int64) (domain.Project, error) {
	err := e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		p, err := visibleProject(ctx, r, viewer, projectID)
		if err != nil {
			return err
		}
		if err := access.CheckGrantAdmin(p, viewer, userID); err != nil {
			return err
		}
		if err := r.GrantAdmin(ctx, projectID, userID, e.stamp()); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.AdminGranted, projectID, "user", userID, viewer.ID, nil)
	})
	if err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, projectID)
}

func (e Engine) RevokeAdmin(ctx context.Context, viewer domain.UserRef, projectID, userID int64) (domain.Project, error) {
	err := e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		p, err := visibleProject(ctx, r, viewer, projectID)
		if err != nil {
			return err
		}
		if err := access.CheckRevokeAdmin(p, viewer, userID); err != nil {
			return err
		}
		if err := r.RevokeAdmin(ctx, projectID, userID); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.AdminRevoked, projectID, "user", userID, viewer.ID, nil)
	})
	if err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, projectID)
}

// ProjectEvents returns the latest activity of a project.
func (e Engine) ProjectEvents(ctx context.Context, viewer domain.UserRef, projectID int64, limit int) ([]domain.Event, error) {
	if _, err := visibleProject(ctx, e.Repo, viewer, projectID); err != nil {
		return nil, err
	}
	return e.Repo.LatestEvents(ctx, projectID, limit)
}

func (e Engine) ListMyTasks(ctx context.Context, viewer domain.UserRef, status domain.TaskStatus) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx, repo.TaskFilters{AssigneeID: viewer.ID, Status: status})
}

func (e Engine) ListProjectTasks(ctx context.Context, viewer domain.UserRef, projectID int64, status domain.TaskStatus) ([]domain.Task, error) {
	if _, err := visibleProject(ctx, e.Repo, viewer, projectID); err != nil {
		return nil, err
	}
	return e.Repo.ListTasks(ctx, repo.TaskFilters{ProjectID: projectID, Status: status})
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ProjectID    int64
	Title        string
	Description  string
	Deadline     *domain.Date
	AssignedToID int64
}

// CreateTask adds a PENDING task. Only project admins create tasks, and only
// for project members.
func (e Engine) CreateTask(ctx context.Context, viewer domain.UserRef, opts TaskCreateOptions) (domain.Task, error) {
	opts.Title = strings.TrimSpace(opts.Title)
	if err := requireTaskFields(opts.Title, opts.AssignedToID); err != nil {
		return domain.Task{}, err
	}
	var id int64
	err := e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		p, err := visibleProject(ctx, r, viewer, opts.ProjectID)
		if err != nil {
			return err
		}
		if err := access.CheckCreateTask(p, viewer, opts.AssignedToID); err != nil {
			return err
		}
		tid, err := r.InsertTask(ctx, repo.TaskRow{
			ProjectID:   p.ID,
			Title:       opts.Title,
			Description: strings.TrimSpace(opts.Description),
			Deadline:    opts.Deadline,
			AssignedTo:  opts.AssignedToID,
			Status:      domain.TaskPending,
		}, e.stamp())
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		id = tid
		return e.Events.Append(ctx, tx, events.TaskCreated, p.ID, "task", id, viewer.ID, events.EventPayload{
			"title":       opts.Title,
			"assigned_to": opts.AssignedToID,
		})
	})
	if err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, id)
}

// GetTask returns a task of a project the viewer belongs to.
func (e Engine) GetTask(ctx context.Context, viewer domain.UserRef, id int64) (domain.Task, error) {
	t, _, err := visibleTask(ctx, e.Repo, viewer, id)
	return t, err
}

func visibleTask(ctx context.Context, r repo.Repo, viewer domain.UserRef, id int64) (domain.Task, domain.Project, error) {
	t, err := r.GetTask(ctx, id)
	if err != nil {
		return t, domain.Project{}, err
	}
	p, err := visibleProject(ctx, r, viewer, t.ProjectID)
	if err != nil {
		return domain.Task{}, domain.Project{}, err
	}
	return t, p, nil
}

// TaskUpdateOptions replace the editable fields of a task.
type TaskUpdateOptions struct {
	Title        string
	Description  string
	Deadline     *domain.Date
	AssignedToID int64
}

func (e Engine) UpdateTask(ctx context.Context, viewer domain.UserRef, id int64, opts TaskUpdateOptions) (domain.Task, error) {
	opts.Title = strings.TrimSpace(opts.Title)
	if err := requireTaskFields(opts.Title, opts.AssignedToID); err != nil {
		return domain.Task{}, err
	}
	err := e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		t, p, err := visibleTask(ctx, r, viewer, id)
		if err != nil {
			return err
		}
		if err := access.CheckCreateTask(p, viewer, opts.AssignedToID); err != nil {
			return err
		}
		err = r.UpdateTask(ctx, repo.TaskRow{
			ID:          t.ID,
			Title:       opts.Title,
			Description: strings.TrimSpace(opts.Description),
			Deadline:    opts.Deadline,
			AssignedTo:  opts.AssignedToID,
		}, e.stamp())
		if err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.TaskUpdated, p.ID, "task", t.ID, viewer.ID, events.EventPayload{"title": opts.Title})
	})
	if err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, id)
}

// UpdateTaskStatus is allowed for project admins and the assignee, within the
// engine's transition policy.
func (e Engine) UpdateTaskStatus(ctx context.Context, viewer domain.UserRef, id int64, status domain.TaskStatus) (domain.Task, error) {
	if !status.Valid() {
		return domain.Task{}, &validate.ValidationError{Fields: []validate.FieldError{{Field: "status", Message: "is invalid"}}}
	}
	err := e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		t, p, err := visibleTask(ctx, r, viewer, id)
		if err != nil {
			return err
		}
		if err := access.CheckUpdateTaskStatus(p, t, viewer); err != nil {
			return err
		}
		if err := e.Policy.Check(t.Status, status); err != nil {
			return err
		}
		if err := r.UpdateTaskStatus(ctx, t.ID, status, e.stamp()); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.TaskStatusChanged, p.ID, "task", t.ID, viewer.ID, events.EventPayload{
			"from": t.Status,
			"to":   status,
		})
	})
	if err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, id)
}

func (e Engine) DeleteTask(ctx context.Context, viewer domain.UserRef, id int64) error {
	return e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		t, p, err := visibleTask(ctx, r, viewer, id)
		if err != nil {
			return err
		}
		if err := access.CheckDeleteTask(p, viewer); err != nil {
			return err
		}
		if err := r.DeleteTask(ctx, t.ID); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.TaskDeleted, p.ID, "task", t.ID, viewer.ID, events.EventPayload{"title": t.Title})
	})
}

// ListInvitations returns invitations addressed to the viewer's e-mail.
func (e Engine) ListInvitations(ctx context.Context, viewer domain.UserRef) ([]domain.Invitation, error) {
	return e.Repo.ListInvitationsForEmail(ctx, viewer.Email)
}

// RespondInvitation resolves a pending invitation. Accepting adds the viewer
// to the project's members. A resolved invitation stays as it is and the
// call fails with a ConflictError.
func (e Engine) RespondInvitation(ctx context.Context, viewer domain.UserRef, id int64, accept bool) (domain.Invitation, error) {
	err := e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		inv, err := r.GetInvitation(ctx, id)
		if err != nil {
			return err
		}
		if !strings.EqualFold(inv.Email, viewer.Email) {
			return repo.ErrNotFound
		}
		if err := access.CheckRespond(inv.Invitation); err != nil {
			return &ConflictError{Msg: err.Error()}
		}
		status := domain.InvitationRejected
		if accept {
			status = domain.InvitationAccepted
		}
		now := e.stamp()
		if err := r.ResolveInvitation(ctx, id, status, now); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return &ConflictError{Msg: "invitation already answered"}
			}
			return err
		}
		if accept {
			if err := r.AddMember(ctx, inv.ProjectID, viewer.ID, now); err != nil {
				return fmt.Errorf("add member: %w", err)
			}
			if err := e.Events.Append(ctx, tx, events.MemberJoined, inv.ProjectID, "user", viewer.ID, viewer.ID, nil); err != nil {
				return err
			}
		}
		return e.Events.Append(ctx, tx, events.InvitationAnswered, inv.ProjectID, "invitation", id, viewer.ID, events.EventPayload{"status": status})
	})
	if err != nil {
		return domain.Invitation{}, err
	}
	inv, err := e.Repo.GetInvitation(ctx, id)
	return inv.Invitation, err
}

func requireTaskFields(title string, assigneeID int64) error {
	verr := &validate.ValidationError{}
	if title == "" {
		verr.Fields = append(verr.Fields, validate.FieldError{Field: "title", Message: "is required"})
	}
	if assigneeID <= 0 {
		verr.Fields = append(verr.Fields, validate.FieldError{Field: "assignedToId", Message: "is required"})
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}
