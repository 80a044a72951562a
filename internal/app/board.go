package app

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"collab/internal/access"
	"collab/internal/domain"
	"collab/internal/validate"
	"collab/internal/workflow"
)

// ErrSuperseded is returned by a load whose result was discarded because a
// newer load of the same slot started.
var ErrSuperseded = errors.New("superseded by a newer request")

// Slot sequences loads that replace each other, such as successive refreshes
// of one view. Starting a load cancels the previous one.
type Slot struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// Ticket identifies one load started on a Slot.
type Ticket struct {
	slot *Slot
	gen  uint64
}

// Begin cancels the in-flight load, if any, and returns the context and
// ticket for a new one.
func (s *Slot) Begin(parent context.Context) (context.Context, Ticket) {
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	s.cancel = cancel
	return ctx, Ticket{slot: s, gen: s.gen}
}

// Current reports whether no newer load has begun.
func (t Ticket) Current() bool {
	t.slot.mu.Lock()
	defer t.slot.mu.Unlock()
	return t.slot.gen == t.gen
}

// Apply runs fn only while t is current; the check and fn are atomic with
// respect to Begin.
func (t Ticket) Apply(fn func()) bool {
	t.slot.mu.Lock()
	defer t.slot.mu.Unlock()
	if t.slot.gen != t.gen {
		return false
	}
	fn()
	return true
}

// Done releases the ticket's context if it is still the slot's current load.
func (t Ticket) Done() {
	t.slot.mu.Lock()
	defer t.slot.mu.Unlock()
	if t.slot.gen == t.gen && t.slot.cancel != nil {
		t.slot.cancel()
		t.slot.cancel = nil
	}
}

// Board is the view model of one project and its tasks, or of the session
// user's tasks when ProjectID is zero. Data is only ever replaced wholesale by
// Load; mutations go through the server and are followed by a Load.
type Board struct {
	ProjectID int64

	client *Client
	slot   Slot

	mu      sync.RWMutex
	project domain.Project
	tasks   []domain.Task
	loaded  bool
}

// ProjectBoard returns an empty board for a project; call Load to fill it.
func (c *Client) ProjectBoard(projectID int64) *Board {
	return &Board{ProjectID: projectID, client: c}
}

// MyTasks returns an empty board of the tasks assigned to the session user.
func (c *Client) MyTasks() *Board {
	return &Board{client: c}
}

// Load fetches the project and its tasks in parallel and replaces the board's
// data. A load overtaken by a newer one returns ErrSuperseded and changes nothing.
func (b *Board) Load(ctx context.Context) error {
	ctx, ticket := b.slot.Begin(ctx)
	defer ticket.Done()

	var (
		project domain.Project
		tasks   []domain.Task
	)
	g, gCtx := errgroup.WithContext(ctx)
	if b.ProjectID != 0 {
		g.Go(func() error {
			var err error
			project, err = b.client.API.Projects.Get(gCtx, b.ProjectID)
			return err
		})
		g.Go(func() error {
			var err error
			tasks, err = b.client.API.Tasks.ListByProject(gCtx, b.ProjectID)
			return err
		})
	} else {
		g.Go(func() error {
			var err error
			tasks, err = b.client.API.Tasks.ListMine(gCtx)
			return err
		})
	}
	err := g.Wait()
	if !ticket.Current() {
		return ErrSuperseded
	}
	if err != nil {
		return err
	}
	if !ticket.Apply(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.project, b.tasks, b.loaded = project, tasks, true
	}) {
		return ErrSuperseded
	}
	return nil
}

// Project returns the loaded project.
func (b *Board) Project() (domain.Project, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.project, b.loaded && b.ProjectID != 0
}

// Tasks returns a copy of the loaded tasks, optionally filtered by status.
func (b *Board) Tasks(status ...domain.TaskStatus) []domain.Task {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Task, 0, len(b.tasks))
	for _, t := range b.tasks {
		if len(status) == 0 || hasStatus(status, t.Status) {
			out = append(out, t)
		}
	}
	return out
}

// Task returns a loaded task by id.
func (b *Board) Task(id int64) (domain.Task, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, t := range b.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

// Actions lists the shortcuts the viewer may apply to t. On a "my tasks" board
// the viewer is the assignee, so every shortcut the policy accepts is offered.
func (b *Board) Actions(t domain.Task) []workflow.Shortcut {
	viewer, err := b.client.Viewer()
	if err != nil {
		return nil
	}
	if p, ok := b.Project(); ok && !access.CanUpdateTaskStatus(p, t, viewer) {
		return nil
	} else if !ok && t.AssignedTo.ID != viewer.ID {
		return nil
	}
	var out []workflow.Shortcut
	for _, sc := range workflow.Shortcuts(t.Status) {
		if b.client.Policy.Check(t.Status, sc.Target) == nil {
			out = append(out, sc)
		}
	}
	return out
}

// ApplyShortcut runs a shortcut on a loaded task, then reloads.
func (b *Board) ApplyShortcut(ctx context.Context, taskID int64, name string) error {
	return b.mutateTask(ctx, taskID, func(viewer domain.UserRef, p domain.Project, t domain.Task) error {
		_, err := b.client.applyShortcut(ctx, viewer, p, t, name)
		return err
	})
}

// SetStatus moves a loaded task to status, then reloads.
func (b *Board) SetStatus(ctx context.Context, taskID int64, status domain.TaskStatus) error {
	return b.mutateTask(ctx, taskID, func(viewer domain.UserRef, p domain.Project, t domain.Task) error {
		_, err := b.client.setTaskStatus(ctx, viewer, p, t, status)
		return err
	})
}

// DeleteTask removes a loaded task, then reloads.
func (b *Board) DeleteTask(ctx context.Context, taskID int64) error {
	return b.mutateTask(ctx, taskID, func(viewer domain.UserRef, p domain.Project, t domain.Task) error {
		return b.client.deleteTask(ctx, viewer, p, t)
	})
}

// CreateTask adds a task to the board's project, then reloads.
func (b *Board) CreateTask(ctx context.Context, form validate.TaskForm) error {
	viewer, p, err := b.loadedProject()
	if err != nil {
		return err
	}
	form.ProjectID = p.ID
	in, err := form.Parse()
	if err != nil {
		return err
	}
	if _, err := b.client.createTask(ctx, viewer, p, in); err != nil {
		return err
	}
	return b.Load(ctx)
}

func (b *Board) GrantAdmin(ctx context.Context, userID int64) error {
	viewer, p, err := b.loadedProject()
	if err != nil {
		return err
	}
	if _, err := b.client.grantAdmin(ctx, viewer, p, userID); err != nil {
		return err
	}
	return b.Load(ctx)
}

func (b *Board) RevokeAdmin(ctx context.Context, userID int64) error {
	viewer, p, err := b.loadedProject()
	if err != nil {
		return err
	}
	if _, err := b.client.revokeAdmin(ctx, viewer, p, userID); err != nil {
		return err
	}
	return b.Load(ctx)
}

func (b *Board) loadedProject() (domain.UserRef, domain.Project, error) {
	viewer, err := b.client.Viewer()
	if err != nil {
		return domain.UserRef{}, domain.Project{}, err
	}
	p, ok := b.Project()
	if !ok {
		return domain.UserRef{}, domain.Project{}, errors.New("project board not loaded")
	}
	return viewer, p, nil
}

func (b *Board) mutateTask(ctx context.Context, taskID int64, fn func(domain.UserRef, domain.Project, domain.Task) error) error {
	viewer, err := b.client.Viewer()
	if err != nil {
		return err
	}
	t, ok := b.Task(taskID)
	if !ok {
		return errors.New("task is not on this board; reload and try again")
	}
	p, ok := b.Project()
	if !ok {
		// "my tasks" boards carry no project; fetch the owning one for the role check.
		if p, err = b.client.API.Projects.Get(ctx, t.ProjectID); err != nil {
			return err
		}
	}
	if err := fn(viewer, p, t); err != nil {
		return err
	}
	return b.Load(ctx)
}

func hasStatus(list []domain.TaskStatus, s domain.TaskStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Dashboard is the landing view: the user's projects, tasks and invitations.
type Dashboard struct {
	Projects    []domain.Project
	Tasks       []domain.Task
	Invitations []domain.Invitation
}

// PendingInvitations filters out answered invitations.
func (d Dashboard) PendingInvitations() []domain.Invitation {
	var out []domain.Invitation
	for _, inv := range d.Invitations {
		if access.CanRespond(inv) {
			out = append(out, inv)
		}
	}
	return out
}

// Dashboard fetches the three lists in parallel.
func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	if _, err := c.Viewer(); err != nil {
		return Dashboard{}, err
	}
	var d Dashboard
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d.Projects, err = c.API.Projects.List(gCtx)
		return err
	})
	g.Go(func() error {
		var err error
		d.Tasks, err = c.API.Tasks.ListMine(gCtx)
		return err
	})
	g.Go(func() error {
		var err error
		d.Invitations, err = c.API.Invitations.List(gCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}
