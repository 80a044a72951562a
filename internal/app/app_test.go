package app_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab/internal/access"
	"collab/internal/app"
	"collab/internal/db"
	"collab/internal/domain"
	"collab/internal/engine"
	"collab/internal/engine/auth"
	"collab/internal/migrate"
	"collab/internal/server"
	"collab/internal/session"
	"collab/internal/validate"
	"collab/internal/workflow"
	collabsdk "collab/sdk/go"
)

// newStack runs the reference API on a fresh workspace and returns its base URL.
func newStack(t *testing.T, policy workflow.Policy) string {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	handler, err := server.New(server.Config{
		Engine: engine.New(conn, policy),
		Tokens: auth.Tokens{Secret: "test-secret", TTL: time.Hour},
	})
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	t.Cleanup(func() {
		ts.Close()
		conn.Close()
	})
	return ts.URL + "/api"
}

func newClient(baseURL string, policy workflow.Policy) *app.Client {
	return app.New(app.Options{
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
		Policy:  policy,
		Store:   session.Open(&session.MemoryPersister{}, nil),
	})
}

func signUp(t *testing.T, c *app.Client, first, email string) domain.Session {
	t.Helper()
	sess, err := c.Register(context.Background(), validate.RegisterForm{
		FirstName: first, LastName: "Test", Email: email, Password: "secret1", ConfirmPassword: "secret1",
	})
	require.NoError(t, err)
	return sess
}

// acceptAll answers every pending invitation of c with accept.
func acceptAll(t *testing.T, c *app.Client) {
	t.Helper()
	d, err := c.Dashboard(context.Background())
	require.NoError(t, err)
	for _, inv := range d.PendingInvitations() {
		_, err := c.RespondInvitation(context.Background(), inv.ID, true)
		require.NoError(t, err)
	}
}

func TestLoginFailureStartsNoSession(t *testing.T) {
	base := newStack(t, workflow.Permissive())
	ctx := context.Background()
	signUp(t, newClient(base, workflow.Permissive()), "Alice", "alice@example.com")

	c := newClient(base, workflow.Permissive())
	_, err := c.Login(ctx, validate.LoginForm{Email: "alice@example.com", Password: "wrong-one"})
	require.Error(t, err)
	assert.Equal(t, "invalid email or password", app.Notice(err))
	_, ok := c.Store.Current()
	assert.False(t, ok)

	_, err = c.Login(ctx, validate.LoginForm{Email: "not-an-email", Password: "x"})
	var verr *validate.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "must be a valid e-mail address", verr.Field("email"))

	sess, err := c.Login(ctx, validate.LoginForm{Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)
	current, ok := c.Store.Current()
	require.True(t, ok)
	assert.Equal(t, sess, current)
	viewer, err := c.Viewer()
	require.NoError(t, err)
	assert.Equal(t, "Alice", viewer.FirstName)
}

func TestRefusedCredentialEndsSession(t *testing.T) {
	base := newStack(t, workflow.Permissive())
	ctx := context.Background()
	c := newClient(base, workflow.Permissive())
	sess := signUp(t, c, "Alice", "alice@example.com")

	stale := sess
	stale.Token = "not-a-token"
	require.NoError(t, c.Store.Set(stale))

	err := c.MyTasks().Load(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, collabsdk.ErrUnauthorized)
	assert.Contains(t, app.Notice(err), "session has expired")
	_, ok := c.Store.Current()
	assert.False(t, ok)
	assert.True(t, c.Signal.Pending())

	_, err = c.Dashboard(ctx)
	assert.ErrorIs(t, err, app.ErrNotLoggedIn)
	assert.Equal(t, "you are not logged in; run `collab login`", app.Notice(err))

	_, err = c.Login(ctx, validate.LoginForm{Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.False(t, c.Signal.Pending())
}

func TestStartShortcutShowsInProgressAfterReload(t *testing.T) {
	base := newStack(t, workflow.Permissive())
	ctx := context.Background()
	alice := newClient(base, workflow.Permissive())
	bob := newClient(base, workflow.Permissive())
	carol := newClient(base, workflow.Permissive())
	signUp(t, alice, "Alice", "alice@example.com")
	bobSess := signUp(t, bob, "Bob", "bob@example.com")
	signUp(t, carol, "Carol", "carol@example.com")

	p, err := alice.CreateProject(ctx, validate.ProjectForm{
		Name: "Apollo", Subject: "Moon", MemberEmails: "bob@example.com, carol@example.com",
	})
	require.NoError(t, err)
	acceptAll(t, bob)
	acceptAll(t, carol)

	board := alice.ProjectBoard(p.ID)
	require.NoError(t, board.Load(ctx))
	require.NoError(t, board.CreateTask(ctx, validate.TaskForm{Title: "Land", AssignedToID: bobSess.UserID, Deadline: "2026-07-20"}))
	tasks := board.Tasks()
	require.Len(t, tasks, 1)
	task := tasks[0]
	assert.Equal(t, domain.TaskPending, task.Status)

	carolBoard := carol.ProjectBoard(p.ID)
	require.NoError(t, carolBoard.Load(ctx))
	assert.Empty(t, carolBoard.Actions(task), "non-assignee members get no shortcuts")
	var forbidden *access.ForbiddenError
	assert.ErrorAs(t, carolBoard.ApplyShortcut(ctx, task.ID, "start"), &forbidden)

	mine := bob.MyTasks()
	require.NoError(t, mine.Load(ctx))
	require.Len(t, mine.Tasks(), 1)
	assert.Equal(t, []workflow.Shortcut{workflow.Start, workflow.Cancel}, mine.Actions(task))

	require.NoError(t, mine.ApplyShortcut(ctx, task.ID, "start"))
	got, ok := mine.Task(task.ID)
	require.True(t, ok)
	assert.Equal(t, domain.TaskInProgress, got.Status)
	assert.Equal(t, []workflow.Shortcut{workflow.Complete, workflow.Cancel}, mine.Actions(got))
	assert.Len(t, mine.Tasks(domain.TaskInProgress), 1)
	assert.Empty(t, mine.Tasks(domain.TaskPending))

	assert.Equal(t, domain.TaskPending, board.Tasks()[0].Status, "other boards keep their data until reloaded")
	require.NoError(t, board.Load(ctx))
	assert.Equal(t, domain.TaskInProgress, board.Tasks()[0].Status)
}

func TestMembersCannotCreateTasks(t *testing.T) {
	base := newStack(t, workflow.Permissive())
	ctx := context.Background()
	alice := newClient(base, workflow.Permissive())
	bob := newClient(base, workflow.Permissive())
	signUp(t, alice, "Alice", "alice@example.com")
	bobSess := signUp(t, bob, "Bob", "bob@example.com")
	p, err := alice.CreateProject(ctx, validate.ProjectForm{Name: "P", Subject: "S", MemberEmails: "bob@example.com"})
	require.NoError(t, err)
	acceptAll(t, bob)

	board := bob.ProjectBoard(p.ID)
	require.NoError(t, board.Load(ctx))
	err = board.CreateTask(ctx, validate.TaskForm{Title: "x", AssignedToID: bobSess.UserID})
	var forbidden *access.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, access.ActionCreateTask, forbidden.Action)

	aliceBoard := alice.ProjectBoard(p.ID)
	require.NoError(t, aliceBoard.Load(ctx))
	require.NoError(t, aliceBoard.GrantAdmin(ctx, bobSess.UserID))
	got, _ := aliceBoard.Project()
	assert.True(t, access.IsAdmin(got, bobSess.UserID))

	require.NoError(t, board.Load(ctx))
	require.NoError(t, board.CreateTask(ctx, validate.TaskForm{Title: "x", AssignedToID: bobSess.UserID}))
	assert.Len(t, board.Tasks(), 1)

	events, err := alice.ProjectActivity(ctx, p.ID, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "task.created", events[0].Type)
}

func TestStrictPolicyRefusesLocally(t *testing.T) {
	base := newStack(t, workflow.Strict())
	ctx := context.Background()
	c := newClient(base, workflow.Strict())
	sess := signUp(t, c, "Alice", "alice@example.com")
	p, err := c.CreateProject(ctx, validate.ProjectForm{Name: "P", Subject: "S"})
	require.NoError(t, err)
	task, err := c.CreateTask(ctx, validate.TaskForm{Title: "x", ProjectID: p.ID, AssignedToID: sess.UserID})
	require.NoError(t, err)

	_, err = c.SetTaskStatus(ctx, task.ID, domain.TaskCompleted)
	var terr *workflow.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "cannot move task from PENDING to COMPLETED", app.Notice(err))

	_, err = c.ApplyShortcut(ctx, task.ID, "complete")
	assert.Error(t, err, "complete is not offered for a pending task")

	task, err = c.ApplyShortcut(ctx, task.ID, "start")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskInProgress, task.Status)
}

func TestInvitationAnsweredOnce(t *testing.T) {
	base := newStack(t, workflow.Permissive())
	ctx := context.Background()
	alice := newClient(base, workflow.Permissive())
	bob := newClient(base, workflow.Permissive())
	signUp(t, alice, "Alice", "alice@example.com")
	signUp(t, bob, "Bob", "bob@example.com")
	_, err := alice.CreateProject(ctx, validate.ProjectForm{Name: "P", Subject: "S", MemberEmails: "bob@example.com"})
	require.NoError(t, err)

	d, err := bob.Dashboard(ctx)
	require.NoError(t, err)
	require.Len(t, d.PendingInvitations(), 1)
	assert.Empty(t, d.Projects)
	inv := d.PendingInvitations()[0]

	answered, err := bob.RespondInvitation(ctx, inv.ID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationRejected, answered.Status)

	_, err = bob.RespondInvitation(ctx, inv.ID, true)
	var forbidden *access.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	_, err = bob.API.Invitations.Respond(ctx, inv.ID, true)
	assert.True(t, collabsdk.IsConflict(err), "server refuses too")

	d, err = bob.Dashboard(ctx)
	require.NoError(t, err)
	assert.Empty(t, d.PendingInvitations())
	require.Len(t, d.Invitations, 1)
	assert.Equal(t, domain.InvitationRejected, d.Invitations[0].Status)
}

func TestUnreachableServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := newClient("http://"+addr+"/api", workflow.Permissive())
	err = c.Health(context.Background())
	var unreach *collabsdk.UnreachableError
	require.ErrorAs(t, err, &unreach)
	assert.Equal(t, collabsdk.UnreachableMessage, app.Notice(err))
}

func TestNewerLoadSupersedesOlder(t *testing.T) {
	var calls atomic.Int32
	arrived := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(arrived)
			<-r.Context().Done()
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":1,"title":"fresh","projectId":1,"status":"PENDING","assignedTo":{"id":1}}]`))
	}))
	defer ts.Close()

	c := newClient(ts.URL, workflow.Permissive())
	board := c.MyTasks()
	first := make(chan error, 1)
	go func() { first <- board.Load(context.Background()) }()
	<-arrived

	require.NoError(t, board.Load(context.Background()))
	err := <-first
	assert.ErrorIs(t, err, app.ErrSuperseded)
	assert.Empty(t, app.Notice(err))
	require.Len(t, board.Tasks(), 1)
	assert.Equal(t, "fresh", board.Tasks()[0].Title)
}

func TestSlotTickets(t *testing.T) {
	var slot app.Slot
	ctx1, t1 := slot.Begin(context.Background())
	ctx2, t2 := slot.Begin(context.Background())

	assert.ErrorIs(t, ctx1.Err(), context.Canceled)
	assert.NoError(t, ctx2.Err())
	assert.False(t, t1.Current())
	assert.True(t, t2.Current())

	applied := 0
	assert.False(t, t1.Apply(func() { applied++ }))
	assert.True(t, t2.Apply(func() { applied++ }))
	assert.Equal(t, 1, applied)

	t1.Done()
	assert.NoError(t, ctx2.Err(), "a stale ticket does not cancel the current load")
	t2.Done()
	assert.ErrorIs(t, ctx2.Err(), context.Canceled)
}

func TestNotice(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{app.ErrSuperseded, ""},
		{context.Canceled, ""},
		{app.ErrNotLoggedIn, "you are not logged in; run `collab login`"},
		{&collabsdk.RejectedError{StatusCode: 403, Message: "only project admins create tasks"}, "only project admins create tasks"},
		{&collabsdk.RejectedError{StatusCode: 401, Message: "x", SessionLost: true}, "your session has expired; run `collab login` to continue"},
		{&collabsdk.UnreachableError{Err: errors.New("dial tcp: refused")}, collabsdk.UnreachableMessage},
		{&validate.ValidationError{Fields: []validate.FieldError{{Field: "name", Message: "is required"}}}, "invalid input: name is required"},
		{&access.ForbiddenError{Action: access.ActionDeleteTask}, "not allowed to delete task"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, app.Notice(tc.err), "%v", tc.err)
	}
}
