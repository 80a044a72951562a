package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab/internal/access"
	"collab/internal/db"
	"collab/internal/domain"
	"collab/internal/engine"
	"collab/internal/engine/auth"
	"collab/internal/events"
	"collab/internal/migrate"
	"collab/internal/repo"
	"collab/internal/validate"
	"collab/internal/workflow"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T, policy workflow.Policy) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	eng := engine.New(conn, policy).WithClock(func() time.Time {
		return time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	})
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) register(t *testing.T, first, email string) domain.UserRef {
	t.Helper()
	u, err := env.Engine.Register(env.Ctx, engine.RegisterOptions{
		FirstName: first, LastName: "Test", Email: email, Password: "secret1",
	})
	require.NoError(t, err)
	return u
}

// join answers the first pending invitation of u for project p.
func (env testEnv) join(t *testing.T, u domain.UserRef, projectID int64) {
	t.Helper()
	invs, err := env.Engine.ListInvitations(env.Ctx, u)
	require.NoError(t, err)
	for _, inv := range invs {
		if inv.ProjectID == projectID && inv.Status == domain.InvitationPending {
			_, err := env.Engine.RespondInvitation(env.Ctx, u, inv.ID, true)
			require.NoError(t, err)
			return
		}
	}
	t.Fatalf("no pending invitation for %s in project %d", u.Email, projectID)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	env := newTestEnv(t, workflow.Permissive())
	alice := env.register(t, "Alice", "alice@example.com")
	assert.NotZero(t, alice.ID)

	got, err := env.Engine.Authenticate(env.Ctx, "ALICE@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	_, err = env.Engine.Authenticate(env.Ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = env.Engine.Authenticate(env.Ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = env.Engine.Register(env.Ctx, engine.RegisterOptions{FirstName: "A", LastName: "B", Email: "alice@example.com", Password: "secret1"})
	var conflict *engine.ConflictError
	assert.ErrorAs(t, err, &conflict)

	_, err = env.Engine.Register(env.Ctx, engine.RegisterOptions{FirstName: "A", LastName: "B", Email: "short@example.com", Password: "123"})
	var verr *validate.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "must be at least 6 characters", verr.Field("password"))
}

func TestCreateProjectInvitesListedMembers(t *testing.T) {
	env := newTestEnv(t, workflow.Permissive())
	alice := env.register(t, "Alice", "alice@example.com")
	bob := env.register(t, "Bob", "bob@example.com")

	p, err := env.Engine.CreateProject(env.Ctx, alice, engine.ProjectCreateOptions{
		Name:         "Apollo",
		Subject:      "Moon",
		MemberEmails: []string{"bob@example.com", "BOB@example.com", "alice@example.com", "carol@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, p.Creator.ID)
	require.Len(t, p.Admins, 1)
	assert.Equal(t, alice.ID, p.Admins[0].ID)
	require.Len(t, p.Members, 1)

	invs, err := env.Engine.ListInvitations(env.Ctx, bob)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, domain.InvitationPending, invs[0].Status)
	assert.Equal(t, "Alice Test", invs[0].InviterName)
	assert.Equal(t, "Apollo", invs[0].ProjectName)

	mine, err := env.Engine.ListInvitations(env.Ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, mine)

	_, err = env.Engine.GetProject(env.Ctx, bob, p.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	env.join(t, bob, p.ID)
	p, err = env.Engine.GetProject(env.Ctx, bob, p.ID)
	require.NoError(t, err)
	assert.Len(t, p.Members, 2)

	list, err := env.Engine.ListProjects(env.Ctx, bob)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)
}

func TestCreateProjectRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, workflow.Permissive())
	alice := env.register(t, "Alice", "alice@example.com")

	_, err := env.Engine.CreateProject(env.Ctx, alice, engine.ProjectCreateOptions{Name: " ", Subject: "x", MemberEmails: []string{"not-an-email"}})
	var verr *validate.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "is required", verr.Field("name"))
	assert.NotEmpty(t, verr.Fields)

	list, err := env.Engine.ListProjects(env.Ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRespondInvitationOnlyOnce(t *testing.T) {
	env := newTestEnv(t, workflow.Permissive())
	alice := env.register(t, "Alice", "alice@example.com")
	bob := env.register(t, "Bob", "bob@example.com")
	carol := env.register(t, "Carol", "carol@example.com")
	p, err := env.Engine.CreateProject(env.Ctx, alice, engine.ProjectCreateOptions{Name: "P", Subject: "S", MemberEmails: []string{"bob@example.com"}})
	require.NoError(t, err)

	invs, err := env.Engine.ListInvitations(env.Ctx, bob)
	require.NoError(t, err)
	require.Len(t, invs, 1)

	_, err = env.Engine.RespondInvitation(env.Ctx, carol, invs[0].ID, true)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	inv, err := env.Engine.RespondInvitation(env.Ctx, bob, invs[0].ID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationRejected, inv.Status)

	_, err = env.Engine.RespondInvitation(env.Ctx, bob, invs[0].ID, true)
	var conflict *engine.ConflictError
	require.ErrorAs(t, err, &conflict)

	invs, err = env.Engine.ListInvitations(env.Ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationRejected, invs[0].Status)
	_, err = env.Engine.GetProject(env.Ctx, bob, p.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestAdminManagement(t *testing.T) {
	env := newTestEnv(t, workflow.Permissive())
	alice := env.register(t, "Alice", "alice@example.com")
	bob := env.register(t, "Bob", "bob@example.com")
	carol := env.register(t, "Carol", "carol@example.com")
	p, err := env.Engine.CreateProject(env.Ctx, alice, engine.ProjectCreateOptions{
		Name: "P", Subject: "S", MemberEmails: []string{"bob@example.com", "carol@example.com"},
	})
	require.NoError(t, err)
	env.join(t, bob, p.ID)
	env.join(t, carol, p.ID)

	p, err = env.Engine.GrantAdmin(env.Ctx, alice, p.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, access.IsAdmin(p, bob.ID))

	var forbidden *access.ForbiddenError
	_, err = env.Engine.GrantAdmin(env.Ctx, bob, p.ID, carol.ID)
	assert.ErrorAs(t, err, &forbidden, "only the creator manages admins")
	_, err = env.Engine.RevokeAdmin(env.Ctx, alice, p.ID, alice.ID)
	assert.ErrorAs(t, err, &forbidden, "creator keeps admin")

	p, err = env.Engine.RevokeAdmin(env.Ctx, alice, p.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, access.IsAdmin(p, bob.ID))
}

func TestTaskPermissions(t *testing.T) {
	env := newTestEnv(t, workflow.Permissive())
	alice := env.register(t, "Alice", "alice@example.com")
	bob := env.register(t, "Bob", "bob@example.com")
	carol := env.register(t, "Carol", "carol@example.com")
	dave := env.register(t, "Dave", "dave@example.com")
	p, err := env.Engine.CreateProject(env.Ctx, alice, engine.ProjectCreateOptions{
		Name: "P", Subject: "S", MemberEmails: []string{"bob@example.com", "carol@example.com"},
	})
	require.NoError(t, err)
	env.join(t, bob, p.ID)
	env.join(t, carol, p.ID)

	var forbidden *access.ForbiddenError
	_, err = env.Engine.CreateTask(env.Ctx, bob, engine.TaskCreateOptions{ProjectID: p.ID, Title: "x", AssignedToID: bob.ID})
	assert.ErrorAs(t, err, &forbidden, "members cannot create tasks")
	_, err = env.Engine.CreateTask(env.Ctx, alice, engine.TaskCreateOptions{ProjectID: p.ID, Title: "x", AssignedToID: dave.ID})
	assert.ErrorAs(t, err, &forbidden, "assignee must be a member")

	task, err := env.Engine.CreateTask(env.Ctx, alice, engine.TaskCreateOptions{ProjectID: p.ID, Title: " Write ", AssignedToID: bob.ID})
	require.NoError(t, err)
	assert.Equal(t, "Write", task.Title)
	assert.Equal(t, domain.TaskPending, task.Status)
	assert.Equal(t, "P", task.ProjectName)

	_, err = env.Engine.UpdateTaskStatus(env.Ctx, carol, task.ID, domain.TaskInProgress)
	assert.ErrorAs(t, err, &forbidden, "other members cannot change status")
	_, err = env.Engine.UpdateTaskStatus(env.Ctx, dave, task.ID, domain.TaskInProgress)
	assert.ErrorIs(t, err, repo.ErrNotFound, "outsiders do not see the task")

	task, err = env.Engine.UpdateTaskStatus(env.Ctx, bob, task.ID, domain.TaskInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskInProgress, task.Status)

	mine, err := env.Engine.ListMyTasks(env.Ctx, bob, "")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	done, err := env.Engine.ListMyTasks(env.Ctx, bob, domain.TaskCompleted)
	require.NoError(t, err)
	assert.Empty(t, done)

	assert.ErrorAs(t, env.Engine.DeleteTask(env.Ctx, bob, task.ID), &forbidden, "assignee cannot delete")
	require.NoError(t, env.Engine.DeleteTask(env.Ctx, alice, task.ID))
	_, err = env.Engine.GetTask(env.Ctx, alice, task.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestUpdateTaskReassigns(t *testing.T) {
	env := newTestEnv(t, workflow.Permissive())
	alice := env.register(t, "Alice", "alice@example.com")
	bob := env.register(t, "Bob", "bob@example.com")
	p, err := env.Engine.CreateProject(env.Ctx, alice, engine.ProjectCreateOptions{Name: "P", Subject: "S", MemberEmails: []string{"bob@example.com"}})
	require.NoError(t, err)
	env.join(t, bob, p.ID)
	task, err := env.Engine.CreateTask(env.Ctx, alice, engine.TaskCreateOptions{ProjectID: p.ID, Title: "x", AssignedToID: alice.ID})
	require.NoError(t, err)

	due := domain.NewDate(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	task, err = env.Engine.UpdateTask(env.Ctx, alice, task.ID, engine.TaskUpdateOptions{Title: "y", Description: "d", Deadline: &due, AssignedToID: bob.ID})
	require.NoError(t, err)
	assert.Equal(t, "y", task.Title)
	assert.Equal(t, bob.ID, task.AssignedTo.ID)
	require.NotNil(t, task.Deadline)
	assert.Equal(t, "2026-03-01", task.Deadline.String())

	_, err = env.Engine.UpdateTask(env.Ctx, alice, task.ID, engine.TaskUpdateOptions{AssignedToID: bob.ID})
	var verr *validate.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "is required", verr.Field("title"))
}

func TestStrictPolicyRefusesSkips(t *testing.T) {
	env := newTestEnv(t, workflow.Strict())
	alice := env.register(t, "Alice", "alice@example.com")
	p, err := env.Engine.CreateProject(env.Ctx, alice, engine.ProjectCreateOptions{Name: "P", Subject: "S"})
	require.NoError(t, err)
	task, err := env.Engine.CreateTask(env.Ctx, alice, engine.TaskCreateOptions{ProjectID: p.ID, Title: "x", AssignedToID: alice.ID})
	require.NoError(t, err)

	_, err = env.Engine.UpdateTaskStatus(env.Ctx, alice, task.ID, domain.TaskCompleted)
	var terr *workflow.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.TaskPending, terr.From)

	_, err = env.Engine.UpdateTaskStatus(env.Ctx, alice, task.ID, domain.TaskInProgress)
	require.NoError(t, err)
	_, err = env.Engine.UpdateTaskStatus(env.Ctx, alice, task.ID, domain.TaskCompleted)
	require.NoError(t, err)

	_, err = env.Engine.UpdateTaskStatus(env.Ctx, alice, task.ID, "DONE")
	var verr *validate.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestPermissivePolicyAllowsAnyTarget(t *testing.T) {
	env := newTestEnv(t, workflow.Permissive())
	alice := env.register(t, "Alice", "alice@example.com")
	p, err := env.Engine.CreateProject(env.Ctx, alice, engine.ProjectCreateOptions{Name: "P", Subject: "S"})
	require.NoError(t, err)
	task, err := env.Engine.CreateTask(env.Ctx, alice, engine.TaskCreateOptions{ProjectID: p.ID, Title: "x", AssignedToID: alice.ID})
	require.NoError(t, err)

	task, err = env.Engine.UpdateTaskStatus(env.Ctx, alice, task.ID, domain.TaskCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, task.Status)
}

func TestMutationsAppendEvents(t *testing.T) {
	env := newTestEnv(t, workflow.Permissive())
	alice := env.register(t, "Alice", "alice@example.com")
	bob := env.register(t, "Bob", "bob@example.com")
	p, err := env.Engine.CreateProject(env.Ctx, alice, engine.ProjectCreateOptions{Name: "P", Subject: "S", MemberEmails: []string{"bob@example.com"}})
	require.NoError(t, err)
	env.join(t, bob, p.ID)
	task, err := env.Engine.CreateTask(env.Ctx, alice, engine.TaskCreateOptions{ProjectID: p.ID, Title: "x", AssignedToID: bob.ID})
	require.NoError(t, err)
	_, err = env.Engine.UpdateTaskStatus(env.Ctx, bob, task.ID, domain.TaskInProgress)
	require.NoError(t, err)

	evs, err := env.Engine.ProjectEvents(env.Ctx, bob, p.ID, 0)
	require.NoError(t, err)
	var types []string
	for _, e := range evs {
		types = append(types, e.Type)
		assert.Equal(t, "2026-01-01T09:00:00Z", e.TS)
	}
	assert.Equal(t, []string{
		events.TaskStatusChanged,
		events.TaskCreated,
		events.InvitationAnswered,
		events.MemberJoined,
		events.InvitationCreated,
		events.ProjectCreated,
	}, types)
	assert.JSONEq(t, `{"from":"PENDING","to":"IN_PROGRESS"}`, string(evs[0].Payload))

	carol := env.register(t, "Carol", "carol@example.com")
	_, err = env.Engine.ProjectEvents(env.Ctx, carol, p.ID, 0)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}
