package access

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab/internal/domain"
)

var (
	creator  = domain.UserRef{ID: 1, FirstName: "Ada", Email: "ada@x.com"}
	admin    = domain.UserRef{ID: 2, FirstName: "Bo", Email: "bo@x.com"}
	member   = domain.UserRef{ID: 3, FirstName: "Cy", Email: "cy@x.com"}
	outsider = domain.UserRef{ID: 4, FirstName: "Di", Email: "di@x.com"}
)

func sampleProject() domain.Project {
	return domain.Project{
		ID:      10,
		Name:    "Apollo",
		Creator: creator,
		Admins:  []domain.UserRef{admin},
		Members: []domain.UserRef{creator, admin, member},
	}
}

func TestCreatorIsAlwaysAdmin(t *testing.T) {
	projects := []domain.Project{
		sampleProject(),
		{ID: 11, Creator: creator},
		{ID: 12, Creator: creator, Admins: []domain.UserRef{member}, Members: []domain.UserRef{member}},
	}
	for _, p := range projects {
		assert.True(t, IsAdmin(p, p.Creator.ID), "project %d", p.ID)
		assert.True(t, IsMember(p, p.Creator.ID), "project %d", p.ID)
	}
}

func TestCanCreateTask(t *testing.T) {
	p := sampleProject()
	assert.True(t, CanCreateTask(p, creator))
	assert.True(t, CanCreateTask(p, admin))
	assert.False(t, CanCreateTask(p, member))
	assert.False(t, CanCreateTask(p, outsider))
}

func TestCanUpdateTaskStatus(t *testing.T) {
	p := sampleProject()
	task := domain.Task{ID: 5, ProjectID: p.ID, AssignedTo: member, Status: domain.TaskPending}

	for _, viewer := range []domain.UserRef{creator, admin, member} {
		assert.True(t, CanUpdateTaskStatus(p, task, viewer), "viewer %d", viewer.ID)
	}
	assert.False(t, CanUpdateTaskStatus(p, task, outsider))

	other := domain.UserRef{ID: 99}
	p.Members = append(p.Members, other)
	assert.False(t, CanUpdateTaskStatus(p, task, other), "plain member who is not the assignee")
}

func TestAdminManagement(t *testing.T) {
	p := sampleProject()

	assert.True(t, CanManageAdmins(p, creator))
	assert.False(t, CanManageAdmins(p, admin))

	assert.True(t, CanGrantAdmin(p, creator, member.ID))
	assert.False(t, CanGrantAdmin(p, creator, admin.ID), "already admin")
	assert.False(t, CanGrantAdmin(p, creator, outsider.ID), "not a member")
	assert.False(t, CanGrantAdmin(p, admin, member.ID), "admins cannot grant")

	assert.True(t, CanRevokeAdmin(p, creator, admin.ID))
	assert.False(t, CanRevokeAdmin(p, creator, creator.ID), "creator keeps admin")
	assert.False(t, CanRevokeAdmin(p, creator, member.ID), "not an admin")
}

func TestCheckReturnsForbiddenError(t *testing.T) {
	p := sampleProject()
	err := CheckCreateTask(p, member, member.ID)
	require.Error(t, err)
	var fe *ForbiddenError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ActionCreateTask, fe.Action)

	err = CheckCreateTask(p, admin, outsider.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assignee is not a project member")

	assert.NoError(t, CheckCreateTask(p, admin, member.ID))
}

func TestCanRespond(t *testing.T) {
	inv := domain.Invitation{ID: 1, Status: domain.InvitationPending}
	assert.True(t, CanRespond(inv))
	assert.NoError(t, CheckRespond(inv))

	for _, st := range []domain.InvitationStatus{domain.InvitationAccepted, domain.InvitationRejected} {
		inv.Status = st
		assert.False(t, CanRespond(inv))
		assert.Error(t, CheckRespond(inv))
	}
}

func TestRole(t *testing.T) {
	p := sampleProject()
	assert.Equal(t, "creator", Role(p, creator.ID))
	assert.Equal(t, "admin", Role(p, admin.ID))
	assert.Equal(t, "member", Role(p, member.ID))
	assert.Equal(t, "", Role(p, outsider.ID))
}
