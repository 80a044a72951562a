// Package access derives a viewer's standing in a project (creator, admin,
// member) and decides which mutations that viewer may attempt.
//
// The same rules run in the CLI before an action is offered and in the API
// server before a mutation is committed. Only the server's answer is binding.
package access

import (
	"fmt"

	"collab/internal/domain"
)

// Action names a gated mutation.
type Action string

const (
	ActionGrantAdmin   Action = "grant admin"
	ActionRevokeAdmin  Action = "revoke admin"
	ActionCreateTask   Action = "create task"
	ActionUpdateStatus Action = "update task status"
	ActionDeleteTask   Action = "delete task"
	ActionRespond      Action = "respond to invitation"
	ActionViewProject  Action = "view project"
)

// ForbiddenError reports an action the viewer may not perform.
type ForbiddenError struct {
	Action Action
	Reason string
}

func (e *ForbiddenError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("not allowed to %s", e.Action)
	}
	return fmt.Sprintf("not allowed to %s: %s", e.Action, e.Reason)
}

func forbid(action Action, reason string) error {
	return &ForbiddenError{Action: action, Reason: reason}
}

func IsCreator(p domain.Project, userID int64) bool {
	return p.Creator.ID == userID
}

// IsAdmin is true for listed admins and always for the creator.
func IsAdmin(p domain.Project, userID int64) bool {
	if IsCreator(p, userID) {
		return true
	}
	return contains(p.Admins, userID)
}

func IsMember(p domain.Project, userID int64) bool {
	return IsCreator(p, userID) || contains(p.Members, userID)
}

// CanManageAdmins is true only for the creator.
func CanManageAdmins(p domain.Project, viewer domain.UserRef) bool {
	return IsCreator(p, viewer.ID)
}

func CanGrantAdmin(p domain.Project, viewer domain.UserRef, targetID int64) bool {
	return CheckGrantAdmin(p, viewer, targetID) == nil
}

func CanRevokeAdmin(p domain.Project, viewer domain.UserRef, targetID int64) bool {
	return CheckRevokeAdmin(p, viewer, targetID) == nil
}

func CanCreateTask(p domain.Project, viewer domain.UserRef) bool {
	return IsAdmin(p, viewer.ID)
}

// CanAssign reports whether a task in p may target assigneeID.
func CanAssign(p domain.Project, assigneeID int64) bool {
	return IsMember(p, assigneeID)
}

// CanUpdateTaskStatus allows project admins and the task's assignee. p must be
// the project owning t.
func CanUpdateTaskStatus(p domain.Project, t domain.Task, viewer domain.UserRef) bool {
	return IsAdmin(p, viewer.ID) || t.AssignedTo.ID == viewer.ID
}

func CanDeleteTask(p domain.Project, viewer domain.UserRef) bool {
	return IsAdmin(p, viewer.ID)
}

// CanRespond is false once an invitation has left PENDING.
func CanRespond(inv domain.Invitation) bool {
	return inv.Status == domain.InvitationPending
}

func CheckView(p domain.Project, viewer domain.UserRef) error {
	if !IsMember(p, viewer.ID) {
		return forbid(ActionViewProject, "not a project member")
	}
	return nil
}

func CheckGrantAdmin(p domain.Project, viewer domain.UserRef, targetID int64) error {
	if !CanManageAdmins(p, viewer) {
		return forbid(ActionGrantAdmin, "only the project creator manages admins")
	}
	if IsCreator(p, targetID) {
		return forbid(ActionGrantAdmin, "the creator is always an admin")
	}
	if !IsMember(p, targetID) {
		return forbid(ActionGrantAdmin, "user is not a project member")
	}
	if IsAdmin(p, targetID) {
		return forbid(ActionGrantAdmin, "user is already an admin")
	}
	return nil
}

func CheckRevokeAdmin(p domain.Project, viewer domain.UserRef, targetID int64) error {
	if !CanManageAdmins(p, viewer) {
		return forbid(ActionRevokeAdmin, "only the project creator manages admins")
	}
	if IsCreator(p, targetID) {
		return forbid(ActionRevokeAdmin, "the creator cannot lose admin rights")
	}
	if !IsAdmin(p, targetID) {
		return forbid(ActionRevokeAdmin, "user is not an admin")
	}
	return nil
}

func CheckCreateTask(p domain.Project, viewer domain.UserRef, assigneeID int64) error {
	if !CanCreateTask(p, viewer) {
		return forbid(ActionCreateTask, "only project admins create tasks")
	}
	if !CanAssign(p, assigneeID) {
		return forbid(ActionCreateTask, "assignee is not a project member")
	}
	return nil
}

func CheckUpdateTaskStatus(p domain.Project, t domain.Task, viewer domain.UserRef) error {
	if !CanUpdateTaskStatus(p, t, viewer) {
		return forbid(ActionUpdateStatus, "only project admins and the assignee change status")
	}
	return nil
}

func CheckDeleteTask(p domain.Project, viewer domain.UserRef) error {
	if !CanDeleteTask(p, viewer) {
		return forbid(ActionDeleteTask, "only project admins delete tasks")
	}
	return nil
}

func CheckRespond(inv domain.Invitation) error {
	if !CanRespond(inv) {
		return forbid(ActionRespond, fmt.Sprintf("invitation already %s", inv.Status))
	}
	return nil
}

// Role names the viewer's highest standing in a project, for display.
func Role(p domain.Project, userID int64) string {
	switch {
	case IsCreator(p, userID):
		return "creator"
	case IsAdmin(p, userID):
		return "admin"
	case IsMember(p, userID):
		return "member"
	default:
		return ""
	}
}

func contains(users []domain.UserRef, id int64) bool {
	for _, u := range users {
		if u.ID == id {
			return true
		}
	}
	return false
}
