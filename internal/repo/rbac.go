package repo

import (
	"context"

	"collab/internal/domain"
)

func (r Repo) AddMember(ctx context.Context, projectID, userID int64, now string) error {
	_, err := r.q().ExecContext(ctx, `INSERT OR IGNORE INTO project_members(project_id, user_id, joined_at) VALUES (?,?,?)`, projectID, userID, now)
	return err
}

func (r Repo) GrantAdmin(ctx context.Context, projectID, userID int64, now string) error {
	_, err := r.q().ExecContext(ctx, `INSERT OR IGNORE INTO project_admins(project_id, user_id, granted_at) VALUES (?,?,?)`, projectID, userID, now)
	return err
}

func (r Repo) RevokeAdmin(ctx context.Context, projectID, userID int64) error {
	res, err := r.q().ExecContext(ctx, `DELETE FROM project_admins WHERE project_id=? AND user_id=?`, projectID, userID)
	return affectedOne(res, err)
}

// ListMembers returns members in joining order.
func (r Repo) ListMembers(ctx context.Context, projectID int64) ([]domain.UserRef, error) {
	return r.listUsers(ctx, `
SELECT u.id,u.first_name,u.last_name,u.email
FROM project_members m JOIN users u ON u.id=m.user_id
WHERE m.project_id=? ORDER BY m.joined_at, u.id`, projectID)
}

// ListAdmins returns admins in granting order; the creator is stored as an
// admin when the project is created.
func (r Repo) ListAdmins(ctx context.Context, projectID int64) ([]domain.UserRef, error) {
	return r.listUsers(ctx, `
SELECT u.id,u.first_name,u.last_name,u.email
FROM project_admins a JOIN users u ON u.id=a.user_id
WHERE a.project_id=? ORDER BY a.granted_at, u.id`, projectID)
}

func (r Repo) listUsers(ctx context.Context, query string, args ...any) ([]domain.UserRef, error) {
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []domain.UserRef{}
	for rows.Next() {
		var u domain.UserRef
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
