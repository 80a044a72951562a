package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"collab/internal/domain"
)

// Repo runs queries against the database, or against a transaction when
// obtained through WithTx.
type Repo struct {
	DB *sql.DB
	tx *sql.Tx
}

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx returns a Repo whose queries run inside tx.
func (r Repo) WithTx(tx *sql.Tx) Repo {
	return Repo{DB: r.DB, tx: tx}
}

func (r Repo) q() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.DB
}

// User is a stored account.
type User struct {
	domain.UserRef
	PasswordHash string
	CreatedAt    string
}

func (r Repo) InsertUser(ctx context.Context, u User) (int64, error) {
	res, err := r.q().ExecContext(ctx, `INSERT INTO users(first_name,last_name,email,password_hash,created_at) VALUES (?,?,?,?,?)`,
		u.FirstName, u.LastName, u.Email, u.PasswordHash, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	return res.LastInsertId()
}

const userColumns = `id,first_name,last_name,email,password_hash,created_at`

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) GetUser(ctx context.Context, id int64) (User, error) {
	return scanUser(r.q().QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

// GetUserByEmail matches case-insensitively.
func (r Repo) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.q().QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, strings.TrimSpace(email)))
}

func (r Repo) InsertProject(ctx context.Context, name, subject string, deadline *domain.Date, creatorID int64, now string) (int64, error) {
	res, err := r.q().ExecContext(ctx, `INSERT INTO projects(name,subject,deadline,creator_id,created_at) VALUES (?,?,?,?,?)`,
		name, subject, nullableDate(deadline), creatorID, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetProject loads a project with its creator, admins and members.
func (r Repo) GetProject(ctx context.Context, id int64) (domain.Project, error) {
	var (
		p        domain.Project
		deadline sql.NullString
	)
	err := r.q().QueryRowContext(ctx, `
SELECT p.id,p.name,p.subject,p.deadline,u.id,u.first_name,u.last_name,u.email
FROM projects p JOIN users u ON u.id=p.creator_id
WHERE p.id=?`, id).Scan(&p.ID, &p.Name, &p.Subject, &deadline, &p.Creator.ID, &p.Creator.FirstName, &p.Creator.LastName, &p.Creator.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if p.Deadline, err = parseDate(deadline); err != nil {
		return p, err
	}
	if p.Members, err = r.ListMembers(ctx, id); err != nil {
		return p, err
	}
	if p.Admins, err = r.ListAdmins(ctx, id); err != nil {
		return p, err
	}
	return p, nil
}

// ListProjectsForUser returns the projects userID is a member of, newest first.
func (r Repo) ListProjectsForUser(ctx context.Context, userID int64) ([]domain.Project, error) {
	rows, err := r.q().QueryContext(ctx, `
SELECT p.id FROM projects p JOIN project_members m ON m.project_id=p.id
WHERE m.user_id=? ORDER BY p.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}
	res := make([]domain.Project, 0, len(ids))
	for _, id := range ids {
		p, err := r.GetProject(ctx, id)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

const taskSelect = `
SELECT t.id,t.title,COALESCE(t.description,''),t.deadline,t.project_id,p.name,t.status,
       u.id,u.first_name,u.last_name,u.email
FROM tasks t
JOIN projects p ON p.id=t.project_id
JOIN users u ON u.id=t.assigned_to`

func scanTask(scan func(...any) error) (domain.Task, error) {
	var (
		t        domain.Task
		deadline sql.NullString
	)
	err := scan(&t.ID, &t.Title, &t.Description, &deadline, &t.ProjectID, &t.ProjectName, &t.Status,
		&t.AssignedTo.ID, &t.AssignedTo.FirstName, &t.AssignedTo.LastName, &t.AssignedTo.Email)
	if err != nil {
		return t, err
	}
	t.Deadline, err = parseDate(deadline)
	return t, err
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	t, err := scanTask(r.q().QueryRowContext(ctx, taskSelect+` WHERE t.id=?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

type TaskFilters struct {
	ProjectID  int64
	AssigneeID int64
	Status     domain.TaskStatus
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var (
		clauses []string
		args    []any
	)
	if f.ProjectID != 0 {
		clauses = append(clauses, "t.project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.AssigneeID != 0 {
		clauses = append(clauses, "t.assigned_to=?")
		args = append(args, f.AssigneeID)
	}
	if f.Status != "" {
		clauses = append(clauses, "t.status=?")
		args = append(args, string(f.Status))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.q().QueryContext(ctx, taskSelect+where+` ORDER BY t.id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// TaskRow is the writable part of a task.
type TaskRow struct {
	ID          int64
	ProjectID   int64
	Title       string
	Description string
	Deadline    *domain.Date
	AssignedTo  int64
	Status      domain.TaskStatus
}

func (r Repo) InsertTask(ctx context.Context, t TaskRow, now string) (int64, error) {
	res, err := r.q().ExecContext(ctx, `INSERT INTO tasks(project_id,title,description,deadline,assigned_to,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		t.ProjectID, t.Title, nullable(t.Description), nullableDate(t.Deadline), t.AssignedTo, string(t.Status), now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) UpdateTask(ctx context.Context, t TaskRow, now string) error {
	res, err := r.q().ExecContext(ctx, `UPDATE tasks SET title=?, description=?, deadline=?, assigned_to=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), nullableDate(t.Deadline), t.AssignedTo, now, t.ID)
	return affectedOne(res, err)
}

func (r Repo) UpdateTaskStatus(ctx context.Context, id int64, status domain.TaskStatus, now string) error {
	res, err := r.q().ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=?`, string(status), now, id)
	return affectedOne(res, err)
}

func (r Repo) DeleteTask(ctx context.Context, id int64) error {
	res, err := r.q().ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	return affectedOne(res, err)
}

const invitationSelect = `
SELECT i.id,i.project_id,p.name,p.subject,u.first_name,u.last_name,i.created_at,i.status,i.email
FROM invitations i
JOIN projects p ON p.id=i.project_id
JOIN users u ON u.id=i.inviter_id`

// StoredInvitation is an invitation plus the address it was sent to.
type StoredInvitation struct {
	domain.Invitation
	Email string
}

func scanInvitation(scan func(...any) error) (StoredInvitation, error) {
	var (
		inv                StoredInvitation
		inviterFirst, last string
		createdAt          string
	)
	err := scan(&inv.ID, &inv.ProjectID, &inv.ProjectName, &inv.ProjectSubject, &inviterFirst, &last, &createdAt, &inv.Status, &inv.Email)
	if err != nil {
		return inv, err
	}
	inv.InviterName = strings.TrimSpace(inviterFirst + " " + last)
	inv.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return inv, fmt.Errorf("invitation %d created_at: %w", inv.ID, err)
	}
	return inv, nil
}

func (r Repo) InsertInvitation(ctx context.Context, projectID, inviterID int64, email, now string) (int64, error) {
	res, err := r.q().ExecContext(ctx, `INSERT INTO invitations(project_id,inviter_id,email,status,created_at) VALUES (?,?,?,?,?)`,
		projectID, inviterID, strings.TrimSpace(email), string(domain.InvitationPending), now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetInvitation(ctx context.Context, id int64) (StoredInvitation, error) {
	inv, err := scanInvitation(r.q().QueryRowContext(ctx, invitationSelect+` WHERE i.id=?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return inv, ErrNotFound
	}
	return inv, err
}

// ListInvitationsForEmail returns every invitation addressed to email, newest first.
func (r Repo) ListInvitationsForEmail(ctx context.Context, email string) ([]domain.Invitation, error) {
	rows, err := r.q().QueryContext(ctx, invitationSelect+` WHERE i.email=? ORDER BY i.id DESC`, strings.TrimSpace(email))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, inv.Invitation)
	}
	return res, rows.Err()
}

// ResolveInvitation moves a PENDING invitation to status. It returns
// ErrNotFound when the invitation is no longer pending.
func (r Repo) ResolveInvitation(ctx context.Context, id int64, status domain.InvitationStatus, now string) error {
	res, err := r.q().ExecContext(ctx, `UPDATE invitations SET status=?, responded_at=? WHERE id=? AND status=?`,
		string(status), now, id, string(domain.InvitationPending))
	return affectedOne(res, err)
}

const eventColumns = `id,ts,type,COALESCE(project_id,0),entity_kind,COALESCE(entity_id,0),COALESCE(actor_id,0),payload_json`

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var (
			e       domain.Event
			payload string
		)
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		e.Payload = []byte(payload)
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEvents returns up to limit events of a project, newest first.
func (r Repo) LatestEvents(ctx context.Context, projectID int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q().QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE project_id=? ORDER BY id DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q().QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.q().QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableDate(d *domain.Date) any {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.String()
}

func parseDate(s sql.NullString) (*domain.Date, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
