package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended by the engine.
const (
	ProjectCreated     = "project.created"
	AdminGranted       = "project.admin_granted"
	AdminRevoked       = "project.admin_revoked"
	MemberJoined       = "project.member_joined"
	TaskCreated        = "task.created"
	TaskUpdated        = "task.updated"
	TaskStatusChanged  = "task.status_changed"
	TaskDeleted        = "task.deleted"
	InvitationCreated  = "invitation.created"
	InvitationAnswered = "invitation.answered"
	UserRegistered     = "user.registered"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event inside tx so it commits or rolls back with the
// mutation it describes. Zero ids are stored as NULL.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType string, projectID int64, entityKind string, entityID, actorID int64, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(projectID), entityKind, nullable(entityID), nullable(actorID), string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

func nullable(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
