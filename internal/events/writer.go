package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written by the engine.
const (
	CaseEvaluated        = "case.evaluated"
	CapacityChecked      = "capacity.checked"
	AssignmentCreated    = "assignment.created"
	AssignmentActivated  = "assignment.activated"
	OverrideOpened       = "override.opened"
	OverrideApproved     = "override.approved"
	OverrideDenied       = "override.denied"
	OverrideMoreInfo     = "override.more_info_requested"
	OverrideResubmitted  = "override.resubmitted"
	ReleaseChecked       = "release.checked"
	PolicyUpdated        = "policy.updated"
	CaseworkerRegistered = "caseworker.registered"
	ActorRegistered      = "actor.registered"
	APIKeyCreated        = "api_key.created"
	APIKeyRevoked        = "api_key.revoked"
	AssignmentReleased   = "assignment.released"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one audit row inside the caller's transaction.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, caseID, entityKind, entityID, actorID string, payload EventPayload) error {
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
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,case_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(caseID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
