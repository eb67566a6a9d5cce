package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"shelter/internal/db"
)

// Event types recorded by the lifecycle engine.
const (
	AdoptionCreated      = "adoption.created"
	AdoptionApproved     = "adoption.approved"
	AdoptionRejected     = "adoption.rejected"
	AdoptionAutoRejected = "adoption.auto_rejected"
	AdoptionReverted     = "adoption.reverted"
	AdoptionReturned     = "adoption.returned"
	AdoptionDeleted      = "adoption.deleted"
	ReturnCreated        = "return.created"
	ReturnDeleted        = "return.deleted"
	AnimalCreated        = "animal.created"
	AnimalUpdated        = "animal.updated"
	AnimalStatusChanged  = "animal.status_changed"
	AnimalDeleted        = "animal.deleted"
	UserCreated          = "user.created"
	UserDeleted          = "user.deleted"
	APIKeyIssued         = "api_key.issued"
	APIKeyRevoked        = "api_key.revoked"
)

type Writer struct {
	DB  *db.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one event inside tx. Ids are UUIDv7 so they sort by time.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
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
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("event id: %w", err)
	}
	_, err = tx.ExecContext(ctx, w.DB.Rebind(`INSERT INTO events(id,ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`),
		id.String(), ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
