package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type Kind string

const (
	KindCreate Kind = "CREATE"
	KindUpdate Kind = "UPDATE"
)

// Event is one immutable row in the audit trail. Rows are only ever inserted;
// the trail itself is excluded from auditing.
type Event struct {
	ActorID  uuid.UUID
	Kind     Kind
	Entity   string
	EntityID uuid.UUID
	Fields   map[string]any
	At       time.Time
}

// Trail accepts events fire-and-forget. Implementations must not block the
// caller and must never return an error into the mutation path.
type Trail interface {
	Record(ev Event)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgWriter persists events into audit_events.
type PgWriter struct {
	pool execer
}

func NewPgWriter(pool execer) *PgWriter {
	return &PgWriter{pool: pool}
}

func (w *PgWriter) Insert(ctx context.Context, ev Event) error {
	var fields []byte
	if ev.Fields != nil {
		b, err := json.Marshal(ev.Fields)
		if err != nil {
			return fmt.Errorf("marshal audit fields: %w", err)
		}
		fields = b
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := w.pool.Exec(ctx, `
		INSERT INTO audit_events (actor_id, kind, entity, entity_id, fields, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.ActorID, ev.Kind, ev.Entity, ev.EntityID, fields, at)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	return nil
}
