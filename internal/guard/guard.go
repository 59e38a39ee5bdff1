// Package guard is the mandatory interception layer for domain mutations.
// Every create, update, or upsert against an audited entity carries an actor
// and produces an audit event; deletes are blocked for everything except
// unbooked slots.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careflowhq/teleconsult-scheduling/internal/audit"
)

type Kind string

const (
	KindCreate Kind = "CREATE"
	KindUpdate Kind = "UPDATE"
	KindUpsert Kind = "UPSERT"
)

// Entity names as they appear in the audit trail.
const (
	EntitySlot         = "slot"
	EntityRequest      = "consultation_request"
	EntityConsultation = "consultation"
	EntityClinician    = "clinician"
	EntityContact      = "contact"
)

var (
	// ErrMissingActor is a contract violation, not a business error: a caller
	// attempted a mutation without attributing it. Never defaulted away.
	ErrMissingActor = errors.New("guard: mutation requires an actor id")

	ErrDeleteForbidden     = errors.New("guard: delete is not permitted for this entity")
	ErrSlotInMedicalRecord = errors.New("slot is part of a medical record and cannot be deleted")
	ErrUnsafeBulkDelete    = errors.New("guard: bulk slot delete must exclude booked slots")
)

// Mutation describes one attributed write. Actor travels out-of-band and is
// never part of the persisted payload.
type Mutation struct {
	Actor    uuid.UUID
	Kind     Kind
	Entity   string
	EntityID uuid.UUID
	Fields   map[string]any
}

// SlotLedger answers whether a slot is referenced by a consultation. The check
// runs inside the same call (and, when the caller is in a transaction, the same
// transaction) as the delete it protects.
type SlotLedger interface {
	SlotHasConsultation(ctx context.Context, slotID uuid.UUID) (bool, error)
}

// BulkFilter restricts a bulk slot delete. ExcludeBooked is structurally
// required: without it the delete is rejected before touching storage.
type BulkFilter struct {
	ExcludeBooked bool
	ClinicianID   *uuid.UUID
	EndedBefore   *time.Time
}

type Gatekeeper struct {
	trail audit.Trail
}

func New(trail audit.Trail) *Gatekeeper {
	return &Gatekeeper{trail: trail}
}

// Exec validates attribution, runs the write, and on success records exactly
// one audit event. The audit write is fire-and-forget: it can be lost, it can
// never fail the mutation.
func (g *Gatekeeper) Exec(ctx context.Context, m Mutation, write func(ctx context.Context) error) error {
	if m.Actor == uuid.Nil {
		return fmt.Errorf("%w (entity %s, kind %s)", ErrMissingActor, m.Entity, m.Kind)
	}

	if err := write(ctx); err != nil {
		return err
	}

	g.trail.Record(audit.Event{
		ActorID:  m.Actor,
		Kind:     auditKind(m.Kind),
		Entity:   m.Entity,
		EntityID: m.EntityID,
		Fields:   m.Fields,
	})

	return nil
}

// ExecReturning is Exec for writes whose row id is only known after the write
// lands (upserts resolving against an existing row). The returned id goes into
// the audit event.
func (g *Gatekeeper) ExecReturning(ctx context.Context, m Mutation, write func(ctx context.Context) (uuid.UUID, error)) error {
	if m.Actor == uuid.Nil {
		return fmt.Errorf("%w (entity %s, kind %s)", ErrMissingActor, m.Entity, m.Kind)
	}

	id, err := write(ctx)
	if err != nil {
		return err
	}

	g.trail.Record(audit.Event{
		ActorID:  m.Actor,
		Kind:     auditKind(m.Kind),
		Entity:   m.Entity,
		EntityID: id,
		Fields:   m.Fields,
	})

	return nil
}

// ExecDelete permits a single-row delete only for slots, and only when the
// slot has no linked consultation. Deletes are not audited: the trail records
// CREATE and UPDATE only, and clinical rows never reach this path.
func (g *Gatekeeper) ExecDelete(ctx context.Context, actor uuid.UUID, entity string, id uuid.UUID, ledger SlotLedger, del func(ctx context.Context) error) error {
	if actor == uuid.Nil {
		return fmt.Errorf("%w (entity %s, kind DELETE)", ErrMissingActor, entity)
	}
	if entity != EntitySlot {
		return fmt.Errorf("%w: %s", ErrDeleteForbidden, entity)
	}

	booked, err := ledger.SlotHasConsultation(ctx, id)
	if err != nil {
		return fmt.Errorf("check slot consultation: %w", err)
	}
	if booked {
		return ErrSlotInMedicalRecord
	}

	return del(ctx)
}

// ExecBulkDelete permits a bulk delete on slots only when the filter carries
// the no-consultation predicate. The check fails fast, before any storage
// access.
func (g *Gatekeeper) ExecBulkDelete(ctx context.Context, actor uuid.UUID, entity string, filter BulkFilter, del func(ctx context.Context) error) error {
	if actor == uuid.Nil {
		return fmt.Errorf("%w (entity %s, kind DELETE)", ErrMissingActor, entity)
	}
	if entity != EntitySlot {
		return fmt.Errorf("%w: %s", ErrDeleteForbidden, entity)
	}
	if !filter.ExcludeBooked {
		return ErrUnsafeBulkDelete
	}

	return del(ctx)
}

func auditKind(k Kind) audit.Kind {
	// Upserts are recorded as updates: the payload is the set of submitted
	// fields either way.
	if k == KindCreate {
		return audit.KindCreate
	}
	return audit.KindUpdate
}
