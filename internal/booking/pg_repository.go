package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxIface is the subset of pgxpool.Pool the repository needs. pgx.Tx and
// pgxmock pools satisfy it too, which is what makes InTx and the tests work.
type PgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool PgxIface
}

func NewPgRepository(pool PgxIface) *PgRepository {
	return &PgRepository{pool: pool}
}

// Error classification

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"

	slotUniqueConstraint    = "consultations_slot_id_key"
	requestUniqueConstraint = "consultations_request_id_key"
)

// IsTransient reports commit failures worth re-attempting against the same
// slot: serialization failures and deadlocks.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
}

// Helpers

func scanClinician(row pgx.Row) (*Clinician, error) {
	var c Clinician
	var specialty *string

	err := row.Scan(&c.ID, &c.Name, &specialty, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicianNotFound
		}
		return nil, err
	}

	c.Specialty = specialty
	return &c, nil
}

func scanContact(row pgx.Row) (*Contact, error) {
	var c Contact

	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}

	return &c, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(&s.ID, &s.ClinicianID, &s.StartAt, &s.EndAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanRequest(row pgx.Row) (*ConsultationRequest, error) {
	var r ConsultationRequest
	var decidedBy *uuid.UUID
	var decidedAt *time.Time

	err := row.Scan(&r.ID, &r.ContactID, &r.Message, &r.Status, &decidedBy, &decidedAt, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}

	r.DecidedBy = decidedBy
	r.DecidedAt = decidedAt
	return &r, nil
}

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation

	err := row.Scan(&c.ID, &c.ClinicianID, &c.RequestID, &c.SlotID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &c, nil
}

// Interface methods

func (r *PgRepository) GetClinicianByID(ctx context.Context, id uuid.UUID) (*Clinician, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM clinicians
		WHERE id = $1
	`, id)
	return scanClinician(row)
}

func (r *PgRepository) GetContactByID(ctx context.Context, id uuid.UUID) (*Contact, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, phone, created_at, updated_at
		FROM contacts
		WHERE id = $1
	`, id)
	return scanContact(row)
}

func (r *PgRepository) UpsertContactByPhone(ctx context.Context, c *Contact) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO contacts (id, name, phone, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (phone) DO UPDATE
		SET name = EXCLUDED.name,
		    updated_at = now()
		RETURNING id, name, phone, created_at, updated_at
	`, c.ID, c.Name, c.Phone)

	stored, err := scanContact(row)
	if err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}

	*c = *stored
	return nil
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, clinician_id, start_at, end_at, created_at, updated_at
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) CreateSlot(ctx context.Context, s *Slot) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO slots (id, clinician_id, start_at, end_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id, clinician_id, start_at, end_at, created_at, updated_at
	`, s.ID, s.ClinicianID, s.StartAt, s.EndAt)

	stored, err := scanSlot(row)
	if err != nil {
		return fmt.Errorf("create slot: %w", err)
	}

	*s = *stored
	return nil
}

func (r *PgRepository) ListBookableSlots(ctx context.Context, notBefore time.Time, clinicianID *uuid.UUID) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.clinician_id, s.start_at, s.end_at, s.created_at, s.updated_at
		FROM slots s
		LEFT JOIN consultations c ON c.slot_id = s.id
		WHERE c.id IS NULL
		  AND s.start_at >= $1
		  AND ($2::uuid IS NULL OR s.clinician_id = $2)
		ORDER BY s.start_at ASC, s.id ASC
	`, notBefore, clinicianID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM slots
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}

	return nil
}

func (r *PgRepository) DeleteUnbookedSlots(ctx context.Context, clinicianID *uuid.UUID, endedBefore *time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM slots s
		WHERE NOT EXISTS (
		    SELECT 1 FROM consultations c WHERE c.slot_id = s.id
		)
		  AND ($1::uuid IS NULL OR s.clinician_id = $1)
		  AND ($2::timestamptz IS NULL OR s.end_at < $2)
	`, clinicianID, endedBefore)
	if err != nil {
		return 0, fmt.Errorf("delete unbooked slots: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *PgRepository) SlotHasConsultation(ctx context.Context, slotID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
		    SELECT 1 FROM consultations WHERE slot_id = $1
		)
	`, slotID).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

func (r *PgRepository) GetRequestByID(ctx context.Context, id uuid.UUID) (*ConsultationRequest, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, contact_id, message, status, decided_by, decided_at, created_at
		FROM consultation_requests
		WHERE id = $1
	`, id)
	return scanRequest(row)
}

func (r *PgRepository) CreateRequest(ctx context.Context, req *ConsultationRequest) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO consultation_requests (id, contact_id, message, status, created_at)
		VALUES ($1, $2, $3, 'pending', now())
		RETURNING id, contact_id, message, status, decided_by, decided_at, created_at
	`, req.ID, req.ContactID, req.Message)

	stored, err := scanRequest(row)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	*req = *stored
	return nil
}

func (r *PgRepository) UpdateRequestStatus(ctx context.Context, id uuid.UUID, from, to RequestStatus, actor uuid.UUID, at time.Time) (*ConsultationRequest, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE consultation_requests
		SET status = $2,
		    decided_by = $3,
		    decided_at = $4
		WHERE id = $1
		  AND status = $5
		RETURNING id, contact_id, message, status, decided_by, decided_at, created_at
	`, id, to, actor, at, from)

	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			// Either the row is gone or it is no longer in the expected
			// status. Distinguish so callers report the right thing.
			if _, getErr := r.GetRequestByID(ctx, id); getErr == nil {
				return nil, ErrRequestNotPending
			}
			return nil, ErrRequestNotFound
		}
		return nil, err
	}

	return req, nil
}

func (r *PgRepository) CreateConsultation(ctx context.Context, c *Consultation) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO consultations (id, clinician_id, request_id, slot_id, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, clinician_id, request_id, slot_id, created_at
	`, c.ID, c.ClinicianID, c.RequestID, c.SlotID)

	stored, err := scanConsultation(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			switch pgErr.ConstraintName {
			case slotUniqueConstraint:
				return ErrSlotTaken
			case requestUniqueConstraint:
				return ErrRequestNotPending
			}
		}
		return fmt.Errorf("create consultation: %w", err)
	}

	*c = *stored
	return nil
}

func (r *PgRepository) GetConsultationForSlot(ctx context.Context, slotID uuid.UUID) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, clinician_id, request_id, slot_id, created_at
		FROM consultations
		WHERE slot_id = $1
	`, slotID)

	c, err := scanConsultation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return c, nil
}

func (r *PgRepository) InTx(ctx context.Context, fn func(r Repository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PgRepository{pool: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
