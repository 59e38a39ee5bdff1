package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrClinicianNotFound = errors.New("clinician not found")
	ErrContactNotFound   = errors.New("contact not found")
	ErrSlotNotFound      = errors.New("slot not found")
	ErrRequestNotFound   = errors.New("consultation request not found")

	// ErrSlotTaken reports a uniqueness-constraint violation on the
	// consultation's slot reference. It is transient from the protocol's point
	// of view: the booking loop excludes the slot and tries the next one.
	ErrSlotTaken = errors.New("slot already claimed by another consultation")

	// ErrRequestNotPending reports a guarded status transition that found the
	// request already decided.
	ErrRequestNotPending = errors.New("request is no longer pending")
)

// Repository contains all DB interactions needed by the booking service.
// InTx yields a Repository bound to one transaction; the commit step of the
// booking protocol runs both of its writes through it.
type Repository interface {
	GetClinicianByID(ctx context.Context, id uuid.UUID) (*Clinician, error)
	GetContactByID(ctx context.Context, id uuid.UUID) (*Contact, error)
	UpsertContactByPhone(ctx context.Context, c *Contact) error

	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	CreateSlot(ctx context.Context, s *Slot) error
	// ListBookableSlots returns unbooked slots starting at or after notBefore,
	// optionally restricted to one clinician, ordered by start then id.
	ListBookableSlots(ctx context.Context, notBefore time.Time, clinicianID *uuid.UUID) ([]Slot, error)
	DeleteSlot(ctx context.Context, id uuid.UUID) error
	// DeleteUnbookedSlots removes slots with no linked consultation, further
	// narrowed by clinician and end-time cutoff. Returns rows removed.
	DeleteUnbookedSlots(ctx context.Context, clinicianID *uuid.UUID, endedBefore *time.Time) (int64, error)
	SlotHasConsultation(ctx context.Context, slotID uuid.UUID) (bool, error)

	GetRequestByID(ctx context.Context, id uuid.UUID) (*ConsultationRequest, error)
	CreateRequest(ctx context.Context, r *ConsultationRequest) error
	// UpdateRequestStatus transitions from -> to guarded by the current status;
	// returns ErrRequestNotPending when the row is already decided.
	UpdateRequestStatus(ctx context.Context, id uuid.UUID, from, to RequestStatus, actor uuid.UUID, at time.Time) (*ConsultationRequest, error)

	// CreateConsultation returns ErrSlotTaken on a slot-reference uniqueness
	// violation.
	CreateConsultation(ctx context.Context, c *Consultation) error
	GetConsultationForSlot(ctx context.Context, slotID uuid.UUID) (*Consultation, error)

	InTx(ctx context.Context, fn func(r Repository) error) error
}
