package booking

import (
	"time"

	"github.com/google/uuid"
)

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusRejected RequestStatus = "rejected"
)

type Clinician struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contact is the person behind inbound consultation requests, keyed by phone.
type Contact struct {
	ID        uuid.UUID
	Name      string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Slot is a clinician-published availability window. Once a consultation
// references it, the row is never removed.
type Slot struct {
	ID          uuid.UUID
	ClinicianID uuid.UUID
	StartAt     time.Time
	EndAt       time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ConsultationRequest is an inbound request for care. It is created pending
// and transitions exactly once, to accepted or rejected; the transition carries
// the deciding actor and instant.
type ConsultationRequest struct {
	ID        uuid.UUID
	ContactID uuid.UUID
	Message   string
	Status    RequestStatus
	DecidedBy *uuid.UUID
	DecidedAt *time.Time
	CreatedAt time.Time
}

// Consultation links an accepted request to the slot and clinician serving it.
// slot_id carries a uniqueness constraint; that constraint, not application
// logic, decides who wins a booking race. Consultations are never deleted.
type Consultation struct {
	ID          uuid.UUID
	ClinicianID uuid.UUID
	RequestID   uuid.UUID
	SlotID      uuid.UUID
	CreatedAt   time.Time
}
