package api

import (
	"time"

	"github.com/google/uuid"
)

type IngestRequestBody struct {
	Phone   string `json:"phone"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

type AcceptRequestBody struct {
	NotificationTemplate  string `json:"notification_template"`
	AssignToRequesterOnly bool   `json:"assign_to_requester_only"`
}

type PublishSlotBody struct {
	ClinicianID string    `json:"clinician_id"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
}

type PruneSlotsBody struct {
	ClinicianID *string    `json:"clinician_id,omitempty"`
	EndedBefore *time.Time `json:"ended_before,omitempty"`
}

type RequestResponse struct {
	ID        uuid.UUID  `json:"id"`
	ContactID uuid.UUID  `json:"contact_id"`
	Message   string     `json:"message"`
	Status    string     `json:"status"`
	DecidedBy *uuid.UUID `json:"decided_by,omitempty"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type ConsultationResponse struct {
	ID          uuid.UUID `json:"id"`
	ClinicianID uuid.UUID `json:"clinician_id"`
	RequestID   uuid.UUID `json:"request_id"`
	SlotID      uuid.UUID `json:"slot_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type AcceptResponse struct {
	Consultation     ConsultationResponse `json:"consultation"`
	NotificationSent bool                 `json:"notification_sent"`
}

type SlotResponse struct {
	ID          uuid.UUID `json:"id"`
	ClinicianID uuid.UUID `json:"clinician_id"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
}

type PruneSlotsResponse struct {
	Removed int64 `json:"removed"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
