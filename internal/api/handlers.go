package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/careflowhq/teleconsult-scheduling/internal/booking"
	"github.com/careflowhq/teleconsult-scheduling/internal/guard"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func requestResponse(r *booking.ConsultationRequest) RequestResponse {
	return RequestResponse{
		ID:        r.ID,
		ContactID: r.ContactID,
		Message:   r.Message,
		Status:    string(r.Status),
		DecidedBy: r.DecidedBy,
		DecidedAt: r.DecidedAt,
		CreatedAt: r.CreatedAt,
	}
}

func ingestRequestHandler(svc *booking.Service, systemActor uuid.UUID) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body IngestRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if body.Phone == "" || body.Message == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "phone and message are required")
			return
		}

		req, err := svc.IngestRequest(r.Context(), booking.IngestRequestInput{
			Phone:   body.Phone,
			Name:    body.Name,
			Message: body.Message,
			Actor:   systemActor,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, requestResponse(req))
	}
}

func getRequestHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_id", "id must be a valid UUID")
			return
		}

		req, err := svc.GetRequest(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, requestResponse(req))
	}
}

func acceptRequestHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_id", "id must be a valid UUID")
			return
		}

		var body AcceptRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		res, err := svc.AcceptRequest(r.Context(), booking.AcceptRequestInput{
			RequestID:    id,
			Actor:        ActorFrom(r.Context()),
			Template:     body.NotificationTemplate,
			AssignToSelf: body.AssignToRequesterOnly,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := AcceptResponse{
			Consultation: ConsultationResponse{
				ID:          res.Consultation.ID,
				ClinicianID: res.Consultation.ClinicianID,
				RequestID:   res.Consultation.RequestID,
				SlotID:      res.Consultation.SlotID,
				CreatedAt:   res.Consultation.CreatedAt,
			},
			NotificationSent: res.NotifyErr == nil,
		}

		writeJSON(w, http.StatusCreated, resp)
	}
}

func rejectRequestHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_id", "id must be a valid UUID")
			return
		}

		req, err := svc.RejectRequest(r.Context(), id, ActorFrom(r.Context()))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, requestResponse(req))
	}
}

func publishSlotHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body PublishSlotBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		actor := ActorFrom(r.Context())

		// Absent clinician_id means self-service publishing.
		clinicianID := actor
		if body.ClinicianID != "" {
			id, err := uuid.Parse(body.ClinicianID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_clinician_id", "clinician_id must be a valid UUID")
				return
			}
			clinicianID = id
		}

		slot, err := svc.PublishSlot(r.Context(), booking.PublishSlotInput{
			ClinicianID: clinicianID,
			StartAt:     body.StartAt,
			EndAt:       body.EndAt,
			Actor:       actor,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, SlotResponse{
			ID:          slot.ID,
			ClinicianID: slot.ClinicianID,
			StartAt:     slot.StartAt,
			EndAt:       slot.EndAt,
		})
	}
}

func listSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var clinicianID *uuid.UUID
		if raw := r.URL.Query().Get("clinician_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_clinician_id", "clinician_id must be a valid UUID")
				return
			}
			clinicianID = &id
		}

		slots, err := svc.ListBookableSlots(r.Context(), clinicianID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, SlotResponse{
				ID:          s.ID,
				ClinicianID: s.ClinicianID,
				StartAt:     s.StartAt,
				EndAt:       s.EndAt,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func deleteSlotHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		if err := svc.DeleteSlot(r.Context(), id, ActorFrom(r.Context())); err != nil {
			handleServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func pruneSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body PruneSlotsBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		filter := guard.BulkFilter{
			ExcludeBooked: true,
			EndedBefore:   body.EndedBefore,
		}
		if body.ClinicianID != nil {
			id, err := uuid.Parse(*body.ClinicianID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_clinician_id", "clinician_id must be a valid UUID")
				return
			}
			filter.ClinicianID = &id
		}

		removed, err := svc.PruneSlots(r.Context(), filter, ActorFrom(r.Context()))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, PruneSlotsResponse{Removed: removed})
	}
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "request_not_found", err.Error())
	case errors.Is(err, booking.ErrRequestFinalized):
		writeError(w, http.StatusConflict, "request_already_finalized", err.Error())
	case errors.Is(err, booking.ErrNoOwnSlots):
		writeError(w, http.StatusConflict, "no_own_availability", "publish availability before accepting with assign_to_requester_only")
	case errors.Is(err, booking.ErrNoSlots):
		writeError(w, http.StatusConflict, "no_slots_available", err.Error())
	case errors.Is(err, booking.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, booking.ErrClinicianNotFound):
		writeError(w, http.StatusNotFound, "clinician_not_found", err.Error())
	case errors.Is(err, booking.ErrInvalidSlotWindow):
		writeError(w, http.StatusBadRequest, "invalid_slot_window", err.Error())
	case errors.Is(err, guard.ErrSlotInMedicalRecord):
		writeError(w, http.StatusConflict, "slot_in_medical_record", err.Error())
	case errors.Is(err, guard.ErrUnsafeBulkDelete):
		writeError(w, http.StatusBadRequest, "unsafe_bulk_delete", err.Error())
	case errors.Is(err, guard.ErrDeleteForbidden):
		writeError(w, http.StatusForbidden, "delete_forbidden", err.Error())
	case errors.Is(err, guard.ErrMissingActor):
		// Contract violation: the call path failed to attribute the mutation.
		writeError(w, http.StatusInternalServerError, "missing_actor", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
