package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/careflowhq/teleconsult-scheduling/internal/config"
	"github.com/careflowhq/teleconsult-scheduling/internal/guard"
	"github.com/careflowhq/teleconsult-scheduling/internal/notify"
	"github.com/careflowhq/teleconsult-scheduling/internal/observability/metrics"
)

var (
	// ErrRequestFinalized: the request already transitioned out of pending.
	// Decisions are one-shot; a second accept or reject always fails.
	ErrRequestFinalized = errors.New("request already finalized")

	// ErrNoSlots: no bookable slot, whether because none exist or because the
	// retry budget ran out chasing contended ones.
	ErrNoSlots = errors.New("no slots available")

	// ErrNoOwnSlots: the caller asked to be assigned personally but has no
	// upcoming availability. Distinct from ErrNoSlots so the caller can be told
	// to publish slots rather than to wait.
	ErrNoOwnSlots = errors.New("no published availability for the requesting clinician")

	// ErrNotifyFailed flags a booking that committed but whose notification
	// did not go out. The booking stands.
	ErrNotifyFailed = errors.New("booking succeeded but notification failed")

	ErrInvalidSlotWindow = errors.New("slot end must be after slot start")
)

// Service implements the booking protocol: it turns a pending consultation
// request into a consultation exactly once, safely under concurrent callers
// competing for the same slots. There is no cross-request lock; the uniqueness
// constraint on the consultation's slot reference is the sole arbiter, and
// contention is handled as a retryable condition.
type Service struct {
	repo    Repository
	guard   *guard.Gatekeeper
	sink    notify.Sink
	metrics *metrics.BookingMetrics
	cfg     config.Config

	// injected clock; booking computes its buffer cutoff from one reading so
	// slot eligibility never flips mid-attempt
	now func() time.Time
}

func NewService(repo Repository, gk *guard.Gatekeeper, sink notify.Sink, m *metrics.BookingMetrics, cfg config.Config) *Service {
	return &Service{
		repo:    repo,
		guard:   gk,
		sink:    sink,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
	}
}

type AcceptRequestInput struct {
	RequestID uuid.UUID
	Actor     uuid.UUID
	// Template is rendered against the booked slot and sent to the contact.
	Template string
	// AssignToSelf restricts selection to the accepting clinician's own slots.
	AssignToSelf bool
}

type AcceptResult struct {
	Consultation *Consultation
	Request      *ConsultationRequest
	// NotifyErr carries ErrNotifyFailed when the post-commit dispatch failed.
	// The consultation is durable either way.
	NotifyErr error
}

// AcceptRequest runs validate -> select -> commit-attempt with a bounded
// conflict-retry loop. Each lost race adds the slot to an exclusion set and
// re-selects; the budget keeps latency bounded even under heavy contention.
func (s *Service) AcceptRequest(ctx context.Context, in AcceptRequestInput) (*AcceptResult, error) {
	if in.Actor == uuid.Nil {
		return nil, fmt.Errorf("%w (accept request)", guard.ErrMissingActor)
	}

	req, err := s.repo.GetRequestByID(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	// Advisory fast-fail; the commit transaction re-checks under isolation.
	if req.Status != StatusPending {
		return nil, ErrRequestFinalized
	}

	notBefore := s.now().UTC().Add(s.cfg.BookingBuffer)

	var ownerID *uuid.UUID
	if in.AssignToSelf {
		ownerID = &in.Actor
	}

	tried := make(map[uuid.UUID]struct{})

	for attempt := 0; attempt < s.cfg.MaxBookAttempts; attempt++ {
		slots, err := s.repo.ListBookableSlots(ctx, notBefore, ownerID)
		if err != nil {
			return nil, fmt.Errorf("list bookable slots: %w", err)
		}

		slot, ok := NextEligible(slots, notBefore, ownerID, tried)
		if !ok {
			if in.AssignToSelf {
				s.metrics.ObserveAccept("no_own_slots")
				return nil, ErrNoOwnSlots
			}
			s.metrics.ObserveAccept("no_slots")
			return nil, ErrNoSlots
		}

		cons, updated, err := s.commitBooking(ctx, in.RequestID, slot, in.Actor)
		if err != nil {
			if errors.Is(err, ErrSlotTaken) {
				tried[slot.ID] = struct{}{}
				s.metrics.ObserveSlotConflict()
				log.Debug().
					Stringer("slot_id", slot.ID).
					Stringer("request_id", in.RequestID).
					Int("attempt", attempt+1).
					Msg("slot lost to concurrent booking, trying next")
				continue
			}
			if errors.Is(err, ErrRequestNotPending) {
				return nil, ErrRequestFinalized
			}
			return nil, err
		}

		s.metrics.ObserveAccept("booked")
		res := &AcceptResult{Consultation: cons, Request: updated}
		res.NotifyErr = s.notifyBooked(ctx, in.Template, updated, slot)
		if res.NotifyErr != nil {
			s.metrics.ObserveNotifyFailure()
			log.Error().
				Err(res.NotifyErr).
				Stringer("consultation_id", cons.ID).
				Msg("post-commit notification failed, booking stands")
		}
		return res, nil
	}

	// Budget spent without a commit. Slots may transiently have existed; the
	// system favors bounded latency over exhaustive search.
	s.metrics.ObserveRetryExhausted()
	s.metrics.ObserveAccept("exhausted")
	return nil, ErrNoSlots
}

// commitBooking re-attempts the same slot on transient failures (serialization,
// deadlock), up to CommitRetries. This inner loop is deliberately separate from
// the outer one in AcceptRequest: outer retries pick a different slot, inner
// ones re-run the same claim in case the failure was spurious.
func (s *Service) commitBooking(ctx context.Context, requestID uuid.UUID, slot Slot, actor uuid.UUID) (*Consultation, *ConsultationRequest, error) {
	var lastErr error
	for i := 0; i < s.cfg.CommitRetries; i++ {
		cons, req, err := s.tryCommit(ctx, requestID, slot, actor)
		if err == nil {
			return cons, req, nil
		}
		if IsTransient(err) {
			lastErr = err
			log.Warn().
				Err(err).
				Stringer("slot_id", slot.ID).
				Int("attempt", i+1).
				Msg("transient commit failure, re-attempting slot")
			continue
		}
		return nil, nil, err
	}
	return nil, nil, lastErr
}

// tryCommit is the single serialization point of the protocol: one transaction
// that re-reads the request, creates the consultation, and flips the request to
// accepted. Both writes go through the gatekeeper and carry the actor. If two
// transactions pick the same slot, the unique constraint lets exactly one
// commit; the loser surfaces ErrSlotTaken.
func (s *Service) tryCommit(ctx context.Context, requestID uuid.UUID, slot Slot, actor uuid.UUID) (*Consultation, *ConsultationRequest, error) {
	now := s.now().UTC()

	var cons *Consultation
	var req *ConsultationRequest

	err := s.repo.InTx(ctx, func(tx Repository) error {
		current, err := tx.GetRequestByID(ctx, requestID)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return ErrRequestNotPending
		}

		c := &Consultation{
			ID:          uuid.New(),
			ClinicianID: slot.ClinicianID,
			RequestID:   requestID,
			SlotID:      slot.ID,
		}
		err = s.guard.Exec(ctx, guard.Mutation{
			Actor:    actor,
			Kind:     guard.KindCreate,
			Entity:   guard.EntityConsultation,
			EntityID: c.ID,
			Fields: map[string]any{
				"clinician_id": slot.ClinicianID,
				"request_id":   requestID,
				"slot_id":      slot.ID,
			},
		}, func(ctx context.Context) error {
			return tx.CreateConsultation(ctx, c)
		})
		if err != nil {
			return err
		}

		err = s.guard.Exec(ctx, guard.Mutation{
			Actor:    actor,
			Kind:     guard.KindUpdate,
			Entity:   guard.EntityRequest,
			EntityID: requestID,
			Fields: map[string]any{
				"status":     StatusAccepted,
				"decided_by": actor,
				"decided_at": now,
			},
		}, func(ctx context.Context) error {
			updated, uerr := tx.UpdateRequestStatus(ctx, requestID, StatusPending, StatusAccepted, actor, now)
			if uerr != nil {
				return uerr
			}
			req = updated
			return nil
		})
		if err != nil {
			return err
		}

		cons = c
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return cons, req, nil
}

func (s *Service) notifyBooked(ctx context.Context, tmpl string, req *ConsultationRequest, slot Slot) error {
	contact, err := s.repo.GetContactByID(ctx, req.ContactID)
	if err != nil {
		return fmt.Errorf("%w: load contact: %v", ErrNotifyFailed, err)
	}

	var clinicianName string
	if clin, err := s.repo.GetClinicianByID(ctx, slot.ClinicianID); err == nil {
		clinicianName = clin.Name
	}

	body, err := notify.Render(tmpl, notify.TemplateData{
		Start:     slot.StartAt,
		End:       slot.EndAt,
		Clinician: clinicianName,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotifyFailed, err)
	}

	if err := s.sink.Send(ctx, notify.Message{To: contact.Phone, Body: body}); err != nil {
		return fmt.Errorf("%w: %v", ErrNotifyFailed, err)
	}

	return nil
}

// RejectRequest transitions pending -> rejected. Not idempotent: rejecting an
// already-decided request fails with ErrRequestFinalized.
func (s *Service) RejectRequest(ctx context.Context, requestID, actor uuid.UUID) (*ConsultationRequest, error) {
	now := s.now().UTC()

	var req *ConsultationRequest
	err := s.repo.InTx(ctx, func(tx Repository) error {
		return s.guard.Exec(ctx, guard.Mutation{
			Actor:    actor,
			Kind:     guard.KindUpdate,
			Entity:   guard.EntityRequest,
			EntityID: requestID,
			Fields: map[string]any{
				"status":     StatusRejected,
				"decided_by": actor,
				"decided_at": now,
			},
		}, func(ctx context.Context) error {
			updated, err := tx.UpdateRequestStatus(ctx, requestID, StatusPending, StatusRejected, actor, now)
			if err != nil {
				return err
			}
			req = updated
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, ErrRequestNotPending) {
			return nil, ErrRequestFinalized
		}
		return nil, err
	}

	return req, nil
}

type PublishSlotInput struct {
	ClinicianID uuid.UUID
	StartAt     time.Time
	EndAt       time.Time
	Actor       uuid.UUID
}

// PublishSlot creates an availability window for a clinician (self-service or
// admin on their behalf).
func (s *Service) PublishSlot(ctx context.Context, in PublishSlotInput) (*Slot, error) {
	if !in.EndAt.After(in.StartAt) {
		return nil, ErrInvalidSlotWindow
	}

	if _, err := s.repo.GetClinicianByID(ctx, in.ClinicianID); err != nil {
		return nil, err
	}

	slot := &Slot{
		ID:          uuid.New(),
		ClinicianID: in.ClinicianID,
		StartAt:     in.StartAt.UTC(),
		EndAt:       in.EndAt.UTC(),
	}

	err := s.guard.Exec(ctx, guard.Mutation{
		Actor:    in.Actor,
		Kind:     guard.KindCreate,
		Entity:   guard.EntitySlot,
		EntityID: slot.ID,
		Fields: map[string]any{
			"clinician_id": slot.ClinicianID,
			"start_at":     slot.StartAt,
			"end_at":       slot.EndAt,
		},
	}, func(ctx context.Context) error {
		return s.repo.CreateSlot(ctx, slot)
	})
	if err != nil {
		return nil, err
	}

	return slot, nil
}

// DeleteSlot removes a single unbooked slot. The booked check and the delete
// run in one transaction so a concurrent booking cannot slip between them.
func (s *Service) DeleteSlot(ctx context.Context, slotID, actor uuid.UUID) error {
	return s.repo.InTx(ctx, func(tx Repository) error {
		return s.guard.ExecDelete(ctx, actor, guard.EntitySlot, slotID, tx, func(ctx context.Context) error {
			return tx.DeleteSlot(ctx, slotID)
		})
	})
}

// PruneSlots bulk-deletes unbooked slots matching the filter. The gatekeeper
// rejects any filter that does not structurally exclude booked slots.
func (s *Service) PruneSlots(ctx context.Context, filter guard.BulkFilter, actor uuid.UUID) (int64, error) {
	var removed int64
	err := s.guard.ExecBulkDelete(ctx, actor, guard.EntitySlot, filter, func(ctx context.Context) error {
		n, derr := s.repo.DeleteUnbookedSlots(ctx, filter.ClinicianID, filter.EndedBefore)
		if derr != nil {
			return derr
		}
		removed = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		log.Info().Int64("removed", removed).Msg("pruned unbooked slots")
	}
	return removed, nil
}

type IngestRequestInput struct {
	Phone   string
	Name    string
	Message string
	// Actor is usually the designated system identity for inbound-message
	// ingestion; the gatekeeper requires it like any other mutation.
	Actor uuid.UUID
}

// IngestRequest upserts the contact by phone and opens a pending request, both
// attributed and in one transaction.
func (s *Service) IngestRequest(ctx context.Context, in IngestRequestInput) (*ConsultationRequest, error) {
	var req *ConsultationRequest

	err := s.repo.InTx(ctx, func(tx Repository) error {
		contact := &Contact{
			ID:    uuid.New(),
			Name:  in.Name,
			Phone: in.Phone,
		}
		err := s.guard.ExecReturning(ctx, guard.Mutation{
			Actor:  in.Actor,
			Kind:   guard.KindUpsert,
			Entity: guard.EntityContact,
			Fields: map[string]any{
				"name":  in.Name,
				"phone": in.Phone,
			},
		}, func(ctx context.Context) (uuid.UUID, error) {
			if err := tx.UpsertContactByPhone(ctx, contact); err != nil {
				return uuid.Nil, err
			}
			return contact.ID, nil
		})
		if err != nil {
			return err
		}

		r := &ConsultationRequest{
			ID:        uuid.New(),
			ContactID: contact.ID,
			Message:   in.Message,
		}
		err = s.guard.Exec(ctx, guard.Mutation{
			Actor:    in.Actor,
			Kind:     guard.KindCreate,
			Entity:   guard.EntityRequest,
			EntityID: r.ID,
			Fields: map[string]any{
				"contact_id": contact.ID,
				"message":    in.Message,
			},
		}, func(ctx context.Context) error {
			return tx.CreateRequest(ctx, r)
		})
		if err != nil {
			return err
		}

		req = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return req, nil
}

// GetRequest loads a request for display.
func (s *Service) GetRequest(ctx context.Context, id uuid.UUID) (*ConsultationRequest, error) {
	return s.repo.GetRequestByID(ctx, id)
}

// ListBookableSlots exposes the allocator's candidate view for display. The
// cutoff uses the same buffer the protocol uses.
func (s *Service) ListBookableSlots(ctx context.Context, clinicianID *uuid.UUID) ([]Slot, error) {
	notBefore := s.now().UTC().Add(s.cfg.BookingBuffer)
	return s.repo.ListBookableSlots(ctx, notBefore, clinicianID)
}
