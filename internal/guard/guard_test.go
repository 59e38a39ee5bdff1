package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careflowhq/teleconsult-scheduling/internal/audit"
)

type recordingTrail struct {
	events []audit.Event
}

func (t *recordingTrail) Record(ev audit.Event) {
	t.events = append(t.events, ev)
}

type stubLedger struct {
	booked bool
	err    error
}

func (l stubLedger) SlotHasConsultation(ctx context.Context, slotID uuid.UUID) (bool, error) {
	return l.booked, l.err
}

func TestExec_RequiresActor(t *testing.T) {
	trail := &recordingTrail{}
	gk := New(trail)

	called := false
	err := gk.Exec(context.Background(), Mutation{
		Kind:     KindCreate,
		Entity:   EntitySlot,
		EntityID: uuid.New(),
	}, func(ctx context.Context) error {
		called = true
		return nil
	})

	require.ErrorIs(t, err, ErrMissingActor)
	assert.False(t, called, "write must not run without an actor")
	assert.Empty(t, trail.events)
}

func TestExec_RecordsEventOnSuccess(t *testing.T) {
	trail := &recordingTrail{}
	gk := New(trail)

	actor := uuid.New()
	entityID := uuid.New()

	err := gk.Exec(context.Background(), Mutation{
		Actor:    actor,
		Kind:     KindCreate,
		Entity:   EntityConsultation,
		EntityID: entityID,
		Fields:   map[string]any{"slot_id": "x"},
	}, func(ctx context.Context) error { return nil })

	require.NoError(t, err)
	require.Len(t, trail.events, 1)
	ev := trail.events[0]
	assert.Equal(t, actor, ev.ActorID)
	assert.Equal(t, audit.KindCreate, ev.Kind)
	assert.Equal(t, EntityConsultation, ev.Entity)
	assert.Equal(t, entityID, ev.EntityID)
}

func TestExec_NoEventOnWriteFailure(t *testing.T) {
	trail := &recordingTrail{}
	gk := New(trail)

	writeErr := errors.New("boom")
	err := gk.Exec(context.Background(), Mutation{
		Actor:    uuid.New(),
		Kind:     KindUpdate,
		Entity:   EntityRequest,
		EntityID: uuid.New(),
	}, func(ctx context.Context) error { return writeErr })

	require.ErrorIs(t, err, writeErr)
	assert.Empty(t, trail.events)
}

func TestExec_UpsertAuditedAsUpdate(t *testing.T) {
	trail := &recordingTrail{}
	gk := New(trail)

	err := gk.Exec(context.Background(), Mutation{
		Actor:    uuid.New(),
		Kind:     KindUpsert,
		Entity:   EntityContact,
		EntityID: uuid.New(),
	}, func(ctx context.Context) error { return nil })

	require.NoError(t, err)
	require.Len(t, trail.events, 1)
	assert.Equal(t, audit.KindUpdate, trail.events[0].Kind)
}

func TestExecReturning_AuditsResolvedID(t *testing.T) {
	trail := &recordingTrail{}
	gk := New(trail)

	existing := uuid.New()
	err := gk.ExecReturning(context.Background(), Mutation{
		Actor:  uuid.New(),
		Kind:   KindUpsert,
		Entity: EntityContact,
	}, func(ctx context.Context) (uuid.UUID, error) {
		return existing, nil
	})

	require.NoError(t, err)
	require.Len(t, trail.events, 1)
	assert.Equal(t, existing, trail.events[0].EntityID)
}

func TestExecDelete_OnlySlots(t *testing.T) {
	gk := New(&recordingTrail{})

	for _, entity := range []string{EntityRequest, EntityConsultation, EntityClinician, EntityContact} {
		err := gk.ExecDelete(context.Background(), uuid.New(), entity, uuid.New(), stubLedger{}, func(ctx context.Context) error {
			t.Fatalf("delete ran for %s", entity)
			return nil
		})
		assert.ErrorIs(t, err, ErrDeleteForbidden, entity)
	}
}

func TestExecDelete_BlocksBookedSlot(t *testing.T) {
	gk := New(&recordingTrail{})

	err := gk.ExecDelete(context.Background(), uuid.New(), EntitySlot, uuid.New(), stubLedger{booked: true}, func(ctx context.Context) error {
		t.Fatal("delete ran for a booked slot")
		return nil
	})
	assert.ErrorIs(t, err, ErrSlotInMedicalRecord)
}

func TestExecDelete_UnbookedSlotPasses(t *testing.T) {
	gk := New(&recordingTrail{})

	deleted := false
	err := gk.ExecDelete(context.Background(), uuid.New(), EntitySlot, uuid.New(), stubLedger{booked: false}, func(ctx context.Context) error {
		deleted = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestExecDelete_RequiresActor(t *testing.T) {
	gk := New(&recordingTrail{})

	err := gk.ExecDelete(context.Background(), uuid.Nil, EntitySlot, uuid.New(), stubLedger{}, func(ctx context.Context) error {
		t.Fatal("delete ran without an actor")
		return nil
	})
	assert.ErrorIs(t, err, ErrMissingActor)
}

func TestExecBulkDelete_RequiresExcludeBooked(t *testing.T) {
	gk := New(&recordingTrail{})

	cutoff := time.Now()
	err := gk.ExecBulkDelete(context.Background(), uuid.New(), EntitySlot, BulkFilter{
		EndedBefore: &cutoff,
	}, func(ctx context.Context) error {
		t.Fatal("bulk delete ran without the booked exclusion")
		return nil
	})
	assert.ErrorIs(t, err, ErrUnsafeBulkDelete)
}

func TestExecBulkDelete_SafeFilterPasses(t *testing.T) {
	gk := New(&recordingTrail{})

	ran := false
	err := gk.ExecBulkDelete(context.Background(), uuid.New(), EntitySlot, BulkFilter{
		ExcludeBooked: true,
	}, func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}
