package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	mu     sync.Mutex
	events []Event
}

func (w *memWriter) Insert(ctx context.Context, ev Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, ev)
	return nil
}

func (w *memWriter) all() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Event(nil), w.events...)
}

func TestDispatcher_DrainsOnClose(t *testing.T) {
	writer := &memWriter{}
	d := NewDispatcher(writer)

	actor := uuid.New()
	for i := 0; i < 10; i++ {
		d.Record(Event{
			ActorID:  actor,
			Kind:     KindCreate,
			Entity:   "slot",
			EntityID: uuid.New(),
		})
	}

	d.Close()

	events := writer.all()
	require.Len(t, events, 10)
	for _, ev := range events {
		assert.Equal(t, actor, ev.ActorID)
		assert.False(t, ev.At.IsZero(), "Record must stamp the event time")
	}
}

func TestDispatcher_CloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(&memWriter{})
	d.Record(Event{ActorID: uuid.New(), Kind: KindUpdate, Entity: "contact", EntityID: uuid.New()})
	d.Close()
	d.Close()
}

func TestPgWriter_Insert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	actor := uuid.New()
	entityID := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec("INSERT INTO audit_events").
		WithArgs(actor, KindCreate, "consultation", entityID, pgxmock.AnyArg(), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	w := NewPgWriter(mock)
	err = w.Insert(context.Background(), Event{
		ActorID:  actor,
		Kind:     KindCreate,
		Entity:   "consultation",
		EntityID: entityID,
		Fields:   map[string]any{"slot_id": uuid.New().String()},
		At:       at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgWriter_NilFields(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO audit_events").
		WithArgs(pgxmock.AnyArg(), KindUpdate, "slot", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	w := NewPgWriter(mock)
	err = w.Insert(context.Background(), Event{
		ActorID:  uuid.New(),
		Kind:     KindUpdate,
		Entity:   "slot",
		EntityID: uuid.New(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
