package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Writer persists a single event.
type Writer interface {
	Insert(ctx context.Context, ev Event) error
}

// Dispatcher decouples audit writes from the mutation path. Events go through
// a buffered channel and a single worker goroutine; when the queue is full the
// event is dropped with a warning rather than blocking a clinical write.
type Dispatcher struct {
	writer  Writer
	queue   chan Event
	timeout time.Duration

	once sync.Once
	done chan struct{}
}

func NewDispatcher(writer Writer) *Dispatcher {
	d := &Dispatcher{
		writer:  writer,
		queue:   make(chan Event, 256),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}

	go d.worker()
	return d
}

func (d *Dispatcher) worker() {
	defer close(d.done)

	for ev := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.writer.Insert(ctx, ev); err != nil {
			log.Error().
				Err(err).
				Str("entity", ev.Entity).
				Stringer("entity_id", ev.EntityID).
				Stringer("actor_id", ev.ActorID).
				Msg("audit write failed, event lost")
		}
		cancel()
	}
}

// Record enqueues an event without blocking.
func (d *Dispatcher) Record(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	select {
	case d.queue <- ev:
	default:
		log.Warn().
			Str("entity", ev.Entity).
			Stringer("entity_id", ev.EntityID).
			Msg("audit queue full, dropping event")
	}
}

// Close stops accepting events and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.queue)
	})
	<-d.done
}
