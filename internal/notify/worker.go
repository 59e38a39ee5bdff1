package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Deliverer hands a message to the outside world. The SMS/email provider
// integration plugs in here; LogDeliverer stands in where none is configured.
type Deliverer interface {
	Deliver(ctx context.Context, msg Message) error
}

type LogDeliverer struct{}

func (LogDeliverer) Deliver(_ context.Context, msg Message) error {
	log.Info().
		Str("to", msg.To).
		Str("body", msg.Body).
		Msg("notification delivered")
	return nil
}

// Worker drains the queue and hands messages to the deliverer. Delivery
// failures are logged and the message is dropped; the booking it refers to is
// already durable.
type Worker struct {
	queue   *RedisQueue
	deliver Deliverer
	wait    time.Duration
}

func NewWorker(queue *RedisQueue, deliver Deliverer) *Worker {
	return &Worker{
		queue:   queue,
		deliver: deliver,
		wait:    5 * time.Second,
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := w.queue.Pop(ctx, w.wait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("notification dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			continue
		}

		if err := w.deliver.Deliver(ctx, *msg); err != nil {
			log.Error().Err(err).Str("to", msg.To).Msg("notification delivery failed")
		}
	}
}
