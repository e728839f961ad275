package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-hub/contract"
)

// DeliveryWorker drains the router's outbound queue and pushes each
// event to its resolved recipient sinks. It is the single consumer of
// the queue, so events reach every sink in the order the router
// produced them. Delivery is best-effort: a slow or gone sink costs at
// most the per-sink timeout and is logged, never retried.
type DeliveryWorker struct {
	log     *slog.Logger
	queue   <-chan contract.Delivery
	timeout time.Duration
}

func NewDeliveryWorker(log *slog.Logger, queue <-chan contract.Delivery, timeout time.Duration) *DeliveryWorker {
	return &DeliveryWorker{log: log, queue: queue, timeout: timeout}
}

func (w *DeliveryWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping delivery")
			return nil
		case delivery := <-w.queue:
			w.deliver(ctx, delivery)
		}
	}
}

func (w *DeliveryWorker) deliver(ctx context.Context, delivery contract.Delivery) {
	for _, sink := range delivery.Sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.timeout)
		if err := sink.Consume(sinkCtx, delivery.Event); err != nil {
			w.log.Debug("Sink rejected event", "event", delivery.Event.Name(), "error", err)
		}
		cancel()
	}
}
