package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
)

// ErrDrop помечает сообщение, которое нельзя обработать никогда (например, битый JSON).
// Такое сообщение отклоняется без возврата в очередь.
var ErrDrop = errors.New("drop message")

// Handler обрабатывает тело сообщения.
type Handler func(ctx context.Context, body []byte) error

// ConsumerMessage читает очередь и обрабатывает сообщения параллельно, не больше
// concurrency одновременно. Успех подтверждается ack, ошибка возвращает сообщение
// в очередь, ErrDrop отклоняет его. Возвращает управление после отмены ctx или
// закрытия канала доставки, дождавшись обработчиков.
func ConsumerMessage(ctx context.Context, ch *amqp.Channel, queueName string, concurrency int, log *slog.Logger, handler Handler) error {
	const op = "rabbitmq.ConsumerMessage"
	delivery, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log = log.With(slog.String("op", op), slog.String("queue", queueName))
	sem := make(chan struct{}, max(concurrency, 1))
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case d, ok := <-delivery:
			if !ok {
				return nil
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				settle(ctx, log, d, handler)
			}(d)
		case <-ctx.Done():
			return nil
		}
	}
}

func settle(ctx context.Context, log *slog.Logger, d amqp.Delivery, handler Handler) {
	err := handler(ctx, d.Body)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("failed to ack message", sl.Err(ackErr))
		}
	case errors.Is(err, ErrDrop):
		log.Warn("dropping message", sl.Err(err))
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error("failed to nack message", sl.Err(nackErr))
		}
	default:
		log.Warn("message handling failed, requeueing", sl.Err(err))
		if nackErr := d.Nack(false, true); nackErr != nil {
			log.Error("failed to nack message", sl.Err(nackErr))
		}
	}
}
