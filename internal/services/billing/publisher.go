// Package billing связывает движок подписок с генератором записей биллинга
// через очередь RabbitMQ.
package billing

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/subscription-manager/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// Publisher отправляет запросы на создание записей биллинга в exchange.
type Publisher struct {
	ch         rabbitmq.Channel
	exchange   string
	routingKey string
}

// NewPublisher создаёт Publisher поверх открытого канала.
func NewPublisher(ch rabbitmq.Channel, exchange, routingKey string) *Publisher {
	return &Publisher{
		ch:         ch,
		exchange:   exchange,
		routingKey: routingKey,
	}
}

// RequestBillingRecord публикует запрос. Сам запрос неизменяем, повторная
// доставка безопасна: воркер создаёт не больше одной записи на период и вид.
func (p *Publisher) RequestBillingRecord(ctx context.Context, req models.BillingRequest) error {
	const op = "billing.RequestBillingRecord"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := rabbitmq.PublishMessage(p.ch, p.exchange, p.routingKey, req); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
