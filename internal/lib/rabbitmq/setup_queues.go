package rabbitmq

// QueueConfig — очередь и ключ маршрутизации, по которому она привязана к exchange.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// BillingQueues возвращает очереди воркера биллинга.
func BillingQueues(queue, routingKey string) []QueueConfig {
	return []QueueConfig{
		{QueueName: queue, RoutingKey: routingKey},
	}
}
