package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/shoplane/marketplace-orders/internal/kafka"
	"github.com/shoplane/marketplace-orders/internal/orders"
	"github.com/shoplane/marketplace-orders/internal/redisx"
)

// Service turns order lifecycle events into buyer notifications. Dispatch is
// fire-and-forget: a mail failure is logged and the offset still commits.
type Service struct {
	Redis       *redis.Client
	Mailer      Mailer
	ServiceName string
}

// HandleOrderEvent is installed as the consumer handler for order.events.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	// dedup via event_id
	if s.Redis != nil {
		dkey := fmt.Sprintf(redisx.KeyDedup, "notifier", env.EventID)
		if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
			return nil
		}
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}

	to, subject, body, ok := compose(env)
	if !ok {
		return nil
	}
	if to == "" {
		log.Warn().Str("event_id", env.EventID).Str("event_type", env.EventType).
			Msg("no recipient on event, dropping notification")
		return nil
	}
	if err := s.Mailer.Send(ctx, to, subject, body); err != nil {
		log.Error().Err(err).Str("event_type", env.EventType).
			Str("order_id", env.CorrelationID).Msg("notification dispatch failed")
	}
	return nil
}

func compose(env orders.Envelope) (to, subject, body string, ok bool) {
	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return "", "", "", false
		}
		return p.UserEmail, "Your order is confirmed",
			fmt.Sprintf("Order %s has been placed. Total: %s.", p.OrderID, p.TotalPrice), true

	case orders.EventOrderDelivered:
		p, err := kafkax.UnwrapPayload[orders.OrderDeliveredPayload](env.Payload)
		if err != nil {
			return "", "", "", false
		}
		return p.UserEmail, "Your order was delivered",
			fmt.Sprintf("Order %s has been delivered. Thanks for shopping with us!", p.OrderID), true

	case orders.EventOrderRefundRequested:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return "", "", "", false
		}
		return p.UserEmail, "Refund request received",
			fmt.Sprintf("We received your refund request for order %s.", p.OrderID), true

	case orders.EventOrderRefunded:
		p, err := kafkax.UnwrapPayload[orders.OrderRefundedPayload](env.Payload)
		if err != nil {
			return "", "", "", false
		}
		return p.UserEmail, "Your refund was approved",
			fmt.Sprintf("Your refund for order %s has been processed.", p.OrderID), true

	case orders.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return "", "", "", false
		}
		return p.UserEmail, "Order update",
			fmt.Sprintf("Order %s is now %s.", p.OrderID, p.To), true
	}
	return "", "", "", false
}
