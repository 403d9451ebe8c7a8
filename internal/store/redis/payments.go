package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/bountyboard/internal/assign"
	"github.com/MrSnakeDoc/bountyboard/internal/logger"
)

// PaymentSubscriber relays settlement events published on a Redis channel.
// Payloads are JSON: {"bounty_id":"b-1","amount":1500,"at":"2026-01-02T03:04:05Z"}
type PaymentSubscriber struct {
	client  redis.UniversalClient
	channel string
	logger  logger.Logger
}

// NewPaymentSubscriber subscribes to channel, DefaultPaymentsChannel if empty.
func NewPaymentSubscriber(client redis.UniversalClient, channel string, log logger.Logger) *PaymentSubscriber {
	if channel == "" {
		channel = DefaultPaymentsChannel
	}
	return &PaymentSubscriber{
		client:  client,
		channel: channel,
		logger:  log.Component("payments").With(logger.String("channel", channel)),
	}
}

// Subscribe returns the decoded events. The channel is closed when ctx ends.
// Malformed payloads are logged and skipped.
func (s *PaymentSubscriber) Subscribe(ctx context.Context) <-chan assign.PaymentConfirmed {
	out := make(chan assign.PaymentConfirmed, 16)
	sub := s.client.Subscribe(ctx, s.channel)

	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		s.logger.Info("payment subscription started")
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("payment subscription stopped")
				return
			case msg, ok := <-msgs:
				if !ok {
					s.logger.Warn("payment subscription closed by server")
					return
				}
				ev, err := decodePayment(msg.Payload)
				if err != nil {
					s.logger.Warn("dropping malformed payment event", logger.Error(err))
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func decodePayment(payload string) (assign.PaymentConfirmed, error) {
	var ev assign.PaymentConfirmed
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return assign.PaymentConfirmed{}, fmt.Errorf("failed to decode payment event: %w", err)
	}
	if ev.BountyID == "" {
		return assign.PaymentConfirmed{}, fmt.Errorf("payment event without bounty_id")
	}
	if ev.Amount < 0 {
		return assign.PaymentConfirmed{}, fmt.Errorf("payment event with negative amount %d", ev.Amount)
	}
	return ev, nil
}
