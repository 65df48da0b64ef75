package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultBridgeChannel carries outbox events from a standalone relay to API replicas.
const DefaultBridgeChannel = "p2p-lending:events"

type bridgeEnvelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// RedisPublisher forwards relayed outbox events over Redis pub/sub.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultBridgeChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	raw, err := json.Marshal(bridgeEnvelope{Topic: topic, Payload: payload})
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, raw).Err()
}

// Subscriber feeds events from Redis pub/sub into the local Notifier.
type Subscriber struct {
	client   redis.UniversalClient
	channel  string
	notifier *Notifier
	logger   *slog.Logger
}

func NewSubscriber(client redis.UniversalClient, channel string, notifier *Notifier, logger *slog.Logger) *Subscriber {
	if channel == "" {
		channel = DefaultBridgeChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{client: client, channel: channel, notifier: notifier, logger: logger}
}

// Run blocks until ctx is cancelled. ready, when non-nil, is closed once the
// subscription is confirmed.
func (s *Subscriber) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}
	s.logger.Info("event bridge subscribed", "channel", s.channel)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var env bridgeEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				s.logger.Warn("event bridge dropped message", "err", err)
				continue
			}
			if err := s.notifier.Publish(ctx, env.Topic, env.Payload); err != nil {
				s.logger.Warn("event bridge publish failed", "topic", env.Topic, "err", err)
			}
		}
	}
}
