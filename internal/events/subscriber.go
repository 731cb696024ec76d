package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type Handler func(ctx context.Context, env Envelope) error

type SubscriberConfig struct {
	Stream    string
	Group     string
	Consumer  string
	BatchSize int64
	Block     time.Duration
	// MinIdle is how long a delivered message may stay unacked before
	// Reclaim takes it over.
	MinIdle time.Duration
	// MaxDeliveries drops a message after this many delivery attempts.
	MaxDeliveries int64
}

type Subscriber struct {
	client *redis.Client
	cfg    SubscriberConfig
	log    *slog.Logger
}

func NewSubscriber(client *redis.Client, cfg SubscriberConfig, log *slog.Logger) *Subscriber {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.MinIdle <= 0 {
		cfg.MinIdle = 30 * time.Second
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 5
	}
	if log == nil {
		log = slog.Default()
	}

	return &Subscriber{client: client, cfg: cfg, log: log}
}

// EnsureGroup creates the consumer group (and stream) if missing.
func (s *Subscriber) EnsureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.cfg.Stream, s.cfg.Group, "0").Err()

	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	return nil
}

// Poll reads one batch and passes each message to handle. A message is
// acked once handle succeeds, or immediately if it cannot be decoded.
// Failed messages stay pending until Reclaim retries them.
func (s *Subscriber) Poll(ctx context.Context, handle Handler) (int, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		Streams:  []string{s.cfg.Stream, ">"},
		Count:    s.cfg.BatchSize,
		Block:    s.cfg.Block,
	}).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("read group: %w", err)
	}

	handled := 0

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			if s.process(ctx, msg, handle) {
				handled++
			}
		}
	}

	return handled, nil
}

// Reclaim takes over messages left pending longer than MinIdle, by this or
// any other consumer, and retries them. Messages delivered MaxDeliveries
// times are acked and dropped.
func (s *Subscriber) Reclaim(ctx context.Context, handle Handler) (int, error) {
	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: s.cfg.Stream,
		Group:  s.cfg.Group,
		Idle:   s.cfg.MinIdle,
		Start:  "-",
		End:    "+",
		Count:  s.cfg.BatchSize,
	}).Result()

	if err != nil {
		return 0, fmt.Errorf("pending: %w", err)
	}

	handled := 0

	for _, p := range pending {
		if p.RetryCount >= s.cfg.MaxDeliveries {
			s.log.WarnContext(ctx, "dropping event after max deliveries", "message_id", p.ID, "deliveries", p.RetryCount)
			s.ack(ctx, p.ID)
			continue
		}

		msgs, err := s.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   s.cfg.Stream,
			Group:    s.cfg.Group,
			Consumer: s.cfg.Consumer,
			MinIdle:  s.cfg.MinIdle,
			Messages: []string{p.ID},
		}).Result()

		if err != nil {
			return handled, fmt.Errorf("claim %s: %w", p.ID, err)
		}

		for _, msg := range msgs {
			if s.process(ctx, msg, handle) {
				handled++
			}
		}
	}

	return handled, nil
}

// process reports whether msg was handled and acked.
func (s *Subscriber) process(ctx context.Context, msg redis.XMessage, handle Handler) bool {
	env, err := decodeMessage(msg)
	if err != nil {
		s.log.WarnContext(ctx, "dropping undecodable event", "message_id", msg.ID, "err", err)
		s.ack(ctx, msg.ID)
		return false
	}

	if err := handle(ctx, env); err != nil {
		s.log.WarnContext(ctx, "event handler failed", "message_id", msg.ID, "type", env.Type, "err", err)
		return false
	}

	s.ack(ctx, msg.ID)
	return true
}

func (s *Subscriber) ack(ctx context.Context, id string) {
	if err := s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, id).Err(); err != nil {
		s.log.WarnContext(ctx, "ack failed", "message_id", id, "err", err)
	}
}

func decodeMessage(msg redis.XMessage) (Envelope, error) {
	raw, ok := msg.Values["event"].(string)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: missing event field", ErrInvalidPayload)
	}

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if !env.Type.IsValid() {
		return Envelope{}, ErrInvalidType
	}

	return env, nil
}
