package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// streamMaxLen caps the stream; trimming is approximate.
const streamMaxLen = 10000

type PublishRecorder interface {
	ObservePublish(eventType string, err error)
}

type Publisher struct {
	client  *redis.Client
	stream  string
	metrics PublishRecorder
}

func NewPublisher(client *redis.Client, stream string, metrics PublishRecorder) *Publisher {
	return &Publisher{client: client, stream: stream, metrics: metrics}
}

func (p *Publisher) Publish(ctx context.Context, t Type, payload any) error {
	err := p.publish(ctx, t, payload)

	if p.metrics != nil {
		p.metrics.ObservePublish(string(t), err)
	}

	return err
}

func (p *Publisher) publish(ctx context.Context, t Type, payload any) error {
	env, err := Encode(t, payload)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"event": raw},
	}).Err()

	if err != nil {
		return fmt.Errorf("publish %s: %w", t, err)
	}

	return nil
}

// NopPublisher drops every event. Used when no Redis is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Type, any) error { return nil }
