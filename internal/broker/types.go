package broker

import (
	"context"

	"connector/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, env models.Envelope) error
	// PublishEvent writes any JSON value, e.g. configuration update events.
	PublishEvent(ctx context.Context, topic, key string, event interface{}) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	ConsumeEvents(ctx context.Context, topic string, handler EventHandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, env models.Envelope) error

type EventHandlerFunc func(ctx context.Context, value []byte) error
