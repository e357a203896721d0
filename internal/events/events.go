// Package events mirrors relay outcomes to subscribers: an in-memory history
// for the status page and, optionally, a NATS subject.
package events

import (
	"context"
	"errors"

	"line2discord/internal/domain"
)

// Noop is used when no publisher is configured.
type Noop struct{}

func (Noop) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (Noop) Close() error { return nil }

// Fanout publishes every event to all of its publishers. One failing
// publisher does not prevent delivery to the others.
type Fanout []domain.EventPublisher

func (f Fanout) Publish(ctx context.Context, topic string, event any) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, topic, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
