package core

import (
	"context"
	"time"

	"benchcore/pkg/domain"
)

type (
	EventType      = domain.EventType
	Event          = domain.Event
	EventPublisher = domain.EventPublisher
)

const (
	EventReleaseConfirmed    = domain.EventReleaseConfirmed
	EventReleaseCancelled    = domain.EventReleaseCancelled
	EventTaskCreated         = domain.EventTaskCreated
	EventConsumableExhausted = domain.EventConsumableExhausted
	EventConsumableComposed  = domain.EventConsumableComposed
)

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) error { return nil }

// effects collects what an operation produced inside its transaction so the
// service can audit and publish it once the commit has succeeded.
type effects struct {
	entityID string
	events   []Event
}

func (e *effects) emit(kind EventType, entity EntityType, id string, at time.Time, payload any) {
	e.events = append(e.events, Event{Type: kind, Entity: entity, EntityID: id, OccurredAt: at, Payload: payload})
}
