package domain

import (
	"context"
	"time"
)

// EventType names an effect published after a successful commit.
type EventType string

// Published event types.
const (
	EventReleaseConfirmed    EventType = "release.confirmed"
	EventReleaseCancelled    EventType = "release.cancelled"
	EventTaskCreated         EventType = "task.created"
	EventConsumableExhausted EventType = "consumable.exhausted"
	EventConsumableComposed  EventType = "consumable.composed"
)

// Event is a committed effect delivered to an EventPublisher.
type Event struct {
	Type       EventType  `json:"type"`
	Entity     EntityType `json:"entity"`
	EntityID   string     `json:"entity_id"`
	OccurredAt time.Time  `json:"occurred_at"`
	Payload    any        `json:"payload,omitempty"`
}

// EventPublisher delivers committed events. Publication failures never roll
// back the operation that produced them.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
