// Package events defines event types and structures for engine lifecycle
// notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every engine event.
const Topic = "weft.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Engine lifecycle events.
	EngineStartedEvent  EventType = "engine.started"
	EngineFinishedEvent EventType = "engine.finished"

	// Per-node execution events. Emitted once per direction per iteration.
	NodeExecutionStartedEvent  EventType = "node.execution.started"
	NodeExecutionFinishedEvent EventType = "node.execution.finished"

	// Loop events.
	LoopIterationStartedEvent EventType = "loop.iteration.started"

	// Free-form messages relayed from item execution.
	ItemMessageEvent EventType = "item.message"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Project   string         `json:"project"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type EngineStarted struct {
	BaseEvent

	NodeCount int `json:"node_count"`
}

func (e EngineStarted) GetType() EventType {
	return EngineStartedEvent
}

type EngineFinished struct {
	BaseEvent

	State      string `json:"state"`
	DurationMs int64  `json:"duration_ms"`
}

func (e EngineFinished) GetType() EventType {
	return EngineFinishedEvent
}

type NodeExecutionStarted struct {
	BaseEvent

	NodeName  string `json:"node_name"`
	Direction string `json:"direction"`
}

func (e NodeExecutionStarted) GetType() EventType {
	return NodeExecutionStartedEvent
}

type NodeExecutionFinished struct {
	BaseEvent

	NodeName   string `json:"node_name"`
	Direction  string `json:"direction"`
	State      string `json:"state"`
	DurationMs int64  `json:"duration_ms"`
}

func (e NodeExecutionFinished) GetType() EventType {
	return NodeExecutionFinishedEvent
}

type LoopIterationStarted struct {
	BaseEvent

	Source      string `json:"from"`
	Destination string `json:"to"`
	Iteration   int    `json:"iteration"`
}

func (e LoopIterationStarted) GetType() EventType {
	return LoopIterationStartedEvent
}

type ItemMessage struct {
	BaseEvent

	NodeName string `json:"node_name"`
	Stream   string `json:"stream"`
	Text     string `json:"text"`
}

func (e ItemMessage) GetType() EventType {
	return ItemMessageEvent
}

func NewBaseEvent(eventType EventType, project string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Project:   project,
		Metadata:  make(map[string]any),
	}
}
