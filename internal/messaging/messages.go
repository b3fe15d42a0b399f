package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pos-agent/pkg/enums"
)

// EventType names an inbound event delivered to the application.
type EventType string

const (
	EventSyncResult EventType = "sync-result"
	EventSyncError  EventType = "sync-error"
)

// CommandType names an outbound command sent to the background worker.
type CommandType string

const CommandTriggerSync CommandType = "trigger-sync"

// Event reports the outcome of background synchronization.
type Event struct {
	Type     EventType         `json:"type"`
	Success  int               `json:"success,omitempty"`
	Failed   int               `json:"failed,omitempty"`
	Message  string            `json:"message"`
	Trigger  enums.SyncTrigger `json:"trigger,omitempty"`
	Terminal string            `json:"terminalId,omitempty"`
	At       time.Time         `json:"at"`
}

// Command asks the background worker to act.
type Command struct {
	ID      uuid.UUID         `json:"id"`
	Type    CommandType       `json:"type"`
	Trigger enums.SyncTrigger `json:"trigger"`
	Reason  string            `json:"reason,omitempty"`
	At      time.Time         `json:"at"`
}

// TriggerSync builds the trigger-sync command.
func TriggerSync(trigger enums.SyncTrigger, reason string) Command {
	return Command{ID: uuid.New(), Type: CommandTriggerSync, Trigger: trigger, Reason: reason, At: time.Now().UTC()}
}

// CommandSender is the application side of the outbound channel.
type CommandSender interface {
	SendCommand(ctx context.Context, cmd Command) error
}

// CommandSource is the worker side of the outbound channel.
type CommandSource interface {
	Commands() <-chan Command
}

// EventPublisher is the worker side of the inbound channel.
type EventPublisher interface {
	PublishEvent(ctx context.Context, evt Event) error
}

// EventSource is the application side of the inbound channel.
type EventSource interface {
	Events() <-chan Event
}
