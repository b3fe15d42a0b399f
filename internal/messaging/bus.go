package messaging

import (
	"context"
	"errors"
	"sync"
)

const defaultBuffer = 16

var ErrClosed = errors.New("messaging bus closed")

// Bus is the in-process channel between the local API and the sync worker.
// Sends never block: a full command buffer already holds a pending trigger,
// and a full event buffer drops the oldest event.
type Bus struct {
	mu       sync.Mutex
	closed   bool
	commands chan Command
	events   chan Event
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus{
		commands: make(chan Command, buffer),
		events:   make(chan Event, buffer),
	}
}

func (b *Bus) SendCommand(_ context.Context, cmd Command) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	select {
	case b.commands <- cmd:
	default:
	}
	return nil
}

func (b *Bus) Commands() <-chan Command {
	return b.commands
}

func (b *Bus) PublishEvent(_ context.Context, evt Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for {
		select {
		case b.events <- evt:
			return nil
		default:
		}
		select {
		case <-b.events:
		default:
		}
	}
}

func (b *Bus) Events() <-chan Event {
	return b.events
}

// Close stops delivery and closes both channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.commands)
	close(b.events)
}
