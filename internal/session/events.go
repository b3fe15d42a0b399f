package session

import (
	"context"

	"github.com/angelmondragon/pos-agent/internal/messaging"
)

// Watch records sync events from the background channel until ctx ends or
// the channel closes.
func (m *Manager) Watch(ctx context.Context, events <-chan messaging.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			m.applyEvent(ctx, evt)
		}
	}
}

func (m *Manager) applyEvent(ctx context.Context, evt messaging.Event) {
	switch evt.Type {
	case messaging.EventSyncResult:
		m.RecordSync(SyncSummary{Success: evt.Success, Failed: evt.Failed, Message: evt.Message, At: evt.At})
	case messaging.EventSyncError:
		m.RecordSync(SyncSummary{Message: "Sync failed.", Error: evt.Message, At: evt.At})
	default:
		m.logg.Debug(m.logg.WithField(ctx, "event_type", string(evt.Type)), "ignoring unknown sync event")
	}
}
