package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/pos-agent/pkg/enums"
	"github.com/angelmondragon/pos-agent/pkg/logger"
)

const (
	attrEventType  = "event_type"
	attrTerminalID = "terminal_id"
	publishTimeout = 10 * time.Second
)

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type BridgeParams struct {
	Subscription *gcppubsub.Subscriber
	Publisher    *gcppubsub.Publisher
	Commands     CommandSender
	Logger       *logger.Logger
	TerminalID   string

	// Dedupe drops redelivered commands by ID. Optional.
	Dedupe *Deduper
}

// Bridge connects the back office to the terminal over Pub/Sub: inbound
// trigger-sync requests become commands, sync events are published out.
type Bridge struct {
	sub        receiver
	pub        publisher
	commands   CommandSender
	dedupe     *Deduper
	logg       *logger.Logger
	terminalID string
}

func NewBridge(params BridgeParams) (*Bridge, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Subscription != nil && params.Commands == nil {
		return nil, fmt.Errorf("command sender required")
	}
	b := &Bridge{
		commands:   params.Commands,
		dedupe:     params.Dedupe,
		logg:       params.Logger,
		terminalID: params.TerminalID,
	}
	if params.Subscription != nil {
		b.sub = params.Subscription
	}
	if params.Publisher != nil {
		b.pub = &gcpPublisher{Publisher: params.Publisher}
	}
	return b, nil
}

// Run receives back-office commands until ctx is canceled.
func (b *Bridge) Run(ctx context.Context) error {
	if b.sub == nil {
		<-ctx.Done()
		return nil
	}
	err := b.sub.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		if b.handle(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// handle reports whether the message should be acked.
func (b *Bridge) handle(ctx context.Context, msg *gcppubsub.Message) bool {
	logCtx := b.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": msg.Attributes[attrEventType],
	})

	if target := msg.Attributes[attrTerminalID]; target != "" && b.terminalID != "" && target != b.terminalID {
		return true
	}

	var cmd Command
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		b.logg.Error(logCtx, "failed to decode sync command", err)
		return true
	}
	if cmd.Type == "" {
		cmd.Type = CommandType(msg.Attributes[attrEventType])
	}
	if cmd.Type != CommandTriggerSync {
		b.logg.Info(logCtx, "skipping unsupported command")
		return true
	}
	cmd.Trigger = enums.SyncTriggerNotification
	if cmd.At.IsZero() {
		cmd.At = time.Now().UTC()
	}

	dedupe := b.dedupe != nil && cmd.ID != uuid.Nil && b.terminalID != ""
	if dedupe {
		seen, err := b.dedupe.CheckAndMark(ctx, b.terminalID, cmd.ID)
		if err != nil {
			b.logg.Error(logCtx, "failed to check command idempotency", err)
			return false
		}
		if seen {
			b.logg.Info(logCtx, "skipping duplicate sync command")
			return true
		}
	}

	if err := b.commands.SendCommand(ctx, cmd); err != nil {
		b.logg.Error(logCtx, "failed to forward sync command", err)
		if dedupe {
			if forgetErr := b.dedupe.Forget(ctx, b.terminalID, cmd.ID); forgetErr != nil {
				b.logg.Warn(logCtx, "failed to clear command idempotency mark")
			}
		}
		return false
	}
	b.logg.Info(b.logg.WithField(logCtx, "reason", strings.TrimSpace(cmd.Reason)), "sync requested by back office")
	return true
}

// PublishEvent forwards a sync event to the back office.
func (b *Bridge) PublishEvent(ctx context.Context, evt Event) error {
	if b.pub == nil {
		return nil
	}
	if evt.Terminal == "" {
		evt.Terminal = b.terminalID
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal sync event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	result := b.pub.Publish(ctx, &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			attrEventType:  string(evt.Type),
			attrTerminalID: evt.Terminal,
		},
	})
	if result == nil {
		return errors.New("publish result is nil")
	}
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish sync event: %w", err)
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
