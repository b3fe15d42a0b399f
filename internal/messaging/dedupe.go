package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pos-agent/pkg/redis"
)

// DefaultDedupeTTL covers Pub/Sub's redelivery window for unacked messages.
const DefaultDedupeTTL = 24 * time.Hour

// Deduper tracks command IDs already forwarded by a terminal using SETNX with
// a TTL. Keys follow the `pos:idempotency:cmd:processed:<terminal>:<id>`
// pattern.
type Deduper struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewDeduper(store redis.IdempotencyStore, ttl time.Duration) (*Deduper, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if ttl == 0 {
		ttl = DefaultDedupeTTL
	}
	return &Deduper{store: store, ttl: ttl}, nil
}

// CheckAndMark returns true if the command was already processed and
// otherwise marks it as processed.
func (d *Deduper) CheckAndMark(ctx context.Context, terminal string, id uuid.UUID) (bool, error) {
	key, err := d.processedKey(terminal, id)
	if err != nil {
		return false, err
	}
	set, err := d.store.SetNX(ctx, key, "1", d.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Forget clears the mark so a redelivery is processed again.
func (d *Deduper) Forget(ctx context.Context, terminal string, id uuid.UUID) error {
	key, err := d.processedKey(terminal, id)
	if err != nil {
		return err
	}
	return d.store.Del(ctx, key)
}

func (d *Deduper) processedKey(terminal string, id uuid.UUID) (string, error) {
	if terminal == "" {
		return "", errors.New("terminal id is required")
	}
	if id == uuid.Nil {
		return "", errors.New("command id is required")
	}
	return d.store.IdempotencyKey(fmt.Sprintf("cmd:processed:%s", terminal), id.String()), nil
}
