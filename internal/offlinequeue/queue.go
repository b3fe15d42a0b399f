package offlinequeue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/pos-agent/pkg/db"
	"github.com/angelmondragon/pos-agent/pkg/db/models"
	dbtypes "github.com/angelmondragon/pos-agent/pkg/db/types"
	pkgerrors "github.com/angelmondragon/pos-agent/pkg/errors"
	"github.com/angelmondragon/pos-agent/pkg/logger"
	"github.com/angelmondragon/pos-agent/pkg/types"
)

const (
	busyRetries = 3
	busyBackoff = 25 * time.Millisecond
)

// Entry is a queued sale awaiting resubmission.
type Entry struct {
	LocalID         int64              `json:"localId"`
	ClientReference string             `json:"clientReference"`
	CreatedAt       time.Time          `json:"createdAt"`
	Payload         types.OrderPayload `json:"payload"`
	Attempts        int                `json:"attempts"`
	LastError       string             `json:"lastError,omitempty"`
	LastAttemptAt   *time.Time         `json:"lastAttemptAt,omitempty"`
}

// Age reports how long the entry has been waiting.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// CountListener observes pending-count changes.
type CountListener func(ctx context.Context, previous, current int64)

// DepthRecorder receives the queue depth after every change.
type DepthRecorder interface {
	SetQueueDepth(depth int64)
}

type Params struct {
	Repository Repository
	Logger     *logger.Logger
	Depth      DepthRecorder
	TerminalID string
	Now        func() time.Time
}

// Queue is the durable, append-only store of sales that could not reach the
// order service. Writers and snapshot readers share one lock so a snapshot
// never observes a half-written enqueue.
type Queue struct {
	repo       Repository
	logg       *logger.Logger
	depth      DepthRecorder
	terminalID string
	now        func() time.Time

	mu        sync.RWMutex
	lastCount int64

	listenersMu sync.RWMutex
	listeners   []CountListener
}

func New(params Params) (*Queue, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("pending order repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Queue{
		repo:       params.Repository,
		logg:       params.Logger,
		depth:      params.Depth,
		terminalID: params.TerminalID,
		now:        now,
	}, nil
}

// Subscribe registers a listener for count changes.
func (q *Queue) Subscribe(listener CountListener) {
	if listener == nil {
		return
	}
	q.listenersMu.Lock()
	q.listeners = append(q.listeners, listener)
	q.listenersMu.Unlock()
}

// Init loads the persisted count and announces it, so entries left over from a
// previous run behave like a fresh zero to non-zero transition.
func (q *Queue) Init(ctx context.Context) error {
	q.mu.Lock()
	count, err := q.repo.Count(ctx)
	if err != nil {
		q.mu.Unlock()
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "count pending orders")
	}
	q.lastCount = count
	q.mu.Unlock()

	q.publish(ctx, 0, count)
	return nil
}

// Enqueue appends payload and assigns its local id and creation time. A payload
// whose client reference is already queued returns the existing entry.
func (q *Queue) Enqueue(ctx context.Context, payload types.OrderPayload) (*Entry, error) {
	ref := strings.TrimSpace(payload.ClientReference)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client reference is required")
	}

	doc, err := dbtypes.NewJSONText(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode pending order")
	}

	q.mu.Lock()
	row := &models.PendingOrder{
		ClientReference: ref,
		TerminalID:      q.terminalID,
		CashierID:       payload.CashierID,
		Total:           payload.Total,
		Payload:         doc,
		CreatedAt:       q.now().UTC(),
	}
	if err := q.insert(ctx, row); err != nil {
		if db.IsUniqueViolation(err, "client_reference") {
			existing, findErr := q.repo.FindByReference(ctx, ref)
			q.mu.Unlock()
			if findErr != nil || existing == nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "enqueue pending order")
			}
			entry, decodeErr := toEntry(*existing)
			if decodeErr != nil {
				return nil, decodeErr
			}
			return &entry, nil
		}
		q.mu.Unlock()
		q.logg.Error(q.logg.WithField(ctx, "client_reference", ref), "pending order write failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "enqueue pending order")
	}
	previous, current := q.refreshCountLocked(ctx)
	q.mu.Unlock()

	ctx = q.logg.WithFields(ctx, map[string]any{
		"local_id":         row.LocalID,
		"client_reference": ref,
		"pending_count":    current,
	})
	q.logg.Info(ctx, "order queued offline")

	q.publish(ctx, previous, current)

	entry, err := toEntry(*row)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// insert retries briefly while another connection holds the SQLite write
// lock. Any other failure is returned as is.
func (q *Queue) insert(ctx context.Context, row *models.PendingOrder) error {
	var err error
	for attempt := 1; attempt <= busyRetries; attempt++ {
		err = q.repo.Insert(ctx, row)
		if err == nil || !pkgerrors.Dump(err).StorageBusy() || attempt == busyRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * busyBackoff):
		}
	}
	return err
}

// List returns a snapshot of every entry, oldest first.
func (q *Queue) List(ctx context.Context) ([]Entry, error) {
	q.mu.RLock()
	rows, err := q.repo.FetchAll(ctx)
	q.mu.RUnlock()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list pending orders")
	}

	out := make([]Entry, 0, len(rows))
	for i := range rows {
		entry, err := toEntry(rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// Remove deletes an entry.
func (q *Queue) Remove(ctx context.Context, localID int64) error {
	q.mu.Lock()
	removed, err := q.repo.Delete(ctx, localID)
	if err != nil {
		q.mu.Unlock()
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "remove pending order")
	}
	if !removed {
		q.mu.Unlock()
		return pkgerrors.New(pkgerrors.CodeNotFound, "pending order not found")
	}
	previous, current := q.refreshCountLocked(ctx)
	q.mu.Unlock()

	q.publish(ctx, previous, current)
	return nil
}

// MarkFailed records a failed resubmission attempt on the entry.
func (q *Queue) MarkFailed(ctx context.Context, localID int64, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.repo.MarkFailed(ctx, localID, cause, q.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "record pending order attempt")
	}
	return nil
}

// Count returns the number of queued entries.
func (q *Queue) Count(ctx context.Context) (int64, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	count, err := q.repo.Count(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "count pending orders")
	}
	return count, nil
}

// refreshCountLocked must be called with mu held for writing.
func (q *Queue) refreshCountLocked(ctx context.Context) (int64, int64) {
	previous := q.lastCount
	count, err := q.repo.Count(ctx)
	if err != nil {
		q.logg.Error(ctx, "pending order count failed", err)
		return previous, previous
	}
	q.lastCount = count
	return previous, count
}

func (q *Queue) publish(ctx context.Context, previous, current int64) {
	if q.depth != nil {
		q.depth.SetQueueDepth(current)
	}
	if previous == current {
		return
	}
	q.listenersMu.RLock()
	listeners := append([]CountListener(nil), q.listeners...)
	q.listenersMu.RUnlock()
	for _, listener := range listeners {
		listener(ctx, previous, current)
	}
}

func toEntry(row models.PendingOrder) (Entry, error) {
	var payload types.OrderPayload
	if err := row.Payload.Decode(&payload); err != nil {
		return Entry{}, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "decode pending order")
	}
	entry := Entry{
		LocalID:         row.LocalID,
		ClientReference: row.ClientReference,
		CreatedAt:       row.CreatedAt,
		Payload:         payload,
		Attempts:        row.AttemptCount,
		LastAttemptAt:   row.LastAttemptAt,
	}
	if row.LastError != nil {
		entry.LastError = *row.LastError
	}
	return entry, nil
}
