package offlinequeue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pos-agent/pkg/db"
	"github.com/angelmondragon/pos-agent/pkg/db/models"
	"github.com/angelmondragon/pos-agent/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-agent/pkg/errors"
	"github.com/angelmondragon/pos-agent/pkg/logger"
	"github.com/angelmondragon/pos-agent/pkg/migrate/migratetest"
	"github.com/angelmondragon/pos-agent/pkg/types"
)

type stepClock struct {
	at time.Time
}

func (c *stepClock) Now() time.Time {
	c.at = c.at.Add(time.Second)
	return c.at
}

type depthGauge struct {
	last int64
}

func (d *depthGauge) SetQueueDepth(depth int64) { d.last = depth }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}})
}

func newQueue(t *testing.T, client *db.Client, depth DepthRecorder) *Queue {
	t.Helper()
	clock := &stepClock{at: time.Date(2026, 10, 2, 8, 0, 0, 0, time.UTC)}
	q, err := New(Params{
		Repository: NewRepository(client.DB()),
		Logger:     testLogger(),
		Depth:      depth,
		TerminalID: "till-1",
		Now:        clock.Now,
	})
	require.NoError(t, err)
	return q
}

func payload(ref string) types.OrderPayload {
	return types.OrderPayload{
		ClientReference: ref,
		Items:           []types.OrderItem{{ProductID: "A", Name: "Rice", Quantity: 2, UnitPrice: decimal.NewFromInt(100)}},
		TaxRate:         decimal.RequireFromString("0.16"),
		Total:           decimal.NewFromInt(232),
		Payments:        []types.PaymentLine{{Method: enums.PaymentMethodCash, Amount: decimal.NewFromInt(232), Verification: types.VerificationAutomated}},
		Status:          enums.OrderStatusPending,
		IsOffline:       true,
		CashierID:       "c-1",
		CashierName:     "Amina",
	}
}

func TestEnqueueAssignsIDsAndListsOldestFirst(t *testing.T) {
	client := migratetest.NewSQLite(t)
	q := newQueue(t, client, nil)
	ctx := context.Background()

	var ids []int64
	for _, ref := range []string{"r1", "r2", "r3"} {
		entry, err := q.Enqueue(ctx, payload(ref))
		require.NoError(t, err)
		ids = append(ids, entry.LocalID)
	}
	assert.Less(t, ids[0], ids[1])
	assert.Less(t, ids[1], ids[2])

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"r1", "r2", "r3"}, []string{entries[0].ClientReference, entries[1].ClientReference, entries[2].ClientReference})
	assert.True(t, entries[0].CreatedAt.Before(entries[1].CreatedAt))
	assert.Equal(t, enums.OrderStatusPending, entries[0].Payload.Status)
	assert.True(t, entries[0].Payload.IsOffline)
	assert.True(t, entries[0].Payload.Total.Equal(decimal.NewFromInt(232)))
}

func TestQueueSurvivesRestart(t *testing.T) {
	client := migratetest.NewSQLite(t)
	ctx := context.Background()

	first := newQueue(t, client, nil)
	_, err := first.Enqueue(ctx, payload("r1"))
	require.NoError(t, err)

	second := newQueue(t, client, nil)
	var transitions [][2]int64
	second.Subscribe(func(_ context.Context, prev, cur int64) {
		transitions = append(transitions, [2]int64{prev, cur})
	})
	require.NoError(t, second.Init(ctx))

	count, err := second.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.Equal(t, [][2]int64{{0, 1}}, transitions)
}

func TestCountListenersSeeTransitions(t *testing.T) {
	client := migratetest.NewSQLite(t)
	gauge := &depthGauge{}
	q := newQueue(t, client, gauge)
	ctx := context.Background()

	var transitions [][2]int64
	q.Subscribe(func(_ context.Context, prev, cur int64) {
		transitions = append(transitions, [2]int64{prev, cur})
	})

	a, err := q.Enqueue(ctx, payload("r1"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, payload("r2"))
	require.NoError(t, err)
	require.NoError(t, q.Remove(ctx, a.LocalID))

	assert.Equal(t, [][2]int64{{0, 1}, {1, 2}, {2, 1}}, transitions)
	assert.EqualValues(t, 1, gauge.last)
}

func TestEnqueueSameReferenceIsIdempotent(t *testing.T) {
	client := migratetest.NewSQLite(t)
	q := newQueue(t, client, nil)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, payload("dup"))
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, payload("dup"))
	require.NoError(t, err)

	assert.Equal(t, first.LocalID, second.LocalID)
	count, err := q.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestEnqueueRequiresReference(t *testing.T) {
	q := newQueue(t, migratetest.NewSQLite(t), nil)

	_, err := q.Enqueue(context.Background(), payload(" "))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRemoveUnknownEntry(t *testing.T) {
	q := newQueue(t, migratetest.NewSQLite(t), nil)

	err := q.Remove(context.Background(), 99)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMarkFailedRecordsAttempt(t *testing.T) {
	client := migratetest.NewSQLite(t)
	q := newQueue(t, client, nil)
	ctx := context.Background()

	entry, err := q.Enqueue(ctx, payload("r1"))
	require.NoError(t, err)
	require.NoError(t, q.MarkFailed(ctx, entry.LocalID, errors.New("503 from order service")))
	require.NoError(t, q.MarkFailed(ctx, entry.LocalID, errors.New("timeout")))

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Attempts)
	assert.Equal(t, "timeout", entries[0].LastError)
	assert.NotNil(t, entries[0].LastAttemptAt)
}

type brokenRepo struct {
	Repository
}

func (brokenRepo) Insert(context.Context, *models.PendingOrder) error {
	return errors.New("database or disk is full")
}

func TestEnqueueStorageFailure(t *testing.T) {
	q, err := New(Params{Repository: brokenRepo{}, Logger: testLogger()})
	require.NoError(t, err)

	_, err = q.Enqueue(context.Background(), payload("r1"))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStorage, typed.Code())
	assert.True(t, typed.Retryable())
}

type busyRepo struct {
	Repository
	busy  int
	calls int
}

func (r *busyRepo) Insert(ctx context.Context, row *models.PendingOrder) error {
	r.calls++
	if r.calls <= r.busy {
		return fmt.Errorf("insert pending order: %w", sqlite3.Error{Code: sqlite3.ErrBusy})
	}
	return r.Repository.Insert(ctx, row)
}

func TestEnqueueRetriesWhileStoreIsBusy(t *testing.T) {
	repo := &busyRepo{Repository: NewRepository(migratetest.NewSQLite(t).DB()), busy: 2}
	q, err := New(Params{Repository: repo, Logger: testLogger(), TerminalID: "till-1"})
	require.NoError(t, err)

	entry, err := q.Enqueue(context.Background(), payload("busy-1"))
	require.NoError(t, err)
	assert.Equal(t, 3, repo.calls)
	assert.Equal(t, "busy-1", entry.ClientReference)
}

func TestEnqueueGivesUpWhenStoreStaysBusy(t *testing.T) {
	repo := &busyRepo{Repository: NewRepository(migratetest.NewSQLite(t).DB()), busy: 10}
	q, err := New(Params{Repository: repo, Logger: testLogger(), TerminalID: "till-1"})
	require.NoError(t, err)

	_, err = q.Enqueue(context.Background(), payload("busy-2"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStorage))
	assert.Equal(t, busyRetries, repo.calls)
}
