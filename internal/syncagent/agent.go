package syncagent

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/angelmondragon/pos-agent/internal/messaging"
	"github.com/angelmondragon/pos-agent/internal/offlinequeue"
	"github.com/angelmondragon/pos-agent/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-agent/pkg/errors"
	"github.com/angelmondragon/pos-agent/pkg/logger"
	"github.com/angelmondragon/pos-agent/pkg/orderapi"
	"github.com/angelmondragon/pos-agent/pkg/types"
)

const (
	defaultRequestTimeout = 15 * time.Second
	defaultStaleAfter     = 72 * time.Hour
	defaultMaxBackoff     = 10 * time.Minute
	jitterWindow          = 2 * time.Second
	releaseTimeout        = 5 * time.Second
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

// Queue is the slice of the offline queue a pass needs.
type Queue interface {
	List(ctx context.Context) ([]offlinequeue.Entry, error)
	Remove(ctx context.Context, localID int64) error
	MarkFailed(ctx context.Context, localID int64, cause error) error
	Count(ctx context.Context) (int64, error)
}

// Submitter resubmits a queued sale.
type Submitter interface {
	SubmitOrder(ctx context.Context, payload types.OrderPayload) (*orderapi.SubmitResult, error)
}

// PassRecorder receives pass metrics.
type PassRecorder interface {
	ObservePass(trigger string, duration time.Duration, synced, failed int)
	IncSkipped(trigger string)
}

type Params struct {
	Queue     Queue
	Submitter Submitter
	Lock      Lock
	Metrics   PassRecorder
	Logger    *logger.Logger

	// Commands feeds Run; Triggers receives the queue-became-non-empty command.
	Commands messaging.CommandSource
	Triggers messaging.CommandSender
	Events   []messaging.EventPublisher

	SubmitRate     float64
	SubmitBurst    int
	RequestTimeout time.Duration
	StaleAfter     time.Duration
	AutoInterval   time.Duration
	MaxBackoff     time.Duration
	Now            func() time.Time
}

// Result summarizes one pass.
type Result struct {
	Trigger enums.SyncTrigger `json:"trigger"`
	Success int               `json:"success"`
	Failed  int               `json:"failed"`
	Stale   int               `json:"stale"`
	Skipped bool              `json:"skipped"`
	Message string            `json:"message"`

	// Interrupted is set when the lock was lost mid-pass; unsubmitted
	// entries stay queued for the next pass.
	Interrupted bool          `json:"interrupted,omitempty"`
	Duration    time.Duration `json:"-"`
}

// Err reports a partial failure as SYNC_PARTIAL_FAILURE.
func (r Result) Err() error {
	if r.Failed == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeSyncPartial, r.Message).WithDetails(map[string]any{
		"success": r.Success,
		"failed":  r.Failed,
	})
}

// Agent drains the offline queue against the order service.
type Agent struct {
	queue     Queue
	submitter Submitter
	lock      Lock
	limiter   *rate.Limiter
	metrics   PassRecorder
	logg      *logger.Logger
	commands  messaging.CommandSource
	triggers  messaging.CommandSender
	events    []messaging.EventPublisher

	requestTimeout time.Duration
	staleAfter     time.Duration
	autoInterval   time.Duration
	maxBackoff     time.Duration
	now            func() time.Time

	running atomic.Bool
}

func New(params Params) (*Agent, error) {
	if params.Queue == nil {
		return nil, fmt.Errorf("offline queue required")
	}
	if params.Submitter == nil {
		return nil, fmt.Errorf("order submitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	lock := params.Lock
	if lock == nil {
		lock = NewLocalLock()
	}
	limit := rate.Inf
	if params.SubmitRate > 0 {
		limit = rate.Limit(params.SubmitRate)
	}
	burst := params.SubmitBurst
	if burst <= 0 {
		burst = 1
	}
	requestTimeout := params.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	maxBackoff := params.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Agent{
		queue:          params.Queue,
		submitter:      params.Submitter,
		lock:           lock,
		limiter:        rate.NewLimiter(limit, burst),
		metrics:        params.Metrics,
		logg:           params.Logger,
		commands:       params.Commands,
		triggers:       params.Triggers,
		events:         params.Events,
		requestTimeout: requestTimeout,
		staleAfter:     staleAfter,
		autoInterval:   params.AutoInterval,
		maxBackoff:     maxBackoff,
		now:            now,
	}, nil
}

// Running reports whether a pass is in flight in this process.
func (a *Agent) Running() bool {
	return a.running.Load()
}

// Trigger runs one pass. If another pass holds the lock the call is a no-op
// and the result is marked skipped. A started pass ignores cancellation of ctx.
func (a *Agent) Trigger(ctx context.Context, trigger enums.SyncTrigger) (Result, error) {
	ctx = context.WithoutCancel(a.logg.WithField(ctx, "trigger", string(trigger)))
	result := Result{Trigger: trigger}

	acquired, err := a.lock.Acquire(ctx)
	if err != nil {
		a.logg.Error(ctx, "failed to acquire sync lock", err)
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire sync lock")
	}
	if !acquired {
		if a.metrics != nil {
			a.metrics.IncSkipped(string(trigger))
		}
		a.logg.Debug(ctx, "sync pass already running")
		result.Skipped = true
		result.Message = "Sync already in progress."
		return result, nil
	}
	a.running.Store(true)
	defer a.release(ctx)

	start := a.now()
	entries, err := a.queue.List(ctx)
	if err != nil {
		a.logg.Error(ctx, "failed to snapshot offline queue", err)
		a.emit(ctx, messaging.Event{Type: messaging.EventSyncError, Message: err.Error(), Trigger: trigger, At: a.now().UTC()})
		return result, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "read offline queue")
	}

	for _, entry := range entries {
		if entry.Age(start) > a.staleAfter {
			result.Stale++
			a.logg.Warn(a.logg.WithFields(ctx, map[string]any{
				"local_id":         entry.LocalID,
				"client_reference": entry.ClientReference,
				"age_hours":        int(entry.Age(start).Hours()),
			}), "stale offline sale")
		}
		if err := a.limiter.Wait(ctx); err != nil {
			a.logg.Error(ctx, "sync pacing failed", err)
		}
		if held, err := a.lock.Extend(ctx); err != nil || !held {
			return a.interrupt(ctx, result, start, err)
		}
		if a.resubmit(ctx, entry) {
			result.Success++
		} else {
			result.Failed++
		}
	}

	result.Duration = a.now().Sub(start)
	result.Message = passMessage(result.Success, result.Failed)
	if a.metrics != nil {
		a.metrics.ObservePass(string(trigger), result.Duration, result.Success, result.Failed)
	}
	a.logg.Info(a.logg.WithFields(ctx, map[string]any{
		"success":     result.Success,
		"failed":      result.Failed,
		"stale":       result.Stale,
		"duration_ms": result.Duration.Milliseconds(),
	}), "sync pass completed")
	a.emit(ctx, messaging.Event{
		Type:    messaging.EventSyncResult,
		Success: result.Success,
		Failed:  result.Failed,
		Message: result.Message,
		Trigger: trigger,
		At:      a.now().UTC(),
	})
	return result, nil
}

// interrupt ends a pass whose lock expired or could not be renewed.
func (a *Agent) interrupt(ctx context.Context, result Result, start time.Time, cause error) (Result, error) {
	result.Interrupted = true
	result.Duration = a.now().Sub(start)
	result.Message = fmt.Sprintf("Sync stopped after %d sales: another terminal took over. Remaining sales will sync on the next pass.", result.Success+result.Failed)
	if cause != nil {
		a.logg.Error(ctx, "failed to renew sync lock", cause)
	} else {
		a.logg.Warn(a.logg.WithFields(ctx, map[string]any{
			"success": result.Success,
			"failed":  result.Failed,
		}), "sync lock lost mid-pass")
	}
	if a.metrics != nil {
		a.metrics.ObservePass(string(result.Trigger), result.Duration, result.Success, result.Failed)
	}
	a.emit(ctx, messaging.Event{Type: messaging.EventSyncError, Message: result.Message, Trigger: result.Trigger, At: a.now().UTC()})
	if cause != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "renew sync lock")
	}
	return result, pkgerrors.New(pkgerrors.CodeConflict, "sync lock lost mid-pass")
}

// resubmit reports whether the entry was accepted and removed.
func (a *Agent) resubmit(ctx context.Context, entry offlinequeue.Entry) bool {
	entryCtx := a.logg.WithFields(ctx, map[string]any{
		"local_id":         entry.LocalID,
		"client_reference": entry.ClientReference,
	})

	reqCtx, cancel := context.WithTimeout(entryCtx, a.requestTimeout)
	_, err := a.submitter.SubmitOrder(reqCtx, entry.Payload.AsCompleted())
	cancel()
	if err != nil {
		a.logg.Warn(a.logg.WithField(entryCtx, "error", err.Error()), "offline sale resubmission failed")
		if markErr := a.queue.MarkFailed(entryCtx, entry.LocalID, err); markErr != nil {
			a.logg.Error(entryCtx, "failed to record resubmission attempt", markErr)
		}
		return false
	}

	if err := a.queue.Remove(entryCtx, entry.LocalID); err != nil {
		a.logg.Error(entryCtx, "accepted sale could not be removed from queue", err)
		return false
	}
	return true
}

func (a *Agent) release(ctx context.Context) {
	a.running.Store(false)
	releaseCtx, cancel := context.WithTimeout(ctx, releaseTimeout)
	defer cancel()
	if err := a.lock.Release(releaseCtx); err != nil {
		a.logg.Error(ctx, "failed to release sync lock", err)
	}
}

func (a *Agent) emit(ctx context.Context, evt messaging.Event) {
	for _, pub := range a.events {
		if pub == nil {
			continue
		}
		if err := pub.PublishEvent(ctx, evt); err != nil {
			a.logg.Error(a.logg.WithField(ctx, "event_type", string(evt.Type)), "failed to publish sync event", err)
		}
	}
}

// Cancel removes a queued sale at the operator's request. It shares the pass
// lock, so it fails while a pass is running.
func (a *Agent) Cancel(ctx context.Context, localID int64) error {
	acquired, err := a.lock.Acquire(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire sync lock")
	}
	if !acquired {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "sync in progress, try again shortly")
	}
	defer a.release(context.WithoutCancel(ctx))

	if err := a.queue.Remove(ctx, localID); err != nil {
		return err
	}
	a.logg.Warn(a.logg.WithField(ctx, "local_id", localID), "offline sale cancelled by operator")
	return nil
}

// OnPendingCount issues a trigger-sync command when the queue goes from empty
// to non-empty.
func (a *Agent) OnPendingCount(ctx context.Context, previous, current int64) {
	if previous != 0 || current == 0 || a.triggers == nil {
		return
	}
	cmd := messaging.TriggerSync(enums.SyncTriggerQueueNonZero, "queue became non-empty")
	if err := a.triggers.SendCommand(ctx, cmd); err != nil {
		a.logg.Error(ctx, "failed to request sync", err)
	}
}

func passMessage(success, failed int) string {
	switch {
	case failed > 0:
		return fmt.Sprintf("Synced %d, but %d failed. Please retry.", success, failed)
	case success == 0:
		return "Nothing to sync."
	case success == 1:
		return "Synced 1 offline sale."
	default:
		return fmt.Sprintf("Synced %d offline sales.", success)
	}
}
