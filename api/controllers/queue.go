package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/pos-agent/api/responses"
	"github.com/angelmondragon/pos-agent/internal/offlinequeue"
	"github.com/angelmondragon/pos-agent/internal/syncagent"
	"github.com/angelmondragon/pos-agent/pkg/enums"
	"github.com/angelmondragon/pos-agent/pkg/logger"
)

// QueueReader lists queued offline sales.
type QueueReader interface {
	List(ctx context.Context) ([]offlinequeue.Entry, error)
}

// Syncer runs sync passes and owns removal of queued sales.
type Syncer interface {
	Trigger(ctx context.Context, trigger enums.SyncTrigger) (syncagent.Result, error)
	Cancel(ctx context.Context, localID int64) error
	Running() bool
}

type queueEntryResponse struct {
	offlinequeue.Entry
	Stale bool `json:"stale"`
}

type queueResponse struct {
	Entries []queueEntryResponse `json:"entries"`
	Count   int                  `json:"count"`
	Syncing bool                 `json:"syncing"`
}

// QueueList shows pending offline sales, flagging those older than staleAfter.
func QueueList(queue QueueReader, syncer Syncer, staleAfter time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := queue.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		now := time.Now()
		out := make([]queueEntryResponse, 0, len(entries))
		for _, entry := range entries {
			out = append(out, queueEntryResponse{
				Entry: entry,
				Stale: staleAfter > 0 && entry.Age(now) > staleAfter,
			})
		}
		responses.WriteSuccess(w, queueResponse{Entries: out, Count: len(out), Syncing: syncer.Running()})
	}
}

func QueueCancel(syncer Syncer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "localID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := syncer.Cancel(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"localId": id, "status": "cancelled"})
	}
}

// QueueSync runs a pass on the cashier's request. A pass with failures
// answers 207 with the counts.
func QueueSync(syncer Syncer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := syncer.Trigger(r.Context(), enums.SyncTriggerManual)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if result.Failed > 0 {
			status = http.StatusMultiStatus
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}
