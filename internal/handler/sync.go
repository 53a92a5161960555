package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/rustaceans-org/rustaceans-sync/internal/apperror"
	"github.com/rustaceans-org/rustaceans-sync/internal/service"
)

// Reconciler runs reconciliations. *service.Reconciler satisfies it.
type Reconciler interface {
	ProcessUser(ctx context.Context, req service.Request) (service.Result, error)
	ProcessPullRequest(ctx context.Context, number int) ([]service.Result, error)
	ProcessAll(ctx context.Context) ([]service.Result, error)
}

var _ Reconciler = (*service.Reconciler)(nil)

// JobQueue accepts background work. *service.Queue satisfies it.
type JobQueue interface {
	Submit(job service.Job) error
}

var _ JobQueue = (*service.Queue)(nil)

// SyncResponse acknowledges a queued reconciliation.
type SyncResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	Target string `json:"target"`
}

// SyncHandler lets an administrator trigger reconciliations by hand.
// The work runs on the queue; the response only says it was accepted.
type SyncHandler struct {
	reconciler Reconciler
	queue      JobQueue
	logger     *slog.Logger
}

func NewSyncHandler(reconciler Reconciler, queue JobQueue, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{reconciler: reconciler, queue: queue, logger: logger}
}

// HandleSyncUser queues one user. ?pr=N reports the outcome on pull
// request N.
//
// HTTP: POST /api/sync/{username}
func (h *SyncHandler) HandleSyncUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if err := service.ValidateUsername(username); err != nil {
		writeError(w, err)
		return
	}

	req := service.Request{Username: username}
	if raw := r.URL.Query().Get("pr"); raw != "" {
		pr, err := strconv.Atoi(raw)
		if err != nil || pr <= 0 {
			writeError(w, apperror.ValidationFailed("pr", "pr must be a positive integer"))
			return
		}
		req.PRNumber = pr
	}

	runID := xid.New().String()
	err := h.queue.Submit(service.Job{
		ID: runID,
		Run: func(ctx context.Context) error {
			res, err := h.reconciler.ProcessUser(ctx, req)
			if err != nil {
				return err
			}
			logResults(h.logger, runID, []service.Result{res})
			return nil
		},
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("sync queued", slog.String("run_id", runID), slog.String("username", username))
	writeJSON(w, http.StatusAccepted, SyncResponse{RunID: runID, Status: "queued", Target: username})
}

// HandleSyncAll queues a reconciliation of every profile file.
//
// HTTP: POST /api/sync
func (h *SyncHandler) HandleSyncAll(w http.ResponseWriter, r *http.Request) {
	runID := xid.New().String()
	err := h.queue.Submit(service.Job{
		ID: runID,
		Run: func(ctx context.Context) error {
			results, err := h.reconciler.ProcessAll(ctx)
			logResults(h.logger, runID, results)
			return err
		},
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("full sync queued", slog.String("run_id", runID))
	writeJSON(w, http.StatusAccepted, SyncResponse{RunID: runID, Status: "queued", Target: "all"})
}

// logResults writes one summary line per run, plus one line per failed user.
func logResults(logger *slog.Logger, runID string, results []service.Result) {
	failed := 0
	for _, res := range results {
		if !res.Failed() {
			continue
		}
		failed++
		logger.Warn("user failed",
			slog.String("run_id", runID),
			slog.String("username", res.Username),
			slog.String("reason", res.Reason.String()),
		)
	}
	logger.Info("sync run finished",
		slog.String("run_id", runID),
		slog.Int("users", len(results)),
		slog.Int("failed", failed),
		slog.String("summary", fmt.Sprintf("%d/%d ok", len(results)-failed, len(results))),
	)
}
