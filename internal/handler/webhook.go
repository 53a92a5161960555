package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/rustaceans-org/rustaceans-sync/internal/service"
)

// maxWebhookBodySize bounds webhook payloads. pull_request payloads are a
// few tens of kilobytes.
const maxWebhookBodySize = 5 << 20

// deduplicationWindow is how long delivery IDs are remembered. GitHub
// redeliveries happen within minutes.
const deduplicationWindow = time.Hour

// pullRequestEvent is the part of a pull_request payload we read.
type pullRequestEvent struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Merged bool `json:"merged"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// WebhookResponse is the body of every webhook answer.
type WebhookResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id,omitempty"`
}

// WebhookHandler receives GitHub webhook deliveries. A merged pull request
// queues a reconciliation of every profile file it touched; the outcome is
// commented on the PR. Everything else is acknowledged and ignored.
type WebhookHandler struct {
	secret     []byte
	repository string
	reconciler Reconciler
	queue      JobQueue
	logger     *slog.Logger

	mu         sync.Mutex
	deliveries map[string]time.Time
	now        func() time.Time
}

// NewWebhookHandler creates a handler that verifies deliveries with secret.
// Deliveries for repositories other than repository ("owner/name") are
// ignored; an empty repository accepts all.
func NewWebhookHandler(secret, repository string, reconciler Reconciler, queue JobQueue, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		secret:     []byte(secret),
		repository: repository,
		reconciler: reconciler,
		queue:      queue,
		logger:     logger,
		deliveries: make(map[string]time.Time),
		now:        time.Now,
	}
}

// HandleWebhook processes one delivery.
//
// HTTP: POST /webhooks/github
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	// HMAC verification needs the raw bytes.
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		h.logger.Error("webhook: reading body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "could not read body"})
		return
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "empty body"})
		return
	}

	if err := verifySignature(h.secret, body, r.Header.Get("X-Hub-Signature-256")); err != nil {
		h.logger.Warn("webhook: signature rejected",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr),
		)
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "invalid signature"})
		return
	}

	event := r.Header.Get("X-GitHub-Event")
	delivery := r.Header.Get("X-GitHub-Delivery")
	if event == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "missing X-GitHub-Event header"})
		return
	}

	logger := h.logger.With(slog.String("event", event), slog.String("delivery", delivery))

	if delivery != "" && h.isDuplicate(delivery) {
		logger.Debug("webhook: duplicate delivery ignored")
		writeJSON(w, http.StatusOK, WebhookResponse{Status: "duplicate"})
		return
	}

	switch event {
	case "ping":
		writeJSON(w, http.StatusOK, WebhookResponse{Status: "pong"})
	case "pull_request":
		if !h.handlePullRequest(w, logger, body) && delivery != "" {
			// Let GitHub's redelivery through.
			h.forget(delivery)
		}
	default:
		logger.Debug("webhook: event ignored")
		writeJSON(w, http.StatusAccepted, WebhookResponse{Status: "ignored"})
	}
}

// handlePullRequest reports false when the delivery could not be accepted.
func (h *WebhookHandler) handlePullRequest(w http.ResponseWriter, logger *slog.Logger, body []byte) bool {
	var event pullRequestEvent
	if err := json.Unmarshal(body, &event); err != nil {
		logger.Warn("webhook: malformed pull_request payload", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "malformed payload"})
		return true
	}

	if h.repository != "" && !strings.EqualFold(event.Repository.FullName, h.repository) {
		logger.Info("webhook: pull request from another repository ignored",
			slog.String("repository", event.Repository.FullName))
		writeJSON(w, http.StatusAccepted, WebhookResponse{Status: "ignored"})
		return true
	}
	if event.Action != "closed" || !event.PullRequest.Merged || event.Number <= 0 {
		writeJSON(w, http.StatusAccepted, WebhookResponse{Status: "ignored"})
		return true
	}

	runID := xid.New().String()
	number := event.Number
	err := h.queue.Submit(service.Job{
		ID: runID,
		Run: func(ctx context.Context) error {
			results, err := h.reconciler.ProcessPullRequest(ctx, number)
			logResults(h.logger, runID, results)
			return err
		},
	})
	if err != nil {
		logger.Error("webhook: queueing pull request failed", slog.Int("pr", number), slog.String("error", err.Error()))
		writeError(w, err)
		return false
	}

	logger.Info("webhook: merged pull request queued", slog.Int("pr", number), slog.String("run_id", runID))
	writeJSON(w, http.StatusAccepted, WebhookResponse{Status: "queued", RunID: runID})
	return true
}

// isDuplicate records delivery and reports whether it was seen within the
// deduplication window. Expired entries are pruned on every call.
func (h *WebhookHandler) isDuplicate(delivery string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	for id, seen := range h.deliveries {
		if now.Sub(seen) > deduplicationWindow {
			delete(h.deliveries, id)
		}
	}

	if _, ok := h.deliveries[delivery]; ok {
		return true
	}
	h.deliveries[delivery] = now
	return false
}

func (h *WebhookHandler) forget(delivery string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.deliveries, delivery)
}

// verifySignature checks a GitHub "sha256=<hex>" HMAC over body.
func verifySignature(secret, body []byte, signature string) error {
	if len(secret) == 0 {
		return errors.New("webhook secret is not configured")
	}
	hexSignature, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return errors.New("missing sha256 signature")
	}
	got, err := hex.DecodeString(hexSignature)
	if err != nil {
		return fmt.Errorf("invalid hex signature: %w", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), got) {
		return errors.New("signature mismatch")
	}
	return nil
}
