// internal/api/handlers.go
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"lending-pipeline/internal/common/config"
	apperrors "lending-pipeline/internal/common/errors"
	"lending-pipeline/internal/common/logger"
	"lending-pipeline/internal/models"
	"lending-pipeline/internal/store"
)

// Handler serves the submission and query endpoints. Submissions go through
// the transition store so the application row, its first audit entry and the
// ApplicationSubmitted outbox record commit atomically.
type Handler struct {
	config      *config.APIConfig
	transitions *store.TransitionStore
	apps        *store.ApplicationStore
	audit       *store.AuditLogStore
	cache       Cache
	logger      logger.Logger
}

func NewHandler(cfg *config.APIConfig, transitions *store.TransitionStore, apps *store.ApplicationStore, audit *store.AuditLogStore, cache Cache, log logger.Logger) *Handler {
	return &Handler{
		config:      cfg,
		transitions: transitions,
		apps:        apps,
		audit:       audit,
		cache:       cache,
		logger:      log,
	}
}

// Register mounts the application endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/applications", h.HandleSubmit)
	r.Get("/applications", h.HandleListByUser)
	r.Get("/applications/{applicationID}", h.HandleGet)
	r.Get("/applications/{applicationID}/logs", h.HandleAuditLogs)
}

// HandleSubmit handles POST /applications.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SubmitApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.NewValidationFailedError("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, err)
		return
	}

	applicationID := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	payload, _ := json.Marshal(map[string]interface{}{
		"userId": req.UserID,
		"amount": req.Amount,
	})

	app := &models.Application{
		ApplicationID: applicationID,
		UserID:        req.UserID,
		Amount:        req.Amount,
		Status:        models.StatusSubmitted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	entry := &models.AuditLogEntry{
		ApplicationID: applicationID,
		LogTimestamp:  now,
		Action:        string(models.StatusSubmitted),
		Actor:         models.ActorSubmissionAPI,
		Details:       string(payload),
	}
	outbox := &models.OutboxRecord{
		EventID:       uuid.New().String(),
		ApplicationID: applicationID,
		EventType:     models.EventApplicationSubmitted,
		Payload:       string(payload),
		Status:        models.OutboxPending,
		CreatedAt:     now,
	}

	if err := h.transitions.CreateSubmission(ctx, app, entry, outbox); err != nil {
		h.logger.Error("submission failed", map[string]interface{}{
			"userId": req.UserID,
			"error":  err,
		})
		h.writeError(w, err)
		return
	}

	h.invalidateUserCache(ctx, req.UserID)

	h.logger.Info("application submitted", map[string]interface{}{
		"applicationId": applicationID,
		"userId":        req.UserID,
	})
	h.writeJSON(w, http.StatusCreated, SubmitApplicationResponse{
		ApplicationID: applicationID,
		Status:        string(models.StatusSubmitted),
	})
}

// HandleListByUser handles GET /applications. The caller identifies itself
// with the X-User-Id header; results are cached per user until the next
// submission invalidates them.
func (h *Handler) HandleListByUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		h.writeError(w, apperrors.NewValidationFailedError("X-User-Id header is required"))
		return
	}

	if h.cache != nil {
		if cached, err := h.cache.Get(ctx, userApplicationsKey(userID)); err == nil && cached != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(cached))
			return
		}
	}

	apps, err := h.apps.ListByUser(ctx, userID)
	if err != nil {
		h.logger.Error("list applications failed", map[string]interface{}{
			"userId": userID,
			"error":  err,
		})
		h.writeError(w, err)
		return
	}
	if apps == nil {
		apps = []models.Application{}
	}

	body, err := json.Marshal(apps)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if h.cache != nil {
		ttl := time.Duration(h.config.CacheTTLMS) * time.Millisecond
		if err := h.cache.Set(ctx, userApplicationsKey(userID), string(body), ttl); err != nil {
			h.logger.Warn("cache set failed", map[string]interface{}{
				"userId": userID,
				"error":  err,
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// HandleGet handles GET /applications/{applicationID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	applicationID := chi.URLParam(r, "applicationID")

	app, err := h.apps.Get(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(w, apperrors.NewApplicationNotFoundError(applicationID))
			return
		}
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

// HandleAuditLogs handles GET /applications/{applicationID}/logs. Supports
// order=asc|desc, an inclusive from/to timestamp range and a limit.
func (h *Handler) HandleAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	applicationID := chi.URLParam(r, "applicationID")

	if _, err := h.apps.Get(ctx, applicationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(w, apperrors.NewApplicationNotFoundError(applicationID))
			return
		}
		h.writeError(w, err)
		return
	}

	q := store.AuditQuery{
		ApplicationID: applicationID,
		Descending:    r.URL.Query().Get("order") == "desc",
		From:          r.URL.Query().Get("from"),
		To:            r.URL.Query().Get("to"),
		Limit:         h.config.DefaultLimit,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			h.writeError(w, apperrors.NewValidationFailedError("limit must be a positive integer"))
			return
		}
		q.Limit = limit
	}

	entries, err := h.audit.Query(ctx, q)
	if err != nil {
		h.logger.Error("audit log query failed", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err,
		})
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.AuditLogEntry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) invalidateUserCache(ctx context.Context, userID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Del(ctx, userApplicationsKey(userID)); err != nil {
		h.logger.Warn("cache invalidation failed", map[string]interface{}{
			"userId": userID,
			"error":  err,
		})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", map[string]interface{}{"error": err})
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeValidationFailed:
		status = http.StatusBadRequest
	case apperrors.ErrCodeApplicationNotFound:
		status = http.StatusNotFound
	}
	h.writeJSON(w, status, errorResponse{
		Error: err.Error(),
		Code:  string(apperrors.CodeOf(err)),
	})
}
