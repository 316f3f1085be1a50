package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"safecircle/internal/notification/models"
	"safecircle/internal/platform/middleware"
	id "safecircle/pkg/domain"
	dErrors "safecircle/pkg/domain-errors"
	"safecircle/pkg/platform/httputil"
	"safecircle/pkg/platform/sentinel"
	"safecircle/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service,PreferenceStore

// Service is the notification inbox surface of the orchestrator.
type Service interface {
	ListNotifications(ctx context.Context, userID id.UserID, limit int) ([]*models.Record, error)
	MarkRead(ctx context.Context, notificationID id.NotificationID, userID id.UserID) (*models.Record, error)
	RecordAction(ctx context.Context, notificationID id.NotificationID, userID id.UserID, action string) (*models.Record, error)
	ListFailedDeliveries(ctx context.Context, limit int) ([]*models.Record, error)
	HandleDeliveryCallback(ctx context.Context, notificationID id.NotificationID, ch models.Channel, status models.DeliveryStatus, detail string) (*models.Record, error)
}

// CallbackVerifier authenticates a delivery provider for one channel.
type CallbackVerifier interface {
	Verify(ch models.Channel, key string) error
}

type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID id.UserID) (*models.Preferences, error)
	Put(ctx context.Context, prefs *models.Preferences) error
}

// ProviderKeyHeader carries the provider's callback key. Callbacks come from
// providers, not users, so they are not behind bearer auth.
const ProviderKeyHeader = "X-Provider-Key"

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Handler handles notification inbox, preference and provider callback
// endpoints.
type Handler struct {
	service      Service
	prefs        PreferenceStore
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
	callbacks    CallbackVerifier
}

// New builds the handler. A nil callbacks verifier rejects every delivery
// callback.
func New(service Service, prefs PreferenceStore, logger *slog.Logger, jwtValidator middleware.JWTValidator, callbacks CallbackVerifier) *Handler {
	return &Handler{
		service:      service,
		prefs:        prefs,
		logger:       logger,
		jwtValidator: jwtValidator,
		callbacks:    callbacks,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

		r.Get("/notifications", h.handleList)
		r.Get("/notifications/failed", h.handleListFailed)
		r.Get("/notifications/preferences", h.handleGetPreferences)
		r.Put("/notifications/preferences", h.handlePutPreferences)
		r.Post("/notifications/{notificationID}/read", h.handleMarkRead)
		r.Post("/notifications/{notificationID}/action", h.handleRecordAction)
	})
	r.Post("/notifications/{notificationID}/callback", h.handleCallback)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	records, err := h.service.ListNotifications(ctx, requestcontext.UserID(ctx), limit)
	if err != nil {
		h.fail(ctx, w, "list notifications", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListNotificationsResponse{Notifications: nonNil(records)})
}

func (h *Handler) handleListFailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	records, err := h.service.ListFailedDeliveries(ctx, limit)
	if err != nil {
		h.fail(ctx, w, "list failed deliveries", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListNotificationsResponse{Notifications: nonNil(records)})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	notificationID, ok := h.notificationID(w, r)
	if !ok {
		return
	}
	record, err := h.service.MarkRead(ctx, notificationID, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(ctx, w, "mark notification read", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleRecordAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	notificationID, ok := h.notificationID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RecordActionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	record, err := h.service.RecordAction(ctx, notificationID, requestcontext.UserID(ctx), req.Action)
	if err != nil {
		h.fail(ctx, w, "record notification action", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	notificationID, ok := h.notificationID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[DeliveryCallbackRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.verifyProvider(req.channel, r.Header.Get(ProviderKeyHeader)); err != nil {
		h.logger.WarnContext(ctx, "delivery callback rejected",
			"notification_id", notificationID.String(),
			"channel", string(req.channel),
			"client_ip", requestcontext.ClientIP(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	record, err := h.service.HandleDeliveryCallback(ctx, notificationID, req.channel, req.status, req.Detail)
	if err != nil {
		h.fail(ctx, w, "apply delivery callback", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	prefs, err := h.prefs.GetPreferences(ctx, userID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		prefs = models.DefaultPreferences(userID)
	case err != nil:
		h.fail(ctx, w, "get preferences", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load preferences"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, prefs)
}

func (h *Handler) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[PreferencesRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	prefs := req.Preferences
	prefs.UserID = requestcontext.UserID(ctx)
	if err := h.prefs.Put(ctx, &prefs); err != nil {
		h.fail(ctx, w, "save preferences", dErrors.Wrap(err, dErrors.CodeInternal, "failed to save preferences"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &prefs)
}

func (h *Handler) notificationID(w http.ResponseWriter, r *http.Request) (id.NotificationID, bool) {
	notificationID, err := id.ParseNotificationID(chi.URLParam(r, "notificationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.NotificationID{}, false
	}
	return notificationID, true
}

func (h *Handler) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer"))
		return 0, false
	}
	return min(n, maxListLimit), true
}

// fail logs at a level matching the error class and writes the response.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	requestID := requestcontext.RequestID(ctx)
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "failed to "+op,
			"request_id", requestID,
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, op+" rejected",
			"request_id", requestID,
			"code", string(dErrors.CodeOf(err)),
		)
	}
	httputil.WriteError(w, err)
}

func nonNil(records []*models.Record) []*models.Record {
	if records == nil {
		return []*models.Record{}
	}
	return records
}

func (h *Handler) verifyProvider(ch models.Channel, key string) error {
	if h.callbacks == nil {
		return dErrors.New(dErrors.CodeUnauthorized, "delivery callbacks are disabled")
	}
	return h.callbacks.Verify(ch, key)
}
