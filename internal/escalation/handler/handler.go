package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"safecircle/internal/escalation/models"
	"safecircle/internal/escalation/statemachine"
	"safecircle/internal/platform/middleware"
	id "safecircle/pkg/domain"
	dErrors "safecircle/pkg/domain-errors"
	"safecircle/pkg/platform/httputil"
	"safecircle/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the escalation facade operations exposed over HTTP.
type Service interface {
	CreateEscalation(ctx context.Context, in statemachine.CreateInput) (*models.EscalationEvent, error)
	GetEscalation(ctx context.Context, escalationID id.EscalationID, actor id.UserID) (*models.EscalationEvent, error)
	ListUserEscalations(ctx context.Context, userID id.UserID) ([]*models.EscalationEvent, error)
	EscalateToNextLevel(ctx context.Context, escalationID id.EscalationID, reason string, actor id.UserID, assignTo *id.UserID) (*models.EscalationEvent, error)
	AssignResponder(ctx context.Context, escalationID id.EscalationID, userID id.UserID, role models.Role, actor id.UserID) (*models.ResponderAssignment, error)
	AcknowledgeAssignment(ctx context.Context, escalationID id.EscalationID, assignmentID id.AssignmentID, actor id.UserID) (*models.EscalationEvent, error)
	HandoffEscalation(ctx context.Context, escalationID id.EscalationID, assignmentID id.AssignmentID, nextUserID id.UserID, reason string, actor id.UserID) (*models.ResponderAssignment, error)
	UpdateStatus(ctx context.Context, escalationID id.EscalationID, status models.Status, actor id.UserID) (*models.EscalationEvent, error)
	UpdateSeverity(ctx context.Context, escalationID id.EscalationID, severity models.Severity, actor id.UserID) (*models.EscalationEvent, error)
	LogResponderAction(ctx context.Context, escalationID id.EscalationID, assignmentID id.AssignmentID, action string, actor id.UserID) (*models.ResponderNote, error)
	CanEscalate(ctx context.Context, escalationID id.EscalationID, actor id.UserID) (bool, error)
	ExportPath(ctx context.Context, escalationID id.EscalationID, actor id.UserID) ([]byte, error)
	SubscribeEscalation(ctx context.Context, escalationID id.EscalationID, actor id.UserID, fn func(*models.EscalationEvent)) (func(), error)
}

// Handler handles escalation endpoints.
type Handler struct {
	service      Service
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
}

func New(service Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		service:      service,
		logger:       logger,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the escalation routes behind bearer authentication.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

		r.Post("/escalations", h.handleCreate)
		r.Get("/escalations", h.handleList)
		r.Route("/escalations/{escalationID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Post("/escalate", h.handleEscalate)
			r.Get("/can-escalate", h.handleCanEscalate)
			r.Patch("/status", h.handleUpdateStatus)
			r.Patch("/severity", h.handleUpdateSeverity)
			r.Post("/responders", h.handleAssignResponder)
			r.Post("/assignments/{assignmentID}/acknowledge", h.handleAcknowledge)
			r.Post("/assignments/{assignmentID}/handoff", h.handleHandoff)
			r.Post("/assignments/{assignmentID}/actions", h.handleLogAction)
			r.Get("/path", h.handleExportPath)
			r.Get("/stream", h.handleStream)
		})
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[CreateEscalationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	e, err := h.service.CreateEscalation(ctx, statemachine.CreateInput{
		Title:     req.Title,
		Context:   req.context,
		Severity:  req.severity,
		CreatedBy: requestcontext.UserID(ctx),
	})
	if err != nil {
		h.fail(ctx, w, "create escalation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, e)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	events, err := h.service.ListUserEscalations(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(ctx, w, "list escalations", err)
		return
	}
	if events == nil {
		events = []*models.EscalationEvent{}
	}
	httputil.WriteJSON(w, http.StatusOK, ListEscalationsResponse{Escalations: events})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	escalationID, ok := h.escalationID(w, r)
	if !ok {
		return
	}
	e, err := h.service.GetEscalation(ctx, escalationID, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(ctx, w, "get escalation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) handleEscalate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	escalationID, ok := h.escalationID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[EscalateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	e, err := h.service.EscalateToNextLevel(ctx, escalationID, req.Reason, requestcontext.UserID(ctx), req.assignTo)
	if err != nil {
		h.fail(ctx, w, "escalate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) handleCanEscalate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	escalationID, ok := h.escalationID(w, r)
	if !ok {
		return
	}
	can, err := h.service.CanEscalate(ctx, escalationID, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(ctx, w, "can escalate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CanEscalateResponse{CanEscalate: can})
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	escalationID, ok := h.escalationID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateStatusRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	e, err := h.service.UpdateStatus(ctx, escalationID, req.status, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(ctx, w, "update status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) handleUpdateSeverity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	escalationID, ok := h.escalationID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateSeverityRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	e, err := h.service.UpdateSeverity(ctx, escalationID, req.severity, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(ctx, w, "update severity", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) handleAssignResponder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	escalationID, ok := h.escalationID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AssignResponderRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	a, err := h.service.AssignResponder(ctx, escalationID, req.userID, req.role, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(ctx, w, "assign responder", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	escalationID, assignmentID, ok := h.assignmentPath(w, r)
	if !ok {
		return
	}
	e, err := h.service.AcknowledgeAssignment(ctx, escalationID, assignmentID, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(ctx, w, "acknowledge assignment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) handleHandoff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	escalationID, assignmentID, ok := h.assignmentPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[HandoffRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	a, err := h.service.HandoffEscalation(ctx, escalationID, assignmentID, req.nextUserID, req.Reason, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(ctx, w, "handoff", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handler) handleLogAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	escalationID, assignmentID, ok := h.assignmentPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[LogActionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	note, err := h.service.LogResponderAction(ctx, escalationID, assignmentID, req.Action, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(ctx, w, "log responder action", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, note)
}

func (h *Handler) handleExportPath(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	escalationID, ok := h.escalationID(w, r)
	if !ok {
		return
	}
	data, err := h.service.ExportPath(ctx, escalationID, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(ctx, w, "export path", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) escalationID(w http.ResponseWriter, r *http.Request) (id.EscalationID, bool) {
	escalationID, err := id.ParseEscalationID(chi.URLParam(r, "escalationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.EscalationID{}, false
	}
	return escalationID, true
}

func (h *Handler) assignmentPath(w http.ResponseWriter, r *http.Request) (id.EscalationID, id.AssignmentID, bool) {
	escalationID, ok := h.escalationID(w, r)
	if !ok {
		return id.EscalationID{}, id.AssignmentID{}, false
	}
	assignmentID, err := id.ParseAssignmentID(chi.URLParam(r, "assignmentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.EscalationID{}, id.AssignmentID{}, false
	}
	return escalationID, assignmentID, true
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
