package handler

import (
	"strings"

	"safecircle/internal/escalation/models"
	id "safecircle/pkg/domain"
	dErrors "safecircle/pkg/domain-errors"
)

type CreateEscalationRequest struct {
	Title    string `json:"title"`
	Context  string `json:"context"`
	Severity string `json:"severity"`

	context  models.Context
	severity models.Severity
}

func (r *CreateEscalationRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	c, err := models.ParseContext(r.Context)
	if err != nil {
		return err
	}
	sev, err := models.ParseSeverity(r.Severity)
	if err != nil {
		return err
	}
	r.context, r.severity = c, sev
	return nil
}

type EscalateRequest struct {
	Reason   string `json:"reason"`
	AssignTo string `json:"assign_to,omitempty"`

	assignTo *id.UserID
}

func (r *EscalateRequest) Validate() error {
	if r.AssignTo == "" {
		return nil
	}
	userID, err := id.ParseUserID(r.AssignTo)
	if err != nil {
		return err
	}
	r.assignTo = &userID
	return nil
}

type AssignResponderRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`

	userID id.UserID
	role   models.Role
}

func (r *AssignResponderRequest) Validate() error {
	userID, err := id.ParseUserID(r.UserID)
	if err != nil {
		return err
	}
	role := models.RoleResponder
	if r.Role != "" {
		if role, err = models.ParseRole(r.Role); err != nil {
			return err
		}
	}
	r.userID, r.role = userID, role
	return nil
}

type HandoffRequest struct {
	NextUserID string `json:"next_user_id"`
	Reason     string `json:"reason"`

	nextUserID id.UserID
}

func (r *HandoffRequest) Validate() error {
	userID, err := id.ParseUserID(r.NextUserID)
	if err != nil {
		return err
	}
	r.nextUserID = userID
	return nil
}

type UpdateStatusRequest struct {
	Status string `json:"status"`

	status models.Status
}

func (r *UpdateStatusRequest) Validate() error {
	status, err := models.ParseStatus(r.Status)
	if err != nil {
		return err
	}
	r.status = status
	return nil
}

type UpdateSeverityRequest struct {
	Severity string `json:"severity"`

	severity models.Severity
}

func (r *UpdateSeverityRequest) Validate() error {
	sev, err := models.ParseSeverity(r.Severity)
	if err != nil {
		return err
	}
	r.severity = sev
	return nil
}

type LogActionRequest struct {
	Action string `json:"action"`
}

func (r *LogActionRequest) Validate() error {
	r.Action = strings.TrimSpace(r.Action)
	if r.Action == "" {
		return dErrors.New(dErrors.CodeValidation, "action is required")
	}
	if len(r.Action) > 2000 {
		return dErrors.New(dErrors.CodeValidation, "action must be at most 2000 characters")
	}
	return nil
}

type CanEscalateResponse struct {
	CanEscalate bool `json:"can_escalate"`
}

type ListEscalationsResponse struct {
	Escalations []*models.EscalationEvent `json:"escalations"`
}
