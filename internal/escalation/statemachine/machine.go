// Package statemachine owns the EscalationEvent lifecycle. Operations mutate
// the event they are given in place and return the domain events the
// mutation produced; callers persist the result and stamp the events with
// the committed version.
package statemachine

import (
	"strings"
	"time"

	"safecircle/internal/escalation/models"
	id "safecircle/pkg/domain"
	dErrors "safecircle/pkg/domain-errors"
)

const maxTitleLength = 200

type Machine struct {
	startingLevels  map[models.Context]models.Level
	newEscalationID func() id.EscalationID
	newAssignmentID func() id.AssignmentID
}

type Option func(*Machine)

// WithStartingLevel overrides the initial level for one context.
func WithStartingLevel(ctx models.Context, level models.Level) Option {
	return func(m *Machine) {
		if level.IsValid() {
			m.startingLevels[ctx] = level
		}
	}
}

// WithIDGenerators replaces the UUID generators; tests use it for stable ids.
func WithIDGenerators(escalation func() id.EscalationID, assignment func() id.AssignmentID) Option {
	return func(m *Machine) {
		if escalation != nil {
			m.newEscalationID = escalation
		}
		if assignment != nil {
			m.newAssignmentID = assignment
		}
	}
}

func New(opts ...Option) *Machine {
	m := &Machine{
		startingLevels:  make(map[models.Context]models.Level),
		newEscalationID: id.NewEscalationID,
		newAssignmentID: id.NewAssignmentID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartingLevel returns the configured initial level for ctx, INDIVIDUAL by default.
func (m *Machine) StartingLevel(ctx models.Context) models.Level {
	if l, ok := m.startingLevels[ctx]; ok {
		return l
	}
	return models.LevelIndividual
}

type CreateInput struct {
	Title     string
	Context   models.Context
	Severity  models.Severity
	CreatedBy id.UserID
}

// Create builds a new event at its starting level and immediately applies
// severity based auto-escalation.
func (m *Machine) Create(in CreateInput, now time.Time) (*models.EscalationEvent, []models.DomainEvent, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if len(title) > maxTitleLength {
		return nil, nil, dErrors.Newf(dErrors.CodeValidation, "title must be at most %d characters", maxTitleLength)
	}
	if _, err := models.ParseContext(string(in.Context)); err != nil {
		return nil, nil, err
	}
	if !in.Severity.IsValid() {
		return nil, nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown severity %q", in.Severity)
	}
	if in.CreatedBy.IsNil() {
		return nil, nil, dErrors.New(dErrors.CodeUnauthorized, "creator is required")
	}

	e := &models.EscalationEvent{
		ID:             m.newEscalationID(),
		Title:          title,
		Context:        in.Context,
		Severity:       in.Severity,
		CurrentLevel:   m.StartingLevel(in.Context),
		Status:         models.StatusOpen,
		CreatedBy:      in.CreatedBy,
		CurrentOwner:   in.CreatedBy,
		Responders:     []models.ResponderAssignment{},
		EscalationPath: []models.EscalationEntry{},
		Notes:          []models.ResponderNote{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	actor := in.CreatedBy.String()
	events := []models.DomainEvent{newEvent(models.EventEscalationCreated, e, actor, now)}
	if entry, ok := EvaluateAutoEscalation(e, now); ok {
		ev := newEvent(models.EventEscalationEscalated, e, models.SystemActor, now)
		ev.Entry = entry
		events = append(events, ev)
	}
	return e, events, nil
}

// EscalateToNextLevel moves e one level up on behalf of actor. When assignTo
// is set a pending responder assignment is created at the new level and that
// user becomes the current owner.
func (m *Machine) EscalateToNextLevel(e *models.EscalationEvent, reason string, actor id.UserID, assignTo *id.UserID, now time.Time) ([]models.DomainEvent, error) {
	if err := Authorize(e, actor, PermManage, id.AssignmentID{}); err != nil {
		return nil, err
	}
	if e.IsResolved() {
		return nil, errResolved()
	}
	next, ok := models.NextLevel(e.CurrentLevel)
	if !ok {
		return nil, dErrors.New(dErrors.CodeAlreadyAtMaxLevel, "escalation is already at the highest level")
	}
	if assignTo != nil && assignTo.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "assignee must be a valid user")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Manual escalation"
	}

	var assignment *models.ResponderAssignment
	if assignTo != nil {
		a := m.newAssignment(*assignTo, models.RoleResponder, next, actor, now)
		assignment = &a
	}
	entry := transition(e, next, reason, models.ActionManualEscalate, actor.String(), assignment, now)

	ev := newEvent(models.EventEscalationEscalated, e, actor.String(), now)
	ev.Entry = &entry
	events := []models.DomainEvent{ev}
	if assignment != nil {
		e.Responders = append(e.Responders, *assignment)
		e.CurrentOwner = assignment.UserID
		assigned := newEvent(models.EventResponderAssigned, e, actor.String(), now)
		assigned.Assignment = assignment
		events = append(events, assigned)
	}
	return events, nil
}

// EscalateOnMissedAcknowledgment climbs one level when nobody at the current
// level acknowledged in time. It returns no events when the event is
// resolved, already acknowledged at its level, or at the top.
func (m *Machine) EscalateOnMissedAcknowledgment(e *models.EscalationEvent, level models.Level, now time.Time) []models.DomainEvent {
	if e.IsResolved() || e.CurrentLevel != level || e.AcknowledgedAtLevel(level) {
		return nil
	}
	next, ok := models.NextLevel(level)
	if !ok {
		return nil
	}
	entry := transition(e, next, ReasonSLA, models.ActionAutoEscalate, models.SystemActor, nil, now)
	ev := newEvent(models.EventEscalationEscalated, e, models.SystemActor, now)
	ev.Entry = &entry
	return []models.DomainEvent{ev}
}

func (m *Machine) AssignResponder(e *models.EscalationEvent, userID id.UserID, role models.Role, actor id.UserID, now time.Time) (*models.ResponderAssignment, []models.DomainEvent, error) {
	if err := Authorize(e, actor, PermManage, id.AssignmentID{}); err != nil {
		return nil, nil, err
	}
	if e.IsResolved() {
		return nil, nil, errResolved()
	}
	if userID.IsNil() {
		return nil, nil, dErrors.New(dErrors.CodeInvalidInput, "responder must be a valid user")
	}
	if _, err := models.ParseRole(string(role)); err != nil {
		return nil, nil, err
	}
	if _, ok := e.ActiveAssignee(userID); ok {
		return nil, nil, dErrors.New(dErrors.CodeConflict, "user already has an active assignment on this escalation")
	}

	a := m.newAssignment(userID, role, e.CurrentLevel, actor, now)
	e.Responders = append(e.Responders, a)
	e.UpdatedAt = now

	ev := newEvent(models.EventResponderAssigned, e, actor.String(), now)
	ev.Assignment = &a
	return &a, []models.DomainEvent{ev}, nil
}

// AcknowledgeAssignment marks the assignment acknowledged. The first
// acknowledgment on an OPEN event moves it to IN_PROGRESS. Acknowledging
// twice is a no-op.
func (m *Machine) AcknowledgeAssignment(e *models.EscalationEvent, assignmentID id.AssignmentID, actor id.UserID, now time.Time) ([]models.DomainEvent, error) {
	if err := Authorize(e, actor, PermAcknowledge, assignmentID); err != nil {
		return nil, err
	}
	if e.IsResolved() {
		return nil, errResolved()
	}
	a, _ := e.Assignment(assignmentID)
	switch a.Status {
	case models.AssignmentAcknowledged:
		return nil, nil
	case models.AssignmentHandedOff:
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "assignment was handed off")
	}

	at := now
	a.Status = models.AssignmentAcknowledged
	a.AcknowledgedAt = &at
	if e.Status == models.StatusOpen {
		e.Status = models.StatusInProgress
	}
	e.UpdatedAt = now

	ev := newEvent(models.EventAssignmentAcknowledged, e, actor.String(), now)
	ack := *a
	ev.Assignment = &ack
	return []models.DomainEvent{ev}, nil
}

// HandoffEscalation closes an assignment and opens a pending one for
// nextUserID at the current level. Ownership follows when the handed off
// responder was the owner.
func (m *Machine) HandoffEscalation(e *models.EscalationEvent, assignmentID id.AssignmentID, nextUserID id.UserID, reason string, actor id.UserID, now time.Time) (*models.ResponderAssignment, []models.DomainEvent, error) {
	if err := Authorize(e, actor, PermHandoff, assignmentID); err != nil {
		return nil, nil, err
	}
	if e.IsResolved() {
		return nil, nil, errResolved()
	}
	a, _ := e.Assignment(assignmentID)
	if a.Status == models.AssignmentHandedOff {
		return nil, nil, dErrors.New(dErrors.CodeInvalidTransition, "assignment was already handed off")
	}
	if nextUserID.IsNil() {
		return nil, nil, dErrors.New(dErrors.CodeInvalidInput, "next responder must be a valid user")
	}
	if nextUserID == a.UserID {
		return nil, nil, dErrors.New(dErrors.CodeInvalidInput, "cannot hand off to the same responder")
	}
	if _, ok := e.ActiveAssignee(nextUserID); ok {
		return nil, nil, dErrors.New(dErrors.CodeConflict, "next responder already has an active assignment")
	}

	from := a.UserID
	a.Status = models.AssignmentHandedOff
	a.HandoffReason = strings.TrimSpace(reason)
	role := a.Role

	next := m.newAssignment(nextUserID, role, e.CurrentLevel, actor, now)
	e.Responders = append(e.Responders, next)
	if e.CurrentOwner == from {
		e.CurrentOwner = nextUserID
	}
	e.UpdatedAt = now

	ev := newEvent(models.EventResponderAssigned, e, actor.String(), now)
	ev.Assignment = &next
	return &next, []models.DomainEvent{ev}, nil
}

// UpdateStatus applies a status transition. Legal moves are OPEN to
// IN_PROGRESS and either of those to RESOLVED.
func (m *Machine) UpdateStatus(e *models.EscalationEvent, newStatus models.Status, actor id.UserID, now time.Time) ([]models.DomainEvent, error) {
	if err := Authorize(e, actor, PermManage, id.AssignmentID{}); err != nil {
		return nil, err
	}
	if e.IsResolved() {
		return nil, errResolved()
	}
	if !statusTransitionAllowed(e.Status, newStatus) {
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition, "cannot move from %s to %s", e.Status, newStatus)
	}

	e.Status = newStatus
	e.UpdatedAt = now
	if newStatus != models.StatusResolved {
		return nil, nil
	}
	at := now
	e.ResolvedAt = &at
	return []models.DomainEvent{newEvent(models.EventEscalationResolved, e, actor.String(), now)}, nil
}

// UpdateSeverity changes the severity and re-applies auto-escalation as a floor.
func (m *Machine) UpdateSeverity(e *models.EscalationEvent, severity models.Severity, actor id.UserID, now time.Time) ([]models.DomainEvent, error) {
	if err := Authorize(e, actor, PermManage, id.AssignmentID{}); err != nil {
		return nil, err
	}
	if e.IsResolved() {
		return nil, errResolved()
	}
	if !severity.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown severity %q", severity)
	}
	e.Severity = severity
	e.UpdatedAt = now

	entry, ok := EvaluateAutoEscalation(e, now)
	if !ok {
		return nil, nil
	}
	ev := newEvent(models.EventEscalationEscalated, e, models.SystemActor, now)
	ev.Entry = entry
	return []models.DomainEvent{ev}, nil
}

// LogResponderAction appends a note. It is the one operation still accepted
// after resolution.
func (m *Machine) LogResponderAction(e *models.EscalationEvent, assignmentID id.AssignmentID, action string, actor id.UserID, now time.Time) (*models.ResponderNote, error) {
	if err := Authorize(e, actor, PermLogAction, assignmentID); err != nil {
		return nil, err
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "action is required")
	}
	note := models.ResponderNote{
		AssignmentID: assignmentID,
		AuthorID:     actor,
		Action:       action,
		LoggedAt:     now,
	}
	e.Notes = append(e.Notes, note)
	e.UpdatedAt = now
	return &note, nil
}

func (m *Machine) newAssignment(userID id.UserID, role models.Role, level models.Level, by id.UserID, now time.Time) models.ResponderAssignment {
	return models.ResponderAssignment{
		AssignmentID: m.newAssignmentID(),
		UserID:       userID,
		Role:         role,
		Level:        level,
		AssignedBy:   by,
		AssignedAt:   now,
		Status:       models.AssignmentPending,
	}
}

func statusTransitionAllowed(from, to models.Status) bool {
	switch from {
	case models.StatusOpen:
		return to == models.StatusInProgress || to == models.StatusResolved
	case models.StatusInProgress:
		return to == models.StatusResolved
	default:
		return false
	}
}

func errResolved() error {
	return dErrors.New(dErrors.CodeInvalidTransition, "escalation is resolved")
}

func newEvent(t models.DomainEventType, e *models.EscalationEvent, actor string, now time.Time) models.DomainEvent {
	return models.DomainEvent{
		Type:         t,
		EscalationID: e.ID,
		OccurredAt:   now,
		Actor:        actor,
	}
}
