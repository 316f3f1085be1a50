package store

import (
	"safecircle/internal/escalation/models"
	id "safecircle/pkg/domain"
	"safecircle/pkg/platform/pubsub"
)

// subscriptions fans committed snapshots out to escalation and user feeds.
// Handlers receive a shared snapshot and must treat it as read-only.
type subscriptions struct {
	byEscalation *pubsub.Hub[id.EscalationID, *models.EscalationEvent]
	byUser       *pubsub.Hub[id.UserID, *models.EscalationEvent]
}

func newSubscriptions() subscriptions {
	return subscriptions{
		byEscalation: pubsub.NewHub[id.EscalationID, *models.EscalationEvent](),
		byUser:       pubsub.NewHub[id.UserID, *models.EscalationEvent](),
	}
}

func (s subscriptions) SubscribeEscalation(escalationID id.EscalationID, fn func(*models.EscalationEvent)) func() {
	return s.byEscalation.Subscribe(escalationID, fn)
}

func (s subscriptions) SubscribeUserEscalations(userID id.UserID, fn func(*models.EscalationEvent)) func() {
	return s.byUser.Subscribe(userID, fn)
}

func (s subscriptions) publish(snapshot *models.EscalationEvent) {
	s.byEscalation.Publish(snapshot.ID, snapshot)
	for _, userID := range watchers(snapshot) {
		s.byUser.Publish(userID, snapshot)
	}
}

// watchers are the users whose feeds show the event: creator, owner and
// every responder ever assigned.
func watchers(e *models.EscalationEvent) []id.UserID {
	out := []id.UserID{e.CreatedBy}
	if e.CurrentOwner != e.CreatedBy {
		out = append(out, e.CurrentOwner)
	}
	for _, u := range e.ResponderUserIDs() {
		if u != e.CreatedBy && u != e.CurrentOwner {
			out = append(out, u)
		}
	}
	return out
}
