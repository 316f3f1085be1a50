package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string) error
	POST(path string, body any) error
	PUT(path string, body any) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	Save(key, value string)
	Saved(key string) (string, error)
}

// RegisterSteps registers inbox and preference steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &notificationSteps{tc: tc}

	ctx.Step(`^I opt out of "([^"]*)" notifications$`, steps.optOutOfType)
	ctx.Step(`^I disable the "([^"]*)" channel$`, steps.disableChannel)
	ctx.Step(`^I should eventually have a "([^"]*)" notification$`, steps.eventuallyHave)
	ctx.Step(`^I should have no notifications$`, steps.haveNone)
	ctx.Step(`^the notification was sent on "([^"]*)"$`, steps.sentOn)
	ctx.Step(`^the notification has no "([^"]*)" delivery$`, steps.noDelivery)
	ctx.Step(`^I mark the notification read$`, steps.markRead)
	ctx.Step(`^I record the action "([^"]*)"$`, steps.recordAction)
}

type notificationSteps struct {
	tc TestContext
	// last notification matched by eventuallyHave
	index int
}

func (s *notificationSteps) optOutOfType(ctx context.Context, notificationType string) error {
	return s.putPreferences(map[string]any{
		"types": map[string]bool{notificationType: false},
	})
}

func (s *notificationSteps) disableChannel(ctx context.Context, channel string) error {
	return s.putPreferences(map[string]any{
		"channels": map[string]any{channel: map[string]bool{"enabled": false}},
	})
}

func (s *notificationSteps) putPreferences(body map[string]any) error {
	if err := s.tc.PUT("/notifications/preferences", body); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 200 {
		return fmt.Errorf("save preferences returned %d", s.tc.GetLastResponseStatus())
	}
	return nil
}

// eventuallyHave polls the inbox; delivery runs asynchronously after the
// escalation request returns.
func (s *notificationSteps) eventuallyHave(ctx context.Context, notificationType string) error {
	escalationID, err := s.tc.Saved("escalation")
	if err != nil {
		return err
	}
	deadline := time.Now().Add(10 * time.Second)
	for {
		if err := s.tc.GET("/notifications"); err != nil {
			return err
		}
		if i, ok := s.find(escalationID, notificationType); ok {
			s.index = i
			id, err := s.tc.GetResponseField(fmt.Sprintf("notifications.%d.id", i))
			if err != nil {
				return err
			}
			s.tc.Save("notification", fmt.Sprint(id))
			return s.waitDelivered(escalationID, notificationType, deadline)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("no %s notification for escalation %s", notificationType, escalationID)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// waitDelivered waits until no channel of the matched record is PENDING.
func (s *notificationSteps) waitDelivered(escalationID, notificationType string, deadline time.Time) error {
	for {
		deliveries, err := s.tc.GetResponseField(fmt.Sprintf("notifications.%d.deliveries", s.index))
		if err != nil {
			return err
		}
		pending := false
		for _, d := range deliveries.(map[string]any) {
			if d.(map[string]any)["status"] == "PENDING" {
				pending = true
			}
		}
		if !pending {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s notification still pending", notificationType)
		}
		time.Sleep(200 * time.Millisecond)
		if err := s.tc.GET("/notifications"); err != nil {
			return err
		}
		i, ok := s.find(escalationID, notificationType)
		if !ok {
			return fmt.Errorf("%s notification disappeared", notificationType)
		}
		s.index = i
	}
}

func (s *notificationSteps) find(escalationID, notificationType string) (int, bool) {
	list, err := s.tc.GetResponseField("notifications")
	if err != nil {
		return 0, false
	}
	for i, item := range list.([]any) {
		n := item.(map[string]any)
		if n["escalation_id"] == escalationID && n["type"] == notificationType {
			return i, true
		}
	}
	return 0, false
}

func (s *notificationSteps) haveNone(ctx context.Context) error {
	// Give the orchestrator a moment so an absent record means suppressed,
	// not slow.
	time.Sleep(time.Second)
	if err := s.tc.GET("/notifications"); err != nil {
		return err
	}
	list, err := s.tc.GetResponseField("notifications")
	if err != nil {
		return err
	}
	if n := len(list.([]any)); n != 0 {
		return fmt.Errorf("expected no notifications, got %d", n)
	}
	return nil
}

func (s *notificationSteps) sentOn(ctx context.Context, channel string) error {
	status, err := s.tc.GetResponseField(fmt.Sprintf("notifications.%d.deliveries.%s.status", s.index, channel))
	if err != nil {
		return err
	}
	if status != "SENT" {
		return fmt.Errorf("expected %s delivery SENT, got %v", channel, status)
	}
	return nil
}

func (s *notificationSteps) noDelivery(ctx context.Context, channel string) error {
	if _, err := s.tc.GetResponseField(fmt.Sprintf("notifications.%d.deliveries.%s", s.index, channel)); err == nil {
		return fmt.Errorf("unexpected %s delivery", channel)
	}
	return nil
}

func (s *notificationSteps) markRead(ctx context.Context) error {
	notificationID, err := s.tc.Saved("notification")
	if err != nil {
		return err
	}
	return s.tc.POST("/notifications/"+notificationID+"/read", nil)
}

func (s *notificationSteps) recordAction(ctx context.Context, action string) error {
	notificationID, err := s.tc.Saved("notification")
	if err != nil {
		return err
	}
	return s.tc.POST("/notifications/"+notificationID+"/action", map[string]string{"action": action})
}
