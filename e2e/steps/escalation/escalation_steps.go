package escalation

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	PATCH(path string, body any) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	UserID(name string) (string, error)
	Save(key, value string)
	Saved(key string) (string, error)
}

// RegisterSteps registers escalation lifecycle steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &escalationSteps{tc: tc}

	ctx.Step(`^I raise a "([^"]*)" escalation "([^"]*)" with severity "([^"]*)"$`, steps.raise)
	ctx.Step(`^I assign "([^"]*)" as responder$`, steps.assignResponder)
	ctx.Step(`^I acknowledge the assignment$`, steps.acknowledge)
	ctx.Step(`^I escalate because "([^"]*)"$`, steps.escalate)
	ctx.Step(`^I set the status to "([^"]*)"$`, steps.setStatus)
}

type escalationSteps struct {
	tc TestContext
}

func (s *escalationSteps) escalationPath(suffix string) (string, error) {
	escalationID, err := s.tc.Saved("escalation")
	if err != nil {
		return "", err
	}
	return "/escalations/" + escalationID + suffix, nil
}

func (s *escalationSteps) raise(ctx context.Context, escContext, title, severity string) error {
	if err := s.tc.POST("/escalations", map[string]string{
		"title":    title,
		"context":  escContext,
		"severity": severity,
	}); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 201 {
		return fmt.Errorf("create escalation returned %d", s.tc.GetLastResponseStatus())
	}
	return s.saveField("escalation", "id")
}

func (s *escalationSteps) assignResponder(ctx context.Context, name string) error {
	userID, err := s.tc.UserID(name)
	if err != nil {
		return err
	}
	path, err := s.escalationPath("/responders")
	if err != nil {
		return err
	}
	if err := s.tc.POST(path, map[string]string{"user_id": userID, "role": "RESPONDER"}); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 201 && s.tc.GetLastResponseStatus() != 200 {
		return fmt.Errorf("assign responder returned %d", s.tc.GetLastResponseStatus())
	}
	return s.saveField("assignment", "assignment_id")
}

func (s *escalationSteps) acknowledge(ctx context.Context) error {
	assignmentID, err := s.tc.Saved("assignment")
	if err != nil {
		return err
	}
	path, err := s.escalationPath("/assignments/" + assignmentID + "/acknowledge")
	if err != nil {
		return err
	}
	return s.tc.POST(path, nil)
}

func (s *escalationSteps) escalate(ctx context.Context, reason string) error {
	path, err := s.escalationPath("/escalate")
	if err != nil {
		return err
	}
	return s.tc.POST(path, map[string]string{"reason": reason})
}

func (s *escalationSteps) setStatus(ctx context.Context, status string) error {
	path, err := s.escalationPath("/status")
	if err != nil {
		return err
	}
	return s.tc.PATCH(path, map[string]string{"status": status})
}

func (s *escalationSteps) saveField(key, field string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	str, ok := v.(string)
	if !ok {
		return fmt.Errorf("field %q is %T, want string", field, v)
	}
	s.tc.Save(key, str)
	return nil
}
