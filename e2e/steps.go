package e2e

import (
	"github.com/cucumber/godog"

	"safecircle/e2e/steps/common"
	"safecircle/e2e/steps/escalation"
	"safecircle/e2e/steps/notification"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	escalation.RegisterSteps(ctx, tc)
	notification.RegisterSteps(ctx, tc)
}
