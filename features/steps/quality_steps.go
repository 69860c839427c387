package steps

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"github.com/emanuelef/yt-convert-go/internal/service/quality"
)

type qualityContext struct {
	selector string
}

// SharedQualityContext is reset before every scenario.
var SharedQualityContext *qualityContext

func iMapTheAudioTier(tier string) error {
	SharedQualityContext.selector = quality.AudioBitrateSelector(tier)
	return nil
}

func iMapTheVideoTier(tier string) error {
	SharedQualityContext.selector = quality.VideoFormatSelector(tier)
	return nil
}

func theSelectorShouldBe(want string) error {
	if got := SharedQualityContext.selector; got != want {
		return fmt.Errorf("expected %q, got %q", want, got)
	}
	return nil
}

// InitializeQualityScenario registers the quality mapping steps.
func InitializeQualityScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		SharedQualityContext = &qualityContext{}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		SharedQualityContext = nil
		return c, nil
	})

	ctx.Step(`^I map the audio tier "([^"]*)"$`, iMapTheAudioTier)
	ctx.Step(`^I map the video tier "([^"]*)"$`, iMapTheVideoTier)
	ctx.Step(`^the audio quality argument should be "([^"]*)"$`, theSelectorShouldBe)
	ctx.Step(`^the format selector should be "([^"]*)"$`, theSelectorShouldBe)
}
