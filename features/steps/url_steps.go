// Package steps holds the godog step definitions for the feature files.
package steps

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"github.com/emanuelef/yt-convert-go/internal/domain"
	"github.com/emanuelef/yt-convert-go/internal/service/videourl"
)

type urlContext struct {
	raw  string
	ref  videourl.VideoRef
	info videourl.UrlInfo
	err  error
}

// SharedURLContext is reset before every scenario.
var SharedURLContext *urlContext

func theURL(raw string) error {
	SharedURLContext.raw = raw
	return nil
}

func iParseTheURL() error {
	c := SharedURLContext
	c.ref, _, c.err = videourl.RequireCanonical(c.raw)
	c.info = videourl.ExtractInfo(c.raw)
	return nil
}

func theVideoIDShouldBe(want string) error {
	c := SharedURLContext
	if c.err != nil {
		return fmt.Errorf("expected %q to parse, got %v", c.raw, c.err)
	}
	if got := c.ref.ID(); got != want {
		return fmt.Errorf("expected video id %q, got %q", want, got)
	}
	if got := videourl.ParseVideoID(c.raw); got != want {
		return fmt.Errorf("ParseVideoID disagrees: got %q", got)
	}
	return nil
}

func theCanonicalURLShouldBe(want string) error {
	if got := SharedURLContext.ref.CanonicalURL(); got != want {
		return fmt.Errorf("expected canonical URL %q, got %q", want, got)
	}
	return nil
}

func theCanonicalURLShouldParseBack() error {
	c := SharedURLContext
	canonical, err := videourl.ToCanonicalURL(c.ref.ID())
	if err != nil {
		return err
	}
	if got := videourl.ParseVideoID(canonical); got != c.ref.ID() {
		return fmt.Errorf("canonical URL %q parsed to %q", canonical, got)
	}
	return nil
}

func theTimestampShouldBe(seconds int) error {
	ts := SharedURLContext.info.TimestampSeconds
	if ts == nil {
		return fmt.Errorf("expected a timestamp of %d, got none", seconds)
	}
	if *ts != seconds {
		return fmt.Errorf("expected timestamp %d, got %d", seconds, *ts)
	}
	return nil
}

func thePlaylistIDShouldBe(want string) error {
	p := SharedURLContext.info.PlaylistID
	if p == nil || *p != want {
		return fmt.Errorf("expected playlist %q, got %v", want, p)
	}
	return nil
}

func theURLShouldBeFlaggedAsMobile() error {
	if !SharedURLContext.info.IsMobileHost {
		return fmt.Errorf("expected %q to be flagged as mobile", SharedURLContext.raw)
	}
	return nil
}

func parsingShouldFailWithAURLParseError() error {
	c := SharedURLContext
	if c.err == nil {
		return fmt.Errorf("expected %q to be rejected, got id %q", c.raw, c.ref.ID())
	}
	if kind := domain.KindOf(c.err); kind != domain.KindURLParse {
		return fmt.Errorf("expected kind %q, got %q", domain.KindURLParse, kind)
	}
	return nil
}

// InitializeURLScenario registers the URL identity steps.
func InitializeURLScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		SharedURLContext = &urlContext{}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		SharedURLContext = nil
		return c, nil
	})

	ctx.Step(`^the URL "([^"]*)"$`, theURL)
	ctx.Step(`^I parse the URL$`, iParseTheURL)
	ctx.Step(`^the video id should be "([^"]*)"$`, theVideoIDShouldBe)
	ctx.Step(`^the canonical URL should be "([^"]*)"$`, theCanonicalURLShouldBe)
	ctx.Step(`^the canonical URL should parse back to the same id$`, theCanonicalURLShouldParseBack)
	ctx.Step(`^the timestamp should be (\d+) seconds$`, theTimestampShouldBe)
	ctx.Step(`^the playlist id should be "([^"]*)"$`, thePlaylistIDShouldBe)
	ctx.Step(`^the URL should be flagged as mobile$`, theURLShouldBeFlaggedAsMobile)
	ctx.Step(`^parsing should fail with a URL parse error$`, parsingShouldFailWithAURLParseError)
}
