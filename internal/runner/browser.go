package runner

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/vigilhq/vigil/internal/browser"
	"github.com/vigilhq/vigil/pkg/api"
	"github.com/vigilhq/vigil/pkg/log"
)

// BrowserRunner executes flows whose steps are UI automation actions.
// Each run gets its own isolated browser session
type BrowserRunner struct {
	sessions browser.Factory
	timeout  time.Duration
	logger   *slog.Logger
}

var _ Runner = (*BrowserRunner)(nil)

// NewBrowserRunner creates a BrowserRunner. The timeout applies to
// actions that do not configure their own
func NewBrowserRunner(
	sessions browser.Factory, timeout time.Duration, logger *slog.Logger,
) *BrowserRunner {
	return &BrowserRunner{
		sessions: sessions,
		timeout:  timeout,
		logger:   logger,
	}
}

// Run executes the flow's actions in position order inside one session.
// The session failing to open fails the first step and skips the rest
func (r *BrowserRunner) Run(
	ctx context.Context, flow *api.Flow,
) *api.RunResult {
	started := time.Now()
	results := make([]*api.StepResult, 0, len(flow.Steps))

	session, err := r.sessions.NewSession(ctx)
	if err != nil {
		r.logger.Error("browser session failed to open",
			log.FlowID(flow.ID), log.Error(err))
		for _, step := range flow.Steps {
			if len(results) == 0 {
				now := time.Now()
				results = append(results, &api.StepResult{
					Position:    step.Position,
					Status:      api.StepFailed,
					StartedAt:   now,
					CompletedAt: now,
					Error:       fmt.Sprintf("browser session: %s", err),
				})
				continue
			}
			results = append(results, api.NewSkippedResult(step.Position))
		}
		return finishRun(flow.ID, started, results)
	}
	defer func() { _ = session.Close() }()

	failed := false
	for _, step := range flow.Steps {
		if failed {
			results = append(results, api.NewSkippedResult(step.Position))
			continue
		}
		sr := r.runStep(ctx, session, flow, step)
		if sr.Status == api.StepFailed {
			failed = true
		}
		results = append(results, sr)
	}
	return finishRun(flow.ID, started, results)
}

func (r *BrowserRunner) runStep(
	ctx context.Context, session browser.Session,
	flow *api.Flow, step *api.Step,
) *api.StepResult {
	sr := &api.StepResult{
		Position:  step.Position,
		StartedAt: time.Now(),
	}
	cfg := step.Browser

	// Page errors raised since the previous step surface here rather
	// than being discarded
	for _, pageErr := range session.DrainPageErrors() {
		sr.Logs = append(sr.Logs, "page error: "+pageErr)
	}

	actCtx, cancel := context.WithTimeout(
		ctx, stepTimeout(cfg.TimeoutMs, r.timeout))
	defer cancel()

	err := r.perform(actCtx, session, flow, cfg, sr)
	latency := time.Since(sr.StartedAt).Milliseconds()
	sr.LatencyMs = &latency

	if err != nil {
		sr.Status = api.StepFailed
		sr.Error = err.Error()
		sr.Logs = append(sr.Logs, err.Error())
		r.logger.Warn("step failed",
			log.FlowID(flow.ID), log.StepID(step.ID),
			log.Position(step.Position), log.Error(err))
	} else {
		sr.Status = classify(latency, step.ThresholdP95Ms)
		sr.Logs = append(sr.Logs, fmt.Sprintf("%s (%dms)",
			cfg.Action, latency))
	}

	// Screenshots are captured for every step, pass or fail; a capture
	// failure never masks the step outcome
	r.capture(ctx, session, sr)

	sr.CompletedAt = time.Now()
	return sr
}

func (r *BrowserRunner) perform(
	ctx context.Context, session browser.Session,
	flow *api.Flow, cfg *api.BrowserStepConfig, sr *api.StepResult,
) error {
	switch cfg.Action {
	case api.ActionNavigate:
		target := resolveURL(flow.Config.BaseURL, cfg.URL)
		status, err := session.Navigate(ctx, target)
		if err != nil {
			return fmt.Errorf("navigate %s: %w", target, err)
		}
		sr.HTTPStatus = status
		if status >= 400 {
			return fmt.Errorf("navigate %s: HTTP %d", target, status)
		}
		return nil
	case api.ActionClick:
		return session.Click(ctx, cfg.Selector)
	case api.ActionFill:
		return session.Fill(ctx, cfg.Selector, cfg.Value)
	case api.ActionSelect:
		return session.SelectOption(ctx, cfg.Selector, cfg.Value)
	case api.ActionHover:
		return session.Hover(ctx, cfg.Selector)
	case api.ActionPress:
		return session.Press(ctx, cfg.Selector, cfg.Key)
	case api.ActionWaitFor:
		return session.WaitVisible(ctx, cfg.Selector)
	case api.ActionWaitForURL:
		return session.WaitForURL(ctx, cfg.Pattern)
	case api.ActionAssertText:
		text, err := session.Text(ctx, cfg.Selector)
		if err != nil {
			return err
		}
		if !strings.Contains(text, cfg.Text) {
			return fmt.Errorf("%q does not contain %q: %s",
				cfg.Selector, cfg.Text, truncate(text, errSnippetBytes))
		}
		return nil
	case api.ActionAssertURL:
		current, err := session.Location(ctx)
		if err != nil {
			return err
		}
		re, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return fmt.Errorf("invalid url pattern %q: %w",
				cfg.Pattern, err)
		}
		if !re.MatchString(current) {
			return fmt.Errorf("url %s does not match %q",
				current, cfg.Pattern)
		}
		return nil
	case api.ActionAssertVisible:
		visible, err := session.Visible(ctx, cfg.Selector)
		if err != nil {
			return err
		}
		if !visible {
			return fmt.Errorf("element %q is not visible", cfg.Selector)
		}
		return nil
	case api.ActionEvaluate:
		v, err := session.Evaluate(ctx, cfg.Script)
		if err != nil {
			return fmt.Errorf("evaluate: %w", err)
		}
		if !truthyResult(v) {
			return fmt.Errorf("script result not truthy: %v", v)
		}
		return nil
	case api.ActionScreenshot:
		// the post-step capture below does the work
		return nil
	default:
		// Unknown actions pass as a no-op so that configurations written
		// for a newer engine do not fail outright here
		sr.Logs = append(sr.Logs,
			fmt.Sprintf("unknown action %q, skipping", cfg.Action))
		r.logger.Warn("unknown browser action",
			log.FlowID(flow.ID), slog.String("action", string(cfg.Action)))
		return nil
	}
}

func (r *BrowserRunner) capture(
	ctx context.Context, session browser.Session, sr *api.StepResult,
) {
	shotCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	png, err := session.Screenshot(shotCtx)
	if err != nil {
		sr.Logs = append(sr.Logs, "screenshot failed: "+err.Error())
		return
	}
	sr.Screenshot = base64.StdEncoding.EncodeToString(png)
}

func truthyResult(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
