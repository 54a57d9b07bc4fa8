package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/vigilhq/vigil/internal/expr"
	"github.com/vigilhq/vigil/pkg/api"
	"github.com/vigilhq/vigil/pkg/log"
)

// APIRunner executes flows whose steps are HTTP checks
type APIRunner struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

var _ Runner = (*APIRunner)(nil)

// NewAPIRunner creates an APIRunner. The timeout applies to steps that
// do not configure their own
func NewAPIRunner(timeout time.Duration, logger *slog.Logger) *APIRunner {
	return &APIRunner{
		// Per-step deadlines come from the request context, not the
		// client, so one slow step cannot shorten the next
		client:  &http.Client{},
		timeout: timeout,
		logger:  logger,
	}
}

// Run executes the flow's steps in position order. The first failed step
// switches the run into skip mode; no further network calls are made
func (r *APIRunner) Run(ctx context.Context, flow *api.Flow) *api.RunResult {
	started := time.Now()
	vars := Variables{}
	results := make([]*api.StepResult, 0, len(flow.Steps))
	failed := false

	for _, step := range flow.Steps {
		if failed {
			results = append(results, api.NewSkippedResult(step.Position))
			continue
		}
		sr := r.runStep(ctx, flow, step, vars)
		if sr.Status == api.StepFailed {
			failed = true
		}
		results = append(results, sr)
	}
	return finishRun(flow.ID, started, results)
}

func (r *APIRunner) runStep(
	ctx context.Context, flow *api.Flow, step *api.Step, vars Variables,
) *api.StepResult {
	sr := &api.StepResult{
		Position:  step.Position,
		StartedAt: time.Now(),
	}
	cfg := step.API

	fail := func(format string, args ...any) *api.StepResult {
		msg := fmt.Sprintf(format, args...)
		sr.Status = api.StepFailed
		sr.Error = msg
		sr.Logs = append(sr.Logs, msg)
		sr.CompletedAt = time.Now()
		r.logger.Warn("step failed",
			log.FlowID(flow.ID), log.StepID(step.ID),
			log.Position(step.Position), log.ErrorString(msg))
		return sr
	}

	target := resolveURL(flow.Config.BaseURL, vars.Render(cfg.URL))
	body, err := r.requestBody(cfg, vars)
	if err != nil {
		return fail("encoding request body: %s", err)
	}

	reqCtx, cancel := context.WithTimeout(
		ctx, stepTimeout(cfg.TimeoutMs, r.timeout))
	defer cancel()

	req, err := http.NewRequestWithContext(
		reqCtx, cfg.HTTPMethod(), target, body)
	if err != nil {
		return fail("building request: %s", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range vars.RenderMap(cfg.Headers) {
		req.Header.Set(k, v)
	}
	if len(cfg.Params) > 0 {
		q := req.URL.Query()
		for k, v := range vars.RenderMap(cfg.Params) {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	resp, err := r.client.Do(req)
	latency := time.Since(sr.StartedAt).Milliseconds()
	sr.LatencyMs = &latency
	if err != nil {
		return fail("%s %s: %s", cfg.HTTPMethod(), target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail("reading response body: %s", err)
	}
	sr.HTTPStatus = resp.StatusCode
	sr.ResponseBody = truncate(string(respBody), maxBodyBytes)
	sr.Logs = append(sr.Logs, fmt.Sprintf("%s %s -> %d (%dms)",
		cfg.HTTPMethod(), req.URL, resp.StatusCode, latency))

	if resp.StatusCode != cfg.ExpectedStatus() {
		return fail("expected status %d, got %d: %s",
			cfg.ExpectedStatus(), resp.StatusCode,
			truncate(string(respBody), errSnippetBytes))
	}

	if msg := assertSchema(cfg.AssertSchema, respBody); msg != "" {
		return fail("%s", msg)
	}

	if cfg.AssertExpr != "" {
		ok, err := evalAssertion(cfg.AssertExpr, respBody, vars)
		if err != nil {
			return fail("expression %q: %s", cfg.AssertExpr, err)
		}
		if !ok {
			return fail("expression not satisfied: %s", cfg.AssertExpr)
		}
		sr.Logs = append(sr.Logs,
			fmt.Sprintf("expression satisfied: %s", cfg.AssertExpr))
	}

	for name, path := range cfg.Capture {
		res := gjson.GetBytes(respBody, path)
		vars[name] = res.Value()
		sr.Logs = append(sr.Logs,
			fmt.Sprintf("captured %s=%s", name, res.String()))
	}

	sr.Status = classify(latency, step.ThresholdP95Ms)
	sr.CompletedAt = time.Now()
	if sr.Status == api.StepSlow {
		sr.Logs = append(sr.Logs, fmt.Sprintf(
			"latency %dms exceeded p95 threshold %dms",
			latency, step.ThresholdP95Ms))
	}
	return sr
}

func (r *APIRunner) requestBody(
	cfg *api.APIStepConfig, vars Variables,
) (io.Reader, error) {
	if len(cfg.Body) == 0 {
		return nil, nil
	}
	rendered := vars.RenderAny(map[string]any(cfg.Body))
	encoded, err := json.Marshal(rendered)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(encoded), nil
}

// assertSchema checks each dot-path against its expected primitive type.
// It returns a failure message, or the empty string when everything
// matches
func assertSchema(schema map[string]string, body []byte) string {
	for field, expected := range schema {
		res := gjson.GetBytes(body, field)
		actual := schemaType(res)
		if actual != expected {
			return fmt.Sprintf(
				"schema mismatch at %q: expected %s, got %s (%s)",
				field, expected, actual, truncate(res.String(), 80))
		}
	}
	return ""
}

func schemaType(res gjson.Result) string {
	switch {
	case !res.Exists(), res.Type == gjson.Null:
		return "null"
	case res.IsArray():
		return "array"
	case res.IsObject():
		return "object"
	case res.Type == gjson.Number:
		return "number"
	case res.Type == gjson.True, res.Type == gjson.False:
		return "boolean"
	default:
		return "string"
	}
}

func evalAssertion(source string, body []byte, vars Variables) (bool, error) {
	compiled, err := expr.Parse(source)
	if err != nil {
		return false, err
	}
	return compiled.Eval(&expr.Env{Document: body, Vars: vars})
}
