// Package runner executes flows. The API runner drives HTTP steps with
// templating, assertions, and variable capture; the browser runner drives
// UI automation through a driver session. Both share the same control
// flow: steps run strictly in order, the first failure puts the run into
// skip mode, and slow steps degrade an otherwise passing run
package runner

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vigilhq/vigil/pkg/api"
)

type (
	// Runner executes one flow and reports its result. Runners never
	// return an error; every failure mode is folded into the RunResult
	Runner interface {
		Run(ctx context.Context, flow *api.Flow) *api.RunResult
	}

	// Variables is the per-run scratch storage populated by capture
	// directives and consumed by later steps' templated fields. It lives
	// only for the duration of one run
	Variables map[string]any
)

// maxBodyBytes caps the response body retained on a StepResult
const maxBodyBytes = 2048

// errSnippetBytes caps the response body quoted in failure messages
const errSnippetBytes = 300

var templateToken = regexp.MustCompile(`\{\{\s*([A-Za-z_][\w.]*)\s*\}\}`)

// Render substitutes {{name}} tokens with captured values. Unknown
// variables render as the empty string, mirroring an absent capture
func (v Variables) Render(s string) string {
	return templateToken.ReplaceAllStringFunc(s, func(tok string) string {
		name := templateToken.FindStringSubmatch(tok)[1]
		val, ok := v[name]
		if !ok {
			return ""
		}
		return formatValue(val)
	})
}

// RenderMap renders every value of a string map
func (v Variables) RenderMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = v.Render(val)
	}
	return out
}

// RenderAny renders string values nested anywhere inside a JSON-shaped
// document of maps, slices, and scalars
func (v Variables) RenderAny(doc any) any {
	switch t := doc.(type) {
	case string:
		return v.Render(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = v.RenderAny(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = v.RenderAny(val)
		}
		return out
	default:
		return doc
	}
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return ""
	}
}

// resolveURL joins a step URL with the flow base URL unless the step URL
// is already absolute
func resolveURL(base, stepURL string) string {
	if base == "" || strings.Contains(stepURL, "://") {
		return stepURL
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return stepURL
	}
	ref, err := url.Parse(stepURL)
	if err != nil {
		return stepURL
	}
	return parsed.ResolveReference(ref).String()
}

// truncate caps s at max bytes, backing up to a rune boundary so the
// result stays valid UTF-8
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}

// finishRun assembles the run-level result from its step results. A
// failed step forces a failed run; a slow step degrades a passing run
func finishRun(
	flowID api.FlowID, started time.Time, steps []*api.StepResult,
) *api.RunResult {
	completed := time.Now()
	status := api.RunPassed
	for _, sr := range steps {
		switch sr.Status {
		case api.StepFailed:
			status = api.RunFailed
		case api.StepSlow:
			if status == api.RunPassed {
				status = api.RunDegraded
			}
		}
	}
	return &api.RunResult{
		FlowID:      flowID,
		Status:      status,
		StartedAt:   started,
		CompletedAt: completed,
		DurationMs:  completed.Sub(started).Milliseconds(),
		Steps:       steps,
	}
}

// classify applies the p95 slow threshold to a successful step
func classify(latencyMs, thresholdP95Ms int64) api.StepStatus {
	if thresholdP95Ms > 0 && latencyMs > thresholdP95Ms {
		return api.StepSlow
	}
	return api.StepPassed
}

func stepTimeout(configuredMs int64, fallback time.Duration) time.Duration {
	if configuredMs > 0 {
		return time.Duration(configuredMs) * time.Millisecond
	}
	return fallback
}
