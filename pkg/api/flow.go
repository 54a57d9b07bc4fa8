package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/vigilhq/vigil/pkg/util"
)

type (
	// FlowID is a unique identifier for a flow
	FlowID string

	// StepID is a unique identifier for a step
	StepID string

	// FlowKind selects the runner used to execute a flow
	FlowKind string

	// Flow is a named business transaction that is executed on a fixed
	// interval. The engine treats a Flow and its Steps as immutable input
	// for the duration of one execution
	Flow struct {
		ID          FlowID     `json:"id"`
		Name        string     `json:"name"`
		Description string     `json:"description,omitempty"`
		Kind        FlowKind   `json:"kind"`
		IntervalSec int        `json:"interval_s"`
		Enabled     bool       `json:"enabled"`
		Tags        []string   `json:"tags,omitempty"`
		Config      FlowConfig `json:"config"`
		Steps       []*Step    `json:"steps,omitempty"`
		CreatedAt   time.Time  `json:"created_at"`
		UpdatedAt   time.Time  `json:"updated_at"`
	}

	// FlowConfig carries flow-level runner settings
	FlowConfig struct {
		BaseURL string `json:"base_url,omitempty"`
	}

	// Step is one checkable unit of a flow. Exactly one of API or Browser
	// is set, matching the owning flow's kind
	Step struct {
		ID             StepID             `json:"id"`
		FlowID         FlowID             `json:"flow_id"`
		Position       int                `json:"position"`
		Name           string             `json:"name"`
		Description    string             `json:"description,omitempty"`
		ThresholdP95Ms int64              `json:"threshold_p95_ms"`
		ThresholdP99Ms int64              `json:"threshold_p99_ms"`
		API            *APIStepConfig     `json:"api,omitempty"`
		Browser        *BrowserStepConfig `json:"browser,omitempty"`
	}

	// APIStepConfig describes one HTTP check. URL, header values, body
	// values, and query params may reference captured variables with
	// {{name}} tokens
	APIStepConfig struct {
		Method       string            `json:"method,omitempty"`
		URL          string            `json:"url"`
		Headers      map[string]string `json:"headers,omitempty"`
		Body         map[string]any    `json:"body,omitempty"`
		Params       map[string]string `json:"params,omitempty"`
		TimeoutMs    int64             `json:"timeout_ms,omitempty"`
		AssertStatus int               `json:"assert_status,omitempty"`
		AssertSchema map[string]string `json:"assert_schema,omitempty"`
		AssertExpr   string            `json:"assert_expr,omitempty"`
		Capture      map[string]string `json:"capture,omitempty"`
	}

	// BrowserAction names a UI automation primitive
	BrowserAction string

	// BrowserStepConfig describes one UI automation action. Unknown
	// actions are tolerated at run time for forward compatibility, so
	// Validate only checks the requirements of actions it knows about
	BrowserStepConfig struct {
		Action    BrowserAction `json:"action"`
		URL       string        `json:"url,omitempty"`
		Selector  string        `json:"selector,omitempty"`
		Value     string        `json:"value,omitempty"`
		Key       string        `json:"key,omitempty"`
		Pattern   string        `json:"pattern,omitempty"`
		Text      string        `json:"text,omitempty"`
		Script    string        `json:"script,omitempty"`
		TimeoutMs int64         `json:"timeout_ms,omitempty"`
	}
)

const (
	FlowKindAPI     FlowKind = "api"
	FlowKindBrowser FlowKind = "browser"
)

const (
	ActionNavigate      BrowserAction = "navigate"
	ActionClick         BrowserAction = "click"
	ActionFill          BrowserAction = "fill"
	ActionSelect        BrowserAction = "select"
	ActionHover         BrowserAction = "hover"
	ActionPress         BrowserAction = "press"
	ActionWaitFor       BrowserAction = "wait_for"
	ActionWaitForURL    BrowserAction = "wait_for_url"
	ActionAssertText    BrowserAction = "assert_text"
	ActionAssertURL     BrowserAction = "assert_url"
	ActionAssertVisible BrowserAction = "assert_visible"
	ActionEvaluate      BrowserAction = "evaluate"
	ActionScreenshot    BrowserAction = "screenshot"
)

var (
	ErrFlowNameEmpty       = errors.New("flow name empty")
	ErrInvalidFlowKind     = errors.New("invalid flow kind")
	ErrInvalidInterval     = errors.New("flow interval must be positive")
	ErrFlowHasNoSteps      = errors.New("flow has no steps")
	ErrStepNameEmpty       = errors.New("step name empty")
	ErrStepPositionOrder   = errors.New("step positions must be contiguous from 1")
	ErrStepConfigMissing   = errors.New("step config missing for flow kind")
	ErrStepConfigMismatch  = errors.New("step config does not match flow kind")
	ErrStepURLEmpty        = errors.New("step url empty")
	ErrInvalidHTTPMethod   = errors.New("invalid http method")
	ErrInvalidSchemaType   = errors.New("invalid schema type")
	ErrSelectorRequired    = errors.New("action requires a selector")
	ErrURLRequired         = errors.New("action requires a url")
	ErrValueRequired       = errors.New("action requires a value")
	ErrKeyRequired         = errors.New("action requires a key")
	ErrPatternRequired     = errors.New("action requires a pattern")
	ErrTextRequired        = errors.New("action requires text")
	ErrScriptRequired      = errors.New("action requires a script")
	ErrInvalidThreshold    = errors.New("latency threshold must be positive")
	ErrThresholdOrder      = errors.New("p99 threshold must be >= p95 threshold")
	ErrCaptureVarNameEmpty = errors.New("capture variable name empty")
	ErrCapturePathEmpty    = errors.New("capture field path empty")
)

var (
	validFlowKinds = util.SetOf(FlowKindAPI, FlowKindBrowser)

	validHTTPMethods = util.SetOf(
		"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS",
	)

	validSchemaTypes = util.SetOf(
		"string", "number", "boolean", "object", "array", "null",
	)
)

// StepAt returns the step with the given 1-based position, or nil when
// no such step exists
func (f *Flow) StepAt(position int) *Step {
	for _, s := range f.Steps {
		if s.Position == position {
			return s
		}
	}
	return nil
}

// Validate checks a flow definition and all of its steps. Step positions
// must be 1-based and contiguous; each step's config must match the flow
// kind. Malformed definitions are rejected here, at load time, rather than
// failing mid-run
func (f *Flow) Validate() error {
	if f.Name == "" {
		return ErrFlowNameEmpty
	}
	if !validFlowKinds.Contains(f.Kind) {
		return fmt.Errorf("%w: %s", ErrInvalidFlowKind, f.Kind)
	}
	if f.IntervalSec <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, f.IntervalSec)
	}
	if len(f.Steps) == 0 {
		return ErrFlowHasNoSteps
	}
	for i, s := range f.Steps {
		if s.Position != i+1 {
			return fmt.Errorf("%w: step %d has position %d",
				ErrStepPositionOrder, i+1, s.Position)
		}
		if err := s.Validate(f.Kind); err != nil {
			return fmt.Errorf("step %d: %w", s.Position, err)
		}
	}
	return nil
}

// Validate checks a single step definition against the owning flow's kind
func (s *Step) Validate(kind FlowKind) error {
	if s.Name == "" {
		return ErrStepNameEmpty
	}
	if s.ThresholdP95Ms <= 0 || s.ThresholdP99Ms <= 0 {
		return ErrInvalidThreshold
	}
	if s.ThresholdP99Ms < s.ThresholdP95Ms {
		return ErrThresholdOrder
	}

	switch kind {
	case FlowKindAPI:
		if s.Browser != nil {
			return ErrStepConfigMismatch
		}
		if s.API == nil {
			return ErrStepConfigMissing
		}
		return s.API.Validate()
	case FlowKindBrowser:
		if s.API != nil {
			return ErrStepConfigMismatch
		}
		if s.Browser == nil {
			return ErrStepConfigMissing
		}
		return s.Browser.Validate()
	default:
		return fmt.Errorf("%w: %s", ErrInvalidFlowKind, kind)
	}
}

func (c *APIStepConfig) Validate() error {
	if c.URL == "" {
		return ErrStepURLEmpty
	}
	if c.Method != "" && !validHTTPMethods.Contains(c.Method) {
		return fmt.Errorf("%w: %s", ErrInvalidHTTPMethod, c.Method)
	}
	for field, typ := range c.AssertSchema {
		if field == "" {
			return ErrCapturePathEmpty
		}
		if !validSchemaTypes.Contains(typ) {
			return fmt.Errorf("%w: %q for field %q",
				ErrInvalidSchemaType, typ, field)
		}
	}
	for name, path := range c.Capture {
		if name == "" {
			return ErrCaptureVarNameEmpty
		}
		if path == "" {
			return fmt.Errorf("%w: variable %q", ErrCapturePathEmpty, name)
		}
	}
	return nil
}

func (c *BrowserStepConfig) Validate() error {
	switch c.Action {
	case ActionNavigate:
		if c.URL == "" {
			return fmt.Errorf("%w: %s", ErrURLRequired, c.Action)
		}
	case ActionClick, ActionHover, ActionWaitFor, ActionAssertVisible:
		if c.Selector == "" {
			return fmt.Errorf("%w: %s", ErrSelectorRequired, c.Action)
		}
	case ActionFill, ActionSelect:
		if c.Selector == "" {
			return fmt.Errorf("%w: %s", ErrSelectorRequired, c.Action)
		}
		if c.Action == ActionSelect && c.Value == "" {
			return fmt.Errorf("%w: %s", ErrValueRequired, c.Action)
		}
	case ActionPress:
		if c.Selector == "" {
			return fmt.Errorf("%w: %s", ErrSelectorRequired, c.Action)
		}
		if c.Key == "" {
			return fmt.Errorf("%w: %s", ErrKeyRequired, c.Action)
		}
	case ActionWaitForURL, ActionAssertURL:
		if c.Pattern == "" {
			return fmt.Errorf("%w: %s", ErrPatternRequired, c.Action)
		}
	case ActionAssertText:
		if c.Selector == "" {
			return fmt.Errorf("%w: %s", ErrSelectorRequired, c.Action)
		}
		if c.Text == "" {
			return fmt.Errorf("%w: %s", ErrTextRequired, c.Action)
		}
	case ActionEvaluate:
		if c.Script == "" {
			return fmt.Errorf("%w: %s", ErrScriptRequired, c.Action)
		}
	case ActionScreenshot:
		// no parameters
	}
	return nil
}

// HTTPMethod returns the configured method, defaulting to GET
func (c *APIStepConfig) HTTPMethod() string {
	if c.Method == "" {
		return "GET"
	}
	return c.Method
}

// ExpectedStatus returns the configured status assertion, defaulting to 200
func (c *APIStepConfig) ExpectedStatus() int {
	if c.AssertStatus == 0 {
		return 200
	}
	return c.AssertStatus
}
