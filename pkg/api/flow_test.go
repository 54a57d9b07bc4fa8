package api_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vigilhq/vigil/pkg/api"
)

func validAPIFlow() *api.Flow {
	return &api.Flow{
		Name:        "checkout",
		Kind:        api.FlowKindAPI,
		IntervalSec: 60,
		Steps: []*api.Step{{
			Name:           "get cart",
			Position:       1,
			ThresholdP95Ms: 500,
			ThresholdP99Ms: 1000,
			API: &api.APIStepConfig{
				URL: "https://shop.example.com/cart",
			},
		}},
	}
}

func TestFlowValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validAPIFlow().Validate())
	})

	t.Run("empty name", func(t *testing.T) {
		f := validAPIFlow()
		f.Name = ""
		assert.ErrorIs(t, f.Validate(), api.ErrFlowNameEmpty)
	})

	t.Run("bad kind", func(t *testing.T) {
		f := validAPIFlow()
		f.Kind = "mobile"
		assert.ErrorIs(t, f.Validate(), api.ErrInvalidFlowKind)
	})

	t.Run("bad interval", func(t *testing.T) {
		f := validAPIFlow()
		f.IntervalSec = 0
		assert.ErrorIs(t, f.Validate(), api.ErrInvalidInterval)
	})

	t.Run("no steps", func(t *testing.T) {
		f := validAPIFlow()
		f.Steps = nil
		assert.ErrorIs(t, f.Validate(), api.ErrFlowHasNoSteps)
	})

	t.Run("positions not contiguous", func(t *testing.T) {
		f := validAPIFlow()
		f.Steps[0].Position = 2
		assert.ErrorIs(t, f.Validate(), api.ErrStepPositionOrder)
	})
}

func TestStepValidate(t *testing.T) {
	t.Run("config mismatch", func(t *testing.T) {
		f := validAPIFlow()
		f.Steps[0].Browser = &api.BrowserStepConfig{
			Action: api.ActionNavigate,
			URL:    "https://shop.example.com",
		}
		assert.ErrorIs(t, f.Validate(), api.ErrStepConfigMismatch)
	})

	t.Run("config missing", func(t *testing.T) {
		f := validAPIFlow()
		f.Steps[0].API = nil
		assert.ErrorIs(t, f.Validate(), api.ErrStepConfigMissing)
	})

	t.Run("bad thresholds", func(t *testing.T) {
		f := validAPIFlow()
		f.Steps[0].ThresholdP95Ms = 0
		assert.ErrorIs(t, f.Validate(), api.ErrInvalidThreshold)
	})

	t.Run("p99 below p95", func(t *testing.T) {
		f := validAPIFlow()
		f.Steps[0].ThresholdP99Ms = 250
		assert.ErrorIs(t, f.Validate(), api.ErrThresholdOrder)
	})
}

func TestAPIStepConfigValidate(t *testing.T) {
	t.Run("empty url", func(t *testing.T) {
		c := &api.APIStepConfig{}
		assert.ErrorIs(t, c.Validate(), api.ErrStepURLEmpty)
	})

	t.Run("bad method", func(t *testing.T) {
		c := &api.APIStepConfig{URL: "https://x", Method: "FETCH"}
		assert.ErrorIs(t, c.Validate(), api.ErrInvalidHTTPMethod)
	})

	t.Run("bad schema type", func(t *testing.T) {
		c := &api.APIStepConfig{
			URL:          "https://x",
			AssertSchema: map[string]string{"id": "integer"},
		}
		assert.ErrorIs(t, c.Validate(), api.ErrInvalidSchemaType)
	})

	t.Run("empty capture path", func(t *testing.T) {
		c := &api.APIStepConfig{
			URL:     "https://x",
			Capture: map[string]string{"token": ""},
		}
		assert.ErrorIs(t, c.Validate(), api.ErrCapturePathEmpty)
	})

	t.Run("defaults", func(t *testing.T) {
		c := &api.APIStepConfig{URL: "https://x"}
		assert.Equal(t, "GET", c.HTTPMethod())
		assert.Equal(t, 200, c.ExpectedStatus())
	})
}

func TestBrowserStepConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  *api.BrowserStepConfig
		err  error
	}{
		{"navigate without url",
			&api.BrowserStepConfig{Action: api.ActionNavigate},
			api.ErrURLRequired},
		{"click without selector",
			&api.BrowserStepConfig{Action: api.ActionClick},
			api.ErrSelectorRequired},
		{"select without value",
			&api.BrowserStepConfig{
				Action:   api.ActionSelect,
				Selector: "#country",
			},
			api.ErrValueRequired},
		{"press without key",
			&api.BrowserStepConfig{
				Action:   api.ActionPress,
				Selector: "#search",
			},
			api.ErrKeyRequired},
		{"wait_for_url without pattern",
			&api.BrowserStepConfig{Action: api.ActionWaitForURL},
			api.ErrPatternRequired},
		{"assert_text without text",
			&api.BrowserStepConfig{
				Action:   api.ActionAssertText,
				Selector: "h1",
			},
			api.ErrTextRequired},
		{"evaluate without script",
			&api.BrowserStepConfig{Action: api.ActionEvaluate},
			api.ErrScriptRequired},
		{"screenshot",
			&api.BrowserStepConfig{Action: api.ActionScreenshot},
			nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestStepAt(t *testing.T) {
	f := validAPIFlow()
	assert.Equal(t, f.Steps[0], f.StepAt(1))
	assert.Nil(t, f.StepAt(2))
}
