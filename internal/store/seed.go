package store

import (
	"context"

	"github.com/vigilhq/vigil/pkg/api"
)

// demoFlows gives a fresh install something to monitor immediately
var demoFlows = []*api.Flow{
	{
		Name:        "JSONPlaceholder API",
		Description: "Read path through a public demo API",
		Kind:        api.FlowKindAPI,
		IntervalSec: 60,
		Enabled:     true,
		Tags:        []string{"demo", "api"},
		Config: api.FlowConfig{
			BaseURL: "https://jsonplaceholder.typicode.com",
		},
		Steps: []*api.Step{
			{
				Position:       1,
				Name:           "Fetch user",
				ThresholdP95Ms: 800,
				ThresholdP99Ms: 1500,
				API: &api.APIStepConfig{
					URL: "/users/1",
					AssertSchema: map[string]string{
						"id":    "number",
						"name":  "string",
						"email": "string",
					},
					Capture: map[string]string{"userId": "id"},
				},
			},
			{
				Position:       2,
				Name:           "Fetch user's posts",
				ThresholdP95Ms: 800,
				ThresholdP99Ms: 1500,
				API: &api.APIStepConfig{
					URL:        "/posts?userId={{userId}}",
					AssertExpr: `len(data) > 0`,
				},
			},
			{
				Position:       3,
				Name:           "Create post",
				ThresholdP95Ms: 1000,
				ThresholdP99Ms: 2000,
				API: &api.APIStepConfig{
					Method: "POST",
					URL:    "/posts",
					Body: map[string]any{
						"title":  "vigil check",
						"userId": "{{userId}}",
					},
					AssertStatus: 201,
					AssertSchema: map[string]string{"id": "number"},
				},
			},
		},
	},
	{
		Name:        "Example.com storefront",
		Description: "Landing page renders and links resolve",
		Kind:        api.FlowKindBrowser,
		IntervalSec: 300,
		Enabled:     false,
		Tags:        []string{"demo", "browser"},
		Steps: []*api.Step{
			{
				Position:       1,
				Name:           "Open landing page",
				ThresholdP95Ms: 4000,
				ThresholdP99Ms: 8000,
				Browser: &api.BrowserStepConfig{
					Action: api.ActionNavigate,
					URL:    "https://example.com",
				},
			},
			{
				Position:       2,
				Name:           "Heading is visible",
				ThresholdP95Ms: 2000,
				ThresholdP99Ms: 4000,
				Browser: &api.BrowserStepConfig{
					Action:   api.ActionAssertText,
					Selector: "h1",
					Text:     "Example Domain",
				},
			},
		},
	},
}

// Seed inserts the demo flows into an empty database. A database that
// already has flows is left untouched
func (s *Store) Seed(ctx context.Context) error {
	var count int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM flows`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for _, flow := range demoFlows {
		if err := s.CreateFlow(ctx, flow); err != nil {
			return err
		}
	}
	s.logger.Info("seeded demo flows", "count", len(demoFlows))
	return nil
}
