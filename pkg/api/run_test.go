package api_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vigilhq/vigil/pkg/api"
)

func TestFirstProblem(t *testing.T) {
	latency := int64(40)

	t.Run("all passed", func(t *testing.T) {
		res := &api.RunResult{
			Status: api.RunPassed,
			Steps: []*api.StepResult{
				{Position: 1, Status: api.StepPassed, LatencyMs: &latency},
			},
		}
		assert.Nil(t, res.FirstProblem())
		assert.True(t, res.IsHealthy())
	})

	t.Run("failure beats slowness", func(t *testing.T) {
		res := &api.RunResult{
			Status: api.RunFailed,
			Steps: []*api.StepResult{
				{Position: 1, Status: api.StepSlow, LatencyMs: &latency},
				{Position: 2, Status: api.StepFailed},
			},
		}
		problem := res.FirstProblem()
		assert.NotNil(t, problem)
		assert.Equal(t, 2, problem.Position)
		assert.False(t, res.IsHealthy())
	})

	t.Run("first slow step", func(t *testing.T) {
		res := &api.RunResult{
			Status: api.RunDegraded,
			Steps: []*api.StepResult{
				{Position: 1, Status: api.StepPassed, LatencyMs: &latency},
				{Position: 2, Status: api.StepSlow, LatencyMs: &latency},
				{Position: 3, Status: api.StepSlow, LatencyMs: &latency},
			},
		}
		problem := res.FirstProblem()
		assert.NotNil(t, problem)
		assert.Equal(t, 2, problem.Position)
	})
}

func TestNewSkippedResult(t *testing.T) {
	sr := api.NewSkippedResult(3)
	assert.Equal(t, 3, sr.Position)
	assert.Equal(t, api.StepSkipped, sr.Status)
	assert.Equal(t, api.SkippedError, sr.Error)
	assert.Nil(t, sr.LatencyMs)
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, api.SeverityCritical, api.SeverityFor(api.RunFailed))
	assert.Equal(t, api.SeverityWarning, api.SeverityFor(api.RunDegraded))
}

func TestHourBucket(t *testing.T) {
	ts := time.Date(2025, 6, 15, 14, 37, 59, 123, time.UTC)
	assert.Equal(t,
		time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC),
		api.HourBucket(ts))
}
