package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vigilhq/vigil/internal/metrics"
)

func TestPercentileEmpty(t *testing.T) {
	assert.Nil(t, metrics.Percentile(nil, 50))
	assert.Nil(t, metrics.Percentile([]int64{}, 95))
}

func TestPercentileSingleSample(t *testing.T) {
	sorted := []int64{120}
	for _, p := range []float64{50, 95, 99} {
		got := metrics.Percentile(sorted, p)
		if assert.NotNil(t, got) {
			assert.Equal(t, int64(120), *got)
		}
	}
}

func TestPercentileNearestRank(t *testing.T) {
	sorted := []int64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

	tests := []struct {
		p    float64
		want int64
	}{
		{50, 50},
		{95, 100},
		{99, 100},
		{10, 10},
		{100, 100},
	}
	for _, tt := range tests {
		got := metrics.Percentile(sorted, tt.p)
		if assert.NotNil(t, got) {
			assert.Equal(t, tt.want, *got, "p%v", tt.p)
		}
	}
}

func TestPercentileMonotonic(t *testing.T) {
	sorted := []int64{3, 7, 11, 19, 23, 31, 47, 59, 101}

	p50 := metrics.Percentile(sorted, 50)
	p95 := metrics.Percentile(sorted, 95)
	p99 := metrics.Percentile(sorted, 99)

	assert.LessOrEqual(t, *p50, *p95)
	assert.LessOrEqual(t, *p95, *p99)
}

func TestSummarize(t *testing.T) {
	s := metrics.Summarize([]int64{100, 200, 300, 400}, 1)

	assert.Equal(t, int64(200), *s.P50Ms)
	assert.Equal(t, int64(400), *s.P95Ms)
	assert.Equal(t, int64(400), *s.P99Ms)
	assert.Equal(t, int64(250), *s.AvgMs)
	assert.Equal(t, 5, s.SampleCount)
	assert.InDelta(t, 0.2, s.ErrorRate, 1e-9)
}

func TestSummarizeUnsortedInput(t *testing.T) {
	s := metrics.Summarize([]int64{300, 100, 200}, 0)
	assert.Equal(t, int64(200), *s.P50Ms)
	assert.Equal(t, int64(300), *s.P99Ms)
}

func TestSummarizeOnlyFailures(t *testing.T) {
	s := metrics.Summarize(nil, 3)

	assert.Nil(t, s.P50Ms)
	assert.Nil(t, s.AvgMs)
	assert.Equal(t, 3, s.SampleCount)
	assert.Equal(t, 1.0, s.ErrorRate)
}

func TestSummarizeEmpty(t *testing.T) {
	s := metrics.Summarize(nil, 0)

	assert.Nil(t, s.P50Ms)
	assert.Zero(t, s.SampleCount)
	assert.Zero(t, s.ErrorRate)
}
