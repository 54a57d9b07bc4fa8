// Package metrics computes latency aggregates for step results using
// nearest-rank percentiles over hourly buckets
package metrics

import (
	"slices"

	"github.com/vigilhq/vigil/pkg/api"
)

// Percentile returns the nearest-rank percentile of a sorted sample set,
// or nil when the set is empty
func Percentile(sorted []int64, p float64) *int64 {
	n := len(sorted)
	if n == 0 {
		return nil
	}
	idx := int(ceilDiv(p, n)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	v := sorted[idx]
	return &v
}

// Summarize aggregates latency samples and failure counts into a
// LatencySummary. Failures contribute to the error rate and sample count
// but not to the latency percentiles
func Summarize(latencies []int64, failures int) api.LatencySummary {
	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	summary := api.LatencySummary{
		P50Ms:       Percentile(sorted, 50),
		P95Ms:       Percentile(sorted, 95),
		P99Ms:       Percentile(sorted, 99),
		SampleCount: len(sorted) + failures,
	}

	if len(sorted) > 0 {
		var total int64
		for _, v := range sorted {
			total += v
		}
		avg := total / int64(len(sorted))
		summary.AvgMs = &avg
	}

	if summary.SampleCount > 0 {
		summary.ErrorRate = float64(failures) / float64(summary.SampleCount)
	}
	return summary
}

func ceilDiv(p float64, n int) int64 {
	rank := p / 100 * float64(n)
	whole := int64(rank)
	if rank > float64(whole) {
		whole++
	}
	return whole
}
