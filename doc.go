// Package vigil is a synthetic transaction monitor: it executes scripted
// API and browser flows on a schedule, aggregates latency metrics, and
// manages the incident and alerting lifecycle for flows that fail
package vigil

const (
	// Name is the service name reported in logs and health checks
	Name = "vigil"

	// Version is the service version reported in logs and health checks
	Version = "0.1.0"
)
